package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/bsky-gallery/internal/ai"
	"github.com/pribylovaa/bsky-gallery/internal/bsky"
	"github.com/pribylovaa/bsky-gallery/internal/config"
	galleryhttp "github.com/pribylovaa/bsky-gallery/internal/http"
	"github.com/pribylovaa/bsky-gallery/internal/http/handlers"
	"github.com/pribylovaa/bsky-gallery/internal/media"
	"github.com/pribylovaa/bsky-gallery/internal/service"
	"github.com/pribylovaa/bsky-gallery/internal/session"
	sessionmemory "github.com/pribylovaa/bsky-gallery/internal/session/memory"
	sessionredis "github.com/pribylovaa/bsky-gallery/internal/session/redis"
	"github.com/pribylovaa/bsky-gallery/internal/storage"
	"github.com/pribylovaa/bsky-gallery/internal/storage/postgres"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file (overrides CONFIG_PATH env)")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting gallery-service", "env", cfg.Env)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	httpClient := &http.Client{Timeout: 30 * time.Second}

	// Клиент Bluesky: логин при старте, дальше токены обновляются сами.
	bskyClient := bsky.New(cfg.Bsky, httpClient)

	loginCtx, loginCancel := context.WithTimeout(rootCtx, 15*time.Second)
	err := bskyClient.Login(loginCtx)
	loginCancel()
	if err != nil {
		log.Error("bsky_login_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	log.Info("bsky_logged_in", slog.String("handle", bskyClient.Handle()))

	// Материализация медиа: локальный диск или S3/MinIO.
	var (
		mat       media.Materializer
		diskStore *media.Disk
	)
	switch cfg.Media.Backend {
	case "s3":
		s3Ctx, s3Cancel := context.WithTimeout(rootCtx, 10*time.Second)
		s3Store, err := media.NewS3(s3Ctx, cfg.Media, httpClient)
		s3Cancel()
		if err != nil {
			log.Error("s3_init_failed", slog.String("err", err.Error()))
			os.Exit(1)
		}
		mat = s3Store
		log.Info("media_backend_ready", slog.String("backend", "s3"))
	default:
		diskStore, err = media.NewDisk(cfg.Media, httpClient)
		if err != nil {
			log.Error("media_dir_init_failed", slog.String("err", err.Error()))
			os.Exit(1)
		}
		mat = diskStore
		log.Info("media_backend_ready", slog.String("backend", "disk"))
	}

	// Хранилище сессий выборки.
	var sessions session.Store
	switch cfg.Session.Backend {
	case "redis":
		redisCtx, redisCancel := context.WithTimeout(rootCtx, 10*time.Second)
		sessions, err = sessionredis.New(redisCtx, cfg.Session)
		redisCancel()
		if err != nil {
			log.Error("redis_connect_failed", slog.String("err", err.Error()))
			os.Exit(1)
		}
		log.Info("session_backend_ready", slog.String("backend", "redis"))
	default:
		sessions = sessionmemory.New(cfg.Session)
		log.Info("session_backend_ready", slog.String("backend", "memory"))
	}
	defer func() {
		if cerr := sessions.Close(); cerr != nil {
			log.Warn("sessions_close_failed", slog.String("err", cerr.Error()))
		}
	}()

	// Аналитика ответов (опционально).
	var stats storage.ReplyStats
	if cfg.DB.URL != "" {
		dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
		pg, err := postgres.New(dbCtx, cfg.DB.URL)
		dbCancel()
		if err != nil {
			log.Error("postgres_connect_failed", slog.String("err", err.Error()))
			os.Exit(1)
		}
		defer pg.Close()
		stats = pg
		log.Info("postgres_connected")
	} else {
		log.Info("reply_analytics_disabled")
	}

	// Генератор ответов (опционально).
	aiSettings := ai.NewManager(cfg.AI.SettingsFile)
	var generator ai.Generator
	if cfg.AI.APIKey != "" {
		aiCtx, aiCancel := context.WithTimeout(rootCtx, 10*time.Second)
		gemini, err := ai.NewGemini(aiCtx, cfg.AI, aiSettings)
		aiCancel()
		if err != nil {
			log.Error("ai_init_failed", slog.String("err", err.Error()))
			os.Exit(1)
		}
		generator = gemini
		log.Info("ai_generator_ready", slog.String("model", cfg.AI.Model))
	} else {
		log.Info("ai_generator_disabled")
	}

	svc := service.New(bskyClient, mat, sessions, *cfg)

	h := handlers.New(svc, sessions, bskyClient, diskStore, stats, generator, aiSettings, *cfg)

	apiHandler := galleryhttp.NewRouter(h, galleryhttp.Options{
		Logger:   log,
		Timeout:  cfg.Timeouts.Service,
		BasePath: "/api",
	})

	var ready int32 // 0 — not ready; 1 — ready

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if atomic.LoadInt32(&ready) == 1 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}

		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.Handle("/", apiHandler)

	httpAddr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", httpAddr)
	if err != nil {
		log.Error("http_listen_failed", slog.String("addr", httpAddr), slog.String("err", err.Error()))
		os.Exit(1)
	}

	log.Info("http_listen_start", slog.String("addr", httpAddr))

	serveErrCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)
	log.Info("gallery_ready")

	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_incomplete", slog.String("err", err.Error()))
	} else {
		log.Info("http_stopped")
	}

	log.Info("service_stopped")
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
