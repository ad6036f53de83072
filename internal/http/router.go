package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/bsky-gallery/internal/http/handlers"
	"github.com/pribylovaa/bsky-gallery/internal/http/middleware"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger   *slog.Logger
	Timeout  time.Duration
	BasePath string // например, "/api"; если пустой — роуты регистрируются на корне.
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
//
// Timeout не применяется к SSE-маршруту: стрим живёт дольше обычного
// запроса и завершается собственной логикой прогона.
func NewRouter(h *handlers.Handlers, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),            // безопасно ловим паники
		middleware.RequestID(),          // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger), // кладём request-scoped логгер в контекст и логируем
	)

	// Регистрация маршрутов.
	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h, opts.Timeout)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h, opts.Timeout)
	return root
}

// registerRoutes — единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers, timeout time.Duration) {
	// Стрим без общего дедлайна.
	r.Get("/posts/stream", h.StreamPosts)

	r.Group(func(r chi.Router) {
		if timeout > 0 {
			r.Use(middleware.Timeout(timeout)) // общий дедлайн запроса
		}

		// выборка и медиа
		r.Get("/posts", h.GetPosts)
		r.Get("/image/{filename}", h.ServeImage)

		// лайки
		r.Post("/like", h.Like)
		r.Post("/unlike", h.Unlike)
		r.Post("/like-status", h.LikeStatus)

		// генерация ответов
		r.Post("/reply", h.GenerateReply)

		// настройки генератора
		r.Get("/ai-config", h.GetAIConfig)
		r.Post("/ai-config", h.UpdateAIConfig)
		r.Post("/ai-config/reset", h.ResetAIConfig)

		// сервисные
		r.Get("/status", h.Status)
		r.Get("/user", h.User)
	})
}
