package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apierrors "github.com/pribylovaa/bsky-gallery/internal/errors"
	"github.com/pribylovaa/bsky-gallery/internal/metrics"
	"github.com/pribylovaa/bsky-gallery/internal/models"
	"github.com/pribylovaa/bsky-gallery/internal/service"
	"github.com/pribylovaa/bsky-gallery/pkg/log"
)

// StreamPosts — GET /api/posts/stream: та же выборка, что GET /api/posts,
// но с потоковой выдачей прогресса по SSE.
//
// Формат: по одному JSON-объекту события на SSE-сообщение. Порядок:
// start, ноль и более progress, keepalive при простое, ровно одно
// терминальное complete либо error, после него соединение закрывается.
func (h *Handlers) StreamPosts(w http.ResponseWriter, r *http.Request) {
	lg := log.From(r.Context())

	p, err := h.parsePostsParams(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		apierrors.WriteError(w, r, fmt.Errorf("%w: streaming unsupported", service.ErrInternal))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	writeEvent := func(ev service.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	mode := "refresh"
	if p.FetchMore {
		mode = "pagination"
	}
	writeEvent(service.Event{
		Type:    service.EventStart,
		Message: fmt.Sprintf("Starting search for %d posts with images (%s mode)...", p.Count, mode),
	})

	ctx := r.Context()

	// События бизнес-слоя идут через канал, чтобы запись в ResponseWriter
	// оставалась в одной горутине с keepalive-тикером.
	events := make(chan service.Event, 16)
	done := make(chan struct{})

	var (
		out    *fetchOutcome
		runErr error
	)
	go func() {
		defer close(done)
		out, runErr = h.runFetch(ctx, p, func(ev service.Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		})
	}()

	keepalive := h.Cfg.Timeouts.Keepalive
	if keepalive <= 0 {
		keepalive = 15 * time.Second
	}
	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()

	for {
		select {
		case ev := <-events:
			writeEvent(ev)
			ticker.Reset(keepalive)
		case <-ticker.C:
			writeEvent(service.Event{Type: service.EventKeepalive})
		case <-ctx.Done():
			// Клиент ушёл; дожидаемся горутины, терминальное событие
			// писать уже некому.
			<-done
			lg.Info("stream_client_gone", "session_id", p.SessionID)
			return
		case <-done:
			// Добираем события, отправленные до завершения прогона.
			for {
				select {
				case ev := <-events:
					writeEvent(ev)
					continue
				default:
				}
				break
			}

			if runErr != nil {
				lg.Error("stream_fetch_failed",
					"session_id", p.SessionID,
					"err", runErr.Error())
				_, resp := apierrors.ToHTTP(runErr)
				writeEvent(service.Event{
					Type:  service.EventError,
					Error: resp.Error.Message,
				})
				return
			}

			posts := out.Posts
			if posts == nil {
				posts = []models.Post{}
			}

			lg.Info("stream_complete",
				"session_id", p.SessionID,
				"count", len(posts),
				"examined", out.Examined)

			writeEvent(service.Event{
				Type:            service.EventComplete,
				PostsFound:      len(posts),
				PostsChecked:    out.Examined,
				CurrentBatch:    out.Batches,
				ProgressPercent: 100,
				Posts:           posts,
				Count:           len(posts),
				IsFetchMore:     p.FetchMore,
			})
			return
		}
	}
}
