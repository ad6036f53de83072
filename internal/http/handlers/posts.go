package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/pribylovaa/bsky-gallery/internal/errors"
	"github.com/pribylovaa/bsky-gallery/internal/models"
	"github.com/pribylovaa/bsky-gallery/internal/service"
	"github.com/pribylovaa/bsky-gallery/pkg/log"
)

// postsParams — разобранные и проверенные параметры выборки.
// Общие для GET /api/posts и GET /api/posts/stream.
type postsParams struct {
	Count      int
	MaxPerUser int
	MaxFetches int
	FetchMore  bool
	SessionID  string
	Threshold  int
}

// fetchOutcome — унифицированный итог прогона (агрегатор либо reply-фильтр).
type fetchOutcome struct {
	Posts     []models.Post
	Examined  int
	Batches   int
	Cursor    string
	Exhausted bool
}

// paginationBlock — состояние продолжения для фронта.
type paginationBlock struct {
	Cursor       string `json:"cursor"`
	TotalChecked int    `json:"total_checked"`
	FetchCount   int    `json:"fetch_count"`
}

// postsResponse — ответ GET /api/posts.
type postsResponse struct {
	Success     bool            `json:"success"`
	Posts       []models.Post   `json:"posts"`
	Count       int             `json:"count"`
	MaxPerUser  int             `json:"max_per_user"`
	MaxFetches  int             `json:"max_fetches"`
	Source      string          `json:"source"`
	SessionID   string          `json:"session_id"`
	Pagination  paginationBlock `json:"pagination"`
	IsFetchMore bool            `json:"is_fetch_more"`
}

const timelineSource = "timeline_followed_users"

// parsePostsParams разбирает query-параметры выборки с дефолтами
// и серверными лимитами из конфигурации.
func (h *Handlers) parsePostsParams(r *http.Request) (postsParams, error) {
	q := r.URL.Query()

	p := postsParams{
		Count:      h.Cfg.Limits.DefaultCount,
		MaxPerUser: 1,
		MaxFetches: 300,
	}

	intParam := func(name string, dst *int) error {
		v := q.Get(name)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return invalidArgument(name + " must be an integer")
		}
		*dst = n
		return nil
	}

	if err := intParam("count", &p.Count); err != nil {
		return p, err
	}
	if err := intParam("max_per_user", &p.MaxPerUser); err != nil {
		return p, err
	}
	if err := intParam("max_fetches", &p.MaxFetches); err != nil {
		return p, err
	}
	if err := intParam("reply_threshold", &p.Threshold); err != nil {
		return p, err
	}

	if p.Count < 1 || p.Count > h.Cfg.Limits.MaxCount {
		return p, invalidArgument(fmt.Sprintf("count must be between 1 and %d", h.Cfg.Limits.MaxCount))
	}
	if p.MaxPerUser < 1 || p.MaxPerUser > h.Cfg.Limits.MaxPerUser {
		return p, invalidArgument(fmt.Sprintf("max_per_user must be between 1 and %d", h.Cfg.Limits.MaxPerUser))
	}
	if p.MaxFetches < 1 || p.MaxFetches > h.Cfg.Limits.MaxFetches {
		return p, invalidArgument(fmt.Sprintf("max_fetches must be between 1 and %d", h.Cfg.Limits.MaxFetches))
	}
	if p.Threshold < 0 {
		return p, invalidArgument("reply_threshold must be >= 0")
	}
	if p.Threshold > 0 && h.Stats == nil {
		return p, invalidArgument("reply filtering is disabled: no reply analytics storage configured")
	}

	p.FetchMore = q.Get("fetch_more") == "true"

	p.SessionID = q.Get("session_id")
	if p.SessionID == "" {
		p.SessionID = uuid.NewString()
	}

	return p, nil
}

// runFetch выполняет один прогон выборки под блокировкой сессии.
//
// fetch_more=false сбрасывает состояние сессии перед прогоном (свежий
// показ с головы таймлайна); fetch_more=true продолжает с сохранённого
// курсора. При reply_threshold > 0 прогон идёт через reply-фильтр с
// таблицей счётчиков из хранилища аналитики.
func (h *Handlers) runFetch(ctx context.Context, p postsParams, sink service.Sink) (*fetchOutcome, error) {
	const op = "http/handlers/runFetch"

	release, err := h.Sessions.Acquire(ctx, p.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer release()

	if !p.FetchMore {
		if err := h.Sessions.Reset(ctx, p.SessionID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	out := &fetchOutcome{}

	if p.Threshold > 0 {
		since := time.Now().Add(-h.Cfg.DB.Lookback)
		table, err := h.Stats.ReplyCounts(ctx, since, h.Cfg.DB.TableLimit)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		res, err := h.Service.FilterWithRefill(ctx, service.FilterInput{
			SessionID:   p.SessionID,
			TargetCount: p.Count,
			MaxPerUser:  p.MaxPerUser,
			MaxPages:    p.MaxFetches,
			Threshold:   p.Threshold,
			Table:       table,
			MaxAttempts: h.Cfg.Limits.FilterAttempts,
			Sink:        sink,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		out.Posts = res.Posts
		out.Examined = res.Examined
		out.Batches = res.Attempts
		out.Exhausted = res.Exhausted
	} else {
		res, err := h.Service.Aggregate(ctx, service.AggregateInput{
			SessionID:   p.SessionID,
			TargetCount: p.Count,
			MaxPerUser:  p.MaxPerUser,
			MaxPages:    p.MaxFetches,
			Sink:        sink,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		out.Posts = res.Posts
		out.Examined = res.Examined
		out.Batches = res.Pages
		out.Exhausted = res.Exhausted
	}

	state, err := h.Sessions.Get(ctx, p.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out.Cursor = state.Cursor

	return out, nil
}

// GetPosts — GET /api/posts: синхронная выборка постов с изображениями.
func (h *Handlers) GetPosts(w http.ResponseWriter, r *http.Request) {
	lg := log.From(r.Context())

	p, err := h.parsePostsParams(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	out, err := h.runFetch(r.Context(), p, service.NopSink)
	if err != nil {
		lg.Error("posts_fetch_failed",
			"session_id", p.SessionID,
			"err", err.Error())
		apierrors.WriteError(w, r, err)
		return
	}

	lg.Info("posts_fetched",
		"session_id", p.SessionID,
		"count", len(out.Posts),
		"examined", out.Examined,
		"fetch_more", p.FetchMore)

	if out.Posts == nil {
		out.Posts = []models.Post{}
	}

	writeJSON(w, http.StatusOK, postsResponse{
		Success:    true,
		Posts:      out.Posts,
		Count:      len(out.Posts),
		MaxPerUser: p.MaxPerUser,
		MaxFetches: p.MaxFetches,
		Source:     timelineSource,
		SessionID:  p.SessionID,
		Pagination: paginationBlock{
			Cursor:       out.Cursor,
			TotalChecked: out.Examined,
			FetchCount:   out.Batches,
		},
		IsFetchMore: p.FetchMore,
	})
}
