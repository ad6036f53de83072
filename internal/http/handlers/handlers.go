// handlers реализует REST/SSE-поверхность gallery-сервиса поверх
// бизнес-логики service и вспомогательных клиентов.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pribylovaa/bsky-gallery/internal/ai"
	"github.com/pribylovaa/bsky-gallery/internal/bsky"
	"github.com/pribylovaa/bsky-gallery/internal/config"
	"github.com/pribylovaa/bsky-gallery/internal/media"
	"github.com/pribylovaa/bsky-gallery/internal/service"
	"github.com/pribylovaa/bsky-gallery/internal/session"
	"github.com/pribylovaa/bsky-gallery/internal/storage"
)

// LikeClient — часть клиента Bluesky, нужная хендлерам лайков
// и странице статуса.
type LikeClient interface {
	Like(ctx context.Context, postURI, postCID string) (string, error)
	Unlike(ctx context.Context, likeURI string) error
	LikeStatus(ctx context.Context, postURI string) (*bsky.LikeState, error)
	Handle() string
}

// Handlers агрегирует зависимости HTTP-слоя.
//
// Stats, AI и Images опциональны: nil выключает соответствующую
// поверхность (reply-фильтр, генерацию ответов, локальную раздачу файлов).
type Handlers struct {
	Service    *service.Service
	Sessions   session.Store
	Likes      LikeClient
	Images     *media.Disk
	Stats      storage.ReplyStats
	AI         ai.Generator
	AISettings *ai.Manager
	Cfg        config.Config
}

func New(svc *service.Service, sessions session.Store, likes LikeClient, images *media.Disk,
	stats storage.ReplyStats, gen ai.Generator, settings *ai.Manager, cfg config.Config) *Handlers {
	return &Handlers{
		Service:    svc,
		Sessions:   sessions,
		Likes:      likes,
		Images:     images,
		Stats:      stats,
		AI:         gen,
		AISettings: settings,
		Cfg:        cfg,
	}
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}

// invalidArgument — вспомогалка: локальная ошибка парсинга -> 400.
func invalidArgument(msg string) error {
	return fmt.Errorf("%w: %s", service.ErrInvalidArgument, msg)
}
