// service содержит бизнес-логику галереи: прогрессивную выборку таймлайна
// с дедупликацией и лимитом на автора, пост-фильтр по счётчикам ответов
// и модель событий прогресса.
package service

import (
	"context"
	"errors"

	"github.com/pribylovaa/bsky-gallery/internal/config"
	"github.com/pribylovaa/bsky-gallery/internal/media"
	"github.com/pribylovaa/bsky-gallery/internal/models"
	"github.com/pribylovaa/bsky-gallery/internal/session"
)

var (
	// ErrInvalidArgument — неверные входные параметры запроса к сервису.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInternal — внутренняя ошибка (хранилище сессий/контекст/и т.д.).
	ErrInternal = errors.New("internal")
)

// TimelineSource — источник страниц таймлайна. Пустой курсор в ответе
// означает, что источник исчерпан.
type TimelineSource interface {
	Timeline(ctx context.Context, cursor string, limit int) (*models.TimelinePage, error)
}

// Service — оркестратор выборки постов с изображениями.
type Service struct {
	source   TimelineSource
	media    media.Materializer
	sessions session.Store
	cfg      config.Config
}

// New создает новый экземпляр Service.
func New(source TimelineSource, m media.Materializer, sessions session.Store, cfg config.Config) *Service {
	return &Service{
		source:   source,
		media:    m,
		sessions: sessions,
		cfg:      cfg,
	}
}

// underCap — чистый предикат лимита на автора: принять кандидата можно,
// пока в рамках текущего прогона у автора принято меньше max постов.
// counts — локальная для одного прогона карта, не путать с session seen-set.
func underCap(counts map[string]int, handle string, max int) bool {
	return counts[handle] < max
}

// toPost переносит кандидата в итоговую модель с материализованными
// изображениями.
func toPost(c models.Candidate, images []models.Image) models.Post {
	return models.Post{
		URI:         c.URI,
		CID:         c.CID,
		Author:      c.Author,
		Text:        c.Text,
		IndexedAt:   c.IndexedAt,
		ReplyCount:  c.ReplyCount,
		RepostCount: c.RepostCount,
		LikeCount:   c.LikeCount,
		Repost:      c.Repost,
		Images:      images,
	}
}
