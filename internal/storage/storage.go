// storage — журнал отправленных ответов и агрегаты по нему.
// Счётчики «сколько раз мы уже отвечали автору» питают пост-фильтр
// выдачи: авторы, которым отвечали слишком часто, отсеиваются.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/pribylovaa/bsky-gallery/internal/models"
)

var (
	// ErrAlreadyExists — ответ на этот пост уже записан.
	ErrAlreadyExists = errors.New("reply already recorded")
)

// ReplyEvent — факт отправленного ответа.
type ReplyEvent struct {
	// PostURI — at://-URI поста, на который ответили.
	PostURI string
	// AuthorHandle — хэндл автора исходного поста.
	AuthorHandle string
	// ReplyURI — at://-URI созданного ответа.
	ReplyURI string
	// CreatedAt — когда ответ отправлен.
	CreatedAt time.Time
}

// ReplyStats — журнал ответов.
type ReplyStats interface {
	// RecordReply записывает отправленный ответ; повтор по тому же
	// посту возвращает ErrAlreadyExists.
	RecordReply(ctx context.Context, ev ReplyEvent) error
	// ReplyCounts возвращает счётчики ответов по авторам за окно since,
	// не больше limit самых активных.
	ReplyCounts(ctx context.Context, since time.Time, limit int) (models.ReplyCountTable, error)
	Close()
}
