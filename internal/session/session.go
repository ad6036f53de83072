// session — хранилище состояния прогрессивной выборки между запросами
// «показать ещё»: курсор таймлайна и множество уже рассмотренных URI.
// Бэкенды: in-memory (один инстанс) и Redis (несколько инстансов).
package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrLocked — по сессии уже идёт выборка; параллельный запрос отклоняется.
	ErrLocked = errors.New("session is busy")
)

// State — снимок состояния сессии. Для неизвестного id возвращается
// свежее состояние: пустой курсор и пустое множество.
type State struct {
	// Cursor — курсор продолжения таймлайна ("" — начать с головы).
	Cursor string
	// Seen — URI постов, уже рассмотренных в этой сессии.
	Seen map[string]struct{}
	// CreatedAt — когда сессия впервые появилась в хранилище.
	CreatedAt time.Time
}

// SeenContains сообщает, рассматривался ли пост ранее.
func (s State) SeenContains(uri string) bool {
	_, ok := s.Seen[uri]
	return ok
}

// Store — хранилище сессий выборки.
//
// Acquire сериализует конкурентные выборки по одной сессии: вторая
// выборка либо ждёт до снятия блокировки/отмены контекста, либо
// получает ErrLocked, если бэкенд не умеет ждать.
type Store interface {
	Acquire(ctx context.Context, id string) (release func(), err error)
	Get(ctx context.Context, id string) (State, error)
	// Advance сохраняет курсор и дописывает рассмотренные URI.
	Advance(ctx context.Context, id, cursor string, seen []string) error
	// Reset сбрасывает состояние сессии, не снимая её блокировку;
	// следующий Get вернёт свежее состояние.
	Reset(ctx context.Context, id string) error
	Close() error
}
