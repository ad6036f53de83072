// memory — in-memory бэкенд session.Store для одиночного инстанса.
// Сессии живут до TTL бездействия, фоновой janitor убирает протухшие.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pribylovaa/bsky-gallery/internal/config"
	"github.com/pribylovaa/bsky-gallery/internal/session"
)

const janitorInterval = time.Minute

// entry — одна сессия: состояние, порядок добавления seen для вытеснения
// и семафор на одну конкурентную выборку.
type entry struct {
	state      session.State
	order      []string
	lock       chan struct{}
	lastAccess time.Time
}

// Store — потокобезопасное in-memory хранилище сессий.
type Store struct {
	mu      sync.Mutex
	items   map[string]*entry
	ttl     time.Duration
	seenCap int

	stop chan struct{}
	done chan struct{}

	// подменяется в тестах
	now func() time.Time
}

// New запускает хранилище и его janitor.
func New(cfg config.SessionConfig) *Store {
	s := &Store{
		items:   make(map[string]*entry),
		ttl:     cfg.TTL,
		seenCap: cfg.SeenCap,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		now:     time.Now,
	}

	go s.janitor()

	return s
}

func (s *Store) janitor() {
	defer close(s.done)

	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.evictExpired()
		}
	}
}

func (s *Store) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, e := range s.items {
		if now.Sub(e.lastAccess) > s.ttl {
			delete(s.items, id)
		}
	}
}

// touch — под s.mu: возвращает запись, создавая свежую при необходимости.
func (s *Store) touch(id string) *entry {
	e, ok := s.items[id]
	if !ok {
		e = &entry{
			state: session.State{
				Seen:      make(map[string]struct{}),
				CreatedAt: s.now(),
			},
			lock: make(chan struct{}, 1),
		}
		s.items[id] = e
	}
	e.lastAccess = s.now()

	return e
}

// Acquire блокирует сессию на время выборки; при занятой сессии ждёт
// до освобождения или отмены контекста.
func (s *Store) Acquire(ctx context.Context, id string) (func(), error) {
	const op = "session/memory/Acquire"

	s.mu.Lock()
	e := s.touch(id)
	s.mu.Unlock()

	select {
	case e.lock <- struct{}{}:
		return func() { <-e.lock }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w: %w", op, session.ErrLocked, ctx.Err())
	}
}

// Get возвращает копию состояния сессии.
func (s *Store) Get(_ context.Context, id string) (session.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[id]
	if !ok {
		return session.State{Seen: make(map[string]struct{})}, nil
	}
	e.lastAccess = s.now()

	seen := make(map[string]struct{}, len(e.state.Seen))
	for uri := range e.state.Seen {
		seen[uri] = struct{}{}
	}

	return session.State{
		Cursor:    e.state.Cursor,
		Seen:      seen,
		CreatedAt: e.state.CreatedAt,
	}, nil
}

// Advance сохраняет курсор и дописывает seen, вытесняя самые старые URI
// при превышении лимита.
func (s *Store) Advance(_ context.Context, id, cursor string, seen []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.touch(id)
	e.state.Cursor = cursor

	for _, uri := range seen {
		if _, ok := e.state.Seen[uri]; ok {
			continue
		}
		e.state.Seen[uri] = struct{}{}
		e.order = append(e.order, uri)
	}

	for len(e.order) > s.seenCap {
		delete(e.state.Seen, e.order[0])
		e.order = e.order[1:]
	}

	return nil
}

// Reset очищает состояние сессии: курсор, seen и порядок вытеснения.
// Семафор выборки сохраняется — сброс во время прогона не должен
// впускать параллельный Acquire по той же сессии.
func (s *Store) Reset(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[id]
	if !ok {
		return nil
	}

	e.state = session.State{
		Seen:      make(map[string]struct{}),
		CreatedAt: s.now(),
	}
	e.order = nil
	e.lastAccess = s.now()

	return nil
}

// Close останавливает janitor.
func (s *Store) Close() error {
	close(s.stop)
	<-s.done

	return nil
}
