package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/pribylovaa/bsky-gallery/internal/models"
	"github.com/pribylovaa/bsky-gallery/internal/storage"
)

// RecordReply записывает отправленный ответ. Один пост — один ответ:
// повторная запись по тому же post_uri возвращает ErrAlreadyExists.
func (s *Storage) RecordReply(ctx context.Context, ev storage.ReplyEvent) error {
	const op = "storage.postgres.RecordReply"

	tag, err := s.db.Exec(ctx, `
		INSERT INTO reply_events (post_uri, author_handle, reply_uri, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (post_uri) DO NOTHING`,
		ev.PostURI, ev.AuthorHandle, ev.ReplyURI, ev.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %s: %w", op, ev.PostURI, storage.ErrAlreadyExists)
	}

	return nil
}

// ReplyCounts агрегирует число ответов по авторам за окно since,
// отдавая не больше limit самых активных.
func (s *Storage) ReplyCounts(ctx context.Context, since time.Time, limit int) (models.ReplyCountTable, error) {
	const op = "storage.postgres.ReplyCounts"

	rows, err := s.db.Query(ctx, `
		SELECT author_handle, COUNT(*)
		FROM reply_events
		WHERE created_at >= $1
		GROUP BY author_handle
		ORDER BY COUNT(*) DESC, author_handle
		LIMIT $2`,
		since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	table := make(models.ReplyCountTable)
	for rows.Next() {
		var (
			handle string
			count  int
		)
		if err := rows.Scan(&handle, &count); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		table[handle] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}

	return table, nil
}
