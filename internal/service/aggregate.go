package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pribylovaa/bsky-gallery/pkg/log"

	"github.com/pribylovaa/bsky-gallery/internal/metrics"
	"github.com/pribylovaa/bsky-gallery/internal/models"
)

// AggregateInput — параметры одного прогона выборки.
type AggregateInput struct {
	// SessionID — ключ состояния продолжения («показать ещё»).
	SessionID string
	// TargetCount — сколько постов с изображениями нужно набрать (>= 1).
	TargetCount int
	// MaxPerUser — максимум принятых постов одного автора за прогон (>= 1).
	MaxPerUser int
	// MaxPages — максимум страниц таймлайна за прогон (>= 1).
	MaxPages int
	// Sink — приёмник событий прогресса; nil = без событий.
	Sink Sink
}

// AggregateResult — итог прогона.
type AggregateResult struct {
	// Posts — принятые посты в порядке обнаружения.
	Posts []models.Post
	// Examined — сколько записей таймлайна рассмотрено.
	Examined int
	// Pages — сколько страниц запрошено.
	Pages int
	// Exhausted — источник сообщил, что страниц больше нет.
	Exhausted bool
}

func (in *AggregateInput) validate() error {
	if in.SessionID == "" {
		return fmt.Errorf("%w: empty session_id", ErrInvalidArgument)
	}
	if in.TargetCount < 1 {
		return fmt.Errorf("%w: target_count must be >= 1", ErrInvalidArgument)
	}
	if in.MaxPerUser < 1 {
		return fmt.Errorf("%w: max_per_user must be >= 1", ErrInvalidArgument)
	}
	if in.MaxPages < 1 {
		return fmt.Errorf("%w: max_pages must be >= 1", ErrInvalidArgument)
	}
	return nil
}

// Aggregate — прогрессивная выборка постов с изображениями.
//
// Строго последовательный цикл по страницам таймлайна с курсора сессии.
// Конвейер по каждой записи: де-дупликация (в рамках прогона и по seen-set
// сессии; репосты дедуплицируются по URI исходного поста) → пропуск
// текстовых → лимит на автора → материализация изображений → принятие.
// Отказ материализации одной картинки выбрасывает картинку, а не пост;
// пост без единой материализованной картинки отбрасывается целиком.
//
// Остановка: цель набрана, бюджет страниц исчерпан, источник исчерпан
// или контекст отменён. После каждой страницы курсор сессии продвигается,
// а seen-set пополняется всеми рассмотренными URI — не только принятыми.
// Порядок принятых постов совпадает с порядком обнаружения.
func (s *Service) Aggregate(ctx context.Context, in AggregateInput) (*AggregateResult, error) {
	const op = "service/aggregate/Aggregate"

	if err := in.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sink := in.Sink
	if sink == nil {
		sink = NopSink
	}

	lg := log.From(ctx).With(
		slog.String("op", op),
		slog.String("session_id", in.SessionID),
	)

	started := time.Now()
	defer func() { metrics.AggregateDuration.Observe(time.Since(started).Seconds()) }()

	state, err := s.sessions.Get(ctx, in.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%s: session get: %w: %v", op, ErrInternal, err)
	}

	var (
		cursor   = state.Cursor
		runSeen  = make(map[string]struct{})
		counts   = make(map[string]int)
		accepted = make([]models.Post, 0, in.TargetCount)
		res      = &AggregateResult{}
	)

	for len(accepted) < in.TargetCount && res.Pages < in.MaxPages {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		page, err := s.source.Timeline(ctx, cursor, s.cfg.Bsky.PageSize)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res.Pages++

		examined := make([]string, 0, len(page.Entries))
		for _, cand := range page.Entries {
			if len(accepted) >= in.TargetCount {
				break
			}

			res.Examined++
			examined = append(examined, cand.URI)

			if _, ok := runSeen[cand.URI]; ok {
				continue
			}
			runSeen[cand.URI] = struct{}{}

			if state.SeenContains(cand.URI) {
				continue
			}
			if len(cand.Refs) == 0 {
				continue
			}
			if !underCap(counts, cand.Author.Handle, in.MaxPerUser) {
				continue
			}

			images := s.materializeAll(ctx, cand)
			if len(images) == 0 {
				continue
			}

			counts[cand.Author.Handle]++
			accepted = append(accepted, toPost(cand, images))
		}

		cursor = page.Cursor
		if err := s.sessions.Advance(ctx, in.SessionID, cursor, examined); err != nil {
			return nil, fmt.Errorf("%s: session advance: %w: %v", op, ErrInternal, err)
		}

		sink(Event{
			Type:            EventProgress,
			Message:         fmt.Sprintf("Found %d of %d posts...", len(accepted), in.TargetCount),
			PostsFound:      len(accepted),
			PostsChecked:    res.Examined,
			CurrentBatch:    res.Pages,
			ProgressPercent: percent(len(accepted), in.TargetCount),
		})

		if page.Cursor == "" {
			res.Exhausted = true
			break
		}
	}

	metrics.PagesFetched.Add(float64(res.Pages))
	metrics.EntriesExamined.Add(float64(res.Examined))
	metrics.PostsAccepted.Add(float64(len(accepted)))

	lg.Info("aggregate_done",
		slog.Int("accepted", len(accepted)),
		slog.Int("examined", res.Examined),
		slog.Int("pages", res.Pages),
		slog.Bool("exhausted", res.Exhausted),
	)

	res.Posts = accepted

	return res, nil
}

// materializeAll скачивает изображения кандидата; неудачные пропускаются.
func (s *Service) materializeAll(ctx context.Context, cand models.Candidate) []models.Image {
	images := make([]models.Image, 0, len(cand.Refs))
	for _, ref := range cand.Refs {
		img, err := s.media.Materialize(ctx, ref)
		if err != nil {
			log.From(ctx).Warn("image_materialize_failed",
				slog.String("post_uri", cand.URI),
				slog.String("image", ref.Name),
				slog.String("err", err.Error()),
			)
			continue
		}
		images = append(images, img)
	}

	return images
}
