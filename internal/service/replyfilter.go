package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pribylovaa/bsky-gallery/pkg/log"

	"github.com/pribylovaa/bsky-gallery/internal/models"
)

// FilterInput — параметры выборки с пост-фильтром по счётчикам ответов.
type FilterInput struct {
	SessionID   string
	TargetCount int
	MaxPerUser  int
	// MaxPages — бюджет страниц одного вызова агрегатора.
	MaxPages int
	// Threshold — автор проходит, пока его счётчик в Table <= Threshold.
	// Нулевой порог выключает фильтр.
	Threshold int
	// Table — внешние счётчики «сколько раз мы уже отвечали автору»;
	// читается, никогда не мутируется. Пустая таблица выключает фильтр.
	Table models.ReplyCountTable
	// MaxAttempts — максимум заходов к агрегатору (>= 1).
	MaxAttempts int
	Sink        Sink
}

// FilterResult — итог фильтрующей выборки.
type FilterResult struct {
	// Posts — выжившие посты в порядке обнаружения, не больше TargetCount.
	Posts []models.Post
	// Attempts — сколько заходов к агрегатору сделано.
	Attempts int
	// Examined — записей таймлайна рассмотрено суммарно за все заходы.
	Examined int
	// Exhausted — источник исчерпался до набора цели.
	Exhausted bool
}

// FilterWithRefill — выборка с дозабором: просит у агрегатора батчи
// с запасом и отсеивает авторов, которым мы уже отвечали чаще порога.
//
// Размер батча — target*2, но не больше жёсткого потолка выдачи
// (limits.max_count, как у источника); после захода без единого выжившего
// размер удваивается (с тем же потолком). Выжившие накапливаются между
// заходами без дубликатов. Остановка: цель набрана, заходы исчерпаны,
// источник исчерпан или суммарно рассмотрено limits.max_examined_total
// записей — последнее гарантирует завершение даже на деградировавшем
// источнике. Короткий (даже пустой) результат — валидный итог, не ошибка.
//
// Нулевой порог или пустая таблица выключают фильтр: возвращается один
// батч агрегатора как есть.
func (s *Service) FilterWithRefill(ctx context.Context, in FilterInput) (*FilterResult, error) {
	const op = "service/replyfilter/FilterWithRefill"

	if in.Threshold < 0 {
		return nil, fmt.Errorf("%s: %w: threshold must be >= 0", op, ErrInvalidArgument)
	}
	if in.MaxAttempts < 1 {
		return nil, fmt.Errorf("%s: %w: max_attempts must be >= 1", op, ErrInvalidArgument)
	}

	// Фильтр выключен — обычный прогон без дозабора.
	if in.Threshold == 0 || len(in.Table) == 0 {
		res, err := s.Aggregate(ctx, AggregateInput{
			SessionID:   in.SessionID,
			TargetCount: in.TargetCount,
			MaxPerUser:  in.MaxPerUser,
			MaxPages:    in.MaxPages,
			Sink:        in.Sink,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return &FilterResult{
			Posts:     res.Posts,
			Attempts:  1,
			Examined:  res.Examined,
			Exhausted: res.Exhausted,
		}, nil
	}

	lg := log.From(ctx).With(
		slog.String("op", op),
		slog.String("session_id", in.SessionID),
	)

	sink := in.Sink
	if sink == nil {
		sink = NopSink
	}

	var (
		out      = make([]models.Post, 0, in.TargetCount)
		have     = make(map[string]struct{})
		batch    = s.clampBatch(in.TargetCount * 2)
		res      = &FilterResult{}
		examined = 0
		pages    = 0
	)

	// Счётчики внутреннего прогона начинаются с нуля на каждый заход;
	// для внешнего потока событий они продолжают счёт прошлых заходов:
	// posts_checked не убывает, current_batch не повторяется.
	attemptSink := func(ev Event) {
		ev.PostsChecked += examined
		ev.CurrentBatch += pages
		sink(ev)
	}

	for res.Attempts < in.MaxAttempts {
		res.Attempts++

		agg, err := s.Aggregate(ctx, AggregateInput{
			SessionID:   in.SessionID,
			TargetCount: batch,
			MaxPerUser:  in.MaxPerUser,
			MaxPages:    in.MaxPages,
			Sink:        attemptSink,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		examined += agg.Examined
		pages += agg.Pages

		survived := 0
		for _, p := range agg.Posts {
			if _, ok := have[p.URI]; ok {
				continue
			}
			if in.Table[p.Author.Handle] > in.Threshold {
				continue
			}
			have[p.URI] = struct{}{}
			out = append(out, p)
			survived++
		}

		lg.Info("filter_attempt",
			slog.Int("attempt", res.Attempts),
			slog.Int("batch", batch),
			slog.Int("survived", survived),
			slog.Int("accumulated", len(out)),
		)

		if len(out) >= in.TargetCount {
			break
		}
		if agg.Exhausted {
			res.Exhausted = true
			break
		}
		if examined >= s.cfg.Limits.MaxExaminedTotal {
			lg.Warn("filter_examined_ceiling",
				slog.Int("examined", examined),
				slog.Int("ceiling", s.cfg.Limits.MaxExaminedTotal),
			)
			break
		}

		if survived == 0 {
			batch = s.clampBatch(batch * 2)
		}
	}

	if len(out) > in.TargetCount {
		out = out[:in.TargetCount]
	}

	res.Posts = out
	res.Examined = examined

	return res, nil
}

// clampBatch ограничивает размер батча потолком выдачи источника.
func (s *Service) clampBatch(n int) int {
	if max := s.cfg.Limits.MaxCount; n > max {
		return max
	}
	if n < 1 {
		return 1
	}
	return n
}
