package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/bsky-gallery/internal/config"
	"github.com/pribylovaa/bsky-gallery/internal/models"
	"github.com/pribylovaa/bsky-gallery/internal/session/memory"
	"github.com/pribylovaa/bsky-gallery/mocks"
)

// Юнит-тесты агрегатора (aggregate.go):
// — источник таймлайна и материализация замоканы, хранилище сессий живое
//   (in-memory), чтобы проверять реальное продолжение «показать ещё»;
// — покрывают: достижение цели, лимит на автора, де-дупликацию в рамках
//   прогона и между вызовами, пропуск текстовых постов, деградацию
//   материализации, бюджеты и порядок событий прогресса.

func testCfg() config.Config {
	return config.Config{
		Bsky: config.BskyConfig{PageSize: 10},
		Limits: config.LimitsConfig{
			DefaultCount:     6,
			MaxCount:         18,
			MaxPerUser:       10,
			MaxExaminedTotal: 3000,
			FilterAttempts:   5,
		},
	}
}

// newTestService собирает Service на моках источника и материализации
// с живым in-memory хранилищем сессий.
func newTestService(t *testing.T) (*Service, *mocks.MockTimelineSource, *mocks.MockMaterializer) {
	t.Helper()

	ctrl := gomock.NewController(t)
	src := mocks.NewMockTimelineSource(ctrl)
	mat := mocks.NewMockMaterializer(ctrl)

	sessions := memory.New(config.SessionConfig{TTL: time.Hour, SeenCap: 10000})
	t.Cleanup(func() { _ = sessions.Close() })

	return New(src, mat, sessions, testCfg()), src, mat
}

// okMaterializer — материализация всегда успешна, метаданные из ref.
func okMaterializer(mat *mocks.MockMaterializer) {
	mat.EXPECT().Materialize(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, ref models.ImageRef) (models.Image, error) {
			return models.Image{
				URL:      "/api/image/" + ref.Name,
				Alt:      ref.Alt,
				Filename: ref.Name,
				Width:    640,
				Height:   480,
				ByteSize: 1024,
			}, nil
		}).AnyTimes()
}

// cand — кандидат с n изображениями.
func cand(uri, handle string, n int) models.Candidate {
	c := models.Candidate{
		URI:    uri,
		CID:    "cid-" + uri,
		Author: models.Author{Handle: handle},
		Text:   "post " + uri,
	}
	for i := 0; i < n; i++ {
		c.Refs = append(c.Refs, models.ImageRef{
			URL:  "https://cdn.example/" + uri,
			Name: fmt.Sprintf("img_%s_%d.jpeg", uri, i),
		})
	}
	return c
}

func page(cursor string, entries ...models.Candidate) *models.TimelinePage {
	return &models.TimelinePage{Entries: entries, Cursor: cursor}
}

// Сценарий: страница из 10 записей с картинками, все авторы разные,
// target=5, max_per_user=1 -> ровно 5 постов от 5 авторов за одну страницу.
func TestAggregate_TargetReachedOnFirstPage(t *testing.T) {
	t.Parallel()

	svc, src, mat := newTestService(t)
	okMaterializer(mat)

	entries := make([]models.Candidate, 0, 10)
	for i := 0; i < 10; i++ {
		entries = append(entries, cand(fmt.Sprintf("at://p%d", i), fmt.Sprintf("user%d.bsky.social", i), 1))
	}
	src.EXPECT().Timeline(gomock.Any(), "", 10).Return(page("cur-1", entries...), nil)

	var events []Event
	res, err := svc.Aggregate(context.Background(), AggregateInput{
		SessionID:   "sess",
		TargetCount: 5,
		MaxPerUser:  1,
		MaxPages:    10,
		Sink:        func(e Event) { events = append(events, e) },
	})
	require.NoError(t, err)
	require.Len(t, res.Posts, 5)
	require.Equal(t, 1, res.Pages)
	require.False(t, res.Exhausted)

	// Все авторы различны, у каждого поста есть изображение.
	authors := map[string]int{}
	for _, p := range res.Posts {
		authors[p.Author.Handle]++
		require.NotEmpty(t, p.Images)
	}
	require.Len(t, authors, 5)

	// Порядок — как в таймлайне.
	for i, p := range res.Posts {
		require.Equal(t, fmt.Sprintf("at://p%d", i), p.URI)
	}

	require.Len(t, events, 1)
	require.Equal(t, EventProgress, events[0].Type)
	require.Equal(t, 5, events[0].PostsFound)
	require.Equal(t, 100, events[0].ProgressPercent)
}

// Сценарий: 20 записей на 2 страницах, 15 от одного автора, target=10,
// max_per_user=1 -> автор встречается не более одного раза.
func TestAggregate_PerUserCap(t *testing.T) {
	t.Parallel()

	svc, src, mat := newTestService(t)
	okMaterializer(mat)

	var first, second []models.Candidate
	for i := 0; i < 10; i++ {
		first = append(first, cand(fmt.Sprintf("at://a%d", i), "spammer.bsky.social", 1))
	}
	for i := 0; i < 5; i++ {
		second = append(second, cand(fmt.Sprintf("at://b%d", i), "spammer.bsky.social", 1))
	}
	for i := 0; i < 5; i++ {
		second = append(second, cand(fmt.Sprintf("at://c%d", i), fmt.Sprintf("other%d.bsky.social", i), 1))
	}

	gomock.InOrder(
		src.EXPECT().Timeline(gomock.Any(), "", 10).Return(page("cur-1", first...), nil),
		src.EXPECT().Timeline(gomock.Any(), "cur-1", 10).Return(page("", second...), nil),
	)

	res, err := svc.Aggregate(context.Background(), AggregateInput{
		SessionID:   "sess",
		TargetCount: 10,
		MaxPerUser:  1,
		MaxPages:    10,
	})
	require.NoError(t, err)
	require.True(t, res.Exhausted)

	// 1 пост спамера + 5 уникальных авторов.
	require.Len(t, res.Posts, 6)
	counts := map[string]int{}
	for _, p := range res.Posts {
		counts[p.Author.Handle]++
	}
	require.Equal(t, 1, counts["spammer.bsky.social"])
}

// В одном результате не бывает двух постов с одним URI; текстовые посты
// пропускаются.
func TestAggregate_DedupAndTextOnly(t *testing.T) {
	t.Parallel()

	svc, src, mat := newTestService(t)
	okMaterializer(mat)

	src.EXPECT().Timeline(gomock.Any(), "", 10).Return(page("",
		cand("at://p1", "alice.bsky.social", 1),
		// Репост того же поста — дубликат по URI.
		cand("at://p1", "alice.bsky.social", 1),
		// Текстовый пост.
		cand("at://p2", "bob.bsky.social", 0),
		cand("at://p3", "carol.bsky.social", 1),
	), nil)

	res, err := svc.Aggregate(context.Background(), AggregateInput{
		SessionID:   "sess",
		TargetCount: 10,
		MaxPerUser:  5,
		MaxPages:    10,
	})
	require.NoError(t, err)
	require.Len(t, res.Posts, 2)
	require.Equal(t, "at://p1", res.Posts[0].URI)
	require.Equal(t, "at://p3", res.Posts[1].URI)
	require.Equal(t, 4, res.Examined)
}

// Два последовательных вызова с одной сессией не пересекаются по URI,
// даже если источник выдал перекрывающиеся страницы.
func TestAggregate_FetchMoreContinuation(t *testing.T) {
	t.Parallel()

	svc, src, mat := newTestService(t)
	okMaterializer(mat)

	firstPage := page("cur-1",
		cand("at://p1", "alice.bsky.social", 1),
		cand("at://p2", "bob.bsky.social", 1),
	)
	// Вторая страница частично повторяет первую: p2 уже в seen-set сессии.
	secondPage := page("cur-2",
		cand("at://p2", "bob.bsky.social", 1),
		cand("at://p3", "carol.bsky.social", 1),
		cand("at://p4", "dave.bsky.social", 1),
	)

	gomock.InOrder(
		src.EXPECT().Timeline(gomock.Any(), "", 10).Return(firstPage, nil),
		src.EXPECT().Timeline(gomock.Any(), "cur-1", 10).Return(secondPage, nil),
	)

	in := AggregateInput{SessionID: "sess", TargetCount: 2, MaxPerUser: 5, MaxPages: 10}

	res1, err := svc.Aggregate(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, res1.Posts, 2)

	res2, err := svc.Aggregate(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, res2.Posts, 2)
	require.Equal(t, "at://p3", res2.Posts[0].URI)
	require.Equal(t, "at://p4", res2.Posts[1].URI)

	// Пересечений между вызовами нет.
	seen := map[string]struct{}{}
	for _, p := range res1.Posts {
		seen[p.URI] = struct{}{}
	}
	for _, p := range res2.Posts {
		_, dup := seen[p.URI]
		require.False(t, dup, p.URI)
	}
}

// Отказ материализации одной картинки выбрасывает картинку; пост без
// единой материализованной картинки отбрасывается целиком.
func TestAggregate_MediaFailures(t *testing.T) {
	t.Parallel()

	svc, src, mat := newTestService(t)

	src.EXPECT().Timeline(gomock.Any(), "", 10).Return(page("",
		cand("at://p1", "alice.bsky.social", 2),
		cand("at://p2", "bob.bsky.social", 1),
	), nil)

	mat.EXPECT().Materialize(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, ref models.ImageRef) (models.Image, error) {
			// Первая картинка p1 и единственная p2 не скачиваются.
			if ref.Name == "img_at://p1_0.jpeg" || ref.Name == "img_at://p2_0.jpeg" {
				return models.Image{}, errors.New("download failed")
			}
			return models.Image{Filename: ref.Name}, nil
		}).AnyTimes()

	res, err := svc.Aggregate(context.Background(), AggregateInput{
		SessionID:   "sess",
		TargetCount: 10,
		MaxPerUser:  5,
		MaxPages:    10,
	})
	require.NoError(t, err)
	require.Len(t, res.Posts, 1)
	require.Equal(t, "at://p1", res.Posts[0].URI)
	require.Len(t, res.Posts[0].Images, 1)
}

// Ошибка источника прерывает прогон и доходит до вызывающего.
func TestAggregate_SourceFailure(t *testing.T) {
	t.Parallel()

	svc, src, _ := newTestService(t)

	srcErr := errors.New("rate limited")
	src.EXPECT().Timeline(gomock.Any(), "", 10).Return(nil, srcErr)

	_, err := svc.Aggregate(context.Background(), AggregateInput{
		SessionID:   "sess",
		TargetCount: 5,
		MaxPerUser:  1,
		MaxPages:    10,
	})
	require.ErrorIs(t, err, srcErr)
}

// Бюджет страниц останавливает прогон до достижения цели.
func TestAggregate_PageBudget(t *testing.T) {
	t.Parallel()

	svc, src, mat := newTestService(t)
	okMaterializer(mat)

	gomock.InOrder(
		src.EXPECT().Timeline(gomock.Any(), "", 10).Return(page("cur-1", cand("at://p1", "a.bsky.social", 1)), nil),
		src.EXPECT().Timeline(gomock.Any(), "cur-1", 10).Return(page("cur-2", cand("at://p2", "b.bsky.social", 1)), nil),
	)

	res, err := svc.Aggregate(context.Background(), AggregateInput{
		SessionID:   "sess",
		TargetCount: 10,
		MaxPerUser:  1,
		MaxPages:    2,
	})
	require.NoError(t, err)
	require.Len(t, res.Posts, 2)
	require.Equal(t, 2, res.Pages)
	require.False(t, res.Exhausted)
}

// Пустой курсор от источника означает исчерпание: частичный результат валиден.
func TestAggregate_SourceExhausted(t *testing.T) {
	t.Parallel()

	svc, src, mat := newTestService(t)
	okMaterializer(mat)

	src.EXPECT().Timeline(gomock.Any(), "", 10).Return(page("", cand("at://p1", "a.bsky.social", 1)), nil)

	res, err := svc.Aggregate(context.Background(), AggregateInput{
		SessionID:   "sess",
		TargetCount: 10,
		MaxPerUser:  1,
		MaxPages:    10,
	})
	require.NoError(t, err)
	require.Len(t, res.Posts, 1)
	require.True(t, res.Exhausted)
}

// Счётчик examined в событиях прогресса не убывает; терминальных событий
// агрегатор сам не эмитит.
func TestAggregate_ProgressEvents(t *testing.T) {
	t.Parallel()

	svc, src, mat := newTestService(t)
	okMaterializer(mat)

	gomock.InOrder(
		src.EXPECT().Timeline(gomock.Any(), "", 10).Return(page("cur-1",
			cand("at://p1", "a.bsky.social", 1), cand("at://p2", "b.bsky.social", 0)), nil),
		src.EXPECT().Timeline(gomock.Any(), "cur-1", 10).Return(page("",
			cand("at://p3", "c.bsky.social", 1)), nil),
	)

	var events []Event
	_, err := svc.Aggregate(context.Background(), AggregateInput{
		SessionID:   "sess",
		TargetCount: 5,
		MaxPerUser:  1,
		MaxPages:    10,
		Sink:        func(e Event) { events = append(events, e) },
	})
	require.NoError(t, err)
	require.Len(t, events, 2)

	prev := 0
	for _, e := range events {
		require.Equal(t, EventProgress, e.Type)
		require.GreaterOrEqual(t, e.PostsChecked, prev)
		prev = e.PostsChecked
	}
	require.Equal(t, 1, events[0].CurrentBatch)
	require.Equal(t, 2, events[1].CurrentBatch)
}

// Отмена контекста прерывает прогон между страницами.
func TestAggregate_ContextCancelled(t *testing.T) {
	t.Parallel()

	svc, src, mat := newTestService(t)
	okMaterializer(mat)

	ctx, cancel := context.WithCancel(context.Background())

	src.EXPECT().Timeline(gomock.Any(), "", 10).DoAndReturn(
		func(context.Context, string, int) (*models.TimelinePage, error) {
			cancel()
			return page("cur-1", cand("at://p1", "a.bsky.social", 1)), nil
		})

	_, err := svc.Aggregate(ctx, AggregateInput{
		SessionID:   "sess",
		TargetCount: 10,
		MaxPerUser:  1,
		MaxPages:    10,
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestAggregate_InvalidInput(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)

	cases := []struct {
		name string
		in   AggregateInput
	}{
		{name: "empty_session", in: AggregateInput{TargetCount: 5, MaxPerUser: 1, MaxPages: 1}},
		{name: "zero_target", in: AggregateInput{SessionID: "s", MaxPerUser: 1, MaxPages: 1}},
		{name: "zero_max_per_user", in: AggregateInput{SessionID: "s", TargetCount: 5, MaxPages: 1}},
		{name: "zero_max_pages", in: AggregateInput{SessionID: "s", TargetCount: 5, MaxPerUser: 1}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := svc.Aggregate(context.Background(), tc.in)
			require.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestUnderCap(t *testing.T) {
	t.Parallel()

	counts := map[string]int{"alice": 1, "bob": 2}
	require.True(t, underCap(counts, "alice", 2))
	require.False(t, underCap(counts, "bob", 2))
	require.True(t, underCap(counts, "carol", 1))
}
