package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/bsky-gallery/internal/ai"
	"github.com/pribylovaa/bsky-gallery/internal/bsky"
	"github.com/pribylovaa/bsky-gallery/internal/config"
	"github.com/pribylovaa/bsky-gallery/internal/media"
	"github.com/pribylovaa/bsky-gallery/internal/models"
	"github.com/pribylovaa/bsky-gallery/internal/service"
	"github.com/pribylovaa/bsky-gallery/internal/session/memory"
	"github.com/pribylovaa/bsky-gallery/mocks"
)

// Тесты HTTP-слоя: роутер и хендлеры собираются поверх живого Service
// (моки источника/материализации, in-memory сессии), клиент лайков и
// генератор — фейки/моки. Проверяются формы ответов, валидация
// параметров и порядок SSE-событий.

func testCfg() config.Config {
	return config.Config{
		Bsky: config.BskyConfig{PageSize: 10},
		Limits: config.LimitsConfig{
			DefaultCount:     6,
			MaxCount:         18,
			MaxPerUser:       10,
			MaxFetches:       2000,
			MaxExaminedTotal: 3000,
			FilterAttempts:   5,
		},
		DB: config.DBConfig{
			Lookback:   168 * time.Hour,
			TableLimit: 500,
		},
		Timeouts: config.TimeoutConfig{
			Service:   2 * time.Second,
			Keepalive: 15 * time.Second,
		},
	}
}

// fakeLikes — детерминированный клиент лайков.
type fakeLikes struct {
	likeURI string
	state   *bsky.LikeState
	err     error

	lastPostURI string
	lastLikeURI string
}

func (f *fakeLikes) Like(_ context.Context, postURI, _ string) (string, error) {
	f.lastPostURI = postURI
	return f.likeURI, f.err
}

func (f *fakeLikes) Unlike(_ context.Context, likeURI string) error {
	f.lastLikeURI = likeURI
	return f.err
}

func (f *fakeLikes) LikeStatus(_ context.Context, postURI string) (*bsky.LikeState, error) {
	f.lastPostURI = postURI
	return f.state, f.err
}

func (f *fakeLikes) Handle() string { return "gallery_bot.bsky.social" }

type fixture struct {
	h        *Handlers
	src      *mocks.MockTimelineSource
	mat      *mocks.MockMaterializer
	stats    *mocks.MockReplyStats
	gen      *mocks.MockGenerator
	likes    *fakeLikes
	disk     *media.Disk
	mediaDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	src := mocks.NewMockTimelineSource(ctrl)
	mat := mocks.NewMockMaterializer(ctrl)
	stats := mocks.NewMockReplyStats(ctrl)
	gen := mocks.NewMockGenerator(ctrl)

	cfg := testCfg()

	sessions := memory.New(config.SessionConfig{TTL: time.Hour, SeenCap: 10000})
	t.Cleanup(func() { _ = sessions.Close() })

	mediaDir := t.TempDir()
	disk, err := media.NewDisk(config.MediaConfig{
		Dir:      mediaDir,
		MaxBytes: 1 << 20,
	}, http.DefaultClient)
	require.NoError(t, err)

	settings := ai.NewManager(filepath.Join(t.TempDir(), "ai_settings.json"))

	likes := &fakeLikes{}
	svc := service.New(src, mat, sessions, cfg)

	return &fixture{
		h:        New(svc, sessions, likes, disk, stats, gen, settings, cfg),
		src:      src,
		mat:      mat,
		stats:    stats,
		gen:      gen,
		likes:    likes,
		disk:     disk,
		mediaDir: mediaDir,
	}
}

func (f *fixture) router() http.Handler {
	root := chi.NewRouter()

	root.Get("/posts", f.h.GetPosts)
	root.Get("/posts/stream", f.h.StreamPosts)
	root.Get("/image/{filename}", f.h.ServeImage)
	root.Post("/like", f.h.Like)
	root.Post("/unlike", f.h.Unlike)
	root.Post("/like-status", f.h.LikeStatus)
	root.Post("/reply", f.h.GenerateReply)
	root.Get("/ai-config", f.h.GetAIConfig)
	root.Post("/ai-config", f.h.UpdateAIConfig)
	root.Post("/ai-config/reset", f.h.ResetAIConfig)
	root.Get("/status", f.h.Status)
	root.Get("/user", f.h.User)

	return root
}

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

func cand(uri, handle string, n int) models.Candidate {
	c := models.Candidate{
		URI:    uri,
		CID:    "cid_" + uri,
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

func doJSON(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func pngBytes(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func TestGetPosts_HappyPath(t *testing.T) {
	f := newFixture(t)
	okMaterializer(f.mat)

	f.src.EXPECT().Timeline(gomock.Any(), "", 10).
		Return(page("cur1", cand("p1", "alice", 1), cand("p2", "bob", 2)), nil)

	rec := doJSON(t, f.router(), http.MethodGet, "/posts?count=2&session_id=sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp postsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.True(t, resp.Success)
	require.Equal(t, 2, resp.Count)
	require.Len(t, resp.Posts, 2)
	require.Equal(t, "p1", resp.Posts[0].URI)
	require.Equal(t, "sess-1", resp.SessionID)
	require.Equal(t, "cur1", resp.Pagination.Cursor)
	require.Equal(t, 2, resp.Pagination.TotalChecked)
	require.False(t, resp.IsFetchMore)
}

func TestGetPosts_GeneratesSessionID(t *testing.T) {
	f := newFixture(t)
	okMaterializer(f.mat)

	f.src.EXPECT().Timeline(gomock.Any(), "", 10).
		Return(page("", cand("p1", "alice", 1)), nil)

	rec := doJSON(t, f.router(), http.MethodGet, "/posts?count=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp postsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
}

func TestGetPosts_FetchMoreContinuesFromCursor(t *testing.T) {
	f := newFixture(t)
	okMaterializer(f.mat)

	gomock.InOrder(
		f.src.EXPECT().Timeline(gomock.Any(), "", 10).
			Return(page("cur1", cand("p1", "alice", 1)), nil),
		f.src.EXPECT().Timeline(gomock.Any(), "cur1", 10).
			Return(page("cur2", cand("p2", "bob", 1)), nil),
	)

	r := f.router()

	rec := doJSON(t, r, http.MethodGet, "/posts?count=1&session_id=sess-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/posts?count=1&session_id=sess-2&fetch_more=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp postsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "p2", resp.Posts[0].URI)
	require.True(t, resp.IsFetchMore)
	require.Equal(t, "cur2", resp.Pagination.Cursor)
}

func TestGetPosts_RefreshResetsSession(t *testing.T) {
	f := newFixture(t)
	okMaterializer(f.mat)

	// Оба запроса без fetch_more: второй снова начинает с головы и
	// снова видит p1.
	f.src.EXPECT().Timeline(gomock.Any(), "", 10).
		Return(page("cur1", cand("p1", "alice", 1)), nil).
		Times(2)

	r := f.router()

	for i := 0; i < 2; i++ {
		rec := doJSON(t, r, http.MethodGet, "/posts?count=1&session_id=sess-3", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp postsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "p1", resp.Posts[0].URI)
	}
}

func TestGetPosts_ReplyFilter(t *testing.T) {
	f := newFixture(t)
	okMaterializer(f.mat)

	f.stats.EXPECT().ReplyCounts(gomock.Any(), gomock.Any(), 500).
		Return(models.ReplyCountTable{"alice": 5}, nil)

	// Батч с запасом: alice отфильтрована таблицей, выживает bob.
	f.src.EXPECT().Timeline(gomock.Any(), "", 10).
		Return(page("cur1", cand("p1", "alice", 1), cand("p2", "bob", 1)), nil)

	rec := doJSON(t, f.router(), http.MethodGet,
		"/posts?count=1&session_id=sess-4&reply_threshold=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp postsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Posts, 1)
	require.Equal(t, "p2", resp.Posts[0].URI)
}

func TestGetPosts_InvalidParams(t *testing.T) {
	f := newFixture(t)
	r := f.router()

	cases := []struct {
		name  string
		query string
	}{
		{"zero_count", "count=0"},
		{"count_over_max", "count=19"},
		{"bad_count", "count=abc"},
		{"zero_max_per_user", "max_per_user=0"},
		{"max_per_user_over", "max_per_user=11"},
		{"zero_max_fetches", "max_fetches=0"},
		{"max_fetches_over", "max_fetches=2001"},
		{"negative_threshold", "reply_threshold=-1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, r, http.MethodGet, "/posts?"+tc.query, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetPosts_ThresholdWithoutStats(t *testing.T) {
	f := newFixture(t)
	f.h.Stats = nil

	rec := doJSON(t, f.router(), http.MethodGet, "/posts?reply_threshold=1", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeImage(t *testing.T) {
	f := newFixture(t)

	raw := pngBytes(t)
	// Кладём файл напрямую в каталог хранилища.
	require.NoError(t, os.WriteFile(filepath.Join(f.mediaDir, "pic.png"), raw, 0o644))

	r := f.router()

	rec := doJSON(t, r, http.MethodGet, "/image/pic.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, raw, rec.Body.Bytes())

	rec = doJSON(t, r, http.MethodGet, "/image/unknown.png", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/image/..", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLikeEndpoints(t *testing.T) {
	f := newFixture(t)
	f.likes.likeURI = "at://did:plc:bot/app.bsky.feed.like/3kxyz"
	f.likes.state = &bsky.LikeState{Liked: true, LikeURI: f.likes.likeURI, LikeCount: 7}

	r := f.router()

	rec := doJSON(t, r, http.MethodPost, "/like",
		map[string]string{"post_uri": "at://p1", "post_cid": "cid1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var likeResp likeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &likeResp))
	require.True(t, likeResp.Success)
	require.True(t, likeResp.Liked)
	require.Equal(t, f.likes.likeURI, likeResp.LikeURI)
	require.Equal(t, "at://p1", f.likes.lastPostURI)

	rec = doJSON(t, r, http.MethodPost, "/unlike",
		map[string]string{"like_uri": f.likes.likeURI})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, f.likes.likeURI, f.likes.lastLikeURI)

	rec = doJSON(t, r, http.MethodPost, "/like-status",
		map[string]string{"post_uri": "at://p1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var stResp likeStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stResp))
	require.True(t, stResp.Liked)
	require.Equal(t, int64(7), stResp.LikeCount)
}

func TestLikeEndpoints_Validation(t *testing.T) {
	f := newFixture(t)
	r := f.router()

	rec := doJSON(t, r, http.MethodPost, "/like", map[string]string{"post_uri": "at://p1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/unlike", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/like-status", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateReply(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, os.WriteFile(filepath.Join(f.mediaDir, "pic.png"), pngBytes(t), 0o644))

	f.gen.EXPECT().GenerateReply(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req ai.ReplyRequest) (string, error) {
			require.Equal(t, "sunset over the bay", req.Text)
			require.Len(t, req.Images, 1)
			require.Equal(t, "image/png", req.Images[0].MIME)
			return "what a view!", nil
		})

	f.stats.EXPECT().RecordReply(gomock.Any(), gomock.Any()).Return(nil)

	rec := doJSON(t, f.router(), http.MethodPost, "/reply", map[string]any{
		"post_uri":        "at://p1",
		"author_handle":   "alice",
		"post_text":       "sunset over the bay",
		"image_filenames": []string{"pic.png"},
		"image_alt_texts": []string{"a sunset"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp replyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, "what a view!", resp.Reply)
	require.Equal(t, 1, resp.ImagesProcessed)
}

func TestGenerateReply_Validation(t *testing.T) {
	f := newFixture(t)
	r := f.router()

	rec := doJSON(t, r, http.MethodPost, "/reply", map[string]any{
		"image_filenames": []string{"pic.png"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/reply", map[string]any{
		"post_uri": "at://p1",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Traversal в имени файла — отказ запросу целиком.
	rec = doJSON(t, r, http.MethodPost, "/reply", map[string]any{
		"post_uri":        "at://p1",
		"image_filenames": []string{"../secret.png"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateReply_DisabledWithoutGenerator(t *testing.T) {
	f := newFixture(t)
	f.h.AI = nil

	rec := doJSON(t, f.router(), http.MethodPost, "/reply", map[string]any{
		"post_uri":        "at://p1",
		"image_filenames": []string{"pic.png"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAIConfigEndpoints(t *testing.T) {
	f := newFixture(t)
	r := f.router()

	rec := doJSON(t, r, http.MethodGet, "/ai-config", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp aiConfigResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, ai.DefaultSettings().Persona, resp.Settings.Persona)

	rec = doJSON(t, r, http.MethodPost, "/ai-config",
		map[string]string{"persona": "a grumpy lighthouse keeper"})
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "a grumpy lighthouse keeper", resp.Settings.Persona)
	// Остальные поля не тронуты частичным обновлением.
	require.Equal(t, ai.DefaultSettings().Location, resp.Settings.Location)

	rec = doJSON(t, r, http.MethodPost, "/ai-config", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/ai-config/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, ai.DefaultSettings().Persona, resp.Settings.Persona)
}

func TestStatusAndUser(t *testing.T) {
	f := newFixture(t)
	r := f.router()

	rec := doJSON(t, r, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Equal(t, "ready", st.Status)
	require.Equal(t, "gallery_bot.bsky.social", st.Handle)
	require.True(t, st.ReplyFilter)
	require.True(t, st.AIReplies)

	rec = doJSON(t, r, http.MethodGet, "/user", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var u userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	require.Equal(t, "gallery_bot.bsky.social", u.Handle)
	require.Equal(t, "Gallery Bot", u.DisplayName)
	require.Equal(t, "bsky.social", u.Domain)
}

// sseEvents разбирает тело SSE-ответа в список событий.
func sseEvents(t *testing.T, body string) []service.Event {
	t.Helper()

	var events []service.Event
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev service.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func TestStreamPosts(t *testing.T) {
	f := newFixture(t)
	okMaterializer(f.mat)

	f.src.EXPECT().Timeline(gomock.Any(), "", 10).
		Return(page("cur1", cand("p1", "alice", 1), cand("p2", "bob", 1)), nil)

	rec := doJSON(t, f.router(), http.MethodGet, "/posts/stream?count=2&session_id=sess-s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := sseEvents(t, rec.Body.String())
	require.GreaterOrEqual(t, len(events), 2)

	require.Equal(t, service.EventStart, events[0].Type)

	last := events[len(events)-1]
	require.Equal(t, service.EventComplete, last.Type)
	require.Equal(t, 2, last.Count)
	require.Len(t, last.Posts, 2)
	require.Equal(t, 100, last.ProgressPercent)

	// Между start и терминальным — только progress/keepalive.
	for _, ev := range events[1 : len(events)-1] {
		require.Contains(t,
			[]service.EventType{service.EventProgress, service.EventKeepalive}, ev.Type)
	}
}

func TestStreamPosts_ErrorEvent(t *testing.T) {
	f := newFixture(t)

	f.src.EXPECT().Timeline(gomock.Any(), "", 10).
		Return(nil, bsky.ErrUnavailable)

	rec := doJSON(t, f.router(), http.MethodGet, "/posts/stream?count=1&session_id=sess-s2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	events := sseEvents(t, rec.Body.String())
	require.GreaterOrEqual(t, len(events), 2)

	last := events[len(events)-1]
	require.Equal(t, service.EventError, last.Type)
	require.NotEmpty(t, last.Error)
}

func TestStreamPosts_InvalidParams(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.router(), http.MethodGet, "/posts/stream?count=0", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
