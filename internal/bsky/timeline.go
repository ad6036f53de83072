package bsky

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pribylovaa/bsky-gallery/internal/models"
)

// Wire-структуры app.bsky.feed.getTimeline. Оставляем только поля,
// которые реально используем; остальное JSON-декодер игнорирует.
type timelineResponse struct {
	Cursor string     `json:"cursor"`
	Feed   []feedItem `json:"feed"`
}

type feedItem struct {
	Post   postView    `json:"post"`
	Reason *feedReason `json:"reason"`
}

type feedReason struct {
	Type string `json:"$type"`
}

type postView struct {
	URI         string      `json:"uri"`
	CID         string      `json:"cid"`
	Author      authorView  `json:"author"`
	Record      postRecord  `json:"record"`
	Embed       *embedView  `json:"embed"`
	ReplyCount  int64       `json:"replyCount"`
	RepostCount int64       `json:"repostCount"`
	LikeCount   int64       `json:"likeCount"`
	IndexedAt   time.Time   `json:"indexedAt"`
	Viewer      *viewerView `json:"viewer"`
}

type authorView struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
}

type postRecord struct {
	Text string `json:"text"`
}

type embedView struct {
	Type   string      `json:"$type"`
	Images []imageView `json:"images"`
	// Для app.bsky.embed.recordWithMedia#view картинки лежат уровнем ниже.
	Media *embedView `json:"media"`
}

type imageView struct {
	Thumb    string `json:"thumb"`
	Fullsize string `json:"fullsize"`
	Alt      string `json:"alt"`
}

type viewerView struct {
	Like string `json:"like"`
}

// Timeline возвращает одну страницу home-таймлайна. Пустой cursor в ответе
// означает, что таймлайн исчерпан.
func (c *Client) Timeline(ctx context.Context, cursor string, limit int) (*models.TimelinePage, error) {
	const op = "bsky/timeline/Timeline"

	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var resp timelineResponse
	if err := c.authedGet(ctx, "app.bsky.feed.getTimeline", q, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	page := &models.TimelinePage{
		Cursor:  resp.Cursor,
		Entries: make([]models.Candidate, 0, len(resp.Feed)),
	}
	for _, item := range resp.Feed {
		page.Entries = append(page.Entries, toCandidate(item))
	}

	return page, nil
}

func toCandidate(item feedItem) models.Candidate {
	p := item.Post

	cand := models.Candidate{
		URI: p.URI,
		CID: p.CID,
		Author: models.Author{
			Handle:      p.Author.Handle,
			DisplayName: p.Author.DisplayName,
			Avatar:      p.Author.Avatar,
		},
		Text:        p.Record.Text,
		IndexedAt:   p.IndexedAt,
		ReplyCount:  p.ReplyCount,
		RepostCount: p.RepostCount,
		LikeCount:   p.LikeCount,
		Repost:      item.Reason != nil && strings.HasSuffix(item.Reason.Type, "reasonRepost"),
	}

	views := embedImages(p.Embed)
	if len(views) == 0 {
		return cand
	}

	rkey := recordKey(p.URI)
	cand.Refs = make([]models.ImageRef, 0, len(views))
	for i, v := range views {
		src := v.Fullsize
		if src == "" {
			src = v.Thumb
		}
		if src == "" {
			continue
		}
		cand.Refs = append(cand.Refs, models.ImageRef{
			URL:  src,
			Alt:  v.Alt,
			Name: fmt.Sprintf("image_%s_%d.%s", rkey, i, imageExt(src)),
		})
	}

	return cand
}

// embedImages достаёт image-view из embed поста, включая recordWithMedia.
func embedImages(e *embedView) []imageView {
	if e == nil {
		return nil
	}
	if strings.HasPrefix(e.Type, "app.bsky.embed.images") {
		return e.Images
	}
	if strings.HasPrefix(e.Type, "app.bsky.embed.recordWithMedia") && e.Media != nil {
		return embedImages(e.Media)
	}
	return nil
}

// recordKey — последний сегмент at://-URI (rkey записи).
func recordKey(uri string) string {
	if i := strings.LastIndexByte(uri, '/'); i >= 0 {
		return uri[i+1:]
	}
	return uri
}

// imageExt берёт формат из CDN-URL вида ...@jpeg; по умолчанию jpeg.
func imageExt(src string) string {
	if i := strings.LastIndexByte(src, '@'); i >= 0 && i < len(src)-1 {
		ext := src[i+1:]
		if !strings.ContainsAny(ext, "/?&") {
			return ext
		}
	}
	return "jpeg"
}
