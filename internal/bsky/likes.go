package bsky

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const likeCollection = "app.bsky.feed.like"

// LikeState — текущее состояние лайка поста с точки зрения аккаунта клиента.
type LikeState struct {
	// Liked — поставлен ли лайк нашим аккаунтом.
	Liked bool `json:"liked"`
	// LikeURI — at://-URI записи лайка (пустой, если Liked == false).
	LikeURI string `json:"like_uri,omitempty"`
	// LikeCount — общее число лайков поста.
	LikeCount int64 `json:"like_count"`
}

type createRecordRequest struct {
	Repo       string     `json:"repo"`
	Collection string     `json:"collection"`
	Record     likeRecord `json:"record"`
}

type likeRecord struct {
	Type      string      `json:"$type"`
	Subject   strongRef   `json:"subject"`
	CreatedAt time.Time   `json:"createdAt"`
}

type strongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type createRecordResponse struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type deleteRecordRequest struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	RKey       string `json:"rkey"`
}

// Like создаёт запись лайка для поста и возвращает её URI.
func (c *Client) Like(ctx context.Context, postURI, postCID string) (string, error) {
	const op = "bsky/likes/Like"

	req := createRecordRequest{
		Repo:       c.DID(),
		Collection: likeCollection,
		Record: likeRecord{
			Type:      likeCollection,
			Subject:   strongRef{URI: postURI, CID: postCID},
			CreatedAt: time.Now().UTC(),
		},
	}

	var resp createRecordResponse
	if err := c.authedPost(ctx, "com.atproto.repo.createRecord", req, &resp); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return resp.URI, nil
}

// Unlike удаляет запись лайка по её at://-URI.
func (c *Client) Unlike(ctx context.Context, likeURI string) error {
	const op = "bsky/likes/Unlike"

	repo, rkey, err := parseLikeURI(likeURI)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	req := deleteRecordRequest{
		Repo:       repo,
		Collection: likeCollection,
		RKey:       rkey,
	}

	if err := c.authedPost(ctx, "com.atproto.repo.deleteRecord", req, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

type getPostsResponse struct {
	Posts []postView `json:"posts"`
}

// LikeStatus возвращает состояние лайка поста через app.bsky.feed.getPosts
// (viewer-поля гидратируются под токеном нашего аккаунта).
func (c *Client) LikeStatus(ctx context.Context, postURI string) (*LikeState, error) {
	const op = "bsky/likes/LikeStatus"

	q := url.Values{}
	q.Set("uris", postURI)

	var resp getPostsResponse
	if err := c.authedGet(ctx, "app.bsky.feed.getPosts", q, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(resp.Posts) == 0 {
		return nil, fmt.Errorf("%s: %s: %w", op, postURI, ErrNotFound)
	}

	p := resp.Posts[0]
	st := &LikeState{LikeCount: p.LikeCount}
	if p.Viewer != nil && p.Viewer.Like != "" {
		st.Liked = true
		st.LikeURI = p.Viewer.Like
	}

	return st, nil
}

// parseLikeURI разбирает at://<did>/app.bsky.feed.like/<rkey>.
func parseLikeURI(uri string) (repo, rkey string, err error) {
	rest, ok := strings.CutPrefix(uri, "at://")
	if !ok {
		return "", "", errors.New("invalid like uri: no at:// prefix")
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != likeCollection || parts[0] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("invalid like uri: %q", uri)
	}

	return parts[0], parts[2], nil
}
