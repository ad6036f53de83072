package handlers

import (
	"net/http"

	apierrors "github.com/pribylovaa/bsky-gallery/internal/errors"
	"github.com/pribylovaa/bsky-gallery/pkg/log"
)

type likeRequest struct {
	PostURI string `json:"post_uri"`
	PostCID string `json:"post_cid"`
}

type likeResponse struct {
	Success bool   `json:"success"`
	Liked   bool   `json:"liked"`
	LikeURI string `json:"like_uri,omitempty"`
}

type unlikeRequest struct {
	LikeURI string `json:"like_uri"`
}

type likeStatusRequest struct {
	PostURI string `json:"post_uri"`
}

type likeStatusResponse struct {
	Success   bool   `json:"success"`
	Liked     bool   `json:"liked"`
	LikeURI   string `json:"like_uri,omitempty"`
	LikeCount int64  `json:"like_count"`
}

// Like — POST /api/like: ставит лайк посту от имени аккаунта сервиса.
func (h *Handlers) Like(w http.ResponseWriter, r *http.Request) {
	var req likeRequest
	if err := decodeStrict(r, &req); err != nil {
		apierrors.WriteError(w, r, invalidArgument("malformed JSON body"))
		return
	}
	if req.PostURI == "" || req.PostCID == "" {
		apierrors.WriteError(w, r, invalidArgument("post_uri and post_cid are required"))
		return
	}

	likeURI, err := h.Likes.Like(r.Context(), req.PostURI, req.PostCID)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	log.From(r.Context()).Info("post_liked", "post_uri", req.PostURI)

	writeJSON(w, http.StatusOK, likeResponse{
		Success: true,
		Liked:   true,
		LikeURI: likeURI,
	})
}

// Unlike — POST /api/unlike: снимает ранее поставленный лайк.
func (h *Handlers) Unlike(w http.ResponseWriter, r *http.Request) {
	var req unlikeRequest
	if err := decodeStrict(r, &req); err != nil {
		apierrors.WriteError(w, r, invalidArgument("malformed JSON body"))
		return
	}
	if req.LikeURI == "" {
		apierrors.WriteError(w, r, invalidArgument("like_uri is required"))
		return
	}

	if err := h.Likes.Unlike(r.Context(), req.LikeURI); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	log.From(r.Context()).Info("post_unliked", "like_uri", req.LikeURI)

	writeJSON(w, http.StatusOK, likeResponse{
		Success: true,
		Liked:   false,
	})
}

// LikeStatus — POST /api/like-status: актуальное состояние лайка поста.
func (h *Handlers) LikeStatus(w http.ResponseWriter, r *http.Request) {
	var req likeStatusRequest
	if err := decodeStrict(r, &req); err != nil {
		apierrors.WriteError(w, r, invalidArgument("malformed JSON body"))
		return
	}
	if req.PostURI == "" {
		apierrors.WriteError(w, r, invalidArgument("post_uri is required"))
		return
	}

	state, err := h.Likes.LikeStatus(r.Context(), req.PostURI)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, likeStatusResponse{
		Success:   true,
		Liked:     state.Liked,
		LikeURI:   state.LikeURI,
		LikeCount: state.LikeCount,
	})
}
