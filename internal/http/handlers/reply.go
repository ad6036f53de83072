package handlers

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/pribylovaa/bsky-gallery/internal/ai"
	apierrors "github.com/pribylovaa/bsky-gallery/internal/errors"
	"github.com/pribylovaa/bsky-gallery/internal/storage"
	"github.com/pribylovaa/bsky-gallery/pkg/log"
)

type replyRequest struct {
	PostURI        string   `json:"post_uri"`
	AuthorHandle   string   `json:"author_handle"`
	PostText       string   `json:"post_text"`
	ImageFilenames []string `json:"image_filenames"`
	ImageAltTexts  []string `json:"image_alt_texts"`
}

type replyResponse struct {
	Success         bool   `json:"success"`
	Reply           string `json:"reply"`
	ImagesProcessed int    `json:"images_processed"`
}

// GenerateReply — POST /api/reply: генерация текста ответа по тексту
// поста и его изображениям. Публикация ответа в Bluesky остаётся за
// пользователем; здесь только генерация и учёт события в аналитике.
func (h *Handlers) GenerateReply(w http.ResponseWriter, r *http.Request) {
	lg := log.From(r.Context())

	if h.AI == nil {
		apierrors.WriteError(w, r, invalidArgument("reply generation is disabled: no AI API key configured"))
		return
	}

	var req replyRequest
	if err := decodeStrict(r, &req); err != nil {
		apierrors.WriteError(w, r, invalidArgument("malformed JSON body"))
		return
	}
	if req.PostURI == "" {
		apierrors.WriteError(w, r, invalidArgument("post_uri is required"))
		return
	}
	if len(req.ImageFilenames) == 0 {
		apierrors.WriteError(w, r, invalidArgument("image_filenames is required"))
		return
	}

	images, err := h.loadImages(req.ImageFilenames)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	if len(images) == 0 {
		apierrors.WriteError(w, r, invalidArgument("no valid images found"))
		return
	}

	reply, err := h.AI.GenerateReply(r.Context(), ai.ReplyRequest{
		Text:     req.PostText,
		AltTexts: req.ImageAltTexts,
		Images:   images,
	})
	if err != nil {
		lg.Error("reply_generation_failed",
			"post_uri", req.PostURI,
			"err", err.Error())
		apierrors.WriteError(w, r, err)
		return
	}

	if h.Stats != nil && req.AuthorHandle != "" {
		ev := storage.ReplyEvent{
			PostURI:      req.PostURI,
			AuthorHandle: req.AuthorHandle,
			CreatedAt:    time.Now().UTC(),
		}
		if err := h.Stats.RecordReply(r.Context(), ev); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				lg.Info("reply_event_duplicate", "post_uri", req.PostURI)
			} else {
				// Аналитика не должна ронять сам ответ.
				lg.Warn("reply_event_record_failed",
					"post_uri", req.PostURI,
					"err", err.Error())
			}
		}
	}

	lg.Info("reply_generated",
		"post_uri", req.PostURI,
		"images", len(images),
		"len", len(reply))

	writeJSON(w, http.StatusOK, replyResponse{
		Success:         true,
		Reply:           reply,
		ImagesProcessed: len(images),
	})
}

// loadImages читает локальные файлы изображений по их именам.
// Имя с traversal или несуществующий файл — ошибка запроса целиком,
// а не молчаливый пропуск.
func (h *Handlers) loadImages(names []string) ([]ai.ImagePart, error) {
	if h.Images == nil {
		return nil, invalidArgument("local image store is not configured")
	}

	parts := make([]ai.ImagePart, 0, len(names))
	for _, name := range names {
		path, err := h.Images.Path(name)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		parts = append(parts, ai.ImagePart{
			Data: data,
			MIME: http.DetectContentType(data),
		})
	}
	return parts, nil
}
