package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/pribylovaa/bsky-gallery/internal/errors"
)

// ServeImage — GET /api/image/{filename}: раздача материализованных
// изображений disk-бэкенда. Для S3-бэкенда фронт ходит по presigned URL
// напрямую, этот маршрут отвечает 404.
func (h *Handlers) ServeImage(w http.ResponseWriter, r *http.Request) {
	if h.Images == nil {
		http.NotFound(w, r)
		return
	}

	name := chi.URLParam(r, "filename")
	if name == "" {
		apierrors.WriteError(w, r, invalidArgument("empty filename"))
		return
	}

	// Path отклоняет traversal-имена и отсутствующие файлы
	// (media.ErrBadName -> 400, os.ErrNotExist -> 404).
	path, err := h.Images.Path(name)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	http.ServeFile(w, r, path)
}
