package handlers

import (
	"net/http"
	"strings"
	"time"
)

type statusResponse struct {
	Status         string `json:"status"`
	Handle         string `json:"handle"`
	MediaBackend   string `json:"media_backend"`
	SessionBackend string `json:"session_backend"`
	ReplyFilter    bool   `json:"reply_filter"`
	AIReplies      bool   `json:"ai_replies"`
	TimelineSource string `json:"timeline_source"`
	Timestamp      string `json:"timestamp"`
}

type userResponse struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
	Domain      string `json:"domain"`
}

// Status — GET /api/status: снимок состояния сервиса для фронта.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:         "ready",
		Handle:         h.Likes.Handle(),
		MediaBackend:   h.Cfg.Media.Backend,
		SessionBackend: h.Cfg.Session.Backend,
		ReplyFilter:    h.Stats != nil,
		AIReplies:      h.AI != nil,
		TimelineSource: timelineSource,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	})
}

// User — GET /api/user: сведения об аккаунте, от имени которого
// работает сервис.
func (h *Handlers) User(w http.ResponseWriter, r *http.Request) {
	handle := h.Likes.Handle()

	name := handle
	domain := "bsky.social"
	if i := strings.IndexByte(handle, '.'); i > 0 {
		name = handle[:i]
		domain = handle[i+1:]
	}

	writeJSON(w, http.StatusOK, userResponse{
		Handle:      handle,
		DisplayName: titleWords(strings.ReplaceAll(name, "_", " ")),
		Domain:      domain,
	})
}

// titleWords — первая буква каждого слова в верхний регистр (ASCII).
func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if w[0] >= 'a' && w[0] <= 'z' {
			words[i] = string(w[0]-'a'+'A') + w[1:]
		}
	}
	return strings.Join(words, " ")
}
