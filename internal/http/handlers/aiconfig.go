package handlers

import (
	"net/http"

	"github.com/pribylovaa/bsky-gallery/internal/ai"
	apierrors "github.com/pribylovaa/bsky-gallery/internal/errors"
	"github.com/pribylovaa/bsky-gallery/pkg/log"
)

type aiConfigResponse struct {
	Success  bool        `json:"success"`
	Message  string      `json:"message,omitempty"`
	Settings ai.Settings `json:"settings"`
}

// aiConfigUpdateRequest — частичное обновление: nil-поле не меняется.
type aiConfigUpdateRequest struct {
	Persona      *string `json:"persona"`
	ToneDo       *string `json:"tone_do"`
	ToneDont     *string `json:"tone_dont"`
	Location     *string `json:"location"`
	SampleReply1 *string `json:"sample_reply_1"`
	SampleReply2 *string `json:"sample_reply_2"`
	SampleReply3 *string `json:"sample_reply_3"`
}

func (req *aiConfigUpdateRequest) empty() bool {
	return req.Persona == nil && req.ToneDo == nil && req.ToneDont == nil &&
		req.Location == nil && req.SampleReply1 == nil &&
		req.SampleReply2 == nil && req.SampleReply3 == nil
}

func (req *aiConfigUpdateRequest) apply(s ai.Settings) ai.Settings {
	if req.Persona != nil {
		s.Persona = *req.Persona
	}
	if req.ToneDo != nil {
		s.ToneDo = *req.ToneDo
	}
	if req.ToneDont != nil {
		s.ToneDont = *req.ToneDont
	}
	if req.Location != nil {
		s.Location = *req.Location
	}
	if req.SampleReply1 != nil {
		s.SampleReply1 = *req.SampleReply1
	}
	if req.SampleReply2 != nil {
		s.SampleReply2 = *req.SampleReply2
	}
	if req.SampleReply3 != nil {
		s.SampleReply3 = *req.SampleReply3
	}
	return s
}

// GetAIConfig — GET /api/ai-config: текущие настройки генератора.
func (h *Handlers) GetAIConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, aiConfigResponse{
		Success:  true,
		Settings: h.AISettings.Current(),
	})
}

// UpdateAIConfig — POST /api/ai-config: частичное обновление настроек.
func (h *Handlers) UpdateAIConfig(w http.ResponseWriter, r *http.Request) {
	var req aiConfigUpdateRequest
	if err := decodeStrict(r, &req); err != nil {
		apierrors.WriteError(w, r, invalidArgument("malformed JSON body"))
		return
	}
	if req.empty() {
		apierrors.WriteError(w, r, invalidArgument("at least one setting must be provided"))
		return
	}

	next := req.apply(h.AISettings.Current())
	if err := h.AISettings.Update(next); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	log.From(r.Context()).Info("ai_config_updated")

	writeJSON(w, http.StatusOK, aiConfigResponse{
		Success:  true,
		Message:  "AI configuration updated",
		Settings: next,
	})
}

// ResetAIConfig — POST /api/ai-config/reset: откат к настройкам по умолчанию.
func (h *Handlers) ResetAIConfig(w http.ResponseWriter, r *http.Request) {
	s, err := h.AISettings.Reset()
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	log.From(r.Context()).Info("ai_config_reset")

	writeJSON(w, http.StatusOK, aiConfigResponse{
		Success:  true,
		Message:  "AI configuration reset to defaults",
		Settings: s,
	})
}
