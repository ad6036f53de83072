package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/pribylovaa/bsky-gallery/internal/config"
)

var (
	// ErrEmptyReply — модель вернула пустой ответ.
	ErrEmptyReply = errors.New("empty reply from model")
)

// ImagePart — одно изображение поста для мультимодального запроса.
type ImagePart struct {
	Data []byte
	MIME string
}

// ReplyRequest — материал для генерации ответа на пост.
type ReplyRequest struct {
	// Text — подпись поста; может быть пустой.
	Text string
	// AltTexts — alt-тексты изображений (непустые).
	AltTexts []string
	// Images — скачанные изображения поста.
	Images []ImagePart
}

// Generator порождает текст ответа на пост по подписи и изображениям.
type Generator interface {
	GenerateReply(ctx context.Context, req ReplyRequest) (string, error)
}

// Gemini — Generator поверх Google GenAI.
type Gemini struct {
	client   *genai.Client
	model    string
	settings *Manager
}

// NewGemini создаёт клиент Gemini API.
func NewGemini(ctx context.Context, cfg config.AIConfig, settings *Manager) (*Gemini, error) {
	const op = "ai/gemini/NewGemini"

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: api key is empty", op)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Gemini{
		client:   client,
		model:    cfg.Model,
		settings: settings,
	}, nil
}

// GenerateReply собирает мультимодальный запрос (хедер + изображения)
// с системным промптом текущей персоны и возвращает текст ответа.
func (g *Gemini) GenerateReply(ctx context.Context, req ReplyRequest) (string, error) {
	const op = "ai/gemini/GenerateReply"

	persona := g.settings.Current()

	parts := []*genai.Part{
		genai.NewPartFromText(persona.BuildUserHeader(req.Text, req.AltTexts, len(req.Images))),
	}
	for _, img := range req.Images {
		mime := img.MIME
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, genai.NewPartFromBytes(img.Data, mime))
	}

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(persona.BuildSystemPrompt(), genai.RoleUser),
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%s: %w", op, ErrEmptyReply)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}

	reply := strings.TrimSpace(sb.String())
	if reply == "" {
		return "", fmt.Errorf("%s: %w", op, ErrEmptyReply)
	}

	return reply, nil
}
