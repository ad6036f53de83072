// ai — генерация коротких ответов на посты по подписи и изображениям,
// плюс редактируемая из UI «персона» генератора с файловой персистентностью.
package ai

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Settings — настройки персоны генератора ответов. Все поля свободный
// текст, пустые секции в промпт не попадают.
type Settings struct {
	Persona      string `json:"persona"`
	ToneDo       string `json:"tone_do"`
	ToneDont     string `json:"tone_dont"`
	Location     string `json:"location"`
	SampleReply1 string `json:"sample_reply_1"`
	SampleReply2 string `json:"sample_reply_2"`
	SampleReply3 string `json:"sample_reply_3"`
}

// DefaultSettings — минимальная рабочая персона.
func DefaultSettings() Settings {
	return Settings{
		Persona: "You are a witty social media persona.",
		ToneDo:  "Be positive, engaging, and concise.",
	}
}

// BuildSystemPrompt собирает системный промпт из непустых секций персоны.
func (s Settings) BuildSystemPrompt() string {
	var parts []string

	if p := strings.TrimSpace(s.Persona); p != "" {
		parts = append(parts, "PERSONA: "+p)
	}
	if l := strings.TrimSpace(s.Location); l != "" {
		parts = append(parts, "LOCATION: "+l)
	}

	var tone []string
	if d := strings.TrimSpace(s.ToneDo); d != "" {
		tone = append(tone, "DO: "+d)
	}
	if d := strings.TrimSpace(s.ToneDont); d != "" {
		tone = append(tone, "DON'T: "+d)
	}
	if len(tone) > 0 {
		parts = append(parts, "TONE GUIDELINES:\n"+strings.Join(tone, "\n\n"))
	}

	var samples []string
	for _, sample := range []string{s.SampleReply1, s.SampleReply2, s.SampleReply3} {
		if v := strings.TrimSpace(sample); v != "" {
			samples = append(samples, v)
		}
	}
	if len(samples) > 0 {
		parts = append(parts, "WRITING STYLE REFERENCE: Here are some approved sample replies that demonstrate the desired tone and style:\n"+strings.Join(samples, "\n\n"))
	}

	parts = append(parts, "TASK: Given a Bluesky post (caption) and its images, write a short, funny, topical reply. Keep it under 220 characters unless absolutely necessary. Avoid hashtags unless they enhance the joke.")

	return strings.Join(parts, "\n\n")
}

// BuildUserHeader собирает пользовательскую часть запроса: подпись поста,
// alt-тексты и число изображений.
func (s Settings) BuildUserHeader(postText string, altTexts []string, imageCount int) string {
	var parts []string

	if postText != "" {
		parts = append(parts, "Bluesky post caption: "+postText)
	}
	if len(altTexts) > 0 {
		parts = append(parts, "Accessibility alt texts:")
		parts = append(parts, altTexts...)
	}
	parts = append(parts, "There are "+strconv.Itoa(imageCount)+" image(s). Analyze the images and the text together and craft one funny, hyper-relevant reply.")

	return strings.Join(parts, "\n\n")
}

// Manager хранит настройки персоны в JSON-файле и отдаёт их потокобезопасно.
type Manager struct {
	path string

	mu  sync.RWMutex
	cur Settings
}

// NewManager загружает настройки из файла; отсутствующий или битый файл
// заменяется дефолтами без ошибки.
func NewManager(path string) *Manager {
	m := &Manager{
		path: path,
		cur:  DefaultSettings(),
	}

	if data, err := os.ReadFile(path); err == nil {
		var loaded Settings
		if json.Unmarshal(data, &loaded) == nil {
			m.cur = loaded
		}
	}

	return m
}

// Current возвращает копию текущих настроек.
func (m *Manager) Current() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

// Update заменяет настройки и сохраняет их в файл.
func (m *Manager) Update(s Settings) error {
	const op = "ai/settings/Update"

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.persist(s); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	m.cur = s

	return nil
}

// Reset возвращает дефолтную персону и сохраняет её.
func (m *Manager) Reset() (Settings, error) {
	const op = "ai/settings/Reset"

	m.mu.Lock()
	defer m.mu.Unlock()

	def := DefaultSettings()
	if err := m.persist(def); err != nil {
		return Settings{}, fmt.Errorf("%s: %w", op, err)
	}
	m.cur = def

	return def, nil
}

// persist — под m.mu: атомарная запись через временный файл.
func (m *Manager) persist(s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tmp, m.path)
}
