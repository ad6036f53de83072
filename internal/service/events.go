package service

import "github.com/pribylovaa/bsky-gallery/internal/models"

// EventType — тип события прогресса выборки.
type EventType string

const (
	// EventStart — начало прогона, ровно один раз.
	EventStart EventType = "start"
	// EventProgress — после каждой обработанной страницы.
	EventProgress EventType = "progress"
	// EventKeepalive — пульс транспорта при простое; состояния не несёт.
	EventKeepalive EventType = "keepalive"
	// EventComplete — терминальное событие с итоговым списком постов.
	EventComplete EventType = "complete"
	// EventError — терминальное событие вместо complete.
	EventError EventType = "error"
)

// Event — одно событие прогресса; сериализуется в JSON как есть
// (по одному объекту на SSE-сообщение).
//
// Гарантия порядка для одного прогона: ноль и более progress, затем ровно
// одно терминальное событие (complete или error), после него — ничего.
type Event struct {
	Type    EventType `json:"type"`
	Message string    `json:"message,omitempty"`

	// Счётчики прогона; для progress "posts_checked" не убывает.
	PostsFound      int `json:"posts_found"`
	PostsChecked    int `json:"posts_checked"`
	CurrentBatch    int `json:"current_batch"`
	ProgressPercent int `json:"progress_percent"`

	// Только для complete.
	Posts       []models.Post `json:"posts,omitempty"`
	Count       int           `json:"count,omitempty"`
	IsFetchMore bool          `json:"is_fetch_more,omitempty"`

	// Только для error.
	Error string `json:"error,omitempty"`
}

// Sink принимает события прогона; может быть NopSink.
type Sink func(Event)

// NopSink — заглушка для вызовов без потоковой выдачи.
func NopSink(Event) {}

// percent — доля достигнутой цели, 0–100.
func percent(accepted, target int) int {
	if target <= 0 {
		return 100
	}
	p := accepted * 100 / target
	if p > 100 {
		p = 100
	}
	return p
}
