// models содержит доменные сущности gallery-сервиса.
// Эти типы используются слоями бизнес-логики, клиентом Bluesky,
// материализацией медиа и транспортом.
package models

import "time"

// Author — автор поста в Bluesky.
type Author struct {
	// Handle — уникальный хэндл аккаунта (например, alice.bsky.social).
	Handle string `json:"handle"`
	// DisplayName — отображаемое имя; может быть пустым.
	DisplayName string `json:"display_name"`
	// Avatar — URL аватара; может быть пустым.
	Avatar string `json:"avatar,omitempty"`
}

// ImageRef — ссылка на ещё не скачанное изображение из embed поста.
//
// Name — детерминированное имя файла, которое получит материализованное
// изображение (формируется из rkey поста и индекса картинки).
type ImageRef struct {
	URL  string
	Alt  string
	Name string
}

// Image — материализованное изображение: скачано и сохранено локально
// (или в S3), метаданные известны. После создания не изменяется.
type Image struct {
	// URL — исходный fullsize-URL у источника.
	URL string `json:"url"`
	// Alt — alt-текст, проставленный автором; может быть пустым.
	Alt string `json:"alt"`
	// Filename — имя файла/ключ объекта в локальном хранилище.
	Filename string `json:"filename"`
	// Width/Height — размеры в пикселях (0, если формат не распознан).
	Width  int `json:"width"`
	Height int `json:"height"`
	// ByteSize — размер скачанного файла в байтах.
	ByteSize int64 `json:"byte_size"`
}

// Candidate — нормализованная запись таймлайна до материализации медиа.
//
// Инварианты:
//   - URI глобально уникален (at://...), по нему выполняется де-дупликация;
//   - кандидат без Refs никогда не отдаётся клиенту (продукт — только картинки);
//   - после конструирования не мутируется.
type Candidate struct {
	URI         string
	CID         string
	Author      Author
	Text        string
	IndexedAt   time.Time
	ReplyCount  int64
	RepostCount int64
	LikeCount   int64
	// Repost — запись попала в таймлайн как репост подписки.
	Repost bool
	Refs   []ImageRef
}

// Post — принятый агрегатором пост с материализованными изображениями.
type Post struct {
	URI         string    `json:"uri"`
	CID         string    `json:"cid"`
	Author      Author    `json:"author"`
	Text        string    `json:"text"`
	IndexedAt   time.Time `json:"indexed_at"`
	ReplyCount  int64     `json:"reply_count"`
	RepostCount int64     `json:"repost_count"`
	LikeCount   int64     `json:"like_count"`
	Repost      bool      `json:"repost"`
	Images      []Image   `json:"images"`
}

// TimelinePage — страница таймлайна от источника.
//
// Cursor == "" означает, что источник исчерпан.
type TimelinePage struct {
	Entries []Candidate
	Cursor  string
}

// ReplyCountTable — отображение «хэндл автора -> число наших прошлых
// ответов ему». Для агрегатора таблица строго read-only в рамках одного
// прохода фильтрации.
type ReplyCountTable map[string]int
