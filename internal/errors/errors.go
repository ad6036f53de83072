// errors стандартизирует ответы об ошибках HTTP-слоя gallery-сервиса.
// На вход он принимает ошибку (сентинелы доменных пакетов, оборачиваемые
// через %w), а на выход даёт:
//   - корректный HTTP-статус;
//   - краткое безопасное message без утечки деталей.
//
// Источник истинности по маппингу: сентинельные ошибки пакетов
// bsky / service / session / storage / media.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/pribylovaa/bsky-gallery/internal/bsky"
	"github.com/pribylovaa/bsky-gallery/internal/media"
	"github.com/pribylovaa/bsky-gallery/internal/service"
	"github.com/pribylovaa/bsky-gallery/internal/session"
	"github.com/pribylovaa/bsky-gallery/internal/storage"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// APIError — единый формат для фронта.
// Code — короткий стабильный код для машиночитаемой обработки на FE.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует входную ошибку в HTTP-статус и унифицированный
// ответ для фронта.
//
// Поведение:
//   - err == nil - это программная ошибка вызова: возвращаем 500/internal,
//     чтобы не послать "200 OK" с телом ошибки и не маскировать баг.
//   - известный сентинел в цепочке - соответствующий статус;
//   - прочее - 500/internal (без утечки деталей).
func ToHTTP(err error) (int, ErrorResponse) {
	httpStatus, code, msg := baseFromErr(err)
	return httpStatus, ErrorResponse{
		Error: APIError{
			Code:    code,
			Message: msg,
		},
	}
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	// Прокидываем request_id для фронта, чтобы он мог репортить баги с привязкой.
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// baseFromErr — базовый маппинг доменных сентинелов -> HTTP/FE-код/сообщение:
//   - ErrInvalidArgument / ErrBadName (битые входные/имя файла) -> 400
//   - bsky.ErrNotFound / os.ErrNotExist -> 404
//   - storage.ErrAlreadyExists (повторный ответ на пост) -> 409
//   - session.ErrLocked (по сессии уже идёт выборка) -> 409
//   - bsky.ErrUnauthenticated -> 401
//   - bsky.ErrRateLimited -> 429
//   - bsky.ErrUnavailable -> 503
//   - context.Canceled -> 499 (клиент закрыл соединение)
//   - context.DeadlineExceeded -> 504
//   - прочее -> 500/internal
func baseFromErr(err error) (int, string, string) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, "internal", "internal error"
	case errors.Is(err, service.ErrInvalidArgument), errors.Is(err, media.ErrBadName):
		return http.StatusBadRequest, "invalid_argument", "invalid argument"
	case errors.Is(err, bsky.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound, "not_found", "not found"
	case errors.Is(err, storage.ErrAlreadyExists):
		return http.StatusConflict, "already_exists", "already exists"
	case errors.Is(err, session.ErrLocked):
		return http.StatusConflict, "session_busy", "another fetch for this session is in flight"
	case errors.Is(err, bsky.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated", "unauthenticated"
	case errors.Is(err, bsky.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited", "rate limited, slow down"
	case errors.Is(err, bsky.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable", "source unavailable"
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "canceled", "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}
