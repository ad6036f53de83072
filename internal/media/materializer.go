// media — материализация изображений: скачивание картинок постов с CDN
// и выдача URL, по которому их заберёт фронтенд. Два бэкенда: локальный
// диск (URL через наш /api/image) и S3/MinIO (presigned URL).
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"

	// Регистрация декодеров для image.DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/pribylovaa/bsky-gallery/internal/models"
)

var (
	// ErrDownloadFailed — изображение не скачалось или не распозналось;
	// пост с таким изображением отбрасывается целиком.
	ErrDownloadFailed = errors.New("image download failed")
	// ErrBadName — имя файла содержит недопустимые символы.
	ErrBadName = errors.New("bad image name")
)

// Materializer скачивает изображение по ссылке из поста и возвращает
// готовую к отдаче модель с локальным/подписанным URL и размерами.
type Materializer interface {
	Materialize(ctx context.Context, ref models.ImageRef) (models.Image, error)
}

// fetch скачивает изображение, ограничивая размер maxBytes, и снимает
// размеры через DecodeConfig. Любая сетевая или декодерная проблема
// заворачивается в ErrDownloadFailed.
func fetch(ctx context.Context, hc *http.Client, src string, maxBytes int64) ([]byte, image.Config, error) {
	const op = "media/materializer/fetch"

	var zero image.Config

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, zero, fmt.Errorf("%s: %w: %v", op, ErrDownloadFailed, err)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, zero, fmt.Errorf("%s: %w: %v", op, ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, zero, fmt.Errorf("%s: %w: status=%d", op, ErrDownloadFailed, resp.StatusCode)
	}

	// +1 байт, чтобы отличить ровно maxBytes от превышения.
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, zero, fmt.Errorf("%s: %w: %v", op, ErrDownloadFailed, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, zero, fmt.Errorf("%s: %w: larger than %d bytes", op, ErrDownloadFailed, maxBytes)
	}

	imgCfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, zero, fmt.Errorf("%s: %w: decode: %v", op, ErrDownloadFailed, err)
	}

	return data, imgCfg, nil
}

// sanitizeName проверяет имя файла изображения: только простые имена
// без разделителей пути.
func sanitizeName(name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", ErrBadName
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrBadName, name)
	}
	return name, nil
}
