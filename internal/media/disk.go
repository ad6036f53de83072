package media

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pribylovaa/bsky-gallery/internal/config"
	"github.com/pribylovaa/bsky-gallery/internal/models"
)

// Disk сохраняет изображения в локальный каталог и отдаёт их
// через endpoint /api/image/<filename>.
type Disk struct {
	dir      string
	maxBytes int64
	http     *http.Client
}

// NewDisk создаёт каталог и возвращает дисковый материализатор.
func NewDisk(cfg config.MediaConfig, hc *http.Client) (*Disk, error) {
	const op = "media/disk/NewDisk"

	if hc == nil {
		hc = http.DefaultClient
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("%s: mkdir %s: %w", op, cfg.Dir, err)
	}

	return &Disk{
		dir:      cfg.Dir,
		maxBytes: cfg.MaxBytes,
		http:     hc,
	}, nil
}

// Materialize скачивает изображение в каталог. Имена детерминированы
// (rkey поста + индекс), поэтому повторная материализация того же поста
// переиспользует уже скачанный файл.
func (d *Disk) Materialize(ctx context.Context, ref models.ImageRef) (models.Image, error) {
	const op = "media/disk/Materialize"

	name, err := sanitizeName(ref.Name)
	if err != nil {
		return models.Image{}, fmt.Errorf("%s: %w", op, err)
	}

	path := filepath.Join(d.dir, name)

	if img, err := d.fromFile(path, name, ref.Alt); err == nil {
		return img, nil
	}

	data, imgCfg, err := fetch(ctx, d.http, ref.URL, d.maxBytes)
	if err != nil {
		return models.Image{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return models.Image{}, fmt.Errorf("%s: write %s: %w", op, name, err)
	}

	return models.Image{
		URL:      "/api/image/" + name,
		Alt:      ref.Alt,
		Filename: name,
		Width:    imgCfg.Width,
		Height:   imgCfg.Height,
		ByteSize: int64(len(data)),
	}, nil
}

// fromFile собирает модель из уже скачанного файла.
func (d *Disk) fromFile(path, name, alt string) (models.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Image{}, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return models.Image{}, err
	}

	imgCfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return models.Image{}, err
	}

	return models.Image{
		URL:      "/api/image/" + name,
		Alt:      alt,
		Filename: name,
		Width:    imgCfg.Width,
		Height:   imgCfg.Height,
		ByteSize: st.Size(),
	}, nil
}

// Path возвращает абсолютный путь к скачанному файлу для отдачи клиенту.
// Имя проверяется от выхода за пределы каталога.
func (d *Disk) Path(name string) (string, error) {
	const op = "media/disk/Path"

	clean, err := sanitizeName(name)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	path := filepath.Join(d.dir, clean)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%s: %s: %w", op, clean, os.ErrNotExist)
	}

	return path, nil
}
