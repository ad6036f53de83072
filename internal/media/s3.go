package media

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/pribylovaa/bsky-gallery/internal/config"
	"github.com/pribylovaa/bsky-gallery/internal/models"
)

// S3 кладёт изображения в бакет MinIO/S3 и возвращает presigned URL,
// так что фронтенд ходит за картинками напрямую в хранилище.
type S3 struct {
	client *minio.Client
	bucket string
	cfg    config.MediaConfig
	http   *http.Client
}

// NewS3 подключается к S3 и создаёт бакет, если его ещё нет.
func NewS3(ctx context.Context, cfg config.MediaConfig, hc *http.Client) (*S3, error) {
	const op = "media/s3/NewS3"

	if hc == nil {
		hc = http.DefaultClient
	}

	client, err := minio.New(cfg.S3.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3.RootUser, cfg.S3.RootPassword, ""),
		Secure: cfg.S3.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	exists, err := client.BucketExists(ctx, cfg.S3.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%s: bucket_exists: %w", op, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.S3.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("%s: make_bucket: %w", op, err)
		}
	}

	return &S3{
		client: client,
		bucket: cfg.S3.Bucket,
		cfg:    cfg,
		http:   hc,
	}, nil
}

// Materialize скачивает изображение, загружает его в бакет и возвращает
// presigned GET-ссылку со сроком жизни из конфигурации.
func (s *S3) Materialize(ctx context.Context, ref models.ImageRef) (models.Image, error) {
	const op = "media/s3/Materialize"

	name, err := sanitizeName(ref.Name)
	if err != nil {
		return models.Image{}, fmt.Errorf("%s: %w", op, err)
	}

	data, imgCfg, err := fetch(ctx, s.http, ref.URL, s.cfg.MaxBytes)
	if err != nil {
		return models.Image{}, fmt.Errorf("%s: %w", op, err)
	}

	contentType := http.DetectContentType(data)

	_, err = s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return models.Image{}, fmt.Errorf("%s: put %s: %w", op, name, err)
	}

	signed, err := s.client.PresignedGetObject(ctx, s.bucket, name, s.cfg.S3.PresignTTL, nil)
	if err != nil {
		return models.Image{}, fmt.Errorf("%s: presign %s: %w", op, name, err)
	}

	return models.Image{
		URL:      signed.String(),
		Alt:      ref.Alt,
		Filename: name,
		Width:    imgCfg.Width,
		Height:   imgCfg.Height,
		ByteSize: int64(len(data)),
	}, nil
}
