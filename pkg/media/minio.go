package media

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"github.com/short-video/short-video/internal/config"
)

type MinioStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

func NewMinioStore(ctx context.Context, cfg *config.MediaConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create minio client")
	}

	// 检查存储桶是否存在，不存在则创建
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to check bucket")
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, errors.WithMessage(err, "failed to create bucket")
		}
	}

	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}

	return &MinioStore{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

func (s *MinioStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", errors.WithMessagef(err, "failed to put object %s", key)
	}
	return s.baseURL + "/" + key, nil
}

func (s *MinioStore) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return errors.WithMessagef(err, "failed to remove object %s", key)
	}
	return nil
}
