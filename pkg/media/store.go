package media

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/short-video/short-video/internal/config"
)

// ObjectStore 对象存储后端
type ObjectStore interface {
	// Put 上传对象，返回可公开访问的 URL
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Remove(ctx context.Context, key string) error
}

func NewObjectStore(ctx context.Context, cfg *config.MediaConfig) (ObjectStore, error) {
	switch cfg.Driver {
	case "minio":
		return NewMinioStore(ctx, cfg)
	case "s3":
		return NewS3Store(cfg)
	default:
		return nil, errors.Errorf("unknown media driver %q", cfg.Driver)
	}
}
