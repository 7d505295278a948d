package media

import (
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"
	"github.com/short-video/short-video/internal/config"
)

type S3Store struct {
	uploader *s3manager.Uploader
	client   *s3.S3
	bucket   string
	baseURL  string
}

func NewS3Store(cfg *config.MediaConfig) (*S3Store, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	// 自定义 endpoint 时一般是兼容 S3 的服务，需要 path-style
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create aws session")
	}

	return &S3Store{
		uploader: s3manager.NewUploader(sess),
		client:   s3.New(sess),
		bucket:   cfg.Bucket,
		baseURL:  strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	result, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", errors.WithMessagef(err, "failed to upload %s to s3", key)
	}

	if s.baseURL != "" {
		return s.baseURL + "/" + key, nil
	}
	return result.Location, nil
}

func (s *S3Store) Remove(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errors.WithMessagef(err, "failed to delete %s from s3", key)
	}
	return nil
}
