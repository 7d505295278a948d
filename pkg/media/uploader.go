package media

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/short-video/short-video/internal/config"
	"github.com/short-video/short-video/pkg/logger"
)

// Refs 一个视频在对象存储里的引用
type Refs struct {
	VideoURL     string
	VideoKey     string
	ThumbnailURL string
	ThumbnailKey string
}

func (r Refs) Keys() []string {
	var keys []string
	if r.VideoKey != "" {
		keys = append(keys, r.VideoKey)
	}
	if r.ThumbnailKey != "" {
		keys = append(keys, r.ThumbnailKey)
	}
	return keys
}

type Uploader struct {
	store      ObjectStore
	video      Policy
	avatar     Policy
	tempDir    string
	thumbnails bool
	extract    FrameExtractor
	logger     *logger.Logger
}

func NewUploader(store ObjectStore, cfg *config.MediaConfig, log *logger.Logger) *Uploader {
	return &Uploader{
		store:      store,
		video:      VideoPolicy(cfg.MaxVideoBytes),
		avatar:     AvatarPolicy(cfg.MaxAvatarBytes),
		tempDir:    cfg.TempDir,
		thumbnails: cfg.Thumbnails,
		extract:    FirstFrame,
		logger:     log,
	}
}

// WithFrameExtractor 替换截帧实现
func (u *Uploader) WithFrameExtractor(fn FrameExtractor) *Uploader {
	u.extract = fn
	u.thumbnails = fn != nil
	return u
}

// UploadVideo 校验并上传视频，截图失败不影响上传结果
func (u *Uploader) UploadVideo(ctx context.Context, ownerID uuid.UUID, up Upload) (*Refs, error) {
	contentType, ext, err := u.video.Check(up)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	refs := &Refs{VideoKey: fmt.Sprintf("videos/%s/%s%s", ownerID, id, ext)}

	if !u.thumbnails {
		url, err := u.store.Put(ctx, refs.VideoKey, up.Body, up.Size, contentType)
		if err != nil {
			return nil, err
		}
		refs.VideoURL = url
		return refs, nil
	}

	// ffmpeg 需要本地文件
	path, size, err := u.spool(up, ext)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	if err := u.putFile(ctx, refs.VideoKey, path, size, contentType, &refs.VideoURL); err != nil {
		return nil, err
	}

	thumbPath := path + ".jpg"
	defer os.Remove(thumbPath)
	if err := u.extract(path, thumbPath); err != nil {
		u.logger.WithError(err).WithField("key", refs.VideoKey).Warn("Failed to extract thumbnail")
		return refs, nil
	}

	info, err := os.Stat(thumbPath)
	if err != nil {
		u.logger.WithError(err).WithField("key", refs.VideoKey).Warn("Thumbnail file missing")
		return refs, nil
	}

	thumbKey := fmt.Sprintf("thumbnails/%s/%s.jpg", ownerID, id)
	if err := u.putFile(ctx, thumbKey, thumbPath, info.Size(), "image/jpeg", &refs.ThumbnailURL); err != nil {
		u.logger.WithError(err).WithField("key", thumbKey).Warn("Failed to upload thumbnail")
		return refs, nil
	}
	refs.ThumbnailKey = thumbKey

	return refs, nil
}

// UploadAvatar 上传头像，返回 URL 和 key
func (u *Uploader) UploadAvatar(ctx context.Context, ownerID uuid.UUID, up Upload) (string, string, error) {
	contentType, ext, err := u.avatar.Check(up)
	if err != nil {
		return "", "", err
	}

	key := fmt.Sprintf("avatars/%s/%s%s", ownerID, uuid.NewString(), ext)
	url, err := u.store.Put(ctx, key, up.Body, up.Size, contentType)
	if err != nil {
		return "", "", err
	}
	return url, key, nil
}

// Release 删除对象，全部尝试后返回第一个错误
func (u *Uploader) Release(ctx context.Context, keys ...string) error {
	var first error
	failed := 0
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := u.store.Remove(ctx, key); err != nil {
			failed++
			if first == nil {
				first = err
			}
		}
	}
	if first != nil {
		return errors.WithMessagef(first, "failed to release %d of %d objects", failed, len(keys))
	}
	return nil
}

func (u *Uploader) spool(up Upload, ext string) (string, int64, error) {
	f, err := os.CreateTemp(u.tempDir, "upload-*"+ext)
	if err != nil {
		return "", 0, errors.WithMessage(err, "failed to create temp file")
	}
	defer f.Close()

	written, err := io.Copy(f, limitedBody(up, u.video.MaxBytes))
	if err != nil {
		os.Remove(f.Name())
		return "", 0, errors.WithMessage(err, "failed to write temp file")
	}
	if u.video.MaxBytes > 0 && written > u.video.MaxBytes {
		os.Remove(f.Name())
		return "", 0, errors.WithMessagef(ErrTooLarge, "body exceeds limit of %d", u.video.MaxBytes)
	}
	return f.Name(), written, nil
}

func (u *Uploader) putFile(ctx context.Context, key, path string, size int64, contentType string, url *string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.WithMessage(err, "failed to open temp file")
	}
	defer f.Close()

	location, err := u.store.Put(ctx, key, f, size, contentType)
	if err != nil {
		return err
	}
	*url = location
	return nil
}
