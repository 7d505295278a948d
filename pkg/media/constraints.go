package media

import (
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrUnsupportedType = errors.New("unsupported media type")
	ErrTooLarge        = errors.New("media too large")
)

// Upload 一个待上传的文件，Size 为客户端声明的大小
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Policy 上传文件的类型白名单和大小上限
type Policy struct {
	AllowedTypes map[string]string // content type -> 扩展名
	MaxBytes     int64
}

func VideoPolicy(maxBytes int64) Policy {
	return Policy{
		AllowedTypes: map[string]string{
			"video/mp4":        ".mp4",
			"video/quicktime":  ".mov",
			"video/x-msvideo":  ".avi",
			"video/webm":       ".webm",
			"video/x-matroska": ".mkv",
		},
		MaxBytes: maxBytes,
	}
}

func AvatarPolicy(maxBytes int64) Policy {
	return Policy{
		AllowedTypes: map[string]string{
			"image/jpeg": ".jpg",
			"image/png":  ".png",
			"image/webp": ".webp",
		},
		MaxBytes: maxBytes,
	}
}

// Check 校验类型和大小，返回规范化后的 content type 和扩展名
func (p Policy) Check(u Upload) (string, string, error) {
	contentType := normalizeType(u.ContentType, u.Filename)
	ext, ok := p.AllowedTypes[contentType]
	if !ok {
		return "", "", errors.WithMessagef(ErrUnsupportedType, "content type %q", contentType)
	}
	if u.Size <= 0 {
		return "", "", errors.WithMessage(ErrUnsupportedType, "empty file")
	}
	if p.MaxBytes > 0 && u.Size > p.MaxBytes {
		return "", "", errors.WithMessagef(ErrTooLarge, "%d bytes exceeds limit of %d", u.Size, p.MaxBytes)
	}
	return contentType, ext, nil
}

// normalizeType 去掉参数并小写，缺失或为通用二进制类型时按扩展名推断
func normalizeType(contentType, filename string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType == "" || contentType == "application/octet-stream" {
		if guessed := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); guessed != "" {
			if mediaType, _, err := mime.ParseMediaType(guessed); err == nil {
				return mediaType
			}
		}
	}
	return contentType
}

// limitedBody 防止实际内容超过声明大小
func limitedBody(u Upload, max int64) io.Reader {
	if max <= 0 {
		return u.Body
	}
	return io.LimitReader(u.Body, max+1)
}
