package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/short-video/short-video/internal/models"
	"github.com/short-video/short-video/pkg/media"
)

// 服务层依赖的存储接口，由 internal/repository 实现

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Update(ctx context.Context, user *models.User) error
	Search(ctx context.Context, query string, offset, limit int) ([]*models.User, error)
}

type VideoStore interface {
	Create(ctx context.Context, video *models.Video) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	ListPage(ctx context.Context, after *models.Video, limit int) ([]*models.Video, error)
	ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*models.Video, error)
	CountByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	OldestByUser(ctx context.Context, userID, excludeID uuid.UUID) (*models.Video, error)
	DeleteCascade(ctx context.Context, id uuid.UUID) (bool, error)
	IncrementViews(ctx context.Context, id uuid.UUID) (bool, error)
}

// RelationStore 只有存在/不存在两种状态的关系，唯一约束冲突返回 repository.ErrDuplicate
type RelationStore interface {
	Insert(ctx context.Context, actorID, targetID uuid.UUID) error
	Remove(ctx context.Context, actorID, targetID uuid.UUID) (bool, error)
	Exists(ctx context.Context, actorID, targetID uuid.UUID) (bool, error)
}

type LikeStore interface {
	RelationStore
	CountByVideoIDs(ctx context.Context, videoIDs []uuid.UUID) (map[uuid.UUID]int64, error)
}

type FollowStore interface {
	RelationStore
	CountFollowers(ctx context.Context, userID uuid.UUID) (int64, error)
	CountFollowing(ctx context.Context, userID uuid.UUID) (int64, error)
}

type CommentStore interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Comment, error)
	ListByVideo(ctx context.Context, videoID uuid.UUID, after *models.Comment, limit int) ([]*models.Comment, error)
	CountByVideoIDs(ctx context.Context, videoIDs []uuid.UUID) (map[uuid.UUID]int64, error)
}

// EventPublisher 由 queue.KafkaProducer 实现
type EventPublisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

// ListStore 由 cache.RedisClient 实现
type ListStore interface {
	AppendJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DrainList(ctx context.Context, key string) ([]string, error)
}

type MediaReleaser interface {
	Release(ctx context.Context, keys ...string) error
}

type AvatarUploader interface {
	MediaReleaser
	UploadAvatar(ctx context.Context, ownerID uuid.UUID, up media.Upload) (string, string, error)
}
