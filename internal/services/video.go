package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/short-video/short-video/internal/models"
	"github.com/short-video/short-video/pkg/logger"
	"github.com/short-video/short-video/pkg/media"
	"github.com/short-video/short-video/pkg/queue"
	"github.com/sirupsen/logrus"
)

const maxCaptionLength = 500

type EvictedVideo struct {
	ID        uuid.UUID `json:"id"`
	Caption   string    `json:"caption"`
	CreatedAt time.Time `json:"created_at"`
}

type UploadResult struct {
	Video   *models.VideoView `json:"video"`
	Evicted *EvictedVideo     `json:"evicted"`
	Warning string            `json:"warning,omitempty"`
}

// VideoService 视频创建和删除，负责每个用户的视频数量上限
type VideoService struct {
	videos     VideoStore
	users      UserStore
	media      MediaReleaser
	notices    *NoticeService
	producer   EventPublisher
	maxPerUser int64
	logger     *logger.Logger
	now        func() time.Time
}

func NewVideoService(videos VideoStore, users UserStore, releaser MediaReleaser, notices *NoticeService, producer EventPublisher, maxPerUser int, logger *logger.Logger) *VideoService {
	return &VideoService{
		videos:     videos,
		users:      users,
		media:      releaser,
		notices:    notices,
		producer:   producer,
		maxPerUser: int64(maxPerUser),
		logger:     logger,
		now:        utcNow,
	}
}

// CreateVideo 保存已上传的视频，超出上限时删除该用户最旧的一个视频
func (s *VideoService) CreateVideo(ctx context.Context, userID uuid.UUID, caption string, refs media.Refs) (*UploadResult, error) {
	caption = strings.TrimSpace(caption)
	if len([]rune(caption)) > maxCaptionLength {
		s.releaseQuietly(ctx, refs.Keys())
		return nil, fmt.Errorf("caption longer than %d characters: %w", maxCaptionLength, ErrInvalidOperation)
	}

	// 检查用户是否存在
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.releaseQuietly(ctx, refs.Keys())
		return nil, dependencyError("get user", err)
	}
	if user == nil {
		s.releaseQuietly(ctx, refs.Keys())
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}

	video := &models.Video{
		UserID:       userID,
		Caption:      caption,
		VideoURL:     refs.VideoURL,
		ThumbnailURL: refs.ThumbnailURL,
		VideoKey:     refs.VideoKey,
		ThumbnailKey: refs.ThumbnailKey,
		CreatedAt:    s.now(),
	}
	if err := s.videos.Create(ctx, video); err != nil {
		s.releaseQuietly(ctx, refs.Keys())
		return nil, dependencyError("create video", err)
	}

	s.publish(ctx, queue.EventVideoCreated, video)

	result := &UploadResult{
		Video: &models.VideoView{Video: *video, Author: user.Profile()},
	}

	evicted, err := s.enforceQuota(ctx, user.ID, video.ID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("Failed to evict oldest video")
		result.Warning = "video saved, but the oldest video could not be removed; it will be retried on the next upload"
		return result, err
	}
	result.Evicted = evicted

	s.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"video_id": video.ID,
		"evicted":  evicted != nil,
	}).Info("Video created successfully")
	return result, nil
}

// enforceQuota 重新计数，超出上限时淘汰一个最旧的视频，最多一个
func (s *VideoService) enforceQuota(ctx context.Context, userID, newVideoID uuid.UUID) (*EvictedVideo, error) {
	count, err := s.videos.CountByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count videos: %w: %w", ErrEvictionFailed, err)
	}
	if count <= s.maxPerUser {
		return nil, nil
	}

	oldest, err := s.videos.OldestByUser(ctx, userID, newVideoID)
	if err != nil {
		return nil, fmt.Errorf("failed to find oldest video: %w: %w", ErrEvictionFailed, err)
	}
	if oldest == nil {
		return nil, nil
	}

	deleted, err := s.videos.DeleteCascade(ctx, oldest.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete video %s: %w: %w", oldest.ID, ErrEvictionFailed, err)
	}
	if !deleted {
		// 并发请求已经删除了它
		s.logger.WithField("video_id", oldest.ID).Info("Oldest video already removed")
		return nil, nil
	}

	s.releaseMedia(ctx, oldest)
	s.publish(ctx, queue.EventVideoEvicted, oldest)

	evicted := &EvictedVideo{
		ID:        oldest.ID,
		Caption:   oldest.Caption,
		CreatedAt: oldest.CreatedAt,
	}
	if s.notices != nil {
		notice := Notice{
			Type:      NoticeVideoEvicted,
			VideoID:   oldest.ID,
			Caption:   oldest.Caption,
			CreatedAt: oldest.CreatedAt,
			NotedAt:   s.now(),
		}
		if err := s.notices.Push(ctx, userID, notice); err != nil {
			s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to queue eviction notice")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"video_id": oldest.ID,
	}).Info("Oldest video evicted")
	return evicted, nil
}

// DeleteVideo 作者删除自己的视频
func (s *VideoService) DeleteVideo(ctx context.Context, userID, videoID uuid.UUID) error {
	video, err := s.videos.GetByID(ctx, videoID)
	if err != nil {
		return dependencyError("get video", err)
	}
	if video == nil {
		return fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}
	if video.UserID != userID {
		return fmt.Errorf("video %s belongs to another user: %w", videoID, ErrForbidden)
	}

	deleted, err := s.videos.DeleteCascade(ctx, videoID)
	if err != nil {
		return dependencyError("delete video", err)
	}
	if !deleted {
		return fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}

	s.releaseMedia(ctx, video)
	s.publish(ctx, queue.EventVideoDeleted, video)

	s.logger.WithField("video_id", videoID).Info("Video deleted successfully")
	return nil
}

// releaseMedia 释放失败不影响结果，发事件交给 worker 重试
func (s *VideoService) releaseMedia(ctx context.Context, video *models.Video) {
	keys := video.MediaKeys()
	if len(keys) == 0 {
		return
	}
	err := s.media.Release(ctx, keys...)
	if err == nil {
		return
	}

	s.logger.WithError(err).WithFields(logrus.Fields{
		"video_id": video.ID,
		"keys":     keys,
	}).Error("Failed to release media, storage objects orphaned")

	event := queue.NewEvent(queue.EventMediaOrphaned, queue.MediaOrphanedData{
		VideoID: video.ID.String(),
		Keys:    keys,
		Attempt: 1,
		Reason:  err.Error(),
	})
	if err := s.producer.Publish(ctx, video.ID.String(), event); err != nil {
		s.logger.WithError(err).WithField("keys", keys).Error("Failed to publish media orphaned event")
	}
}

func (s *VideoService) releaseQuietly(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := s.media.Release(ctx, keys...); err != nil {
		s.logger.WithError(err).WithField("keys", keys).Warn("Failed to release unsaved upload")
	}
}

func (s *VideoService) publish(ctx context.Context, eventType queue.EventType, video *models.Video) {
	event := queue.NewEvent(eventType, queue.VideoEventData{
		VideoID:   video.ID.String(),
		UserID:    video.UserID.String(),
		Caption:   video.Caption,
		CreatedAt: video.CreatedAt.Format(time.RFC3339),
	})
	if err := s.producer.Publish(ctx, video.UserID.String(), event); err != nil {
		s.logger.WithError(err).WithField("type", eventType).Error("Failed to publish video event")
	}
}
