package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/short-video/short-video/internal/models"
	"github.com/short-video/short-video/pkg/logger"
	"github.com/short-video/short-video/pkg/queue"
)

const maxCommentLength = 1000

type CommentPage struct {
	Items      []*models.CommentView `json:"items"`
	NextCursor *uuid.UUID            `json:"next_cursor"`
}

type CommentService struct {
	comments CommentStore
	videos   VideoStore
	users    UserStore
	producer EventPublisher
	logger   *logger.Logger
	now      func() time.Time
}

func NewCommentService(comments CommentStore, videos VideoStore, users UserStore, producer EventPublisher, logger *logger.Logger) *CommentService {
	return &CommentService{
		comments: comments,
		videos:   videos,
		users:    users,
		producer: producer,
		logger:   logger,
		now:      utcNow,
	}
}

// CreateComment 去掉首尾空白后不能为空
func (s *CommentService) CreateComment(ctx context.Context, userID, videoID uuid.UUID, text string) (*models.CommentView, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("comment text is empty: %w", ErrInvalidOperation)
	}
	if len([]rune(text)) > maxCommentLength {
		return nil, fmt.Errorf("comment longer than %d characters: %w", maxCommentLength, ErrInvalidOperation)
	}

	// 检查视频是否存在
	exists, err := s.videos.Exists(ctx, videoID)
	if err != nil {
		return nil, dependencyError("check video", err)
	}
	if !exists {
		return nil, fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, dependencyError("get user", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}

	comment := &models.Comment{
		VideoID:   videoID,
		UserID:    userID,
		Text:      text,
		CreatedAt: s.now(),
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, dependencyError("create comment", err)
	}

	event := queue.NewEvent(queue.EventCommentCreated, queue.CommentEventData{
		CommentID: comment.ID.String(),
		UserID:    userID.String(),
		VideoID:   videoID.String(),
		Text:      text,
	})
	if err := s.producer.Publish(ctx, videoID.String(), event); err != nil {
		s.logger.WithError(err).Error("Failed to publish comment created event")
	}

	return &models.CommentView{Comment: *comment, Author: user.Profile()}, nil
}

// ListComments 评论分页，排序和翻页规则与视频流一致
func (s *CommentService) ListComments(ctx context.Context, videoID uuid.UUID, cursor *uuid.UUID, limit int) (*CommentPage, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d: %w", limit, ErrInvalidOperation)
	}

	exists, err := s.videos.Exists(ctx, videoID)
	if err != nil {
		return nil, dependencyError("check video", err)
	}
	if !exists {
		return nil, fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}

	var after *models.Comment
	if cursor != nil {
		comment, err := s.comments.GetByID(ctx, *cursor)
		if err != nil {
			return nil, dependencyError("get cursor comment", err)
		}
		if comment == nil || comment.VideoID != videoID {
			return nil, fmt.Errorf("cursor %s is not a comment of this video: %w", cursor, ErrInvalidOperation)
		}
		after = comment
	}

	comments, err := s.comments.ListByVideo(ctx, videoID, after, limit)
	if err != nil {
		return nil, dependencyError("list comments", err)
	}

	items, err := attachCommenters(ctx, s.users, comments)
	if err != nil {
		return nil, err
	}

	page := &CommentPage{Items: items}
	if len(items) == limit {
		next := items[len(items)-1].ID
		page.NextCursor = &next
	}
	return page, nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}
