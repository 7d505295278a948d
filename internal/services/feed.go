package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/short-video/short-video/internal/models"
	"github.com/short-video/short-video/pkg/logger"
)

type FeedPage struct {
	Items      []*models.VideoView `json:"items"`
	NextCursor *uuid.UUID          `json:"next_cursor"`
}

type VideoDetail struct {
	*models.VideoView
	Comments []*models.CommentView `json:"comments"`
}

type FeedService struct {
	videos          VideoStore
	users           UserStore
	likes           LikeStore
	comments        CommentStore
	commentsPreview int
	logger          *logger.Logger
}

func NewFeedService(videos VideoStore, users UserStore, likes LikeStore, comments CommentStore, commentsPreview int, logger *logger.Logger) *FeedService {
	return &FeedService{
		videos:          videos,
		users:           users,
		likes:           likes,
		comments:        comments,
		commentsPreview: commentsPreview,
		logger:          logger,
	}
}

// GetPage 全站视频流，按 (created_at DESC, id DESC) 排序，cursor 为上一页最后一个视频
func (s *FeedService) GetPage(ctx context.Context, cursor *uuid.UUID, limit int) (*FeedPage, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d: %w", limit, ErrInvalidOperation)
	}

	var after *models.Video
	if cursor != nil {
		video, err := s.videos.GetByID(ctx, *cursor)
		if err != nil {
			return nil, dependencyError("get cursor video", err)
		}
		if video == nil {
			return nil, fmt.Errorf("cursor %s no longer exists: %w", cursor, ErrInvalidOperation)
		}
		after = video
	}

	videos, err := s.videos.ListPage(ctx, after, limit)
	if err != nil {
		return nil, dependencyError("list videos", err)
	}

	items, err := s.enrich(ctx, videos)
	if err != nil {
		return nil, err
	}

	page := &FeedPage{Items: items}
	if len(items) == limit {
		next := items[len(items)-1].ID
		page.NextCursor = &next
	}
	return page, nil
}

// GetOne 返回视频详情并增加一次播放量，返回值包含本次自增
func (s *FeedService) GetOne(ctx context.Context, videoID uuid.UUID) (*VideoDetail, error) {
	hit, err := s.videos.IncrementViews(ctx, videoID)
	if err != nil {
		return nil, dependencyError("increment views", err)
	}
	if !hit {
		return nil, fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}

	video, err := s.videos.GetByID(ctx, videoID)
	if err != nil {
		return nil, dependencyError("get video", err)
	}
	if video == nil {
		return nil, fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}

	views, err := s.enrich(ctx, []*models.Video{video})
	if err != nil {
		return nil, err
	}

	comments, err := s.comments.ListByVideo(ctx, videoID, nil, s.commentsPreview)
	if err != nil {
		return nil, dependencyError("list comments", err)
	}
	commentViews, err := attachCommenters(ctx, s.users, comments)
	if err != nil {
		return nil, err
	}

	return &VideoDetail{VideoView: views[0], Comments: commentViews}, nil
}

// ListUserVideos 用户主页的视频列表
func (s *FeedService) ListUserVideos(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*models.VideoView, error) {
	if limit <= 0 || offset < 0 {
		return nil, fmt.Errorf("invalid offset %d / limit %d: %w", offset, limit, ErrInvalidOperation)
	}

	videos, err := s.videos.ListByUser(ctx, userID, offset, limit)
	if err != nil {
		return nil, dependencyError("list user videos", err)
	}
	return s.enrich(ctx, videos)
}

// enrich 批量补充作者信息和统计数，保持输入顺序
func (s *FeedService) enrich(ctx context.Context, videos []*models.Video) ([]*models.VideoView, error) {
	items := make([]*models.VideoView, 0, len(videos))
	if len(videos) == 0 {
		return items, nil
	}

	videoIDs := make([]uuid.UUID, 0, len(videos))
	userIDs := make([]uuid.UUID, 0, len(videos))
	seen := make(map[uuid.UUID]bool)
	for _, v := range videos {
		videoIDs = append(videoIDs, v.ID)
		if !seen[v.UserID] {
			seen[v.UserID] = true
			userIDs = append(userIDs, v.UserID)
		}
	}

	authors, err := s.users.GetByIDs(ctx, userIDs)
	if err != nil {
		return nil, dependencyError("get authors", err)
	}
	likeCounts, err := s.likes.CountByVideoIDs(ctx, videoIDs)
	if err != nil {
		return nil, dependencyError("count likes", err)
	}
	commentCounts, err := s.comments.CountByVideoIDs(ctx, videoIDs)
	if err != nil {
		return nil, dependencyError("count comments", err)
	}

	for _, v := range videos {
		view := &models.VideoView{
			Video:         *v,
			LikesCount:    likeCounts[v.ID],
			CommentsCount: commentCounts[v.ID],
		}
		if author, ok := authors[v.UserID]; ok {
			view.Author = author.Profile()
		} else {
			s.logger.WithField("video_id", v.ID).Warn("Video author missing")
			view.Author = models.UserProfile{ID: v.UserID}
		}
		items = append(items, view)
	}
	return items, nil
}

func attachCommenters(ctx context.Context, users UserStore, comments []*models.Comment) ([]*models.CommentView, error) {
	views := make([]*models.CommentView, 0, len(comments))
	if len(comments) == 0 {
		return views, nil
	}

	ids := make([]uuid.UUID, 0, len(comments))
	for _, c := range comments {
		ids = append(ids, c.UserID)
	}
	authors, err := users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, dependencyError("get commenters", err)
	}

	for _, c := range comments {
		view := &models.CommentView{Comment: *c, Author: models.UserProfile{ID: c.UserID}}
		if author, ok := authors[c.UserID]; ok {
			view.Author = author.Profile()
		}
		views = append(views, view)
	}
	return views, nil
}
