package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/short-video/short-video/internal/models"
	"gorm.io/gorm"
)

type CommentRepository struct {
	db *gorm.DB
}

func NewCommentRepository(db *gorm.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

func (r *CommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	if err := r.db.WithContext(ctx).Create(comment).Error; err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

func (r *CommentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).First(&comment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}
	return &comment, nil
}

// ListByVideo 按 (created_at DESC, id DESC) 返回评论，after 非空时从其后继续
func (r *CommentRepository) ListByVideo(ctx context.Context, videoID uuid.UUID, after *models.Comment, limit int) ([]*models.Comment, error) {
	var comments []*models.Comment
	query := r.db.WithContext(ctx).Where("video_id = ?", videoID)
	if after != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			after.CreatedAt, after.CreatedAt, after.ID)
	}

	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&comments).Error; err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return comments, nil
}

func (r *CommentRepository) CountByVideoIDs(ctx context.Context, videoIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	return countGrouped(ctx, r.db, &models.Comment{}, videoIDs)
}
