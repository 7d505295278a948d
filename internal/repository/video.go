package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/short-video/short-video/internal/models"
	"gorm.io/gorm"
)

type VideoRepository struct {
	db *gorm.DB
}

func NewVideoRepository(db *gorm.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

func (r *VideoRepository) Create(ctx context.Context, video *models.Video) error {
	if err := r.db.WithContext(ctx).Create(video).Error; err != nil {
		return fmt.Errorf("failed to create video: %w", err)
	}
	return nil
}

func (r *VideoRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	var video models.Video
	if err := r.db.WithContext(ctx).First(&video, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return &video, nil
}

func (r *VideoRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Video{}).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check video existence: %w", err)
	}
	return count > 0, nil
}

// ListPage 全站视频，按 (created_at DESC, id DESC) 排序，after 非空时严格从其后继续
func (r *VideoRepository) ListPage(ctx context.Context, after *models.Video, limit int) ([]*models.Video, error) {
	var videos []*models.Video
	query := r.db.WithContext(ctx)
	if after != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			after.CreatedAt, after.CreatedAt, after.ID)
	}

	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&videos).Error; err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	return videos, nil
}

func (r *VideoRepository) ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*models.Video, error) {
	var videos []*models.Video
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&videos).Error; err != nil {
		return nil, fmt.Errorf("failed to list user videos: %w", err)
	}
	return videos, nil
}

func (r *VideoRepository) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Video{}).
		Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count user videos: %w", err)
	}
	return count, nil
}

// OldestByUser 用户最早的视频 (created_at ASC, id ASC)，排除 excludeID
func (r *VideoRepository) OldestByUser(ctx context.Context, userID, excludeID uuid.UUID) (*models.Video, error) {
	var video models.Video
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND id <> ?", userID, excludeID).
		Order("created_at ASC").
		Order("id ASC").
		First(&video).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get oldest video: %w", err)
	}
	return &video, nil
}

// DeleteCascade 在一个事务里删除视频及其点赞和评论，返回视频是否存在
func (r *VideoRepository) DeleteCascade(ctx context.Context, id uuid.UUID) (bool, error) {
	var deleted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("video_id = ?", id).Delete(&models.Like{}).Error; err != nil {
			return fmt.Errorf("failed to delete likes: %w", err)
		}
		if err := tx.Where("video_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return fmt.Errorf("failed to delete comments: %w", err)
		}
		result := tx.Where("id = ?", id).Delete(&models.Video{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete video: %w", result.Error)
		}
		deleted = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// IncrementViews 原子自增，返回是否命中
func (r *VideoRepository) IncrementViews(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Video{}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + ?", 1))
	if result.Error != nil {
		return false, fmt.Errorf("failed to increment views: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
