package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/short-video/short-video/internal/models"
	"gorm.io/gorm"
)

type LikeRepository struct {
	db *gorm.DB
}

func NewLikeRepository(db *gorm.DB) *LikeRepository {
	return &LikeRepository{db: db}
}

// Insert 创建点赞，(user_id, video_id) 已存在时返回 ErrDuplicate
func (r *LikeRepository) Insert(ctx context.Context, userID, videoID uuid.UUID) error {
	like := &models.Like{
		UserID:    userID,
		VideoID:   videoID,
		CreatedAt: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(like).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("failed to create like: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to create like: %w", err)
	}
	return nil
}

func (r *LikeRepository) Remove(ctx context.Context, userID, videoID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND video_id = ?", userID, videoID).
		Delete(&models.Like{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete like: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *LikeRepository) Exists(ctx context.Context, userID, videoID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Like{}).
		Where("user_id = ? AND video_id = ?", userID, videoID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check like status: %w", err)
	}
	return count > 0, nil
}

func (r *LikeRepository) CountByVideoID(ctx context.Context, videoID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Like{}).
		Where("video_id = ?", videoID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count likes: %w", err)
	}
	return count, nil
}

// CountByVideoIDs 一次查询统计多个视频的点赞数，没有点赞的视频不出现在结果里
func (r *LikeRepository) CountByVideoIDs(ctx context.Context, videoIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	return countGrouped(ctx, r.db, &models.Like{}, videoIDs)
}

type groupCount struct {
	VideoID uuid.UUID
	Count   int64
}

func countGrouped(ctx context.Context, db *gorm.DB, model interface{}, videoIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64, len(videoIDs))
	if len(videoIDs) == 0 {
		return counts, nil
	}

	var rows []groupCount
	if err := db.WithContext(ctx).
		Model(model).
		Select("video_id, COUNT(*) AS count").
		Where("video_id IN ?", videoIDs).
		Group("video_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count by video IDs: %w", err)
	}
	for _, row := range rows {
		counts[row.VideoID] = row.Count
	}
	return counts, nil
}
