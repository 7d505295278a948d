package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/short-video/short-video/internal/models"
	"gorm.io/gorm"
)

type FollowRepository struct {
	db *gorm.DB
}

func NewFollowRepository(db *gorm.DB) *FollowRepository {
	return &FollowRepository{db: db}
}

// Insert 创建关注关系，重复时返回 ErrDuplicate
func (r *FollowRepository) Insert(ctx context.Context, followerID, followingID uuid.UUID) error {
	follow := &models.Follow{
		FollowerID:  followerID,
		FollowingID: followingID,
		CreatedAt:   time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(follow).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("failed to create follow: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to create follow: %w", err)
	}
	return nil
}

// Remove 删除关注关系，返回是否真的删除了一行
func (r *FollowRepository) Remove(ctx context.Context, followerID, followingID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Delete(&models.Follow{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete follow: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *FollowRepository) Exists(ctx context.Context, followerID, followingID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check follow status: %w", err)
	}
	return count > 0, nil
}

func (r *FollowRepository) CountFollowers(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("following_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count followers: %w", err)
	}
	return count, nil
}

func (r *FollowRepository) CountFollowing(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("follower_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count following: %w", err)
	}
	return count, nil
}
