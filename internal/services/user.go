package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/short-video/short-video/internal/models"
	"github.com/short-video/short-video/internal/repository"
	"github.com/short-video/short-video/pkg/logger"
	"github.com/short-video/short-video/pkg/media"
	"github.com/short-video/short-video/pkg/queue"
	"golang.org/x/crypto/bcrypt"
)

const profileVideosLimit = 30

type UserService struct {
	users    UserStore
	follows  FollowStore
	videos   VideoStore
	feed     *FeedService
	notices  *NoticeService
	avatars  AvatarUploader
	producer EventPublisher
	logger   *logger.Logger
}

func NewUserService(users UserStore, follows FollowStore, videos VideoStore, feed *FeedService, notices *NoticeService, avatars AvatarUploader, producer EventPublisher, logger *logger.Logger) *UserService {
	return &UserService{
		users:    users,
		follows:  follows,
		videos:   videos,
		feed:     feed,
		notices:  notices,
		avatars:  avatars,
		producer: producer,
		logger:   logger,
	}
}

type RegisterRequest struct {
	Username    string `json:"username" binding:"required,min=3,max=30"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=6,max=50"`
	DisplayName string `json:"display_name" binding:"max=50"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type UpdateProfileRequest struct {
	DisplayName *string `form:"display_name" json:"display_name"`
	Bio         *string `form:"bio" json:"bio"`
}

type UserStats struct {
	VideosCount    int64 `json:"videos_count"`
	FollowersCount int64 `json:"followers_count"`
	FollowingCount int64 `json:"following_count"`
}

type MeResponse struct {
	*models.User
	UserStats
}

type ProfileResponse struct {
	models.UserProfile
	Bio         string              `json:"bio"`
	CreatedAt   time.Time           `json:"created_at"`
	IsFollowing bool                `json:"is_following"`
	Videos      []*models.VideoView `json:"videos"`
	UserStats
}

func (s *UserService) Register(ctx context.Context, req *RegisterRequest) (*models.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	// 检查用户名是否已存在
	existingUser, err := s.users.GetByUsername(ctx, req.Username)
	if err != nil {
		return nil, dependencyError("check username", err)
	}
	if existingUser != nil {
		return nil, fmt.Errorf("username already exists: %w", ErrConflict)
	}

	// 检查邮箱是否已存在
	existingUser, err = s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, dependencyError("check email", err)
	}
	if existingUser != nil {
		return nil, fmt.Errorf("email already exists: %w", ErrConflict)
	}

	// 加密密码
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = req.Username
	}

	user := &models.User{
		Username:    req.Username,
		Email:       req.Email,
		Password:    string(hashedPassword),
		DisplayName: displayName,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// 并发注册同名用户
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("username or email already exists: %w", ErrConflict)
		}
		return nil, dependencyError("create user", err)
	}

	s.publishUser(ctx, queue.EventUserCreated, user)

	s.logger.WithField("user_id", user.ID).Info("User registered successfully")
	return user, nil
}

func (s *UserService) Login(ctx context.Context, req *LoginRequest) (*models.User, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		return nil, dependencyError("get user", err)
	}
	if user == nil {
		return nil, fmt.Errorf("invalid username or password: %w", ErrUnauthorized)
	}

	// 验证密码
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("invalid username or password: %w", ErrUnauthorized)
	}

	s.logger.WithField("user_id", user.ID).Info("User logged in successfully")
	return user, nil
}

func (s *UserService) GetMe(ctx context.Context, userID uuid.UUID) (*MeResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, dependencyError("get user", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}

	stats, err := s.stats(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &MeResponse{User: user, UserStats: *stats}, nil
}

// GetProfile 公开主页，viewerID 为空表示匿名访问
func (s *UserService) GetProfile(ctx context.Context, username string, viewerID *uuid.UUID) (*ProfileResponse, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, dependencyError("get user", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}

	stats, err := s.stats(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	isFollowing := false
	if viewerID != nil && *viewerID != user.ID {
		isFollowing, err = s.follows.Exists(ctx, *viewerID, user.ID)
		if err != nil {
			return nil, dependencyError("check follow status", err)
		}
	}

	videos, err := s.feed.ListUserVideos(ctx, user.ID, 0, profileVideosLimit)
	if err != nil {
		return nil, err
	}

	return &ProfileResponse{
		UserProfile: user.Profile(),
		Bio:         user.Bio,
		CreatedAt:   user.CreatedAt,
		IsFollowing: isFollowing,
		Videos:      videos,
		UserStats:   *stats,
	}, nil
}

// UpdateProfile 更新资料，avatar 非空时替换头像并释放旧头像
func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, req *UpdateProfileRequest, avatar *media.Upload) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, dependencyError("get user", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}

	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if name == "" || len([]rune(name)) > 50 {
			return nil, fmt.Errorf("display name must be 1-50 characters: %w", ErrInvalidOperation)
		}
		user.DisplayName = name
	}
	if req.Bio != nil {
		bio := strings.TrimSpace(*req.Bio)
		if len([]rune(bio)) > 500 {
			return nil, fmt.Errorf("bio longer than 500 characters: %w", ErrInvalidOperation)
		}
		user.Bio = bio
	}

	oldAvatarKey := user.AvatarKey
	var newAvatarKey string
	if avatar != nil {
		url, key, err := s.avatars.UploadAvatar(ctx, userID, *avatar)
		if err != nil {
			if errors.Is(err, media.ErrUnsupportedType) || errors.Is(err, media.ErrTooLarge) {
				return nil, fmt.Errorf("%w: %w", ErrInvalidOperation, err)
			}
			return nil, dependencyError("upload avatar", err)
		}
		user.Avatar = url
		user.AvatarKey = key
		newAvatarKey = key
	}

	if err := s.users.Update(ctx, user); err != nil {
		if newAvatarKey != "" {
			if relErr := s.avatars.Release(ctx, newAvatarKey); relErr != nil {
				s.logger.WithError(relErr).WithField("key", newAvatarKey).Warn("Failed to release unsaved avatar")
			}
		}
		return nil, dependencyError("update user", err)
	}

	if newAvatarKey != "" && oldAvatarKey != "" {
		if err := s.avatars.Release(ctx, oldAvatarKey); err != nil {
			s.logger.WithError(err).WithField("key", oldAvatarKey).Warn("Failed to release old avatar")
		}
	}

	s.publishUser(ctx, queue.EventUserUpdated, user)

	s.logger.WithField("user_id", user.ID).Info("User profile updated")
	return user, nil
}

func (s *UserService) Search(ctx context.Context, query string, offset, limit int) ([]models.UserProfile, error) {
	if limit <= 0 || offset < 0 {
		return nil, fmt.Errorf("invalid offset %d / limit %d: %w", offset, limit, ErrInvalidOperation)
	}

	users, err := s.users.Search(ctx, strings.TrimSpace(query), offset, limit)
	if err != nil {
		return nil, dependencyError("search users", err)
	}

	profiles := make([]models.UserProfile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, u.Profile())
	}
	return profiles, nil
}

// DrainNotices 读取并清空一次性提醒
func (s *UserService) DrainNotices(ctx context.Context, userID uuid.UUID) ([]Notice, error) {
	return s.notices.Drain(ctx, userID)
}

func (s *UserService) stats(ctx context.Context, userID uuid.UUID) (*UserStats, error) {
	videos, err := s.videos.CountByUser(ctx, userID)
	if err != nil {
		return nil, dependencyError("count videos", err)
	}
	followers, err := s.follows.CountFollowers(ctx, userID)
	if err != nil {
		return nil, dependencyError("count followers", err)
	}
	following, err := s.follows.CountFollowing(ctx, userID)
	if err != nil {
		return nil, dependencyError("count following", err)
	}
	return &UserStats{
		VideosCount:    videos,
		FollowersCount: followers,
		FollowingCount: following,
	}, nil
}

func (s *UserService) publishUser(ctx context.Context, eventType queue.EventType, user *models.User) {
	event := queue.NewEvent(eventType, queue.UserEventData{
		UserID:   user.ID.String(),
		Username: user.Username,
	})
	if err := s.producer.Publish(ctx, user.ID.String(), event); err != nil {
		s.logger.WithError(err).WithField("type", eventType).Error("Failed to publish user event")
	}
}
