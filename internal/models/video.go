package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Video struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;index:idx_videos_created_id,priority:2"`
	UserID       uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index:idx_videos_user_created,priority:1"`
	Caption      string    `json:"caption" gorm:"type:text"`
	VideoURL     string    `json:"video_url" gorm:"not null"`
	ThumbnailURL string    `json:"thumbnail_url"`
	VideoKey     string    `json:"-"`
	ThumbnailKey string    `json:"-"`
	Views        int64     `json:"views" gorm:"not null;default:0"`
	CreatedAt    time.Time `json:"created_at" gorm:"index:idx_videos_created_id,priority:1;index:idx_videos_user_created,priority:2"`

	User User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// Like 点赞关系，(user_id, video_id) 唯一
type Like struct {
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;primaryKey"`
	VideoID   uuid.UUID `json:"video_id" gorm:"type:uuid;primaryKey;index"`
	CreatedAt time.Time `json:"created_at"`

	User  User  `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Video Video `json:"-" gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE"`
}

type Comment struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	VideoID   uuid.UUID `json:"video_id" gorm:"type:uuid;not null;index:idx_comments_video_created,priority:1"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;not null"`
	Text      string    `json:"text" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_comments_video_created,priority:2"`

	User  User  `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Video Video `json:"-" gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE"`
}

// VideoView 视频 + 作者公开信息 + 实时统计
type VideoView struct {
	Video
	Author        UserProfile `json:"user"`
	LikesCount    int64       `json:"likes_count"`
	CommentsCount int64       `json:"comments_count"`
}

type CommentView struct {
	Comment
	Author UserProfile `json:"user"`
}

func (v *Video) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// MediaKeys 该视频在对象存储中占用的key
func (v *Video) MediaKeys() []string {
	var keys []string
	if v.VideoKey != "" {
		keys = append(keys, v.VideoKey)
	}
	if v.ThumbnailKey != "" {
		keys = append(keys, v.ThumbnailKey)
	}
	return keys
}

func (Video) TableName() string {
	return "videos"
}

func (Like) TableName() string {
	return "likes"
}

func (Comment) TableName() string {
	return "comments"
}
