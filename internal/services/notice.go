package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/short-video/short-video/pkg/logger"
)

const NoticeVideoEvicted = "video_evicted"

// Notice 一次性提醒，读取后即删除
type Notice struct {
	Type      string    `json:"type"`
	VideoID   uuid.UUID `json:"video_id"`
	Caption   string    `json:"caption"`
	CreatedAt time.Time `json:"created_at"`
	NotedAt   time.Time `json:"noted_at"`
}

type NoticeService struct {
	store  ListStore
	ttl    time.Duration
	logger *logger.Logger
}

func NewNoticeService(store ListStore, ttl time.Duration, logger *logger.Logger) *NoticeService {
	return &NoticeService{store: store, ttl: ttl, logger: logger}
}

func noticeKey(userID uuid.UUID) string {
	return fmt.Sprintf("notices:%s", userID)
}

func (s *NoticeService) Push(ctx context.Context, userID uuid.UUID, notice Notice) error {
	if err := s.store.AppendJSON(ctx, noticeKey(userID), notice, s.ttl); err != nil {
		return dependencyError("push notice", err)
	}
	return nil
}

// Drain 返回并清空用户的待读提醒
func (s *NoticeService) Drain(ctx context.Context, userID uuid.UUID) ([]Notice, error) {
	raw, err := s.store.DrainList(ctx, noticeKey(userID))
	if err != nil {
		return nil, dependencyError("drain notices", err)
	}

	notices := make([]Notice, 0, len(raw))
	for _, item := range raw {
		var n Notice
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			s.logger.WithError(err).WithField("user_id", userID).Warn("Dropping malformed notice")
			continue
		}
		notices = append(notices, n)
	}
	return notices, nil
}
