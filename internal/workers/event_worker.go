package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/short-video/short-video/pkg/logger"
	"github.com/short-video/short-video/pkg/queue"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const defaultMaxAttempts = 3

type Subscriber interface {
	Subscribe(ctx context.Context, handler func(context.Context, queue.Message) error) error
	Close() error
}

type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

type MediaReleaser interface {
	Release(ctx context.Context, keys ...string) error
}

// EventWorker 消费视频和用户事件：重试释放孤儿媒体文件，其余事件写审计日志
type EventWorker struct {
	consumers   []Subscriber
	media       MediaReleaser
	retries     Publisher
	maxAttempts int
	retryDelay  time.Duration
	logger      *logger.Logger
}

func NewEventWorker(consumers []Subscriber, media MediaReleaser, retries Publisher, retryDelay time.Duration, logger *logger.Logger) *EventWorker {
	return &EventWorker{
		consumers:   consumers,
		media:       media,
		retries:     retries,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  retryDelay,
		logger:      logger,
	}
}

// Start 阻塞直到 ctx 取消或任一消费者出错
func (w *EventWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting event worker...")

	g, ctx := errgroup.WithContext(ctx)
	for _, consumer := range w.consumers {
		consumer := consumer
		g.Go(func() error {
			return consumer.Subscribe(ctx, w.HandleMessage)
		})
	}
	return g.Wait()
}

func (w *EventWorker) Stop() error {
	var firstErr error
	for _, consumer := range w.consumers {
		if err := consumer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (w *EventWorker) HandleMessage(ctx context.Context, msg queue.Message) error {
	event, err := msg.Decode()
	if err != nil {
		return err
	}

	switch event.Type {
	case queue.EventMediaOrphaned:
		return w.handleMediaOrphaned(ctx, event)
	case queue.EventVideoCreated, queue.EventVideoDeleted, queue.EventVideoEvicted:
		var data queue.VideoEventData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return fmt.Errorf("invalid %s event data: %w", event.Type, err)
		}
		w.audit(event).WithFields(logrus.Fields{
			"video_id": data.VideoID,
			"user_id":  data.UserID,
		}).Info("Video event")
	case queue.EventLikeToggled, queue.EventFollowToggled:
		var data queue.ToggleEventData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return fmt.Errorf("invalid %s event data: %w", event.Type, err)
		}
		w.audit(event).WithFields(logrus.Fields{
			"actor_id":  data.ActorID,
			"target_id": data.TargetID,
			"active":    data.Active,
		}).Info("Toggle event")
	case queue.EventCommentCreated:
		var data queue.CommentEventData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return fmt.Errorf("invalid %s event data: %w", event.Type, err)
		}
		w.audit(event).WithFields(logrus.Fields{
			"comment_id": data.CommentID,
			"video_id":   data.VideoID,
			"user_id":    data.UserID,
		}).Info("Comment event")
	case queue.EventUserCreated, queue.EventUserUpdated:
		var data queue.UserEventData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return fmt.Errorf("invalid %s event data: %w", event.Type, err)
		}
		w.audit(event).WithFields(logrus.Fields{
			"user_id":  data.UserID,
			"username": data.Username,
		}).Info("User event")
	default:
		w.logger.WithField("event_type", event.Type).Warn("Unknown event type")
	}
	return nil
}

// handleMediaOrphaned 重试释放，失败时带着 attempt+1 重新入队，超过上限只记日志等人工清理
func (w *EventWorker) handleMediaOrphaned(ctx context.Context, event *queue.RawEvent) error {
	var data queue.MediaOrphanedData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("invalid media orphaned event data: %w", err)
	}
	if len(data.Keys) == 0 {
		return nil
	}

	if w.retryDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(data.Attempt) * w.retryDelay):
		}
	}

	err := w.media.Release(ctx, data.Keys...)
	if err == nil {
		w.logger.WithFields(logrus.Fields{
			"video_id": data.VideoID,
			"keys":     data.Keys,
			"attempt":  data.Attempt,
		}).Info("Orphaned media released")
		return nil
	}

	fields := logrus.Fields{
		"video_id": data.VideoID,
		"keys":     data.Keys,
		"attempt":  data.Attempt,
	}
	if data.Attempt >= w.maxAttempts {
		w.logger.WithError(err).WithFields(fields).Error("Giving up on orphaned media, manual cleanup required")
		return nil
	}

	w.logger.WithError(err).WithFields(fields).Warn("Failed to release orphaned media, requeueing")
	retry := queue.NewEvent(queue.EventMediaOrphaned, queue.MediaOrphanedData{
		VideoID: data.VideoID,
		Keys:    data.Keys,
		Attempt: data.Attempt + 1,
		Reason:  err.Error(),
	})
	if err := w.retries.Publish(ctx, data.VideoID, retry); err != nil {
		return fmt.Errorf("failed to requeue orphaned media: %w", err)
	}
	return nil
}

func (w *EventWorker) audit(event *queue.RawEvent) *logrus.Entry {
	return w.logger.WithFields(logrus.Fields{
		"event_type": event.Type,
		"timestamp":  event.Timestamp,
	})
}
