package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/short-video/short-video/pkg/logger"
)

type KafkaProducer struct {
	writer *kafka.Writer
}

type KafkaConsumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		Async:                  false,
		AllowAutoTopicCreation: true,
	}

	return &KafkaProducer{writer: writer}
}

func NewKafkaConsumer(brokers []string, topic, groupID string, log *logger.Logger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: 1 * time.Second,
		StartOffset:    kafka.FirstOffset,
	})

	return &KafkaConsumer{reader: reader, logger: log}
}

func (p *KafkaProducer) Publish(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}

	return p.writer.WriteMessages(ctx, message)
}

// Subscribe 阻塞读取消息直到 ctx 取消，单条消息处理失败只记录日志
func (c *KafkaConsumer) Subscribe(ctx context.Context, handler func(context.Context, Message) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			message, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("failed to read message: %w", err)
			}

			msg := Message{
				Key:   string(message.Key),
				Value: message.Value,
				Topic: message.Topic,
			}

			if err := handler(ctx, msg); err != nil {
				c.logger.WithError(err).WithField("key", msg.Key).Error("Failed to handle message")
				continue
			}
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

type Message struct {
	Key   string
	Value []byte
	Topic string
}

// Decode 解析消息体为事件，Data 保留原始 JSON 由调用方按类型解析
func (m Message) Decode() (*RawEvent, error) {
	var event RawEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &event, nil
}

type EventType string

const (
	EventUserCreated    EventType = "user_created"
	EventUserUpdated    EventType = "user_updated"
	EventVideoCreated   EventType = "video_created"
	EventVideoDeleted   EventType = "video_deleted"
	EventVideoEvicted   EventType = "video_evicted"
	EventLikeToggled    EventType = "like_toggled"
	EventFollowToggled  EventType = "follow_toggled"
	EventCommentCreated EventType = "comment_created"
	EventMediaOrphaned  EventType = "media_orphaned"
)

type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type RawEvent struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func NewEvent(eventType EventType, data interface{}) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

type UserEventData struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type VideoEventData struct {
	VideoID   string `json:"video_id"`
	UserID    string `json:"user_id"`
	Caption   string `json:"caption"`
	CreatedAt string `json:"created_at"`
}

type ToggleEventData struct {
	ActorID  string `json:"actor_id"`
	TargetID string `json:"target_id"`
	Active   bool   `json:"active"`
}

type CommentEventData struct {
	CommentID string `json:"comment_id"`
	UserID    string `json:"user_id"`
	VideoID   string `json:"video_id"`
	Text      string `json:"text"`
}

// MediaOrphanedData 未能释放的对象存储 key，由 worker 重试
type MediaOrphanedData struct {
	VideoID string   `json:"video_id"`
	Keys    []string `json:"keys"`
	Attempt int      `json:"attempt"`
	Reason  string   `json:"reason"`
}
