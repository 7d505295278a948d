package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/short-video/short-video/internal/repository"
	"github.com/short-video/short-video/pkg/logger"
	"github.com/short-video/short-video/pkg/queue"
	"github.com/sirupsen/logrus"
)

type RelationKind string

const (
	RelationLike   RelationKind = "like"
	RelationFollow RelationKind = "follow"
)

type ToggleState string

const (
	ToggleActive   ToggleState = "active"
	ToggleInactive ToggleState = "inactive"
)

func (s ToggleState) Active() bool {
	return s == ToggleActive
}

type relation struct {
	store        RelationStore
	targetExists func(ctx context.Context, id uuid.UUID) (bool, error)
	event        queue.EventType
	allowSelf    bool
}

// ToggleService 点赞和关注共用的开关逻辑，唯一约束是唯一的并发保护
type ToggleService struct {
	relations map[RelationKind]relation
	producer  EventPublisher
	logger    *logger.Logger
}

func NewToggleService(likes LikeStore, follows FollowStore, videos VideoStore, users UserStore, producer EventPublisher, logger *logger.Logger) *ToggleService {
	return &ToggleService{
		relations: map[RelationKind]relation{
			RelationLike: {
				store:        likes,
				targetExists: videos.Exists,
				event:        queue.EventLikeToggled,
				allowSelf:    true,
			},
			RelationFollow: {
				store:        follows,
				targetExists: users.Exists,
				event:        queue.EventFollowToggled,
			},
		},
		producer: producer,
		logger:   logger,
	}
}

// Toggle 存在则删除返回 inactive，不存在则创建返回 active
func (s *ToggleService) Toggle(ctx context.Context, kind RelationKind, actorID, targetID uuid.UUID) (ToggleState, error) {
	rel, err := s.lookup(ctx, kind, actorID, targetID)
	if err != nil {
		return "", err
	}

	removed, err := rel.store.Remove(ctx, actorID, targetID)
	if err != nil {
		return "", dependencyError(fmt.Sprintf("remove %s", kind), err)
	}

	state := ToggleInactive
	if !removed {
		if err := insertRelation(ctx, rel.store, actorID, targetID); err != nil {
			// 并发请求已经插入，结果同样是 active
			if !errors.Is(err, ErrConstraintConflict) {
				return "", dependencyError(fmt.Sprintf("insert %s", kind), err)
			}
		}
		state = ToggleActive
	}

	event := queue.NewEvent(rel.event, queue.ToggleEventData{
		ActorID:  actorID.String(),
		TargetID: targetID.String(),
		Active:   state.Active(),
	})
	if err := s.producer.Publish(ctx, targetID.String(), event); err != nil {
		s.logger.WithError(err).WithField("kind", kind).Error("Failed to publish toggle event")
	}

	s.logger.WithFields(logrus.Fields{
		"kind":      kind,
		"actor_id":  actorID,
		"target_id": targetID,
		"state":     state,
	}).Debug("Relation toggled")
	return state, nil
}

// IsActive 查询当前状态，不修改数据
func (s *ToggleService) IsActive(ctx context.Context, kind RelationKind, actorID, targetID uuid.UUID) (bool, error) {
	rel, err := s.lookup(ctx, kind, actorID, targetID)
	if err != nil {
		return false, err
	}

	active, err := rel.store.Exists(ctx, actorID, targetID)
	if err != nil {
		return false, dependencyError(fmt.Sprintf("check %s", kind), err)
	}
	return active, nil
}

func (s *ToggleService) lookup(ctx context.Context, kind RelationKind, actorID, targetID uuid.UUID) (relation, error) {
	rel, ok := s.relations[kind]
	if !ok {
		return relation{}, fmt.Errorf("unknown relation %q: %w", kind, ErrInvalidOperation)
	}
	if !rel.allowSelf && actorID == targetID {
		return relation{}, fmt.Errorf("cannot %s yourself: %w", kind, ErrInvalidOperation)
	}

	// 检查目标是否存在
	exists, err := rel.targetExists(ctx, targetID)
	if err != nil {
		return relation{}, dependencyError("check target", err)
	}
	if !exists {
		return relation{}, fmt.Errorf("%s target %s: %w", kind, targetID, ErrNotFound)
	}
	return rel, nil
}

func insertRelation(ctx context.Context, store RelationStore, actorID, targetID uuid.UUID) error {
	if err := store.Insert(ctx, actorID, targetID); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("%w: %w", ErrConstraintConflict, err)
		}
		return err
	}
	return nil
}
