package services

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidOperation  = errors.New("invalid operation")
	ErrDependencyFailure = errors.New("dependency failure")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
	ErrUnauthorized      = errors.New("unauthorized")

	// ErrConstraintConflict 唯一约束冲突，只在服务内部使用，不会返回给调用方
	ErrConstraintConflict = errors.New("constraint conflict")

	// ErrEvictionFailed 视频已创建，但淘汰最旧视频失败
	ErrEvictionFailed = fmt.Errorf("eviction failed: %w", ErrDependencyFailure)
)

func dependencyError(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, ErrDependencyFailure, err)
}
