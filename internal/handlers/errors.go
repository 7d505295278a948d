package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/short-video/short-video/internal/services"
	"github.com/short-video/short-video/pkg/logger"
	"github.com/short-video/short-video/pkg/media"
)

// statusFor 领域错误到 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, media.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, media.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidOperation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrDependencyFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, log *logger.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		c.JSON(status, gin.H{"error": http.StatusText(status)})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// parseCursor 空字符串表示第一页
func parseCursor(c *gin.Context) (*uuid.UUID, bool) {
	raw := c.Query("cursor")
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cursor"})
		return nil, false
	}
	return &id, true
}

// parseLimit 缺省取 def，超过 max 截断；非正数交给服务层拒绝
func parseLimit(c *gin.Context, def, max int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return 0, false
	}
	if limit > max {
		limit = max
	}
	return limit, true
}

func parseOffset(c *gin.Context) (int, bool) {
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset"})
		return 0, false
	}
	return offset, true
}
