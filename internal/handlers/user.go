package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/short-video/short-video/internal/middleware"
	"github.com/short-video/short-video/internal/services"
	"github.com/short-video/short-video/pkg/logger"
	"github.com/short-video/short-video/pkg/media"
)

type UserHandler struct {
	userService   *services.UserService
	toggleService *services.ToggleService
	jwtSecret     string
	jwtExpire     time.Duration
	pageSize      int
	maxPageSize   int
	logger        *logger.Logger
}

func NewUserHandler(userService *services.UserService, toggleService *services.ToggleService, jwtSecret string, jwtExpire time.Duration, pageSize, maxPageSize int, logger *logger.Logger) *UserHandler {
	return &UserHandler{
		userService:   userService,
		toggleService: toggleService,
		jwtSecret:     jwtSecret,
		jwtExpire:     jwtExpire,
		pageSize:      pageSize,
		maxPageSize:   maxPageSize,
		logger:        logger,
	}
}

func (h *UserHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.userService.Register(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	token, err := middleware.GenerateToken(user.ID.String(), user.Username, h.jwtSecret, h.jwtExpire)
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"token":   token,
		"user":    user,
	})
}

func (h *UserHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.userService.Login(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	token, err := middleware.GenerateToken(user.ID.String(), user.Username, h.jwtSecret, h.jwtExpire)
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"token":   token,
		"user":    user,
	})
}

func (h *UserHandler) GetMe(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	me, err := h.userService.GetMe(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, me)
}

// GetNotices 取出并清空当前用户的通知
func (h *UserHandler) GetNotices(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	notices, err := h.userService.DrainNotices(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if notices == nil {
		notices = []services.Notice{}
	}

	c.JSON(http.StatusOK, gin.H{"notices": notices})
}

// UpdateProfile 支持 multipart(display_name, bio, avatar) 和 JSON 两种请求体
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req services.UpdateProfileRequest
	var avatar *media.Upload

	if strings.HasPrefix(c.ContentType(), "application/json") {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	} else {
		if value, ok := c.GetPostForm("display_name"); ok {
			req.DisplayName = &value
		}
		if value, ok := c.GetPostForm("bio"); ok {
			req.Bio = &value
		}

		file, header, err := c.Request.FormFile("avatar")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid avatar upload"})
			return
		default:
			defer file.Close()
			avatar = &media.Upload{
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Size:        header.Size,
				Body:        file,
			}
		}
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), userID, &req, avatar)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Profile updated successfully",
		"user":    user,
	})
}

func (h *UserHandler) Search(c *gin.Context) {
	offset, ok := parseOffset(c)
	if !ok {
		return
	}
	limit, ok := parseLimit(c, h.pageSize, h.maxPageSize)
	if !ok {
		return
	}

	users, err := h.userService.Search(c.Request.Context(), c.Query("q"), offset, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users":  users,
		"offset": offset,
		"limit":  limit,
	})
}

// GetProfile 路由参数与关注接口共用 :id，这里按用户名解析
func (h *UserHandler) GetProfile(c *gin.Context) {
	var viewerID *uuid.UUID
	if id, ok := middleware.GetUserID(c); ok {
		viewerID = &id
	}

	profile, err := h.userService.GetProfile(c.Request.Context(), c.Param("id"), viewerID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

func (h *UserHandler) ToggleFollow(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	targetID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	state, err := h.toggleService.Toggle(c.Request.Context(), services.RelationFollow, userID, targetID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"following": state.Active()})
}
