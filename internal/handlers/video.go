package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/short-video/short-video/internal/middleware"
	"github.com/short-video/short-video/internal/services"
	"github.com/short-video/short-video/pkg/logger"
	"github.com/short-video/short-video/pkg/media"
)

// multipart 头部和 caption 字段的余量
const formOverhead = 1 << 20

// VideoUploader 把上传的文件写入对象存储
type VideoUploader interface {
	UploadVideo(ctx context.Context, ownerID uuid.UUID, up media.Upload) (*media.Refs, error)
}

type VideoHandler struct {
	feedService    *services.FeedService
	videoService   *services.VideoService
	toggleService  *services.ToggleService
	commentService *services.CommentService
	uploader       VideoUploader
	pageSize       int
	maxPageSize    int
	maxUploadBytes int64
	logger         *logger.Logger
}

type VideoHandlerConfig struct {
	PageSize       int
	MaxPageSize    int
	MaxUploadBytes int64
}

func NewVideoHandler(
	feedService *services.FeedService,
	videoService *services.VideoService,
	toggleService *services.ToggleService,
	commentService *services.CommentService,
	uploader VideoUploader,
	cfg VideoHandlerConfig,
	logger *logger.Logger,
) *VideoHandler {
	return &VideoHandler{
		feedService:    feedService,
		videoService:   videoService,
		toggleService:  toggleService,
		commentService: commentService,
		uploader:       uploader,
		pageSize:       cfg.PageSize,
		maxPageSize:    cfg.MaxPageSize,
		maxUploadBytes: cfg.MaxUploadBytes,
		logger:         logger,
	}
}

type createCommentRequest struct {
	Text string `json:"text"`
}

func (h *VideoHandler) Feed(c *gin.Context) {
	cursor, ok := parseCursor(c)
	if !ok {
		return
	}
	limit, ok := parseLimit(c, h.pageSize, h.maxPageSize)
	if !ok {
		return
	}

	page, err := h.feedService.GetPage(c.Request.Context(), cursor, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// GetVideo 每次访问计一次播放；登录用户额外返回是否已点赞
func (h *VideoHandler) GetVideo(c *gin.Context) {
	videoID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	detail, err := h.feedService.GetOne(c.Request.Context(), videoID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	liked := false
	if userID, ok := middleware.GetUserID(c); ok {
		liked, err = h.toggleService.IsActive(c.Request.Context(), services.RelationLike, userID, videoID)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"video": detail,
		"liked": liked,
	})
}

func (h *VideoHandler) ListComments(c *gin.Context) {
	videoID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	cursor, ok := parseCursor(c)
	if !ok {
		return
	}
	limit, ok := parseLimit(c, h.pageSize, h.maxPageSize)
	if !ok {
		return
	}

	page, err := h.commentService.ListComments(c.Request.Context(), videoID, cursor, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// Upload 先写对象存储再落库，落库和淘汰由 VideoService 完成
func (h *VideoHandler) Upload(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	limit := h.maxUploadBytes + formOverhead
	if c.Request.ContentLength > limit {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Video file too large"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	file, header, err := c.Request.FormFile("video")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Video file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Video file is required"})
		return
	}
	defer file.Close()

	refs, err := h.uploader.UploadVideo(c.Request.Context(), userID, media.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	result, err := h.videoService.CreateVideo(c.Request.Context(), userID, c.PostForm("caption"), *refs)
	if err != nil {
		// 视频已保存但淘汰失败，仍然返回 201，由 warning 告知客户端
		if errors.Is(err, services.ErrEvictionFailed) && result != nil {
			c.JSON(http.StatusCreated, result)
			return
		}
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *VideoHandler) Delete(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	videoID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.videoService.DeleteVideo(c.Request.Context(), userID, videoID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Video deleted successfully"})
}

func (h *VideoHandler) ToggleLike(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	videoID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	state, err := h.toggleService.Toggle(c.Request.Context(), services.RelationLike, userID, videoID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"liked": state.Active()})
}

func (h *VideoHandler) LikeStatus(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	videoID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	liked, err := h.toggleService.IsActive(c.Request.Context(), services.RelationLike, userID, videoID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"liked": liked})
}

func (h *VideoHandler) CreateComment(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	videoID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req createCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	comment, err := h.commentService.CreateComment(c.Request.Context(), userID, videoID, req.Text)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, comment)
}
