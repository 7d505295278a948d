package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/short-video/short-video/internal/middleware"
)

type RouterDeps struct {
	Users       *UserHandler
	Videos      *VideoHandler
	JWT         *middleware.JWTConfig
	UploadLimit gin.HandlerFunc
}

func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	auth := middleware.NewJWTAuth(deps.JWT)
	optionalAuth := middleware.OptionalJWTAuth(deps.JWT)

	uploadLimit := deps.UploadLimit
	if uploadLimit == nil {
		uploadLimit = func(c *gin.Context) { c.Next() }
	}

	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", deps.Users.Register)
			authGroup.POST("/login", deps.Users.Login)
		}

		videos := v1.Group("/videos")
		{
			videos.GET("/feed", optionalAuth, deps.Videos.Feed)
			videos.POST("/upload", auth, uploadLimit, deps.Videos.Upload)
			videos.GET("/:id", optionalAuth, deps.Videos.GetVideo)
			videos.DELETE("/:id", auth, deps.Videos.Delete)
			videos.GET("/:id/comments", deps.Videos.ListComments)
			videos.POST("/:id/comments", auth, deps.Videos.CreateComment)
			videos.POST("/:id/like", auth, deps.Videos.ToggleLike)
			videos.GET("/:id/like-status", auth, deps.Videos.LikeStatus)
		}

		users := v1.Group("/users")
		{
			users.GET("/me", auth, deps.Users.GetMe)
			users.GET("/me/notices", auth, deps.Users.GetNotices)
			users.PUT("/profile", auth, deps.Users.UpdateProfile)
			users.GET("/search", deps.Users.Search)
			// :id 在这里是用户名，gin 要求同一层的参数名一致
			users.GET("/:id", optionalAuth, deps.Users.GetProfile)
			users.POST("/:id/follow", auth, deps.Users.ToggleFollow)
		}
	}

	return router
}
