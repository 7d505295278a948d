package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/short-video/short-video/internal/config"
	"github.com/short-video/short-video/internal/handlers"
	"github.com/short-video/short-video/internal/middleware"
	"github.com/short-video/short-video/internal/repository"
	"github.com/short-video/short-video/internal/services"
	"github.com/short-video/short-video/pkg/cache"
	"github.com/short-video/short-video/pkg/logger"
	"github.com/short-video/short-video/pkg/media"
	"github.com/short-video/short-video/pkg/queue"
)

func main() {
	// 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	logger := logger.NewLogger(cfg.Log.Level)
	logger.Info("Starting Short Video API server...")

	gin.SetMode(cfg.Server.Mode)

	// 初始化数据库
	db, err := repository.NewDatabase(&cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	// 自动迁移数据库表
	if err := db.AutoMigrate(); err != nil {
		logger.WithError(err).Fatal("Failed to migrate database")
	}

	// 初始化Redis，用于一次性提醒
	redisClient := cache.NewRedisClient(
		cfg.Redis.Addr(),
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Redis.PoolSize,
		cfg.Redis.MinIdleConns,
	)
	defer redisClient.Close()

	ctx := context.Background()
	if err := redisClient.Ping(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}

	// 初始化Kafka生产者
	videoEventsProducer := queue.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.VideoEvents)
	defer videoEventsProducer.Close()

	userEventsProducer := queue.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.UserEvents)
	defer userEventsProducer.Close()

	// 初始化对象存储
	store, err := media.NewObjectStore(ctx, &cfg.Media)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize media store")
	}
	uploader := media.NewUploader(store, &cfg.Media, logger)

	// 初始化限流
	if err := middleware.InitSentinel("short-video-api", filepath.Join("logs", "sentinel")); err != nil {
		logger.WithError(err).Fatal("Failed to initialize sentinel")
	}
	uploadLimit, err := middleware.NewRateLimit("video-upload", cfg.RateLimit.UploadQPS)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load upload rate limit")
	}

	// 初始化仓库
	userRepo := repository.NewUserRepository(db.DB)
	followRepo := repository.NewFollowRepository(db.DB)
	videoRepo := repository.NewVideoRepository(db.DB)
	likeRepo := repository.NewLikeRepository(db.DB)
	commentRepo := repository.NewCommentRepository(db.DB)

	// 初始化服务
	noticeService := services.NewNoticeService(redisClient, cfg.Video.NoticeTTL, logger)
	feedService := services.NewFeedService(videoRepo, userRepo, likeRepo, commentRepo, cfg.Video.CommentsPreview, logger)
	toggleService := services.NewToggleService(likeRepo, followRepo, videoRepo, userRepo, videoEventsProducer, logger)
	commentService := services.NewCommentService(commentRepo, videoRepo, userRepo, videoEventsProducer, logger)
	videoService := services.NewVideoService(videoRepo, userRepo, uploader, noticeService, videoEventsProducer, cfg.Video.MaxPerUser, logger)
	userService := services.NewUserService(userRepo, followRepo, videoRepo, feedService, noticeService, uploader, userEventsProducer, logger)

	// 初始化处理器
	userHandler := handlers.NewUserHandler(userService, toggleService, cfg.JWT.Secret, cfg.JWT.ExpireTime, cfg.Video.DefaultPageSize, cfg.Video.MaxPageSize, logger)
	videoHandler := handlers.NewVideoHandler(feedService, videoService, toggleService, commentService, uploader, handlers.VideoHandlerConfig{
		PageSize:       cfg.Video.DefaultPageSize,
		MaxPageSize:    cfg.Video.MaxPageSize,
		MaxUploadBytes: cfg.Media.MaxVideoBytes,
	}, logger)

	router := handlers.NewRouter(handlers.RouterDeps{
		Users:       userHandler,
		Videos:      videoHandler,
		JWT:         &middleware.JWTConfig{Secret: cfg.JWT.Secret},
		UploadLimit: uploadLimit,
	})

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func init() {
	// 创建必要的目录
	dirs := []string{"logs", "configs"}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Printf("Failed to create directory %s: %v", dir, err)
		}
	}

	// 创建默认配置文件（如果不存在）
	configPath := "configs/config.yaml"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := createDefaultConfig(configPath); err != nil {
			log.Printf("Failed to create default config: %v", err)
		}
	}
}

func createDefaultConfig(path string) error {
	defaultConfig := `server:
  port: ":8080"
  mode: "debug"
  read_timeout: 60s
  write_timeout: 60s

database:
  host: "localhost"
  port: 5432
  user: "video"
  password: "videopass"
  dbname: "shortvideo"
  sslmode: "disable"
  max_open_conns: 50
  max_idle_conns: 10

redis:
  host: "localhost"
  port: 6379
  password: ""
  db: 0
  pool_size: 50
  min_idle_conns: 5

kafka:
  brokers:
    - "localhost:9092"
  group_id: "short-video-worker"
  topics:
    video_events: "video-events"
    user_events: "user-events"

jwt:
  secret: "your-secret-key-change-in-production"
  expire_time: 24h

log:
  level: "info"

video:
  max_per_user: 100       # 超出后淘汰最旧的视频
  default_page_size: 10
  max_page_size: 50
  comments_preview: 20
  notice_ttl: 168h

media:
  driver: "minio"         # minio | s3
  endpoint: "localhost:9000"
  access_key: "minioadmin"
  secret_key: "minioadmin"
  use_ssl: false
  region: "us-east-1"
  bucket: "short-video"
  max_video_bytes: 104857600
  max_avatar_bytes: 5242880
  thumbnails: true

rate_limit:
  upload_qps: 20`

	return os.WriteFile(path, []byte(defaultConfig), 0644)
}
