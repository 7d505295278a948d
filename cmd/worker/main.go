package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/short-video/short-video/internal/config"
	"github.com/short-video/short-video/internal/workers"
	"github.com/short-video/short-video/pkg/logger"
	"github.com/short-video/short-video/pkg/media"
	"github.com/short-video/short-video/pkg/queue"
)

// 孤儿文件第 n 次重试前等待 n 倍该时长
const orphanRetryDelay = 10 * time.Second

func main() {
	// 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	logger := logger.NewLogger(cfg.Log.Level)
	logger.Info("Starting Short Video Worker...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化对象存储，用于释放孤儿文件
	store, err := media.NewObjectStore(ctx, &cfg.Media)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize media store")
	}
	uploader := media.NewUploader(store, &cfg.Media, logger)

	// 初始化Kafka消费者
	videoEventsConsumer := queue.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.VideoEvents, cfg.Kafka.GroupID, logger)
	userEventsConsumer := queue.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.UserEvents, cfg.Kafka.GroupID, logger)

	// 初始化Kafka生产者（重试事件写回视频事件topic）
	videoEventsProducer := queue.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.VideoEvents)
	defer videoEventsProducer.Close()

	eventWorker := workers.NewEventWorker(
		[]workers.Subscriber{videoEventsConsumer, userEventsConsumer},
		uploader,
		videoEventsProducer,
		orphanRetryDelay,
		logger,
	)

	// 启动工作处理器
	go func() {
		if err := eventWorker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("Event worker stopped with error")
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")

	cancel()
	if err := eventWorker.Stop(); err != nil {
		logger.WithError(err).Error("Failed to stop event worker")
	}

	logger.Info("Worker exited")
}
