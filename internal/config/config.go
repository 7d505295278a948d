package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	Video     VideoConfig     `mapstructure:"video"`
	Media     MediaConfig     `mapstructure:"media"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogQueries   bool   `mapstructure:"log_queries"`
}

type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
	Topics  Topics   `mapstructure:"topics"`
}

type Topics struct {
	VideoEvents string `mapstructure:"video_events"`
	UserEvents  string `mapstructure:"user_events"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_time"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// VideoConfig 视频相关策略
type VideoConfig struct {
	MaxPerUser      int           `mapstructure:"max_per_user"` // 每个用户最多保存的视频数
	DefaultPageSize int           `mapstructure:"default_page_size"`
	MaxPageSize     int           `mapstructure:"max_page_size"`
	CommentsPreview int           `mapstructure:"comments_preview"`
	NoticeTTL       time.Duration `mapstructure:"notice_ttl"`
}

type MediaConfig struct {
	Driver         string `mapstructure:"driver"` // minio | s3
	Endpoint       string `mapstructure:"endpoint"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	UseSSL         bool   `mapstructure:"use_ssl"`
	Region         string `mapstructure:"region"`
	Bucket         string `mapstructure:"bucket"`
	PublicBaseURL  string `mapstructure:"public_base_url"`
	TempDir        string `mapstructure:"temp_dir"`
	MaxVideoBytes  int64  `mapstructure:"max_video_bytes"`
	MaxAvatarBytes int64  `mapstructure:"max_avatar_bytes"`
	Thumbnails     bool   `mapstructure:"thumbnails"`
}

type RateLimitConfig struct {
	UploadQPS float64 `mapstructure:"upload_qps"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 60*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 50)
	v.SetDefault("redis.min_idle_conns", 5)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "short-video-worker")
	v.SetDefault("kafka.topics.video_events", "video-events")
	v.SetDefault("kafka.topics.user_events", "user-events")

	v.SetDefault("jwt.expire_time", 24*time.Hour)
	v.SetDefault("log.level", "info")

	v.SetDefault("video.max_per_user", 100)
	v.SetDefault("video.default_page_size", 10)
	v.SetDefault("video.max_page_size", 50)
	v.SetDefault("video.comments_preview", 20)
	v.SetDefault("video.notice_ttl", 7*24*time.Hour)

	v.SetDefault("media.driver", "minio")
	v.SetDefault("media.region", "us-east-1")
	v.SetDefault("media.bucket", "short-video")
	v.SetDefault("media.temp_dir", os.TempDir())
	v.SetDefault("media.max_video_bytes", int64(100*1024*1024))
	v.SetDefault("media.max_avatar_bytes", int64(5*1024*1024))
	v.SetDefault("media.thumbnails", true)

	v.SetDefault("rate_limit.upload_qps", 20)
}

func LoadConfig() (*Config, error) {
	// .env 只用于本地开发，不存在时忽略
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	return Load(configPath)
}

// Load 读取指定路径的配置文件，环境变量 SHORTVIDEO_<SECTION>_<KEY> 优先
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("shortvideo")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret must be set")
	}
	if c.Video.MaxPerUser < 1 {
		return fmt.Errorf("video.max_per_user must be positive, got %d", c.Video.MaxPerUser)
	}
	if c.Video.DefaultPageSize < 1 || c.Video.DefaultPageSize > c.Video.MaxPageSize {
		return fmt.Errorf("video.default_page_size must be within 1..%d", c.Video.MaxPageSize)
	}
	switch c.Media.Driver {
	case "minio", "s3":
	default:
		return fmt.Errorf("unknown media driver %q", c.Media.Driver)
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
