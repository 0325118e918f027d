package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Storage     StorageConfig
	Tracing     TracingConfig `mapstructure:"tracing"`
	Redis       RedisConfig
	Log         LogConfig `mapstructure:"log"`
	AI          AIConfig
	Search      SearchConfig      `mapstructure:"search"`
	Scraper     ScraperConfig     `mapstructure:"scraper"`
	Video       VideoConfig       `mapstructure:"video"`
	Email       EmailConfig       `mapstructure:"email"`
	Generation  GenerationConfig  `mapstructure:"generation"`
	Leaderboard LeaderboardConfig `mapstructure:"leaderboard"`
	CORS        CORSConfig        `mapstructure:"cors"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	SiteURL     string            `mapstructure:"site_url"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool   `mapstructure:"-"`
	MigrateOnly  bool   `mapstructure:"-"`
	ConfigDir    string `mapstructure:"-"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RateLimitConfig 全局按 IP 限流；GenerationPerHour 按用户限制会调用模型的请求
type RateLimitConfig struct {
	MaxRequests       int `mapstructure:"max_requests"`
	WindowMinutes     int `mapstructure:"window_minutes"`
	GenerationPerHour int `mapstructure:"generation_per_hour"`
}

type AIConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	Temperature    float64 `mapstructure:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxSourceChars int     `mapstructure:"max_source_chars"`
}

type SearchConfig struct {
	MaxResults int    `mapstructure:"max_results"`
	UserAgent  string `mapstructure:"user_agent"`
}

type ScraperConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type VideoConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Endpoint       string `mapstructure:"endpoint"`
	APIKey         string `mapstructure:"api_key"`
	PublicBaseURL  string `mapstructure:"public_base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	ProbeDuration  bool   `mapstructure:"probe_duration"`
}

type EmailConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	FromEmail  string `mapstructure:"from_email"`
	FromName   string `mapstructure:"from_name"`
	MaxRetries int    `mapstructure:"max_retries"`
}

type GenerationConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	StaleAfter      time.Duration `mapstructure:"stale_after"`
	StepAttempts    int           `mapstructure:"step_attempts"`
	StepBackoff     time.Duration `mapstructure:"step_backoff"`
	Workers         int           `mapstructure:"workers"`
	FlashcardTarget int           `mapstructure:"flashcard_target"`
}

type LeaderboardConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MaxUploadMB   int64  `mapstructure:"max_upload_mb"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioSecure   bool   `mapstructure:"minio_secure"`
	OSSEndpoint   string `mapstructure:"oss_endpoint"`
	OSSAccessKey  string `mapstructure:"oss_access_key"`
	OSSSecretKey  string `mapstructure:"oss_secret_key"`
	OSSBucket     string `mapstructure:"oss_bucket"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Enabled     bool
	Host        string
	Port        int
	Password    string
	DB          int
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type LogConfig struct {
	// 为空时按 server.mode 决定：debug 模式 debug，否则 info
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.charset", "utf8mb4")
	viper.SetDefault("database.parsetime", true)
	viper.SetDefault("jwt.expire_hours", 72)
	viper.SetDefault("storage.type", "local")
	viper.SetDefault("storage.local_path", "uploads")
	viper.SetDefault("storage.max_upload_mb", 20)
	viper.SetDefault("ai.model", "gpt-4o-mini")
	viper.SetDefault("ai.temperature", 0.7)
	viper.SetDefault("ai.timeout_seconds", 120)
	viper.SetDefault("ai.max_source_chars", 60000)
	viper.SetDefault("search.max_results", 5)
	viper.SetDefault("search.user_agent", "suma-backend/1.0")
	viper.SetDefault("scraper.base_url", "https://api.firecrawl.dev")
	viper.SetDefault("scraper.timeout_seconds", 60)
	viper.SetDefault("video.timeout_seconds", 600)
	viper.SetDefault("email.base_url", "https://api.sendgrid.com")
	viper.SetDefault("email.max_retries", 4)
	viper.SetDefault("generation.poll_interval", time.Second)
	viper.SetDefault("generation.stale_after", 5*time.Minute)
	viper.SetDefault("generation.step_attempts", 3)
	viper.SetDefault("generation.step_backoff", 2*time.Second)
	viper.SetDefault("generation.workers", 2)
	viper.SetDefault("generation.flashcard_target", 20)
	viper.SetDefault("leaderboard.cache_ttl", 30*time.Second)
	viper.SetDefault("redis.pool_size", 20)
	viper.SetDefault("redis.dial_timeout", 3*time.Second)
	viper.SetDefault("log.file", "logs/suma.log")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 5)
	viper.SetDefault("log.max_age_days", 30)
	viper.SetDefault("rate_limit.max_requests", 600)
	viper.SetDefault("rate_limit.window_minutes", 1)
	viper.SetDefault("rate_limit.generation_per_hour", 30)
	viper.SetDefault("site_url", "http://localhost:3000")
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("SUMA")
	viper.AutomaticEnv()
	setDefaults()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.enabled", "REDIS_ENABLED")
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")
	viper.BindEnv("site_url", "SITE_URL")

	// AI
	viper.BindEnv("ai.base_url", "AI_BASE_URL")
	viper.BindEnv("ai.api_key", "AI_API_KEY")
	viper.BindEnv("ai.model", "AI_MODEL")

	// 外部服务
	viper.BindEnv("scraper.api_key", "FIRECRAWL_API_KEY")
	viper.BindEnv("scraper.base_url", "FIRECRAWL_BASE_URL")
	viper.BindEnv("video.endpoint", "VIDEO_ENDPOINT")
	viper.BindEnv("video.api_key", "VIDEO_API_KEY")
	viper.BindEnv("video.public_base_url", "VIDEO_PUBLIC_BASE_URL")
	viper.BindEnv("email.api_key", "SENDGRID_API_KEY")
	viper.BindEnv("email.from_email", "SENDGRID_FROM_EMAIL")
	viper.BindEnv("email.from_name", "SENDGRID_FROM_NAME")

	// Storage / OSS
	viper.BindEnv("storage.type", "STORAGE_TYPE")
	viper.BindEnv("storage.oss_endpoint", "OSS_ENDPOINT")
	viper.BindEnv("storage.oss_access_key", "OSS_ACCESS_KEY")
	viper.BindEnv("storage.oss_secret_key", "OSS_SECRET_KEY")
	viper.BindEnv("storage.oss_bucket", "OSS_BUCKET")
	viper.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour
	cfg.ConfigDir = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	// 生产环境校验 JWT Secret 强度
	if c.Server.Mode == "release" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
	}
	if c.Generation.StepAttempts < 1 {
		return fmt.Errorf("generation.step_attempts must be >= 1, got %d", c.Generation.StepAttempts)
	}
	if c.Generation.PollInterval <= 0 {
		return fmt.Errorf("generation.poll_interval must be positive")
	}
	if c.Video.Enabled && c.Video.Endpoint == "" {
		return fmt.Errorf("video.endpoint is required when video is enabled")
	}
	return nil
}
