package config

import (
	"fmt"
	"time"

	"echowaves-backend/pkg/env"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	MinIO      MinIOConfig
	JWT        JWTConfig
	Log        LogConfig
	Moderation ModerationConfig
	Messages   MessageConfig
	Broadcast  BroadcastConfig
	RateLimit  RateLimitConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Environment    string // development, staging, production
	ServiceName    string
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// DatabaseConfig holds CockroachDB configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
	Migrate  bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// MinIOConfig holds configuration of the attachment blob service
type MinIOConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	URLExpiry time.Duration
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret   string
	Audience string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string // debug, info, warn, error
	Format   string // json, text
	Output   string // stdout, file
	FilePath string
}

// ModerationConfig controls abuse-driven hiding
type ModerationConfig struct {
	// AbuseThreshold is the distinct-reporter count a message must exceed to be hidden
	AbuseThreshold int
	// BroadcastRetractions publishes a message_hidden event when a message is hidden
	BroadcastRetractions bool
}

// MessageConfig holds message admission and listing limits
type MessageConfig struct {
	PageSize          int
	AttachmentMaxSize int64
	AttachmentTypes   []string
	AttachmentURLBase string
}

// BroadcastConfig tunes the asynchronous fan-out worker
type BroadcastConfig struct {
	Workers        int
	QueueSize      int
	PublishTimeout time.Duration
}

// RateLimitConfig limits writes per user. Counters live in Redis.
type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

// DefaultAttachmentTypes are the content types accepted for attachments
var DefaultAttachmentTypes = []string{
	"application/msword",
	"application/pdf",
	"application/x-pdf",
	"application/x-download",
	"application/rtf",
	"image/gif",
	"image/jpeg",
	"image/png",
	"image/tiff",
	"image/rgb",
	"application/zip",
	"application/x-gzip",
}

const (
	DefaultAbuseThreshold    = 3
	DefaultPageSize          = 50
	DefaultAttachmentMaxSize = 5 * 1024 * 1024
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        env.GetInt("PORT", 8082),
			Environment: env.GetString("ENV", "development"),
			ServiceName: env.GetString("SERVICE_NAME", "chat-service"),
			CORSOrigins: env.GetSlice("CORS_ALLOWED_ORIGINS", []string{
				"http://localhost:3000",
				"http://127.0.0.1:3000",
			}),
			RequestTimeout: env.GetDuration("REQUEST_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     env.GetString("COCKROACH_HOST", "localhost"),
			Port:     env.GetInt("COCKROACH_PORT", 26257),
			User:     env.GetString("COCKROACH_USER", "root"),
			Password: env.GetStringFromFile("COCKROACH_PASSWORD", ""),
			Database: env.GetString("COCKROACH_DATABASE", "echowaves"),
			SSLMode:  env.GetString("COCKROACH_SSLMODE", "disable"),
			MaxConns: env.GetInt("DB_MAX_CONNS", 25),
			MinConns: env.GetInt("DB_MIN_CONNS", 5),
			Migrate:  env.GetBool("DB_MIGRATE", true),
		},
		Redis: RedisConfig{
			Host:     env.GetString("REDIS_HOST", "localhost"),
			Port:     env.GetInt("REDIS_PORT", 6379),
			Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:       env.GetInt("REDIS_DB", 0),
			PoolSize: env.GetInt("REDIS_POOL_SIZE", 10),
			Timeout:  env.GetDuration("REDIS_TIMEOUT", 5*time.Second),
		},
		MinIO: MinIOConfig{
			Enabled:   env.GetBool("MINIO_ENABLED", false),
			Endpoint:  env.GetString("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env.GetStringFromFile("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env.GetStringFromFile("MINIO_SECRET_KEY", "minioadmin"),
			UseSSL:    env.GetBool("MINIO_USE_SSL", false),
			Bucket:    env.GetString("MINIO_BUCKET", "attachments"),
			URLExpiry: env.GetDuration("MINIO_URL_EXPIRY", time.Hour),
		},
		JWT: JWTConfig{
			Secret:   env.GetStringFromFile("JWT_SECRET", ""),
			Audience: env.GetString("JWT_AUDIENCE", "echowaves-api"),
		},
		Log: LogConfig{
			Level:    env.GetString("LOG_LEVEL", "info"),
			Format:   env.GetString("LOG_FORMAT", "json"),
			Output:   env.GetString("LOG_OUTPUT", "stdout"),
			FilePath: env.GetString("LOG_FILE_PATH", "/logs/app.log"),
		},
		Moderation: ModerationConfig{
			AbuseThreshold:       env.GetInt("ABUSE_THRESHOLD", DefaultAbuseThreshold),
			BroadcastRetractions: env.GetBool("BROADCAST_RETRACTIONS", true),
		},
		Messages: MessageConfig{
			PageSize:          env.GetInt("MESSAGE_PAGE_SIZE", DefaultPageSize),
			AttachmentMaxSize: env.GetInt64("ATTACHMENT_MAX_SIZE", DefaultAttachmentMaxSize),
			AttachmentTypes:   env.GetSlice("ATTACHMENT_CONTENT_TYPES", DefaultAttachmentTypes),
			AttachmentURLBase: env.GetString("ATTACHMENT_URL_BASE", "/attachments"),
		},
		Broadcast: BroadcastConfig{
			Workers:        env.GetInt("BROADCAST_WORKERS", 4),
			QueueSize:      env.GetInt("BROADCAST_QUEUE_SIZE", 1024),
			PublishTimeout: env.GetDuration("BROADCAST_PUBLISH_TIMEOUT", 2*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:  env.GetBool("RATE_LIMIT_ENABLED", true),
			Requests: env.GetInt("RATE_LIMIT_REQUESTS", 30),
			Window:   env.GetDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Environment == "production" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}
	if c.Moderation.AbuseThreshold < 0 {
		return fmt.Errorf("ABUSE_THRESHOLD must not be negative")
	}
	if c.Messages.PageSize < 1 {
		return fmt.Errorf("MESSAGE_PAGE_SIZE must be positive")
	}
	if c.Messages.AttachmentMaxSize < 1 {
		return fmt.Errorf("ATTACHMENT_MAX_SIZE must be positive")
	}
	if c.Broadcast.Workers < 1 {
		return fmt.Errorf("BROADCAST_WORKERS must be positive")
	}
	if c.Broadcast.QueueSize < 1 {
		return fmt.Errorf("BROADCAST_QUEUE_SIZE must be positive")
	}
	if c.Broadcast.PublishTimeout <= 0 {
		return fmt.Errorf("BROADCAST_PUBLISH_TIMEOUT must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests < 1 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

// DatabaseURL builds the pgx connection string
func (d DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}
