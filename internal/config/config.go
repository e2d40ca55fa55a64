// Package config provides configuration management.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration.
type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Upload  UploadConfig
	Janitor JanitorConfig
	Archive ArchiveConfig
	Logging LoggingConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// StoreConfig holds metadata store configuration.
type StoreConfig struct {
	// DatabaseURL is the "store-equivalent connection string" of spec.md §6
	// (there called MONGO_URI); this implementation targets Postgres.
	DatabaseURL  string
	MaxOpenConns int
	MaxIdleConns int
}

// UploadConfig holds the core upload parameters.
type UploadConfig struct {
	ChunkSize int64
	UploadDir string
	TempDir   string
}

// JanitorConfig holds the periodic sweep parameters.
type JanitorConfig struct {
	Interval         time.Duration
	SessionRetention time.Duration
	ScratchRetention time.Duration
}

// ArchiveConfig holds the optional best-effort S3 archival parameters.
type ArchiveConfig struct {
	Bucket   string
	Region   string
	Endpoint string
}

// Enabled reports whether archival is configured at all.
func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != ""
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Server.Port = getEnvInt("PORT", 3001)
	cfg.Server.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second)
	cfg.Server.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second)
	cfg.Server.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)

	cfg.Store.DatabaseURL = getEnvRequired("DATABASE_URL")
	cfg.Store.MaxOpenConns = getEnvInt("DATABASE_MAX_OPEN_CONNS", 25)
	cfg.Store.MaxIdleConns = getEnvInt("DATABASE_MAX_IDLE_CONNS", 5)

	cfg.Upload.ChunkSize = getEnvInt64("CHUNK_SIZE", 5*1024*1024)
	cfg.Upload.UploadDir = getEnv("UPLOAD_DIR", "upload")
	cfg.Upload.TempDir = getEnv("TEMP_DIR", "temp")

	cfg.Janitor.Interval = getEnvDuration("JANITOR_INTERVAL", time.Hour)
	cfg.Janitor.SessionRetention = getEnvDuration("SESSION_RETENTION", 24*time.Hour)
	cfg.Janitor.ScratchRetention = getEnvDuration("SCRATCH_RETENTION", time.Hour)

	cfg.Archive.Bucket = getEnv("ARCHIVE_BUCKET", "")
	cfg.Archive.Region = getEnv("ARCHIVE_REGION", "us-east-1")
	cfg.Archive.Endpoint = getEnv("ARCHIVE_ENDPOINT", "")

	cfg.Logging.Level = getEnv("LOG_LEVEL", "info")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Server.Port)
	}
	if c.Store.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Upload.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive")
	}
	if c.Upload.UploadDir == "" {
		return fmt.Errorf("UPLOAD_DIR must not be empty")
	}
	if c.Upload.TempDir == "" {
		return fmt.Errorf("TEMP_DIR must not be empty")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvRequired(key string) string {
	return os.Getenv(key)
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
