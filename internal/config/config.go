package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Feed driver names accepted in FEED_DRIVER.
const (
	FeedDriverPostgres = "postgres"
	FeedDriverKafka    = "kafka"
)

// Blob driver names accepted in BLOB_DRIVER.
const (
	BlobDriverMemory = "memory"
	BlobDriverS3     = "s3"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Record store.
	DatabaseURL string
	FeedChannel string

	// Change-feed driver selection. Postgres LISTEN/NOTIFY by default; kafka
	// for deployments where the table is fronted by a CDC relay.
	FeedDriver     string
	KafkaBrokers   []string
	KafkaFeedTopic string
	KafkaGroupID   string

	// Blob storage for raw uploaded files.
	BlobDriver      string
	BlobPrefix      string
	BlobS3Bucket    string
	BlobS3Region    string
	BlobS3Endpoint  string
	BlobS3PathStyle bool

	// Upload limits.
	MaxUploadBytes int64

	// Auth provider (consumed as a black box).
	AuthURL     string
	AuthAnonKey string
	AuthTimeout time.Duration

	// External prediction API.
	ForecastURL       string
	ForecastTimeout   time.Duration
	ForecastCacheSize int
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDurationEnv("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	authTimeout, err := parseDurationEnv("AUTH_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	forecastTimeout, err := parseDurationEnv("FORECAST_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	maxUploadBytes, err := parseInt64Env("MAX_UPLOAD_BYTES", 10<<20)
	if err != nil {
		return nil, err
	}
	forecastCacheSize, err := parseIntEnv("FORECAST_CACHE_SIZE", 100)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DatabaseURL: os.Getenv("DATABASE_URL"),
		FeedChannel: envOrDefault("FEED_CHANNEL", "earthquake_record_changes"),

		FeedDriver:     envOrDefault("FEED_DRIVER", FeedDriverPostgres),
		KafkaBrokers:   splitList(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaFeedTopic: envOrDefault("KAFKA_FEED_TOPIC", "earthquake-record-changes"),
		KafkaGroupID:   envOrDefault("KAFKA_GROUP_ID", "eq-records-live-view"),

		BlobDriver:      envOrDefault("BLOB_DRIVER", BlobDriverS3),
		BlobPrefix:      envOrDefault("BLOB_PREFIX", "earthquake-bucket"),
		BlobS3Bucket:    os.Getenv("BLOB_S3_BUCKET"),
		BlobS3Region:    os.Getenv("BLOB_S3_REGION"),
		BlobS3Endpoint:  os.Getenv("BLOB_S3_ENDPOINT"),
		BlobS3PathStyle: strings.EqualFold(os.Getenv("BLOB_S3_PATH_STYLE"), "true"),

		MaxUploadBytes: maxUploadBytes,

		AuthURL:     os.Getenv("AUTH_URL"),
		AuthAnonKey: os.Getenv("AUTH_ANON_KEY"),
		AuthTimeout: authTimeout,

		ForecastURL:       os.Getenv("FORECAST_URL"),
		ForecastTimeout:   forecastTimeout,
		ForecastCacheSize: forecastCacheSize,
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	switch cfg.FeedDriver {
	case FeedDriverPostgres:
	case FeedDriverKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when FEED_DRIVER=kafka")
		}
		if cfg.KafkaFeedTopic == "" {
			return nil, errors.New("KAFKA_FEED_TOPIC is required when FEED_DRIVER=kafka")
		}
	default:
		return nil, fmt.Errorf("unknown FEED_DRIVER %q", cfg.FeedDriver)
	}
	switch cfg.BlobDriver {
	case BlobDriverMemory:
	case BlobDriverS3:
		if cfg.BlobS3Bucket == "" {
			return nil, errors.New("BLOB_S3_BUCKET is required when BLOB_DRIVER=s3")
		}
	default:
		return nil, fmt.Errorf("unknown BLOB_DRIVER %q", cfg.BlobDriver)
	}
	if cfg.AuthURL == "" {
		return nil, errors.New("AUTH_URL is required")
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, errors.New("MAX_UPLOAD_BYTES must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDurationEnv(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseIntEnv(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseInt64Env(key string, fallback int64) (int64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
