package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionSecret string
	SessionMaxAge int

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int
	RateLimitPosting int

	// Redis（空の場合は購読者数キャッシュを使用しない）
	RedisAddr          string
	SubscriberCountTTL time.Duration

	// Object storage（空の場合は予想画像を受け付けない）
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// Prediction image
	ImageURLTTL       time.Duration
	ImageFetchTimeout time.Duration

	// Event relay（KafkaBrokersが空の場合は中継しない）
	KafkaBrokers       []string
	KafkaTopic         string
	RelayInterval      time.Duration
	RelayBatchSize     int
	RelayMaxConcurrent int

	// Cleanup
	EventRetentionDays int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// Logging（debug, info, warn, error）
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	if cfg.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}

	cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")
	if cfg.GoogleRedirectURL == "" {
		missing = append(missing, "GOOGLE_REDIRECT_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPosting = getEnvInt("RATE_LIMIT_POSTING", 30)
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "")
	cfg.SubscriberCountTTL = getEnvDuration("SUBSCRIBER_COUNT_TTL", 5*time.Minute)
	cfg.MinioEndpoint = getEnvString("MINIO_ENDPOINT", "")
	cfg.MinioAccessKey = getEnvString("MINIO_ACCESS_KEY", "")
	cfg.MinioSecretKey = getEnvString("MINIO_SECRET_KEY", "")
	cfg.MinioBucket = getEnvString("MINIO_BUCKET", "vip-predictions")
	cfg.MinioUseSSL = getEnvBool("MINIO_USE_SSL", false)
	cfg.ImageURLTTL = getEnvDuration("IMAGE_URL_TTL", 15*time.Minute)
	cfg.ImageFetchTimeout = getEnvDuration("IMAGE_FETCH_TIMEOUT", 10*time.Second)
	cfg.KafkaBrokers = getEnvList("KAFKA_BROKERS")
	cfg.KafkaTopic = getEnvString("KAFKA_TOPIC", "channel-events")
	cfg.RelayInterval = getEnvDuration("RELAY_INTERVAL", 5*time.Second)
	cfg.RelayBatchSize = getEnvInt("RELAY_BATCH_SIZE", 100)
	cfg.RelayMaxConcurrent = getEnvInt("RELAY_MAX_CONCURRENT", 10)
	cfg.EventRetentionDays = getEnvInt("EVENT_RETENTION_DAYS", 7)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

// getEnvList はカンマ区切りの値を空要素を除いて返す。
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
