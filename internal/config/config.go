package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// recommendationLimitCeiling は推薦件数上限のハードリミット。
// RECOMMENDATION_MAX_LIMIT にこれより大きい値を設定しても丸められる。
const recommendationLimitCeiling = 50

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Ollama
	OllamaHost         string
	OllamaModel        string
	OllamaTimeout      time.Duration
	OllamaMaxRetries   int
	OllamaRetryBackoff time.Duration
	OllamaTemperature  float64

	// Circuit Breaker
	ModelBreakerFailures int
	ModelBreakerTimeout  time.Duration

	// Recommendation
	RecommendationDefaultLimit int
	RecommendationMaxLimit     int

	// Rate Limit
	RateLimitGeneral   int
	RateLimitRecommend int

	// Session
	SessionCleanupInterval time.Duration

	// Server
	ServerPort string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
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

	cfg.OllamaHost = strings.TrimRight(os.Getenv("OLLAMA_HOST"), "/")
	if cfg.OllamaHost == "" {
		missing = append(missing, "OLLAMA_HOST")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.OllamaModel = getEnvString("OLLAMA_MODEL", "qwen2.5:7b")
	cfg.OllamaTimeout = getEnvDuration("OLLAMA_TIMEOUT", 60*time.Second)
	cfg.OllamaMaxRetries = getEnvInt("OLLAMA_MAX_RETRIES", 1)
	if cfg.OllamaMaxRetries < 0 {
		cfg.OllamaMaxRetries = 0
	}
	cfg.OllamaRetryBackoff = getEnvDuration("OLLAMA_RETRY_BACKOFF", 500*time.Millisecond)
	cfg.OllamaTemperature = getEnvFloat("OLLAMA_TEMPERATURE", 0.8)
	cfg.ModelBreakerFailures = getEnvInt("MODEL_BREAKER_FAILURES", 5)
	cfg.ModelBreakerTimeout = getEnvDuration("MODEL_BREAKER_TIMEOUT", 30*time.Second)
	cfg.RecommendationMaxLimit = clampInt(getEnvInt("RECOMMENDATION_MAX_LIMIT", recommendationLimitCeiling), 1, recommendationLimitCeiling)
	cfg.RecommendationDefaultLimit = clampInt(getEnvInt("RECOMMENDATION_DEFAULT_LIMIT", 10), 1, cfg.RecommendationMaxLimit)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitRecommend = getEnvInt("RATE_LIMIT_RECOMMEND", 10)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", 24*time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = getEnvBool("COOKIE_SECURE", false)
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:5173")

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

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
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

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
