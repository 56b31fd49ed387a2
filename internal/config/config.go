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

	// Redis（拡張機能トークン受け渡し用の期限付きKVストア）
	RedisURL string

	// LLMフォールバック
	AIRouterURL     string
	LLMTimeout      time.Duration
	LLMMaxTokens    int
	ParseHTMLBudget int // LLMに渡すHTMLの最大バイト数

	// 価格再チェックワーカー
	PriceCheckInterval time.Duration
	PriceCheckTimeout  time.Duration
	PriceCheckMaxSize  int64
	PriceCheckBatch    int

	// Rate Limit（req/min/user）
	RateLimitGeneral int
	RateLimitSync    int

	// 拡張機能トークン
	TokenStateTTL time.Duration

	// Server
	ServerPort string

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

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}

	cfg.AIRouterURL = os.Getenv("AI_ROUTER_URL")
	if cfg.AIRouterURL == "" {
		missing = append(missing, "AI_ROUTER_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// AI_ROUTER_URLの末尾スラッシュは除去して正規化する
	cfg.AIRouterURL = strings.TrimRight(cfg.AIRouterURL, "/")

	// Optional fields with defaults
	cfg.LLMTimeout = getEnvDuration("LLM_TIMEOUT", 10*time.Second)
	cfg.LLMMaxTokens = getEnvInt("LLM_MAX_TOKENS", 500)
	cfg.ParseHTMLBudget = getEnvInt("PARSE_HTML_BUDGET", 30000)
	cfg.PriceCheckInterval = getEnvDuration("PRICECHECK_INTERVAL", 6*time.Hour)
	cfg.PriceCheckTimeout = getEnvDuration("PRICECHECK_TIMEOUT", 10*time.Second)
	cfg.PriceCheckMaxSize = getEnvInt64("PRICECHECK_MAX_SIZE", 5242880)
	cfg.PriceCheckBatch = getEnvInt("PRICECHECK_BATCH", 50)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSync = getEnvInt("RATE_LIMIT_SYNC", 10)
	cfg.TokenStateTTL = getEnvDuration("TOKEN_STATE_TTL", 5*time.Minute)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
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
