package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EncryptionKeySize はセッショントークン暗号鍵のバイト長（AES-256）。
const EncryptionKeySize = 32

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// 機密値（シークレット、鍵、APIキー）はログに出力しないこと。
type Config struct {
	// Environment
	AppEnv string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	JWTSecret     string
	EncryptionKey []byte
	EncryptionIV  []byte // 鍵導出のソルトとしてのみ使用する
	SessionTTL    time.Duration

	// LLM
	LLMAPIKey       string
	LLMBaseURL      string
	LLMSettingsFile string
	LLMTimeout      time.Duration

	// Google API
	GoogleAPITimeout time.Duration

	// Outbound
	OutboundGuard bool

	// Calendar
	TimeZone *time.Location

	// Database（任意。未設定時は失効リストをメモリで保持する）
	DatabaseURL string

	// Rate Limit（req/min/user）
	RateLimitAPI int
	RateLimitAI  int

	// Worker
	RevocationCleanupInterval time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort  string
	MetricsPort string
	BaseURL     string

	// Cookie
	CookieSecure bool
}

// IsDevelopment はローカル開発環境かどうかを返す。
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

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

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	rawKey := os.Getenv("ENCRYPTION_KEY")
	if rawKey == "" {
		missing = append(missing, "ENCRYPTION_KEY")
	}

	cfg.LLMAPIKey = os.Getenv("LLM_API_KEY")
	if cfg.LLMAPIKey == "" {
		missing = append(missing, "LLM_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Key material
	key, err := hex.DecodeString(rawKey)
	if err != nil {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be hex encoded: %w", err)
	}
	if len(key) != EncryptionKeySize {
		return nil, fmt.Errorf("ENCRYPTION_KEY must decode to %d bytes, got %d", EncryptionKeySize, len(key))
	}
	cfg.EncryptionKey = key

	if rawIV := os.Getenv("ENCRYPTION_IV"); rawIV != "" {
		iv, err := hex.DecodeString(rawIV)
		if err != nil {
			return nil, fmt.Errorf("ENCRYPTION_IV must be hex encoded: %w", err)
		}
		cfg.EncryptionIV = iv
	}

	// Optional fields with defaults
	cfg.AppEnv = getEnvString("APP_ENV", "production")
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", time.Hour)
	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive, got %s", cfg.SessionTTL)
	}
	cfg.LLMBaseURL = getEnvString("LLM_BASE_URL", "https://api.studio.nebius.com/v1/")
	cfg.LLMSettingsFile = getEnvString("LLM_SETTINGS_FILE", "")
	cfg.LLMTimeout = getEnvDuration("LLM_TIMEOUT", 30*time.Second)
	cfg.GoogleAPITimeout = getEnvDuration("GOOGLE_API_TIMEOUT", 15*time.Second)
	cfg.OutboundGuard = getEnvBool("OUTBOUND_GUARD", true)
	cfg.DatabaseURL = getEnvString("DATABASE_URL", "")
	cfg.RateLimitAPI = getEnvInt("RATE_LIMIT_API", 120)
	cfg.RateLimitAI = getEnvInt("RATE_LIMIT_AI", 20)
	cfg.RevocationCleanupInterval = getEnvDuration("REVOCATION_CLEANUP_INTERVAL", time.Hour)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.CookieSecure = !cfg.IsDevelopment()

	loc, err := time.LoadLocation(getEnvString("TIME_ZONE", "Local"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIME_ZONE: %w", err)
	}
	cfg.TimeZone = loc

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
	v := strings.TrimSpace(os.Getenv(key))
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
