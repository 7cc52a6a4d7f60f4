package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultEnvFile は起動時に読み込む環境変数ファイル。存在しなくてもよい。
const DefaultEnvFile = ".env"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL    string
	DatabaseDriver string
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Server
	ServerPort      string
	ShutdownTimeout time.Duration

	// CORS
	CORSAllowedOrigin string

	// Rate Limit（クライアントIPごとのreq/min）
	RateLimitPerMinute      int
	RateLimitStorePerMinute int

	// Logging
	LogLevel string

	// Metrics
	MetricsEnabled bool
}

// Load は.envファイル（存在する場合）と環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	return LoadWithEnvFile(DefaultEnvFile)
}

// LoadWithEnvFile は指定した環境変数ファイルを読み込んでからConfigを構築する。
// ファイルの値は既に設定済みの環境変数を上書きしない。pathが空なら読み込まない。
func LoadWithEnvFile(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DatabaseDriver = getEnvString("DATABASE_DRIVER", "postgres")
	cfg.DBMaxOpenConns = getEnvPositiveInt("DB_MAX_OPEN_CONNS", 10)
	cfg.DBMaxIdleConns = getEnvPositiveInt("DB_MAX_IDLE_CONNS", 5)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.RateLimitPerMinute = getEnvPositiveInt("RATE_LIMIT_PER_MINUTE", 120)
	cfg.RateLimitStorePerMinute = getEnvPositiveInt("RATE_LIMIT_STORE_PER_MINUTE", 20)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.MetricsEnabled = getEnvBool("METRICS_ENABLED", true)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// getEnvPositiveInt は正の整数を読み込む。未設定・不正値・0以下はデフォルト値になる。
func getEnvPositiveInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
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
