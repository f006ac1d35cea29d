package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ストアのバックエンド種別。
const (
	StoreBackendFile     = "file"
	StoreBackendPostgres = "postgres"
)

// Config はエージェント全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Remote Session Service
	APIBaseURL   string
	HTTPTimeout  time.Duration
	APIRateLimit float64
	APIRateBurst int

	// Storage
	DataDir      string
	StoreBackend string
	DatabaseURL  string

	// Confirmation cycle
	ConfirmRetryInterval       time.Duration
	ConfirmDeactivatedInterval time.Duration
	SessionRefreshDelay        time.Duration

	// Offline queue
	FlushInterval time.Duration

	// Status server
	StatusAddr string

	// Logging
	LogLevel string

	// Identity
	IdentityEmail   string
	HardwareAddress string
	Timezone        string
}

// SessionFile はファイルストアのセッションファイルのパスを返す。
func (c *Config) SessionFile() string {
	return filepath.Join(c.DataDir, "session.json")
}

// EventLogFile はオフラインイベントログのパスを返す。
func (c *Config) EventLogFile() string {
	return filepath.Join(c.DataDir, "data.json")
}

// Load は環境変数からConfigを読み込む。
// 設定値の組み合わせが不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.APIBaseURL = strings.TrimRight(getEnvString("API_BASE_URL", "https://api.software.com"), "/")
	if err := validateBaseURL(cfg.APIBaseURL); err != nil {
		return nil, err
	}

	cfg.StoreBackend = strings.ToLower(getEnvString("STORE_BACKEND", StoreBackendFile))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	switch cfg.StoreBackend {
	case StoreBackendFile:
	case StoreBackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("required environment variables are not set: %v", []string{"DATABASE_URL"})
		}
	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND: %q", cfg.StoreBackend)
	}

	dataDir, err := defaultDataDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	cfg.DataDir = getEnvString("DATA_DIR", dataDir)

	// Optional fields with defaults
	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", 10*time.Second)
	cfg.APIRateLimit = getEnvFloat("API_RATE_LIMIT", 5)
	cfg.APIRateBurst = getEnvInt("API_RATE_BURST", 10)
	cfg.ConfirmRetryInterval = getEnvDuration("CONFIRM_RETRY_INTERVAL", 45*time.Second)
	cfg.ConfirmDeactivatedInterval = getEnvDuration("CONFIRM_DEACTIVATED_INTERVAL", 24*time.Hour)
	cfg.SessionRefreshDelay = getEnvDuration("SESSION_REFRESH_DELAY", time.Second)
	cfg.FlushInterval = getEnvDuration("FLUSH_INTERVAL", 15*time.Minute)
	cfg.StatusAddr = getEnvStringAllowEmpty("STATUS_ADDR", "127.0.0.1:5099")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.IdentityEmail = os.Getenv("IDENTITY_EMAIL")
	cfg.HardwareAddress = os.Getenv("HARDWARE_ADDRESS")
	cfg.Timezone = os.Getenv("TIMEZONE")

	return cfg, nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid API_BASE_URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid API_BASE_URL scheme: %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid API_BASE_URL: empty host")
	}
	return nil
}

func defaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".software"), nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// getEnvStringAllowEmpty は明示的に空文字が設定された場合に空文字を返す。
func getEnvStringAllowEmpty(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
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
	if err != nil || f <= 0 {
		return defaultVal
	}
	return f
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
