package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// バックエンドの選択肢
const (
	KVBackendMemory   = "memory"
	KVBackendRedis    = "redis"
	KVBackendPostgres = "postgres"

	SheetsBackendGoogle = "google"
	SheetsBackendMemory = "memory"

	FileBackendKV = "kv"
	FileBackendS3 = "s3"
)

// maxCORSOrigins はCORSで許可するオリジン数の上限。
const maxCORSOrigins = 2

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// JWT
	JWTAccessSecret  string
	JWTRefreshSecret string

	// Google Sheets
	SheetsBackend            string
	SpreadsheetID            string
	ServiceAccountEmail      string
	ServiceAccountPrivateKey string
	SheetsMaxConcurrent      int
	SheetsPacing             time.Duration
	SheetsBackoff            time.Duration

	// KV
	KVBackend   string
	RedisURL    string
	DatabaseURL string

	// File
	FileBackend   string
	AWSRegion     string
	AWSBucketName string

	// Rate Limit
	RateLimitTokenCreate  int
	RateLimitTokenRefresh int
	RateLimitGeneral      int

	// Worker
	CleanupInterval time.Duration

	// Logging
	LogFormat string
	LogLevel  string

	// Server
	ServerPort  string
	BaseURL     string
	FrontendURL string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigins []string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合は未設定の変数をまとめてエラーで返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}

	// Required fields
	var missing []string
	require := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.GoogleClientID = require("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = require("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = require("GOOGLE_REDIRECT_URL")
	cfg.JWTAccessSecret = require("JWT_ACCESS_SECRET")
	cfg.JWTRefreshSecret = require("JWT_REFRESH_SECRET")
	cfg.BaseURL = require("BASE_URL")

	cfg.SheetsBackend = getEnvString("SHEETS_BACKEND", SheetsBackendGoogle)
	if cfg.SheetsBackend == SheetsBackendGoogle {
		cfg.SpreadsheetID = require("SPREADSHEET_ID")
		cfg.ServiceAccountEmail = require("GOOGLE_SERVICE_ACCOUNT_EMAIL")
		cfg.ServiceAccountPrivateKey = require("GOOGLE_SERVICE_ACCOUNT_PRIVATE_KEY")
	}

	cfg.KVBackend = getEnvString("KV_BACKEND", KVBackendMemory)
	switch cfg.KVBackend {
	case KVBackendRedis:
		cfg.RedisURL = require("REDIS_URL")
	case KVBackendPostgres:
		cfg.DatabaseURL = require("DATABASE_URL")
	}

	cfg.FileBackend = getEnvString("FILE_BACKEND", FileBackendKV)
	if cfg.FileBackend == FileBackendS3 {
		cfg.AWSRegion = require("AWS_REGION")
		cfg.AWSBucketName = require("AWS_BUCKET_NAME")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if err := validateChoice("SHEETS_BACKEND", cfg.SheetsBackend, SheetsBackendGoogle, SheetsBackendMemory); err != nil {
		return nil, err
	}
	if err := validateChoice("KV_BACKEND", cfg.KVBackend, KVBackendMemory, KVBackendRedis, KVBackendPostgres); err != nil {
		return nil, err
	}
	if err := validateChoice("FILE_BACKEND", cfg.FileBackend, FileBackendKV, FileBackendS3); err != nil {
		return nil, err
	}

	// Optional fields with defaults
	if cfg.RedisURL == "" {
		cfg.RedisURL = os.Getenv("REDIS_URL")
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	cfg.SheetsMaxConcurrent = getEnvInt("SHEETS_MAX_CONCURRENT", 3)
	cfg.SheetsPacing = getEnvDuration("SHEETS_PACING", 100*time.Millisecond)
	cfg.SheetsBackoff = getEnvDuration("SHEETS_BACKOFF", 2*time.Second)
	cfg.RateLimitTokenCreate = getEnvInt("RATE_LIMIT_TOKEN_CREATE", 50)
	cfg.RateLimitTokenRefresh = getEnvInt("RATE_LIMIT_TOKEN_REFRESH", 30)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", time.Hour)
	cfg.LogFormat = getEnvString("LOG_FORMAT", "json")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.FrontendURL = strings.TrimRight(getEnvString("FRONTEND_URL", "http://localhost:3000"), "/")
	cfg.CookieSecure = getEnvBool("COOKIE_SECURE", strings.HasPrefix(cfg.BaseURL, "https://"))
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigins = corsOrigins(os.Getenv("CORS_ALLOWED_ORIGINS"), cfg.FrontendURL)

	if cfg.CleanupInterval <= 0 {
		return nil, fmt.Errorf("CLEANUP_INTERVAL must be positive, got %s", cfg.CleanupInterval)
	}
	if cfg.SheetsPacing < 0 {
		return nil, fmt.Errorf("SHEETS_PACING must not be negative, got %s", cfg.SheetsPacing)
	}
	if cfg.SheetsBackoff < 0 {
		return nil, fmt.Errorf("SHEETS_BACKOFF must not be negative, got %s", cfg.SheetsBackoff)
	}

	return cfg, nil
}

func validateChoice(key, value string, choices ...string) error {
	for _, c := range choices {
		if value == c {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %v, got %q", key, choices, value)
}

// corsOrigins は許可オリジンの一覧を返す。未設定の場合はフロントエンドとローカル開発用のオリジン。
func corsOrigins(raw, frontendURL string) []string {
	var candidates []string
	if raw == "" {
		candidates = []string{frontendURL, "http://localhost:3000"}
	} else {
		candidates = strings.Split(raw, ",")
	}

	origins := make([]string, 0, maxCORSOrigins)
	seen := map[string]bool{}
	for _, o := range candidates {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" || seen[o] {
			continue
		}
		seen[o] = true
		origins = append(origins, o)
		if len(origins) == maxCORSOrigins {
			break
		}
	}
	return origins
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
