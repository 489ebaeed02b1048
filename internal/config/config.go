package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL        string
	DBRetryMaxAttempts int
	DBRetryBaseDelay   time.Duration

	// Session
	SessionSecret string
	SessionMaxAge int

	// OAuth (Google)
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// ホスト型認証プロバイダー
	AuthURL        string
	AuthJWTSecret  string
	AuthServiceKey string

	// Apple (モバイルログイン用クライアントシークレット生成)
	AppleTeamID     string
	AppleClientID   string
	AppleKeyID      string
	ApplePrivateKey string

	// Video (Mux)
	MuxTokenID          string
	MuxTokenSecret      string
	MuxSigningKeyID     string
	MuxSigningKey       string
	PlaybackTokenTTL    time.Duration
	VideoSyncInterval   time.Duration
	VideoSyncStaleAfter time.Duration

	// Storage (S3互換)
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
	ImageMaxSize   int64

	// Search
	SearchAPIURL  string
	SearchAPIKey  string
	SearchTimeout time.Duration

	// Telemetry
	SentryDSN string

	// News
	NewsFeedURLs      []string
	NewsFetchInterval time.Duration
	NewsFetchTimeout  time.Duration
	NewsFetchMaxSize  int64

	// Rate Limit (req/min)
	RateLimitGeneral int
	RateLimitUpload  int

	// Server
	ServerPort        string
	WorkerMetricsPort string // workerモードで/metricsを公開するポート
	BaseURL           string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込むが、既存の環境変数は上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.AuthJWTSecret = os.Getenv("AUTH_JWT_SECRET")
	if cfg.AuthJWTSecret == "" {
		missing = append(missing, "AUTH_JWT_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DBRetryMaxAttempts = getEnvInt("DB_RETRY_MAX_ATTEMPTS", 3)
	cfg.DBRetryBaseDelay = getEnvDuration("DB_RETRY_BASE_DELAY", 200*time.Millisecond)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 2592000)

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = getEnvString("GOOGLE_REDIRECT_URL", strings.TrimSuffix(cfg.BaseURL, "/")+"/auth/google/callback")

	cfg.AuthURL = strings.TrimSuffix(os.Getenv("AUTH_URL"), "/")
	cfg.AuthServiceKey = os.Getenv("AUTH_SERVICE_KEY")

	cfg.AppleTeamID = os.Getenv("APPLE_TEAM_ID")
	cfg.AppleClientID = os.Getenv("APPLE_CLIENT_ID")
	cfg.AppleKeyID = os.Getenv("APPLE_KEY_ID")
	cfg.ApplePrivateKey = decodePEMEnv(os.Getenv("APPLE_PRIVATE_KEY"))

	cfg.MuxTokenID = os.Getenv("MUX_TOKEN_ID")
	cfg.MuxTokenSecret = os.Getenv("MUX_TOKEN_SECRET")
	cfg.MuxSigningKeyID = os.Getenv("MUX_SIGNING_KEY_ID")
	cfg.MuxSigningKey = decodePEMEnv(os.Getenv("MUX_SIGNING_PRIVATE_KEY"))
	cfg.PlaybackTokenTTL = getEnvDuration("PLAYBACK_TOKEN_TTL", 6*time.Hour)
	cfg.VideoSyncInterval = getEnvDuration("VIDEO_SYNC_INTERVAL", time.Minute)
	cfg.VideoSyncStaleAfter = getEnvDuration("VIDEO_SYNC_STALE_AFTER", 2*time.Minute)

	cfg.S3Endpoint = os.Getenv("S3_ENDPOINT")
	cfg.S3Region = getEnvString("S3_REGION", "us-east-1")
	cfg.S3Bucket = getEnvString("S3_BUCKET", "bourbon-buddy")
	cfg.S3AccessKey = os.Getenv("S3_ACCESS_KEY_ID")
	cfg.S3SecretKey = os.Getenv("S3_SECRET_ACCESS_KEY")
	cfg.S3UsePathStyle = getEnvBool("S3_USE_PATH_STYLE", true)
	cfg.ImageMaxSize = getEnvInt64("IMAGE_MAX_SIZE", 5242880)

	cfg.SearchAPIURL = getEnvString("SEARCH_API_URL", "https://api.search.brave.com/res/v1/web/search")
	cfg.SearchAPIKey = os.Getenv("SEARCH_API_KEY")
	cfg.SearchTimeout = getEnvDuration("SEARCH_TIMEOUT", 8*time.Second)

	cfg.SentryDSN = os.Getenv("SENTRY_DSN")

	cfg.NewsFeedURLs = getEnvList("NEWS_FEED_URLS")
	cfg.NewsFetchInterval = getEnvDuration("NEWS_FETCH_INTERVAL", 15*time.Minute)
	cfg.NewsFetchTimeout = getEnvDuration("NEWS_FETCH_TIMEOUT", 10*time.Second)
	cfg.NewsFetchMaxSize = getEnvInt64("NEWS_FETCH_MAX_SIZE", 5242880)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitUpload = getEnvInt("RATE_LIMIT_UPLOAD", 10)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.WorkerMetricsPort = getEnvString("WORKER_METRICS_PORT", "9091")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// GoogleOAuthEnabled はGoogle OAuthの認証情報が揃っているかを返す。
func (c *Config) GoogleOAuthEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// StorageEnabled はバケットの接続先が設定されているかを返す。
// エンドポイントとアクセスキーのどちらもない場合は未設定として扱う。
func (c *Config) StorageEnabled() bool {
	return c.S3Bucket != "" && (c.S3Endpoint != "" || c.S3AccessKey != "")
}

// MuxEnabled は動画APIの認証情報が揃っているかを返す。
func (c *Config) MuxEnabled() bool {
	return c.MuxTokenID != "" && c.MuxTokenSecret != ""
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

// getEnvList はカンマ区切りの環境変数を空要素を除いたスライスとして返す。
func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// decodePEMEnv は環境変数で1行に潰されたPEM（\n エスケープ）を復元する。
func decodePEMEnv(v string) string {
	return strings.ReplaceAll(v, `\n`, "\n")
}
