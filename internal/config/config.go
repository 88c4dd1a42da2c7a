package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Token store backends.
const (
	TokenStoreEnv   = "env"
	TokenStoreFile  = "file"
	TokenStoreRedis = "redis"
)

// Config holds all application configuration.
type Config struct {
	ServerPort string
	GinMode    string
	LogLevel   string
	LogFormat  string

	// Exam API the agent talks to.
	APIBaseURL    string
	APITimeout    time.Duration
	SubmitTimeout time.Duration

	// Proctoring loop.
	CaptureInterval time.Duration
	UploadTimeout   time.Duration
	AlertDisplay    time.Duration
	CaptureDir      string
	FrameMaxAge     time.Duration
	MaxFrameBytes   int64

	// OfflineMode is "" (disabled) or "demo".
	OfflineMode string

	// Bearer credential storage.
	TokenStore     string
	Token          string
	TokenFile      string
	TokenPassword  string
	TokenProfile   string
	TokenRedisTTL  time.Duration
	RedisURL       string
	DatabaseURL    string
	MaxDBConns     int32
	FramesPerMin   int
	AllowedOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // Ignore error — .env is optional

	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8090"),
		GinMode:    getEnv("GIN_MODE", "debug"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  getEnv("LOG_FORMAT", "pretty"),

		APIBaseURL:    strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:7777/api"), "/"),
		APITimeout:    getEnvDuration("API_TIMEOUT", 10*time.Second),
		SubmitTimeout: getEnvDuration("SUBMIT_TIMEOUT", 15*time.Second),

		CaptureInterval: getEnvDuration("CAPTURE_INTERVAL", 3*time.Second),
		UploadTimeout:   getEnvDuration("UPLOAD_TIMEOUT", 2500*time.Millisecond),
		AlertDisplay:    getEnvDuration("ALERT_DISPLAY", 5*time.Second),
		CaptureDir:      getEnv("CAPTURE_DIR", ""),
		FrameMaxAge:     getEnvDuration("FRAME_MAX_AGE", 10*time.Second),
		MaxFrameBytes:   int64(getEnvInt("MAX_FRAME_SIZE_KB", 2048)) * 1024,

		OfflineMode: strings.ToLower(getEnv("OFFLINE_MODE", "")),

		TokenStore:    strings.ToLower(getEnv("TOKEN_STORE", TokenStoreFile)),
		Token:         getEnv("API_TOKEN", ""),
		TokenFile:     getEnv("TOKEN_FILE", defaultTokenFile()),
		TokenPassword: getEnv("TOKEN_PASSWORD", ""),
		TokenProfile:  getEnv("TOKEN_PROFILE", "default"),
		TokenRedisTTL: time.Duration(getEnvInt("TOKEN_TTL_HOURS", 24)) * time.Hour,
		RedisURL:      getEnv("REDIS_URL", ""),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		MaxDBConns:    int32(getEnvInt("MAX_DB_CONNS", 4)),
		FramesPerMin:  getEnvInt("FRAMES_PER_MINUTE", 120),

		AllowedOrigins: parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
	}
}

// JournalEnabled reports whether alerts and results are queued for persistence.
func (c *Config) JournalEnabled() bool {
	return c.RedisURL != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go duration strings ("3s", "2500ms") or a bare
// integer number of milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if ms, err := strconv.Atoi(v); err == nil {
		if ms <= 0 {
			return fallback
		}
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".exstem-token"
	}
	return dir + string(os.PathSeparator) + "exstem-proctor" + string(os.PathSeparator) + "token"
}

// parseOrigins splits a comma-separated origins string into a trimmed slice.
// Returns nil (allow-all) if the input is empty.
func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
