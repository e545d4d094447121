package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries all runtime settings, read once from the environment.
type Config struct {
	HTTPAddr   string
	ControlDSN string
	LogLevel   string

	AuthSecret string
	AuthIssuer string
	TokenTTL   time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TenantIdleWindow     time.Duration
	TenantConnectTimeout time.Duration
	TenantConnectRetries int

	RoleBypassUserID string
	RoleBypassAll    bool

	RateLimitPerSecond int
	RateLimitBurst     int
	MaxBodyBytes       int64
}

// FromEnv builds the configuration from FORECOURT_* environment variables,
// applying defaults where unset.
func FromEnv() Config {
	return Config{
		HTTPAddr:   getenv("FORECOURT_HTTP_ADDR", ":8080"),
		ControlDSN: getenv("FORECOURT_CONTROL_DSN", ""),
		LogLevel:   getenv("FORECOURT_LOG_LEVEL", "info"),

		AuthSecret: getenv("FORECOURT_AUTH_SECRET", ""),
		AuthIssuer: getenv("FORECOURT_AUTH_ISSUER", "forecourt"),
		TokenTTL:   getdur("FORECOURT_TOKEN_TTL", 7*24*time.Hour),

		RedisAddr:     getenv("FORECOURT_REDIS_ADDR", ""),
		RedisPassword: getenv("FORECOURT_REDIS_PASSWORD", ""),
		RedisDB:       getint("FORECOURT_REDIS_DB", 0),

		TenantIdleWindow:     getdur("FORECOURT_TENANT_IDLE_WINDOW", 30*time.Minute),
		TenantConnectTimeout: getdur("FORECOURT_TENANT_CONNECT_TIMEOUT", 5*time.Second),
		TenantConnectRetries: getint("FORECOURT_TENANT_CONNECT_RETRIES", 2),

		RoleBypassUserID: getenv("FORECOURT_ROLE_BYPASS_USER_ID", ""),
		RoleBypassAll:    getbool("FORECOURT_ROLE_BYPASS_ALL", false),

		RateLimitPerSecond: getint("FORECOURT_RATE_LIMIT_PER_SECOND", 50),
		RateLimitBurst:     getint("FORECOURT_RATE_LIMIT_BURST", 100),
		MaxBodyBytes:       int64(getint("FORECOURT_MAX_BODY_BYTES", 1<<20)),
	}
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getint(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getbool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getdur(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
