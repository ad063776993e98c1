package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	UserAgent        string
	UpstreamBaseURL  string
	FallbackBaseURL  string
	FallbackAPIKey   string
	RedisURL         string
	SearchCacheTTL   time.Duration
	CacheDisabled    bool
	PageTimeout      time.Duration
	AggregateTimeout time.Duration
	ProbeTimeout     time.Duration
	ProbeInterval    time.Duration
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserAgent:        getEnv("CONTENT_USER_AGENT", "librarium-content/1.0"),
		UpstreamBaseURL:  getEnv("CONTENT_API_BASE_URL", "https://api.conteudo.example.org/v2"),
		FallbackBaseURL:  getEnv("FALLBACK_BASE_URL", ""),
		FallbackAPIKey:   strings.TrimSpace(os.Getenv("FALLBACK_API_KEY")),
		RedisURL:         getEnv("REDIS_URL", ""),
		SearchCacheTTL:   time.Duration(getEnvInt("SEARCH_CACHE_TTL_MINUTES", 10)) * time.Minute,
		CacheDisabled:    getEnvBool("SEARCH_CACHE_DISABLED", false),
		PageTimeout:      time.Duration(getEnvInt("PAGE_TIMEOUT_SECONDS", 12)) * time.Second,
		AggregateTimeout: time.Duration(getEnvInt("AGGREGATE_TIMEOUT_SECONDS", 45)) * time.Second,
		ProbeTimeout:     time.Duration(getEnvInt("PROBE_TIMEOUT_SECONDS", 5)) * time.Second,
		ProbeInterval:    time.Duration(getEnvInt("PROBE_INTERVAL_SECONDS", 45)) * time.Second,
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
