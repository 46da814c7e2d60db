package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string
	Env         string

	OIDCIssuers         []string
	OIDCAudience        string
	OIDCDiscoveryURL    string
	OIDCJWKSRefreshSecs int

	DirectoryBaseURL      string
	DirectoryTokenURL     string
	DirectoryClientID     string
	DirectoryClientSecret string
	DirectoryScope        string
	DirectoryTimeoutSecs  int
	DirectoryTokenCache   bool

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitFailClosed    bool
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:               addr,
		PostgresDSN:            os.Getenv("POSTGRES_DSN"),
		LogLevel:               envDefault("LOG_LEVEL", "info"),
		Env:                    envDefault("MEDGATE_ENV", "development"),
		OIDCIssuers:            splitCSV(os.Getenv("OIDC_ISSUERS")),
		OIDCAudience:           os.Getenv("OIDC_AUDIENCE"),
		OIDCDiscoveryURL:       os.Getenv("OIDC_DISCOVERY_URL"),
		OIDCJWKSRefreshSecs:    envIntDefault("OIDC_JWKS_REFRESH_SECONDS", 300),
		DirectoryBaseURL:       os.Getenv("DIRECTORY_BASE_URL"),
		DirectoryTokenURL:      os.Getenv("DIRECTORY_TOKEN_URL"),
		DirectoryClientID:      os.Getenv("DIRECTORY_CLIENT_ID"),
		DirectoryClientSecret:  os.Getenv("DIRECTORY_CLIENT_SECRET"),
		DirectoryScope:         os.Getenv("DIRECTORY_SCOPE"),
		DirectoryTimeoutSecs:   envIntDefault("DIRECTORY_TIMEOUT_SECONDS", 30),
		DirectoryTokenCache:    envBoolDefault("DIRECTORY_TOKEN_CACHE", false),
		RateLimitRequests:      envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds: envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitFailClosed:    envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:       envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                envIntDefault("REDIS_DB", 0),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func splitCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
