package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port        string
	DatabaseURL string
	Env         string
	LogLevel    string

	JWTSecret          string
	JWTTTL             time.Duration
	RefreshTokenTTL    time.Duration
	PasswordResetTTL   time.Duration
	CORSAllowedOrigins []string
	ReadOnly           bool

	RateLimitWindow time.Duration
	RateLimitMax    int
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool

	SyncItemTimeout    time.Duration
	SyncMaxItems       int
	ReportCacheMaxCost int64
}

// Production reports whether the server runs with APP_ENV=production.
func (c Config) Production() bool {
	return c.Env == "production"
}

func Load() Config {
	// Load .env file if present
	_ = godotenv.Load()

	cfg, err := fromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	return cfg
}

func fromEnv() (Config, error) {
	cfg := Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Env:         getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		JWTSecret:          getEnv("JWT_SECRET", ""),
		JWTTTL:             getDuration("JWT_TTL", 15*time.Minute),
		RefreshTokenTTL:    time.Duration(getInt("JWT_REFRESH_DAYS", 7)) * 24 * time.Hour,
		PasswordResetTTL:   time.Duration(getInt("PASSWORD_RESET_TOKEN_MINUTES", 60)) * time.Minute,
		CORSAllowedOrigins: getList("CORS_ALLOWED_ORIGINS"),
		ReadOnly:           getBool("READ_ONLY", false),

		RateLimitWindow: getDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
		RateLimitMax:    getInt("RATE_LIMIT_MAX", 300),
		TrustProxy:      getBool("TRUST_PROXY", false),

		SyncItemTimeout:    getDuration("SYNC_ITEM_TIMEOUT", 5*time.Second),
		SyncMaxItems:       getInt("SYNC_MAX_ITEMS", 500),
		ReportCacheMaxCost: int64(getInt("REPORT_CACHE_MAX_COST", 10000)),
	}

	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return cfg, errors.New("JWT_SECRET is required")
	}
	if cfg.Production() && len(cfg.JWTSecret) < 32 {
		return cfg, errors.New("JWT_SECRET must be at least 32 characters in production")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return b
}

func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
