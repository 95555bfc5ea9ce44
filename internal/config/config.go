package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DBSource string
	Port     string
	Env      string

	RedisAddr string
	RedisPass string

	JWTSecret string
	JWTIssuer string

	// Rate limiting for mutating endpoints.
	RateLimit     int
	RateWindow    time.Duration
	RateBlock     time.Duration
	RateKeyPrefix string

	// Request amount policy, minor units.
	WithdrawalMin    int64
	WithdrawalMax    int64
	TopUpMin         int64
	TopUpMax         int64
	WithdrawalFeeBps int64

	AttachmentDir string
}

func Load() (*Config, error) {
	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	return &Config{
		DBSource: dbSource,
		Port:     getEnv("SERVER_PORT", "8080"),
		Env:      getEnv("ENVIRONMENT", "development"),

		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass: getEnv("REDIS_PASS", ""),

		JWTSecret: jwtSecret,
		JWTIssuer: getEnv("JWT_ISSUER", "fundflow"),

		RateLimit:     int(getEnvInt64("RATE_LIMIT", 30)),
		RateWindow:    getEnvDuration("RATE_WINDOW", time.Minute),
		RateBlock:     getEnvDuration("RATE_BLOCK", 10*time.Minute),
		RateKeyPrefix: getEnv("RATE_KEY_PREFIX", "rl"),

		WithdrawalMin:    getEnvInt64("WITHDRAWAL_MIN", 1_000),
		WithdrawalMax:    getEnvInt64("WITHDRAWAL_MAX", 10_000_000),
		TopUpMin:         getEnvInt64("TOPUP_MIN", 1_000),
		TopUpMax:         getEnvInt64("TOPUP_MAX", 50_000_000),
		WithdrawalFeeBps: getEnvInt64("WITHDRAWAL_FEE_BPS", 500),

		AttachmentDir: getEnv("ATTACHMENT_DIR", "attachments"),
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
