package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures the runtime configuration for the consent platform.
type Server struct {
	Addr          string
	DatabaseURL   string
	RedisURL      string
	JWTSigningKey string
	TokenTTL      time.Duration

	// DefaultConsentTTL is applied when a grant carries no explicit expiry
	// and the deployment mandates bounded consent lifetimes. Zero means
	// grants without expiry stay open-ended.
	DefaultConsentTTL time.Duration

	ControllerCacheTTL time.Duration
	SweepInterval      time.Duration
	AuditBufferSize    int
	LedgerQueueSize    int
	RequestTimeout     time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:               getEnv("CONSENTIRE_ADDR", ":8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		JWTSigningKey:      getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		TokenTTL:           getDuration("TOKEN_TTL", 15*time.Minute),
		DefaultConsentTTL:  getDuration("DEFAULT_CONSENT_TTL", 0),
		ControllerCacheTTL: getDuration("CONTROLLER_CACHE_TTL", 5*time.Minute),
		SweepInterval:      getDuration("SWEEP_INTERVAL", time.Minute),
		AuditBufferSize:    getInt("AUDIT_BUFFER_SIZE", 1024),
		LedgerQueueSize:    getInt("LEDGER_QUEUE_SIZE", 256),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 30*time.Second),
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
