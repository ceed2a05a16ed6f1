package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	// SessionTTL bounds the validity window of a session token.
	SessionTTL time.Duration
	// OTPTTL bounds how long an issued one-time code stays valid.
	OTPTTL time.Duration
	// KeyDir holds the persisted signing keypair and derived symmetric key.
	KeyDir string
	// DatabaseURL selects Postgres stores; empty means in-memory.
	DatabaseURL string
	Redis       RedisConfig

	LogFormat string
	LogLevel  string

	SeedCustodianEmail    string
	SeedCustodianPassword string

	BatchVerifyConcurrency int
}

// RedisConfig configures the challenge store and revocation list backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

const (
	DefaultSessionTTL = 30 * 24 * time.Hour
	DefaultOTPTTL     = 10 * time.Minute
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:                   envOr("CUSTODY_ADDR", ":8080"),
		JWTSigningKey:          envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		KeyDir:                 envOr("KEY_DIR", "./var/keys"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		LogFormat:              envOr("LOG_FORMAT", "json"),
		LogLevel:               envOr("LOG_LEVEL", "info"),
		SeedCustodianEmail:     os.Getenv("SEED_CUSTODIAN_EMAIL"),
		SeedCustodianPassword:  os.Getenv("SEED_CUSTODIAN_PASSWORD"),
		BatchVerifyConcurrency: 4,
		SessionTTL:             DefaultSessionTTL,
		OTPTTL:                 DefaultOTPTTL,
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}

	var err error
	if cfg.SessionTTL, err = durationEnv("SESSION_TTL", cfg.SessionTTL); err != nil {
		return Server{}, err
	}
	if cfg.OTPTTL, err = durationEnv("OTP_TTL", cfg.OTPTTL); err != nil {
		return Server{}, err
	}
	if v := os.Getenv("BATCH_VERIFY_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Server{}, fmt.Errorf("BATCH_VERIFY_CONCURRENCY must be a positive integer, got %q", v)
		}
		cfg.BatchVerifyConcurrency = n
	}
	if (cfg.SeedCustodianEmail == "") != (cfg.SeedCustodianPassword == "") {
		return Server{}, fmt.Errorf("SEED_CUSTODIAN_EMAIL and SEED_CUSTODIAN_PASSWORD must be set together")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}
