package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	LockBackendRedis  = "redis"
	LockBackendMemory = "memory"

	AuthModeTokens  = "tokens"
	AuthModeGateway = "gateway"
)

type Config struct {
	HTTPHost string
	HTTPPort string
	GRPCHost string
	GRPCPort string

	MySQLDSN     string
	MySQLMaxOpen int
	MySQLMaxIdle int
	MySQLMaxLife time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LockBackend       string
	LockLease         time.Duration
	LockSweepInterval time.Duration
	EventsEnabled     bool

	AuthMode   string
	AuthTokens string

	RateLimitRPS   float64
	RateLimitBurst int

	ClientBaseURL          string
	ClientToken            string
	ClientRenewInterval    time.Duration
	ClientWarningMargin    time.Duration
	ClientInactivityWindow time.Duration
	ClientPollInterval     time.Duration
	ClientRetryAttempts    int
	ClientRetryDelay       time.Duration

	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPHost: getEnv("HTTP_HOST", "0.0.0.0"),
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		GRPCHost: getEnv("GRPC_HOST", "0.0.0.0"),
		GRPCPort: getEnv("GRPC_PORT", "9090"),

		MySQLDSN:     getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/dispatch?parseTime=true"),
		MySQLMaxOpen: getEnvInt("MYSQL_MAX_OPEN", 10),
		MySQLMaxIdle: getEnvInt("MYSQL_MAX_IDLE", 5),
		MySQLMaxLife: getEnvDuration("MYSQL_MAX_LIFE", 30*time.Minute),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		LockBackend:       strings.ToLower(getEnv("LOCK_BACKEND", LockBackendRedis)),
		LockLease:         getEnvDuration("LOCK_LEASE", 5*time.Minute),
		LockSweepInterval: getEnvDuration("LOCK_SWEEP_INTERVAL", 30*time.Second),
		EventsEnabled:     getEnvBool("EVENTS_ENABLED", true),

		AuthMode:   strings.ToLower(getEnv("AUTH_MODE", AuthModeTokens)),
		AuthTokens: getEnv("AUTH_TOKENS", ""),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 10),

		ClientBaseURL:          getEnv("CLIENT_BASE_URL", "http://localhost:8080"),
		ClientToken:            getEnv("CLIENT_TOKEN", ""),
		ClientRenewInterval:    getEnvDuration("CLIENT_RENEW_INTERVAL", 2*time.Minute),
		ClientWarningMargin:    getEnvDuration("CLIENT_WARNING_MARGIN", time.Minute),
		ClientInactivityWindow: getEnvDuration("CLIENT_INACTIVITY_WINDOW", 4*time.Minute),
		ClientPollInterval:     getEnvDuration("CLIENT_POLL_INTERVAL", 30*time.Second),
		ClientRetryAttempts:    getEnvInt("CLIENT_RETRY_ATTEMPTS", 3),
		ClientRetryDelay:       getEnvDuration("CLIENT_RETRY_DELAY", 2*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.LockBackend {
	case LockBackendRedis, LockBackendMemory:
	default:
		return fmt.Errorf("unsupported LOCK_BACKEND: %s", c.LockBackend)
	}
	switch c.AuthMode {
	case AuthModeTokens, AuthModeGateway:
	default:
		return fmt.Errorf("unsupported AUTH_MODE: %s", c.AuthMode)
	}
	if c.LockLease <= 0 {
		return fmt.Errorf("LOCK_LEASE must be positive, got %v", c.LockLease)
	}
	if c.LockSweepInterval <= 0 {
		return fmt.Errorf("LOCK_SWEEP_INTERVAL must be positive, got %v", c.LockSweepInterval)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit settings cannot be negative")
	}
	if c.ClientRenewInterval <= 0 || c.ClientWarningMargin <= 0 {
		return fmt.Errorf("CLIENT_RENEW_INTERVAL and CLIENT_WARNING_MARGIN must be positive")
	}
	if c.ClientRenewInterval >= c.LockLease-c.ClientWarningMargin {
		return fmt.Errorf("CLIENT_RENEW_INTERVAL (%v) must be shorter than LOCK_LEASE minus CLIENT_WARNING_MARGIN (%v)",
			c.ClientRenewInterval, c.LockLease-c.ClientWarningMargin)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
