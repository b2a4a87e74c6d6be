package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppEnv    string
	Port      string
	LogLevel  string
	LogFormat string

	// RedisURL enables the shared session store for multi-instance
	// deployments. Empty means single-instance in-memory mode.
	RedisURL string

	// Session authority tunables.
	SessionTimeout        time.Duration
	MaxConcurrentSessions int
	TerminationGrace      time.Duration
	SweepInterval         time.Duration

	// Presentation tunables.
	FallbackTickInterval time.Duration

	// Broadcast tunables.
	BroadcastTickInterval time.Duration
	MaxClientsPerSession  int
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		RedisURL:  getEnv("REDIS_URL", ""),
	}

	var err error
	if cfg.SessionTimeout, err = getDuration("SESSION_TIMEOUT", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrentSessions, err = getInt("MAX_CONCURRENT_SESSIONS", 2); err != nil {
		return nil, err
	}
	if cfg.TerminationGrace, err = getDuration("TERMINATION_GRACE", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.FallbackTickInterval, err = getDuration("FALLBACK_TICK_INTERVAL", 50*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.BroadcastTickInterval, err = getDuration("BROADCAST_TICK_INTERVAL", 250*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.MaxClientsPerSession, err = getInt("MAX_CLIENTS_PER_SESSION", 10); err != nil {
		return nil, err
	}

	if cfg.SessionTimeout <= 0 {
		return nil, fmt.Errorf("SESSION_TIMEOUT must be positive")
	}
	if cfg.MaxConcurrentSessions < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT_SESSIONS must be at least 1")
	}
	if cfg.TerminationGrace < 0 {
		return nil, fmt.Errorf("TERMINATION_GRACE must not be negative")
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 30s or 5m: %w", key, err)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
