// Package config provides configuration for the negotiation service.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database; empty disables persistence
	DatabaseURL string

	// Audit log; empty RedisURL selects the in-memory simulation
	RedisURL       string
	AuditKeyPrefix string

	// Signing
	AgentSigningKey string

	// Negotiation
	MaxRounds        int
	MaxCounterOffers int
	RoundDelay       time.Duration
	SessionTimeout   time.Duration
	DemoMaxBudget    float64
	DemoMinPrice     float64

	// Rate limiting (requests per second per client on start)
	StartRateLimit float64

	// Websocket
	WSPingInterval time.Duration
	WSWriteTimeout time.Duration
	WSReadTimeout  time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// DefaultSigningKey is the development signing key. Override it with
// AGENT_SIGNING_KEY outside of demos.
const DefaultSigningKey = "demo-private-key-change-in-production"

// Load loads configuration from the environment and an optional dealroom.yaml
// in the working directory. Environment variables take precedence.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("dealroom")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	v.AutomaticEnv()

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("DATABASE_URL", "file:dealroom.db?cache=shared&mode=rwc")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("AUDIT_KEY_PREFIX", "dealroom:")
	v.SetDefault("AGENT_SIGNING_KEY", DefaultSigningKey)
	v.SetDefault("MAX_ROUNDS", 10)
	v.SetDefault("MAX_COUNTER_OFFERS", 3)
	v.SetDefault("ROUND_DELAY_MS", 500)
	v.SetDefault("SESSION_TIMEOUT_MS", 60000)
	v.SetDefault("DEMO_MAX_BUDGET", 120.0)
	v.SetDefault("DEMO_MIN_PRICE", 80.0)
	v.SetDefault("START_RATE_LIMIT", 5.0)
	v.SetDefault("WS_PING_INTERVAL_MS", 30000)
	v.SetDefault("WS_WRITE_TIMEOUT_MS", 10000)
	v.SetDefault("WS_READ_TIMEOUT_MS", 60000)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTPPort:         v.GetInt("HTTP_PORT"),
		DatabaseURL:      v.GetString("DATABASE_URL"),
		RedisURL:         v.GetString("REDIS_URL"),
		AuditKeyPrefix:   v.GetString("AUDIT_KEY_PREFIX"),
		AgentSigningKey:  v.GetString("AGENT_SIGNING_KEY"),
		MaxRounds:        v.GetInt("MAX_ROUNDS"),
		MaxCounterOffers: v.GetInt("MAX_COUNTER_OFFERS"),
		RoundDelay:       millis(v, "ROUND_DELAY_MS"),
		SessionTimeout:   millis(v, "SESSION_TIMEOUT_MS"),
		DemoMaxBudget:    v.GetFloat64("DEMO_MAX_BUDGET"),
		DemoMinPrice:     v.GetFloat64("DEMO_MIN_PRICE"),
		StartRateLimit:   v.GetFloat64("START_RATE_LIMIT"),
		WSPingInterval:   millis(v, "WS_PING_INTERVAL_MS"),
		WSWriteTimeout:   millis(v, "WS_WRITE_TIMEOUT_MS"),
		WSReadTimeout:    millis(v, "WS_READ_TIMEOUT_MS"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		LogFormat:        v.GetString("LOG_FORMAT"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the negotiation limits are usable.
func (c *Config) Validate() error {
	switch {
	case c.HTTPPort <= 0:
		return fmt.Errorf("invalid HTTP_PORT %d", c.HTTPPort)
	case c.MaxRounds <= 0:
		return fmt.Errorf("MAX_ROUNDS must be positive, got %d", c.MaxRounds)
	case c.MaxCounterOffers < 0:
		return fmt.Errorf("MAX_COUNTER_OFFERS must not be negative, got %d", c.MaxCounterOffers)
	case c.RoundDelay < 0:
		return fmt.Errorf("ROUND_DELAY_MS must not be negative")
	case c.DemoMaxBudget <= 0 || c.DemoMinPrice <= 0:
		return fmt.Errorf("demo budget and minimum price must be positive")
	case c.AgentSigningKey == "":
		return fmt.Errorf("AGENT_SIGNING_KEY must not be empty")
	}
	return nil
}

func millis(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt64(key)) * time.Millisecond
}
