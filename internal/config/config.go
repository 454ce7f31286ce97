// Package config provides configuration management for the GOMC mining core.
// It handles loading configuration from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the global configuration for GOMC services
type Config struct {
	// Service identification
	ServiceName string
	Version     string
	Environment string

	// Mining configuration
	NumLanes     int
	BatchSize    int
	KernelRounds int
	PollInterval int // Inner-loop iterations between stop checks
	MaxRespawns  int
	StopTimeout  time.Duration

	// Share hand-off
	ShareQueueSize int

	// Submission backends (each enabled when its address/URL is set)
	KafkaBrokers []string
	KafkaTopic   string
	RedisURL     string
	PostgresURL  string
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	// Job refresh
	ZMQEndpoint   string
	StatsInterval time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		// Service defaults
		ServiceName: getEnv("SERVICE_NAME", "gomc"),
		Version:     getEnv("VERSION", "dev"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Mining defaults
		NumLanes:     getEnvInt("NUM_LANES", 4),
		BatchSize:    getEnvInt("BATCH_SIZE", 256),
		KernelRounds: getEnvInt("KERNEL_ROUNDS", 128),
		PollInterval: getEnvInt("POLL_INTERVAL", 64),
		MaxRespawns:  getEnvInt("MAX_RESPAWNS", 1),
		StopTimeout:  getEnvDuration("STOP_TIMEOUT", 2*time.Second),

		// Share hand-off defaults
		ShareQueueSize: getEnvInt("SHARE_QUEUE_SIZE", 256),

		// Backend defaults (empty = disabled)
		KafkaBrokers: getEnvSlice("KAFKA_BROKERS", nil),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "mining.shares"),
		RedisURL:     getEnv("REDIS_URL", ""),
		PostgresURL:  getEnv("POSTGRES_URL", ""),
		InfluxURL:    getEnv("INFLUX_URL", ""),
		InfluxToken:  getEnv("INFLUX_TOKEN", ""),
		InfluxOrg:    getEnv("INFLUX_ORG", "gomc"),
		InfluxBucket: getEnv("INFLUX_BUCKET", "mining"),

		// Job refresh defaults
		ZMQEndpoint:   getEnv("ZMQ_ENDPOINT", ""),
		StatsInterval: getEnvDuration("STATS_INTERVAL", 10*time.Second),

		// Logging defaults
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate performs basic validation of configuration values
func (c *Config) validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("SERVICE_NAME cannot be empty")
	}

	if c.NumLanes < 1 {
		return fmt.Errorf("NUM_LANES must be at least 1")
	}

	if c.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be at least 1")
	}

	if c.KernelRounds < 1 {
		return fmt.Errorf("KERNEL_ROUNDS must be at least 1")
	}

	if c.PollInterval < 1 {
		return fmt.Errorf("POLL_INTERVAL must be at least 1")
	}

	if c.StopTimeout <= 0 {
		return fmt.Errorf("STOP_TIMEOUT must be positive")
	}

	if c.ShareQueueSize < 1 {
		return fmt.Errorf("SHARE_QUEUE_SIZE must be at least 1")
	}

	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
