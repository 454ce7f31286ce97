// Package database wires the optional storage backends together.
// Every backend is independent: the miner runs fine with none of them
// configured, and a lost backend degrades the submission pipeline
// rather than the search core.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/bardlex/gomc/internal/config"
	"github.com/bardlex/gomc/internal/database/influx"
	"github.com/bardlex/gomc/internal/database/postgres"
	"github.com/bardlex/gomc/internal/database/redis"
	"github.com/bardlex/gomc/pkg/log"
)

// Manager holds the configured storage clients. A nil client means the
// backend was not configured.
type Manager struct {
	Redis    *redis.Client
	Postgres *postgres.Client
	Influx   *influx.Client

	Shares *postgres.ShareRepository
	Jobs   *postgres.JobRepository

	logger *log.Logger
}

// NewManager connects every backend with a URL in the configuration.
// A backend that fails to connect fails startup; leaving its URL empty
// disables it instead.
func NewManager(cfg *config.Config, logger *log.Logger) (*Manager, error) {
	m := &Manager{logger: logger.WithComponent("database")}

	if cfg.RedisURL != "" {
		client, err := redis.NewClient(redis.DefaultConfig(cfg.RedisURL))
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		m.Redis = client
		m.logger.Info("connected to Redis", "addr", cfg.RedisURL)
	}

	if cfg.PostgresURL != "" {
		client, err := postgres.NewClient(&postgres.Config{
			URL:             cfg.PostgresURL,
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Hour,
		})
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		m.Postgres = client
		m.Shares = postgres.NewShareRepository(client.DB())
		m.Jobs = postgres.NewJobRepository(client.DB())
		m.logger.Info("connected to PostgreSQL")
	}

	if cfg.InfluxURL != "" {
		client, err := influx.NewClient(&influx.Config{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		})
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("influx: %w", err)
		}
		m.Influx = client
		m.logger.Info("connected to InfluxDB", "org", cfg.InfluxOrg, "bucket", cfg.InfluxBucket)
	}

	return m, nil
}

// Close releases every configured backend
func (m *Manager) Close() {
	if m.Redis != nil {
		if err := m.Redis.Close(); err != nil {
			m.logger.WithError(err).Warn("failed to close Redis")
		}
	}
	if m.Postgres != nil {
		if err := m.Postgres.Close(); err != nil {
			m.logger.WithError(err).Warn("failed to close PostgreSQL")
		}
	}
	if m.Influx != nil {
		m.Influx.Close()
	}
}

// Health checks every configured backend
func (m *Manager) Health(ctx context.Context) error {
	if m.Redis != nil {
		if err := m.Redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if m.Postgres != nil {
		if err := m.Postgres.Health(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if m.Influx != nil {
		if err := m.Influx.Health(ctx); err != nil {
			return fmt.Errorf("influx: %w", err)
		}
	}
	return nil
}
