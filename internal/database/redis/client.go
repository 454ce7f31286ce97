// Package redis provides Redis operations for the GOMC mining core.
// It backs the duplicate-share guard and short-lived hashrate caching.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations for the mining core
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns connection settings suitable for a local miner
func DefaultConfig(addr string) *Config {
	return &Config{
		Addr:         addr,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// NewClient creates a new Redis client
func NewClient(cfg *Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks Redis connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Duplicate-share guard

// MarkShareSeen records a share key with an expiration and reports
// whether this is the first time the key was seen. The TTL only needs
// to outlive the job the share belongs to.
func (c *Client) MarkShareSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	first, err := c.rdb.SetNX(ctx, fmt.Sprintf("share:seen:%s", key), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark share seen: %w", err)
	}
	return first, nil
}

// Job cache

// SetCurrentJob caches the active job descriptor for restart recovery
func (c *Client) SetCurrentJob(ctx context.Context, jobData any) error {
	jsonData, err := json.Marshal(jobData)
	if err != nil {
		return fmt.Errorf("failed to marshal job data: %w", err)
	}

	if err := c.rdb.Set(ctx, "job:current", jsonData, 0).Err(); err != nil {
		return fmt.Errorf("failed to set current job: %w", err)
	}

	return nil
}

// GetCurrentJob retrieves the cached active job descriptor
func (c *Client) GetCurrentJob(ctx context.Context, dest any) error {
	jsonData, err := c.rdb.Get(ctx, "job:current").Result()
	if err != nil {
		if err == redis.Nil {
			return fmt.Errorf("no current job")
		}
		return fmt.Errorf("failed to get current job: %w", err)
	}

	if err := json.Unmarshal([]byte(jsonData), dest); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %w", err)
	}

	return nil
}

// Hashrate caching

// SetLaneHashrate stores a per-lane hashrate sample in a rolling window
func (c *Client) SetLaneHashrate(ctx context.Context, laneID int, hashrate float64, window time.Duration) error {
	key := fmt.Sprintf("hashrate:lane:%d:%d", laneID, time.Now().Unix())
	if err := c.rdb.Set(ctx, key, hashrate, window).Err(); err != nil {
		return fmt.Errorf("failed to set lane hashrate: %w", err)
	}
	return nil
}

// GetAverageLaneHashrate averages the samples recorded for a lane
// within the window
func (c *Client) GetAverageLaneHashrate(ctx context.Context, laneID int, window time.Duration) (float64, error) {
	pattern := fmt.Sprintf("hashrate:lane:%d:*", laneID)
	keys, err := c.rdb.Keys(ctx, pattern).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list hashrate samples: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	cutoff := time.Now().Add(-window).Unix()
	var sum float64
	var count int

	for _, key := range keys {
		var ts int64
		if _, err := fmt.Sscanf(key, fmt.Sprintf("hashrate:lane:%d:", laneID)+"%d", &ts); err != nil {
			continue
		}
		if ts < cutoff {
			continue
		}

		value, err := c.rdb.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		sample, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}

		sum += sample
		count++
	}

	if count == 0 {
		return 0, nil
	}
	return sum / float64(count), nil
}

// Counters

// IncrementCounter atomically bumps a counter with expiration on first use
func (c *Client) IncrementCounter(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	count, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}

	if count == 1 && expiration > 0 {
		if err := c.rdb.Expire(ctx, key, expiration).Err(); err != nil {
			return count, fmt.Errorf("failed to set counter expiration: %w", err)
		}
	}

	return count, nil
}
