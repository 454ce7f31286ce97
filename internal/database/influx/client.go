// Package influx provides InfluxDB time-series metrics for the GOMC
// mining core: per-lane throughput, aggregate hashrate, and share
// events.
package influx

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// Client wraps InfluxDB operations for mining metrics
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	queryAPI api.QueryAPI
	org      string
	bucket   string
}

// Config holds InfluxDB connection configuration
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// NewClient creates a new InfluxDB client and verifies connectivity
func NewClient(cfg *Config) (*Client, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to check InfluxDB health: %w", err)
	}
	if health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("InfluxDB health check failed: %s", health.Status)
	}

	return &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		queryAPI: client.QueryAPI(cfg.Org),
		org:      cfg.Org,
		bucket:   cfg.Bucket,
	}, nil
}

// Close flushes pending writes and closes the client
func (c *Client) Close() {
	c.writeAPI.Flush()
	c.client.Close()
}

// Health checks InfluxDB connectivity
func (c *Client) Health(ctx context.Context) error {
	health, err := c.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to check InfluxDB health: %w", err)
	}
	if health.Status != "pass" {
		return fmt.Errorf("InfluxDB health check failed: %s", health.Status)
	}
	return nil
}

// Flush forces pending writes out
func (c *Client) Flush() {
	c.writeAPI.Flush()
}

// WriteLaneMetric records one lane's throughput snapshot
func (c *Client) WriteLaneMetric(laneID int, state string, hashes, shares, kernelErrors uint64, hashrate float64) {
	point := influxdb2.NewPoint(
		"lane_stats",
		map[string]string{
			"lane_id": strconv.Itoa(laneID),
			"state":   state,
		},
		map[string]interface{}{
			"hashes_computed": int64(hashes),
			"shares_found":    int64(shares),
			"kernel_errors":   int64(kernelErrors),
			"hashrate_hs":     hashrate,
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

// WriteAggregateMetric records the coordinator-level fan-in snapshot
func (c *Client) WriteAggregateMetric(totalHashes, totalShares uint64, hashrate, uptime float64, activeLanes int) {
	point := influxdb2.NewPoint(
		"miner_stats",
		map[string]string{},
		map[string]interface{}{
			"total_hashes":   int64(totalHashes),
			"total_shares":   int64(totalShares),
			"hashrate_hs":    hashrate,
			"uptime_seconds": uptime,
			"active_lanes":   activeLanes,
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

// WriteShareMetric records one discovered share
func (c *Client) WriteShareMetric(laneID int, jobID string, generation uint64) {
	point := influxdb2.NewPoint(
		"shares",
		map[string]string{
			"lane_id": strconv.Itoa(laneID),
			"job_id":  jobID,
		},
		map[string]interface{}{
			"count":          1,
			"job_generation": int64(generation),
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

// GetAverageHashrate queries the mean aggregate hashrate over the window
func (c *Client) GetAverageHashrate(ctx context.Context, window time.Duration) (float64, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
		|> range(start: -%ds)
		|> filter(fn: (r) => r._measurement == "miner_stats" and r._field == "hashrate_hs")
		|> mean()`,
		c.bucket, int(window.Seconds()))

	result, err := c.queryAPI.Query(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to query hashrate: %w", err)
	}
	defer func() { _ = result.Close() }()

	if result.Next() {
		if value, ok := result.Record().Value().(float64); ok {
			return value, nil
		}
	}

	return 0, result.Err()
}
