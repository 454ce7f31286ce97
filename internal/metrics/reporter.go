// Package metrics periodically reports mining throughput: aggregate
// and per-lane snapshots go to the log, and to InfluxDB and the Redis
// hashrate window when configured.
package metrics

import (
	"context"
	"time"

	"github.com/bardlex/gomc/internal/database/influx"
	"github.com/bardlex/gomc/internal/database/redis"
	"github.com/bardlex/gomc/internal/mining"
	"github.com/bardlex/gomc/pkg/log"
)

// StatsSource provides read-only throughput snapshots.
type StatsSource interface {
	GetStats() mining.AggregateStats
}

// hashrateWindow bounds how far back smoothed hashrate averages reach.
const hashrateWindow = 5 * time.Minute

// Reporter polls a stats source on an interval and publishes the
// snapshots. The Influx and Redis clients are optional.
type Reporter struct {
	source   StatsSource
	influx   *influx.Client
	redis    *redis.Client
	logger   *log.Logger
	interval time.Duration
}

// NewReporter creates a reporter. A nil influx client disables
// time-series output and a nil redis client disables the rolling
// hashrate window; the log output always runs.
func NewReporter(source StatsSource, influxClient *influx.Client, redisClient *redis.Client, logger *log.Logger, interval time.Duration) *Reporter {
	return &Reporter{
		source:   source,
		influx:   influxClient,
		redis:    redisClient,
		logger:   logger.WithComponent("metrics"),
		interval: interval,
	}
}

// Run reports until the context is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.report(true) // final snapshot on shutdown
			return
		case <-ticker.C:
			r.report(false)
		}
	}
}

func (r *Reporter) report(final bool) {
	stats := r.source.GetStats()

	activeLanes := 0
	for _, lane := range stats.Lanes {
		if lane.State == "running" {
			activeLanes++
		}
		r.logger.LogHashrate(lane.LaneID, lane.HashesComputed, lane.HashRate, lane.SharesFound)
	}

	r.logger.Info("mining progress",
		"total_hashes", stats.TotalHashes,
		"total_shares", stats.TotalShares,
		"hashrate_hs", stats.HashRate,
		"uptime_seconds", stats.Uptime,
		"active_lanes", activeLanes,
	)

	if r.redis != nil {
		r.recordHashrateWindow(stats.Lanes, final)
	}

	if r.influx == nil {
		return
	}

	for _, lane := range stats.Lanes {
		r.influx.WriteLaneMetric(lane.LaneID, lane.State, lane.HashesComputed,
			lane.SharesFound, lane.KernelErrors, lane.HashRate)
	}
	r.influx.WriteAggregateMetric(stats.TotalHashes, stats.TotalShares,
		stats.HashRate, stats.Uptime, activeLanes)
}

// recordHashrateWindow pushes one sample per lane into the rolling
// window; the final snapshot also logs the smoothed averages.
func (r *Reporter) recordHashrateWindow(lanes []mining.LaneStats, final bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	for _, lane := range lanes {
		if err := r.redis.SetLaneHashrate(ctx, lane.LaneID, lane.HashRate, hashrateWindow); err != nil {
			r.logger.WithError(err).Debug("hashrate sample write failed", "lane_id", lane.LaneID)
			continue
		}

		if !final {
			continue
		}
		smoothed, err := r.redis.GetAverageLaneHashrate(ctx, lane.LaneID, hashrateWindow)
		if err != nil {
			r.logger.WithError(err).Debug("hashrate average read failed", "lane_id", lane.LaneID)
			continue
		}
		r.logger.Info("lane hashrate window",
			"lane_id", lane.LaneID,
			"hashrate_smoothed_hs", smoothed,
		)
	}
}
