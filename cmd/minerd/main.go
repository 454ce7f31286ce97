// Package main implements minerd, the GOMC mining daemon. It wires the
// configured submission backends to the search core, starts the lane
// pool on a mock job, and keeps mining until a shutdown signal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bardlex/gomc/internal/config"
	"github.com/bardlex/gomc/internal/database"
	"github.com/bardlex/gomc/internal/database/postgres"
	"github.com/bardlex/gomc/internal/jobsource"
	"github.com/bardlex/gomc/internal/metrics"
	"github.com/bardlex/gomc/internal/mining"
	"github.com/bardlex/gomc/internal/submit"
	"github.com/bardlex/gomc/pkg/log"
)

// jobSnapshot is the job descriptor cached in Redis for restart
// visibility.
type jobSnapshot struct {
	JobID      string    `json:"job_id"`
	Generation uint64    `json:"job_generation"`
	PrevHash   string    `json:"prev_hash"`
	NBits      uint32    `json:"nbits"`
	StartedAt  time.Time `json:"started_at"`
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := log.New(cfg.ServiceName, cfg.Version, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting minerd",
		"version", cfg.Version,
		"num_lanes", cfg.NumLanes,
		"batch_size", cfg.BatchSize,
		"kernel_rounds", cfg.KernelRounds,
	)

	// Connect the configured storage backends
	databases, err := database.NewManager(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("failed to connect storage backends")
		os.Exit(1)
	}
	defer databases.Close()

	logStartupContext(databases, logger)

	// Build the submission side
	submitter := buildSubmitter(cfg, databases, logger)

	kernel, err := mining.NewFusedKernel(nil)
	if err != nil {
		logger.WithError(err).Error("failed to build hash kernel")
		os.Exit(1)
	}

	coordinator, err := mining.NewCoordinator(&mining.Config{
		NumLanes:       cfg.NumLanes,
		BatchSize:      cfg.BatchSize,
		Rounds:         cfg.KernelRounds,
		PollInterval:   cfg.PollInterval,
		MaxRespawns:    cfg.MaxRespawns,
		StopTimeout:    cfg.StopTimeout,
		ShareQueueSize: cfg.ShareQueueSize,
	}, kernel, submitter, logger)
	if err != nil {
		logger.WithError(err).Error("failed to build coordinator")
		os.Exit(1)
	}

	// Mock job: minerd runs standalone until a collaborator supplies
	// real templates
	job := mining.NewMockJob()
	if err := coordinator.Start(job); err != nil {
		logger.WithError(err).Error("failed to start mining")
		os.Exit(1)
	}
	recordJob(databases, job, coordinator.Generation(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Periodic throughput reporting
	reporter := metrics.NewReporter(coordinator, databases.Influx, databases.Redis, logger, cfg.StatsInterval)
	go reporter.Run(ctx)

	// Block-notification refresh: a new block means the current job is
	// stale, so restart the search on a fresh mock job generation
	if cfg.ZMQEndpoint != "" {
		listener, err := jobsource.NewBlockListener(cfg.ZMQEndpoint, logger)
		if err != nil {
			logger.WithError(err).Error("failed to create block listener")
			os.Exit(1)
		}
		defer func() { _ = listener.Close() }()

		go func() {
			err := listener.Listen(ctx, func(blockHash string) {
				next := mining.NewMockJob()
				if err := coordinator.SetJob(next); err != nil {
					logger.WithError(err).Error("failed to replace job", "block_hash", blockHash)
					return
				}
				recordJob(databases, next, coordinator.Generation(), logger)
			})
			if err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("block listener failed")
			}
		}()
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	cancel()

	if err := coordinator.Stop(); err != nil {
		logger.WithError(err).Error("shutdown failed")
		os.Exit(1)
	}

	stats := coordinator.GetStats()
	logger.Info("minerd stopped",
		"total_hashes", stats.TotalHashes,
		"total_shares", stats.TotalShares,
		"uptime_seconds", stats.Uptime,
	)

	if databases.Influx != nil {
		databases.Influx.Flush()
		window := time.Duration(stats.Uptime * float64(time.Second))
		qctx, qcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer qcancel()
		if avg, err := databases.Influx.GetAverageHashrate(qctx, window); err != nil {
			logger.WithError(err).Warn("failed to query session hashrate")
		} else {
			logger.Info("session average hashrate", "hashrate_hs", avg)
		}
	}
}

// buildSubmitter assembles the share pipeline from whichever backends
// the configuration enables. With none enabled, shares are just logged.
func buildSubmitter(cfg *config.Config, databases *database.Manager, logger *log.Logger) mining.Submitter {
	pipelineCfg := submit.PipelineConfig{}
	configured := false

	if databases.Redis != nil {
		pipelineCfg.Deduper = databases.Redis
		pipelineCfg.Counter = databases.Redis
		configured = true
	}
	if databases.Shares != nil {
		pipelineCfg.Journal = databases.Shares
		configured = true
	}
	if databases.Influx != nil {
		pipelineCfg.Metrics = databases.Influx
		configured = true
	}
	if len(cfg.KafkaBrokers) > 0 {
		pipelineCfg.Publisher = submit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		configured = true
	}

	if !configured {
		return submit.NewLogSubmitter(logger)
	}
	return submit.NewPipeline(pipelineCfg, logger)
}

// logStartupContext surfaces what the backends remember from previous
// runs. Everything here is informational; failures are logged and
// ignored.
func logStartupContext(databases *database.Manager, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if databases.Redis != nil {
		var previous jobSnapshot
		if err := databases.Redis.GetCurrentJob(ctx, &previous); err == nil {
			logger.Info("job active before restart",
				"job_id", previous.JobID,
				"job_generation", previous.Generation,
				"started_at", previous.StartedAt,
			)
		}
	}

	if databases.Jobs != nil {
		if last, err := databases.Jobs.LatestJob(ctx); err != nil {
			logger.WithError(err).Warn("failed to read latest journaled job")
		} else if last != nil {
			logger.Info("last journaled job",
				"job_id", last.JobID,
				"nbits", last.NBits,
				"started_at", last.StartedAt,
			)
		}
	}

	if databases.Shares != nil {
		since := time.Now().Add(-24 * time.Hour)
		if count, err := databases.Shares.CountSharesSince(ctx, since); err != nil {
			logger.WithError(err).Warn("failed to count journaled shares")
		} else {
			logger.Info("journaled shares in last 24h", "count", count)
		}
	}
}

// recordJob writes the active job to the enabled backends so restarts
// and collaborators can see what the miner is working on.
func recordJob(databases *database.Manager, job *mining.Job, generation uint64, logger *log.Logger) {
	if databases.Redis == nil && databases.Jobs == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	startedAt := time.Now().UTC()

	if databases.Redis != nil {
		snapshot := jobSnapshot{
			JobID:      job.ID,
			Generation: generation,
			PrevHash:   job.PrevHash,
			NBits:      job.NBits,
			StartedAt:  startedAt,
		}
		if err := databases.Redis.SetCurrentJob(ctx, snapshot); err != nil {
			logger.WithError(err).Warn("failed to cache current job", "job_id", job.ID)
		}
	}

	if databases.Jobs != nil {
		record := &postgres.JobRecord{
			JobID:      job.ID,
			Generation: generation,
			PrevHash:   job.PrevHash,
			NBits:      int64(job.NBits),
			StartedAt:  startedAt,
		}
		if err := databases.Jobs.InsertJob(ctx, record); err != nil {
			logger.WithError(err).Warn("failed to journal job", "job_id", job.ID)
		}
	}
}
