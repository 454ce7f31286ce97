package mining

import (
	"context"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bardlex/gomc/pkg/errors"
	"github.com/bardlex/gomc/pkg/log"
)

// Submitter forwards shares to the upstream collaborator. The core is
// fire-and-forget: a failed submission is logged and counted, never
// retried here and never allowed to stall mining.
type Submitter interface {
	Submit(ctx context.Context, share Share) error
}

// Config holds the coordinator's mining parameters.
type Config struct {
	NumLanes       int
	BatchSize      int
	Rounds         int
	PollInterval   int
	MaxRespawns    int
	StopTimeout    time.Duration
	ShareQueueSize int
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		NumLanes:       4,
		BatchSize:      256,
		Rounds:         DefaultKernelRounds,
		PollInterval:   64,
		MaxRespawns:    1,
		StopTimeout:    2 * time.Second,
		ShareQueueSize: 256,
	}
}

// Coordinator owns the job state and the lane pool. It is the single
// hand-off point between the search core and the submission side:
// lanes funnel shares into one queue, the coordinator stamps out stale
// ones and forwards the rest.
type Coordinator struct {
	config    *Config
	kernel    Kernel
	submitter Submitter
	logger    *log.Logger

	current    atomic.Pointer[epoch]
	generation atomic.Uint64

	mutex     sync.Mutex
	running   bool
	lanes     []*Lane
	respawns  []int
	shares    chan Share
	stop      chan struct{}
	failures  chan laneFailure
	startTime time.Time
}

// NewCoordinator creates a coordinator. A nil config selects defaults,
// a nil kernel selects the reference FusedKernel with the default
// fusion sequence, and a nil submitter leaves shares log-only.
func NewCoordinator(config *Config, kernel Kernel, submitter Submitter, logger *log.Logger) (*Coordinator, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if config.NumLanes < 1 || config.BatchSize < 1 || config.Rounds < 1 || config.PollInterval < 1 {
		return nil, errors.New(errors.ErrorTypeInput, "new_coordinator",
			"lanes, batch size, rounds and poll interval must all be at least 1")
	}

	if kernel == nil {
		fused, err := NewFusedKernel(nil)
		if err != nil {
			return nil, err
		}
		kernel = fused
	}

	return &Coordinator{
		config:    config,
		kernel:    kernel,
		submitter: submitter,
		logger:    logger.WithComponent("coordinator"),
	}, nil
}

// validateJob rejects jobs a lane could not run. Jobs built through
// NewJob always pass; this guards the ones callers assemble by hand.
func validateJob(job *Job) error {
	if job.MerkleFn == nil {
		return errors.New(errors.ErrorTypeInput, "validate_job",
			"merkle function cannot be nil").
			WithContext("job_id", job.ID)
	}
	if len(job.PrevHash) != 64 {
		return errors.New(errors.ErrorTypeInput, "validate_job",
			"previous hash must be 64 hex characters").
			WithContext("job_id", job.ID)
	}
	if job.Target == nil {
		target, err := NbitsToTarget(job.NBits)
		if err != nil {
			return err
		}
		job.Target = target
	}
	return nil
}

// Start validates the job and spawns the lane pool. A nil job
// synthesizes a mock job for standalone operation. Assignment-time
// errors surface here, before any lane runs.
func (c *Coordinator) Start(job *Job) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.running {
		return errors.New(errors.ErrorTypeInternal, "coordinator_start",
			"coordinator is already running")
	}

	if job == nil {
		job = NewMockJob()
		c.logger.Info("no job supplied, mining mock job",
			"job_id", job.ID,
			"nbits", job.NBits,
		)
	}

	if err := validateJob(job); err != nil {
		return err
	}

	generation := c.generation.Add(1)
	c.current.Store(&epoch{job: job, generation: generation})

	c.stop = make(chan struct{})
	c.shares = make(chan Share, c.config.ShareQueueSize)
	c.failures = make(chan laneFailure, c.config.NumLanes)
	c.respawns = make([]int, c.config.NumLanes)
	c.lanes = make([]*Lane, c.config.NumLanes)
	c.startTime = time.Now()

	for id := 0; id < c.config.NumLanes; id++ {
		c.lanes[id] = c.newLaneLocked(id)
		c.lanes[id].start()
	}

	go c.runFunnel(c.stop, c.shares)
	go c.superviseLanes(c.stop, c.failures)

	c.running = true
	c.logger.Info("mining started",
		"job_id", job.ID,
		"job_generation", generation,
		"num_lanes", c.config.NumLanes,
		"batch_size", c.config.BatchSize,
		"rounds", c.config.Rounds,
	)

	return nil
}

func (c *Coordinator) newLaneLocked(id int) *Lane {
	return newLane(
		id,
		c.config.NumLanes,
		c.config.BatchSize,
		c.config.Rounds,
		c.config.PollInterval,
		c.kernel,
		c.logger,
		&c.current,
		c.shares,
		c.stop,
		c.failures,
	)
}

// Stop signals all lanes and joins them within the configured timeout.
// Returns a timeout error if any lane fails to acknowledge in time.
func (c *Coordinator) Stop() error {
	c.mutex.Lock()
	if !c.running {
		c.mutex.Unlock()
		return nil
	}
	c.running = false
	lanes := c.lanes
	close(c.stop)
	c.mutex.Unlock()

	deadline := time.NewTimer(c.config.StopTimeout)
	defer deadline.Stop()

	for _, lane := range lanes {
		select {
		case <-lane.Done():
		case <-deadline.C:
			return errors.New(errors.ErrorTypeTimeout, "coordinator_stop",
				"lanes did not stop within timeout").
				WithContext("timeout", c.config.StopTimeout.String())
		}
	}

	c.logger.Info("mining stopped")
	return nil
}

// SetJob replaces the current job wholesale. Lanes observe the new
// generation at their next poll point; shares stamped with the old
// generation are dropped at the funnel.
func (c *Coordinator) SetJob(job *Job) error {
	if job == nil {
		return errors.New(errors.ErrorTypeInput, "set_job", "job cannot be nil")
	}
	if err := validateJob(job); err != nil {
		return err
	}

	generation := c.generation.Add(1)
	c.current.Store(&epoch{job: job, generation: generation})
	c.logger.LogJobReplaced(job.ID, generation, job.NBits)

	return nil
}

// Generation returns the current job generation counter. Shares
// stamped with an older generation are stale.
func (c *Coordinator) Generation() uint64 {
	return c.generation.Load()
}

// GetStats aggregates a read-only snapshot across all lanes.
func (c *Coordinator) GetStats() AggregateStats {
	c.mutex.Lock()
	lanes := make([]*Lane, len(c.lanes))
	copy(lanes, c.lanes)
	startTime := c.startTime
	c.mutex.Unlock()

	stats := AggregateStats{
		Lanes: make([]LaneStats, 0, len(lanes)),
	}

	for _, lane := range lanes {
		snapshot := lane.Stats()
		stats.TotalHashes += snapshot.HashesComputed
		stats.TotalShares += snapshot.SharesFound
		stats.Lanes = append(stats.Lanes, snapshot)
	}

	if !startTime.IsZero() {
		stats.Uptime = time.Since(startTime).Seconds()
		if stats.Uptime > 0 {
			stats.HashRate = float64(stats.TotalHashes) / stats.Uptime
		}
	}

	return stats
}

// runFunnel is the single consumer of the share queue. Stale shares
// are dropped here so nothing emitted before a job replacement ever
// reaches the collaborator.
func (c *Coordinator) runFunnel(stop <-chan struct{}, shares <-chan Share) {
	for {
		select {
		case <-stop:
			return
		case share := <-shares:
			c.handleShare(share)
		}
	}
}

func (c *Coordinator) handleShare(share Share) {
	current := c.current.Load()
	if current == nil || share.Generation != current.generation {
		c.logger.Debug("dropping stale share",
			"job_id", share.JobID,
			"share_generation", share.Generation,
			"lane_id", share.LaneID,
		)
		return
	}

	c.logger.LogShareFound(share.LaneID, share.Nonce, share.Extranonce,
		hex.EncodeToString(share.Digest))

	if c.submitter == nil {
		return
	}

	if err := c.submitter.Submit(context.Background(), share); err != nil {
		// At-most-once from the core: log and keep mining.
		c.logger.WithError(err).Warn("share submission failed",
			"lane_id", share.LaneID,
			"nonce", share.Nonce,
		)
		return
	}

	c.logger.LogShareSubmission(share.LaneID, share.Nonce, "submitted")
}

// superviseLanes respawns crashed lanes up to the configured budget.
// A lane that stays down leaves the pool mining at reduced parallelism
// rather than taking the coordinator with it.
func (c *Coordinator) superviseLanes(stop <-chan struct{}, failures <-chan laneFailure) {
	for {
		select {
		case <-stop:
			return
		case failure := <-failures:
			c.logger.WithError(failure.err).Error("lane crashed",
				"lane_id", failure.laneID,
			)

			c.mutex.Lock()
			if c.running && c.respawns[failure.laneID] < c.config.MaxRespawns {
				c.respawns[failure.laneID]++
				lane := c.newLaneLocked(failure.laneID)
				c.lanes[failure.laneID] = lane
				lane.start()
				c.logger.Info("lane respawned",
					"lane_id", failure.laneID,
					"respawn_count", c.respawns[failure.laneID],
				)
			}
			c.mutex.Unlock()
		}
	}
}
