package submit

import (
	"context"
	"time"

	"github.com/bardlex/gomc/internal/database/postgres"
	"github.com/bardlex/gomc/internal/mining"
	"github.com/bardlex/gomc/pkg/errors"
	"github.com/bardlex/gomc/pkg/log"
)

// Deduper guards against submitting the same share twice. Backed by
// Redis SetNX in production.
type Deduper interface {
	MarkShareSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Journal records every forwarded share durably.
type Journal interface {
	InsertShare(ctx context.Context, share *postgres.ShareRecord) error
}

// Publisher delivers a serialized share to the collaborator.
type Publisher interface {
	PublishShare(ctx context.Context, key string, payload []byte) error
}

// Metrics records share events as time-series points.
type Metrics interface {
	WriteShareMetric(laneID int, jobID string, generation uint64)
}

// Counter tracks rolling submission counts. Backed by Redis INCR in
// production.
type Counter interface {
	IncrementCounter(ctx context.Context, key string, expiration time.Duration) (int64, error)
}

// defaultDedupTTL only needs to outlive the job a share belongs to.
const defaultDedupTTL = 10 * time.Minute

// forwardedCounterKey holds a rolling count of shares sent upstream.
const forwardedCounterKey = "shares:forwarded"

// Pipeline fans a share out to the configured backends. Every stage is
// optional; the dedup and journal stages are advisory (a failure there
// is logged and the share still goes out), while a publish failure is
// the submission failure reported back to the coordinator.
type Pipeline struct {
	deduper   Deduper
	journal   Journal
	publisher Publisher
	metrics   Metrics
	counter   Counter
	logger    *log.Logger
	dedupTTL  time.Duration
}

// PipelineConfig selects the backends for a pipeline. Nil fields
// disable their stage.
type PipelineConfig struct {
	Deduper   Deduper
	Journal   Journal
	Publisher Publisher
	Metrics   Metrics
	Counter   Counter
	DedupTTL  time.Duration
}

// NewPipeline creates a share pipeline.
func NewPipeline(cfg PipelineConfig, logger *log.Logger) *Pipeline {
	ttl := cfg.DedupTTL
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}

	return &Pipeline{
		deduper:   cfg.Deduper,
		journal:   cfg.Journal,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		counter:   cfg.Counter,
		logger:    logger.WithComponent("submit"),
		dedupTTL:  ttl,
	}
}

// Submit forwards one share through the pipeline. Implements the
// coordinator's submission interface.
func (p *Pipeline) Submit(ctx context.Context, share mining.Share) error {
	msg := NewShareMessage(share)
	key := msg.Key()

	if p.deduper != nil {
		first, err := p.deduper.MarkShareSeen(ctx, key, p.dedupTTL)
		if err != nil {
			// Advisory: a broken dedup store must not drop shares
			p.logger.WithError(err).Warn("share dedup check failed", "key", key)
		} else if !first {
			p.logger.Debug("duplicate share suppressed", "key", key, "lane_id", share.LaneID)
			return nil
		}
	}

	if p.journal != nil {
		record := &postgres.ShareRecord{
			ShareKey:    key,
			JobID:       msg.JobID,
			Generation:  msg.Generation,
			Nonce:       int64(msg.Nonce),
			Extranonce:  int64(msg.Extranonce),
			Extranonce1: int64(msg.Extranonce1),
			NBits:       int64(msg.NBits),
			Digest:      msg.Digest,
			LaneID:      msg.LaneID,
			FoundAt:     msg.FoundAt,
		}
		if err := p.journal.InsertShare(ctx, record); err != nil {
			p.logger.WithError(err).Warn("share journal write failed", "key", key)
		}
	}

	if p.metrics != nil {
		p.metrics.WriteShareMetric(msg.LaneID, msg.JobID, msg.Generation)
	}

	if p.publisher != nil {
		payload, err := msg.Marshal()
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeSubmission, "submit_share",
				"failed to serialize share").
				WithContext("key", key)
		}

		if err := p.publisher.PublishShare(ctx, key, payload); err != nil {
			return errors.Wrap(err, errors.ErrorTypeSubmission, "submit_share",
				"failed to publish share").
				WithContext("key", key).
				WithContext("lane_id", share.LaneID)
		}
	} else {
		p.logger.Info("share accepted",
			"key", key,
			"lane_id", share.LaneID,
			"digest", msg.Digest,
		)
	}

	if p.counter != nil {
		if _, err := p.counter.IncrementCounter(ctx, forwardedCounterKey, 24*time.Hour); err != nil {
			p.logger.WithError(err).Warn("share counter update failed", "key", key)
		}
	}

	return nil
}
