package submit

import (
	"context"

	"github.com/bardlex/gomc/internal/mining"
	"github.com/bardlex/gomc/pkg/log"
)

// LogSubmitter is the default submitter when no backends are
// configured: it logs each share and succeeds.
type LogSubmitter struct {
	logger *log.Logger
}

// NewLogSubmitter creates a log-only submitter.
func NewLogSubmitter(logger *log.Logger) *LogSubmitter {
	return &LogSubmitter{logger: logger.WithComponent("submit")}
}

// Submit logs the share.
func (s *LogSubmitter) Submit(_ context.Context, share mining.Share) error {
	msg := NewShareMessage(share)
	s.logger.Info("share found",
		"key", msg.Key(),
		"job_id", msg.JobID,
		"job_generation", msg.Generation,
		"lane_id", msg.LaneID,
		"nonce", msg.Nonce,
		"extranonce", msg.Extranonce,
		"digest", msg.Digest,
	)
	return nil
}
