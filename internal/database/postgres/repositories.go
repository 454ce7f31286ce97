package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ShareRepository journals discovered shares
type ShareRepository struct {
	db *sql.DB
}

// NewShareRepository creates a new share repository
func NewShareRepository(db *sql.DB) *ShareRepository {
	return &ShareRepository{db: db}
}

// InsertShare appends a share to the journal. Conflicts on the share
// key are ignored; the journal records each share identity once.
func (r *ShareRepository) InsertShare(ctx context.Context, share *ShareRecord) error {
	query := `
		INSERT INTO shares (share_key, job_id, job_generation, nonce, extranonce,
			extranonce1, nbits, digest, lane_id, found_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (share_key) DO NOTHING
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		share.ShareKey, share.JobID, share.Generation, share.Nonce,
		share.Extranonce, share.Extranonce1, share.NBits, share.Digest,
		share.LaneID, share.FoundAt,
	).Scan(&share.ID, &share.CreatedAt)

	if err == sql.ErrNoRows {
		// Conflict path: the share was already journaled
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to insert share: %w", err)
	}

	return nil
}

// CountSharesSince counts journaled shares newer than the cutoff
func (r *ShareRepository) CountSharesSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM shares WHERE created_at >= $1`, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count shares: %w", err)
	}
	return count, nil
}

// JobRepository tracks jobs the miner has been assigned
type JobRepository struct {
	db *sql.DB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// InsertJob records a job assignment
func (r *JobRepository) InsertJob(ctx context.Context, job *JobRecord) error {
	query := `
		INSERT INTO jobs (job_id, job_generation, prev_hash, nbits, started_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		job.JobID, job.Generation, job.PrevHash, job.NBits, job.StartedAt,
	).Scan(&job.ID)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	return nil
}

// LatestJob returns the most recently assigned job, if any
func (r *JobRepository) LatestJob(ctx context.Context) (*JobRecord, error) {
	job := &JobRecord{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, job_id, job_generation, prev_hash, nbits, started_at
		FROM jobs
		ORDER BY started_at DESC
		LIMIT 1`,
	).Scan(&job.ID, &job.JobID, &job.Generation, &job.PrevHash, &job.NBits, &job.StartedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest job: %w", err)
	}

	return job, nil
}
