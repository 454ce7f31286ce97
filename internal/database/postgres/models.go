package postgres

import "time"

// ShareRecord is one journaled share. The journal is append-only; a
// share is written exactly once, keyed by its stable identity.
type ShareRecord struct {
	ID          int64     `db:"id"`
	ShareKey    string    `db:"share_key"`
	JobID       string    `db:"job_id"`
	Generation  uint64    `db:"job_generation"`
	Nonce       int64     `db:"nonce"`
	Extranonce  int64     `db:"extranonce"`
	Extranonce1 int64     `db:"extranonce1"`
	NBits       int64     `db:"nbits"`
	Digest      string    `db:"digest"`
	LaneID      int       `db:"lane_id"`
	FoundAt     time.Time `db:"found_at"`
	CreatedAt   time.Time `db:"created_at"`
}

// JobRecord tracks the jobs the miner has worked on, for correlating
// journaled shares after the fact.
type JobRecord struct {
	ID         int64     `db:"id"`
	JobID      string    `db:"job_id"`
	Generation uint64    `db:"job_generation"`
	PrevHash   string    `db:"prev_hash"`
	NBits      int64     `db:"nbits"`
	StartedAt  time.Time `db:"started_at"`
}
