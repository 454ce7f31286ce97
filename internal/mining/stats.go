package mining

import (
	"sync/atomic"
	"time"
)

// Share is a discovered proof-of-work solution, passed by value from a
// lane to the coordinator. It carries full provenance so the upstream
// collaborator can re-verify it independently, including the job
// generation so stale shares are identifiable after a replacement.
type Share struct {
	JobID       string
	Generation  uint64
	Nonce       uint32
	Extranonce  uint32
	Extranonce1 uint32
	NBits       uint32
	Digest      []byte
	LaneID      int
	Timestamp   time.Time
}

// laneCounters are the lane-owned throughput counters. Only the owning
// lane writes them; the coordinator reads snapshots, which is why they
// are atomics rather than plain fields.
type laneCounters struct {
	hashesComputed atomic.Uint64
	sharesFound    atomic.Uint64
	kernelErrors   atomic.Uint64
	startTime      time.Time
}

// LaneStats is a point-in-time snapshot of one lane.
type LaneStats struct {
	LaneID         int     `json:"lane_id"`
	State          string  `json:"state"`
	HashesComputed uint64  `json:"hashes_computed"`
	SharesFound    uint64  `json:"shares_found"`
	KernelErrors   uint64  `json:"kernel_errors"`
	HashRate       float64 `json:"hash_rate"`
}

// AggregateStats is the coordinator-level fan-in across all lanes.
type AggregateStats struct {
	TotalHashes uint64      `json:"total_hashes"`
	TotalShares uint64      `json:"total_shares"`
	HashRate    float64     `json:"hash_rate"`
	Uptime      float64     `json:"uptime_seconds"`
	Lanes       []LaneStats `json:"lanes"`
}

// snapshot reads the counters and derives the hashrate over elapsed.
func (c *laneCounters) snapshot(laneID int, state string) LaneStats {
	hashes := c.hashesComputed.Load()
	elapsed := time.Since(c.startTime).Seconds()

	var rate float64
	if elapsed > 0 {
		rate = float64(hashes) / elapsed
	}

	return LaneStats{
		LaneID:         laneID,
		State:          state,
		HashesComputed: hashes,
		SharesFound:    c.sharesFound.Load(),
		KernelErrors:   c.kernelErrors.Load(),
		HashRate:       rate,
	}
}
