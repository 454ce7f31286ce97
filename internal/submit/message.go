// Package submit is the collaborator side of the mining core: it turns
// shares into wire messages and fans them out to the configured
// backends (duplicate guard, journal, Kafka). The core treats all of
// this as fire-and-forget; nothing here may stall a lane.
package submit

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bardlex/gomc/internal/mining"
)

// Topic constants for share fan-out
const (
	// TopicShares carries discovered shares to the upstream collaborator
	TopicShares = "mining.shares"
)

// ShareMessage is the JSON wire form of a discovered share. It carries
// the full provenance a collaborator needs to re-verify the share
// without trusting the miner.
type ShareMessage struct {
	JobID       string    `json:"job_id"`
	Generation  uint64    `json:"job_generation"`
	Nonce       uint32    `json:"nonce"`
	Extranonce  uint32    `json:"extranonce"`
	Extranonce1 uint32    `json:"extranonce1"`
	NBits       uint32    `json:"nbits"`
	Digest      string    `json:"digest"`
	LaneID      int       `json:"lane_id"`
	FoundAt     time.Time `json:"found_at"`
}

// NewShareMessage converts a core share into its wire form.
func NewShareMessage(share mining.Share) ShareMessage {
	return ShareMessage{
		JobID:       share.JobID,
		Generation:  share.Generation,
		Nonce:       share.Nonce,
		Extranonce:  share.Extranonce,
		Extranonce1: share.Extranonce1,
		NBits:       share.NBits,
		Digest:      hex.EncodeToString(share.Digest),
		LaneID:      share.LaneID,
		FoundAt:     share.Timestamp,
	}
}

// Key is the stable identity of a share, used as the Kafka partition
// key and the duplicate-guard key. Two submissions of the same
// (job, extranonce, nonce) triple always map to the same key.
func (m ShareMessage) Key() string {
	return fmt.Sprintf("%s:%08x:%08x", m.JobID, m.Extranonce, m.Nonce)
}

// Marshal serializes the message to JSON.
func (m ShareMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}
