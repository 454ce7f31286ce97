package mining

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"time"

	"github.com/bardlex/gomc/pkg/errors"
)

// MerkleFn derives the merkle root digest for a candidate coinbase.
// Supplied by the job source as an opaque pure function.
type MerkleFn func(coinbase []byte) []byte

// Job describes one unit of upstream work. Immutable once issued:
// the coordinator replaces it wholesale on update and lanes only ever
// hold a read-only reference.
type Job struct {
	ID          string
	Version     uint32
	PrevHash    string
	MerkleFn    MerkleFn
	NTime       uint32
	NBits       uint32
	Target      *big.Int
	Extranonce1 uint32
}

// NewJob validates the job fields, derives the target from nbits, and
// returns an immutable Job. Malformed fields are rejected here, before
// any lane sees the job.
func NewJob(id string, version uint32, prevHash string, merkleFn MerkleFn, nTime, nbits uint32, extranonce1 uint32) (*Job, error) {
	if id == "" {
		return nil, errors.New(errors.ErrorTypeInput, "new_job", "job id cannot be empty")
	}

	if merkleFn == nil {
		return nil, errors.New(errors.ErrorTypeInput, "new_job", "merkle function cannot be nil").
			WithContext("job_id", id)
	}

	if len(prevHash) != 64 {
		return nil, errors.New(errors.ErrorTypeInput, "new_job",
			"previous hash must be 64 hex characters").
			WithContext("job_id", id).
			WithContext("prev_hash_len", len(prevHash))
	}
	if _, err := hex.DecodeString(prevHash); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInput, "new_job",
			"previous hash is not valid hex").
			WithContext("job_id", id)
	}

	target, err := NbitsToTarget(nbits)
	if err != nil {
		return nil, err
	}

	return &Job{
		ID:          id,
		Version:     version,
		PrevHash:    prevHash,
		MerkleFn:    merkleFn,
		NTime:       nTime,
		NBits:       nbits,
		Target:      target,
		Extranonce1: extranonce1,
	}, nil
}

// mockNBits is the regtest proof-of-work limit. Nearly every digest
// satisfies it, which is the point: a mock job must yield shares within
// a single batch cycle.
const mockNBits = 0x207fffff

// NewMockJob synthesizes a standalone job with a fixed previous hash
// and a trivial target, for operation without an upstream job source.
// The merkle function is a plain double SHA-256 of the coinbase.
func NewMockJob() *Job {
	merkleFn := func(coinbase []byte) []byte {
		first := sha256.Sum256(coinbase)
		second := sha256.Sum256(first[:])
		return second[:]
	}

	job, err := NewJob(
		"mock",
		0x20000000,
		"0000000000000000000000000000000000000000000000000000000000000000",
		merkleFn,
		uint32(time.Now().Unix()),
		mockNBits,
		0x12345678,
	)
	if err != nil {
		// All inputs above are fixed and valid.
		panic(err)
	}

	return job
}

// BuildCoinbase assembles the minimal coinbase for an extranonce pair:
// a one-byte script-length prefix followed by both extranonces in
// little-endian order.
func BuildCoinbase(extranonce1, extranonce2 uint32) []byte {
	coinbase := make([]byte, 9)
	coinbase[0] = 0x03
	binary.LittleEndian.PutUint32(coinbase[1:5], extranonce1)
	binary.LittleEndian.PutUint32(coinbase[5:9], extranonce2)
	return coinbase
}
