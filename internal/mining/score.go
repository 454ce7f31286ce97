// Package mining implements the concurrent proof-of-work search core:
// nonce scoring and batch generation, per-lane extranonce allocation,
// header construction, the pluggable hash kernel, target checking, and
// the lane/coordinator machinery that ties them together.
package mining

import (
	"sort"
)

// scoreMixConstant is the fixed odd multiplier of the avalanche finalizer.
// Same constant as the fmix64 step of MurmurHash3.
const scoreMixConstant = 0xff51afd7ed558ccd

// NonceScore assigns a deterministic 64-bit priority to a
// (nonce, extranonce, nbits) triple. Identical inputs always produce
// identical output, which keeps batch scheduling order reproducible
// across runs and tests.
func NonceScore(nonce, extranonce, nbits uint32) uint64 {
	x := uint64(nonce)<<32 | uint64(extranonce)
	x ^= x >> 33
	x *= scoreMixConstant
	x ^= uint64(nbits)
	return x
}

// NonceTask is one scored candidate within a batch. Value type,
// generated per batch and discarded after use.
type NonceTask struct {
	Score      uint64
	Nonce      uint32
	Extranonce uint32
}

// GenerateNonceBatch builds a batch of size tasks with nonces
// (start+i) mod 2^32, ordered by score descending with ties broken by
// nonce ascending. Search order is immaterial to expected time to
// solution; the fixed ordering exists for reproducible scheduling.
func GenerateNonceBatch(start uint32, size int, extranonce, nbits uint32) []NonceTask {
	if size <= 0 {
		return nil
	}

	tasks := make([]NonceTask, size)
	for i := 0; i < size; i++ {
		nonce := start + uint32(i) // wraps mod 2^32
		tasks[i] = NonceTask{
			Score:      NonceScore(nonce, extranonce, nbits),
			Nonce:      nonce,
			Extranonce: extranonce,
		}
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Score != tasks[j].Score {
			return tasks[i].Score > tasks[j].Score
		}
		return tasks[i].Nonce < tasks[j].Nonce
	})

	return tasks
}
