package mining

import (
	"crypto/sha256"
	"crypto/sha512"
	"strconv"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"

	"github.com/bardlex/gomc/pkg/errors"
)

// DefaultKernelRounds is the round count used when a caller does not
// configure one.
const DefaultKernelRounds = 128

// Kernel is the pluggable hash capability at the center of the search
// loop: header bytes in, digest bytes out. Implementations must be
// deterministic, side-effect-free, and safe for concurrent invocation
// from multiple lanes with no shared mutable state. BatchHash must
// produce exactly the digests Hash would produce for each element;
// batching never changes an individual result.
type Kernel interface {
	Hash(header []byte, rounds int) ([]byte, error)
	BatchHash(headers [][]byte, rounds int) ([][]byte, error)
}

// fusionPrimitive transforms one intermediate state.
type fusionPrimitive func(data []byte) []byte

var fusionPrimitives = map[string]fusionPrimitive{
	"sha256": func(data []byte) []byte {
		sum := sha256.Sum256(data)
		return sum[:]
	},
	"sha512": func(data []byte) []byte {
		sum := sha512.Sum512(data)
		return sum[:]
	},
	"blake2b": func(data []byte) []byte {
		sum := blake2b.Sum256(data)
		return sum[:]
	},
	"blake2s": func(data []byte) []byte {
		sum := blake2s.Sum256(data)
		return sum[:]
	},
}

// DefaultFusionSequence is the reference fusion order.
var DefaultFusionSequence = []string{"sha512", "sha256", "blake2b"}

// FusedKernel is the reference Kernel: each round appends the ASCII
// round index for domain separation, runs the configured fusion
// sequence of digest primitives, and XOR-folds wide states down to 32
// bytes. The final digest is a single SHA-256 of the last round state.
type FusedKernel struct {
	sequence []fusionPrimitive
	names    []string
}

// NewFusedKernel builds a kernel from a fusion sequence of primitive
// names. A nil or empty sequence selects DefaultFusionSequence. Unknown
// primitive names are rejected with an input error.
func NewFusedKernel(sequence []string) (*FusedKernel, error) {
	if len(sequence) == 0 {
		sequence = DefaultFusionSequence
	}

	primitives := make([]fusionPrimitive, 0, len(sequence))
	for _, name := range sequence {
		primitive, ok := fusionPrimitives[name]
		if !ok {
			return nil, errors.New(errors.ErrorTypeInput, "new_fused_kernel",
				"unknown fusion primitive").
				WithContext("primitive", name)
		}
		primitives = append(primitives, primitive)
	}

	names := make([]string, len(sequence))
	copy(names, sequence)

	return &FusedKernel{sequence: primitives, names: names}, nil
}

// FusionSequence returns the configured primitive names.
func (k *FusedKernel) FusionSequence() []string {
	names := make([]string, len(k.names))
	copy(names, k.names)
	return names
}

// transform applies one round: salt with the ASCII round index, run the
// fusion sequence, then fold the state to 32 bytes.
func (k *FusedKernel) transform(state []byte, round int) []byte {
	salted := make([]byte, 0, len(state)+4)
	salted = append(salted, state...)
	salted = strconv.AppendInt(salted, int64(round), 10)

	for _, primitive := range k.sequence {
		salted = primitive(salted)
	}

	// XOR-fold wide states for extra nonlinear mixing. Only sequences
	// ending in a 64-byte primitive take the fold path.
	if len(salted) >= 64 {
		folded := make([]byte, 32)
		for i := 0; i < 32; i++ {
			folded[i] = salted[i] ^ salted[32+i]
		}
		return folded
	}
	if len(salted) > 32 {
		return salted[:32]
	}
	return salted
}

// Hash runs the header through rounds of the fused transform and
// returns the final SHA-256 digest. Rounds are numbered from one so the
// first round's salt is never empty-equivalent across round counts.
func (k *FusedKernel) Hash(header []byte, rounds int) ([]byte, error) {
	if rounds < 1 {
		return nil, errors.New(errors.ErrorTypeKernel, "kernel_hash",
			"round count must be at least 1").
			WithContext("rounds", rounds)
	}
	if len(header) == 0 {
		return nil, errors.New(errors.ErrorTypeKernel, "kernel_hash",
			"empty header")
	}

	state := header
	for round := 1; round <= rounds; round++ {
		state = k.transform(state, round)
	}

	digest := sha256.Sum256(state)
	return digest[:], nil
}

// BatchHash hashes a group of headers, amortizing per-call overhead.
// Each digest equals the corresponding single Hash result.
func (k *FusedKernel) BatchHash(headers [][]byte, rounds int) ([][]byte, error) {
	if rounds < 1 {
		return nil, errors.New(errors.ErrorTypeKernel, "kernel_batch_hash",
			"round count must be at least 1").
			WithContext("rounds", rounds)
	}

	states := make([][]byte, len(headers))
	for i, header := range headers {
		if len(header) == 0 {
			return nil, errors.New(errors.ErrorTypeKernel, "kernel_batch_hash",
				"empty header in batch").
				WithContext("index", i)
		}
		states[i] = header
	}

	for round := 1; round <= rounds; round++ {
		for i := range states {
			states[i] = k.transform(states[i], round)
		}
	}

	digests := make([][]byte, len(states))
	for i := range states {
		sum := sha256.Sum256(states[i])
		digests[i] = sum[:]
	}

	return digests, nil
}
