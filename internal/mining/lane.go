package mining

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bardlex/gomc/pkg/errors"
	"github.com/bardlex/gomc/pkg/log"
)

// LaneState tracks a lane's lifecycle.
type LaneState int32

const (
	// LaneIdle - lane is constructed but not yet running
	LaneIdle LaneState = iota
	// LaneRunning - lane is actively searching
	LaneRunning
	// LaneStopping - lane observed the stop signal and is winding down
	LaneStopping
	// LaneStopped - lane has exited cleanly
	LaneStopped
	// LaneDegraded - lane crashed and is no longer contributing
	LaneDegraded
)

// String returns string representation of the lane state
func (s LaneState) String() string {
	switch s {
	case LaneIdle:
		return "idle"
	case LaneRunning:
		return "running"
	case LaneStopping:
		return "stopping"
	case LaneStopped:
		return "stopped"
	case LaneDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// laneNonceSpread offsets each lane's starting nonce so lanes begin in
// distant regions of the 32-bit space.
const laneNonceSpread = 0x1000000

// epoch pairs a job with its generation stamp. The coordinator swaps
// the whole value on replacement; lanes compare generations at poll
// points to detect the swap.
type epoch struct {
	job        *Job
	generation uint64
}

// laneFailure is the crash report a lane leaves behind for the
// coordinator.
type laneFailure struct {
	laneID int
	err    error
}

// Lane owns one goroutine of the nonce search. All mutable search
// state (extranonce allocator, nonce base, counters) is private to the
// lane; the only shared inputs are the immutable job epoch and the
// stop signal, and the only outputs are shares and the final failure
// report.
type Lane struct {
	id           int
	numLanes     int
	batchSize    int
	rounds       int
	pollInterval int

	kernel  Kernel
	logger  *log.Logger
	current *atomic.Pointer[epoch]

	shares   chan<- Share
	stop     <-chan struct{}
	failures chan<- laneFailure

	state    atomic.Int32
	counters laneCounters
	done     chan struct{}
}

// newLane wires a lane to the coordinator's shared epoch pointer, stop
// signal, and share funnel.
func newLane(id, numLanes, batchSize, rounds, pollInterval int, kernel Kernel, logger *log.Logger,
	current *atomic.Pointer[epoch], shares chan<- Share, stop <-chan struct{}, failures chan<- laneFailure) *Lane {
	l := &Lane{
		id:           id,
		numLanes:     numLanes,
		batchSize:    batchSize,
		rounds:       rounds,
		pollInterval: pollInterval,
		kernel:       kernel,
		logger:       logger.WithLane(id),
		current:      current,
		shares:       shares,
		stop:         stop,
		failures:     failures,
		done:         make(chan struct{}),
	}
	l.counters.startTime = time.Now()
	return l
}

// State returns the lane's current lifecycle state.
func (l *Lane) State() LaneState {
	return LaneState(l.state.Load())
}

// Stats returns a snapshot of the lane's counters.
func (l *Lane) Stats() LaneStats {
	return l.counters.snapshot(l.id, l.State().String())
}

// Done is closed when the lane's goroutine has exited.
func (l *Lane) Done() <-chan struct{} {
	return l.done
}

// start launches the lane goroutine.
func (l *Lane) start() {
	go l.run()
}

func (l *Lane) setState(to LaneState) {
	from := LaneState(l.state.Swap(int32(to)))
	if from != to {
		l.logger.LogLaneStateChange(l.id, from.String(), to.String())
	}
}

// stopRequested is the cheap poll against the shared stop channel.
func (l *Lane) stopRequested() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

// run is the mining loop: allocate an extranonce, derive the merkle
// root for it, generate a prioritized nonce batch, then hash and check
// each candidate. The stop signal and the job generation are polled at
// every batch boundary and every pollInterval inner iterations, so
// shutdown and job-replacement latency stay bounded regardless of
// batch size.
func (l *Lane) run() {
	defer close(l.done)
	defer func() {
		if r := recover(); r != nil {
			l.setState(LaneDegraded)
			err := errors.New(errors.ErrorTypeLane, "lane_run",
				fmt.Sprintf("lane crashed: %v", r)).
				WithContext("lane_id", l.id)
			select {
			case l.failures <- laneFailure{laneID: l.id, err: err}:
			default:
			}
			return
		}
		l.setState(LaneStopped)
	}()

	l.setState(LaneRunning)

	current := l.current.Load()
	allocator := NewExtranonceAllocator(current.job.Extranonce1, uint32(l.numLanes), l.id)
	nonceBase := uint32(l.id) * laneNonceSpread

	for {
		if l.stopRequested() {
			l.setState(LaneStopping)
			return
		}

		// Pick up a replaced job before starting the next batch. The
		// allocator and nonce base restart with the new extranonce1.
		if latest := l.current.Load(); latest.generation != current.generation {
			current = latest
			allocator = NewExtranonceAllocator(current.job.Extranonce1, uint32(l.numLanes), l.id)
			nonceBase = uint32(l.id) * laneNonceSpread
		}

		extranonce2 := allocator.Next()
		coinbase := BuildCoinbase(current.job.Extranonce1, extranonce2)
		merkleRoot := current.job.MerkleFn(coinbase)

		tasks := GenerateNonceBatch(nonceBase, l.batchSize, extranonce2, current.job.NBits)

		stale := false
		for i := range tasks {
			if i > 0 && i%l.pollInterval == 0 {
				if l.stopRequested() {
					l.setState(LaneStopping)
					return
				}
				if l.current.Load().generation != current.generation {
					stale = true
					break
				}
			}

			header, err := BuildHeader(
				current.job.Version,
				current.job.PrevHash,
				merkleRoot,
				current.job.NTime,
				current.job.NBits,
				tasks[i].Nonce,
			)
			if err != nil {
				// One bad header never kills the lane; skip the nonce.
				l.counters.kernelErrors.Add(1)
				continue
			}

			digest, err := l.kernel.Hash(header, l.rounds)
			if err != nil {
				l.counters.kernelErrors.Add(1)
				continue
			}
			l.counters.hashesComputed.Add(1)

			if MeetsTarget(digest, current.job.Target) {
				l.counters.sharesFound.Add(1)
				l.emitShare(current, tasks[i].Nonce, extranonce2, digest)
			}
		}

		if stale {
			continue
		}

		nonceBase += uint32(l.batchSize) // wraps mod 2^32
	}
}

// emitShare hands a share to the coordinator's funnel. Blocks until the
// funnel accepts it or the stop signal fires; a share lost to shutdown
// is acceptable, a share lost to backpressure is not.
func (l *Lane) emitShare(current *epoch, nonce, extranonce uint32, digest []byte) {
	share := Share{
		JobID:       current.job.ID,
		Generation:  current.generation,
		Nonce:       nonce,
		Extranonce:  extranonce,
		Extranonce1: current.job.Extranonce1,
		NBits:       current.job.NBits,
		Digest:      digest,
		LaneID:      l.id,
		Timestamp:   time.Now(),
	}

	select {
	case l.shares <- share:
	case <-l.stop:
	}
}
