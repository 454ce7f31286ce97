package mining

// ExtranonceAllocator hands out unique extranonce values to a single
// lane via stride partitioning. For lanes i != j under the same stride,
// base+i+c*stride never collides with base+j+c'*stride, so the
// sequences are disjoint without any locking: safety comes from each
// allocator being exclusively owned by its lane, not from atomics.
type ExtranonceAllocator struct {
	base    uint32
	stride  uint32
	laneID  uint32
	counter uint32
}

// NewExtranonceAllocator creates an allocator for one lane. base is the
// job's extranonce1, stride is the number of lanes, laneID must be
// unique in [0, stride).
func NewExtranonceAllocator(base uint32, stride uint32, laneID int) *ExtranonceAllocator {
	return &ExtranonceAllocator{
		base:   base,
		stride: stride,
		laneID: uint32(laneID),
	}
}

// Next returns the next extranonce for this lane and advances the
// counter. Arithmetic wraps mod 2^32; counter wraparound is tolerated
// by rotating extranonce1 upstream.
func (a *ExtranonceAllocator) Next() uint32 {
	value := a.base + a.laneID + a.counter*a.stride
	a.counter++
	return value
}

// Counter reports how many extranonces have been handed out.
func (a *ExtranonceAllocator) Counter() uint32 {
	return a.counter
}
