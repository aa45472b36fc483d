package serial

import "sync/atomic"

// ring is a single-producer/single-consumer circular byte buffer with a
// power-of-two capacity.
//
// The read cursor is owned by the consumer side and the write cursor by
// the producer side; neither context ever mutates the other's cursor.
// The occupancy count crosses the ownership boundary and is the sole
// synchronization point between the two contexts, updated only with
// single atomic add/subtract operations. Cursors use atomic load/store
// for cross-goroutine visibility (the opposite side reads them when
// sizing contiguous runs) but are never read-modify-written by both.
//
// All operations are pre-clamped by the caller; none can fail.
type ring struct {
	data  []byte
	mask  uint32
	read  atomic.Uint32 // consumer cursor
	write atomic.Uint32 // producer cursor
	count atomic.Int32  // occupied bytes, 0..len(data)
}

// newRing returns a ring over a freshly allocated buffer of size bytes.
// size must be a power of two; New validates it.
func newRing(size int) ring {
	return ring{data: make([]byte, size), mask: uint32(size - 1)}
}

// size returns the fixed capacity in bytes.
func (r *ring) size() int { return len(r.data) }

// used returns the current occupancy in bytes.
func (r *ring) used() int { return int(r.count.Load()) }

// free returns the remaining capacity in bytes, never negative.
func (r *ring) free() int { return len(r.data) - r.used() }

// run returns the longest run starting at cursor that can be copied
// without wrapping, at most n. Callers loop when a transfer must wrap.
func (r *ring) run(cursor uint32, n int) int {
	if rem := len(r.data) - int(cursor); n > rem {
		return rem
	}
	return n
}

// produced commits n bytes appended at the write cursor.
// Only the producer side calls it.
func (r *ring) produced(n int) { r.count.Add(int32(n)) }

// consumed commits n bytes removed at the read cursor.
// Only the consumer side calls it.
func (r *ring) consumed(n int) { r.count.Add(int32(-n)) }

// reset returns both cursors and the count to zero.
// Callers must ensure neither context is mid-transfer.
func (r *ring) reset() {
	r.read.Store(0)
	r.write.Store(0)
	r.count.Store(0)
}
