// Package ring provides a bounded lock-free queue for handing fixed-size
// values between one producer goroutine and one consumer goroutine without
// allocating or blocking on either side.
//
// Each slot carries a sequence number, so the producer may also evict the
// oldest element when the queue is full. Eviction and consumption race for
// the read cursor with a compare-and-swap; the loser retries on the next
// slot, and no element is delivered twice.
package ring

import (
	"sync/atomic"
)

// Policy selects what Push does when the queue is full.
type Policy uint8

const (
	// DropNewest rejects the value being pushed.
	DropNewest Policy = iota
	// DropOldest evicts the oldest queued value to make room.
	DropOldest
)

func (p Policy) String() string {
	switch p {
	case DropNewest:
		return "drop-newest"
	case DropOldest:
		return "drop-oldest"
	default:
		return "unknown"
	}
}

type slot[T any] struct {
	seq atomic.Uint64
	val T
}

// Ring is a bounded queue. Capacity is rounded up to a power of two.
// A one-value ring still keeps two slots, since a single slot cannot tell
// a full lap from an empty one.
// Push must only be called from one goroutine; Pop from one other.
type Ring[T any] struct {
	_     [64]byte
	write atomic.Uint64
	_     [56]byte
	read  atomic.Uint64
	_     [56]byte

	slots  []slot[T]
	mask   uint64
	limit  uint64
	policy Policy

	pushed  atomic.Uint64
	dropped atomic.Uint64
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Pushed  uint64
	Dropped uint64
	Len     int
	Cap     int
}

// New creates a ring holding at least capacity values.
func New[T any](capacity int, policy Policy) *Ring[T] {
	limit := nextPowerOf2(capacity)
	size := max(limit, 2)
	r := &Ring[T]{
		slots:  make([]slot[T], size),
		mask:   uint64(size - 1),
		limit:  uint64(limit),
		policy: policy,
	}
	for i := range r.slots {
		r.slots[i].seq.Store(uint64(i))
	}
	return r
}

// Push enqueues v. It reports whether a value was lost: under DropNewest
// that is v itself, under DropOldest the evicted head. lost is the zero
// value when nothing was dropped.
//
// Under DropNewest Push never waits. Under DropOldest it may spin briefly
// while the consumer finishes a pop it has already claimed.
func (r *Ring[T]) Push(v T) (lost T, dropped bool) {
	for {
		if r.tryPush(v) {
			r.pushed.Add(1)
			return lost, dropped
		}
		if r.policy == DropNewest {
			r.dropped.Add(1)
			return v, true
		}
		if r.Len() < r.Cap() {
			continue
		}
		if old, ok := r.Pop(); ok {
			r.dropped.Add(1)
			if !dropped {
				lost, dropped = old, true
			}
		}
	}
}

func (r *Ring[T]) tryPush(v T) bool {
	pos := r.write.Load()
	if pos-r.read.Load() >= r.limit {
		return false
	}
	s := &r.slots[pos&r.mask]
	if s.seq.Load() != pos {
		return false
	}
	s.val = v
	r.write.Store(pos + 1)
	s.seq.Store(pos + 1)
	return true
}

// Pop dequeues the oldest value.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	for {
		pos := r.read.Load()
		s := &r.slots[pos&r.mask]
		seq := s.seq.Load()
		switch {
		case seq == pos+1:
			if !r.read.CompareAndSwap(pos, pos+1) {
				continue
			}
			v := s.val
			s.val = zero
			s.seq.Store(pos + r.mask + 1)
			return v, true
		case seq < pos+1:
			return zero, false
		}
		// Another popper claimed this slot; reload the cursor.
	}
}

// Drain pops every queued value into fn, in order, and returns the count.
func (r *Ring[T]) Drain(fn func(T)) int {
	n := 0
	for {
		v, ok := r.Pop()
		if !ok {
			return n
		}
		fn(v)
		n++
	}
}

// Len returns the approximate number of queued values.
func (r *Ring[T]) Len() int {
	w := r.write.Load()
	rd := r.read.Load()
	if rd >= w {
		return 0
	}
	return int(w - rd)
}

func (r *Ring[T]) Cap() int {
	return int(r.limit)
}

func (r *Ring[T]) Policy() Policy {
	return r.policy
}

func (r *Ring[T]) Stats() Stats {
	return Stats{
		Pushed:  r.pushed.Load(),
		Dropped: r.dropped.Load(),
		Len:     r.Len(),
		Cap:     r.Cap(),
	}
}

func nextPowerOf2(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
