package host

import (
	"math"
	"sync/atomic"
)

// Params is a fixed-size set of float32 values readable and writable from
// any goroutine without locks. The control side writes input parameters and
// the real-time side writes output parameters.
type Params struct {
	vals []atomic.Uint32
}

// NewParams creates a store initialized from defaults.
func NewParams(defaults []float32) *Params {
	p := &Params{vals: make([]atomic.Uint32, len(defaults))}
	p.Reset(defaults)
	return p
}

func (p *Params) Len() int {
	return len(p.vals)
}

// Get returns the value at index, or 0 when out of range.
func (p *Params) Get(index int) float32 {
	if index < 0 || index >= len(p.vals) {
		return 0
	}
	return math.Float32frombits(p.vals[index].Load())
}

// Set stores v at index and reports whether index is in range.
func (p *Params) Set(index int, v float32) bool {
	if index < 0 || index >= len(p.vals) {
		return false
	}
	p.vals[index].Store(math.Float32bits(v))
	return true
}

// Load copies the current values into dst and returns the count copied.
func (p *Params) Load(dst []float32) int {
	n := min(len(dst), len(p.vals))
	for i := 0; i < n; i++ {
		dst[i] = math.Float32frombits(p.vals[i].Load())
	}
	return n
}

// Reset stores defaults over the leading values.
func (p *Params) Reset(defaults []float32) {
	n := min(len(defaults), len(p.vals))
	for i := 0; i < n; i++ {
		p.vals[i].Store(math.Float32bits(defaults[i]))
	}
}

// Snapshot returns a copy of all values.
func (p *Params) Snapshot() []float32 {
	out := make([]float32, len(p.vals))
	p.Load(out)
	return out
}
