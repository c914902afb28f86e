// Package host models the host side of the audio bridge: the buffers handed
// to each real-time callback, a lock-free parameter store shared with the
// control side, and a driver that issues callbacks at a fixed period.
package host

import (
	"github.com/wippyai/wasm-audio/descriptor"
)

// Callback is one real-time callback's worth of host audio.
//
// Inputs[k] and Outputs[k] hold the channel buffers of the k-th input and
// output bus, in descriptor table order. A nil bus entry, or an input bus
// with no channels, is absent: absent inputs are treated as silence and
// absent outputs are skipped. Every channel buffer must hold at least
// Frames samples.
type Callback struct {
	Frames  int
	Inputs  [][][]float32
	Outputs [][][]float32
	// Params holds the host's current value per parameter index. Only input
	// parameters are read.
	Params []float32
}

// Processor consumes callbacks on the real-time goroutine.
type Processor interface {
	Process(cb *Callback) error
}

// NewCallback allocates buffers for every bus in t, sized for maxFrames.
func NewCallback(t *descriptor.Tables, maxFrames int) *Callback {
	cb := &Callback{
		Frames: maxFrames,
		Params: t.Defaults(),
	}
	for _, bus := range t.Buses {
		chans := make([][]float32, bus.Channels)
		for ch := range chans {
			chans[ch] = make([]float32, maxFrames)
		}
		if bus.Direction == descriptor.Input {
			cb.Inputs = append(cb.Inputs, chans)
		} else {
			cb.Outputs = append(cb.Outputs, chans)
		}
	}
	return cb
}

// Silence zeroes every input and output buffer.
func (cb *Callback) Silence() {
	for _, bufs := range [2][][][]float32{cb.Inputs, cb.Outputs} {
		for _, bus := range bufs {
			for _, ch := range bus {
				clear(ch)
			}
		}
	}
}
