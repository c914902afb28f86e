package host

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/wippyai/wasm-audio/descriptor"
	"github.com/wippyai/wasm-audio/errors"
)

// DriverConfig configures a Driver.
type DriverConfig struct {
	SampleRate float64
	// Frames is the callback size. It need not match the guest block size.
	Frames int
	// Realtime paces callbacks to the wall clock. Otherwise callbacks run
	// back to back, which renders offline.
	Realtime bool
	// Source fills input buffers before each callback. frame is the index
	// of the callback's first frame. Runs on the real-time goroutine.
	Source func(cb *Callback, frame int64)
	// Sink consumes output buffers after each callback.
	Sink func(cb *Callback, frame int64)
}

// DriverStats counts driver activity.
type DriverStats struct {
	Callbacks  uint64
	Frames     uint64
	Mismatches uint64
}

// Driver issues callbacks to a Processor from a goroutine locked to its OS
// thread, standing in for a platform audio callback.
type Driver struct {
	proc   Processor
	params *Params
	cb     *Callback
	cfg    DriverConfig

	callbacks  atomic.Uint64
	frames     atomic.Uint64
	mismatches atomic.Uint64
}

// NewDriver creates a driver with buffers for t. When params is non-nil its
// values are copied into each callback.
func NewDriver(proc Processor, t *descriptor.Tables, params *Params, cfg DriverConfig) (*Driver, error) {
	if cfg.Frames <= 0 {
		return nil, errors.InvalidConfig([]string{"frames"}, cfg.Frames, "callback frame count must be positive")
	}
	if cfg.SampleRate <= 0 {
		return nil, errors.InvalidConfig([]string{"sample_rate"}, cfg.SampleRate, "sample rate must be positive")
	}
	return &Driver{
		proc:   proc,
		params: params,
		cb:     NewCallback(t, cfg.Frames),
		cfg:    cfg,
	}, nil
}

// Callback returns the driver's buffers. They are owned by the real-time
// goroutine while Run executes.
func (d *Driver) Callback() *Callback {
	return d.cb
}

// Period is the wall-clock duration of one full callback.
func (d *Driver) Period() time.Duration {
	return time.Duration(float64(d.cfg.Frames) / d.cfg.SampleRate * float64(time.Second))
}

// Run issues callbacks until totalFrames have been processed, or until ctx
// is done when totalFrames <= 0. Channel count mismatches are counted and
// processing continues; any other processing error stops the run.
func (d *Driver) Run(ctx context.Context, totalFrames int64) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var tick <-chan time.Time
	if d.cfg.Realtime {
		ticker := time.NewTicker(d.Period())
		defer ticker.Stop()
		tick = ticker.C
	}

	var done int64
	for totalFrames <= 0 || done < totalFrames {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := d.cfg.Frames
		if totalFrames > 0 && totalFrames-done < int64(n) {
			n = int(totalFrames - done)
		}
		d.cb.Frames = n
		if d.params != nil {
			d.params.Load(d.cb.Params)
		}
		if d.cfg.Source != nil {
			d.cfg.Source(d.cb, done)
		}

		if err := d.proc.Process(d.cb); err != nil {
			if !errors.IsKind(err, errors.KindChannelMismatch) {
				return err
			}
			d.mismatches.Add(1)
		}

		if d.cfg.Sink != nil {
			d.cfg.Sink(d.cb, done)
		}
		done += int64(n)
		d.callbacks.Add(1)
		d.frames.Add(uint64(n))

		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}
	}
	return nil
}

func (d *Driver) Stats() DriverStats {
	return DriverStats{
		Callbacks:  d.callbacks.Load(),
		Frames:     d.frames.Load(),
		Mismatches: d.mismatches.Load(),
	}
}
