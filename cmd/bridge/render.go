package main

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/wippyai/wasm-audio/bridge"
	"github.com/wippyai/wasm-audio/descriptor"
	"github.com/wippyai/wasm-audio/host"
	"github.com/wippyai/wasm-audio/runtime"
)

// testToneHz is the sine fed to input buses.
const testToneHz = 440

// meter accumulates peak and RMS for one output channel.
type meter struct {
	peak   float32
	sumSq  float64
	frames int64
}

func (m *meter) add(buf []float32) {
	for _, v := range buf {
		a := float32(math.Abs(float64(v)))
		if a > m.peak {
			m.peak = a
		}
		m.sumSq += float64(v) * float64(v)
	}
	m.frames += int64(len(buf))
}

func (m *meter) rms() float64 {
	if m.frames == 0 {
		return 0
	}
	return math.Sqrt(m.sumSq / float64(m.frames))
}

// meters tracks every output channel of a callback layout.
type meters [][]meter

func newMeters(t *descriptor.Tables) meters {
	var ms meters
	for _, i := range t.BusIndices(descriptor.Output) {
		ms = append(ms, make([]meter, t.Buses[i].Channels))
	}
	return ms
}

func (ms meters) sink(cb *host.Callback, _ int64) {
	for b, bus := range cb.Outputs {
		if bus == nil || b >= len(ms) {
			continue
		}
		for c, ch := range bus {
			if c < len(ms[b]) {
				ms[b][c].add(ch[:cb.Frames])
			}
		}
	}
}

// sineSource fills every input channel with a half-scale sine.
func sineSource(rate float64) func(cb *host.Callback, frame int64) {
	step := 2 * math.Pi * testToneHz / rate
	return func(cb *host.Callback, frame int64) {
		for _, bus := range cb.Inputs {
			for _, ch := range bus {
				for i := range cb.Frames {
					ch[i] = float32(0.5 * math.Sin(step*float64(frame+int64(i))))
				}
			}
		}
	}
}

// render applies the requested controls, runs the session for the configured
// length and prints levels and notifications to w. It closes sess.
func render(ctx context.Context, sess *runtime.Session, opts *options, w io.Writer) error {
	tables := sess.Tables()

	var notes []bridge.Notification
	done := make(chan struct{})
	go func() {
		defer close(done)
		for n := range sess.Control().Reports() {
			notes = append(notes, n)
		}
	}()

	if err := applyControls(sess.Control(), opts); err != nil {
		sess.Close(ctx)
		<-done
		return err
	}

	ms := newMeters(tables)
	drv, err := sess.Driver(host.DriverConfig{
		SampleRate: opts.rate,
		Frames:     opts.frames,
		Source:     sineSource(opts.rate),
		Sink:       ms.sink,
	})
	if err != nil {
		sess.Close(ctx)
		<-done
		return err
	}

	total := int64(math.Round(opts.seconds * opts.rate))
	runErr := drv.Run(ctx, total)
	closeErr := sess.Close(ctx)
	<-done
	if runErr != nil {
		return fmt.Errorf("render: %w", runErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close session: %w", closeErr)
	}

	st := drv.Stats()
	fmt.Fprintf(w, "Rendered %d frames in %d callbacks at %g Hz\n", st.Frames, st.Callbacks, opts.rate)
	if st.Mismatches > 0 {
		fmt.Fprintf(w, "Channel mismatches: %d\n", st.Mismatches)
	}

	fmt.Fprintf(w, "\nOutput levels:\n")
	for b, i := range tables.BusIndices(descriptor.Output) {
		for c := range ms[b] {
			fmt.Fprintf(w, "  %s ch%d: peak %.4f rms %.4f\n", busName(tables, i), c, ms[b][c].peak, ms[b][c].rms())
		}
	}

	fmt.Fprintf(w, "\nNotifications (%d):\n", len(notes))
	for _, n := range notes {
		fmt.Fprintf(w, "  %s\n", describe(tables, n))
	}
	return nil
}

func busName(t *descriptor.Tables, i int) string {
	if name := t.Buses[i].Name; name != "" {
		return name
	}
	return fmt.Sprintf("bus%d", i)
}

// describe names parameter notifications after their table entry.
func describe(t *descriptor.Tables, n bridge.Notification) string {
	if n.Kind == bridge.NotifyParameter && n.Index >= 0 && n.Index < len(t.Parameters) {
		return fmt.Sprintf("%s = %g", t.Parameters[n.Index].Name, n.Value)
	}
	return n.String()
}
