package host

import (
	"context"
	"testing"
	"time"

	"github.com/wippyai/wasm-audio/descriptor"
	"github.com/wippyai/wasm-audio/errors"
)

func testTables() *descriptor.Tables {
	return &descriptor.Tables{
		Buses: []descriptor.Bus{
			{Name: "in", Direction: descriptor.Input, Channels: 1},
			{Name: "out", Direction: descriptor.Output, Channels: 2},
		},
		Parameters: []descriptor.Parameter{
			{Name: "Gain", Direction: descriptor.Input, Default: 0.5, Index: 0},
			{Name: "Level", Direction: descriptor.Output, Default: 0, Index: 1},
		},
	}
}

func TestNewCallback(t *testing.T) {
	cb := NewCallback(testTables(), 64)
	if cb.Frames != 64 {
		t.Errorf("Frames = %d, want 64", cb.Frames)
	}
	if len(cb.Inputs) != 1 || len(cb.Inputs[0]) != 1 || len(cb.Inputs[0][0]) != 64 {
		t.Errorf("unexpected input shape")
	}
	if len(cb.Outputs) != 1 || len(cb.Outputs[0]) != 2 || len(cb.Outputs[0][1]) != 64 {
		t.Errorf("unexpected output shape")
	}
	if len(cb.Params) != 2 || cb.Params[0] != 0.5 {
		t.Errorf("Params = %v, want defaults", cb.Params)
	}

	cb.Outputs[0][1][3] = 1
	cb.Inputs[0][0][0] = 1
	cb.Silence()
	if cb.Outputs[0][1][3] != 0 || cb.Inputs[0][0][0] != 0 {
		t.Error("Silence left samples behind")
	}
}

func TestParams(t *testing.T) {
	p := NewParams([]float32{1, 2, 3})
	if p.Len() != 3 || p.Get(1) != 2 {
		t.Fatalf("unexpected initial state")
	}
	if !p.Set(2, 9) || p.Get(2) != 9 {
		t.Error("Set/Get round trip failed")
	}
	if p.Set(3, 1) || p.Set(-1, 1) {
		t.Error("Set out of range should fail")
	}
	if p.Get(5) != 0 {
		t.Error("Get out of range should be 0")
	}

	dst := make([]float32, 2)
	if n := p.Load(dst); n != 2 || dst[0] != 1 || dst[1] != 2 {
		t.Errorf("Load = %d %v", n, dst)
	}
	p.Reset([]float32{0, 0, 0})
	if s := p.Snapshot(); s[2] != 0 {
		t.Errorf("Snapshot after Reset = %v", s)
	}
}

type recorder struct {
	frames []int
	params []float32
	err    error
}

func (r *recorder) Process(cb *Callback) error {
	r.frames = append(r.frames, cb.Frames)
	r.params = append(r.params, cb.Params[0])
	return r.err
}

func TestDriver_RunFinite(t *testing.T) {
	rec := &recorder{}
	params := NewParams([]float32{0.25, 0})
	d, err := NewDriver(rec, testTables(), params, DriverConfig{SampleRate: 48000, Frames: 100})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}

	var sourced, sunk []int64
	d.cfg.Source = func(cb *Callback, frame int64) { sourced = append(sourced, frame) }
	d.cfg.Sink = func(cb *Callback, frame int64) { sunk = append(sunk, frame) }

	if err := d.Run(context.Background(), 250); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []int{100, 100, 50}
	if len(rec.frames) != len(want) {
		t.Fatalf("frames = %v, want %v", rec.frames, want)
	}
	for i := range want {
		if rec.frames[i] != want[i] {
			t.Errorf("callback %d frames = %d, want %d", i, rec.frames[i], want[i])
		}
		if rec.params[i] != 0.25 {
			t.Errorf("callback %d param = %v, want 0.25", i, rec.params[i])
		}
	}
	if len(sourced) != 3 || sourced[2] != 200 || len(sunk) != 3 {
		t.Errorf("source/sink frames = %v / %v", sourced, sunk)
	}
	st := d.Stats()
	if st.Callbacks != 3 || st.Frames != 250 {
		t.Errorf("stats = %+v", st)
	}
}

func TestDriver_MismatchContinues(t *testing.T) {
	rec := &recorder{err: errors.ErrChannelCountMismatch}
	d, err := NewDriver(rec, testTables(), nil, DriverConfig{SampleRate: 48000, Frames: 128})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	if err := d.Run(context.Background(), 256); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st := d.Stats(); st.Mismatches != 2 {
		t.Errorf("Mismatches = %d, want 2", st.Mismatches)
	}
}

func TestDriver_StopsOnError(t *testing.T) {
	rec := &recorder{err: errors.ErrInvalidState}
	d, _ := NewDriver(rec, testTables(), nil, DriverConfig{SampleRate: 48000, Frames: 128})
	if err := d.Run(context.Background(), 1024); err != errors.ErrInvalidState {
		t.Errorf("Run = %v, want ErrInvalidState", err)
	}
	if len(rec.frames) != 1 {
		t.Errorf("callbacks = %d, want 1", len(rec.frames))
	}
}

func TestDriver_RealtimeCancel(t *testing.T) {
	rec := &recorder{}
	d, _ := NewDriver(rec, testTables(), nil, DriverConfig{SampleRate: 48000, Frames: 480, Realtime: true})
	if d.Period() != 10*time.Millisecond {
		t.Errorf("Period = %v, want 10ms", d.Period())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	err := d.Run(ctx, 0)
	if err != context.DeadlineExceeded {
		t.Errorf("Run = %v, want deadline exceeded", err)
	}
	if n := len(rec.frames); n < 1 || n > 6 {
		t.Errorf("callbacks = %d, want about 4", n)
	}
}

func TestNewDriver_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  DriverConfig
	}{
		{"zero frames", DriverConfig{SampleRate: 48000}},
		{"zero rate", DriverConfig{Frames: 128}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewDriver(&recorder{}, testTables(), nil, tc.cfg)
			if !errors.IsKind(err, errors.KindInvalidConfig) {
				t.Errorf("expected invalid_config, got %v", err)
			}
		})
	}
}
