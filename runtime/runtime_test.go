package runtime

import (
	"context"
	stderrors "errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/wasm-audio/bridge"
	"github.com/wippyai/wasm-audio/descriptor"
	"github.com/wippyai/wasm-audio/errors"
	"github.com/wippyai/wasm-audio/host"
	"github.com/wippyai/wasm-audio/reference"
)

func newRuntime(t *testing.T) *Runtime {
	t.Helper()
	ctx := context.Background()
	rt, err := New(ctx)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { rt.Close(ctx) })
	return rt
}

func gain(t *testing.T) *reference.Guest {
	t.Helper()
	g, err := reference.Gain([]descriptor.Bus{
		{Name: "in", Direction: descriptor.Input, Channels: 1},
		{Name: "out", Direction: descriptor.Output, Channels: 2},
	}, reference.Config{})
	if err != nil {
		t.Fatalf("Gain: %v", err)
	}
	return g
}

func TestLoad_RejectsInvalidTables(t *testing.T) {
	rt := newRuntime(t)
	ctx := context.Background()
	g := gain(t)

	if _, err := rt.Load(ctx, g.Wasm, nil); !errors.IsKind(err, errors.KindInvalidConfig) {
		t.Errorf("nil tables: %v", err)
	}
	bad := &descriptor.Tables{Buses: []descriptor.Bus{{Name: "x", Direction: descriptor.Output, Channels: 5}}}
	if _, err := rt.Load(ctx, g.Wasm, bad); !errors.IsKind(err, errors.KindInvalidConfig) {
		t.Errorf("bad tables: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	rt := newRuntime(t)
	ctx := context.Background()
	g := gain(t)

	dir := t.TempDir()
	wasmPath := filepath.Join(dir, "gain.wasm")
	tablesPath := filepath.Join(dir, "gain.json")
	if err := os.WriteFile(wasmPath, g.Wasm, 0o644); err != nil {
		t.Fatal(err)
	}
	data, err := g.Tables.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if err := os.WriteFile(tablesPath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	mod, err := rt.LoadFile(ctx, wasmPath, tablesPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(mod.Tables().Parameters) != 2 {
		t.Errorf("parameters = %d, want 2", len(mod.Tables().Parameters))
	}
	if !mod.Exports()["wrapper_process"] {
		t.Error("wrapper_process missing from exports")
	}

	if _, err := rt.LoadFile(ctx, filepath.Join(dir, "missing.wasm"), tablesPath); !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("missing wasm: %v", err)
	}

	// A directory exists but cannot be read as a guest.
	_, err = rt.LoadFile(ctx, dir, tablesPath)
	if !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("unreadable wasm: %v, want invalid_input", err)
	}
	if stderrors.Unwrap(err) == nil {
		t.Error("read error cause discarded")
	}
}

func TestSession_EndToEnd(t *testing.T) {
	rt := newRuntime(t)
	ctx := context.Background()

	mod, err := rt.LoadGuest(ctx, gain(t))
	if err != nil {
		t.Fatalf("LoadGuest: %v", err)
	}
	sess, err := mod.Open(ctx, 48000, SessionConfig{
		Bridge: bridge.Options{Permission: bridge.PermissionGranted},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close(ctx)

	if err := sess.Control().SetParameter("Gain", 0.5); err != nil {
		t.Fatalf("SetParameter: %v", err)
	}

	var peak float32
	drv, err := sess.Driver(host.DriverConfig{
		SampleRate: 48000,
		Frames:     200,
		Source: func(cb *host.Callback, frame int64) {
			for i := 0; i < cb.Frames; i++ {
				cb.Inputs[0][0][i] = float32(math.Sin(float64(frame+int64(i)) * 0.05))
			}
		},
		Sink: func(cb *host.Callback, frame int64) {
			for _, ch := range cb.Outputs[0] {
				for _, v := range ch[:cb.Frames] {
					peak = max(peak, float32(math.Abs(float64(v))))
				}
			}
		},
	})
	if err != nil {
		t.Fatalf("Driver: %v", err)
	}
	if err := drv.Run(ctx, 4800); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if peak < 0.45 || peak > 0.5 {
		t.Errorf("output peak = %v, want about 0.5", peak)
	}
	if st := sess.Bridge().Stats(); st.Frames != 4800 || st.Callbacks != 24 {
		t.Errorf("bridge stats = %+v", st)
	}

	deadline := time.After(time.Second)
	for {
		if v, _ := sess.Control().Parameter("Level"); v > 0.45 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Level never reported")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestOpen_PermissionRequired(t *testing.T) {
	rt := newRuntime(t)
	ctx := context.Background()
	mod, err := rt.LoadGuest(ctx, gain(t))
	if err != nil {
		t.Fatalf("LoadGuest: %v", err)
	}
	if _, err := mod.Open(ctx, 48000, SessionConfig{}); !errors.IsKind(err, errors.KindPermission) {
		t.Errorf("Open without permission = %v", err)
	}
}

func TestSession_CloseIdempotent(t *testing.T) {
	rt := newRuntime(t)
	ctx := context.Background()
	tone, err := reference.Tone(reference.Config{})
	if err != nil {
		t.Fatalf("Tone: %v", err)
	}
	mod, err := rt.LoadGuest(ctx, tone)
	if err != nil {
		t.Fatalf("LoadGuest: %v", err)
	}
	sess, err := mod.Open(ctx, 44100, SessionConfig{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := sess.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Close(ctx); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if sess.Bridge().State() != bridge.StateDestroyed {
		t.Errorf("state = %s", sess.Bridge().State())
	}
}

func TestNewWithConfig_Logger(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.InfoLevel)
	rt, err := NewWithConfig(ctx, Config{Logger: zap.New(core)})
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	defer rt.Close(ctx)

	if _, err := rt.LoadGuest(ctx, gain(t)); err != nil {
		t.Fatalf("LoadGuest: %v", err)
	}
	entries := logs.FilterMessage("guest loaded").All()
	if len(entries) != 1 {
		t.Fatalf("expected one load entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["parameters"]; got != int64(2) {
		t.Errorf("parameters field = %v, want 2", got)
	}
}
