package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/wasm-audio/bridge"
	"github.com/wippyai/wasm-audio/host"
	"github.com/wippyai/wasm-audio/runtime"
)

func TestParseParam(t *testing.T) {
	tests := []struct {
		in      string
		want    paramSetting
		wantErr bool
	}{
		{in: "Gain=0.5", want: paramSetting{name: "Gain", value: 0.5}},
		{in: " Volume = -1 ", want: paramSetting{name: "Volume", value: -1}},
		{in: "Gain", wantErr: true},
		{in: "=1", wantErr: true},
		{in: "Gain=loud", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseParam(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseParam(%q) = %+v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseParam(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseParam(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{name: "builtin", args: []string{"-builtin", "gain"}},
		{name: "wasm with config", args: []string{"-wasm", "g.wasm", "-config", "t.json"}},
		{name: "nothing", args: nil, wantErr: true},
		{name: "both", args: []string{"-builtin", "tone", "-wasm", "g.wasm"}, wantErr: true},
		{name: "wasm without config", args: []string{"-wasm", "g.wasm"}, wantErr: true},
		{name: "unknown builtin", args: []string{"-builtin", "reverb"}, wantErr: true},
		{name: "zero rate", args: []string{"-builtin", "tone", "-rate", "0"}, wantErr: true},
		{name: "zero frames", args: []string{"-builtin", "tone", "-frames", "0"}, wantErr: true},
		{name: "zero seconds", args: []string{"-builtin", "tone", "-seconds", "0"}, wantErr: true},
		{name: "zero seconds interactive", args: []string{"-builtin", "tone", "-seconds", "0", "-i"}},
		{name: "note too high", args: []string{"-builtin", "tone", "-note", "128"}, wantErr: true},
		{name: "bad param", args: []string{"-builtin", "gain", "-param", "Gain"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags(tt.args, io.Discard)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseFlags(%v) err = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
		})
	}
}

func TestParseFlags_Values(t *testing.T) {
	opts, err := parseFlags([]string{
		"-builtin", "tone", "-rate", "44100", "-frames", "64", "-seconds", "2",
		"-param", "Volume=0.25", "-param", "Volume=0.75", "-note", "69", "-log-level", "debug",
	}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if opts.rate != 44100 || opts.frames != 64 || opts.seconds != 2 || opts.note != 69 || opts.logLevel != "debug" {
		t.Errorf("opts = %+v", opts)
	}
	if len(opts.params) != 2 || opts.params[1].value != 0.75 {
		t.Errorf("params = %v", opts.params.String())
	}
	if got := opts.params.String(); got != "Volume=0.25,Volume=0.75" {
		t.Errorf("String() = %q", got)
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := newLogger("info"); err != nil {
		t.Errorf("info: %v", err)
	}
	if _, err := newLogger("loud"); err == nil {
		t.Error("unknown level accepted")
	}
}

func renderOpts(builtin string) *options {
	return &options{
		builtin:  builtin,
		rate:     48000,
		frames:   256,
		seconds:  0.1,
		note:     -1,
		logLevel: "error",
	}
}

func TestRun_Gain(t *testing.T) {
	opts := renderOpts("gain")
	opts.params = paramList{{name: "Gain", value: 0.5}}

	var out bytes.Buffer
	if err := run(context.Background(), opts, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := out.String()

	for _, want := range []string{
		"Rendered 4800 frames in 19 callbacks",
		"out ch0: peak 0.2",
		"out ch1: peak 0.2",
		"Level = 0.2",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRun_ToneNote(t *testing.T) {
	opts := renderOpts("tone")
	opts.note = 69

	var out bytes.Buffer
	if err := run(context.Background(), opts, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := out.String()

	for _, want := range []string{"Note = 69", "Velocity = 100", "out ch0: peak 0.5"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRun_UnknownParameter(t *testing.T) {
	opts := renderOpts("gain")
	opts.params = paramList{{name: "Nope", value: 1}}

	err := run(context.Background(), opts, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "set Nope") {
		t.Errorf("run = %v, want parameter error", err)
	}
}

func TestRun_OutputParameterRejected(t *testing.T) {
	opts := renderOpts("gain")
	opts.params = paramList{{name: "Level", value: 1}}

	if err := run(context.Background(), opts, io.Discard); err == nil {
		t.Error("setting an output parameter succeeded")
	}
}

func TestMeter(t *testing.T) {
	var m meter
	if m.rms() != 0 {
		t.Errorf("empty rms = %v", m.rms())
	}
	m.add([]float32{0.5, -1, 0.5, 0})
	if m.peak != 1 {
		t.Errorf("peak = %v, want 1", m.peak)
	}
	// (0.25 + 1 + 0.25 + 0) / 4 = 0.375
	if got := m.rms(); got < 0.6123 || got > 0.6124 {
		t.Errorf("rms = %v, want sqrt(0.375)", got)
	}
}

func openTone(t *testing.T) *runtime.Session {
	t.Helper()
	ctx := context.Background()
	rt, err := runtime.New(ctx)
	if err != nil {
		t.Fatalf("runtime.New: %v", err)
	}
	t.Cleanup(func() { rt.Close(ctx) })

	mod, err := load(ctx, rt, renderOpts("tone"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sess, err := mod.Open(ctx, 48000, runtime.SessionConfig{
		Bridge: bridge.Options{Permission: bridge.PermissionGranted},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { sess.Close(ctx) })
	return sess
}

func TestInteractiveModel_Keys(t *testing.T) {
	sess := openTone(t)
	m := newInteractiveModel("tone", sess, func() host.DriverStats { return host.DriverStats{} }, nil)
	cb := host.NewCallback(sess.Tables(), 128)
	step := func() {
		t.Helper()
		sess.Bridge().Params().Load(cb.Params)
		if err := sess.Bridge().Process(cb); err != nil {
			t.Fatalf("Process: %v", err)
		}
		m.refresh()
	}

	m.handleKey("a")
	if m.note != 60 {
		t.Fatalf("note = %d, want 60", m.note)
	}
	step()
	if got := m.values["Note"]; got != 60 {
		t.Errorf("Note = %v, want 60", got)
	}

	m.handleKey("d")
	step()
	if m.note != 64 || m.values["Note"] != 64 {
		t.Errorf("note = %d, Note = %v, want 64", m.note, m.values["Note"])
	}

	m.handleKey("]")
	step()
	if got := m.values["Bend"]; got != 1024 {
		t.Errorf("Bend = %v, want 1024", got)
	}

	m.handleKey(" ")
	step()
	if m.note != -1 || m.values["Note"] != 0 {
		t.Errorf("after release note = %d, Note = %v", m.note, m.values["Note"])
	}

	m.handleKey("right")
	if got := m.values["Volume"]; got < 0.549 || got > 0.551 {
		t.Errorf("Volume = %v, want 0.55", got)
	}
	if got := sess.Bridge().Params().Get(0); got < 0.549 || got > 0.551 {
		t.Errorf("stored Volume = %v, want 0.55", got)
	}

	view := m.View()
	for _, want := range []string{"Volume", "Note", "Level", "tone"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	if cmd := m.handleKey("q"); cmd == nil {
		t.Error("q did not quit")
	} else if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not return tea.Quit")
	}
}

func TestInteractiveModel_RunError(t *testing.T) {
	sess := openTone(t)
	runErr := make(chan error, 1)
	m := newInteractiveModel("tone", sess, func() host.DriverStats { return host.DriverStats{} }, runErr)

	runErr <- context.Canceled
	if _, cmd := m.Update(tickMsg{}); cmd != nil {
		t.Error("tick rescheduled after a driver error")
	}
	if !strings.Contains(m.View(), "Error") {
		t.Errorf("view = %q, want error", m.View())
	}
}
