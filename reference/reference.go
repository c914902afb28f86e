// Package reference builds small DSP guests that implement the wrapper ABI.
//
// The guests are generated as core WASM binaries with the wasm package, so
// tests and the CLI can exercise the full engine path without a C toolchain.
// Each instance is a bump-allocated struct in linear memory:
//
//	+0              input windows   (one BlockSize f32 window per input channel)
//	+ins            output windows  (one per output channel)
//	+ins+outs       parameter values (one f32 per parameter)
//	+...            private state   (sample rate, oscillator phase)
//
// wrapper_new returns 0 when the live-instance cap or the memory is exhausted.
package reference

import (
	wasmaudio "github.com/wippyai/wasm-audio"
	"github.com/wippyai/wasm-audio/descriptor"
)

// Guest is a generated module together with the descriptor tables it implements.
type Guest struct {
	Name   string
	Wasm   []byte
	Tables *descriptor.Tables
}

// Config bounds the resources a generated guest may use.
type Config struct {
	// MaxInstances caps live instances; 0 means 8.
	MaxInstances int
	// MemoryPages is the fixed memory size in 64KiB pages; 0 means 1.
	MemoryPages uint32
}

const (
	heapBase   = 1024
	windowSize = wasmaudio.BlockSize * 4
)

// Parameter indices shared by the generated guests.
const (
	GainParamGain  = 0
	GainParamLevel = 1

	ToneParamVolume   = 0
	ToneParamNote     = 1
	ToneParamVelocity = 2
	ToneParamBend     = 3
	ToneParamLevel    = 4
)

// layout holds byte offsets within one instance.
type layout struct {
	inChannels  int
	outChannels int
	params      int
	outs        uint32
	paramsOff   uint32
	sampleRate  uint32
	phase       uint32
	size        uint32
}

func newLayout(t *descriptor.Tables) layout {
	l := layout{
		inChannels:  t.Channels(descriptor.Input),
		outChannels: t.Channels(descriptor.Output),
		params:      len(t.Parameters),
	}
	l.outs = uint32(l.inChannels) * windowSize
	l.paramsOff = l.outs + uint32(l.outChannels)*windowSize
	l.sampleRate = l.paramsOff + uint32(l.params)*4
	l.phase = l.sampleRate + 4
	l.size = (l.phase + 4 + 15) &^ 15
	return l
}

func (l layout) param(i int) uint32 {
	return l.paramsOff + uint32(i)*4
}

func (cfg Config) withDefaults() Config {
	if cfg.MaxInstances <= 0 {
		cfg.MaxInstances = 8
	}
	if cfg.MemoryPages == 0 {
		cfg.MemoryPages = 1
	}
	return cfg
}

// Gain builds an effect that multiplies input by the Gain parameter and
// reports the block's peak absolute output as Level. Output channel c reads
// input channel c modulo the input channel count; with no inputs it emits
// silence.
func Gain(buses []descriptor.Bus, cfg Config) (*Guest, error) {
	tables := &descriptor.Tables{
		Buses: buses,
		Parameters: []descriptor.Parameter{
			{Name: "Gain", Direction: descriptor.Input, Default: 1, Index: GainParamGain},
			{Name: "Level", Direction: descriptor.Output, Default: 0, Index: GainParamLevel},
		},
	}
	if err := tables.Validate(); err != nil {
		return nil, err
	}

	l := newLayout(tables)
	b := newBuilder(tables, l, cfg.withDefaults())
	b.process(gainProcess(l))
	b.noteOn(noopBody())
	b.noteOff(noopBody())

	return &Guest{Name: "gain", Wasm: b.m.Encode(), Tables: tables}, nil
}

// Tone builds a mono sawtooth generator driven by note events. The Note
// output tracks the sounding note (0 when released), Velocity its velocity,
// Bend the last pitch-bend value and Level the block's peak output. The
// oscillator runs at ten times the note number in Hz.
func Tone(cfg Config) (*Guest, error) {
	tables := &descriptor.Tables{
		Buses: []descriptor.Bus{{Name: "out", Direction: descriptor.Output, Channels: 1}},
		Parameters: []descriptor.Parameter{
			{Name: "Volume", Direction: descriptor.Input, Default: 0.5, Index: ToneParamVolume},
			{Name: "Note", Direction: descriptor.Output, Default: 0, Index: ToneParamNote},
			{Name: "Velocity", Direction: descriptor.Output, Default: 0, Index: ToneParamVelocity},
			{Name: "Bend", Direction: descriptor.Output, Default: 0, Index: ToneParamBend},
			{Name: "Level", Direction: descriptor.Output, Default: 0, Index: ToneParamLevel},
		},
	}
	if err := tables.Validate(); err != nil {
		return nil, err
	}

	l := newLayout(tables)
	b := newBuilder(tables, l, cfg.withDefaults())
	b.process(toneProcess(l))
	b.noteOn(toneNoteOn(l))
	b.noteOff(toneNoteOff(l))
	b.pitchBend(tonePitchBend(l))

	return &Guest{Name: "tone", Wasm: b.m.Encode(), Tables: tables}, nil
}
