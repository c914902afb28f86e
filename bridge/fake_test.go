package bridge

import (
	"context"
	"fmt"

	wasmaudio "github.com/wippyai/wasm-audio"
	"github.com/wippyai/wasm-audio/descriptor"
)

type setCall struct {
	index int
	value float32
}

// fakeModule is an in-process guest. Its memory is a float32 arena with the
// input windows at inBase and the output windows right after them.
type fakeModule struct {
	block  int
	nIn    int
	nOut   int
	inBase uint32
	mem    []float32
	params []float32

	created   int
	destroyed int
	handle    wasmaudio.Handle
	createErr error
	zero      bool // Create returns a zero handle
	paramErr  error
	gen       uint64

	record     bool
	log        []string
	advances   []int
	sets       []setCall
	inputsSeen [][]float32

	// onAdvance runs after the default processing.
	onAdvance func(f *fakeModule, n int)
}

func newFake(t *descriptor.Tables) *fakeModule {
	f := &fakeModule{
		block:  wasmaudio.BlockSize,
		nIn:    t.Channels(descriptor.Input),
		nOut:   t.Channels(descriptor.Output),
		inBase: 64,
		params: make([]float32, len(t.Parameters)),
		record: true,
	}
	f.alloc()
	return f
}

func (f *fakeModule) alloc() {
	words := int(f.inBase/4) + (f.nIn+f.nOut)*f.block
	mem := make([]float32, words)
	copy(mem, f.mem)
	f.mem = mem
}

func (f *fakeModule) outBase() uint32 {
	return f.inBase + uint32(f.nIn*f.block*4)
}

func (f *fakeModule) window(base uint32, ch int) []float32 {
	start := int(base/4) + ch*f.block
	return f.mem[start : start+f.block]
}

// grow relocates the arena, as a guest growing its memory would.
func (f *fakeModule) grow() {
	f.mem = append(make([]float32, 0, len(f.mem)+f.block), f.mem...)
	f.gen++
}

func (f *fakeModule) BlockSize() int { return f.block }

func (f *fakeModule) Create(ctx context.Context, sampleRate float32) (wasmaudio.Handle, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	if f.zero {
		return 0, nil
	}
	f.created++
	f.handle = wasmaudio.Handle(f.created)
	return f.handle, nil
}

func (f *fakeModule) Destroy(ctx context.Context, h wasmaudio.Handle) error {
	if h != f.handle {
		return fmt.Errorf("destroy of unknown handle %d", h)
	}
	f.destroyed++
	f.handle = 0
	return nil
}

func (f *fakeModule) InputRegion(h wasmaudio.Handle) (uint32, error) {
	if f.nIn == 0 {
		return 0, nil
	}
	return f.inBase, nil
}

func (f *fakeModule) OutputRegion(h wasmaudio.Handle) (uint32, error) {
	return f.outBase(), nil
}

func (f *fakeModule) Window(offset uint32, frames int) ([]float32, error) {
	start := int(offset / 4)
	if offset%4 != 0 || start+frames > len(f.mem) {
		return nil, fmt.Errorf("window 0x%x out of range", offset)
	}
	return f.mem[start : start+frames], nil
}

func (f *fakeModule) SetParameter(h wasmaudio.Handle, index int, value float32) error {
	f.params[index] = value
	if f.record {
		f.sets = append(f.sets, setCall{index, value})
		f.log = append(f.log, fmt.Sprintf("set %d=%g", index, value))
	}
	return nil
}

func (f *fakeModule) ParameterValue(h wasmaudio.Handle, index int) (float32, error) {
	if f.paramErr != nil {
		return 0, f.paramErr
	}
	return f.params[index], nil
}

// Advance copies input channel c%nIn to output channel c.
func (f *fakeModule) Advance(h wasmaudio.Handle, frames int) error {
	if f.record {
		f.advances = append(f.advances, frames)
		f.log = append(f.log, fmt.Sprintf("advance %d", frames))
		for ch := 0; ch < f.nIn; ch++ {
			f.inputsSeen = append(f.inputsSeen, append([]float32(nil), f.window(f.inBase, ch)[:frames]...))
		}
	}
	for ch := 0; ch < f.nOut; ch++ {
		out := f.window(f.outBase(), ch)[:frames]
		if f.nIn == 0 {
			clear(out)
			continue
		}
		copy(out, f.window(f.inBase, ch%f.nIn)[:frames])
	}
	if f.onAdvance != nil {
		f.onAdvance(f, frames)
	}
	return nil
}

func (f *fakeModule) DispatchEvent(h wasmaudio.Handle, ev wasmaudio.Event) error {
	if f.record {
		f.log = append(f.log, fmt.Sprintf("%s %d", ev.Kind, ev.Note))
	}
	return nil
}

func (f *fakeModule) MemoryGeneration() uint64 { return f.gen }
