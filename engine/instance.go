package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"unsafe"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmaudio "github.com/wippyai/wasm-audio"
	"github.com/wippyai/wasm-audio/errors"
)

var errNullHandle = stderrors.New("wrapper_new returned a null handle")

// regions caches the base addresses a handle reported at creation.
type regions struct {
	ins, outs, params uint32
}

// Instance is a running guest. It implements wasmaudio.Module and
// wasmaudio.MemoryTracker. Calls must not be made concurrently.
type Instance struct {
	mod       api.Module
	mem       api.Memory
	ctx       context.Context
	fns       [numExports]api.Function
	stack     [4]uint64
	blockSize int

	regions map[uint32]regions
	memSize uint32
	memGen  uint64
}

var (
	_ wasmaudio.Module        = (*Instance)(nil)
	_ wasmaudio.MemoryTracker = (*Instance)(nil)
)

func (i *Instance) BlockSize() int {
	return i.blockSize
}

// call invokes e with i.stack[:n] as parameters; results land in i.stack.
func (i *Instance) call(ctx context.Context, phase errors.Phase, e export, n int) error {
	if err := i.fns[e].CallWithStack(ctx, i.stack[:n]); err != nil {
		return errors.Trap(phase, e.String(), err)
	}
	return nil
}

// Create calls wrapper_new and caches the new handle's memory regions.
func (i *Instance) Create(ctx context.Context, sampleRate float32) (wasmaudio.Handle, error) {
	i.stack[0] = api.EncodeF32(sampleRate)
	if err := i.call(ctx, errors.PhaseSetup, exportNew, 1); err != nil {
		return 0, errors.Instantiation(err)
	}
	h := uint32(i.stack[0])
	if h == 0 {
		return 0, errors.Instantiation(errNullHandle)
	}

	var r regions
	for _, q := range []struct {
		e   export
		dst *uint32
	}{
		{exportGetIns, &r.ins},
		{exportGetOuts, &r.outs},
		{exportGetParams, &r.params},
	} {
		i.stack[0] = uint64(h)
		if err := i.call(ctx, errors.PhaseSetup, q.e, 1); err != nil {
			return 0, errors.Instantiation(err)
		}
		*q.dst = uint32(i.stack[0])
	}
	i.regions[h] = r
	i.checkMemory()

	Logger().Debug("handle created",
		zap.Uint32("handle", h),
		zap.Uint32("ins", r.ins),
		zap.Uint32("outs", r.outs),
		zap.Uint32("params", r.params))
	return wasmaudio.Handle(h), nil
}

// Destroy calls wrapper_free. Destroying an unknown handle is an error.
func (i *Instance) Destroy(ctx context.Context, h wasmaudio.Handle) error {
	if _, ok := i.regions[uint32(h)]; !ok {
		return errors.NotFound(errors.PhaseTeardown, "handle", handleName(h))
	}
	delete(i.regions, uint32(h))
	i.stack[0] = uint64(h)
	if err := i.call(ctx, errors.PhaseTeardown, exportFree, 1); err != nil {
		return err
	}
	Logger().Debug("handle destroyed", zap.Uint32("handle", uint32(h)))
	return nil
}

func (i *Instance) lookup(phase errors.Phase, h wasmaudio.Handle) (regions, error) {
	r, ok := i.regions[uint32(h)]
	if !ok {
		return r, errors.NotFound(phase, "handle", handleName(h))
	}
	return r, nil
}

func (i *Instance) InputRegion(h wasmaudio.Handle) (uint32, error) {
	r, err := i.lookup(errors.PhaseSetup, h)
	return r.ins, err
}

func (i *Instance) OutputRegion(h wasmaudio.Handle) (uint32, error) {
	r, err := i.lookup(errors.PhaseSetup, h)
	return r.outs, err
}

// Window returns frames float32 samples of guest memory starting at offset.
// The slice aliases guest memory and is invalidated by memory growth.
func (i *Instance) Window(offset uint32, frames int) ([]float32, error) {
	if frames <= 0 {
		return nil, nil
	}
	length := uint32(frames) * 4
	if i.mem == nil || offset%4 != 0 {
		return nil, errors.OutOfBounds(errors.PhaseSetup, "window", offset, length)
	}
	b, ok := i.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseSetup, "window", offset, length)
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), frames), nil
}

func (i *Instance) SetParameter(h wasmaudio.Handle, index int, value float32) error {
	i.stack[0] = uint64(h)
	i.stack[1] = uint64(uint32(index))
	i.stack[2] = api.EncodeF32(value)
	return i.call(i.ctx, errors.PhaseProcess, exportSetParameter, 3)
}

// ParameterValue reads a parameter from the handle's parameter-value region.
func (i *Instance) ParameterValue(h wasmaudio.Handle, index int) (float32, error) {
	r, ok := i.regions[uint32(h)]
	if !ok || index < 0 {
		return 0, errors.ErrInvalidState
	}
	v, ok := i.mem.ReadFloat32Le(r.params + uint32(index)*4)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseProcess, "parameter", r.params+uint32(index)*4, 4)
	}
	return v, nil
}

// Advance calls wrapper_process for frames (at most one block).
func (i *Instance) Advance(h wasmaudio.Handle, frames int) error {
	i.stack[0] = uint64(h)
	i.stack[1] = uint64(uint32(frames))
	err := i.call(i.ctx, errors.PhaseProcess, exportProcess, 2)
	i.checkMemory()
	return err
}

// DispatchEvent routes an event to its wrapper export. Events whose export
// the guest lacks are discarded.
func (i *Instance) DispatchEvent(h wasmaudio.Handle, ev wasmaudio.Event) error {
	i.stack[0] = uint64(h)
	var e export
	n := 2
	switch ev.Kind {
	case wasmaudio.EventNoteOn:
		e = exportNoteOn
		i.stack[1] = uint64(ev.Note)
		i.stack[2] = uint64(ev.Velocity)
		n = 3
	case wasmaudio.EventNoteOff:
		e = exportNoteOff
		i.stack[1] = uint64(ev.Note)
	case wasmaudio.EventPitchBend:
		e = exportPitchBend
		i.stack[1] = api.EncodeI32(ev.Value)
	case wasmaudio.EventModWheel:
		e = exportModWheel
		i.stack[1] = api.EncodeI32(ev.Value)
	default:
		return nil
	}
	if i.fns[e] == nil {
		return nil
	}
	err := i.call(i.ctx, errors.PhaseEvent, e, n)
	i.checkMemory()
	return err
}

// MemoryGeneration increments whenever guest memory has been observed to grow.
func (i *Instance) MemoryGeneration() uint64 {
	return i.memGen
}

func (i *Instance) checkMemory() {
	if i.mem == nil {
		return
	}
	if size := i.mem.Size(); size != i.memSize {
		i.memSize = size
		i.memGen++
	}
}

// MemorySize returns the current guest memory size in bytes.
func (i *Instance) MemorySize() uint32 {
	if i.mem == nil {
		return 0
	}
	return i.mem.Size()
}

// Close releases the instance. Live handles are not freed individually.
func (i *Instance) Close(ctx context.Context) error {
	if len(i.regions) > 0 {
		Logger().Warn("closing instance with live handles", zap.Int("handles", len(i.regions)))
	}
	return i.mod.Close(ctx)
}

func handleName(h wasmaudio.Handle) string {
	return fmt.Sprintf("%#x", uint32(h))
}
