package reference

import (
	"github.com/wippyai/wasm-audio/descriptor"
	"github.com/wippyai/wasm-audio/wasm"
)

const (
	globalHeap uint32 = iota
	globalLive
)

// body is a function's extra locals and instruction stream.
type body struct {
	locals []wasm.LocalEntry
	code   []byte
}

type builder struct {
	m *wasm.Module
	l layout

	tBinary  uint32 // (i32, i32) -> ()
	tTernary uint32 // (i32, i32, i32) -> ()
}

var (
	i32 = wasm.ValI32
	f32 = wasm.ValF32
)

// newBuilder emits memory, globals and the ABI functions every guest shares.
func newBuilder(t *descriptor.Tables, l layout, cfg Config) *builder {
	m := &wasm.Module{}
	m.Memories = []wasm.Limits{{Min: cfg.MemoryPages, Max: cfg.MemoryPages}}
	m.ExportMemory("memory", 0)
	m.AddGlobal(i32, true, wasm.ConstI32(heapBase))
	m.AddGlobal(i32, true, wasm.ConstI32(0))

	b := &builder{
		m:        m,
		l:        l,
		tBinary:  m.AddType(wasm.FuncType{Params: []wasm.ValType{i32, i32}}),
		tTernary: m.AddType(wasm.FuncType{Params: []wasm.ValType{i32, i32, i32}}),
	}

	b.add("wrapper_new", wasm.FuncType{Params: []wasm.ValType{f32}, Results: []wasm.ValType{i32}},
		b.newBody(t, cfg.MaxInstances))
	b.add("wrapper_free", wasm.FuncType{Params: []wasm.ValType{i32}}, freeBody())
	b.add("wrapper_get_ins", wasm.FuncType{Params: []wasm.ValType{i32}, Results: []wasm.ValType{i32}},
		offsetBody(l.inChannels > 0, 0))
	b.add("wrapper_get_outs", wasm.FuncType{Params: []wasm.ValType{i32}, Results: []wasm.ValType{i32}},
		offsetBody(l.outChannels > 0, l.outs))
	b.add("wrapper_get_param_values", wasm.FuncType{Params: []wasm.ValType{i32}, Results: []wasm.ValType{i32}},
		offsetBody(l.params > 0, l.paramsOff))
	b.add("wrapper_set_parameter", wasm.FuncType{Params: []wasm.ValType{i32, i32, f32}},
		setParameterBody(l))
	return b
}

func (b *builder) add(name string, ft wasm.FuncType, fn body) {
	idx := b.m.AddFunc(b.m.AddType(ft), fn.locals, fn.code)
	b.m.ExportFunc(name, idx)
}

func (b *builder) process(fn body) {
	b.m.ExportFunc("wrapper_process", b.m.AddFunc(b.tBinary, fn.locals, fn.code))
}

func (b *builder) noteOn(fn body) {
	b.m.ExportFunc("wrapper_note_on", b.m.AddFunc(b.tTernary, fn.locals, fn.code))
}

func (b *builder) noteOff(fn body) {
	b.m.ExportFunc("wrapper_note_off", b.m.AddFunc(b.tBinary, fn.locals, fn.code))
}

func (b *builder) pitchBend(fn body) {
	b.m.ExportFunc("wrapper_pitch_bend", b.m.AddFunc(b.tBinary, fn.locals, fn.code))
}

// newBody: wrapper_new(sample_rate f32) -> handle i32. Local 1 holds the handle.
func (b *builder) newBody(t *descriptor.Tables, maxInstances int) body {
	size := int32(b.l.size)

	var c wasm.Code
	c.GlobalGet(globalLive).I32Const(int32(maxInstances)).Op(wasm.OpI32GeU).
		If().I32Const(0).Return().End()
	c.GlobalGet(globalHeap).I32Const(size).Op(wasm.OpI32Add).
		MemorySize().I32Const(16).Op(wasm.OpI32Shl).
		Op(wasm.OpI32GtU).
		If().I32Const(0).Return().End()

	c.GlobalGet(globalHeap).LocalSet(1)
	c.GlobalGet(globalHeap).I32Const(size).Op(wasm.OpI32Add).GlobalSet(globalHeap)
	c.GlobalGet(globalLive).I32Const(1).Op(wasm.OpI32Add).GlobalSet(globalLive)

	for _, p := range t.Parameters {
		c.LocalGet(1).F32Const(p.Default).F32Store(b.l.param(p.Index))
	}
	c.LocalGet(1).LocalGet(0).F32Store(b.l.sampleRate)
	c.LocalGet(1).End()

	return body{locals: []wasm.LocalEntry{{Count: 1, ValType: i32}}, code: c.Bytes()}
}

// freeBody releases a live-instance slot. Memory is not reclaimed.
func freeBody() body {
	var c wasm.Code
	c.GlobalGet(globalLive).Op(wasm.OpI32Eqz).If().Return().End()
	c.GlobalGet(globalLive).I32Const(1).Op(wasm.OpI32Sub).GlobalSet(globalLive)
	c.End()
	return body{code: c.Bytes()}
}

// offsetBody returns handle+off, or 0 when the region is empty.
func offsetBody(present bool, off uint32) body {
	var c wasm.Code
	if !present {
		c.I32Const(0).End()
		return body{code: c.Bytes()}
	}
	c.LocalGet(0)
	if off != 0 {
		c.I32Const(int32(off)).Op(wasm.OpI32Add)
	}
	c.End()
	return body{code: c.Bytes()}
}

// setParameterBody: wrapper_set_parameter(h, index, value). Out-of-range
// indices are ignored.
func setParameterBody(l layout) body {
	var c wasm.Code
	c.LocalGet(1).I32Const(int32(l.params)).Op(wasm.OpI32GeU).If().Return().End()
	c.LocalGet(0).LocalGet(1).I32Const(2).Op(wasm.OpI32Shl).Op(wasm.OpI32Add).
		LocalGet(2).F32Store(l.paramsOff)
	c.End()
	return body{code: c.Bytes()}
}

func noopBody() body {
	var c wasm.Code
	c.End()
	return body{code: c.Bytes()}
}

// sampleAddr pushes h + i*4, with h in local 0 and i in local 2.
func sampleAddr(c *wasm.Code) {
	c.LocalGet(0).LocalGet(2).I32Const(2).Op(wasm.OpI32Shl).Op(wasm.OpI32Add)
}

// clampFrames limits the frame count in local 1 to one block.
func clampFrames(c *wasm.Code) {
	c.LocalGet(1).I32Const(windowSize / 4).Op(wasm.OpI32GtU).
		If().I32Const(windowSize / 4).LocalSet(1).End()
}

// gainProcess: wrapper_process(h, n).
// Locals: 2 i (i32), 3 peak, 4 gain, 5 y (f32).
func gainProcess(l layout) body {
	var c wasm.Code
	clampFrames(&c)
	c.LocalGet(0).F32Load(l.param(GainParamGain)).LocalSet(4)
	c.F32Const(0).LocalSet(3)

	for ch := 0; ch < l.outChannels; ch++ {
		dst := l.outs + uint32(ch)*windowSize

		c.I32Const(0).LocalSet(2)
		c.Block().Loop()
		c.LocalGet(2).LocalGet(1).Op(wasm.OpI32GeU).BrIf(1)
		if l.inChannels > 0 {
			src := uint32(ch%l.inChannels) * windowSize
			sampleAddr(&c)
			c.F32Load(src).LocalGet(4).Op(wasm.OpF32Mul).LocalSet(5)
		} else {
			c.F32Const(0).LocalSet(5)
		}
		sampleAddr(&c)
		c.LocalGet(5).F32Store(dst)
		c.LocalGet(3).LocalGet(5).Op(wasm.OpF32Abs).Op(wasm.OpF32Max).LocalSet(3)
		c.LocalGet(2).I32Const(1).Op(wasm.OpI32Add).LocalSet(2)
		c.Br(0)
		c.End().End()
	}

	c.LocalGet(0).LocalGet(3).F32Store(l.param(GainParamLevel))
	c.End()

	return body{
		locals: []wasm.LocalEntry{{Count: 1, ValType: i32}, {Count: 3, ValType: f32}},
		code:   c.Bytes(),
	}
}

// toneProcess: wrapper_process(h, n).
// Locals: 2 i (i32), 3 peak, 4 y, 5 phase increment, 6 phase, 7 volume (f32).
func toneProcess(l layout) body {
	note := l.param(ToneParamNote)

	var c wasm.Code
	clampFrames(&c)
	c.LocalGet(0).F32Load(note).F32Const(10).Op(wasm.OpF32Mul).
		LocalGet(0).F32Load(l.sampleRate).Op(wasm.OpF32Div).LocalSet(5)
	c.LocalGet(0).F32Load(l.phase).LocalSet(6)
	c.LocalGet(0).F32Load(l.param(ToneParamVolume)).LocalSet(7)
	c.LocalGet(0).F32Load(note).F32Const(0).Op(wasm.OpF32Eq).
		If().F32Const(0).LocalSet(7).End()
	c.F32Const(0).LocalSet(3)

	c.I32Const(0).LocalSet(2)
	c.Block().Loop()
	c.LocalGet(2).LocalGet(1).Op(wasm.OpI32GeU).BrIf(1)
	c.LocalGet(6).F32Const(2).Op(wasm.OpF32Mul).F32Const(1).Op(wasm.OpF32Sub).
		LocalGet(7).Op(wasm.OpF32Mul).LocalSet(4)
	for ch := 0; ch < l.outChannels; ch++ {
		sampleAddr(&c)
		c.LocalGet(4).F32Store(l.outs + uint32(ch)*windowSize)
	}
	c.LocalGet(3).LocalGet(4).Op(wasm.OpF32Abs).Op(wasm.OpF32Max).LocalSet(3)
	c.LocalGet(6).LocalGet(5).Op(wasm.OpF32Add).LocalSet(6)
	c.LocalGet(6).F32Const(1).Op(wasm.OpF32Ge).
		If().LocalGet(6).F32Const(1).Op(wasm.OpF32Sub).LocalSet(6).End()
	c.LocalGet(2).I32Const(1).Op(wasm.OpI32Add).LocalSet(2)
	c.Br(0)
	c.End().End()

	c.LocalGet(0).LocalGet(6).F32Store(l.phase)
	c.LocalGet(0).LocalGet(3).F32Store(l.param(ToneParamLevel))
	c.End()

	return body{
		locals: []wasm.LocalEntry{{Count: 1, ValType: i32}, {Count: 5, ValType: f32}},
		code:   c.Bytes(),
	}
}

// toneNoteOn: wrapper_note_on(h, note, velocity).
func toneNoteOn(l layout) body {
	var c wasm.Code
	c.LocalGet(0).LocalGet(1).Op(wasm.OpF32ConvertI32S).F32Store(l.param(ToneParamNote))
	c.LocalGet(0).LocalGet(2).Op(wasm.OpF32ConvertI32S).F32Store(l.param(ToneParamVelocity))
	c.End()
	return body{code: c.Bytes()}
}

// toneNoteOff: wrapper_note_off(h, note). Only releases the sounding note.
func toneNoteOff(l layout) body {
	note := l.param(ToneParamNote)

	var c wasm.Code
	c.LocalGet(0).F32Load(note).LocalGet(1).Op(wasm.OpF32ConvertI32S).Op(wasm.OpF32Eq).If()
	c.LocalGet(0).F32Const(0).F32Store(note)
	c.LocalGet(0).F32Const(0).F32Store(l.param(ToneParamVelocity))
	c.End()
	c.End()
	return body{code: c.Bytes()}
}

// tonePitchBend: wrapper_pitch_bend(h, value).
func tonePitchBend(l layout) body {
	var c wasm.Code
	c.LocalGet(0).LocalGet(1).Op(wasm.OpF32ConvertI32S).F32Store(l.param(ToneParamBend))
	c.End()
	return body{code: c.Bytes()}
}
