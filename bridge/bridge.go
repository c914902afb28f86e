// Package bridge connects a host audio callback to a guest DSP module.
//
// A Bridge owns one guest instance. Each callback applies changed input
// parameters, relays queued events, then processes the host's frames in
// chunks of the guest's native block size, copying audio through views over
// guest memory. Output parameters that changed are reported afterwards.
//
// Process runs on the real-time goroutine and neither allocates nor blocks.
// Setup, Reset, Close, SendEvent and Poll run on the control side; SendEvent
// and Poll each expect a single caller at a time.
package bridge

import (
	"context"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	wasmaudio "github.com/wippyai/wasm-audio"
	"github.com/wippyai/wasm-audio/descriptor"
	"github.com/wippyai/wasm-audio/errors"
	"github.com/wippyai/wasm-audio/host"
	"github.com/wippyai/wasm-audio/ring"
)

// Bridge adapts host callbacks to a wasmaudio.Module.
type Bridge struct {
	mod     wasmaudio.Module
	tracker wasmaudio.MemoryTracker
	tables  *descriptor.Tables
	opts    Options
	block   int

	state atomic.Uint32
	mu    sync.Mutex // serializes control-side lifecycle calls

	sampleRate float32
	handle     wasmaudio.Handle
	memGen     uint64

	inBuses   []int // table indices of input buses
	outBuses  []int
	inViews   [][][]float32 // [input bus][channel] window over guest memory
	outViews  [][][]float32
	inSlots   []slot
	outSlots  []slot
	inParams  []int
	outParams []int
	inSnap    []float32 // by parameter index
	outSnap   []float32

	inBad       []bool // per-callback mismatch flags
	outBad      []bool
	inReported  []bool
	outReported []bool
	readFailed  []bool // per output parameter, a fault was reported

	events *ring.Ring[wasmaudio.Event]
	notes  *ring.Ring[Notification]
	params *host.Params

	callbacks atomic.Uint64
	advances  atomic.Uint64
	frames    atomic.Uint64
	relayed   atomic.Uint64
}

// slot locates one channel view relative to its region base.
type slot struct {
	bus, channel int
	offset       uint32
}

// Stats counts bridge activity.
type Stats struct {
	Callbacks            uint64
	Advances             uint64
	Frames               uint64
	EventsRelayed        uint64
	EventsDropped        uint64
	NotificationsDropped uint64
	QueuedEvents         int
}

// New creates a bridge in the uninitialized state. All buffers the real-time
// path needs are allocated here. tables must be valid.
func New(mod wasmaudio.Module, tables *descriptor.Tables, opts Options) *Bridge {
	opts = opts.withDefaults()
	b := &Bridge{
		mod:       mod,
		tables:    tables,
		opts:      opts,
		block:     mod.BlockSize(),
		inBuses:   tables.BusIndices(descriptor.Input),
		outBuses:  tables.BusIndices(descriptor.Output),
		inParams:  tables.ParameterIndices(descriptor.Input),
		outParams: tables.ParameterIndices(descriptor.Output),
		inSnap:    tables.Defaults(),
		outSnap:   tables.Defaults(),
		events:    ring.New[wasmaudio.Event](opts.EventCapacity, opts.Overflow),
		notes:     ring.New[Notification](opts.NotificationCapacity, ring.DropNewest),
		params:    host.NewParams(tables.Defaults()),
	}
	if t, ok := mod.(wasmaudio.MemoryTracker); ok {
		b.tracker = t
	}

	b.inViews = b.allocViews(b.inBuses)
	b.outViews = b.allocViews(b.outBuses)
	b.inSlots = slots(tables, descriptor.Input, b.block)
	b.outSlots = slots(tables, descriptor.Output, b.block)
	b.inBad = make([]bool, len(b.inBuses))
	b.outBad = make([]bool, len(b.outBuses))
	b.inReported = make([]bool, len(b.inBuses))
	b.outReported = make([]bool, len(b.outBuses))
	b.readFailed = make([]bool, len(b.outParams))
	return b
}

func (b *Bridge) allocViews(buses []int) [][][]float32 {
	views := make([][][]float32, len(buses))
	for k, bi := range buses {
		views[k] = make([][]float32, b.tables.Buses[bi].Channels)
	}
	return views
}

// slots maps each window of dir to its position in the view table.
func slots(t *descriptor.Tables, dir descriptor.Direction, block int) []slot {
	var out []slot
	k, last := -1, -1
	for _, w := range t.Windows(dir, block) {
		if w.Bus != last {
			k++
			last = w.Bus
		}
		out = append(out, slot{bus: k, channel: w.Channel, offset: w.Offset})
	}
	return out
}

func (b *Bridge) State() State {
	return State(b.state.Load())
}

// Params is the shared parameter store. Hosts copy it into Callback.Params;
// the bridge mirrors output parameter changes into it.
func (b *Bridge) Params() *host.Params {
	return b.params
}

func (b *Bridge) Tables() *descriptor.Tables {
	return b.tables
}

func (b *Bridge) BlockSize() int {
	return b.block
}

// Setup creates the guest instance at sampleRate and moves to Ready. On
// failure the bridge stays uninitialized.
func (b *Bridge) Setup(ctx context.Context, sampleRate float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s := b.State(); s != StateUninitialized {
		return errors.InvalidState(errors.PhaseSetup, s.String())
	}
	if len(b.inBuses) > 0 && b.opts.Permission != PermissionGranted {
		return errors.Permission(b.opts.Permission.String())
	}
	if sampleRate <= 0 {
		return errors.InvalidConfig([]string{"sample_rate"}, sampleRate, "sample rate must be positive")
	}

	if err := b.instantiate(ctx, sampleRate); err != nil {
		return err
	}
	b.sampleRate = sampleRate
	b.state.Store(uint32(StateReady))

	Logger().Info("bridge ready",
		zap.Float32("sample_rate", sampleRate),
		zap.Int("block_size", b.block),
		zap.Int("input_buses", len(b.inBuses)),
		zap.Int("output_buses", len(b.outBuses)),
		zap.Uint32("handle", uint32(b.handle)))
	return nil
}

// instantiate creates a guest handle, resolves views and writes defaults.
func (b *Bridge) instantiate(ctx context.Context, sampleRate float32) error {
	h, err := b.mod.Create(ctx, sampleRate)
	if err != nil {
		if !errors.IsKind(err, errors.KindInstantiation) {
			err = errors.Instantiation(err)
		}
		return err
	}
	if h == 0 {
		return errors.Instantiation(nil)
	}
	b.handle = h

	if err := b.resolve(); err != nil {
		b.destroyHandle(ctx)
		return err
	}

	defaults := b.tables.Defaults()
	copy(b.inSnap, defaults)
	copy(b.outSnap, defaults)
	b.params.Reset(defaults)
	for _, idx := range b.inParams {
		if err := b.mod.SetParameter(h, idx, defaults[idx]); err != nil {
			b.destroyHandle(ctx)
			return errors.Instantiation(err)
		}
	}
	clear(b.inReported)
	clear(b.outReported)
	clear(b.readFailed)
	return nil
}

// resolve points every channel view at its guest window.
func (b *Bridge) resolve() error {
	if len(b.inSlots) > 0 {
		base, err := b.mod.InputRegion(b.handle)
		if err != nil {
			return errors.Instantiation(err)
		}
		if err := b.bind(b.inViews, b.inSlots, base); err != nil {
			return err
		}
	}
	if len(b.outSlots) > 0 {
		base, err := b.mod.OutputRegion(b.handle)
		if err != nil {
			return errors.Instantiation(err)
		}
		if err := b.bind(b.outViews, b.outSlots, base); err != nil {
			return err
		}
	}
	if b.tracker != nil {
		b.memGen = b.tracker.MemoryGeneration()
	}
	return nil
}

func (b *Bridge) bind(views [][][]float32, slots []slot, base uint32) error {
	for _, s := range slots {
		v, err := b.mod.Window(base+s.offset, b.block)
		if err != nil {
			return errors.Instantiation(err)
		}
		views[s.bus][s.channel] = v
	}
	return nil
}

// refresh re-resolves views after guest memory moved. Window does not
// allocate, so this is safe on the real-time path.
func (b *Bridge) refresh() error {
	if b.tracker == nil || b.tracker.MemoryGeneration() == b.memGen {
		return nil
	}
	return b.resolve()
}

func (b *Bridge) destroyHandle(ctx context.Context) {
	if b.handle == 0 {
		return
	}
	if err := b.mod.Destroy(ctx, b.handle); err != nil {
		Logger().Warn("destroy guest instance", zap.Error(err))
	}
	b.handle = 0
	for _, views := range [2][][][]float32{b.inViews, b.outViews} {
		for _, bus := range views {
			clear(bus)
		}
	}
}

// quiesce waits for an in-flight callback to finish and moves the bridge
// from Ready to next. It returns the state it left.
func (b *Bridge) quiesce(ctx context.Context, next State) (State, error) {
	for {
		s := b.State()
		switch s {
		case StateProcessing:
			if err := ctx.Err(); err != nil {
				return s, err
			}
			runtime.Gosched()
			continue
		case StateDestroyed:
			return s, nil
		}
		if b.state.CompareAndSwap(uint32(s), uint32(next)) {
			return s, nil
		}
	}
}

// Reset destroys and recreates the guest instance, re-resolving every view
// and restoring parameter defaults. Queued events are kept.
func (b *Bridge) Reset(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s := b.State(); s != StateReady && s != StateProcessing {
		return errors.InvalidState(errors.PhaseSetup, s.String())
	}
	prev, err := b.quiesce(ctx, StateUninitialized)
	if err != nil {
		return err
	}
	if prev != StateReady {
		return errors.InvalidState(errors.PhaseSetup, prev.String())
	}

	b.destroyHandle(ctx)
	if err := b.instantiate(ctx, b.sampleRate); err != nil {
		return err
	}
	b.state.Store(uint32(StateReady))
	Logger().Info("bridge reset", zap.Uint32("handle", uint32(b.handle)))
	return nil
}

// Close waits for any in-flight callback, destroys the instance and moves to
// Destroyed. Closing twice is a no-op.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, err := b.quiesce(ctx, StateDestroyed)
	if err != nil {
		return err
	}
	if prev == StateDestroyed {
		return nil
	}
	b.destroyHandle(ctx)
	Logger().Info("bridge closed", zap.Uint64("callbacks", b.callbacks.Load()))
	return nil
}

// SendEvent queues ev for the next callback. When the queue is full the
// overflow policy picks a victim, which is returned with ErrEventDropped.
func (b *Bridge) SendEvent(ev wasmaudio.Event) (wasmaudio.Event, error) {
	if b.State() == StateDestroyed {
		return ev, errors.InvalidState(errors.PhaseEvent, StateDestroyed.String())
	}
	if lost, dropped := b.events.Push(ev); dropped {
		return lost, errors.ErrEventDropped
	}
	return wasmaudio.Event{}, nil
}

// Poll delivers pending notifications to fn in order and returns the count.
func (b *Bridge) Poll(fn func(Notification)) int {
	return b.notes.Drain(fn)
}

// Process handles one host callback. It returns ErrInvalidState outside the
// Ready state, ErrShortBuffer when a host buffer cannot hold cb.Frames, and
// ErrChannelCountMismatch after processing when any bus was mismatched; the
// mismatched buses are silenced and the others processed normally.
func (b *Bridge) Process(cb *host.Callback) error {
	if !b.state.CompareAndSwap(uint32(StateReady), uint32(StateProcessing)) {
		return errors.ErrInvalidState
	}
	err := b.process(cb)
	b.state.Store(uint32(StateReady))
	return err
}

func (b *Bridge) process(cb *host.Callback) error {
	frames := cb.Frames
	if frames < 0 {
		return errors.ErrShortBuffer
	}
	mismatch, err := b.checkBuffers(cb)
	if err != nil {
		return err
	}
	b.callbacks.Add(1)

	if err := b.refresh(); err != nil {
		return b.fault(cb, err)
	}

	// Events are applied before the first advance, in arrival order.
	for {
		ev, ok := b.events.Pop()
		if !ok {
			break
		}
		if err := b.mod.DispatchEvent(b.handle, ev); err != nil {
			b.notify(Notification{Kind: NotifyFault, Event: ev, Err: err})
			continue
		}
		b.relayed.Add(1)
	}

	for _, idx := range b.inParams {
		if idx >= len(cb.Params) {
			continue
		}
		v := cb.Params[idx]
		if math.Float32bits(v) == math.Float32bits(b.inSnap[idx]) {
			continue
		}
		if err := b.mod.SetParameter(b.handle, idx, v); err != nil {
			return b.fault(cb, err)
		}
		b.inSnap[idx] = v
	}

	for off := 0; off < frames; off += b.block {
		n := min(b.block, frames-off)

		for k, views := range b.inViews {
			var src [][]float32
			if k < len(cb.Inputs) && !b.inBad[k] {
				src = cb.Inputs[k]
			}
			for ch, v := range views {
				if len(src) == 0 {
					clear(v[:n])
				} else {
					copy(v[:n], src[ch][off:off+n])
				}
			}
		}

		if err := b.mod.Advance(b.handle, n); err != nil {
			return b.fault(cb, err)
		}
		b.advances.Add(1)
		if err := b.refresh(); err != nil {
			return b.fault(cb, err)
		}

		for k, views := range b.outViews {
			if k >= len(cb.Outputs) || cb.Outputs[k] == nil || b.outBad[k] {
				continue
			}
			dst := cb.Outputs[k]
			for ch, v := range views {
				copy(dst[ch][off:off+n], v[:n])
			}
		}
	}
	b.frames.Add(uint64(frames))

	for i, idx := range b.outParams {
		v, err := b.mod.ParameterValue(b.handle, idx)
		if err != nil {
			if !b.readFailed[i] {
				b.readFailed[i] = b.notify(Notification{Kind: NotifyFault, Index: idx, Err: err})
			}
			continue
		}
		b.readFailed[i] = false
		if math.Float32bits(v) == math.Float32bits(b.outSnap[idx]) {
			continue
		}
		b.params.Set(idx, v)
		// An undelivered change is retried on the next callback.
		if b.notify(Notification{Kind: NotifyParameter, Index: idx, Value: v}) {
			b.outSnap[idx] = v
		}
	}

	if mismatch {
		return errors.ErrChannelCountMismatch
	}
	return nil
}

// checkBuffers validates host buffer shapes, flags mismatched buses, silences
// mismatched outputs and reports new mismatches.
func (b *Bridge) checkBuffers(cb *host.Callback) (bool, error) {
	frames := cb.Frames
	for _, bufs := range [2][][][]float32{cb.Inputs, cb.Outputs} {
		for _, bus := range bufs {
			for _, ch := range bus {
				if len(ch) < frames {
					return false, errors.ErrShortBuffer
				}
			}
		}
	}

	mismatch := false
	for k, bi := range b.inBuses {
		declared := b.tables.Buses[bi].Channels
		got := declared
		// A bus with no channels is disconnected and reads as silence.
		if k < len(cb.Inputs) && len(cb.Inputs[k]) > 0 {
			got = len(cb.Inputs[k])
		}
		b.inBad[k] = got != declared
		mismatch = b.track(bi, declared, got, &b.inReported[k]) || mismatch
	}
	for k, bi := range b.outBuses {
		declared := b.tables.Buses[bi].Channels
		got := declared
		if k < len(cb.Outputs) && cb.Outputs[k] != nil {
			got = len(cb.Outputs[k])
		}
		b.outBad[k] = got != declared
		if b.outBad[k] {
			for _, ch := range cb.Outputs[k] {
				clear(ch[:frames])
			}
		}
		mismatch = b.track(bi, declared, got, &b.outReported[k]) || mismatch
	}
	return mismatch, nil
}

// track reports a mismatch once per bus until it clears.
func (b *Bridge) track(bus, declared, got int, reported *bool) bool {
	if got == declared {
		*reported = false
		return false
	}
	if !*reported {
		*reported = b.notify(Notification{Kind: NotifyChannelMismatch, Index: bus, Declared: declared, Got: got})
	}
	return true
}

// fault silences the host outputs and reports a failed guest call.
func (b *Bridge) fault(cb *host.Callback, err error) error {
	for _, bus := range cb.Outputs {
		for _, ch := range bus {
			clear(ch[:cb.Frames])
		}
	}
	b.notify(Notification{Kind: NotifyFault, Err: err})
	return err
}

func (b *Bridge) notify(n Notification) bool {
	_, dropped := b.notes.Push(n)
	return !dropped
}

func (b *Bridge) Stats() Stats {
	ev := b.events.Stats()
	nt := b.notes.Stats()
	return Stats{
		Callbacks:            b.callbacks.Load(),
		Advances:             b.advances.Load(),
		Frames:               b.frames.Load(),
		EventsRelayed:        b.relayed.Load(),
		EventsDropped:        ev.Dropped,
		NotificationsDropped: nt.Dropped,
		QueuedEvents:         ev.Len,
	}
}
