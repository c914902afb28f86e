// Package control is the control-rate side of the bridge. A Channel accepts
// events and parameter writes from any goroutine, serializes them onto the
// bridge's single-producer queue, and pumps the bridge's notifications out as
// reports.
package control

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"go.uber.org/zap"

	wasmaudio "github.com/wippyai/wasm-audio"
	"github.com/wippyai/wasm-audio/bridge"
	"github.com/wippyai/wasm-audio/descriptor"
	"github.com/wippyai/wasm-audio/errors"
)

// Config configures a Channel.
type Config struct {
	// PollInterval is how often the pump drains notifications; 0 means 5ms.
	PollInterval time.Duration
	// ReportBuffer is the capacity of the Reports channel; 0 means 64.
	ReportBuffer int
	Logger       *zap.Logger
}

// Channel relays control traffic to and from one bridge.
type Channel struct {
	b      *bridge.Bridge
	tables *descriptor.Tables
	cfg    Config
	log    *zap.Logger

	sendMu sync.Mutex // single producer for the event queue
	pollMu sync.Mutex // single consumer for notifications

	reportMu sync.RWMutex
	reports  chan bridge.Notification
	closed   bool
	lost     atomic.Uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a channel for b. Call Start to run the notification pump.
func New(b *bridge.Bridge, cfg Config) *Channel {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	if cfg.ReportBuffer <= 0 {
		cfg.ReportBuffer = 64
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Channel{
		b:       b,
		tables:  b.Tables(),
		cfg:     cfg,
		log:     log,
		reports: make(chan bridge.Notification, cfg.ReportBuffer),
	}
}

// Reports delivers parameter changes, dropped events, channel mismatches and
// faults. It is closed by Close.
func (c *Channel) Reports() <-chan bridge.Notification {
	return c.reports
}

// LostReports counts reports discarded because Reports was full.
func (c *Channel) LostReports() uint64 {
	return c.lost.Load()
}

// Start runs the notification pump until ctx is done or Close is called.
func (c *Channel) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Pump()
			}
		}
	}()
}

// Pump forwards pending notifications to Reports and returns the count.
func (c *Channel) Pump() int {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	return c.b.Poll(c.report)
}

func (c *Channel) report(n bridge.Notification) {
	switch n.Kind {
	case bridge.NotifyParameter:
		c.log.Debug("parameter changed", zap.Int("index", n.Index), zap.Float32("value", n.Value))
	case bridge.NotifyEventDropped:
		c.log.Warn("event dropped", zap.Stringer("kind", n.Event.Kind), zap.Uint8("note", n.Event.Note))
	case bridge.NotifyChannelMismatch:
		c.log.Warn("channel count mismatch",
			zap.Int("bus", n.Index), zap.Int("declared", n.Declared), zap.Int("got", n.Got))
	case bridge.NotifyFault:
		c.log.Error("guest fault", zap.Error(n.Err))
	}

	c.reportMu.RLock()
	defer c.reportMu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.reports <- n:
	default:
		c.lost.Add(1)
	}
}

// Close stops the pump, forwards what is left and closes Reports.
func (c *Channel) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.Pump()

	c.reportMu.Lock()
	defer c.reportMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.reports)
	}
}

// Send queues an event for the next callback. A dropped event is reported
// on Reports and returned as ErrEventDropped.
func (c *Channel) Send(ev wasmaudio.Event) error {
	c.sendMu.Lock()
	lost, err := c.b.SendEvent(ev)
	c.sendMu.Unlock()

	if errors.IsKind(err, errors.KindEventDropped) {
		c.report(bridge.Notification{Kind: bridge.NotifyEventDropped, Event: lost})
	}
	return err
}

func (c *Channel) NoteOn(note, velocity uint8) error {
	return c.Send(wasmaudio.Event{Kind: wasmaudio.EventNoteOn, Note: note, Velocity: velocity})
}

func (c *Channel) NoteOff(note uint8) error {
	return c.Send(wasmaudio.Event{Kind: wasmaudio.EventNoteOff, Note: note})
}

// PitchBend sends a bend in the MIDI range -8192..8191.
func (c *Channel) PitchBend(value int32) error {
	return c.Send(wasmaudio.Event{Kind: wasmaudio.EventPitchBend, Value: value})
}

// ModWheel sends a modulation amount in 0..127.
func (c *Channel) ModWheel(value int32) error {
	return c.Send(wasmaudio.Event{Kind: wasmaudio.EventModWheel, Value: value})
}

// SendMIDI decodes a raw MIDI message and queues the resulting event.
// Messages with no event equivalent are ignored.
func (c *Channel) SendMIDI(raw []byte) error {
	ev, ok := FromMIDI(midi.Message(raw))
	if !ok {
		c.log.Debug("ignoring midi message", zap.Stringer("message", midi.Message(raw)))
		return nil
	}
	return c.Send(ev)
}

// SetParameter writes an input parameter by name. The value reaches the
// guest on the next callback.
func (c *Channel) SetParameter(name string, value float32) error {
	p, ok := c.tables.Lookup(name)
	if !ok {
		return errors.NotFound(errors.PhaseControl, "parameter", name)
	}
	return c.SetParameterIndex(p.Index, value)
}

// SetParameterIndex writes an input parameter by index.
func (c *Channel) SetParameterIndex(index int, value float32) error {
	if index < 0 || index >= len(c.tables.Parameters) {
		return errors.New(errors.PhaseControl, errors.KindNotFound).
			Path("parameters").Value(index).Detail("parameter index %d out of range", index).Build()
	}
	p := c.tables.Parameters[index]
	if p.Direction != descriptor.Input {
		return errors.InvalidInput(errors.PhaseControl, "parameter "+p.Name+" is an output")
	}
	c.b.Params().Set(index, value)
	c.log.Debug("parameter set", zap.String("name", p.Name), zap.Float32("value", value))
	return nil
}

// Parameter reads the latest value of a parameter by name: the last write
// for inputs, the last reported change for outputs.
func (c *Channel) Parameter(name string) (float32, error) {
	p, ok := c.tables.Lookup(name)
	if !ok {
		return 0, errors.NotFound(errors.PhaseControl, "parameter", name)
	}
	return c.b.Params().Get(p.Index), nil
}

// Parameters returns every parameter value keyed by name.
func (c *Channel) Parameters() map[string]float32 {
	vals := c.b.Params().Snapshot()
	out := make(map[string]float32, len(vals))
	for _, p := range c.tables.Parameters {
		out[p.Name] = vals[p.Index]
	}
	return out
}
