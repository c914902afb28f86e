package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-audio/bridge"
	"github.com/wippyai/wasm-audio/control"
	"github.com/wippyai/wasm-audio/descriptor"
	"github.com/wippyai/wasm-audio/engine"
)

// Module is a compiled guest together with its descriptor tables.
type Module struct {
	runtime *Runtime
	mod     *engine.Module
	tables  *descriptor.Tables
}

func (m *Module) Tables() *descriptor.Tables {
	return m.tables
}

// Exports reports which wrapper functions the guest provides.
func (m *Module) Exports() map[string]bool {
	return m.mod.Exports()
}

// SessionConfig configures a session.
type SessionConfig struct {
	Bridge  bridge.Options
	Control control.Config
}

// Open instantiates the guest, sets up a bridge at sampleRate and starts the
// control channel's pump. The pump stops when ctx is done or the session
// is closed.
func (m *Module) Open(ctx context.Context, sampleRate float32, cfg SessionConfig) (*Session, error) {
	inst, err := m.mod.Instantiate(ctx)
	if err != nil {
		return nil, err
	}

	b := bridge.New(inst, m.tables, cfg.Bridge)
	if err := b.Setup(ctx, sampleRate); err != nil {
		inst.Close(ctx)
		return nil, err
	}

	if cfg.Control.Logger == nil {
		cfg.Control.Logger = m.runtime.log.Named("control")
	}
	ch := control.New(b, cfg.Control)
	ch.Start(ctx)

	m.runtime.log.Debug("session opened", zap.Float32("sample_rate", sampleRate))
	return &Session{inst: inst, bridge: b, control: ch, tables: m.tables}, nil
}

// Close releases the compiled guest. Open sessions keep running.
func (m *Module) Close(ctx context.Context) error {
	return m.mod.Close(ctx)
}
