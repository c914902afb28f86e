package runtime

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-audio/bridge"
	"github.com/wippyai/wasm-audio/descriptor"
	"github.com/wippyai/wasm-audio/engine"
	"github.com/wippyai/wasm-audio/errors"
	"github.com/wippyai/wasm-audio/reference"
)

// Config configures a Runtime.
type Config struct {
	Engine engine.Config
	// Logger, when set, is installed for the engine and bridge packages and
	// used by every session's control channel.
	Logger *zap.Logger
}

type Runtime struct {
	engine *engine.Engine
	log    *zap.Logger
}

func New(ctx context.Context) (*Runtime, error) {
	return NewWithConfig(ctx, Config{})
}

func NewWithConfig(ctx context.Context, cfg Config) (*Runtime, error) {
	eng, err := engine.New(ctx, &cfg.Engine)
	if err != nil {
		return nil, errors.Load("create engine", err)
	}

	log := cfg.Logger
	if log != nil {
		engine.SetLogger(log.Named("engine"))
		bridge.SetLogger(log.Named("bridge"))
	} else {
		log = zap.NewNop()
	}

	return &Runtime{engine: eng, log: log}, nil
}

// Close releases all runtime resources.
// All sessions must be closed before calling this.
func (r *Runtime) Close(ctx context.Context) error {
	return r.engine.Close(ctx)
}

// Load compiles a guest that implements tables.
func (r *Runtime) Load(ctx context.Context, wasm []byte, tables *descriptor.Tables) (*Module, error) {
	if tables == nil {
		return nil, errors.InvalidConfig(nil, nil, "descriptor tables required")
	}
	if err := tables.Validate(); err != nil {
		return nil, err
	}

	mod, err := r.engine.Compile(ctx, wasm)
	if err != nil {
		return nil, err
	}

	r.log.Info("guest loaded",
		zap.Int("bytes", len(wasm)),
		zap.Int("buses", len(tables.Buses)),
		zap.Int("parameters", len(tables.Parameters)))
	return &Module{runtime: r, mod: mod, tables: tables}, nil
}

// LoadFile reads a guest binary and its JSON descriptor tables from disk.
func (r *Runtime) LoadFile(ctx context.Context, wasmPath, tablesPath string) (*Module, error) {
	wasm, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, errors.ReadFile(errors.PhaseLoad, "guest", wasmPath, err)
	}
	tables, err := descriptor.Load(tablesPath)
	if err != nil {
		return nil, err
	}
	return r.Load(ctx, wasm, tables)
}

// LoadGuest loads a generated reference guest.
func (r *Runtime) LoadGuest(ctx context.Context, g *reference.Guest) (*Module, error) {
	return r.Load(ctx, g.Wasm, g.Tables)
}
