package engine

import (
	"context"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	wasmaudio "github.com/wippyai/wasm-audio"
	"github.com/wippyai/wasm-audio/errors"
)

// Engine compiles and hosts DSP guests on a wazero runtime.
type Engine struct {
	runtime wazero.Runtime
	cfg     Config
	closed  atomic.Bool
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// BlockSize is the guest's native block size in frames.
	// 0 means wasmaudio.BlockSize.
	BlockSize int
}

func (c Config) withDefaults() Config {
	if c.BlockSize <= 0 {
		c.BlockSize = wasmaudio.BlockSize
	}
	return c
}

// New creates an engine. A nil cfg uses defaults.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	c = c.withDefaults()

	runtimeCfg := wazero.NewRuntimeConfig()
	if c.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(c.MemoryLimitPages)
	}

	return &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		cfg:     c,
	}, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Compile compiles a guest and verifies it exports the wrapper ABI.
func (e *Engine) Compile(ctx context.Context, wasmBytes []byte) (*Module, error) {
	if e.closed.Load() {
		return nil, errors.InvalidState(errors.PhaseLoad, "closed")
	}
	if len(wasmBytes) == 0 {
		return nil, errors.Load("empty module", nil)
	}

	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}

	present, err := checkExports(compiled.ExportedFunctions(), compiled.ExportedMemories())
	if err != nil {
		compiled.Close(ctx)
		return nil, err
	}

	Logger().Debug("guest compiled",
		zap.Int("bytes", len(wasmBytes)),
		zap.Bool("pitch_bend", present[exportPitchBend]),
		zap.Bool("mod_wheel", present[exportModWheel]))

	return &Module{
		engine:   e,
		compiled: compiled,
		present:  present,
	}, nil
}

// Close releases the runtime and every module compiled or instantiated by it.
func (e *Engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	return e.runtime.Close(ctx)
}
