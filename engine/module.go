package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-audio/errors"
)

// Module is a compiled guest. It can be instantiated any number of times.
type Module struct {
	engine   *Engine
	compiled wazero.CompiledModule
	present  [numExports]bool
}

// Exports reports which wrapper functions the guest provides.
func (m *Module) Exports() map[string]bool {
	out := make(map[string]bool, numExports)
	for e := export(0); e < numExports; e++ {
		out[e.String()] = m.present[e]
	}
	return out
}

// Instantiate creates an isolated guest instance. ctx is retained for calls
// made through the wasmaudio.Module methods, which carry no context.
func (m *Module) Instantiate(ctx context.Context) (*Instance, error) {
	if m.engine.closed.Load() {
		return nil, errors.InvalidState(errors.PhaseSetup, "closed")
	}

	// Anonymous so the same module can be instantiated repeatedly.
	modCfg := wazero.NewModuleConfig().WithName("").WithStartFunctions()
	mod, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, modCfg)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	inst := &Instance{
		mod:       mod,
		mem:       mod.Memory(),
		ctx:       ctx,
		blockSize: m.engine.cfg.BlockSize,
		regions:   make(map[uint32]regions),
	}
	for e := export(0); e < numExports; e++ {
		if m.present[e] {
			inst.fns[e] = mod.ExportedFunction(e.String())
		}
	}
	if inst.mem != nil {
		inst.memSize = inst.mem.Size()
	}

	Logger().Debug("guest instantiated", zap.Uint32("memory_bytes", inst.memSize))
	return inst, nil
}

// Close releases the compiled code.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}
