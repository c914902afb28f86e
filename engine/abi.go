package engine

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-audio/errors"
)

// abiWIT declares the wrapper exports a guest must provide.
const abiWIT = `
	package wasm-audio:wrapper@0.1.0;

	interface wrapper {
		export wrapper_new: func(sample-rate: f32) -> u32;
		export wrapper_free: func(handle: u32);
		export wrapper_get_ins: func(handle: u32) -> u32;
		export wrapper_get_outs: func(handle: u32) -> u32;
		export wrapper_get_param_values: func(handle: u32) -> u32;
		export wrapper_set_parameter: func(handle: u32, index: u32, value: f32);
		export wrapper_process: func(handle: u32, frames: u32);
		export wrapper_note_on: func(handle: u32, note: u8, velocity: u8);
		export wrapper_note_off: func(handle: u32, note: u8);
		export wrapper_pitch_bend: func(handle: u32, value: s32);
		export wrapper_mod_wheel: func(handle: u32, value: s32);
	}
`

// MemoryExport is the name of the guest's linear memory export.
const MemoryExport = "memory"

// export identifies a wrapper function in Instance.fns.
type export int

const (
	exportNew export = iota
	exportFree
	exportGetIns
	exportGetOuts
	exportGetParams
	exportSetParameter
	exportProcess
	exportNoteOn
	exportNoteOff
	exportPitchBend
	exportModWheel
	numExports
)

var exportNames = [numExports]string{
	exportNew:          "wrapper_new",
	exportFree:         "wrapper_free",
	exportGetIns:       "wrapper_get_ins",
	exportGetOuts:      "wrapper_get_outs",
	exportGetParams:    "wrapper_get_param_values",
	exportSetParameter: "wrapper_set_parameter",
	exportProcess:      "wrapper_process",
	exportNoteOn:       "wrapper_note_on",
	exportNoteOff:      "wrapper_note_off",
	exportPitchBend:    "wrapper_pitch_bend",
	exportModWheel:     "wrapper_mod_wheel",
}

func (e export) String() string {
	if e < 0 || e >= numExports {
		return "unknown"
	}
	return exportNames[e]
}

func (e export) optional() bool {
	return e == exportPitchBend || e == exportModWheel
}

// Signature is a wrapper function lowered to core value types.
type Signature struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

func (s Signature) String() string {
	return fmt.Sprintf("%s(%s) -> (%s)", s.Name, valueTypes(s.Params), valueTypes(s.Results))
}

func valueTypes(ts []api.ValueType) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = api.ValueTypeName(t)
	}
	return strings.Join(names, ", ")
}

var (
	abiOnce sync.Once
	abiSigs [numExports]Signature
	abiErr  error
)

// ABI returns the core signatures of every wrapper export, in a fixed order.
func ABI() ([]Signature, error) {
	abiOnce.Do(func() {
		abiSigs, abiErr = parseABI(abiWIT)
	})
	if abiErr != nil {
		return nil, abiErr
	}
	out := make([]Signature, numExports)
	copy(out, abiSigs[:])
	return out, nil
}

var funcPattern = regexp.MustCompile(`(?:export\s+)?([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*func\s*\(([^)]*)\)(?:\s*->\s*([^;]+))?`)

// parseABI extracts the wrapper signatures from WIT text.
// Pattern: [export] name: func(params) -> result;
func parseABI(witText string) ([numExports]Signature, error) {
	var sigs [numExports]Signature
	seen := make(map[string]bool)

	for _, match := range funcPattern.FindAllStringSubmatch(witText, -1) {
		name := match[1]
		idx := exportIndex(name)
		if idx < 0 {
			return sigs, errors.NotFound(errors.PhaseABI, "wrapper export", name)
		}

		sig := Signature{Name: name}
		if params := strings.TrimSpace(match[2]); params != "" {
			for _, p := range strings.Split(params, ",") {
				typStr := p
				if i := strings.LastIndex(p, ":"); i != -1 {
					typStr = p[i+1:]
				}
				vt, err := lowerType(typStr)
				if err != nil {
					return sigs, err
				}
				sig.Params = append(sig.Params, vt)
			}
		}
		if result := strings.TrimSpace(match[3]); result != "" {
			vt, err := lowerType(result)
			if err != nil {
				return sigs, err
			}
			sig.Results = []api.ValueType{vt}
		}

		sigs[idx] = sig
		seen[name] = true
	}

	for e := export(0); e < numExports; e++ {
		if !seen[e.String()] {
			return sigs, errors.NotFound(errors.PhaseABI, "wrapper declaration", e.String())
		}
	}
	return sigs, nil
}

func exportIndex(name string) export {
	for i, n := range exportNames {
		if n == name {
			return export(i)
		}
	}
	return -1
}

// lowerType maps a scalar WIT type to its core value type.
func lowerType(s string) (api.ValueType, error) {
	t, err := wit.ParseType(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Wrap(errors.PhaseABI, errors.KindInvalidInput, err, "parse type "+s)
	}
	switch t.(type) {
	case wit.Bool, wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32, wit.Char:
		return api.ValueTypeI32, nil
	case wit.U64, wit.S64:
		return api.ValueTypeI64, nil
	case wit.F32:
		return api.ValueTypeF32, nil
	case wit.F64:
		return api.ValueTypeF64, nil
	default:
		return 0, errors.InvalidInput(errors.PhaseABI, "non-scalar type "+strings.TrimSpace(s)+" in wrapper ABI")
	}
}

// checkExports verifies the compiled guest against the ABI. It returns which
// wrapper functions are present.
func checkExports(funcs map[string]api.FunctionDefinition, memories map[string]api.MemoryDefinition) ([numExports]bool, error) {
	var present [numExports]bool

	sigs, err := ABI()
	if err != nil {
		return present, err
	}
	if _, ok := memories[MemoryExport]; !ok {
		return present, errors.ABIMismatch(MemoryExport, "guest does not export its linear memory")
	}

	for e := export(0); e < numExports; e++ {
		def, ok := funcs[e.String()]
		if !ok {
			if e.optional() {
				continue
			}
			return present, errors.ABIMismatch(e.String(), "required export missing")
		}
		want := sigs[e]
		if !sameTypes(def.ParamTypes(), want.Params) || !sameTypes(def.ResultTypes(), want.Results) {
			got := Signature{Name: e.String(), Params: def.ParamTypes(), Results: def.ResultTypes()}
			return present, errors.ABIMismatch(e.String(), fmt.Sprintf("signature %s, want %s", got, want))
		}
		present[e] = true
	}
	return present, nil
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
