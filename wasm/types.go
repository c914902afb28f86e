package wasm

// ValType is a core value type.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	default:
		return "unknown"
	}
}

// Module is an encodable core module. Index spaces follow declaration order;
// there are no imports, so function index i is Funcs[i].
type Module struct {
	Types    []FuncType
	Funcs    []uint32 // type index per function
	Code     []FuncBody
	Memories []Limits
	Globals  []Global
	Exports  []Export
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Limits bounds a memory in 64KiB pages. Max of 0 means unbounded.
type Limits struct {
	Min uint32
	Max uint32
}

// Global is a global variable with a constant initializer expression
// (including its terminating end opcode).
type Global struct {
	Type    ValType
	Mutable bool
	Init    []byte
}

// Export makes a function, memory or global visible to the host.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// FuncBody is a function's locals and instruction stream.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte
}

// LocalEntry declares Count locals of one type.
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// AddType returns the index of ft, appending it when no equal type exists.
func (m *Module) AddType(ft FuncType) uint32 {
	for i, existing := range m.Types {
		if typesEqual(existing, ft) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}

// AddFunc appends a function of type typeIdx and returns its index.
// code must end with OpEnd.
func (m *Module) AddFunc(typeIdx uint32, locals []LocalEntry, code []byte) uint32 {
	m.Funcs = append(m.Funcs, typeIdx)
	m.Code = append(m.Code, FuncBody{Locals: locals, Code: code})
	return uint32(len(m.Funcs) - 1)
}

// AddGlobal appends a global initialized from init and returns its index.
func (m *Module) AddGlobal(t ValType, mutable bool, init []byte) uint32 {
	m.Globals = append(m.Globals, Global{Type: t, Mutable: mutable, Init: init})
	return uint32(len(m.Globals) - 1)
}

// ExportFunc exports function idx under name.
func (m *Module) ExportFunc(name string, idx uint32) {
	m.Exports = append(m.Exports, Export{Name: name, Kind: KindFunc, Idx: idx})
}

// ExportMemory exports memory idx under name.
func (m *Module) ExportMemory(name string, idx uint32) {
	m.Exports = append(m.Exports, Export{Name: name, Kind: KindMemory, Idx: idx})
}

func typesEqual(a, b FuncType) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	return true
}
