package wasm

// WebAssembly binary format magic number and version.
const (
	// Magic is the WebAssembly binary magic number ("\0asm" in little-endian).
	Magic uint32 = 0x6D736100

	// Version is the supported WebAssembly binary format version.
	Version uint32 = 0x01
)

// Section IDs, in the order they must appear.
const (
	SectionType     byte = 1
	SectionFunction byte = 3
	SectionMemory   byte = 5
	SectionGlobal   byte = 6
	SectionExport   byte = 7
	SectionCode     byte = 10
)

// Export descriptor kinds.
const (
	KindFunc   byte = 0
	KindMemory byte = 2
	KindGlobal byte = 3
)

// Value type encodings.
const (
	ValI32 ValType = 0x7F
	ValI64 ValType = 0x7E
	ValF32 ValType = 0x7D
	ValF64 ValType = 0x7C
)

// FuncTypeByte prefixes a function type in the type section.
const FuncTypeByte byte = 0x60

// BlockVoid is the empty block type.
const BlockVoid byte = 0x40

// Control flow opcodes
const (
	OpUnreachable byte = 0x00
	OpBlock       byte = 0x02
	OpLoop        byte = 0x03
	OpIf          byte = 0x04
	OpElse        byte = 0x05
	OpEnd         byte = 0x0B
	OpBr          byte = 0x0C
	OpBrIf        byte = 0x0D
	OpReturn      byte = 0x0F
	OpCall        byte = 0x10
	OpDrop        byte = 0x1A
	OpSelect      byte = 0x1B
)

// Variable opcodes
const (
	OpLocalGet  byte = 0x20
	OpLocalSet  byte = 0x21
	OpLocalTee  byte = 0x22
	OpGlobalGet byte = 0x23
	OpGlobalSet byte = 0x24
)

// Memory opcodes
const (
	OpI32Load    byte = 0x28
	OpF32Load    byte = 0x2A
	OpI32Store   byte = 0x36
	OpF32Store   byte = 0x38
	OpMemorySize byte = 0x3F
	OpMemoryGrow byte = 0x40
)

// Constant opcodes
const (
	OpI32Const byte = 0x41
	OpF32Const byte = 0x43
)

// i32 comparison and arithmetic opcodes
const (
	OpI32Eqz byte = 0x45
	OpI32Eq  byte = 0x46
	OpI32Ne  byte = 0x47
	OpI32LtS byte = 0x48
	OpI32LtU byte = 0x49
	OpI32GtU byte = 0x4B
	OpI32GeU byte = 0x4F
	OpI32Add byte = 0x6A
	OpI32Sub byte = 0x6B
	OpI32Mul byte = 0x6C
	OpI32And byte = 0x71
	OpI32Shl byte = 0x74
)

// f32 comparison and arithmetic opcodes
const (
	OpF32Eq  byte = 0x5B
	OpF32Ne  byte = 0x5C
	OpF32Lt  byte = 0x5D
	OpF32Gt  byte = 0x5E
	OpF32Le  byte = 0x5F
	OpF32Ge  byte = 0x60
	OpF32Abs byte = 0x8B
	OpF32Neg byte = 0x8C
	OpF32Add byte = 0x92
	OpF32Sub byte = 0x93
	OpF32Mul byte = 0x94
	OpF32Div byte = 0x95
	OpF32Min byte = 0x96
	OpF32Max byte = 0x97
)

// Conversion opcodes
const (
	OpI32TruncF32S   byte = 0xA8
	OpF32ConvertI32S byte = 0xB2
	OpF32ConvertI32U byte = 0xB3
)
