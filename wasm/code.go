package wasm

import (
	"github.com/wippyai/wasm-audio/wasm/internal/binary"
)

// Code accumulates a function body's instruction stream. The zero value is
// ready to use; every method returns the receiver for chaining.
type Code struct {
	w binary.Writer
}

// Bytes returns the encoded instructions.
func (c *Code) Bytes() []byte {
	return c.w.Bytes()
}

// Op emits an opcode with no immediates.
func (c *Code) Op(op byte) *Code {
	c.w.Byte(op)
	return c
}

func (c *Code) LocalGet(idx uint32) *Code {
	c.w.Byte(OpLocalGet)
	c.w.WriteU32(idx)
	return c
}

func (c *Code) LocalSet(idx uint32) *Code {
	c.w.Byte(OpLocalSet)
	c.w.WriteU32(idx)
	return c
}

func (c *Code) LocalTee(idx uint32) *Code {
	c.w.Byte(OpLocalTee)
	c.w.WriteU32(idx)
	return c
}

func (c *Code) GlobalGet(idx uint32) *Code {
	c.w.Byte(OpGlobalGet)
	c.w.WriteU32(idx)
	return c
}

func (c *Code) GlobalSet(idx uint32) *Code {
	c.w.Byte(OpGlobalSet)
	c.w.WriteU32(idx)
	return c
}

func (c *Code) I32Const(v int32) *Code {
	c.w.Byte(OpI32Const)
	c.w.WriteS32(v)
	return c
}

func (c *Code) F32Const(v float32) *Code {
	c.w.Byte(OpF32Const)
	c.w.WriteF32(v)
	return c
}

// I32Load loads an i32 from the address on the stack plus offset.
func (c *Code) I32Load(offset uint32) *Code {
	return c.memOp(OpI32Load, offset)
}

// F32Load loads an f32 from the address on the stack plus offset.
func (c *Code) F32Load(offset uint32) *Code {
	return c.memOp(OpF32Load, offset)
}

// I32Store stores an i32 value to address plus offset; stack is [addr, value].
func (c *Code) I32Store(offset uint32) *Code {
	return c.memOp(OpI32Store, offset)
}

// F32Store stores an f32 value to address plus offset; stack is [addr, value].
func (c *Code) F32Store(offset uint32) *Code {
	return c.memOp(OpF32Store, offset)
}

// memOp writes a 4-byte aligned memarg.
func (c *Code) memOp(op byte, offset uint32) *Code {
	c.w.Byte(op)
	c.w.WriteU32(2)
	c.w.WriteU32(offset)
	return c
}

// Block opens a void block.
func (c *Code) Block() *Code {
	c.w.Byte(OpBlock)
	c.w.Byte(BlockVoid)
	return c
}

// Loop opens a void loop.
func (c *Code) Loop() *Code {
	c.w.Byte(OpLoop)
	c.w.Byte(BlockVoid)
	return c
}

// If opens a void if.
func (c *Code) If() *Code {
	c.w.Byte(OpIf)
	c.w.Byte(BlockVoid)
	return c
}

func (c *Code) Else() *Code {
	c.w.Byte(OpElse)
	return c
}

func (c *Code) End() *Code {
	c.w.Byte(OpEnd)
	return c
}

func (c *Code) Br(depth uint32) *Code {
	c.w.Byte(OpBr)
	c.w.WriteU32(depth)
	return c
}

func (c *Code) BrIf(depth uint32) *Code {
	c.w.Byte(OpBrIf)
	c.w.WriteU32(depth)
	return c
}

func (c *Code) Return() *Code {
	c.w.Byte(OpReturn)
	return c
}

func (c *Code) Call(funcIdx uint32) *Code {
	c.w.Byte(OpCall)
	c.w.WriteU32(funcIdx)
	return c
}

// MemorySize pushes the size of memory 0 in pages.
func (c *Code) MemorySize() *Code {
	c.w.Byte(OpMemorySize)
	c.w.Byte(0x00)
	return c
}
