// Package binary writes the LEB128 and fixed-width encodings used by the
// WebAssembly binary format.
package binary

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Writer accumulates an encoded section or module.
type Writer struct {
	buf bytes.Buffer
}

func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the encoded bytes. The slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

func (w *Writer) Len() int {
	return w.buf.Len()
}

// Byte appends an opcode, type code or section id.
func (w *Writer) Byte(b byte) {
	w.buf.WriteByte(b)
}

// WriteBytes appends raw bytes, such as an already encoded section body.
func (w *Writer) WriteBytes(data []byte) {
	w.buf.Write(data)
}

// WriteU32 appends v as unsigned LEB128: counts, indices, sizes and offsets.
func (w *Writer) WriteU32(v uint32) {
	for v >= 0x80 {
		w.buf.WriteByte(byte(v) | 0x80)
		v >>= 7
	}
	w.buf.WriteByte(byte(v))
}

// WriteS32 appends v as signed LEB128, the immediate of i32.const.
// Encoding stops once the remaining bits are pure sign extension of the
// last byte's bit 6.
func (w *Writer) WriteS32(v int32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			w.buf.WriteByte(b)
			return
		}
		w.buf.WriteByte(b | 0x80)
	}
}

// WriteName appends a length-prefixed UTF-8 export or import name.
func (w *Writer) WriteName(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf.WriteString(s)
}

// WriteU32LE appends v as four little-endian bytes, as in the module header.
func (w *Writer) WriteU32LE(v uint32) {
	w.buf.Write(binary.LittleEndian.AppendUint32(nil, v))
}

// WriteF32 appends the immediate of f32.const.
func (w *Writer) WriteF32(v float32) {
	w.WriteU32LE(math.Float32bits(v))
}
