// Package wasm encodes small core WebAssembly modules.
//
// It covers the subset needed to emit DSP guests: function types, functions,
// one linear memory, globals, exports and code. Function bodies are written
// with Code, a typed instruction emitter.
//
//	m := &wasm.Module{}
//	t := m.AddType(wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}})
//	var c wasm.Code
//	c.LocalGet(0).I32Const(1).Op(wasm.OpI32Add).End()
//	idx := m.AddFunc(t, nil, c.Bytes())
//	m.ExportFunc("inc", idx)
//	bin := m.Encode()
package wasm
