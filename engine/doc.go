// Package engine runs DSP guests compiled to core WebAssembly.
//
// This package wraps wazero to host a guest that exports the wrapper ABI and
// presents each wazero instance as a wasmaudio.Module.
//
// # Architecture
//
// The engine package provides three main types:
//
//	Engine   - Owns a wazero runtime and its configuration
//	Module   - A compiled guest whose exports were checked against the ABI
//	Instance - A running guest; hosts any number of DSP handles
//
// # Instantiation Flow
//
//  1. Engine.Compile() compiles the binary and verifies its exports
//  2. Module.Instantiate() creates an Instance with resolved functions
//  3. Instance.Create() calls wrapper_new and caches the handle's regions
//  4. The bridge drives Advance/SetParameter/DispatchEvent per callback
//
// # ABI
//
// The ABI is declared as WIT function text and lowered to core types:
//
//	WIT Type        Core Type
//	──────────────────────────
//	u8-u32, s32     i32
//	f32             f32
//
// wrapper_pitch_bend and wrapper_mod_wheel are optional. Events of those kinds
// are discarded when the guest does not export them.
//
// # Real-Time Calls
//
// Advance, SetParameter, ParameterValue and DispatchEvent reuse a per-instance
// stack buffer with CallWithStack and do not allocate. Window returns a
// []float32 aliasing guest memory; it is valid until the memory grows, which
// MemoryGeneration reports.
//
// # Logging
//
// Set a logger with SetLogger. The default is a no-op logger. Nothing on the
// real-time path logs.
package engine
