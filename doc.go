// Package wasmaudio bridges a host's periodic audio callback to a DSP module
// running inside a WebAssembly sandbox.
//
// The host calls back with an arbitrary number of frames; the guest only ever
// processes fixed blocks of BlockSize frames out of its own linear memory. The
// bridge reconciles the two contracts, relays control-rate parameter changes in
// both directions and forwards note events, without allocating or blocking on
// the audio thread.
//
// # Architecture Overview
//
//	wasmaudio/           Root package with the Module capability and Event types
//	├── runtime/         High-level API: load a guest, open a session
//	├── bridge/          Real-time bridge: block chunking, parameters, event relay
//	├── control/         Control-rate channel: events in, notifications out
//	├── host/            Host callback buffers and a periodic real-time driver
//	├── engine/          wazero implementation of Module and the guest ABI check
//	├── descriptor/      Bus and parameter descriptor tables
//	├── ring/            Lock-free single-producer/single-consumer rings
//	├── reference/       Reference guest modules (gain, tone)
//	├── wasm/            Minimal core WASM module encoder
//	├── errors/          Structured error types
//	└── cmd/bridge/      CLI: offline render and interactive player
//
// # Quick Start
//
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	mod, err := rt.Load(ctx, wasmBytes, tables)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sess, err := mod.Open(ctx, 48000, runtime.SessionConfig{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Close(ctx)
//
//	sess.Control().NoteOn(60, 100)
//	err = sess.Bridge().Process(cb)
//
// # Thread Safety
//
// Bridge.Process must only be called from a single real-time goroutine. All
// other interaction goes through control.Channel, whose rings are lock-free in
// both directions. Setup and teardown happen on the control side while no
// callback is running; Bridge.Close waits for an in-flight callback.
package wasmaudio
