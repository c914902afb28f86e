// Package runtime provides the high-level API for running DSP guests.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	// Load a guest and its descriptor tables
//	tables, err := descriptor.Load("gain.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	mod, err := rt.Load(ctx, wasmBytes, tables)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Open a session: one guest instance behind a bridge
//	sess, err := mod.Open(ctx, 48000, runtime.SessionConfig{
//	    Bridge: bridge.Options{Permission: bridge.PermissionGranted},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Close(ctx)
//
//	// Control side
//	sess.Control().NoteOn(60, 100)
//	sess.Control().SetParameter("Gain", 0.5)
//
//	// Real-time side: the host's callback calls Process
//	err = sess.Bridge().Process(cb)
//
// # Sessions
//
// Each session instantiates the guest separately, so sessions never share
// guest memory. The control channel's notification pump runs until the
// session is closed.
//
// For offline rendering or tests, Session.Driver returns a host.Driver that
// issues callbacks from a goroutine locked to its OS thread.
package runtime
