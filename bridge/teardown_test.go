package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/wippyai/wasm-audio/host"
)

// blockAdvance makes the next Advance wait for release. entered is closed
// once the callback is inside the guest.
func blockAdvance(f *fakeModule) (entered, release chan struct{}) {
	entered = make(chan struct{})
	release = make(chan struct{})
	f.onAdvance = func(f *fakeModule, n int) {
		f.onAdvance = nil
		close(entered)
		<-release
	}
	return entered, release
}

func TestClose_WaitsForInflightCallback(t *testing.T) {
	b, f := setup(t, monoTables(), granted)
	entered, release := blockAdvance(f)

	cb := host.NewCallback(monoTables(), 128)
	processed := make(chan error, 1)
	go func() { processed <- b.Process(cb) }()
	<-entered

	closed := make(chan error, 1)
	go func() { closed <- b.Close(context.Background()) }()

	select {
	case err := <-closed:
		t.Fatalf("Close returned during a callback: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	if f.destroyed != 0 {
		t.Fatalf("instance destroyed during a callback")
	}
	if s := b.State(); s != StateProcessing {
		t.Errorf("state = %s, want processing", s)
	}

	close(release)
	if err := <-processed; err != nil {
		t.Errorf("Process: %v", err)
	}
	if err := <-closed; err != nil {
		t.Fatalf("Close: %v", err)
	}
	if f.destroyed != 1 {
		t.Errorf("destroyed = %d, want 1", f.destroyed)
	}
	if s := b.State(); s != StateDestroyed {
		t.Errorf("state = %s, want destroyed", s)
	}
}

func TestReset_WaitsForInflightCallback(t *testing.T) {
	b, f := setup(t, monoTables(), granted)
	entered, release := blockAdvance(f)

	cb := host.NewCallback(monoTables(), 128)
	processed := make(chan error, 1)
	go func() { processed <- b.Process(cb) }()
	<-entered

	reset := make(chan error, 1)
	go func() { reset <- b.Reset(context.Background()) }()

	select {
	case err := <-reset:
		t.Fatalf("Reset returned during a callback: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	if f.destroyed != 0 || f.created != 1 {
		t.Fatalf("instance recreated during a callback: created %d destroyed %d", f.created, f.destroyed)
	}

	close(release)
	if err := <-processed; err != nil {
		t.Errorf("Process: %v", err)
	}
	if err := <-reset; err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if f.created != 2 || f.destroyed != 1 {
		t.Errorf("created %d destroyed %d, want 2 and 1", f.created, f.destroyed)
	}
	if s := b.State(); s != StateReady {
		t.Errorf("state = %s, want ready", s)
	}
	if err := b.Process(cb); err != nil {
		t.Errorf("Process after reset: %v", err)
	}
}
