package runtime

import (
	"context"
	"sync"

	"github.com/wippyai/wasm-audio/bridge"
	"github.com/wippyai/wasm-audio/control"
	"github.com/wippyai/wasm-audio/descriptor"
	"github.com/wippyai/wasm-audio/engine"
	"github.com/wippyai/wasm-audio/host"
)

// Session is one guest instance behind a bridge and a control channel.
type Session struct {
	inst    *engine.Instance
	bridge  *bridge.Bridge
	control *control.Channel
	tables  *descriptor.Tables

	closeOnce sync.Once
	closeErr  error
}

// Bridge returns the real-time side of the session.
func (s *Session) Bridge() *bridge.Bridge {
	return s.bridge
}

// Control returns the control-rate side of the session.
func (s *Session) Control() *control.Channel {
	return s.control
}

func (s *Session) Tables() *descriptor.Tables {
	return s.tables
}

// Driver creates a host driver that feeds the session's bridge, copying the
// shared parameter store into every callback.
func (s *Session) Driver(cfg host.DriverConfig) (*host.Driver, error) {
	return host.NewDriver(s.bridge, s.tables, s.bridge.Params(), cfg)
}

// Close tears down the bridge after any in-flight callback, stops the
// control channel and releases the guest instance.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		err := s.bridge.Close(ctx)
		s.control.Close()
		if err != nil {
			s.closeErr = err
			return
		}
		s.closeErr = s.inst.Close(ctx)
	})
	return s.closeErr
}
