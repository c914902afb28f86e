package bridge

import (
	"fmt"

	wasmaudio "github.com/wippyai/wasm-audio"
)

// NotificationKind classifies messages from the real-time side.
type NotificationKind uint8

const (
	// NotifyParameter reports an output parameter that changed.
	NotifyParameter NotificationKind = iota
	// NotifyEventDropped reports an event lost to queue overflow.
	NotifyEventDropped
	// NotifyChannelMismatch reports a bus whose host channel count differs
	// from its declaration. Sent once per bus until the mismatch clears.
	NotifyChannelMismatch
	// NotifyFault reports a guest call that failed during processing.
	NotifyFault
)

func (k NotificationKind) String() string {
	switch k {
	case NotifyParameter:
		return "parameter"
	case NotifyEventDropped:
		return "event_dropped"
	case NotifyChannelMismatch:
		return "channel_mismatch"
	case NotifyFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Notification is a fixed-size message from the bridge to the control side.
type Notification struct {
	Kind NotificationKind
	// Index is the parameter index, or the bus index in the descriptor table.
	Index int
	Value float32
	// Declared and Got are the channel counts of a mismatched bus.
	Declared, Got int
	Event         wasmaudio.Event
	Err           error
}

func (n Notification) String() string {
	switch n.Kind {
	case NotifyParameter:
		return fmt.Sprintf("parameter %d = %g", n.Index, n.Value)
	case NotifyEventDropped:
		return fmt.Sprintf("event dropped: %s", n.Event.Kind)
	case NotifyChannelMismatch:
		return fmt.Sprintf("bus %d: declared %d channels, host supplied %d", n.Index, n.Declared, n.Got)
	case NotifyFault:
		return fmt.Sprintf("fault: %v", n.Err)
	default:
		return "unknown notification"
	}
}
