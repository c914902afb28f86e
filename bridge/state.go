package bridge

// State is a bridge lifecycle state.
type State uint32

const (
	StateUninitialized State = iota
	StateReady
	StateProcessing
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateProcessing:
		return "processing"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}
