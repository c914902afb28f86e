package wasmaudio

import "context"

// BlockSize is the number of frames a guest processes per advance call,
// and the length of every channel window in guest memory.
const BlockSize = 128

// Handle identifies a guest instance. Zero is never a valid handle.
type Handle uint32

// EventKind enumerates discrete events relayed to a guest.
type EventKind uint8

const (
	EventNone EventKind = iota
	EventNoteOn
	EventNoteOff
	EventPitchBend
	EventModWheel
)

func (k EventKind) String() string {
	switch k {
	case EventNoteOn:
		return "note-on"
	case EventNoteOff:
		return "note-off"
	case EventPitchBend:
		return "pitch-bend"
	case EventModWheel:
		return "mod-wheel"
	default:
		return "none"
	}
}

// Event is a discrete control event. Value carries the pitch-bend or
// mod-wheel amount; Note and Velocity are used by note events.
type Event struct {
	Kind     EventKind
	Note     uint8
	Velocity uint8
	Value    int32
}

// Module is the capability set of an opaque compute module.
//
// Create and Destroy run on the control side and may allocate. Every other
// method is called from the real-time goroutine and must not allocate or block.
type Module interface {
	BlockSize() int
	Create(ctx context.Context, sampleRate float32) (Handle, error)
	Destroy(ctx context.Context, h Handle) error
	InputRegion(h Handle) (uint32, error)
	OutputRegion(h Handle) (uint32, error)
	// Window returns a typed view of frames samples at offset in module memory.
	Window(offset uint32, frames int) ([]float32, error)
	SetParameter(h Handle, index int, value float32) error
	ParameterValue(h Handle, index int) (float32, error)
	Advance(h Handle, frames int) error
	DispatchEvent(h Handle, ev Event) error
}

// MemoryTracker is implemented by modules whose memory can be reallocated.
// The generation changes whenever previously returned windows become invalid.
type MemoryTracker interface {
	MemoryGeneration() uint64
}
