package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseConfig   Phase = "config"   // descriptor loading and validation
	PhaseLoad     Phase = "load"     // guest compilation
	PhaseABI      Phase = "abi"      // guest export verification
	PhaseSetup    Phase = "setup"    // instance creation and view resolution
	PhaseProcess  Phase = "process"  // real-time callback
	PhaseEvent    Phase = "event"    // discrete event relay
	PhaseControl  Phase = "control"  // control-rate requests
	PhaseTeardown Phase = "teardown" // instance destruction
)

// Kind categorizes the error
type Kind string

const (
	KindInstantiation   Kind = "instantiation"
	KindChannelMismatch Kind = "channel_mismatch"
	KindInvalidState    Kind = "invalid_state"
	KindEventDropped    Kind = "event_dropped"
	KindInvalidConfig   Kind = "invalid_config"
	KindPermission      Kind = "permission"
	KindABIMismatch     Kind = "abi_mismatch"
	KindOutOfBounds     Kind = "out_of_bounds"
	KindNotFound        Kind = "not_found"
	KindInvalidInput    Kind = "invalid_input"
	KindTrap            Kind = "trap"
)

// Error is the structured error type used throughout the library
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Sentinels returned from the real-time path. They are never mutated.
var (
	ErrChannelCountMismatch = &Error{
		Phase:  PhaseProcess,
		Kind:   KindChannelMismatch,
		Detail: "host channel count differs from bus declaration",
	}
	ErrInvalidState = &Error{
		Phase:  PhaseProcess,
		Kind:   KindInvalidState,
		Detail: "callback issued outside the ready state",
	}
	ErrEventDropped = &Error{
		Phase:  PhaseEvent,
		Kind:   KindEventDropped,
		Detail: "event queue full",
	}
	ErrShortBuffer = &Error{
		Phase:  PhaseProcess,
		Kind:   KindInvalidInput,
		Detail: "host channel buffer shorter than the callback frame count",
	}
)

// IsKind reports whether any error in err's chain is an *Error of the given kind,
// regardless of phase.
func IsKind(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Cause
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the config path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Instantiation creates a fatal setup error for a guest that could not be created
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseSetup,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// InvalidState creates a contract violation error naming the offending state
func InvalidState(phase Phase, state string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidState,
		Detail: fmt.Sprintf("not allowed in state %s", state),
		Value:  state,
	}
}

// InvalidConfig creates a configuration error at path
func InvalidConfig(path []string, value any, detail string) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindInvalidConfig,
		Path:   path,
		Value:  value,
		Detail: detail,
	}
}

// ChannelMismatch creates a descriptive channel mismatch error for control-side reporting
func ChannelMismatch(bus, declared, got int) *Error {
	return &Error{
		Phase:  PhaseProcess,
		Kind:   KindChannelMismatch,
		Path:   []string{"buses", fmt.Sprint(bus)},
		Value:  got,
		Detail: fmt.Sprintf("bus has %d channels, host supplied %d", declared, got),
	}
}

// ABIMismatch creates an error for a guest export that does not match the expected signature
func ABIMismatch(export, detail string) *Error {
	return &Error{
		Phase:  PhaseABI,
		Kind:   KindABIMismatch,
		Path:   []string{export},
		Detail: detail,
	}
}

// OutOfBounds creates an out of bounds error for a guest memory access
func OutOfBounds(phase Phase, what string, offset, length uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("%s at 0x%x (len %d) outside guest memory", what, offset, length),
		Value:  offset,
	}
}

// Permission creates an error for a missing capture permission
func Permission(state string) *Error {
	return &Error{
		Phase:  PhaseSetup,
		Kind:   KindPermission,
		Detail: fmt.Sprintf("input buses declared but capture permission is %s", state),
		Value:  state,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Trap wraps a guest trap raised during a call
func Trap(phase Phase, export string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTrap,
		Path:   []string{export},
		Detail: "guest trapped",
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
	}
}

// ReadFile wraps a failure to read path. A missing file is KindNotFound;
// anything else, such as a permission error, is KindInvalidInput.
func ReadFile(phase Phase, what, path string, cause error) *Error {
	kind := KindInvalidInput
	if stderrors.Is(cause, fs.ErrNotExist) {
		kind = KindNotFound
	}
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Path:   []string{path},
		Detail: "read " + what,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
