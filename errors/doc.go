// Package errors provides structured error types for the wasm-audio library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries a config path, a detail message and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseConfig, errors.KindInvalidConfig).
//		Path("buses", "2", "channels").
//		Value(3).
//		Detail("channel count must be 1 or 2").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Instantiation(cause)
//	err := errors.InvalidState(errors.PhaseProcess, "destroyed")
//
// The real-time path never constructs errors: it returns the preallocated
// sentinels ErrChannelCountMismatch, ErrInvalidState and ErrEventDropped.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
