package bridge

import (
	"github.com/wippyai/wasm-audio/ring"
)

// Permission is the host's audio capture permission state.
type Permission uint8

const (
	PermissionUndetermined Permission = iota
	PermissionGranted
	PermissionDenied
)

func (p Permission) String() string {
	switch p {
	case PermissionUndetermined:
		return "undetermined"
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Options configures a Bridge.
type Options struct {
	// EventCapacity bounds queued events; 0 means 256.
	EventCapacity int
	// Overflow decides which event is lost when the queue is full.
	Overflow ring.Policy
	// NotificationCapacity bounds undelivered notifications; 0 means 256.
	NotificationCapacity int
	// Permission must be PermissionGranted when the tables declare input buses.
	Permission Permission
}

func (o Options) withDefaults() Options {
	if o.EventCapacity <= 0 {
		o.EventCapacity = 256
	}
	if o.NotificationCapacity <= 0 {
		o.NotificationCapacity = 256
	}
	return o
}
