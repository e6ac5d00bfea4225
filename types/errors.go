package types

import (
	"errors"
	"fmt"
)

// ErrSessionBusy is returned when the selection or a flow is mutated while a session is active.
var ErrSessionBusy = errors.New("a transfer is already in progress")

// IdentityError means no identity could be attached to an upload.
type IdentityError struct {
	Err error
}

func (e *IdentityError) Error() string {
	if e.Err == nil {
		return "anonymous identity unavailable"
	}
	return fmt.Sprintf("anonymous identity unavailable: %v", e.Err)
}

func (e *IdentityError) Unwrap() error { return e.Err }

// InitiationError means the initiating HTTP call was rejected or failed.
// Message is the server text when one was returned.
type InitiationError struct {
	Message string
	Err     error
}

func (e *InitiationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "request could not be initiated"
}

func (e *InitiationError) Unwrap() error { return e.Err }

// ProtocolError means the server sent a structurally invalid success event.
type ProtocolError struct {
	Event  string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("invalid %q event: %s", e.Event, e.Reason)
}

// ConnectionError is a transport-level failure of a server-push channel.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return "connection to server lost"
	}
	return fmt.Sprintf("connection to server lost: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
