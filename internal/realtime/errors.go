package realtime

import "errors"

var (
	// ErrUnauthenticated is returned when a connection carries no valid identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrAccessDenied is returned when a user addresses a group it does not belong to.
	ErrAccessDenied = errors.New("access denied")
	// ErrNotFound is returned when a referenced group or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidMessage is returned for empty, oversized or mistyped sends.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrSessionClosed is returned when a send arrives on a session that is not connected.
	ErrSessionClosed = errors.New("session closed")
)
