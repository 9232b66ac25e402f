package domain

import "time"

// SessionEventKind enumerates the published session lifecycle events.
type SessionEventKind string

const (
	SessionEventSignedIn  SessionEventKind = "signed_in"
	SessionEventSignedOut SessionEventKind = "signed_out"
	SessionEventFailed    SessionEventKind = "failed"
)

// SessionEvent represents the payload for studynest.session.* messages.
type SessionEvent struct {
	EventID    string
	Kind       SessionEventKind
	Method     Operation
	UserID     string
	DeviceID   string
	Reason     string
	Seq        uint64
	OccurredAt time.Time
	Metadata   map[string]any
}
