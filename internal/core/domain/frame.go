package domain

import (
	"time"
)

// Frame is one captured screen payload ready for fan-out. Payload bytes are
// opaque to the core (PNG for screenshot sessions, MP4 chunk for video).
type Frame struct {
	Target     TargetName
	Kind       SessionKind
	Payload    []byte
	CapturedAt time.Time
}

// StreamError is the terminal per-session error surfaced to viewers, emitted
// at most once per session instance.
type StreamError struct {
	Target  TargetName
	Message string
}
