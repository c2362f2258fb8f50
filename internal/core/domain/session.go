package domain

import (
	"time"
)

type SessionKind string

const (
	// SessionScreenshot streams still frames at a target cadence with
	// delta suppression.
	SessionScreenshot SessionKind = "screenshot"
	// SessionVideo streams short recorded chunks back to back.
	SessionVideo SessionKind = "video"
)

type SessionState string

const (
	SessionRunning  SessionState = "running"
	SessionDegraded SessionState = "degraded"
	SessionStopped  SessionState = "stopped"
)

// SessionStatus is a point-in-time snapshot of one mirroring session,
// exposed on the operational API.
type SessionStatus struct {
	Target            TargetName   `json:"target"`
	DeviceID          DeviceID     `json:"device_id"`
	Kind              SessionKind  `json:"kind"`
	State             SessionState `json:"state"`
	Viewers           int          `json:"viewers"`
	StartedAt         time.Time    `json:"started_at"`
	FramesSent        uint64       `json:"frames_sent"`
	FramesSuppressed  uint64       `json:"frames_suppressed"`
	ConsecutiveErrors int          `json:"consecutive_errors"`
}
