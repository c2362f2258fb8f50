package domain

import (
	"time"
)

type InputAction string

const (
	ActionTap   InputAction = "tap"
	ActionSwipe InputAction = "swipe"
)

// InputEvent is one pending viewer input for a device. Swipe events use all
// four coordinates; taps only X/Y.
type InputEvent struct {
	Action     InputAction `json:"action"`
	X          int         `json:"x"`
	Y          int         `json:"y"`
	X2         int         `json:"x2,omitempty"`
	Y2         int         `json:"y2,omitempty"`
	DurationMs int         `json:"duration_ms,omitempty"`
	EnqueuedAt time.Time   `json:"-"`
}
