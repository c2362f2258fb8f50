package domain

import (
	"time"
)

type TargetName string
type DeviceID string

// DeviceEntry is one row of the device directory as reported by the backend.
type DeviceEntry struct {
	DeviceID    DeviceID
	DisplayName string
	Model       string
	State       string
}

// Online reports whether the directory considers the device usable.
func (e DeviceEntry) Online() bool {
	return e.State == DeviceStateOnline
}

const (
	DeviceStateOnline       = "device"
	DeviceStateOffline      = "offline"
	DeviceStateUnauthorized = "unauthorized"
)

// DeviceMapping binds a user-facing target name to a backend device
// identifier. VerifiedAt is bumped on every successful liveness check.
type DeviceMapping struct {
	Target     TargetName `json:"target"`
	DeviceID   DeviceID   `json:"device_id"`
	VerifiedAt time.Time  `json:"verified_at"`
}
