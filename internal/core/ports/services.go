package ports

import (
	"context"

	"screenrelay/internal/core/domain"
)

// DeviceRegistry resolves user-supplied target names to backend device
// identifiers, caching and fuzzy-matching along the way.
type DeviceRegistry interface {
	Resolve(ctx context.Context, target domain.TargetName) (domain.DeviceID, error)
	Refresh(ctx context.Context) error
}

// SessionService owns the target-to-session mapping and the capture loops.
type SessionService interface {
	// Join ensures a capture loop is running for the target. Idempotent:
	// joining an in-progress session is a no-op.
	Join(ctx context.Context, target domain.TargetName, kind domain.SessionKind) error
	// SendInput queues a viewer input for the target's device.
	SendInput(target domain.TargetName, event domain.InputEvent) error
	Status() []domain.SessionStatus
	// StopAll cancels every capture loop and waits for them to exit.
	StopAll()
}

// Metrics is the slice of the monitoring collector the core services report
// into.
type Metrics interface {
	SetActiveSessions(n int)
	SetViewerCount(target domain.TargetName, n int)
	FrameBroadcast(target domain.TargetName, sizeBytes int)
	FrameSuppressed(target domain.TargetName)
	CaptureError(kind domain.CaptureErrorKind)
	ObserveCaptureDuration(kind domain.SessionKind, seconds float64)
	LockReclaimed(deviceID domain.DeviceID)
	InputDropped(deviceID domain.DeviceID)
	SessionTerminal(target domain.TargetName)
}
