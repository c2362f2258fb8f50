package ports

import (
	"context"
	"time"

	"screenrelay/internal/core/domain"
)

// CaptureBackend produces screen content for a device. Implementations must
// honor the context deadline; the scheduler never issues an unbounded call.
// Errors are returned pre-classified as *domain.CaptureError.
type CaptureBackend interface {
	Capture(ctx context.Context, deviceID domain.DeviceID) ([]byte, error)
	Record(ctx context.Context, deviceID domain.DeviceID, duration time.Duration) ([]byte, error)
}

// DeviceDirectory enumerates reachable devices and answers per-device
// queries. Listings may be slow, partially fail, or go stale between calls.
type DeviceDirectory interface {
	ListDevices(ctx context.Context) ([]domain.DeviceEntry, error)
	// DeviceName returns the current human-readable name for an identifier.
	DeviceName(ctx context.Context, deviceID domain.DeviceID) (string, error)
	// Ping is a trivial round-trip used as a liveness probe.
	Ping(ctx context.Context, deviceID domain.DeviceID) error
}

// InputInjector performs a tap or swipe on a device. Fire-and-forget; there
// is no acknowledgement of the on-device effect.
type InputInjector interface {
	Inject(ctx context.Context, deviceID domain.DeviceID, event domain.InputEvent) error
}

// Broadcaster is the fan-out substrate keyed by target name.
type Broadcaster interface {
	Publish(target domain.TargetName, frame domain.Frame)
	PublishError(target domain.TargetName, streamErr domain.StreamError)
	SubscriberCount(target domain.TargetName) int
}
