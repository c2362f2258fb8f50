package memory

import (
	"context"
	"sync"
	"time"

	"screenrelay/internal/core/domain"
	"screenrelay/pkg/clock"

	"go.uber.org/zap"
)

type lockEntry struct {
	kind       domain.SessionKind
	acquiredAt time.Time
}

// DeviceLockConfig carries the per-kind staleness thresholds and the sweep
// parameters.
type DeviceLockConfig struct {
	ScreenshotStaleness time.Duration
	RecordStaleness     time.Duration
	SweepInterval       time.Duration
	HardCeiling         time.Duration
}

// DeviceLock is the in-process advisory lock table. It encodes application
// level exclusivity (one capture operation per device), not memory safety:
// the capture backend runs as an external process and issuing two
// simultaneous operations to one device corrupts both.
type DeviceLock struct {
	mu      sync.Mutex
	entries map[domain.DeviceID]lockEntry

	cfg       DeviceLockConfig
	clock     clock.Clock
	logger    *zap.SugaredLogger
	reclaimed func(domain.DeviceID)
}

func NewDeviceLock(cfg DeviceLockConfig, clk clock.Clock, logger *zap.SugaredLogger) *DeviceLock {
	return &DeviceLock{
		entries: make(map[domain.DeviceID]lockEntry),
		cfg:     cfg,
		clock:   clk,
		logger:  logger,
	}
}

// OnReclaim registers a callback invoked whenever a stale entry is taken
// over, for observability.
func (l *DeviceLock) OnReclaim(fn func(domain.DeviceID)) {
	l.reclaimed = fn
}

func (l *DeviceLock) staleness(kind domain.SessionKind) time.Duration {
	if kind == domain.SessionVideo {
		return l.cfg.RecordStaleness
	}
	return l.cfg.ScreenshotStaleness
}

// TryAcquire grants the lock if no entry exists or the existing entry is
// stale (reclaim-then-grant). Busy otherwise.
func (l *DeviceLock) TryAcquire(ctx context.Context, deviceID domain.DeviceID, kind domain.SessionKind) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, exists := l.entries[deviceID]; exists {
		age := l.clock.Since(entry.acquiredAt)
		// An entry acquired at T with staleness S is reclaimable from T+S on.
		if age < l.staleness(entry.kind) {
			return false, nil
		}
		// Stale holder: assumed crashed mid-operation. Not an error,
		// a designed self-healing reclamation.
		l.logger.Warnw("reclaiming stale device lock",
			"device_id", deviceID,
			"held_for", age,
			"holder_kind", entry.kind,
		)
		if l.reclaimed != nil {
			l.reclaimed(deviceID)
		}
	}

	l.entries[deviceID] = lockEntry{kind: kind, acquiredAt: l.clock.Now()}
	return true, nil
}

// Release removes the entry unconditionally.
func (l *DeviceLock) Release(ctx context.Context, deviceID domain.DeviceID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, deviceID)
	return nil
}

// Held reports whether an entry currently exists for the device.
func (l *DeviceLock) Held(deviceID domain.DeviceID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, exists := l.entries[deviceID]
	return exists
}

// Sweep runs the periodic reclamation of entries older than the hard
// ceiling, bounding worst-case wedge time even absent contention. Blocks
// until ctx is cancelled.
func (l *DeviceLock) Sweep(ctx context.Context) {
	for {
		l.clock.Sleep(ctx, l.cfg.SweepInterval)
		if ctx.Err() != nil {
			return
		}
		l.sweepOnce()
	}
}

func (l *DeviceLock) sweepOnce() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for deviceID, entry := range l.entries {
		age := l.clock.Since(entry.acquiredAt)
		if age > l.cfg.HardCeiling {
			l.logger.Warnw("sweeping abandoned device lock",
				"device_id", deviceID,
				"held_for", age,
			)
			delete(l.entries, deviceID)
			if l.reclaimed != nil {
				l.reclaimed(deviceID)
			}
		}
	}
}
