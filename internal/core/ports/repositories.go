package ports

import (
	"context"

	"screenrelay/internal/core/domain"
)

// MappingRepository stores target-name to device-id mappings. A directory
// refresh swaps the whole set atomically; readers see the pre-refresh state
// until the swap completes.
type MappingRepository interface {
	Get(ctx context.Context, target domain.TargetName) (*domain.DeviceMapping, error)
	Put(ctx context.Context, mapping *domain.DeviceMapping) error
	Delete(ctx context.Context, target domain.TargetName) error
	All(ctx context.Context) ([]*domain.DeviceMapping, error)
	ReplaceAll(ctx context.Context, mappings []*domain.DeviceMapping) error
}

// DeviceLock serializes capture access per physical device. An entry older
// than the staleness threshold for its session kind is reclaimable by any
// contender. Release must be called exactly once per granted acquisition, on
// every exit path.
type DeviceLock interface {
	TryAcquire(ctx context.Context, deviceID domain.DeviceID, kind domain.SessionKind) (bool, error)
	Release(ctx context.Context, deviceID domain.DeviceID) error
}
