package redis

import (
	"context"
	"fmt"
	"time"

	"screenrelay/internal/core/domain"
	"screenrelay/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// DeviceLock serializes capture access across relay instances sharing a
// device farm. SET NX with a TTL equal to the per-kind staleness threshold
// gives the same reclaim-then-grant behavior as the in-memory table: an
// entry whose holder crashed simply expires.
type DeviceLock struct {
	client              *redis.Client
	prefix              string
	screenshotStaleness time.Duration
	recordStaleness     time.Duration
}

func NewDeviceLock(client *redis.Client, screenshotStaleness, recordStaleness time.Duration) ports.DeviceLock {
	return &DeviceLock{
		client:              client,
		prefix:              "screenrelay:devicelock:",
		screenshotStaleness: screenshotStaleness,
		recordStaleness:     recordStaleness,
	}
}

func (l *DeviceLock) lockKey(deviceID domain.DeviceID) string {
	return l.prefix + string(deviceID)
}

func (l *DeviceLock) ttl(kind domain.SessionKind) time.Duration {
	if kind == domain.SessionVideo {
		return l.recordStaleness
	}
	return l.screenshotStaleness
}

func (l *DeviceLock) TryAcquire(ctx context.Context, deviceID domain.DeviceID, kind domain.SessionKind) (bool, error) {
	acquired, err := l.client.SetNX(ctx, l.lockKey(deviceID), string(kind), l.ttl(kind)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire device lock: %w", err)
	}
	return acquired, nil
}

func (l *DeviceLock) Release(ctx context.Context, deviceID domain.DeviceID) error {
	if err := l.client.Del(ctx, l.lockKey(deviceID)).Err(); err != nil {
		return fmt.Errorf("failed to release device lock: %w", err)
	}
	return nil
}
