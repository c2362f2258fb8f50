package memory

import (
	"context"
	"testing"
	"time"

	"screenrelay/internal/core/domain"
	"screenrelay/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLockConfig() DeviceLockConfig {
	return DeviceLockConfig{
		ScreenshotStaleness: 8 * time.Second,
		RecordStaleness:     45 * time.Second,
		SweepInterval:       30 * time.Second,
		HardCeiling:         60 * time.Second,
	}
}

func newTestLock() (*DeviceLock, *clock.Fake) {
	fake := clock.NewFake(time.Unix(1700000000, 0))
	return NewDeviceLock(testLockConfig(), fake, zap.NewNop().Sugar()), fake
}

func TestDeviceLock_MutualExclusion(t *testing.T) {
	l, _ := newTestLock()
	ctx := context.Background()

	granted, err := l.TryAcquire(ctx, "emulator-5554", domain.SessionScreenshot)
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = l.TryAcquire(ctx, "emulator-5554", domain.SessionScreenshot)
	require.NoError(t, err)
	assert.False(t, granted)

	// A different device is independent
	granted, err = l.TryAcquire(ctx, "emulator-5556", domain.SessionScreenshot)
	require.NoError(t, err)
	assert.True(t, granted)
}

func TestDeviceLock_ReleaseAllowsReacquire(t *testing.T) {
	l, _ := newTestLock()
	ctx := context.Background()

	granted, _ := l.TryAcquire(ctx, "emulator-5554", domain.SessionScreenshot)
	require.True(t, granted)
	require.NoError(t, l.Release(ctx, "emulator-5554"))

	granted, _ = l.TryAcquire(ctx, "emulator-5554", domain.SessionScreenshot)
	assert.True(t, granted)
}

func TestDeviceLock_StaleEntryReclaimed(t *testing.T) {
	l, fake := newTestLock()
	ctx := context.Background()

	reclaims := 0
	l.OnReclaim(func(domain.DeviceID) { reclaims++ })

	granted, _ := l.TryAcquire(ctx, "emulator-5554", domain.SessionScreenshot)
	require.True(t, granted)

	// Just inside the screenshot staleness threshold: still busy
	fake.Advance(8*time.Second - time.Millisecond)
	granted, _ = l.TryAcquire(ctx, "emulator-5554", domain.SessionScreenshot)
	assert.False(t, granted)

	// Aged exactly the threshold: reclaim-then-grant, never explicitly
	// released
	fake.Advance(time.Millisecond)
	granted, _ = l.TryAcquire(ctx, "emulator-5554", domain.SessionScreenshot)
	assert.True(t, granted)
	assert.Equal(t, 1, reclaims)
}

func TestDeviceLock_RecordStalenessIsLonger(t *testing.T) {
	l, fake := newTestLock()
	ctx := context.Background()

	granted, _ := l.TryAcquire(ctx, "emulator-5554", domain.SessionVideo)
	require.True(t, granted)

	// Past screenshot staleness but within record staleness: the holder's
	// kind decides
	fake.Advance(20 * time.Second)
	granted, _ = l.TryAcquire(ctx, "emulator-5554", domain.SessionScreenshot)
	assert.False(t, granted)

	fake.Advance(30 * time.Second)
	granted, _ = l.TryAcquire(ctx, "emulator-5554", domain.SessionScreenshot)
	assert.True(t, granted)
}

func TestDeviceLock_SweepReclaimsAbandonedEntries(t *testing.T) {
	l, fake := newTestLock()
	ctx := context.Background()

	granted, _ := l.TryAcquire(ctx, "emulator-5554", domain.SessionVideo)
	require.True(t, granted)

	fake.Advance(61 * time.Second)
	l.sweepOnce()

	assert.False(t, l.Held("emulator-5554"))
}
