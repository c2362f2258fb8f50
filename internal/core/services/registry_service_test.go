package services

import (
	"context"
	"testing"
	"time"

	"screenrelay/internal/core/domain"
	"screenrelay/internal/infrastructure/repositories/memory"
	"screenrelay/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRegistry(dir *fakeDirectory) (*RegistryService, *clock.Fake) {
	clk := clock.NewFake(time.Unix(1700000000, 0))
	mappings := memory.NewMappingRepository(5 * time.Minute)
	return NewRegistryService(dir, mappings, clk, 2*time.Second, zap.NewNop().Sugar()), clk
}

func TestResolve_RefreshThenExact(t *testing.T) {
	dir := &fakeDirectory{
		entries: []domain.DeviceEntry{
			{DeviceID: "emulator-5554", DisplayName: "Pixel_6_API_33", State: domain.DeviceStateOnline},
		},
		names: map[domain.DeviceID]string{"emulator-5554": "Pixel_6_API_33"},
	}
	reg, _ := newRegistry(dir)

	id, err := reg.Resolve(context.Background(), "Pixel_6_API_33")
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceID("emulator-5554"), id)
	assert.Equal(t, 1, dir.listCalls)
}

func TestResolve_CachedHitSkipsRefresh(t *testing.T) {
	dir := &fakeDirectory{
		entries: []domain.DeviceEntry{
			{DeviceID: "emulator-5554", DisplayName: "Pixel_6_API_33", State: domain.DeviceStateOnline},
		},
		names: map[domain.DeviceID]string{"emulator-5554": "Pixel_6_API_33"},
	}
	reg, _ := newRegistry(dir)

	_, err := reg.Resolve(context.Background(), "Pixel_6_API_33")
	require.NoError(t, err)

	id, err := reg.Resolve(context.Background(), "Pixel_6_API_33")
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceID("emulator-5554"), id)
	// Second resolution verified the cached mapping instead of re-listing.
	assert.Equal(t, 1, dir.listCalls)
}

func TestResolve_StaleMappingEvicted(t *testing.T) {
	dir := &fakeDirectory{
		entries: []domain.DeviceEntry{
			{DeviceID: "emulator-5554", DisplayName: "Pixel_6_API_33", State: domain.DeviceStateOnline},
		},
		names:   map[domain.DeviceID]string{"emulator-5554": "Pixel_6_API_33"},
		pingErr: map[domain.DeviceID]error{"emulator-5556": context.DeadlineExceeded},
	}
	reg, clk := newRegistry(dir)

	// Poison the cache with a mapping to a dead device.
	require.NoError(t, reg.mappings.Put(context.Background(), &domain.DeviceMapping{
		Target:     "Pixel_6_API_33",
		DeviceID:   "emulator-5556",
		VerifiedAt: clk.Now(),
	}))

	id, err := reg.Resolve(context.Background(), "Pixel_6_API_33")
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceID("emulator-5554"), id)
	assert.Equal(t, 1, dir.listCalls)
}

func TestResolve_ReassignedDeviceEvicted(t *testing.T) {
	// Device answers the probe but now carries a different name: the
	// emulator slot was recycled.
	dir := &fakeDirectory{
		entries: []domain.DeviceEntry{
			{DeviceID: "emulator-5554", DisplayName: "Galaxy_S23", State: domain.DeviceStateOnline},
		},
		names: map[domain.DeviceID]string{"emulator-5554": "Galaxy_S23"},
	}
	reg, clk := newRegistry(dir)

	require.NoError(t, reg.mappings.Put(context.Background(), &domain.DeviceMapping{
		Target:     "Pixel_6_API_33",
		DeviceID:   "emulator-5554",
		VerifiedAt: clk.Now(),
	}))

	_, err := reg.Resolve(context.Background(), "Pixel_6_API_33")
	var notFound *domain.DeviceNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, []string{"Galaxy_S23"}, notFound.Known)
}

func TestResolve_FuzzyMatchMemoized(t *testing.T) {
	dir := &fakeDirectory{
		entries: []domain.DeviceEntry{
			{DeviceID: "emulator-5554", DisplayName: "PhonePe-Stage-V2", State: domain.DeviceStateOnline},
		},
		names: map[domain.DeviceID]string{"emulator-5554": "PhonePe-Stage-V2"},
	}
	reg, _ := newRegistry(dir)

	id, err := reg.Resolve(context.Background(), "phonepe_stage_v2")
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceID("emulator-5554"), id)

	// Memoized under the requested spelling: the next lookup is an exact
	// cache hit, no second listing.
	id, err = reg.Resolve(context.Background(), "phonepe_stage_v2")
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceID("emulator-5554"), id)
	assert.Equal(t, 1, dir.listCalls)
}

func TestResolve_NotFoundCarriesKnownNames(t *testing.T) {
	dir := &fakeDirectory{
		entries: []domain.DeviceEntry{
			{DeviceID: "a", DisplayName: "Pixel_6", State: domain.DeviceStateOnline},
			{DeviceID: "b", DisplayName: "Galaxy_S23", State: domain.DeviceStateOnline},
		},
		names: map[domain.DeviceID]string{"a": "Pixel_6", "b": "Galaxy_S23"},
	}
	reg, _ := newRegistry(dir)

	_, err := reg.Resolve(context.Background(), "XYZ")
	var notFound *domain.DeviceNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, domain.TargetName("XYZ"), notFound.Target)
	assert.Equal(t, []string{"Galaxy_S23", "Pixel_6"}, notFound.Known)
}

func TestResolve_EmptyTarget(t *testing.T) {
	reg, _ := newRegistry(&fakeDirectory{})
	_, err := reg.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrEmptyTarget)
}

func TestRefresh_DropsOfflineDevices(t *testing.T) {
	dir := &fakeDirectory{
		entries: []domain.DeviceEntry{
			{DeviceID: "a", DisplayName: "Pixel_6", State: domain.DeviceStateOnline},
			{DeviceID: "b", DisplayName: "Dead_One", State: domain.DeviceStateOffline},
		},
	}
	reg, _ := newRegistry(dir)

	require.NoError(t, reg.Refresh(context.Background()))

	all, err := reg.mappings.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, domain.TargetName("Pixel_6"), all[0].Target)
}
