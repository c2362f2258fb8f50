package adb

import (
	"context"
	"errors"
	"testing"

	"screenrelay/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeviceList(t *testing.T) {
	out := `List of devices attached
emulator-5554   device product:sdk_gphone64_x86_64 model:Pixel_6_API_33 device:emu64x transport_id:1
emulator-5556   offline transport_id:2
R58M123ABC      device usb:1-1 product:beyond1 model:SM_G973F device:beyond1 transport_id:3

* daemon started successfully
`
	entries := parseDeviceList(out)
	require.Len(t, entries, 3)

	assert.Equal(t, domain.DeviceID("emulator-5554"), entries[0].DeviceID)
	assert.Equal(t, "Pixel_6_API_33", entries[0].DisplayName)
	assert.True(t, entries[0].Online())

	assert.Equal(t, domain.DeviceID("emulator-5556"), entries[1].DeviceID)
	assert.False(t, entries[1].Online())
	// No model token: fall back to the raw identifier
	assert.Equal(t, "emulator-5556", entries[1].DisplayName)

	assert.Equal(t, "SM_G973F", entries[2].DisplayName)
}

func TestParseDeviceList_Empty(t *testing.T) {
	assert.Empty(t, parseDeviceList("List of devices attached\n\n"))
	assert.Empty(t, parseDeviceList(""))
}

func TestClassify_Timeout(t *testing.T) {
	err := classify("emulator-5554", context.DeadlineExceeded)
	assert.Equal(t, domain.CaptureTimeout, domain.CaptureKind(err))
}

func TestClassify_Busy(t *testing.T) {
	err := classify("emulator-5554", errors.New("adb screenrecord: another recording is in progress"))
	assert.Equal(t, domain.CaptureBusy, domain.CaptureKind(err))

	err = classify("emulator-5554", errors.New("error: Device Busy"))
	assert.Equal(t, domain.CaptureBusy, domain.CaptureKind(err))
}

func TestClassify_Failed(t *testing.T) {
	err := classify("emulator-5554", errors.New("segfault in screencap"))
	assert.Equal(t, domain.CaptureFailed, domain.CaptureKind(err))

	var ce *domain.CaptureError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, domain.DeviceID("emulator-5554"), ce.DeviceID)
}

func TestClassify_Nil(t *testing.T) {
	assert.NoError(t, classify("emulator-5554", nil))
}
