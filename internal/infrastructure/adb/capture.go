package adb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"screenrelay/internal/core/domain"
	"screenrelay/internal/core/ports"

	"go.uber.org/zap"
)

// CaptureBackend captures screen content via adb. Screenshot output below
// the configured byte floor is a soft failure: the device was reachable but
// produced garbage, which happens during boot and screen-off.
type CaptureBackend struct {
	client             *Client
	screenshotTimeout  time.Duration
	recordTimeout      time.Duration
	minScreenshotBytes int
	logger             *zap.SugaredLogger
}

func NewCaptureBackend(client *Client, screenshotTimeout, recordTimeout time.Duration, minScreenshotBytes int, logger *zap.SugaredLogger) ports.CaptureBackend {
	return &CaptureBackend{
		client:             client,
		screenshotTimeout:  screenshotTimeout,
		recordTimeout:      recordTimeout,
		minScreenshotBytes: minScreenshotBytes,
		logger:             logger,
	}
}

func (b *CaptureBackend) Capture(ctx context.Context, deviceID domain.DeviceID) ([]byte, error) {
	capCtx, cancel := context.WithTimeout(ctx, b.screenshotTimeout)
	defer cancel()

	out, err := b.client.runOnDevice(capCtx, deviceID, "exec-out", "screencap", "-p")
	if err != nil {
		return nil, classify(deviceID, err)
	}

	if len(out) < b.minScreenshotBytes {
		return nil, &domain.CaptureError{
			Kind:     domain.CaptureFailed,
			DeviceID: deviceID,
			Err:      fmt.Errorf("undersized screenshot: %d bytes", len(out)),
		}
	}
	return out, nil
}

func (b *CaptureBackend) Record(ctx context.Context, deviceID domain.DeviceID, duration time.Duration) ([]byte, error) {
	recCtx, cancel := context.WithTimeout(ctx, b.recordTimeout)
	defer cancel()

	seconds := int(duration.Seconds())
	if seconds < 1 {
		seconds = 1
	}

	out, err := b.client.runOnDevice(recCtx, deviceID,
		"exec-out", "screenrecord",
		"--output-format=h264",
		"--time-limit", strconv.Itoa(seconds),
		"-",
	)
	if err != nil {
		return nil, classify(deviceID, err)
	}

	if len(out) == 0 {
		return nil, &domain.CaptureError{
			Kind:     domain.CaptureFailed,
			DeviceID: deviceID,
			Err:      fmt.Errorf("empty recording"),
		}
	}
	return out, nil
}
