package adb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"screenrelay/internal/core/domain"
	"screenrelay/internal/core/ports"
	"screenrelay/pkg/retry"

	"go.uber.org/zap"
)

// Directory enumerates devices through the adb server. Listing output is
// parsed once into typed records; nothing downstream sees the text format.
type Directory struct {
	client      *Client
	listTimeout time.Duration
	logger      *zap.SugaredLogger
	retryCfg    retry.Config
}

func NewDirectory(client *Client, listTimeout time.Duration, logger *zap.SugaredLogger) ports.DeviceDirectory {
	return &Directory{
		client:      client,
		listTimeout: listTimeout,
		logger:      logger,
		retryCfg: retry.Config{
			Enabled:      true,
			MaxAttempts:  1,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2.0,
		},
	}
}

func (d *Directory) ListDevices(ctx context.Context) ([]domain.DeviceEntry, error) {
	listCtx, cancel := context.WithTimeout(ctx, d.listTimeout)
	defer cancel()

	// The adb server occasionally drops a listing right after (re)start;
	// one retry absorbs that.
	out, err := retry.DoWithResult(listCtx, d.retryCfg, func() ([]byte, error) {
		return d.client.run(listCtx, "devices", "-l")
	})
	if err != nil {
		return nil, fmt.Errorf("device listing failed: %w", err)
	}

	entries := parseDeviceList(string(out))

	// The listing's model field is a build property, not the emulator's
	// assigned name. Resolve the display name per online device; a failed
	// lookup degrades that one entry, not the listing.
	for i := range entries {
		if !entries[i].Online() {
			continue
		}
		name, err := d.DeviceName(ctx, entries[i].DeviceID)
		if err != nil {
			d.logger.Debugw("device name lookup failed, keeping listing name",
				"device_id", entries[i].DeviceID,
				"error", err,
			)
			continue
		}
		if name != "" {
			entries[i].DisplayName = name
		}
	}

	return entries, nil
}

func (d *Directory) DeviceName(ctx context.Context, deviceID domain.DeviceID) (string, error) {
	nameCtx, cancel := context.WithTimeout(ctx, d.listTimeout)
	defer cancel()

	// Emulators carry the AVD name; physical devices fall back to the
	// product model.
	for _, prop := range []string{"ro.boot.qemu.avd_name", "ro.kernel.qemu.avd_name", "ro.product.model"} {
		out, err := d.client.runOnDevice(nameCtx, deviceID, "shell", "getprop", prop)
		if err != nil {
			return "", err
		}
		if name := strings.TrimSpace(string(out)); name != "" {
			return name, nil
		}
	}
	return "", fmt.Errorf("device %s reports no name", deviceID)
}

func (d *Directory) Ping(ctx context.Context, deviceID domain.DeviceID) error {
	_, err := d.client.runOnDevice(ctx, deviceID, "shell", "true")
	return err
}

// parseDeviceList converts `adb devices -l` output into typed entries.
//
//	emulator-5554   device product:sdk_gphone64 model:Pixel_6_API_33 device:emu64x
func parseDeviceList(out string) []domain.DeviceEntry {
	var entries []domain.DeviceEntry

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		entry := domain.DeviceEntry{
			DeviceID: domain.DeviceID(fields[0]),
			State:    fields[1],
		}
		for _, f := range fields[2:] {
			switch {
			case strings.HasPrefix(f, "model:"):
				entry.Model = strings.TrimPrefix(f, "model:")
			case strings.HasPrefix(f, "device:") && entry.Model == "":
				entry.Model = strings.TrimPrefix(f, "device:")
			}
		}
		entry.DisplayName = entry.Model
		if entry.DisplayName == "" {
			entry.DisplayName = string(entry.DeviceID)
		}

		entries = append(entries, entry)
	}

	return entries
}
