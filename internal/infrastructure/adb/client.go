package adb

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"screenrelay/internal/core/domain"

	"go.uber.org/zap"
)

// Client runs adb commands with a bounded lifetime. Every invocation goes
// through the caller's context; there is no unbounded external call.
type Client struct {
	path   string
	logger *zap.SugaredLogger
}

func NewClient(path string, logger *zap.SugaredLogger) *Client {
	return &Client{
		path:   path,
		logger: logger,
	}
}

// run executes adb with the given arguments and returns stdout.
func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.path, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, context.DeadlineExceeded
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("adb %s: %s", args[0], msg)
	}
	return stdout.Bytes(), nil
}

// runOnDevice executes an adb command scoped to one device.
func (c *Client) runOnDevice(ctx context.Context, deviceID domain.DeviceID, args ...string) ([]byte, error) {
	full := append([]string{"-s", string(deviceID)}, args...)
	return c.run(ctx, full...)
}

// busyMarkers are the backend's known "device already in use" phrasings.
// Matched once, here, so the core only ever sees the typed classification.
var busyMarkers = []string{
	"device busy",
	"already in use",
	"resource busy",
	"another recording is in progress",
}

// classify wraps an adb failure as a typed capture error.
func classify(deviceID domain.DeviceID, err error) error {
	if err == nil {
		return nil
	}
	if err == context.DeadlineExceeded {
		return &domain.CaptureError{Kind: domain.CaptureTimeout, DeviceID: deviceID, Err: err}
	}

	lower := strings.ToLower(err.Error())
	for _, marker := range busyMarkers {
		if strings.Contains(lower, marker) {
			return &domain.CaptureError{Kind: domain.CaptureBusy, DeviceID: deviceID, Err: err}
		}
	}
	return &domain.CaptureError{Kind: domain.CaptureFailed, DeviceID: deviceID, Err: err}
}
