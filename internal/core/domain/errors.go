package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNoActiveSession = errors.New("no active session for target")
	ErrDeviceBusy      = errors.New("device busy")
	ErrEmptyTarget     = errors.New("target name must not be empty")
)

// CaptureErrorKind classifies a capture backend failure. Classification
// happens once, at the backend adapter boundary, so the core never inspects
// error text.
type CaptureErrorKind string

const (
	// CaptureBusy means the backend reported the device already in use.
	// Expected contention signal, never counted against the error budget.
	CaptureBusy CaptureErrorKind = "busy"
	// CaptureTimeout means the operation exceeded its deadline.
	CaptureTimeout CaptureErrorKind = "timeout"
	// CaptureFailed covers every other failure, including empty or
	// undersized output.
	CaptureFailed CaptureErrorKind = "failed"
)

// CaptureError wraps a backend failure with its classification.
type CaptureError struct {
	Kind     CaptureErrorKind
	DeviceID DeviceID
	Err      error
}

func (e *CaptureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("capture %s on %s: %v", e.Kind, e.DeviceID, e.Err)
	}
	return fmt.Sprintf("capture %s on %s", e.Kind, e.DeviceID)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// CaptureKind extracts the classification from an error chain, defaulting to
// CaptureFailed for unclassified errors.
func CaptureKind(err error) CaptureErrorKind {
	var ce *CaptureError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return CaptureFailed
}

// DeviceNotFoundError is returned when resolution is exhausted, including the
// fuzzy pass. It carries the names currently known to the directory so the
// caller can show them.
type DeviceNotFoundError struct {
	Target TargetName
	Known  []string
}

func (e *DeviceNotFoundError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("device %q not found (no devices known)", e.Target)
	}
	return fmt.Sprintf("device %q not found, known devices: %s", e.Target, strings.Join(e.Known, ", "))
}

// ErrMappingNotFound is the mapping repository's miss sentinel.
var ErrMappingNotFound = errors.New("device mapping not found")
