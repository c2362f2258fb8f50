package services

import (
	"screenrelay/internal/core/domain"
)

// NopMetrics satisfies ports.Metrics for wiring without a collector.
type NopMetrics struct{}

func (NopMetrics) SetActiveSessions(int)                            {}
func (NopMetrics) SetViewerCount(domain.TargetName, int)            {}
func (NopMetrics) FrameBroadcast(domain.TargetName, int)            {}
func (NopMetrics) FrameSuppressed(domain.TargetName)                {}
func (NopMetrics) CaptureError(domain.CaptureErrorKind)             {}
func (NopMetrics) ObserveCaptureDuration(domain.SessionKind, float64) {}
func (NopMetrics) LockReclaimed(domain.DeviceID)                    {}
func (NopMetrics) InputDropped(domain.DeviceID)                     {}
func (NopMetrics) SessionTerminal(domain.TargetName)                {}
