package monitoring

import (
	"screenrelay/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.Metrics.
type PrometheusCollector struct {
	activeSessions   prometheus.Gauge
	viewerCount      *prometheus.GaugeVec
	framesBroadcast  *prometheus.CounterVec
	framesSuppressed *prometheus.CounterVec
	frameBytes       prometheus.Counter
	captureErrors    *prometheus.CounterVec
	captureDuration  *prometheus.HistogramVec
	locksReclaimed   prometheus.Counter
	inputsDropped    prometheus.Counter
	sessionsTerminal prometheus.Counter
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		activeSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "screenrelay_sessions_active",
			Help: "Number of live mirroring sessions",
		}),

		viewerCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "screenrelay_viewers",
			Help: "Connected viewers per target",
		}, []string{"target"}),

		framesBroadcast: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "screenrelay_frames_broadcast_total",
			Help: "Frames fanned out to viewers",
		}, []string{"target"}),

		framesSuppressed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "screenrelay_frames_suppressed_total",
			Help: "Frames dropped because the screen content did not change",
		}, []string{"target"}),

		frameBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "screenrelay_frame_bytes_total",
			Help: "Total payload bytes broadcast to viewers",
		}),

		captureErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "screenrelay_capture_errors_total",
			Help: "Capture failures by classification",
		}, []string{"kind"}),

		captureDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "screenrelay_capture_duration_seconds",
			Help:    "Duration of one capture backend invocation",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"session_kind"}),

		locksReclaimed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "screenrelay_device_locks_reclaimed_total",
			Help: "Stale device locks taken over or swept",
		}),

		inputsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "screenrelay_inputs_dropped_total",
			Help: "Viewer inputs evicted from a full device queue",
		}),

		sessionsTerminal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "screenrelay_sessions_terminal_total",
			Help: "Sessions stopped by error budget exhaustion",
		}),
	}
}

func (p *PrometheusCollector) SetActiveSessions(n int) {
	p.activeSessions.Set(float64(n))
}

func (p *PrometheusCollector) SetViewerCount(target domain.TargetName, n int) {
	p.viewerCount.WithLabelValues(string(target)).Set(float64(n))
}

func (p *PrometheusCollector) FrameBroadcast(target domain.TargetName, sizeBytes int) {
	p.framesBroadcast.WithLabelValues(string(target)).Inc()
	p.frameBytes.Add(float64(sizeBytes))
}

func (p *PrometheusCollector) FrameSuppressed(target domain.TargetName) {
	p.framesSuppressed.WithLabelValues(string(target)).Inc()
}

func (p *PrometheusCollector) CaptureError(kind domain.CaptureErrorKind) {
	p.captureErrors.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusCollector) ObserveCaptureDuration(kind domain.SessionKind, seconds float64) {
	p.captureDuration.WithLabelValues(string(kind)).Observe(seconds)
}

func (p *PrometheusCollector) LockReclaimed(deviceID domain.DeviceID) {
	p.locksReclaimed.Inc()
}

func (p *PrometheusCollector) InputDropped(deviceID domain.DeviceID) {
	p.inputsDropped.Inc()
}

func (p *PrometheusCollector) SessionTerminal(target domain.TargetName) {
	p.sessionsTerminal.Inc()
}
