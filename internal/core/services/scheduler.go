package services

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"screenrelay/internal/core/domain"
	"screenrelay/internal/core/ports"
	"screenrelay/pkg/clock"
	"screenrelay/pkg/tracing"
	"screenrelay/pkg/utils"

	"go.uber.org/zap"
)

// SchedulerConfig tunes one capture loop.
type SchedulerConfig struct {
	FrameInterval         time.Duration
	RecordChunk           time.Duration
	BusyRetryDelay        time.Duration
	BackoffInitial        time.Duration
	BackoffMax            time.Duration
	ScreenshotErrorBudget int
	VideoErrorBudget      int
	InjectTimeout         time.Duration
}

// session is one live mirroring session. The capture loop goroutine owns the
// mutable fields; Status() readers go through the mutex.
type session struct {
	id        string
	target    domain.TargetName
	deviceID  domain.DeviceID
	kind      domain.SessionKind
	startedAt time.Time
	cancel    context.CancelFunc

	mu                sync.Mutex
	state             domain.SessionState
	consecutiveErrors int
	framesSent        uint64
	framesSuppressed  uint64

	lastDigest [sha256.Size]byte
	hasDigest  bool
}

func (s *session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) setState(state domain.SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *session) errorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveErrors
}

func (s *session) recordFailure() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveErrors++
	s.state = domain.SessionDegraded
	return s.consecutiveErrors
}

func (s *session) recordSuccess() {
	s.mu.Lock()
	s.consecutiveErrors = 0
	if s.state == domain.SessionDegraded {
		s.state = domain.SessionRunning
	}
	s.mu.Unlock()
}

func (s *session) snapshot(viewers int) domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.SessionStatus{
		Target:            s.target,
		DeviceID:          s.deviceID,
		Kind:              s.kind,
		State:             s.state,
		Viewers:           viewers,
		StartedAt:         s.startedAt,
		FramesSent:        s.framesSent,
		FramesSuppressed:  s.framesSuppressed,
		ConsecutiveErrors: s.consecutiveErrors,
	}
}

// captureLoop drives one session: acquire the device lock, apply pending
// input, capture, publish, pace. It exits when the context is cancelled, the
// last viewer leaves, or the error budget runs out.
type captureLoop struct {
	sess        *session
	backend     ports.CaptureBackend
	broadcaster ports.Broadcaster
	locks       ports.DeviceLock
	inputs      *InputQueue
	injector    ports.InputInjector
	metrics     ports.Metrics
	clk         clock.Clock
	cfg         SchedulerConfig
	logger      *zap.SugaredLogger
	onExit      func(*session)
}

func (l *captureLoop) run(ctx context.Context) {
	defer l.onExit(l.sess)

	for {
		if ctx.Err() != nil {
			l.sess.setState(domain.SessionStopped)
			return
		}

		// Teardown within one iteration of the last viewer leaving.
		viewers := l.broadcaster.SubscriberCount(l.sess.target)
		if viewers == 0 {
			l.logger.Infow("no viewers left, stopping session",
				"target", l.sess.target,
				"session_id", l.sess.id,
			)
			l.sess.setState(domain.SessionStopped)
			return
		}

		l.applyPendingInput(ctx)

		granted, err := l.locks.TryAcquire(ctx, l.sess.deviceID, l.sess.kind)
		if err != nil {
			// Lock table trouble is treated as transient contention.
			l.logger.Warnw("device lock error", "device_id", l.sess.deviceID, "error", err)
			l.clk.Sleep(ctx, l.cfg.BusyRetryDelay)
			continue
		}
		if !granted {
			l.clk.Sleep(ctx, l.cfg.BusyRetryDelay)
			continue
		}

		start := l.clk.Now()
		payload, err := l.captureOnce(ctx, viewers)
		if err != nil {
			if terminal := l.handleFailure(ctx, err); terminal {
				return
			}
			continue
		}

		l.sess.recordSuccess()
		l.publish(payload)

		if l.sess.kind == domain.SessionScreenshot {
			l.clk.Sleep(ctx, utils.ClampDelay(l.cfg.FrameInterval, l.clk.Since(start)))
		}
		// Video chunks run back to back; the recording itself is the pacing.
	}
}

// captureOnce holds the device lock for exactly one backend call. Release
// runs on every path, including cancellation, so a healthy session never
// leaves a lock behind for the sweeper.
func (l *captureLoop) captureOnce(ctx context.Context, viewers int) ([]byte, error) {
	defer func() {
		if err := l.locks.Release(context.WithoutCancel(ctx), l.sess.deviceID); err != nil {
			l.logger.Warnw("lock release failed", "device_id", l.sess.deviceID, "error", err)
		}
	}()

	capCtx, span := tracing.TraceCapture(ctx, string(l.sess.kind), string(l.sess.deviceID))
	defer span.End()
	tracing.AddSpanAttributes(capCtx, tracing.ViewersKey.Int(viewers))

	start := l.clk.Now()
	var payload []byte
	var err error
	if l.sess.kind == domain.SessionVideo {
		payload, err = l.backend.Record(capCtx, l.sess.deviceID, l.cfg.RecordChunk)
	} else {
		payload, err = l.backend.Capture(capCtx, l.sess.deviceID)
	}
	l.metrics.ObserveCaptureDuration(l.sess.kind, l.clk.Since(start).Seconds())

	if err != nil {
		tracing.RecordError(capCtx, err)
		return nil, err
	}
	tracing.AddSpanAttributes(capCtx, tracing.PayloadKey.Int(len(payload)))
	return payload, nil
}

// handleFailure applies the error policy. Busy is expected contention and
// charged nothing; everything else eats into the consecutive-error budget.
// Returns true when the session is terminal.
func (l *captureLoop) handleFailure(ctx context.Context, err error) bool {
	kind := domain.CaptureKind(err)
	l.metrics.CaptureError(kind)

	if kind == domain.CaptureBusy {
		l.logger.Debugw("device busy, retrying",
			"target", l.sess.target,
			"device_id", l.sess.deviceID,
		)
		l.clk.Sleep(ctx, l.cfg.BusyRetryDelay)
		return false
	}

	n := l.sess.recordFailure()
	budget := l.cfg.ScreenshotErrorBudget
	if l.sess.kind == domain.SessionVideo {
		budget = l.cfg.VideoErrorBudget
	}

	l.logger.Warnw("capture failed",
		"target", l.sess.target,
		"device_id", l.sess.deviceID,
		"kind", kind,
		"consecutive", n,
		"budget", budget,
		"error", err,
	)

	if n >= budget {
		l.sess.setState(domain.SessionStopped)
		l.broadcaster.PublishError(l.sess.target, domain.StreamError{
			Target:  l.sess.target,
			Message: fmt.Sprintf("stream stopped after %d consecutive capture failures", n),
		})
		l.metrics.SessionTerminal(l.sess.target)
		return true
	}

	l.clk.Sleep(ctx, l.backoffDelay(n))
	return false
}

// backoffDelay doubles per consecutive failure, capped.
func (l *captureLoop) backoffDelay(failures int) time.Duration {
	delay := l.cfg.BackoffInitial
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= l.cfg.BackoffMax {
			return l.cfg.BackoffMax
		}
	}
	if delay > l.cfg.BackoffMax {
		return l.cfg.BackoffMax
	}
	return delay
}

// publish fans a captured payload out to viewers. Screenshot sessions
// suppress frames whose content digest matches the previous one.
func (l *captureLoop) publish(payload []byte) {
	if l.sess.kind == domain.SessionScreenshot {
		digest := sha256.Sum256(payload)

		l.sess.mu.Lock()
		if l.sess.hasDigest && digest == l.sess.lastDigest {
			l.sess.framesSuppressed++
			l.sess.mu.Unlock()
			l.metrics.FrameSuppressed(l.sess.target)
			return
		}
		l.sess.lastDigest = digest
		l.sess.hasDigest = true
		l.sess.framesSent++
		l.sess.mu.Unlock()
	} else {
		l.sess.mu.Lock()
		l.sess.framesSent++
		l.sess.mu.Unlock()
	}

	l.broadcaster.Publish(l.sess.target, domain.Frame{
		Target:     l.sess.target,
		Kind:       l.sess.kind,
		Payload:    payload,
		CapturedAt: l.clk.Now(),
	})
	l.metrics.FrameBroadcast(l.sess.target, len(payload))
}

// applyPendingInput drains the device's queue and injects only the newest
// event. Anything older describes a screen the viewer is no longer seeing.
func (l *captureLoop) applyPendingInput(ctx context.Context) {
	batch := l.inputs.DrainBatch(l.sess.deviceID)
	if len(batch) == 0 {
		return
	}
	event := batch[len(batch)-1]

	injectCtx, cancel := context.WithTimeout(ctx, l.cfg.InjectTimeout)
	defer cancel()

	if err := l.injector.Inject(injectCtx, l.sess.deviceID, event); err != nil {
		l.logger.Warnw("input injection failed",
			"device_id", l.sess.deviceID,
			"action", event.Action,
			"error", err,
		)
	}
}
