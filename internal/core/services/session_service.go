package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"screenrelay/internal/core/domain"
	"screenrelay/internal/core/ports"
	"screenrelay/pkg/clock"
	"screenrelay/pkg/utils"

	"go.uber.org/zap"
)

// SessionService owns the target-to-session map. At most one capture loop
// runs per target; viewers joining an in-progress session attach to the
// existing fan-out instead of starting another loop.
type SessionService struct {
	registry    ports.DeviceRegistry
	backend     ports.CaptureBackend
	broadcaster ports.Broadcaster
	locks       ports.DeviceLock
	injector    ports.InputInjector
	inputs      *InputQueue
	metrics     ports.Metrics
	clk         clock.Clock
	cfg         SchedulerConfig
	logger      *zap.SugaredLogger

	mu       sync.Mutex
	sessions map[domain.TargetName]*session

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
}

func NewSessionService(
	registry ports.DeviceRegistry,
	backend ports.CaptureBackend,
	broadcaster ports.Broadcaster,
	locks ports.DeviceLock,
	injector ports.InputInjector,
	inputs *InputQueue,
	metrics ports.Metrics,
	clk clock.Clock,
	cfg SchedulerConfig,
	logger *zap.SugaredLogger,
) *SessionService {
	rootCtx, rootCancel := context.WithCancel(context.Background())
	return &SessionService{
		registry:    registry,
		backend:     backend,
		broadcaster: broadcaster,
		locks:       locks,
		injector:    injector,
		inputs:      inputs,
		metrics:     metrics,
		clk:         clk,
		cfg:         cfg,
		logger:      logger,
		sessions:    make(map[domain.TargetName]*session),
		rootCtx:     rootCtx,
		rootCancel:  rootCancel,
	}
}

func (s *SessionService) Join(ctx context.Context, target domain.TargetName, kind domain.SessionKind) error {
	if target == "" {
		return domain.ErrEmptyTarget
	}
	if kind == "" {
		kind = domain.SessionScreenshot
	}
	if kind != domain.SessionScreenshot && kind != domain.SessionVideo {
		return fmt.Errorf("unsupported session kind: %s", kind)
	}

	// Fast path without device resolution.
	s.mu.Lock()
	if existing, ok := s.sessions[target]; ok && existing.State() != domain.SessionStopped {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	// Resolution can probe devices and refresh the directory; keep it
	// outside the session lock.
	deviceID, err := s.registry.Resolve(ctx, target)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check under the lock: another viewer may have started the loop
	// while we were resolving.
	if existing, ok := s.sessions[target]; ok {
		if existing.State() != domain.SessionStopped {
			return nil
		}
		delete(s.sessions, target)
	}

	loopCtx, cancel := context.WithCancel(s.rootCtx)
	sess := &session{
		id:        utils.GenerateSessionID(),
		target:    target,
		deviceID:  deviceID,
		kind:      kind,
		startedAt: s.clk.Now(),
		state:     domain.SessionRunning,
		cancel:    cancel,
	}
	s.sessions[target] = sess
	s.metrics.SetActiveSessions(len(s.sessions))

	loop := &captureLoop{
		sess:        sess,
		backend:     s.backend,
		broadcaster: s.broadcaster,
		locks:       s.locks,
		inputs:      s.inputs,
		injector:    s.injector,
		metrics:     s.metrics,
		clk:         s.clk,
		cfg:         s.cfg,
		logger:      s.logger,
		onExit:      s.onLoopExit,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		loop.run(loopCtx)
	}()

	s.logger.Infow("session started",
		"session_id", sess.id,
		"target", target,
		"device_id", deviceID,
		"kind", kind,
	)
	return nil
}

func (s *SessionService) onLoopExit(sess *session) {
	sess.cancel()
	s.inputs.Clear(sess.deviceID)

	s.mu.Lock()
	if current, ok := s.sessions[sess.target]; ok && current == sess {
		delete(s.sessions, sess.target)
	}
	s.metrics.SetActiveSessions(len(s.sessions))
	s.mu.Unlock()

	s.logger.Infow("session ended",
		"session_id", sess.id,
		"target", sess.target,
	)
}

func (s *SessionService) SendInput(target domain.TargetName, event domain.InputEvent) error {
	if event.Action != domain.ActionTap && event.Action != domain.ActionSwipe {
		return fmt.Errorf("unsupported input action: %s", event.Action)
	}

	s.mu.Lock()
	sess, ok := s.sessions[target]
	s.mu.Unlock()
	if !ok || sess.State() == domain.SessionStopped {
		return domain.ErrNoActiveSession
	}

	s.inputs.Enqueue(sess.deviceID, event)
	return nil
}

func (s *SessionService) Status() []domain.SessionStatus {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	statuses := make([]domain.SessionStatus, 0, len(sessions))
	for _, sess := range sessions {
		viewers := s.broadcaster.SubscriberCount(sess.target)
		s.metrics.SetViewerCount(sess.target, viewers)
		statuses = append(statuses, sess.snapshot(viewers))
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Target < statuses[j].Target
	})
	return statuses
}

// StopAll cancels every loop and waits for them to drain. Called once on
// shutdown.
func (s *SessionService) StopAll() {
	s.rootCancel()
	s.wg.Wait()
}
