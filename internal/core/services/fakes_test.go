package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"screenrelay/internal/core/domain"
)

type fakeDirectory struct {
	mu        sync.Mutex
	entries   []domain.DeviceEntry
	names     map[domain.DeviceID]string
	pingErr   map[domain.DeviceID]error
	listErr   error
	listCalls int
}

func (d *fakeDirectory) ListDevices(ctx context.Context) ([]domain.DeviceEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listCalls++
	if d.listErr != nil {
		return nil, d.listErr
	}
	out := make([]domain.DeviceEntry, len(d.entries))
	copy(out, d.entries)
	return out, nil
}

func (d *fakeDirectory) DeviceName(ctx context.Context, deviceID domain.DeviceID) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if name, ok := d.names[deviceID]; ok {
		return name, nil
	}
	return "", errors.New("no name for device")
}

func (d *fakeDirectory) Ping(ctx context.Context, deviceID domain.DeviceID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pingErr[deviceID]
}

// fakeBroadcaster reports one subscriber for the first `iterations` calls to
// SubscriberCount, then zero. A negative value means always one.
type fakeBroadcaster struct {
	mu         sync.Mutex
	iterations int
	frames     []domain.Frame
	streamErrs []domain.StreamError
}

func (b *fakeBroadcaster) Publish(target domain.TargetName, frame domain.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, frame)
}

func (b *fakeBroadcaster) PublishError(target domain.TargetName, streamErr domain.StreamError) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamErrs = append(b.streamErrs, streamErr)
}

func (b *fakeBroadcaster) SubscriberCount(target domain.TargetName) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.iterations < 0 {
		return 1
	}
	if b.iterations == 0 {
		return 0
	}
	b.iterations--
	return 1
}

func (b *fakeBroadcaster) setIterations(n int) {
	b.mu.Lock()
	b.iterations = n
	b.mu.Unlock()
}

func (b *fakeBroadcaster) publishedFrames() []domain.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Frame, len(b.frames))
	copy(out, b.frames)
	return out
}

func (b *fakeBroadcaster) publishedErrors() []domain.StreamError {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.StreamError, len(b.streamErrs))
	copy(out, b.streamErrs)
	return out
}

type captureResult struct {
	payload []byte
	err     error
}

// fakeBackend replays a scripted sequence of results; the final one repeats.
type fakeBackend struct {
	mu      sync.Mutex
	results []captureResult
	idx     int
	calls   int
}

func (b *fakeBackend) next() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if len(b.results) == 0 {
		return nil, errors.New("no scripted results")
	}
	i := b.idx
	if i >= len(b.results) {
		i = len(b.results) - 1
	}
	b.idx++
	return b.results[i].payload, b.results[i].err
}

func (b *fakeBackend) Capture(ctx context.Context, deviceID domain.DeviceID) ([]byte, error) {
	return b.next()
}

func (b *fakeBackend) Record(ctx context.Context, deviceID domain.DeviceID, duration time.Duration) ([]byte, error) {
	return b.next()
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// blockingBackend parks every capture until the context is cancelled, keeping
// the session alive for lifecycle tests.
type blockingBackend struct {
	mu    sync.Mutex
	calls int
}

func (b *blockingBackend) block(ctx context.Context, deviceID domain.DeviceID) ([]byte, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	<-ctx.Done()
	return nil, &domain.CaptureError{Kind: domain.CaptureTimeout, DeviceID: deviceID, Err: ctx.Err()}
}

func (b *blockingBackend) Capture(ctx context.Context, deviceID domain.DeviceID) ([]byte, error) {
	return b.block(ctx, deviceID)
}

func (b *blockingBackend) Record(ctx context.Context, deviceID domain.DeviceID, duration time.Duration) ([]byte, error) {
	return b.block(ctx, deviceID)
}

type fakeInjector struct {
	mu     sync.Mutex
	events []domain.InputEvent
	err    error
}

func (i *fakeInjector) Inject(ctx context.Context, deviceID domain.DeviceID, event domain.InputEvent) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.events = append(i.events, event)
	return i.err
}

func (i *fakeInjector) injected() []domain.InputEvent {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]domain.InputEvent, len(i.events))
	copy(out, i.events)
	return out
}

type fakeRegistry struct {
	mu           sync.Mutex
	devices      map[domain.TargetName]domain.DeviceID
	resolveCalls int
}

func (r *fakeRegistry) Resolve(ctx context.Context, target domain.TargetName) (domain.DeviceID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveCalls++
	if id, ok := r.devices[target]; ok {
		return id, nil
	}
	return "", &domain.DeviceNotFoundError{Target: target}
}

func (r *fakeRegistry) Refresh(ctx context.Context) error { return nil }

func (r *fakeRegistry) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveCalls
}

// countMetrics counts the signals the loop tests care about.
type countMetrics struct {
	mu            sync.Mutex
	suppressed    int
	broadcast     int
	inputDropped  int
	terminal      int
	captureErrors map[domain.CaptureErrorKind]int
}

func newCountMetrics() *countMetrics {
	return &countMetrics{captureErrors: make(map[domain.CaptureErrorKind]int)}
}

func (m *countMetrics) SetActiveSessions(int)                 {}
func (m *countMetrics) SetViewerCount(domain.TargetName, int) {}

func (m *countMetrics) FrameBroadcast(domain.TargetName, int) {
	m.mu.Lock()
	m.broadcast++
	m.mu.Unlock()
}

func (m *countMetrics) FrameSuppressed(domain.TargetName) {
	m.mu.Lock()
	m.suppressed++
	m.mu.Unlock()
}

func (m *countMetrics) CaptureError(kind domain.CaptureErrorKind) {
	m.mu.Lock()
	m.captureErrors[kind]++
	m.mu.Unlock()
}

func (m *countMetrics) ObserveCaptureDuration(domain.SessionKind, float64) {}
func (m *countMetrics) LockReclaimed(domain.DeviceID)                      {}

func (m *countMetrics) InputDropped(domain.DeviceID) {
	m.mu.Lock()
	m.inputDropped++
	m.mu.Unlock()
}

func (m *countMetrics) SessionTerminal(domain.TargetName) {
	m.mu.Lock()
	m.terminal++
	m.mu.Unlock()
}

func (m *countMetrics) counts() (suppressed, broadcast, dropped, terminal int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suppressed, m.broadcast, m.inputDropped, m.terminal
}
