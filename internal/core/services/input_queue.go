package services

import (
	"sync"

	"screenrelay/internal/core/domain"
	"screenrelay/internal/core/ports"
	"screenrelay/pkg/clock"
)

// InputQueue holds pending viewer inputs per device, bounded and lossy. When
// a queue is full the oldest event is evicted; stale gestures are worse than
// dropped ones on a screen that has since changed.
type InputQueue struct {
	mu      sync.Mutex
	bound   int
	pending map[domain.DeviceID][]domain.InputEvent
	metrics ports.Metrics
	clk     clock.Clock
}

func NewInputQueue(bound int, metrics ports.Metrics, clk clock.Clock) *InputQueue {
	if bound < 1 {
		bound = 1
	}
	return &InputQueue{
		bound:   bound,
		pending: make(map[domain.DeviceID][]domain.InputEvent),
		metrics: metrics,
		clk:     clk,
	}
}

// Enqueue appends an event, evicting the oldest if the device queue is full.
func (q *InputQueue) Enqueue(deviceID domain.DeviceID, event domain.InputEvent) {
	event.EnqueuedAt = q.clk.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	queue := q.pending[deviceID]
	if len(queue) >= q.bound {
		queue = queue[1:]
		q.metrics.InputDropped(deviceID)
	}
	q.pending[deviceID] = append(queue, event)
}

// DrainBatch removes and returns everything pending for the device, in
// enqueue order.
func (q *InputQueue) DrainBatch(deviceID domain.DeviceID) []domain.InputEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	batch := q.pending[deviceID]
	if len(batch) == 0 {
		return nil
	}
	delete(q.pending, deviceID)
	return batch
}

// Clear discards everything pending for the device.
func (q *InputQueue) Clear(deviceID domain.DeviceID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, deviceID)
}

// Len reports how many events are pending for the device.
func (q *InputQueue) Len(deviceID domain.DeviceID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[deviceID])
}
