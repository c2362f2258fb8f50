package services

import (
	"testing"
	"time"

	"screenrelay/internal/core/domain"
	"screenrelay/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputQueue_DrainInOrder(t *testing.T) {
	clk := clock.NewFake(time.Unix(1700000000, 0))
	q := NewInputQueue(10, NopMetrics{}, clk)

	q.Enqueue("dev-1", domain.InputEvent{Action: domain.ActionTap, X: 1})
	q.Enqueue("dev-1", domain.InputEvent{Action: domain.ActionTap, X: 2})
	q.Enqueue("dev-2", domain.InputEvent{Action: domain.ActionTap, X: 99})

	batch := q.DrainBatch("dev-1")
	require.Len(t, batch, 2)
	assert.Equal(t, 1, batch[0].X)
	assert.Equal(t, 2, batch[1].X)

	// Drained queue is empty; the other device untouched.
	assert.Nil(t, q.DrainBatch("dev-1"))
	assert.Equal(t, 1, q.Len("dev-2"))
}

func TestInputQueue_BoundEvictsOldest(t *testing.T) {
	clk := clock.NewFake(time.Unix(1700000000, 0))
	metrics := newCountMetrics()
	q := NewInputQueue(3, metrics, clk)

	for x := 1; x <= 5; x++ {
		q.Enqueue("dev-1", domain.InputEvent{Action: domain.ActionTap, X: x})
	}

	batch := q.DrainBatch("dev-1")
	require.Len(t, batch, 3)
	assert.Equal(t, 3, batch[0].X)
	assert.Equal(t, 5, batch[2].X)

	_, _, dropped, _ := metrics.counts()
	assert.Equal(t, 2, dropped)
}

func TestInputQueue_EnqueueStampsTime(t *testing.T) {
	start := time.Unix(1700000000, 0)
	clk := clock.NewFake(start)
	q := NewInputQueue(10, NopMetrics{}, clk)

	clk.Advance(time.Minute)
	q.Enqueue("dev-1", domain.InputEvent{Action: domain.ActionTap})

	batch := q.DrainBatch("dev-1")
	require.Len(t, batch, 1)
	assert.Equal(t, start.Add(time.Minute), batch[0].EnqueuedAt)
}

func TestInputQueue_Clear(t *testing.T) {
	clk := clock.NewFake(time.Unix(1700000000, 0))
	q := NewInputQueue(10, NopMetrics{}, clk)

	q.Enqueue("dev-1", domain.InputEvent{Action: domain.ActionTap})
	q.Clear("dev-1")
	assert.Zero(t, q.Len("dev-1"))
}
