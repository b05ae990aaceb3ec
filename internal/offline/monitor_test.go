package offline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/floorline/api/internal/enum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyChecker struct {
	mu   sync.Mutex
	up   bool
	hits int
}

func (f *flakyChecker) set(up bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.up = up
}

func (f *flakyChecker) Health(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits++
	if !f.up {
		return errors.New("connection refused")
	}
	return nil
}

type countingDrainer struct {
	drains  int
	pending int
	result  DrainResult
}

func (d *countingDrainer) Drain(context.Context) (DrainResult, error) {
	d.drains++
	return d.result, nil
}

func (d *countingDrainer) Len(context.Context) (int, error) {
	return d.pending, nil
}

func TestMonitor_DrainsOnReconnect(t *testing.T) {
	checker := &flakyChecker{}
	drainer := &countingDrainer{}
	m := NewMonitor(checker, drainer, 0, nil)

	var transitions []bool
	m.OnChange = func(online bool) { transitions = append(transitions, online) }
	ctx := context.Background()

	m.Check(ctx)
	assert.False(t, m.Online())
	assert.Equal(t, 0, drainer.drains)

	checker.set(true)
	m.Check(ctx)
	assert.True(t, m.Online())
	assert.Equal(t, 1, drainer.drains, "offline to online must drain")

	m.Check(ctx)
	assert.Equal(t, 1, drainer.drains, "staying online does not drain again")

	checker.set(false)
	m.Check(ctx)
	checker.set(true)
	m.Check(ctx)
	assert.Equal(t, 2, drainer.drains)
	assert.Equal(t, []bool{true, false, true}, transitions)
}

func TestMonitor_RetriesBlockedDrain(t *testing.T) {
	checker := &flakyChecker{up: true}
	drainer := &countingDrainer{result: DrainResult{Blocked: true, Remaining: 1}}
	m := NewMonitor(checker, drainer, 0, nil)
	ctx := context.Background()

	m.Check(ctx)
	m.Check(ctx)
	assert.Equal(t, 2, drainer.drains)

	drainer.result = DrainResult{Delivered: 1}
	m.Check(ctx)
	m.Check(ctx)
	assert.Equal(t, 3, drainer.drains)
}

func TestMonitor_DrainsEntriesQueuedWhileOnline(t *testing.T) {
	checker := &flakyChecker{up: true}
	drainer := &countingDrainer{}
	m := NewMonitor(checker, drainer, 0, nil)
	ctx := context.Background()

	m.Check(ctx)
	assert.Equal(t, 1, drainer.drains)

	// A submit hit a 5xx while health stayed ok.
	drainer.pending = 1
	m.Check(ctx)
	assert.Equal(t, 2, drainer.drains, "pending entry must drain on the next check")

	drainer.pending = 0
	m.Check(ctx)
	assert.Equal(t, 2, drainer.drains)
}

func TestMonitor_DrainsSubmitDeferredByServerError(t *testing.T) {
	sender := &scriptedSender{script: []error{unavailable()}}
	q := openQueue(t, sender)
	m := NewMonitor(&flakyChecker{up: true}, q, 0, nil)
	ctx := context.Background()

	m.Check(ctx)
	assert.True(t, m.Online())

	queued, err := q.Submit(ctx, enum.QueueOrderCreate, map[string]int{"table_number": 5}, nil)
	require.NoError(t, err)
	require.True(t, queued)

	m.Check(ctx)
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.Len(t, sender.calls, 2)
	assert.Equal(t, sender.calls[0].key, sender.calls[1].key, "replay reuses the submit key")
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	checker := &flakyChecker{up: true}
	drainer := &countingDrainer{}
	m := NewMonitor(checker, drainer, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, m.Run(ctx))
	assert.Equal(t, 1, drainer.drains, "Run probes once before waiting")
}
