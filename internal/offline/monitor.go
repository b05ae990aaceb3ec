package offline

import (
	"context"
	"io"
	"log"
	"sync/atomic"
	"time"
)

// HealthChecker probes the backend. Satisfied by *client.Client.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Drainer replays queued commands. Satisfied by *Queue.
type Drainer interface {
	Drain(ctx context.Context) (DrainResult, error)
	Len(ctx context.Context) (int, error)
}

// Monitor polls the health endpoint and drains the queue whenever the
// backend comes back after being unreachable. The first successful probe
// counts as coming back, so entries left from a previous run are sent.
type Monitor struct {
	checker  HealthChecker
	queue    Drainer
	interval time.Duration
	logger   *log.Logger

	online  atomic.Bool
	blocked atomic.Bool
	// OnChange, when set, is called on every connectivity transition.
	OnChange func(online bool)
}

func NewMonitor(checker HealthChecker, queue Drainer, interval time.Duration, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{
		checker:  checker,
		queue:    queue,
		interval: interval,
		logger:   logger,
	}
}

// Online reports the result of the latest probe.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Run probes immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check runs one probe and drains on an offline to online transition. A
// drain that stopped on an unavailable backend is retried on the next probe,
// and so is anything queued while the backend stayed reachable.
func (m *Monitor) Check(ctx context.Context) {
	err := m.checker.Health(ctx)
	now := err == nil
	was := m.online.Swap(now)

	if now != was && m.OnChange != nil {
		m.OnChange(now)
	}
	if !now {
		if was {
			m.logger.Printf("WARN: offline: backend unreachable: %v", err)
		}
		return
	}
	if was && !m.blocked.Load() {
		n, err := m.queue.Len(ctx)
		if err != nil {
			m.logger.Printf("ERROR: offline: count queue: %v", err)
			return
		}
		if n == 0 {
			return
		}
	}

	m.logger.Println("offline: backend reachable, draining queue")
	res, err := m.queue.Drain(ctx)
	m.blocked.Store(err != nil || res.Blocked)
	if err != nil {
		m.logger.Printf("ERROR: offline: drain: %v", err)
		return
	}
	if res.Delivered > 0 || res.Rejected > 0 || res.Blocked {
		m.logger.Printf("offline: drain delivered=%d rejected=%d remaining=%d", res.Delivered, res.Rejected, res.Remaining)
	}
}
