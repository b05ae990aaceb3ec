// Package event carries change signals from the mutation paths to the push
// channel. A Change says "something changed, re-fetch"; it is never applied as
// a diff by clients.
package event

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Change is one committed mutation.
type Change struct {
	Type             string    `json:"type"`
	Topics           []string  `json:"topics"`
	OrderID          string    `json:"order_id,omitempty"`
	TableNumber      int32     `json:"table_number,omitempty"`
	InventoryItemID  string    `json:"inventory_item_id,omitempty"`
	ServiceRequestID string    `json:"service_request_id,omitempty"`
	Origin           string    `json:"origin,omitempty"`
	At               time.Time `json:"at"`
}

// Publisher fans a Change out to interested subscribers. Implementations must
// not block the caller for longer than ctx allows.
type Publisher interface {
	Publish(ctx context.Context, c Change)
}

// Nop discards every change.
type Nop struct{}

func (Nop) Publish(context.Context, Change) {}

// Multi publishes to each publisher in order.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, c Change) {
	for _, p := range m {
		p.Publish(ctx, c)
	}
}

// TableTopic is the per-table subscription key, e.g. "table:5".
func TableTopic(number int32) string {
	return "table:" + strconv.Itoa(int(number))
}

// Recorder keeps published changes in memory. Used by tests.
type Recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *Recorder) Publish(_ context.Context, c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

// Changes returns a copy of everything recorded so far.
func (r *Recorder) Changes() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Change(nil), r.changes...)
}

// Types returns the recorded change types in publish order.
func (r *Recorder) Types() []string {
	changes := r.Changes()
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.Type
	}
	return out
}
