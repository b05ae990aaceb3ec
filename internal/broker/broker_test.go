package broker

import (
	"context"
	"testing"
	"time"

	"github.com/floorline/api/internal/config"
	"github.com/floorline/api/internal/enum"
	"github.com/floorline/api/internal/event"
)

func TestRelay_ForwardsPeerChanges(t *testing.T) {
	rec := &event.Recorder{}
	body, err := encode(event.Change{
		Type:    enum.EventOrderCreated,
		Topics:  []string{enum.TopicOrders, "table:5"},
		OrderID: "o-1",
		At:      time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC),
	}, "instance-a")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if !relay(context.Background(), rec, body, "instance-b") {
		t.Fatal("peer change was not relayed")
	}
	got := rec.Changes()
	if len(got) != 1 {
		t.Fatalf("changes = %d, want 1", len(got))
	}
	if got[0].Origin != "instance-a" || got[0].OrderID != "o-1" || len(got[0].Topics) != 2 {
		t.Errorf("change = %+v", got[0])
	}
}

func TestRelay_SuppressesOwnEcho(t *testing.T) {
	rec := &event.Recorder{}
	body, err := encode(event.Change{Type: enum.EventTableUpdated}, "instance-a")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if relay(context.Background(), rec, body, "instance-a") {
		t.Fatal("own change relayed back to the local hub")
	}
	if len(rec.Changes()) != 0 {
		t.Errorf("changes = %d, want 0", len(rec.Changes()))
	}
}

func TestRelay_DropsMalformed(t *testing.T) {
	rec := &event.Recorder{}
	if relay(context.Background(), rec, []byte("{not json"), "instance-a") {
		t.Fatal("malformed body relayed")
	}
}

func TestNew_None(t *testing.T) {
	b, err := New(&config.Config{Broker: config.BrokerNone}, "x", event.Nop{})
	if err != nil || b != nil {
		t.Fatalf("New(none) = %v, %v", b, err)
	}
	if _, err := New(&config.Config{Broker: "kafka"}, "x", event.Nop{}); err == nil {
		t.Fatal("expected error for unknown broker")
	}
}
