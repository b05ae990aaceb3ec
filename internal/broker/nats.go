package broker

import (
	"context"
	"fmt"
	"log"

	"github.com/floorline/api/internal/event"
	"github.com/floorline/api/internal/metrics"
	"github.com/nats-io/nats.go"
)

const natsSubject = "floorline.changes"

// NATS fans changes out on a plain core-NATS subject.
type NATS struct {
	conn   *nats.Conn
	origin string
	local  event.Publisher
}

func ConnectNATS(url, origin string, local event.Publisher) (*NATS, error) {
	conn, err := nats.Connect(url, nats.Name("floorline-api-"+origin), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATS{conn: conn, origin: origin, local: local}, nil
}

func (n *NATS) Publish(_ context.Context, c event.Change) {
	body, err := encode(c, n.origin)
	if err != nil {
		log.Printf("ERROR: broker: encode change: %v", err)
		return
	}
	if err := n.conn.Publish(natsSubject, body); err != nil {
		metrics.BrokerPublishFailures.WithLabelValues("nats").Inc()
		log.Printf("ERROR: broker: publish %s: %v", c.Type, err)
	}
}

func (n *NATS) Run(ctx context.Context) error {
	sub, err := n.conn.Subscribe(natsSubject, func(msg *nats.Msg) {
		relay(ctx, n.local, msg.Data, n.origin)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", natsSubject, err)
	}
	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}

func (n *NATS) Close() error {
	if n.conn.IsClosed() {
		return nil
	}
	return n.conn.Drain()
}
