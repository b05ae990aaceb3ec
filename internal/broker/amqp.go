package broker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/floorline/api/internal/event"
	"github.com/floorline/api/internal/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	amqpExchange       = "floorline.changes"
	amqpPublishTimeout = 5 * time.Second
)

// AMQP fans changes out through a RabbitMQ fanout exchange. Each instance
// consumes from its own exclusive queue bound to the exchange.
type AMQP struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	origin string
	local  event.Publisher
	mu     sync.Mutex
}

func DialAMQP(url, origin string, local event.Publisher) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(amqpExchange, "fanout", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQP{conn: conn, ch: ch, origin: origin, local: local}, nil
}

// Publish never fails the caller: the change is already committed and the
// peers' poll loop recovers anything the broker loses.
func (a *AMQP) Publish(ctx context.Context, c event.Change) {
	body, err := encode(c, a.origin)
	if err != nil {
		log.Printf("ERROR: broker: encode change: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, amqpPublishTimeout)
	defer cancel()

	a.mu.Lock()
	err = a.ch.PublishWithContext(ctx,
		amqpExchange, // exchange
		"",           // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   time.Now(),
			AppId:       a.origin,
		})
	a.mu.Unlock()
	if err != nil {
		metrics.BrokerPublishFailures.WithLabelValues("amqp").Inc()
		log.Printf("ERROR: broker: publish %s: %v", c.Type, err)
	}
}

func (a *AMQP) Run(ctx context.Context) error {
	q, err := a.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := a.ch.QueueBind(q.Name, "", amqpExchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	deliveries, err := a.ch.ConsumeWithContext(ctx, q.Name, a.origin, true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("rabbitmq delivery channel closed")
			}
			relay(ctx, a.local, d.Body, a.origin)
		}
	}
}

func (a *AMQP) Close() error {
	if a.ch != nil && !a.ch.IsClosed() {
		if err := a.ch.Close(); err != nil {
			return fmt.Errorf("close rabbitmq channel: %w", err)
		}
	}
	if a.conn != nil && !a.conn.IsClosed() {
		if err := a.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}
