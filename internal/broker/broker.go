// Package broker relays committed changes between server instances so every
// instance's websocket hub sees mutations made elsewhere.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/floorline/api/internal/config"
	"github.com/floorline/api/internal/event"
)

// Bridge publishes local changes to the broker and replays remote ones into
// the local publisher until Run's context is done.
type Bridge interface {
	event.Publisher
	Run(ctx context.Context) error
	Close() error
}

// New connects the bridge selected by cfg.Broker. It returns nil for "none".
func New(cfg *config.Config, origin string, local event.Publisher) (Bridge, error) {
	switch cfg.Broker {
	case config.BrokerNone, "":
		return nil, nil
	case config.BrokerAMQP:
		b, err := DialAMQP(cfg.AMQPURL, origin, local)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BrokerNATS:
		b, err := ConnectNATS(cfg.NATSURL, origin, local)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown broker %q", cfg.Broker)
	}
}

func encode(c event.Change, origin string) ([]byte, error) {
	c.Origin = origin
	return json.Marshal(c)
}

// relay decodes a broker message and hands it to local unless this instance
// produced it. Malformed bodies are logged and dropped.
func relay(ctx context.Context, local event.Publisher, body []byte, self string) bool {
	var c event.Change
	if err := json.Unmarshal(body, &c); err != nil {
		log.Printf("WARN: broker: dropping malformed change: %v", err)
		return false
	}
	if c.Origin == self {
		return false
	}
	local.Publish(ctx, c)
	return true
}
