package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/floorline/api/internal/event"
	"github.com/floorline/api/internal/metrics"
)

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub maintains the set of active clients and broadcasts changes to the
// clients subscribed to any of the change's topics.
type Hub struct {
	// Registered clients by topic
	rooms   map[string]map[*Client]bool
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan event.Change

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan event.Change, 256),
	}
}

// Run starts the hub's main loop and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.remove(client)
			}
			h.mu.Unlock()
			return nil

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			for _, topic := range client.topics {
				if h.rooms[topic] == nil {
					h.rooms[topic] = make(map[*Client]bool)
				}
				h.rooms[topic][client] = true
			}
			h.mu.Unlock()
			metrics.WebsocketClients.Inc()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case change := <-h.broadcast:
			message, err := json.Marshal(change)
			if err != nil {
				continue
			}
			message, err = json.Marshal(Event{Type: change.Type, Payload: message})
			if err != nil {
				continue
			}

			h.mu.Lock()
			// A client in several of the change's rooms gets it once.
			targets := make(map[*Client]bool)
			for _, topic := range change.Topics {
				for client := range h.rooms[topic] {
					targets[client] = true
				}
			}
			for client := range targets {
				select {
				case client.send <- message:
				default:
					// Client's send buffer is full, drop it
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove must be called with h.mu held.
func (h *Hub) remove(client *Client) {
	if !h.clients[client] {
		return
	}
	delete(h.clients, client)
	for _, topic := range client.topics {
		if clients, ok := h.rooms[topic]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.rooms, topic)
			}
		}
	}
	close(client.send)
	metrics.WebsocketClients.Dec()
}

// Publish queues a change for delivery. It gives up when ctx is done so a
// stalled hub never blocks a committed mutation.
func (h *Hub) Publish(ctx context.Context, c event.Change) {
	select {
	case h.broadcast <- c:
	case <-ctx.Done():
	}
}

// Subscribers returns the number of clients in a topic room.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[topic])
}
