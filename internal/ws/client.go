package ws

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/floorline/api/internal/enum"
	"github.com/floorline/api/internal/event"
	"github.com/floorline/api/internal/middleware"
	"github.com/gorilla/websocket"
)

// Connection timing. pingPeriod must stay below pongWait or idle terminals
// get dropped between pings.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins (we validate via JWT)
	},
}

// staffTopics is what a staff terminal subscribes to when it names none.
var staffTopics = []string{enum.TopicOrders, enum.TopicTables, enum.TopicInventory, enum.TopicServiceRequests}

// Client is one terminal's push connection and the rooms it joined.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	topics []string
	send   chan []byte
}

// ReadPump pumps messages from the WebSocket connection to the hub.
// Clients never send anything; the loop only detects disconnects.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket error: %v", err)
			}
			break
		}
	}
}

// WritePump sends queued frames and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Dropped by the hub.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One event per frame so clients can decode each frame on its own.
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// resolveTopics picks the rooms a caller joins. Customers only ever join
// their own table's room.
func resolveTopics(role string, tableNumber int32, requested string) ([]string, bool) {
	var topics []string
	for _, t := range strings.Split(requested, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}

	if role == enum.RoleCustomer {
		own := event.TableTopic(tableNumber)
		if tableNumber == 0 {
			return nil, false
		}
		for _, t := range topics {
			if t != own {
				return nil, false
			}
		}
		return []string{own}, true
	}

	if len(topics) == 0 {
		return staffTopics, true
	}
	return topics, true
}

// ServeWS handles WebSocket requests from clients.
// Endpoint: WS /ws?token=JWT&topics=orders,table:5
// The route must sit behind middleware.Authenticate.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	topics, ok := resolveTopics(claims.Role, claims.TableNumber, r.URL.Query().Get("topics"))
	if !ok {
		http.Error(w, "topic access denied", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		topics: topics,
		send:   make(chan []byte, 256),
	}
	client.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}
