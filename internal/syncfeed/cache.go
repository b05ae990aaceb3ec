package syncfeed

import (
	"sort"
	"sync"
	"time"

	"github.com/floorline/api/internal/enum"
	"github.com/floorline/api/internal/service"
	"github.com/google/uuid"
)

// Snapshot is one authoritative read of the shared state.
type Snapshot struct {
	Orders    []service.Order
	Tables    []service.Table
	FetchedAt time.Time
}

// Cache is a client's local view. Local writes are provisional: the next
// Replace overwrites them with whatever the server returned.
type Cache struct {
	mu        sync.RWMutex
	orders    map[uuid.UUID]service.Order
	tables    map[int32]service.Table
	fetchedAt time.Time
}

func NewCache() *Cache {
	return &Cache{
		orders: make(map[uuid.UUID]service.Order),
		tables: make(map[int32]service.Table),
	}
}

// Replace swaps in a full snapshot.
func (c *Cache) Replace(s Snapshot) {
	orders := make(map[uuid.UUID]service.Order, len(s.Orders))
	for _, o := range s.Orders {
		orders[o.ID] = o
	}
	tables := make(map[int32]service.Table, len(s.Tables))
	for _, t := range s.Tables {
		tables[t.Number] = t
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders = orders
	// A fetcher that cannot read tables (customer devices) keeps the last set.
	if s.Tables != nil {
		c.tables = tables
	}
	c.fetchedAt = s.FetchedAt
}

// ApplyLocal records an order the caller just mutated, before the server has
// confirmed it to anyone else. Paid orders leave the active view.
func (c *Cache) ApplyLocal(o service.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o.Status == enum.OrderStatusPaid {
		delete(c.orders, o.ID)
		return
	}
	c.orders[o.ID] = o
}

// ActiveOrders returns the cached orders, oldest first.
func (c *Cache) ActiveOrders() []service.Order {
	c.mu.RLock()
	out := make([]service.Order, 0, len(c.orders))
	for _, o := range c.orders {
		out = append(out, o)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Tables returns the cached tables by number.
func (c *Cache) Tables() []service.Table {
	c.mu.RLock()
	out := make([]service.Table, 0, len(c.tables))
	for _, t := range c.tables {
		out = append(out, t)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (c *Cache) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}
