// Package syncfeed keeps a client's cache close to the server: a websocket
// subscription signals that something changed, and a poll ticker re-fetches
// regardless so a missed signal heals within one interval. Push payloads are
// never applied as diffs; every signal ends in a full re-fetch.
package syncfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/floorline/api/internal/client"
	"github.com/floorline/api/internal/service"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	minReconnect = time.Second
	maxReconnect = 30 * time.Second
)

// Fetcher reads the authoritative state.
type Fetcher interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

// StaffFetcher reads active orders and tables through the RPC client.
type StaffFetcher struct {
	Client *client.Client
}

func (f StaffFetcher) Fetch(ctx context.Context) (Snapshot, error) {
	orders, err := f.Client.ActiveOrders(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch active orders: %w", err)
	}
	tables, err := f.Client.Tables(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch tables: %w", err)
	}
	if tables == nil {
		tables = []service.Table{}
	}
	return Snapshot{Orders: orders, Tables: tables, FetchedAt: time.Now()}, nil
}

// TableFetcher reads one table and its current order. Customer devices use
// it since they may not list other tables' orders.
type TableFetcher struct {
	Client      *client.Client
	TableNumber int32
}

func (f TableFetcher) Fetch(ctx context.Context) (Snapshot, error) {
	table, err := f.Client.Table(ctx, f.TableNumber)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch table %d: %w", f.TableNumber, err)
	}
	snap := Snapshot{Tables: []service.Table{*table}, Orders: []service.Order{}, FetchedAt: time.Now()}
	if table.CurrentOrderID != nil {
		order, err := f.Client.GetOrder(ctx, table.CurrentOrderID.String())
		if err != nil {
			return Snapshot{}, fmt.Errorf("fetch order %s: %w", table.CurrentOrderID, err)
		}
		snap.Orders = append(snap.Orders, *order)
	}
	return snap, nil
}

// Signal is a decoded push frame.
type Signal struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Feed runs the push subscription and the poll loop.
type Feed struct {
	fetcher  Fetcher
	wsURL    string
	dialer   *websocket.Dialer
	interval time.Duration
	cache    *Cache
	logger   *log.Logger

	refresh chan struct{}

	// OnRefresh, when set, is called after every successful re-fetch.
	OnRefresh func(Snapshot)
	// OnSignal, when set, is called for every push frame received.
	OnSignal func(Signal)
}

// New creates a feed. An empty wsURL disables the push channel and leaves
// only polling.
func New(fetcher Fetcher, wsURL string, interval time.Duration, logger *log.Logger) *Feed {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if interval <= 0 {
		interval = 4 * time.Second
	}
	return &Feed{
		fetcher:  fetcher,
		wsURL:    wsURL,
		dialer:   websocket.DefaultDialer,
		interval: interval,
		cache:    NewCache(),
		logger:   logger,
		refresh:  make(chan struct{}, 1),
	}
}

func (f *Feed) Cache() *Cache {
	return f.cache
}

// Trigger asks for a re-fetch. Signals arriving while one is pending
// collapse into it.
func (f *Feed) Trigger() {
	select {
	case f.refresh <- struct{}{}:
	default:
	}
}

// Refresh fetches once and replaces the cache.
func (f *Feed) Refresh(ctx context.Context) error {
	snap, err := f.fetcher.Fetch(ctx)
	if err != nil {
		return err
	}
	f.cache.Replace(snap)
	if f.OnRefresh != nil {
		f.OnRefresh(snap)
	}
	return nil
}

// Run fetches immediately, then keeps polling and listening until ctx is
// done.
func (f *Feed) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return f.poll(gctx) })
	if f.wsURL != "" {
		g.Go(func() error { return f.listen(gctx) })
	}
	return g.Wait()
}

func (f *Feed) poll(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.refreshLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-f.refresh:
		}
		f.refreshLogged(ctx)
	}
}

func (f *Feed) refreshLogged(ctx context.Context) {
	if err := f.Refresh(ctx); err != nil && ctx.Err() == nil {
		f.logger.Printf("WARN: syncfeed: refresh: %v", err)
	}
}

// listen keeps a websocket open, reconnecting with backoff.
func (f *Feed) listen(ctx context.Context) error {
	backoff := minReconnect
	for {
		connected, err := f.subscribe(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff = minReconnect
			// Anything pushed while we were reconnecting is lost; re-fetch.
			f.Trigger()
		}
		f.logger.Printf("WARN: syncfeed: push channel: %v (retry in %s)", err, backoff)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxReconnect {
			backoff = maxReconnect
		}
	}
}

func (f *Feed) subscribe(ctx context.Context) (bool, error) {
	conn, _, err := f.dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	f.Trigger()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		var sig Signal
		if err := json.Unmarshal(data, &sig); err != nil {
			f.logger.Printf("WARN: syncfeed: malformed push frame: %v", err)
		} else if f.OnSignal != nil {
			f.OnSignal(sig)
		}
		f.Trigger()
	}
}
