// Package offline buffers mutating commands a client could not deliver and
// replays them, oldest first, once the backend is reachable again.
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/floorline/api/internal/client"
	"github.com/floorline/api/internal/enum"
	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	type            TEXT NOT NULL,
	payload         BLOB NOT NULL,
	idempotency_key TEXT NOT NULL,
	enqueued_at     TEXT NOT NULL,
	attempts        INTEGER NOT NULL DEFAULT 0,
	last_error      TEXT
);

CREATE TABLE IF NOT EXISTS rejected (
	id              INTEGER PRIMARY KEY,
	type            TEXT NOT NULL,
	payload         BLOB NOT NULL,
	idempotency_key TEXT NOT NULL,
	enqueued_at     TEXT NOT NULL,
	status          INTEGER NOT NULL,
	reason          TEXT NOT NULL,
	rejected_at     TEXT NOT NULL
);
`

// operations maps a queue entry type to the RPC operation that delivers it.
var operations = map[string]string{
	enum.QueueOrderCreate:    "orders.create",
	enum.QueueStatusUpdate:   "orders.updateStatus",
	enum.QueueServiceRequest: "serviceRequests.create",
}

var ErrUnknownType = errors.New("unknown queue entry type")

// Sender delivers one command. Satisfied by *client.Client.
type Sender interface {
	Call(ctx context.Context, op string, in, out any, idempotencyKey string) error
}

// Entry is a command waiting for delivery.
type Entry struct {
	ID             int64           `json:"id"`
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotency_key"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
	Attempts       int             `json:"attempts"`
	LastError      string          `json:"last_error,omitempty"`
}

// Rejection is an entry the server refused during a drain. It is kept for
// staff to inspect and never replayed.
type Rejection struct {
	ID             int64           `json:"id"`
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotency_key"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
	Status         int             `json:"status"`
	Reason         string          `json:"reason"`
	RejectedAt     time.Time       `json:"rejected_at"`
}

// DrainResult summarises one drain pass.
type DrainResult struct {
	Delivered int  `json:"delivered"`
	Rejected  int  `json:"rejected"`
	Remaining int  `json:"remaining"`
	Blocked   bool `json:"blocked"`
}

// Queue is a durable FIFO of undelivered commands on local SQLite.
type Queue struct {
	pool   *sqlitex.Pool
	sender Sender
	logger *log.Logger
	now    func() time.Time

	// drainMu keeps two drains from delivering the same entry.
	drainMu sync.Mutex
}

// Open opens (or creates) the queue database at path.
func Open(path string, sender Sender, logger *log.Logger) (*Queue, error) {
	if path == "" {
		return nil, fmt.Errorf("offline queue: path is required")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    2,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("offline queue: open %s: %w", path, err)
	}
	return &Queue{pool: pool, sender: sender, logger: logger, now: time.Now}, nil
}

func prepareConn(conn *sqlite.Conn) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return sqlitex.ExecuteScript(conn, schema, nil)
}

func (q *Queue) Close() error {
	return q.pool.Close()
}

// Enqueue stores a command under a fresh idempotency key.
func (q *Queue) Enqueue(ctx context.Context, typ string, payload any) (Entry, error) {
	return q.EnqueueWithKey(ctx, typ, client.NewIdempotencyKey(), payload)
}

// EnqueueWithKey stores a command that may already have been sent once
// under key, so the server can recognise a replay.
func (q *Queue) EnqueueWithKey(ctx context.Context, typ, key string, payload any) (Entry, error) {
	if _, ok := operations[typ]; !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	if key == "" {
		key = uuid.NewString()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}

	conn, err := q.pool.Take(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("offline queue: take: %w", err)
	}
	defer q.pool.Put(conn)

	entry := Entry{
		Type:           typ,
		Payload:        data,
		IdempotencyKey: key,
		EnqueuedAt:     q.now().UTC(),
	}
	err = sqlitex.Execute(conn,
		`INSERT INTO entries (type, payload, idempotency_key, enqueued_at) VALUES (?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{typ, []byte(data), key, entry.EnqueuedAt.Format(time.RFC3339Nano)}})
	if err != nil {
		return Entry{}, fmt.Errorf("offline queue: insert: %w", err)
	}
	entry.ID = conn.LastInsertRowID()
	return entry, nil
}

// Submit sends a command now and queues it only when the backend is
// unavailable or refused it for a passing reason. Other refusals are
// returned as is and never queued. So is an expired token, which the
// operator has to fix before anything can be delivered.
func (q *Queue) Submit(ctx context.Context, typ string, payload, out any) (queued bool, err error) {
	op, ok := operations[typ]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}

	key := client.NewIdempotencyKey()
	err = q.sender.Call(ctx, op, payload, out, key)
	if err == nil || !deferrable(err) {
		return false, err
	}

	if _, qerr := q.EnqueueWithKey(ctx, typ, key, payload); qerr != nil {
		return false, fmt.Errorf("queue after %v: %w", err, qerr)
	}
	q.logger.Printf("WARN: offline queue: %s queued: %v", typ, err)
	return true, nil
}

func deferrable(err error) bool {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable() && apiErr.Status != http.StatusUnauthorized
	}
	return client.IsUnavailable(err)
}

// Len counts queued entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	return q.count(ctx)
}

// Pending lists queued entries in delivery order.
func (q *Queue) Pending(ctx context.Context) ([]Entry, error) {
	conn, err := q.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("offline queue: take: %w", err)
	}
	defer q.pool.Put(conn)

	var entries []Entry
	err = sqlitex.Execute(conn,
		`SELECT id, type, payload, idempotency_key, enqueued_at, attempts, COALESCE(last_error, '') FROM entries ORDER BY id`,
		&sqlitex.ExecOptions{ResultFunc: func(stmt *sqlite.Stmt) error {
			e, err := scanEntry(stmt)
			if err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		}})
	if err != nil {
		return nil, fmt.Errorf("offline queue: list: %w", err)
	}
	return entries, nil
}

// Rejected lists dead-lettered entries, oldest first.
func (q *Queue) Rejected(ctx context.Context) ([]Rejection, error) {
	conn, err := q.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("offline queue: take: %w", err)
	}
	defer q.pool.Put(conn)

	var out []Rejection
	err = sqlitex.Execute(conn,
		`SELECT id, type, payload, idempotency_key, enqueued_at, status, reason, rejected_at FROM rejected ORDER BY id`,
		&sqlitex.ExecOptions{ResultFunc: func(stmt *sqlite.Stmt) error {
			enqueued, err := time.Parse(time.RFC3339Nano, stmt.ColumnText(4))
			if err != nil {
				return err
			}
			rejected, err := time.Parse(time.RFC3339Nano, stmt.ColumnText(7))
			if err != nil {
				return err
			}
			out = append(out, Rejection{
				ID:             stmt.ColumnInt64(0),
				Type:           stmt.ColumnText(1),
				Payload:        columnBytes(stmt, 2),
				IdempotencyKey: stmt.ColumnText(3),
				EnqueuedAt:     enqueued,
				Status:         stmt.ColumnInt(5),
				Reason:         stmt.ColumnText(6),
				RejectedAt:     rejected,
			})
			return nil
		}})
	if err != nil {
		return nil, fmt.Errorf("offline queue: list rejected: %w", err)
	}
	return out, nil
}

// Drain delivers entries in enqueue order. It stops at the first entry the
// backend is unavailable for, or refuses only for now (see
// client.APIError.Retryable), so later entries never overtake it. Entries
// the server refuses for good move to the rejected table. Only local storage
// failures are returned as errors; delivery failures are logged.
func (q *Queue) Drain(ctx context.Context) (DrainResult, error) {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	var res DrainResult
	for {
		entry, ok, err := q.oldest(ctx)
		if err != nil {
			return res, err
		}
		if !ok {
			return res, nil
		}

		err = q.sender.Call(ctx, operations[entry.Type], entry.Payload, nil, entry.IdempotencyKey)

		var apiErr *client.APIError
		refused := errors.As(err, &apiErr) && !apiErr.Retryable()
		switch {
		case err == nil:
			if err := q.remove(ctx, entry.ID); err != nil {
				return res, err
			}
			res.Delivered++

		case refused:
			q.logger.Printf("WARN: offline queue: %s entry %d rejected: %v", entry.Type, entry.ID, err)
			if err := q.reject(ctx, entry, apiErr); err != nil {
				return res, err
			}
			res.Rejected++

		default:
			q.logger.Printf("ERROR: offline queue: deliver %s entry %d: %v", entry.Type, entry.ID, err)
			if err := q.recordAttempt(ctx, entry.ID, err); err != nil {
				return res, err
			}
			res.Blocked = true
			res.Remaining, err = q.count(ctx)
			return res, err
		}
	}
}

func (q *Queue) oldest(ctx context.Context) (Entry, bool, error) {
	conn, err := q.pool.Take(ctx)
	if err != nil {
		return Entry{}, false, fmt.Errorf("offline queue: take: %w", err)
	}
	defer q.pool.Put(conn)

	var (
		entry Entry
		found bool
	)
	err = sqlitex.Execute(conn,
		`SELECT id, type, payload, idempotency_key, enqueued_at, attempts, COALESCE(last_error, '') FROM entries ORDER BY id LIMIT 1`,
		&sqlitex.ExecOptions{ResultFunc: func(stmt *sqlite.Stmt) error {
			entry, err = scanEntry(stmt)
			found = err == nil
			return err
		}})
	if err != nil {
		return Entry{}, false, fmt.Errorf("offline queue: read oldest: %w", err)
	}
	return entry, found, nil
}

func (q *Queue) remove(ctx context.Context, id int64) error {
	conn, err := q.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("offline queue: take: %w", err)
	}
	defer q.pool.Put(conn)

	if err := sqlitex.Execute(conn, `DELETE FROM entries WHERE id = ?`, &sqlitex.ExecOptions{Args: []any{id}}); err != nil {
		return fmt.Errorf("offline queue: delete %d: %w", id, err)
	}
	return nil
}

func (q *Queue) reject(ctx context.Context, entry Entry, apiErr *client.APIError) (err error) {
	conn, err := q.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("offline queue: take: %w", err)
	}
	defer q.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("offline queue: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn,
		`INSERT INTO rejected (id, type, payload, idempotency_key, enqueued_at, status, reason, rejected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			entry.ID,
			entry.Type,
			[]byte(entry.Payload),
			entry.IdempotencyKey,
			entry.EnqueuedAt.Format(time.RFC3339Nano),
			apiErr.Status,
			apiErr.Message,
			q.now().UTC().Format(time.RFC3339Nano),
		}})
	if err != nil {
		return fmt.Errorf("offline queue: dead-letter %d: %w", entry.ID, err)
	}
	if err = sqlitex.Execute(conn, `DELETE FROM entries WHERE id = ?`, &sqlitex.ExecOptions{Args: []any{entry.ID}}); err != nil {
		return fmt.Errorf("offline queue: delete %d: %w", entry.ID, err)
	}
	return nil
}

func (q *Queue) recordAttempt(ctx context.Context, id int64, cause error) error {
	conn, err := q.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("offline queue: take: %w", err)
	}
	defer q.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`UPDATE entries SET attempts = attempts + 1, last_error = ? WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{cause.Error(), id}})
	if err != nil {
		return fmt.Errorf("offline queue: record attempt %d: %w", id, err)
	}
	return nil
}

func (q *Queue) count(ctx context.Context) (int, error) {
	conn, err := q.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("offline queue: take: %w", err)
	}
	defer q.pool.Put(conn)

	var n int
	err = sqlitex.Execute(conn, `SELECT COUNT(*) FROM entries`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			n = stmt.ColumnInt(0)
			return nil
		}})
	if err != nil {
		return 0, fmt.Errorf("offline queue: count: %w", err)
	}
	return n, nil
}

func scanEntry(stmt *sqlite.Stmt) (Entry, error) {
	enqueued, err := time.Parse(time.RFC3339Nano, stmt.ColumnText(4))
	if err != nil {
		return Entry{}, fmt.Errorf("parse enqueued_at: %w", err)
	}
	return Entry{
		ID:             stmt.ColumnInt64(0),
		Type:           stmt.ColumnText(1),
		Payload:        columnBytes(stmt, 2),
		IdempotencyKey: stmt.ColumnText(3),
		EnqueuedAt:     enqueued,
		Attempts:       stmt.ColumnInt(5),
		LastError:      stmt.ColumnText(6),
	}, nil
}

func columnBytes(stmt *sqlite.Stmt, col int) []byte {
	buf := make([]byte, stmt.ColumnLen(col))
	stmt.ColumnBytes(col, buf)
	return buf
}
