package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/floorline/api/internal/database"
	"github.com/floorline/api/internal/metrics"
	"github.com/jackc/pgx/v5"
)

// Operations recorded in the idempotency registry.
const (
	OpOrderCreate          = "orders.create"
	OpOrderUpdateStatus    = "orders.updateStatus"
	OpOrderAddItem         = "orders.addItem"
	OpOrderUpdateItemQty   = "orders.updateItemQty"
	OpInventoryAdjust      = "inventory.adjustStock"
	OpServiceRequestCreate = "serviceRequests.create"
)

// claimKey registers key for op inside the caller's transaction. When the key
// was already used, the stored result is returned and the caller must replay
// it instead of mutating again. An empty key disables de-duplication.
func claimKey(ctx context.Context, store IdempotencyStore, key, op string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}

	n, err := store.ClaimIdempotencyKey(ctx, database.ClaimIdempotencyKeyParams{
		Key:       key,
		Operation: op,
	})
	if err != nil {
		return nil, persistence("claim idempotency key", err)
	}
	if n == 1 {
		return nil, nil
	}

	rec, err := store.GetIdempotencyKey(ctx, key)
	if errors.Is(err, pgx.ErrNoRows) {
		// Swept between the claim and the read.
		return nil, fmt.Errorf("idempotency key %s: %w", key, ErrConflict)
	}
	if err != nil {
		return nil, persistence("get idempotency key", err)
	}
	if rec.Operation != op {
		return nil, ErrIdempotencyMismatch
	}
	if len(rec.Result) == 0 {
		return nil, fmt.Errorf("idempotency key %s: %w", key, ErrConflict)
	}

	metrics.IdempotentReplays.WithLabelValues(op).Inc()
	return rec.Result, nil
}

// saveResult records v as the answer for key in the same transaction that
// produced it.
func saveResult(ctx context.Context, store IdempotencyStore, key string, v any) error {
	if key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal idempotent result: %w", err)
	}
	if err := store.SaveIdempotencyResult(ctx, database.SaveIdempotencyResultParams{
		Key:    key,
		Result: data,
	}); err != nil {
		return persistence("save idempotency result", err)
	}
	return nil
}

func replay[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode idempotent result: %w", err)
	}
	return v, nil
}

// IdempotencySweeper deletes registry entries older than the retention window.
type IdempotencySweeper struct {
	store     IdempotencyStore
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
}

// NewIdempotencySweeper creates a sweeper that runs every interval.
func NewIdempotencySweeper(store IdempotencyStore, retention, interval time.Duration) *IdempotencySweeper {
	return &IdempotencySweeper{
		store:     store,
		retention: retention,
		interval:  interval,
		now:       time.Now,
	}
}

// Sweep removes expired keys once and reports how many were deleted.
func (s *IdempotencySweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpiredIdempotencyKeys(ctx, s.now().Add(-s.retention))
	if err != nil {
		return 0, persistence("delete expired idempotency keys", err)
	}
	return n, nil
}

// Run sweeps on every tick until ctx is cancelled.
func (s *IdempotencySweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				log.Printf("ERROR: idempotency sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("idempotency sweep: removed %d expired keys", n)
			}
		}
	}
}
