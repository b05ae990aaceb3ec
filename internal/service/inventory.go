package service

import (
	"context"
	"errors"

	"github.com/floorline/api/internal/database"
	"github.com/floorline/api/internal/enum"
	"github.com/floorline/api/internal/event"
	"github.com/floorline/api/internal/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	defaultMovementLimit = 50
	maxMovementLimit     = 500
)

// InventoryLedger owns stock-on-hand and the append-only movement log.
// Stock is only ever changed together with a movement row, in one transaction.
type InventoryLedger struct {
	pool     Pool
	newStore NewInventoryStore
	notify   event.Publisher
}

// NewInventoryLedger creates a new InventoryLedger.
func NewInventoryLedger(pool Pool, newStore NewInventoryStore, notify event.Publisher) *InventoryLedger {
	if notify == nil {
		notify = event.Nop{}
	}
	return &InventoryLedger{pool: pool, newStore: newStore, notify: notify}
}

// stockEffect is the outcome of one movement, kept for post-commit signals.
type stockEffect struct {
	itemID string
	low    bool
}

// moveForOrderLine applies the recipe of menuItemID for units portions.
// Positive units consume stock, negative units return it. Order deductions may
// take the balance below zero; falling under minimum stock is reported as a
// low-stock effect instead of an error.
func moveForOrderLine(ctx context.Context, store InventoryStore, menuItemID string, units int32, orderID uuid.UUID) ([]stockEffect, error) {
	if units == 0 {
		return nil, nil
	}

	ingredients, err := store.ListRecipeIngredients(ctx, menuItemID)
	if err != nil {
		return nil, persistence("list recipe ingredients", err)
	}

	var note string
	if units < 0 {
		note = "returned from order"
	}

	effects := make([]stockEffect, 0, len(ingredients))
	for _, ing := range ingredients {
		delta := numericToDecimal(ing.QuantityNeeded).Mul(decimal.NewFromInt32(units)).Neg()

		item, err := store.ApplyStockDelta(ctx, database.ApplyStockDeltaParams{
			ID:    ing.InventoryItemID,
			Delta: decimalToNumeric(delta),
		})
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInventoryItemNotFound
		}
		if err != nil {
			return nil, persistence("apply stock delta", err)
		}

		if _, err := store.CreateStockMovement(ctx, database.CreateStockMovementParams{
			InventoryItemID: ing.InventoryItemID,
			MovementType:    enum.MovementOrder,
			Quantity:        decimalToNumeric(delta),
			ReferenceID:     uuidOrNull(orderID),
			Notes:           textOrNull(note),
		}); err != nil {
			return nil, persistence("create stock movement", err)
		}
		metrics.StockMovements.WithLabelValues(enum.MovementOrder).Inc()

		effects = append(effects, stockEffect{
			itemID: item.ID,
			low:    toStockLevel(item).LowStock,
		})
	}
	return effects, nil
}

// deductForOrderLine consumes the ingredients of quantity portions of
// menuItemID against orderID in its own transaction.
func (l *InventoryLedger) deductForOrderLine(ctx context.Context, menuItemID string, quantity int32, orderID uuid.UUID) error {
	if menuItemID == "" {
		return ErrMenuItemRequired
	}
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	var changes changeSet
	err := inTx(ctx, l.pool, func(tx pgx.Tx) error {
		effects, err := moveForOrderLine(ctx, l.newStore(tx), menuItemID, quantity, orderID)
		if err != nil {
			return err
		}
		changes.stock(effects)
		return nil
	})
	if err != nil {
		return err
	}
	changes.publish(ctx, l.notify)
	return nil
}

// AdjustStockRequest is a manual ledger entry. Quantity is signed.
type AdjustStockRequest struct {
	InventoryItemID string
	Quantity        decimal.Decimal
	MovementType    string
	Notes           string
	ChangedBy       string
	IdempotencyKey  string
}

// AdjustStockResult is the new stock level and the movement that produced it.
type AdjustStockResult struct {
	Level    StockLevel    `json:"level"`
	Movement StockMovement `json:"movement"`
}

// validateAdjustment enforces the sign each manual movement type carries.
// The order type is reserved for order deductions.
func validateAdjustment(req AdjustStockRequest) error {
	if req.InventoryItemID == "" {
		return newError(ErrValidation, "inventory_item_id is required")
	}
	switch req.MovementType {
	case enum.MovementPurchase:
		if !req.Quantity.IsPositive() {
			return ErrInvalidStockDelta
		}
	case enum.MovementWaste:
		if !req.Quantity.IsNegative() {
			return ErrInvalidStockDelta
		}
	case enum.MovementAdjustment:
		if req.Quantity.IsZero() {
			return ErrInvalidStockDelta
		}
	default:
		return ErrInvalidMovementType
	}
	return nil
}

// AdjustStock applies a manual movement. Unlike order deductions it refuses a
// negative resulting balance.
func (l *InventoryLedger) AdjustStock(ctx context.Context, req AdjustStockRequest) (*AdjustStockResult, error) {
	if err := validateAdjustment(req); err != nil {
		return nil, err
	}

	var (
		result  AdjustStockResult
		changes changeSet
	)
	err := inTx(ctx, l.pool, func(tx pgx.Tx) error {
		store := l.newStore(tx)

		prior, err := claimKey(ctx, store, req.IdempotencyKey, OpInventoryAdjust)
		if err != nil {
			return err
		}
		if prior != nil {
			result, err = replay[AdjustStockResult](prior)
			return err
		}

		item, err := store.ApplyStockDeltaNonNegative(ctx, database.ApplyStockDeltaParams{
			ID:    req.InventoryItemID,
			Delta: decimalToNumeric(req.Quantity),
		})
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := store.GetInventoryItem(ctx, req.InventoryItemID); errors.Is(getErr, pgx.ErrNoRows) {
				return ErrInventoryItemNotFound
			}
			return ErrStockWouldGoNegative
		}
		if err != nil {
			return persistence("apply stock delta", err)
		}

		notes := req.Notes
		if notes == "" && req.ChangedBy != "" {
			notes = "by " + req.ChangedBy
		}
		mv, err := store.CreateStockMovement(ctx, database.CreateStockMovementParams{
			InventoryItemID: req.InventoryItemID,
			MovementType:    req.MovementType,
			Quantity:        decimalToNumeric(req.Quantity),
			Notes:           textOrNull(notes),
		})
		if err != nil {
			return persistence("create stock movement", err)
		}

		result = AdjustStockResult{Level: toStockLevel(item), Movement: toStockMovement(mv)}
		if err := saveResult(ctx, store, req.IdempotencyKey, result); err != nil {
			return err
		}

		metrics.StockMovements.WithLabelValues(req.MovementType).Inc()
		changes = append(changes, event.Change{
			Type:            enum.EventInventoryAdjusted,
			Topics:          []string{enum.TopicInventory},
			InventoryItemID: item.ID,
		})
		changes.stock([]stockEffect{{itemID: item.ID, low: result.Level.LowStock}})
		return nil
	})
	if err != nil {
		return nil, err
	}

	changes.publish(ctx, l.notify)
	return &result, nil
}

// ListLevels returns every inventory item with its low-stock flags.
func (l *InventoryLedger) ListLevels(ctx context.Context) ([]StockLevel, error) {
	items, err := l.newStore(l.pool).ListInventoryItems(ctx)
	if err != nil {
		return nil, persistence("list inventory items", err)
	}
	out := make([]StockLevel, len(items))
	for i, item := range items {
		out[i] = toStockLevel(item)
	}
	return out, nil
}

// ListMovements returns the newest movements for one item.
func (l *InventoryLedger) ListMovements(ctx context.Context, inventoryItemID string, limit int32) ([]StockMovement, error) {
	if inventoryItemID == "" {
		return nil, newError(ErrValidation, "inventory_item_id is required")
	}
	if limit <= 0 {
		limit = defaultMovementLimit
	}
	if limit > maxMovementLimit {
		limit = maxMovementLimit
	}

	store := l.newStore(l.pool)
	if _, err := store.GetInventoryItem(ctx, inventoryItemID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInventoryItemNotFound
		}
		return nil, persistence("get inventory item", err)
	}

	rows, err := store.ListStockMovements(ctx, database.ListStockMovementsParams{
		InventoryItemID: inventoryItemID,
		Limit:           limit,
	})
	if err != nil {
		return nil, persistence("list stock movements", err)
	}
	out := make([]StockMovement, len(rows))
	for i, m := range rows {
		out[i] = toStockMovement(m)
	}
	return out, nil
}
