package service

import (
	"context"
	"fmt"
	"time"

	"github.com/floorline/api/internal/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Pool is what the services need from *pgxpool.Pool: transactions for
// mutations and plain queries for reads.
type Pool interface {
	TxBeginner
	database.DBTX
}

// IdempotencyStore defines the DB methods behind the idempotency registry.
type IdempotencyStore interface {
	ClaimIdempotencyKey(ctx context.Context, arg database.ClaimIdempotencyKeyParams) (int64, error)
	GetIdempotencyKey(ctx context.Context, key string) (database.IdempotencyKey, error)
	SaveIdempotencyResult(ctx context.Context, arg database.SaveIdempotencyResultParams) error
	DeleteExpiredIdempotencyKeys(ctx context.Context, before time.Time) (int64, error)
}

// InventoryStore defines the DB methods used by the inventory ledger.
// Satisfied by *database.Queries (and its WithTx variant).
type InventoryStore interface {
	IdempotencyStore
	ListRecipeIngredients(ctx context.Context, menuItemID string) ([]database.MenuItemIngredient, error)
	GetInventoryItem(ctx context.Context, id string) (database.InventoryItem, error)
	ListInventoryItems(ctx context.Context) ([]database.InventoryItem, error)
	ApplyStockDelta(ctx context.Context, arg database.ApplyStockDeltaParams) (database.InventoryItem, error)
	ApplyStockDeltaNonNegative(ctx context.Context, arg database.ApplyStockDeltaParams) (database.InventoryItem, error)
	CreateStockMovement(ctx context.Context, arg database.CreateStockMovementParams) (database.StockMovement, error)
	ListStockMovements(ctx context.Context, arg database.ListStockMovementsParams) ([]database.StockMovement, error)
}

// TableStore defines the DB methods used by the table status controller.
type TableStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetTable(ctx context.Context, number int32) (database.RestaurantTable, error)
	GetTableForUpdate(ctx context.Context, number int32) (database.RestaurantTable, error)
	ListTables(ctx context.Context) ([]database.RestaurantTable, error)
	AssignTableOrder(ctx context.Context, arg database.AssignTableOrderParams) (database.RestaurantTable, error)
	ReleaseTableOrder(ctx context.Context, arg database.ReleaseTableOrderParams) (database.RestaurantTable, error)
	SetTableStatus(ctx context.Context, arg database.SetTableStatusParams) (database.RestaurantTable, error)
}

// OrderStore defines the DB methods needed by the order store. It spans the
// ledger and table methods because order mutations drive both inside one
// transaction.
type OrderStore interface {
	InventoryStore
	TableStore
	GetMenuItemForOrder(ctx context.Context, id string) (database.MenuItem, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderLine(ctx context.Context, arg database.CreateOrderLineParams) (database.OrderLine, error)
	GetOrderLine(ctx context.Context, id uuid.UUID) (database.OrderLine, error)
	GetOrderLineByItem(ctx context.Context, arg database.GetOrderLineByItemParams) (database.OrderLine, error)
	ListOrderLines(ctx context.Context, orderID uuid.UUID) ([]database.OrderLine, error)
	ListActiveOrderLines(ctx context.Context) ([]database.OrderLine, error)
	AddOrderLineQuantity(ctx context.Context, arg database.AddOrderLineQuantityParams) (database.OrderLine, error)
	SetOrderLineQuantity(ctx context.Context, arg database.SetOrderLineQuantityParams) (database.OrderLine, error)
	DeleteOrderLine(ctx context.Context, id uuid.UUID) error
	CountOrderLines(ctx context.Context, orderID uuid.UUID) (int64, error)
	RecalculateOrderTotal(ctx context.Context, arg database.RecalculateOrderTotalParams) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	DeleteOrder(ctx context.Context, arg database.DeleteOrderParams) (int64, error)
	ListActiveOrders(ctx context.Context) ([]database.Order, error)
	ListPaidOrders(ctx context.Context, arg database.ListPaidOrdersParams) ([]database.Order, error)
	InsertOrderStatusLog(ctx context.Context, arg database.InsertOrderStatusLogParams) error
}

// ServiceRequestStore defines the DB methods used by service requests.
type ServiceRequestStore interface {
	IdempotencyStore
	GetTable(ctx context.Context, number int32) (database.RestaurantTable, error)
	CreateServiceRequest(ctx context.Context, arg database.CreateServiceRequestParams) (database.ServiceRequest, error)
	ListOpenServiceRequests(ctx context.Context) ([]database.ServiceRequest, error)
	ResolveServiceRequest(ctx context.Context, id uuid.UUID) (database.ServiceRequest, error)
	GetServiceRequest(ctx context.Context, id uuid.UUID) (database.ServiceRequest, error)
}

// Store factories create a store from a DBTX (pool or tx). This allows the
// services to bind store instances to transactions.
type (
	NewOrderStore          func(db database.DBTX) OrderStore
	NewTableStore          func(db database.DBTX) TableStore
	NewInventoryStore      func(db database.DBTX) InventoryStore
	NewServiceRequestStore func(db database.DBTX) ServiceRequestStore
)

// inTx runs fn inside a transaction and commits when fn returns nil.
func inTx(ctx context.Context, pool TxBeginner, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return persistence("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return persistence("commit tx", err)
	}
	return nil
}

// withRetry re-runs attempt while it reports a stale version, up to
// maxAttempts times, then gives up with ErrConflict.
func withRetry(maxAttempts int, op string, onConflict func(), attempt func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for i := 0; i < maxAttempts; i++ {
		err := attempt()
		if err != errStaleVersion {
			return err
		}
		if onConflict != nil {
			onConflict()
		}
	}
	return fmt.Errorf("%s: %w", op, ErrConflict)
}

func timestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}
