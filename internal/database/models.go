package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type MenuItem struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Price     pgtype.Numeric `json:"price"`
	Available bool           `json:"available"`
	CreatedAt time.Time      `json:"created_at"`
}

type MenuItemIngredient struct {
	MenuItemID      string         `json:"menu_item_id"`
	InventoryItemID string         `json:"inventory_item_id"`
	QuantityNeeded  pgtype.Numeric `json:"quantity_needed"`
}

type InventoryItem struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Unit         string         `json:"unit"`
	CurrentStock pgtype.Numeric `json:"current_stock"`
	MinimumStock pgtype.Numeric `json:"minimum_stock"`
	CostPerUnit  pgtype.Numeric `json:"cost_per_unit"`
	Version      int64          `json:"version"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type Order struct {
	ID          uuid.UUID          `json:"id"`
	TableNumber int32              `json:"table_number"`
	Status      string             `json:"status"`
	Total       pgtype.Numeric     `json:"total"`
	WaiterName  pgtype.Text        `json:"waiter_name"`
	Version     int64              `json:"version"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	PaidAt      pgtype.Timestamptz `json:"paid_at"`
}

type OrderLine struct {
	ID         uuid.UUID      `json:"id"`
	OrderID    uuid.UUID      `json:"order_id"`
	MenuItemID string         `json:"menu_item_id"`
	Quantity   int32          `json:"quantity"`
	Notes      pgtype.Text    `json:"notes"`
	UnitPrice  pgtype.Numeric `json:"unit_price"`
	CreatedAt  time.Time      `json:"created_at"`
}

type OrderStatusLog struct {
	ID         int64       `json:"id"`
	OrderID    uuid.UUID   `json:"order_id"`
	FromStatus pgtype.Text `json:"from_status"`
	ToStatus   string      `json:"to_status"`
	ChangedBy  pgtype.Text `json:"changed_by"`
	ChangedAt  time.Time   `json:"changed_at"`
}

type RestaurantTable struct {
	Number         int32              `json:"number"`
	Status         string             `json:"status"`
	CurrentOrderID pgtype.UUID        `json:"current_order_id"`
	Capacity       int32              `json:"capacity"`
	ReservedFor    pgtype.Text        `json:"reserved_for"`
	LastCleaned    pgtype.Timestamptz `json:"last_cleaned"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

type StockMovement struct {
	ID              uuid.UUID      `json:"id"`
	InventoryItemID string         `json:"inventory_item_id"`
	MovementType    string         `json:"movement_type"`
	Quantity        pgtype.Numeric `json:"quantity"`
	ReferenceID     pgtype.UUID    `json:"reference_id"`
	Notes           pgtype.Text    `json:"notes"`
	CreatedAt       time.Time      `json:"created_at"`
}

type ServiceRequest struct {
	ID          uuid.UUID          `json:"id"`
	TableNumber int32              `json:"table_number"`
	Kind        string             `json:"kind"`
	Notes       pgtype.Text        `json:"notes"`
	Status      string             `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	ResolvedAt  pgtype.Timestamptz `json:"resolved_at"`
}

type IdempotencyKey struct {
	Key       string    `json:"key"`
	Operation string    `json:"operation"`
	Result    []byte    `json:"result"`
	CreatedAt time.Time `json:"created_at"`
}
