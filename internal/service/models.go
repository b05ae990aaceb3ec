package service

import (
	"time"

	"github.com/floorline/api/internal/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Order is the canonical order view returned to callers.
type Order struct {
	ID          uuid.UUID       `json:"id"`
	TableNumber int32           `json:"table_number"`
	Status      string          `json:"status"`
	Total       decimal.Decimal `json:"total"`
	WaiterName  *string         `json:"waiter_name"`
	Version     int64           `json:"version"`
	Lines       []OrderLine     `json:"lines,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	PaidAt      *time.Time      `json:"paid_at"`
}

// OrderLine carries the unit price captured when the line was created.
type OrderLine struct {
	ID         uuid.UUID       `json:"id"`
	OrderID    uuid.UUID       `json:"order_id"`
	MenuItemID string          `json:"menu_item_id"`
	Quantity   int32           `json:"quantity"`
	Notes      *string         `json:"notes"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

type Table struct {
	Number         int32      `json:"number"`
	Status         string     `json:"status"`
	CurrentOrderID *uuid.UUID `json:"current_order_id"`
	Capacity       int32      `json:"capacity"`
	ReservedFor    *string    `json:"reserved_for"`
	LastCleaned    *time.Time `json:"last_cleaned"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// StockLevel is an inventory item with its low-stock signal.
type StockLevel struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	MinimumStock decimal.Decimal `json:"minimum_stock"`
	CostPerUnit  decimal.Decimal `json:"cost_per_unit"`
	LowStock     bool            `json:"low_stock"`
	OutOfStock   bool            `json:"out_of_stock"`
	Version      int64           `json:"version"`
}

type StockMovement struct {
	ID              uuid.UUID       `json:"id"`
	InventoryItemID string          `json:"inventory_item_id"`
	MovementType    string          `json:"movement_type"`
	Quantity        decimal.Decimal `json:"quantity"`
	ReferenceID     *uuid.UUID      `json:"reference_id"`
	Notes           *string         `json:"notes"`
	CreatedAt       time.Time       `json:"created_at"`
}

type ServiceRequest struct {
	ID          uuid.UUID  `json:"id"`
	TableNumber int32      `json:"table_number"`
	Kind        string     `json:"kind"`
	Notes       *string    `json:"notes"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at"`
}

// --- Conversions ---

func toOrder(o database.Order, lines []database.OrderLine) Order {
	out := Order{
		ID:          o.ID,
		TableNumber: o.TableNumber,
		Status:      o.Status,
		Total:       numericToDecimal(o.Total),
		WaiterName:  textPtr(o.WaiterName),
		Version:     o.Version,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
		PaidAt:      timePtr(o.PaidAt),
	}
	if lines != nil {
		out.Lines = make([]OrderLine, len(lines))
		for i, l := range lines {
			out.Lines[i] = toOrderLine(l)
		}
	}
	return out
}

func toOrderLine(l database.OrderLine) OrderLine {
	price := numericToDecimal(l.UnitPrice)
	return OrderLine{
		ID:         l.ID,
		OrderID:    l.OrderID,
		MenuItemID: l.MenuItemID,
		Quantity:   l.Quantity,
		Notes:      textPtr(l.Notes),
		UnitPrice:  price,
		Subtotal:   price.Mul(decimal.NewFromInt32(l.Quantity)),
	}
}

func toTable(t database.RestaurantTable) Table {
	out := Table{
		Number:      t.Number,
		Status:      t.Status,
		Capacity:    t.Capacity,
		ReservedFor: textPtr(t.ReservedFor),
		LastCleaned: timePtr(t.LastCleaned),
		UpdatedAt:   t.UpdatedAt,
	}
	if t.CurrentOrderID.Valid {
		id := uuid.UUID(t.CurrentOrderID.Bytes)
		out.CurrentOrderID = &id
	}
	return out
}

func toStockLevel(i database.InventoryItem) StockLevel {
	current := numericToDecimal(i.CurrentStock)
	minimum := numericToDecimal(i.MinimumStock)
	return StockLevel{
		ID:           i.ID,
		Name:         i.Name,
		Unit:         i.Unit,
		CurrentStock: current,
		MinimumStock: minimum,
		CostPerUnit:  numericToDecimal(i.CostPerUnit),
		LowStock:     current.LessThan(minimum),
		OutOfStock:   !current.IsPositive(),
		Version:      i.Version,
	}
}

func toStockMovement(m database.StockMovement) StockMovement {
	out := StockMovement{
		ID:              m.ID,
		InventoryItemID: m.InventoryItemID,
		MovementType:    m.MovementType,
		Quantity:        numericToDecimal(m.Quantity),
		Notes:           textPtr(m.Notes),
		CreatedAt:       m.CreatedAt,
	}
	if m.ReferenceID.Valid {
		id := uuid.UUID(m.ReferenceID.Bytes)
		out.ReferenceID = &id
	}
	return out
}

func toServiceRequest(r database.ServiceRequest) ServiceRequest {
	return ServiceRequest{
		ID:          r.ID,
		TableNumber: r.TableNumber,
		Kind:        r.Kind,
		Notes:       textPtr(r.Notes),
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		ResolvedAt:  timePtr(r.ResolvedAt),
	}
}

// --- Helpers ---

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.String())
	return n
}

func textOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func uuidOrNull(id uuid.UUID) pgtype.UUID {
	if id == uuid.Nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: id, Valid: true}
}
