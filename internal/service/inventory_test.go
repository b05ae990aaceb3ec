package service

import (
	"context"
	"errors"
	"testing"

	"github.com/floorline/api/internal/enum"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestAdjustStock_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     AdjustStockRequest
		wantErr error
	}{
		{"purchase must add", AdjustStockRequest{InventoryItemID: "beef", Quantity: decimal.NewFromInt(-5), MovementType: enum.MovementPurchase}, ErrInvalidStockDelta},
		{"waste must remove", AdjustStockRequest{InventoryItemID: "beef", Quantity: decimal.NewFromInt(5), MovementType: enum.MovementWaste}, ErrInvalidStockDelta},
		{"adjustment non-zero", AdjustStockRequest{InventoryItemID: "beef", Quantity: decimal.Zero, MovementType: enum.MovementAdjustment}, ErrInvalidStockDelta},
		{"order type reserved", AdjustStockRequest{InventoryItemID: "beef", Quantity: decimal.NewFromInt(-5), MovementType: enum.MovementOrder}, ErrInvalidMovementType},
		{"unknown type", AdjustStockRequest{InventoryItemID: "beef", Quantity: decimal.NewFromInt(5), MovementType: "gift"}, ErrInvalidMovementType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.ledger.AdjustStock(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if f.pool.begins != 0 {
				t.Error("validation failure reached the store")
			}
		})
	}

	f := newFixture(t)
	if _, err := f.ledger.AdjustStock(context.Background(), AdjustStockRequest{Quantity: decimal.NewFromInt(1), MovementType: enum.MovementPurchase}); !errors.Is(err, ErrValidation) {
		t.Errorf("missing item id: err = %v, want validation", err)
	}
}

func TestAdjustStock_Purchase(t *testing.T) {
	f := newFixture(t)

	got, err := f.ledger.AdjustStock(context.Background(), AdjustStockRequest{
		InventoryItemID: "bread",
		Quantity:        decimal.NewFromInt(20),
		MovementType:    enum.MovementPurchase,
		Notes:           "morning delivery",
	})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if !got.Level.CurrentStock.Equal(decimal.NewFromInt(70)) {
		t.Errorf("stock = %s, want 70", got.Level.CurrentStock)
	}
	if got.Movement.MovementType != enum.MovementPurchase || !got.Movement.Quantity.Equal(decimal.NewFromInt(20)) {
		t.Errorf("movement = %+v", got.Movement)
	}
	if got.Movement.ReferenceID != nil {
		t.Errorf("manual movement carries reference %v", got.Movement.ReferenceID)
	}
	if n := countType(f.rec.Types(), enum.EventInventoryAdjusted); n != 1 {
		t.Errorf("adjusted events = %d, want 1", n)
	}
	assertStockConserved(t, f)
}

func TestAdjustStock_RefusesNegativeBalance(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.AdjustStock(context.Background(), AdjustStockRequest{
		InventoryItemID: "bread",
		Quantity:        decimal.NewFromInt(-51),
		MovementType:    enum.MovementWaste,
	})
	if !errors.Is(err, ErrStockWouldGoNegative) || !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrStockWouldGoNegative", err)
	}
	if got := stockOf(f.db, "bread"); !got.Equal(decimal.NewFromInt(50)) {
		t.Errorf("bread = %s, want unchanged 50", got)
	}
	if len(f.db.movements) != 0 {
		t.Errorf("movements = %d, want none", len(f.db.movements))
	}
}

func TestAdjustStock_UnknownItem(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.AdjustStock(context.Background(), AdjustStockRequest{
		InventoryItemID: "saffron",
		Quantity:        decimal.NewFromInt(1),
		MovementType:    enum.MovementPurchase,
	})
	if !errors.Is(err, ErrInventoryItemNotFound) {
		t.Fatalf("err = %v, want ErrInventoryItemNotFound", err)
	}
}

func TestAdjustStock_LowStockSignal(t *testing.T) {
	f := newFixture(t)

	got, err := f.ledger.AdjustStock(context.Background(), AdjustStockRequest{
		InventoryItemID: "bread",
		Quantity:        decimal.NewFromInt(-45),
		MovementType:    enum.MovementWaste,
	})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if !got.Level.LowStock || got.Level.OutOfStock {
		t.Errorf("level = %+v, want low but not out", got.Level)
	}
	if n := countType(f.rec.Types(), enum.EventInventoryLowStock); n != 1 {
		t.Errorf("low stock events = %d, want 1", n)
	}
}

func TestAdjustStock_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	req := AdjustStockRequest{
		InventoryItemID: "beef",
		Quantity:        decimal.NewFromInt(250),
		MovementType:    enum.MovementPurchase,
		IdempotencyKey:  "delivery-0412",
	}

	first, err := f.ledger.AdjustStock(context.Background(), req)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.ledger.AdjustStock(context.Background(), req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if second.Movement.ID != first.Movement.ID {
		t.Errorf("replay movement = %s, want %s", second.Movement.ID, first.Movement.ID)
	}
	if got := stockOf(f.db, "beef"); !got.Equal(decimal.NewFromInt(1250)) {
		t.Errorf("beef = %s, want a single purchase applied", got)
	}
}

func TestOrderDeduction_MayGoNegative(t *testing.T) {
	f := newFixture(t)

	f.createKebabOrder(t, 5, 51)

	bread := toStockLevel(f.db.inventory["bread"])
	if !bread.CurrentStock.Equal(decimal.NewFromInt(-1)) {
		t.Errorf("bread = %s, want -1", bread.CurrentStock)
	}
	if !bread.LowStock || !bread.OutOfStock {
		t.Errorf("level = %+v, want low and out of stock", bread)
	}
	if n := countType(f.rec.Types(), enum.EventInventoryLowStock); n != 2 {
		t.Errorf("low stock events = %d, want beef and bread", n)
	}
	assertStockConserved(t, f)
}

func TestDeductForOrderLine(t *testing.T) {
	f := newFixture(t)
	orderID := uuid.New()

	if err := f.ledger.deductForOrderLine(context.Background(), "tea", 4, orderID); err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if got := stockOf(f.db, "tea-leaf"); !got.Equal(decimal.NewFromInt(480)) {
		t.Errorf("tea-leaf = %s, want 480", got)
	}
	if len(f.db.movements) != 1 || uuid.UUID(f.db.movements[0].ReferenceID.Bytes) != orderID {
		t.Errorf("movements = %+v", f.db.movements)
	}

	if err := f.ledger.deductForOrderLine(context.Background(), "tea", 0, orderID); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("zero quantity: err = %v", err)
	}
}

func TestDeductForOrderLine_MovementFailureKeepsStock(t *testing.T) {
	f := newFixture(t)
	f.db.fail["CreateStockMovement"] = errDBDown

	err := f.ledger.deductForOrderLine(context.Background(), "kebab", 1, uuid.New())
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
	if got := stockOf(f.db, "beef"); !got.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("beef = %s, want stock write rolled back with the movement", got)
	}
}

func TestListLevelsAndMovements(t *testing.T) {
	f := newFixture(t)
	f.createKebabOrder(t, 5, 1)
	f.createKebabOrder(t, 6, 2)

	levels, err := f.ledger.ListLevels(context.Background())
	if err != nil {
		t.Fatalf("levels: %v", err)
	}
	if len(levels) != 3 || levels[0].ID != "beef" {
		t.Errorf("levels = %+v, want 3 sorted by id", levels)
	}

	moves, err := f.ledger.ListMovements(context.Background(), "beef", 1)
	if err != nil {
		t.Fatalf("movements: %v", err)
	}
	if len(moves) != 1 || !moves[0].Quantity.Equal(decimal.NewFromInt(-300)) {
		t.Errorf("movements = %+v, want newest -300", moves)
	}

	if _, err := f.ledger.ListMovements(context.Background(), "saffron", 10); !errors.Is(err, ErrInventoryItemNotFound) {
		t.Errorf("unknown item: err = %v", err)
	}
}
