package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/floorline/api/internal/database"
	"github.com/floorline/api/internal/handler"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type mockMenuStore struct {
	listFn         func(ctx context.Context) ([]database.MenuItem, error)
	setAvailableFn func(ctx context.Context, arg database.SetMenuItemAvailableParams) (database.MenuItem, error)
}

func (m *mockMenuStore) ListMenuItems(ctx context.Context) ([]database.MenuItem, error) {
	return m.listFn(ctx)
}

func (m *mockMenuStore) SetMenuItemAvailable(ctx context.Context, arg database.SetMenuItemAvailableParams) (database.MenuItem, error) {
	return m.setAvailableFn(ctx, arg)
}

func testPrice(s string) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(decimal.RequireFromString(s).String())
	return n
}

func TestMenuGetAll(t *testing.T) {
	store := &mockMenuStore{
		listFn: func(ctx context.Context) ([]database.MenuItem, error) {
			return []database.MenuItem{
				{ID: "kebab", Name: "Kebab", Price: testPrice("12000"), Available: true, CreatedAt: time.Now()},
			}, nil
		},
	}

	rr := doRPC(t, setupRPCRouter(handler.NewMenuHandler(store)), "menu.getAll", nil, customer)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	got := decodeResponse[[]map[string]any](t, rr)
	if len(got) != 1 || got[0]["price"] != "12000.00" || got[0]["available"] != true {
		t.Errorf("menu = %v", got)
	}
}

func TestMenuSetAvailability(t *testing.T) {
	store := &mockMenuStore{
		setAvailableFn: func(ctx context.Context, arg database.SetMenuItemAvailableParams) (database.MenuItem, error) {
			if arg.ID == "missing" {
				return database.MenuItem{}, pgx.ErrNoRows
			}
			if arg.Available {
				t.Errorf("available: got true, want false")
			}
			return database.MenuItem{ID: arg.ID, Name: "Kebab", Price: testPrice("12000"), Available: arg.Available}, nil
		},
	}
	router := setupRPCRouter(handler.NewMenuHandler(store))

	rr := doRPC(t, router, "menu.setAvailability", map[string]any{"menu_item_id": "kebab", "available": false}, kitchen)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if rr := doRPC(t, router, "menu.setAvailability", map[string]any{"menu_item_id": "missing", "available": false}, manager); rr.Code != http.StatusNotFound {
		t.Errorf("missing: got %d, want %d", rr.Code, http.StatusNotFound)
	}
	if rr := doRPC(t, router, "menu.setAvailability", map[string]any{"menu_item_id": "kebab"}, manager); rr.Code != http.StatusBadRequest {
		t.Errorf("no flag: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if rr := doRPC(t, router, "menu.setAvailability", map[string]any{"menu_item_id": "kebab", "available": true}, cashier); rr.Code != http.StatusForbidden {
		t.Errorf("cashier: got %d, want %d", rr.Code, http.StatusForbidden)
	}
}
