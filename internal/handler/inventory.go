package handler

import (
	"context"
	"net/http"

	"github.com/floorline/api/internal/enum"
	mw "github.com/floorline/api/internal/middleware"
	"github.com/floorline/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// InventoryServicer is satisfied by *service.InventoryLedger.
type InventoryServicer interface {
	AdjustStock(ctx context.Context, req service.AdjustStockRequest) (*service.AdjustStockResult, error)
	ListLevels(ctx context.Context) ([]service.StockLevel, error)
	ListMovements(ctx context.Context, inventoryItemID string, limit int32) ([]service.StockMovement, error)
}

// InventoryHandler handles the inventory.* operations.
type InventoryHandler struct {
	svc InventoryServicer
}

func NewInventoryHandler(svc InventoryServicer) *InventoryHandler {
	return &InventoryHandler{svc: svc}
}

func (h *InventoryHandler) RegisterRoutes(r chi.Router) {
	stock := []string{enum.RoleManager, enum.RoleKitchen}
	r.With(mw.RequireRole(stock...)).Post("/inventory.adjustStock", h.AdjustStock)
	r.With(mw.RequireRole(stock...)).Post("/inventory.getMovements", h.GetMovements)
	r.With(mw.RequireRole(staffRoles...)).Post("/inventory.getAll", h.GetAll)
}

// adjustStockRequest takes quantity as a JSON number or string, e.g. "-2.5".
type adjustStockRequest struct {
	InventoryItemID string          `json:"inventory_item_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	MovementType    string          `json:"movement_type"`
	Notes           string          `json:"notes"`
}

type movementsRequest struct {
	InventoryItemID string `json:"inventory_item_id"`
	Limit           int32  `json:"limit"`
}

// AdjustStock handles POST /rpc/inventory.adjustStock.
func (h *InventoryHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustStockRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.svc.AdjustStock(r.Context(), service.AdjustStockRequest{
		InventoryItemID: req.InventoryItemID,
		Quantity:        req.Quantity,
		MovementType:    req.MovementType,
		Notes:           req.Notes,
		ChangedBy:       changedBy(r),
		IdempotencyKey:  idempotencyKey(r),
	})
	if err != nil {
		writeServiceError(w, r, "adjust stock", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetAll handles POST /rpc/inventory.getAll.
func (h *InventoryHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	levels, err := h.svc.ListLevels(r.Context())
	if err != nil {
		writeServiceError(w, r, "list inventory", err)
		return
	}
	writeJSON(w, http.StatusOK, levels)
}

// GetMovements handles POST /rpc/inventory.getMovements.
func (h *InventoryHandler) GetMovements(w http.ResponseWriter, r *http.Request) {
	var req movementsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.InventoryItemID == "" {
		writeError(w, http.StatusBadRequest, "inventory_item_id is required")
		return
	}

	moves, err := h.svc.ListMovements(r.Context(), req.InventoryItemID, req.Limit)
	if err != nil {
		writeServiceError(w, r, "list stock movements", err)
		return
	}
	writeJSON(w, http.StatusOK, moves)
}
