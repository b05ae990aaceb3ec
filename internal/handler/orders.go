package handler

import (
	"context"
	"net/http"
	"time"

	mw "github.com/floorline/api/internal/middleware"
	"github.com/floorline/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
	UpdateStatus(ctx context.Context, req service.UpdateStatusRequest) (*service.Order, error)
	AddLine(ctx context.Context, req service.AddLineRequest) (*service.AddLineResult, error)
	UpdateLineQuantity(ctx context.Context, req service.UpdateLineQuantityRequest) (*service.UpdateLineQuantityResult, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*service.Order, error)
	ListActive(ctx context.Context) ([]service.Order, error)
	ListPaidHistory(ctx context.Context, req service.PaidHistoryRequest) ([]service.Order, error)
}

// OrderHandler handles the orders.* operations.
type OrderHandler struct {
	svc OrderServicer
}

func NewOrderHandler(svc OrderServicer) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// RegisterRoutes registers order operations on the given Chi router.
// Expected to be mounted inside the authenticated /rpc subrouter.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.With(mw.RequireRole(allRoles...)).Post("/orders.create", h.Create)
	r.With(mw.RequireRole(allRoles...)).Post("/orders.get", h.Get)
	r.With(mw.RequireRole(staffRoles...)).Post("/orders.updateStatus", h.UpdateStatus)
	r.With(mw.RequireRole(staffRoles...)).Post("/orders.getActive", h.GetActive)
	r.With(mw.RequireRole(floorRoles...)).Post("/orders.addItem", h.AddItem)
	r.With(mw.RequireRole(floorRoles...)).Post("/orders.updateItemQty", h.UpdateItemQty)
	r.With(mw.RequireRole(floorRoles...)).Post("/orders.getPaidHistory", h.GetPaidHistory)
}

// --- Request types ---

type createOrderRequest struct {
	TableNumber int32                    `json:"table_number"`
	Lines       []createOrderLineRequest `json:"lines"`
	WaiterName  string                   `json:"waiter_name"`
}

type createOrderLineRequest struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int32  `json:"quantity"`
	Notes      string `json:"notes"`
}

type orderIDRequest struct {
	OrderID string `json:"order_id"`
}

type updateStatusRequest struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type addItemRequest struct {
	OrderID    string `json:"order_id"`
	MenuItemID string `json:"menu_item_id"`
	Quantity   int32  `json:"quantity"`
	Notes      string `json:"notes"`
}

type updateItemQtyRequest struct {
	LineID   string `json:"line_id"`
	Quantity int32  `json:"quantity"`
}

type paidHistoryRequest struct {
	Limit    int32  `json:"limit"`
	FromDate string `json:"from_date"`
	ToDate   string `json:"to_date"`
}

// --- Handlers ---

// Create handles POST /rpc/orders.create.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !requireTable(w, r, req.TableNumber) {
		return
	}

	lines := make([]service.CreateOrderLineRequest, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = service.CreateOrderLineRequest{
			MenuItemID: l.MenuItemID,
			Quantity:   l.Quantity,
			Notes:      l.Notes,
		}
	}

	result, err := h.svc.CreateOrder(r.Context(), service.CreateOrderRequest{
		TableNumber:    req.TableNumber,
		Lines:          lines,
		WaiterName:     req.WaiterName,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeServiceError(w, r, "create order", err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// Get handles POST /rpc/orders.get.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	var req orderIDRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, ok := parseID(w, "order_id", req.OrderID)
	if !ok {
		return
	}

	order, err := h.svc.GetOrder(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "get order", err)
		return
	}
	if !mw.CanAccessTable(mw.ClaimsFromContext(r.Context()), order.TableNumber) {
		// Customers must not learn that another table's order exists.
		writeError(w, http.StatusNotFound, service.ErrOrderNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// UpdateStatus handles POST /rpc/orders.updateStatus.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, ok := parseID(w, "order_id", req.OrderID)
	if !ok {
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	order, err := h.svc.UpdateStatus(r.Context(), service.UpdateStatusRequest{
		OrderID:        id,
		Status:         req.Status,
		ChangedBy:      changedBy(r),
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeServiceError(w, r, "update order status", err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// AddItem handles POST /rpc/orders.addItem.
func (h *OrderHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, ok := parseID(w, "order_id", req.OrderID)
	if !ok {
		return
	}

	result, err := h.svc.AddLine(r.Context(), service.AddLineRequest{
		OrderID:        id,
		MenuItemID:     req.MenuItemID,
		Quantity:       req.Quantity,
		Notes:          req.Notes,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeServiceError(w, r, "add order item", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// UpdateItemQty handles POST /rpc/orders.updateItemQty. The response carries
// "deleted": true when removing the last line deleted the order.
func (h *OrderHandler) UpdateItemQty(w http.ResponseWriter, r *http.Request) {
	var req updateItemQtyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, ok := parseID(w, "line_id", req.LineID)
	if !ok {
		return
	}

	result, err := h.svc.UpdateLineQuantity(r.Context(), service.UpdateLineQuantityRequest{
		LineID:         id,
		Quantity:       req.Quantity,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeServiceError(w, r, "update item quantity", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetActive handles POST /rpc/orders.getActive.
func (h *OrderHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListActive(r.Context())
	if err != nil {
		writeServiceError(w, r, "list active orders", err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetPaidHistory handles POST /rpc/orders.getPaidHistory. Dates accept
// RFC 3339 or YYYY-MM-DD.
func (h *OrderHandler) GetPaidHistory(w http.ResponseWriter, r *http.Request) {
	var req paidHistoryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	params := service.PaidHistoryRequest{Limit: req.Limit}
	if req.FromDate != "" {
		t, err := parseDate(req.FromDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from_date, use RFC 3339 or YYYY-MM-DD")
			return
		}
		params.From = &t
	}
	if req.ToDate != "" {
		t, err := parseDate(req.ToDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to_date, use RFC 3339 or YYYY-MM-DD")
			return
		}
		params.To = &t
	}

	orders, err := h.svc.ListPaidHistory(r.Context(), params)
	if err != nil {
		writeServiceError(w, r, "list paid orders", err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
