package handler

import (
	"context"
	"net/http"

	mw "github.com/floorline/api/internal/middleware"
	"github.com/floorline/api/internal/service"
	"github.com/go-chi/chi/v5"
)

// TableServicer is satisfied by *service.TableController.
type TableServicer interface {
	GetAll(ctx context.Context) ([]service.Table, error)
	Get(ctx context.Context, number int32) (*service.Table, error)
	SetStatus(ctx context.Context, req service.SetTableStatusRequest) (*service.Table, error)
	Reserve(ctx context.Context, number int32, reservedFor string) (*service.Table, error)
}

// TableHandler handles the tables.* operations.
type TableHandler struct {
	svc TableServicer
}

func NewTableHandler(svc TableServicer) *TableHandler {
	return &TableHandler{svc: svc}
}

func (h *TableHandler) RegisterRoutes(r chi.Router) {
	r.With(mw.RequireRole(staffRoles...)).Post("/tables.getAll", h.GetAll)
	r.With(mw.RequireRole(allRoles...)).Post("/tables.get", h.Get)
	r.With(mw.RequireRole(floorRoles...)).Post("/tables.updateStatus", h.UpdateStatus)
	r.With(mw.RequireRole(floorRoles...)).Post("/tables.reserve", h.Reserve)
}

type tableNumberRequest struct {
	TableNumber int32 `json:"table_number"`
}

type updateTableStatusRequest struct {
	TableNumber    int32   `json:"table_number"`
	Status         string  `json:"status"`
	CurrentOrderID *string `json:"current_order_id"`
}

type reserveTableRequest struct {
	TableNumber int32  `json:"table_number"`
	ReservedFor string `json:"reserved_for"`
}

// GetAll handles POST /rpc/tables.getAll.
func (h *TableHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	tables, err := h.svc.GetAll(r.Context())
	if err != nil {
		writeServiceError(w, r, "list tables", err)
		return
	}
	writeJSON(w, http.StatusOK, tables)
}

// Get handles POST /rpc/tables.get. Customers may only read their own table.
func (h *TableHandler) Get(w http.ResponseWriter, r *http.Request) {
	var req tableNumberRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !requireTable(w, r, req.TableNumber) {
		return
	}

	table, err := h.svc.Get(r.Context(), req.TableNumber)
	if err != nil {
		writeServiceError(w, r, "get table", err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

// UpdateStatus handles POST /rpc/tables.updateStatus.
func (h *TableHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateTableStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	params := service.SetTableStatusRequest{
		Number: req.TableNumber,
		Status: req.Status,
	}
	if req.CurrentOrderID != nil && *req.CurrentOrderID != "" {
		id, ok := parseID(w, "current_order_id", *req.CurrentOrderID)
		if !ok {
			return
		}
		params.CurrentOrderID = &id
	}

	table, err := h.svc.SetStatus(r.Context(), params)
	if err != nil {
		writeServiceError(w, r, "update table status", err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

// Reserve handles POST /rpc/tables.reserve.
func (h *TableHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req reserveTableRequest
	if !decodeBody(w, r, &req) {
		return
	}

	table, err := h.svc.Reserve(r.Context(), req.TableNumber, req.ReservedFor)
	if err != nil {
		writeServiceError(w, r, "reserve table", err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

