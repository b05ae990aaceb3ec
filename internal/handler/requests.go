package handler

import (
	"context"
	"net/http"

	mw "github.com/floorline/api/internal/middleware"
	"github.com/floorline/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ServiceRequestServicer is satisfied by *service.ServiceRequestService.
type ServiceRequestServicer interface {
	Create(ctx context.Context, req service.CreateServiceRequestRequest) (*service.ServiceRequest, error)
	ListOpen(ctx context.Context) ([]service.ServiceRequest, error)
	Resolve(ctx context.Context, id uuid.UUID) (*service.ServiceRequest, error)
}

// ServiceRequestHandler handles the serviceRequests.* operations.
type ServiceRequestHandler struct {
	svc ServiceRequestServicer
}

func NewServiceRequestHandler(svc ServiceRequestServicer) *ServiceRequestHandler {
	return &ServiceRequestHandler{svc: svc}
}

func (h *ServiceRequestHandler) RegisterRoutes(r chi.Router) {
	r.With(mw.RequireRole(allRoles...)).Post("/serviceRequests.create", h.Create)
	r.With(mw.RequireRole(staffRoles...)).Post("/serviceRequests.getOpen", h.GetOpen)
	r.With(mw.RequireRole(floorRoles...)).Post("/serviceRequests.resolve", h.Resolve)
}

type createServiceRequestRequest struct {
	TableNumber int32  `json:"table_number"`
	Kind        string `json:"kind"`
	Notes       string `json:"notes"`
}

type resolveServiceRequestRequest struct {
	ID string `json:"id"`
}

// Create handles POST /rpc/serviceRequests.create.
func (h *ServiceRequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createServiceRequestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !requireTable(w, r, req.TableNumber) {
		return
	}

	sr, err := h.svc.Create(r.Context(), service.CreateServiceRequestRequest{
		TableNumber:    req.TableNumber,
		Kind:           req.Kind,
		Notes:          req.Notes,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeServiceError(w, r, "create service request", err)
		return
	}
	writeJSON(w, http.StatusCreated, sr)
}

// GetOpen handles POST /rpc/serviceRequests.getOpen.
func (h *ServiceRequestHandler) GetOpen(w http.ResponseWriter, r *http.Request) {
	open, err := h.svc.ListOpen(r.Context())
	if err != nil {
		writeServiceError(w, r, "list service requests", err)
		return
	}
	writeJSON(w, http.StatusOK, open)
}

// Resolve handles POST /rpc/serviceRequests.resolve.
func (h *ServiceRequestHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveServiceRequestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, ok := parseID(w, "id", req.ID)
	if !ok {
		return
	}

	sr, err := h.svc.Resolve(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "resolve service request", err)
		return
	}
	writeJSON(w, http.StatusOK, sr)
}
