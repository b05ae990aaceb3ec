package handler

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/floorline/api/internal/database"
	"github.com/floorline/api/internal/enum"
	mw "github.com/floorline/api/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// MenuStore defines the database methods needed by menu handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type MenuStore interface {
	ListMenuItems(ctx context.Context) ([]database.MenuItem, error)
	SetMenuItemAvailable(ctx context.Context, arg database.SetMenuItemAvailableParams) (database.MenuItem, error)
}

// MenuHandler serves the menu that order prices are looked up from.
type MenuHandler struct {
	store MenuStore
}

func NewMenuHandler(store MenuStore) *MenuHandler {
	return &MenuHandler{store: store}
}

func (h *MenuHandler) RegisterRoutes(r chi.Router) {
	r.With(mw.RequireRole(allRoles...)).Post("/menu.getAll", h.GetAll)
	r.With(mw.RequireRole(enum.RoleManager, enum.RoleKitchen)).Post("/menu.setAvailability", h.SetAvailability)
}

type menuItemResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Available bool   `json:"available"`
}

type setAvailabilityRequest struct {
	MenuItemID string `json:"menu_item_id"`
	Available  *bool  `json:"available"`
}

func toMenuItemResponse(m database.MenuItem) menuItemResponse {
	resp := menuItemResponse{
		ID:        m.ID,
		Name:      m.Name,
		Available: m.Available,
	}

	// Always format with 2 decimal places for consistent money representation.
	if m.Price.Valid {
		val, err := m.Price.Value()
		if err == nil && val != nil {
			d, err := decimal.NewFromString(val.(string))
			if err == nil {
				resp.Price = d.StringFixed(2)
			}
		}
	}
	return resp
}

// GetAll handles POST /rpc/menu.getAll.
func (h *MenuHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListMenuItems(r.Context())
	if err != nil {
		writeServiceError(w, r, "list menu items", err)
		return
	}

	resp := make([]menuItemResponse, len(items))
	for i, m := range items {
		resp[i] = toMenuItemResponse(m)
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetAvailability handles POST /rpc/menu.setAvailability. Unavailable items
// are refused by orders.create and orders.addItem.
func (h *MenuHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	var req setAvailabilityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.MenuItemID == "" {
		writeError(w, http.StatusBadRequest, "menu_item_id is required")
		return
	}
	if req.Available == nil {
		writeError(w, http.StatusBadRequest, "available is required")
		return
	}

	item, err := h.store.SetMenuItemAvailable(r.Context(), database.SetMenuItemAvailableParams{
		ID:        req.MenuItemID,
		Available: *req.Available,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "menu item not found")
			return
		}
		log.Printf("ERROR: set menu availability: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toMenuItemResponse(item))
}
