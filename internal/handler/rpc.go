package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/floorline/api/internal/enum"
	"github.com/floorline/api/internal/middleware"
	"github.com/floorline/api/internal/service"
	"github.com/google/uuid"
)

// IdempotencyKeyHeader carries the client-generated token that lets a retried
// mutation return its first result instead of running twice.
const IdempotencyKeyHeader = "Idempotency-Key"

// customerFailureMessage replaces internal error detail for QR customers.
const customerFailureMessage = "request failed, please try again"

// Health handles GET /health. Clients poll it to detect connectivity.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeBody reads the operation's JSON input. An empty body decodes to the
// zero value so read operations can be called without one.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func parseID(w http.ResponseWriter, field, s string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+field)
		return uuid.Nil, false
	}
	return id, true
}

func idempotencyKey(r *http.Request) string {
	return r.Header.Get(IdempotencyKeyHeader)
}

// statusFor maps a service error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error codes sent next to the message. Several kinds share 409, and only
// a conflict is worth retrying unchanged.
const (
	CodeValidation        = "validation"
	CodeNotFound          = "not_found"
	CodeInvalidTransition = "invalid_transition"
	CodeInsufficientStock = "insufficient_stock"
	CodeConflict          = "conflict"
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrConflict):
		return CodeConflict
	case errors.Is(err, service.ErrValidation):
		return CodeValidation
	case errors.Is(err, service.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, service.ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, service.ErrInsufficientStock):
		return CodeInsufficientStock
	default:
		return ""
	}
}

// writeServiceError answers a failed operation. Server-side failures are
// logged and never echoed back.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status < http.StatusInternalServerError {
		writeJSON(w, status, map[string]string{"error": err.Error(), "code": errorCode(err)})
		return
	}

	log.Printf("ERROR: %s: %v", op, err)
	if middleware.IsCustomer(r.Context()) {
		writeError(w, status, customerFailureMessage)
		return
	}
	writeError(w, status, "internal server error")
}

// requireTable answers 403 when a customer token targets another table.
func requireTable(w http.ResponseWriter, r *http.Request, tableNumber int32) bool {
	if !middleware.CanAccessTable(middleware.ClaimsFromContext(r.Context()), tableNumber) {
		writeError(w, http.StatusForbidden, "access denied for this table")
		return false
	}
	return true
}

// changedBy names the caller in audit fields.
func changedBy(r *http.Request) string {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	if claims.Subject != "" {
		return claims.Subject
	}
	return claims.Role
}

// Role sets used by the RPC route guards.
var (
	staffRoles = []string{enum.RoleManager, enum.RoleCashier, enum.RoleWaiter, enum.RoleKitchen}
	floorRoles = []string{enum.RoleManager, enum.RoleCashier, enum.RoleWaiter}
	allRoles   = append(append([]string{}, staffRoles...), enum.RoleCustomer)
)
