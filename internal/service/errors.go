package service

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Error kinds. Every error returned by this package matches exactly one of
// these with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPersistence       = errors.New("persistence error")
	ErrConflict          = errors.New("concurrent update conflict, please retry")
)

// kindError is a message that classifies as one of the error kinds above.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Errors returned by the order store, table controller and inventory ledger.
var (
	ErrEmptyLines          = newError(ErrValidation, "lines are required")
	ErrInvalidQuantity     = newError(ErrValidation, "quantity must be >= 1")
	ErrNegativeQuantity    = newError(ErrValidation, "quantity must be >= 0")
	ErrInvalidTableNumber  = newError(ErrValidation, "table_number must be > 0")
	ErrMenuItemRequired    = newError(ErrValidation, "menu_item_id is required")
	ErrMenuItemUnavailable = newError(ErrValidation, "menu item is not available")
	ErrInvalidOrderStatus  = newError(ErrValidation, "invalid order status")
	ErrInvalidTableStatus  = newError(ErrValidation, "invalid table status")
	ErrOrderIDRequired     = newError(ErrValidation, "current_order_id is required for occupied tables")
	ErrReservedForRequired = newError(ErrValidation, "reserved_for is required")
	ErrInvalidMovementType = newError(ErrValidation, "invalid movement_type")
	ErrInvalidStockDelta   = newError(ErrValidation, "quantity does not match movement_type")
	ErrInvalidRequestKind  = newError(ErrValidation, "invalid service request kind")
	ErrIdempotencyMismatch = newError(ErrValidation, "idempotency key was used for a different operation")
	ErrOrderOtherTable     = newError(ErrValidation, "order belongs to another table")

	ErrOrderNotFound          = newError(ErrNotFound, "order not found")
	ErrOrderLineNotFound      = newError(ErrNotFound, "order line not found")
	ErrTableNotFound          = newError(ErrNotFound, "table not found")
	ErrMenuItemNotFound       = newError(ErrNotFound, "menu item not found")
	ErrInventoryItemNotFound  = newError(ErrNotFound, "inventory item not found")
	ErrServiceRequestNotFound = newError(ErrNotFound, "service request not found")

	ErrOrderClosed          = newError(ErrInvalidTransition, "order is paid and can no longer change")
	ErrTableOccupied        = newError(ErrInvalidTransition, "table is occupied")
	ErrOrderNotActive       = newError(ErrInvalidTransition, "order is not active")
	ErrRequestAlreadyClosed = newError(ErrInvalidTransition, "service request is already resolved")

	ErrStockWouldGoNegative = newError(ErrInsufficientStock, "stock would go negative")
)

// errStaleVersion signals a lost optimistic-concurrency race inside one
// attempt. withRetry turns it into ErrConflict once attempts run out.
var errStaleVersion = errors.New("stale version")

// transitionError reports a status change outside the state graph.
func transitionError(from, to string) error {
	return newError(ErrInvalidTransition, fmt.Sprintf("cannot transition from %s to %s", from, to))
}

// persistence wraps a backing store failure.
func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// isUniqueViolation checks for pgconn error code 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
