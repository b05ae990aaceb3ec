package service

import (
	"context"
	"errors"
	"time"

	"github.com/floorline/api/internal/database"
	"github.com/floorline/api/internal/enum"
	"github.com/floorline/api/internal/event"
	"github.com/floorline/api/internal/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	// DefaultMaxConflictRetries bounds re-reads after a lost version race.
	DefaultMaxConflictRetries = 3

	defaultPaidHistoryLimit = 50
	maxPaidHistoryLimit     = 500
)

// allowedTransitions maps each status to its only legal successor.
// paid is terminal.
var allowedTransitions = map[string]string{
	enum.OrderStatusNew:       enum.OrderStatusPreparing,
	enum.OrderStatusPreparing: enum.OrderStatusReady,
	enum.OrderStatusReady:     enum.OrderStatusServed,
	enum.OrderStatusServed:    enum.OrderStatusPaid,
}

func isValidOrderStatus(s string) bool {
	switch s {
	case enum.OrderStatusNew, enum.OrderStatusPreparing, enum.OrderStatusReady,
		enum.OrderStatusServed, enum.OrderStatusPaid:
		return true
	}
	return false
}

// OrderService owns orders, their lines and the status lifecycle. Every
// mutation runs in one transaction together with its stock movements and
// table effects.
type OrderService struct {
	pool       Pool
	newStore   NewOrderStore
	notify     event.Publisher
	maxRetries int
}

// NewOrderService creates a new OrderService.
func NewOrderService(pool Pool, newStore NewOrderStore, notify event.Publisher, maxRetries int) *OrderService {
	if notify == nil {
		notify = event.Nop{}
	}
	if maxRetries < 1 {
		maxRetries = DefaultMaxConflictRetries
	}
	return &OrderService{pool: pool, newStore: newStore, notify: notify, maxRetries: maxRetries}
}

func (s *OrderService) retry(op string, attempt func() error) error {
	return withRetry(s.maxRetries, op, func() {
		metrics.ConflictRetries.WithLabelValues(op).Inc()
	}, attempt)
}

// --- Create ---

// CreateOrderRequest is the validated input for creating an order. Prices come
// from the menu, never from the caller.
type CreateOrderRequest struct {
	TableNumber    int32
	Lines          []CreateOrderLineRequest
	WaiterName     string
	IdempotencyKey string
}

// CreateOrderLineRequest is a single line in the order.
type CreateOrderLineRequest struct {
	MenuItemID string
	Quantity   int32
	Notes      string
}

// CreateOrderResult is the created order. Replayed is set when the answer
// came from the idempotency registry.
type CreateOrderResult struct {
	OrderID  uuid.UUID `json:"order_id"`
	Order    Order     `json:"order"`
	Replayed bool      `json:"-"`
}

// mergeRequestLines folds repeated menu items into one line, keeping the
// first non-empty note.
func mergeRequestLines(lines []CreateOrderLineRequest) []CreateOrderLineRequest {
	out := make([]CreateOrderLineRequest, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, l := range lines {
		if i, ok := index[l.MenuItemID]; ok {
			out[i].Quantity += l.Quantity
			if out[i].Notes == "" {
				out[i].Notes = l.Notes
			}
			continue
		}
		index[l.MenuItemID] = len(out)
		out = append(out, l)
	}
	return out
}

func validateCreateOrder(req CreateOrderRequest) error {
	if req.TableNumber <= 0 {
		return ErrInvalidTableNumber
	}
	if len(req.Lines) == 0 {
		return ErrEmptyLines
	}
	for _, l := range req.Lines {
		if l.MenuItemID == "" {
			return ErrMenuItemRequired
		}
		if l.Quantity < 1 {
			return ErrInvalidQuantity
		}
	}
	return nil
}

func lookupMenuItem(ctx context.Context, store OrderStore, id string) (database.MenuItem, error) {
	item, err := store.GetMenuItemForOrder(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return item, ErrMenuItemNotFound
	}
	if err != nil {
		return item, persistence("get menu item", err)
	}
	if !item.Available {
		return item, ErrMenuItemUnavailable
	}
	return item, nil
}

// CreateOrder inserts the order and its lines, deducts ingredient stock and
// occupies the table, all atomically.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if err := validateCreateOrder(req); err != nil {
		return nil, err
	}
	lines := mergeRequestLines(req.Lines)

	var (
		result  CreateOrderResult
		changes changeSet
	)
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		store := s.newStore(tx)

		prior, err := claimKey(ctx, store, req.IdempotencyKey, OpOrderCreate)
		if err != nil {
			return err
		}
		if prior != nil {
			result, err = replay[CreateOrderResult](prior)
			result.Replayed = true
			return err
		}

		items := make([]database.MenuItem, len(lines))
		for i, l := range lines {
			if items[i], err = lookupMenuItem(ctx, store, l.MenuItemID); err != nil {
				return err
			}
		}

		order, err := store.CreateOrder(ctx, database.CreateOrderParams{
			TableNumber: req.TableNumber,
			WaiterName:  textOrNull(req.WaiterName),
		})
		if err != nil {
			return persistence("create order", err)
		}

		for i, l := range lines {
			if _, err := store.CreateOrderLine(ctx, database.CreateOrderLineParams{
				OrderID:    order.ID,
				MenuItemID: l.MenuItemID,
				Quantity:   l.Quantity,
				Notes:      textOrNull(l.Notes),
				UnitPrice:  items[i].Price,
			}); err != nil {
				return persistence("create order line", err)
			}

			effects, err := moveForOrderLine(ctx, store, l.MenuItemID, l.Quantity, order.ID)
			if err != nil {
				return err
			}
			changes.stock(effects)
		}

		order, err = store.RecalculateOrderTotal(ctx, database.RecalculateOrderTotalParams{
			ID:      order.ID,
			Version: order.Version,
		})
		if err != nil {
			return persistence("recalculate order total", err)
		}

		if err := store.InsertOrderStatusLog(ctx, database.InsertOrderStatusLogParams{
			OrderID:   order.ID,
			ToStatus:  enum.OrderStatusNew,
			ChangedBy: textOrNull(req.WaiterName),
		}); err != nil {
			return persistence("insert status log", err)
		}

		if _, _, err := assignTable(ctx, store, req.TableNumber, order.ID); err != nil {
			return err
		}

		saved, err := store.ListOrderLines(ctx, order.ID)
		if err != nil {
			return persistence("list order lines", err)
		}

		result = CreateOrderResult{OrderID: order.ID, Order: toOrder(order, saved)}
		if err := saveResult(ctx, store, req.IdempotencyKey, result); err != nil {
			return err
		}

		changes.order(enum.EventOrderCreated, order.ID, order.TableNumber)
		changes.table(order.TableNumber)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		metrics.OrdersCreated.Inc()
		changes.publish(ctx, s.notify)
	}
	return &result, nil
}

// --- Status ---

// UpdateStatusRequest advances an order one step along its lifecycle.
type UpdateStatusRequest struct {
	OrderID        uuid.UUID
	Status         string
	ChangedBy      string
	IdempotencyKey string
}

// UpdateStatus moves the order to its immediate successor status. Reaching
// paid sends the table to needs-cleaning.
func (s *OrderService) UpdateStatus(ctx context.Context, req UpdateStatusRequest) (*Order, error) {
	if !isValidOrderStatus(req.Status) {
		return nil, ErrInvalidOrderStatus
	}

	var (
		result   Order
		changes  changeSet
		replayed bool
	)
	err := s.retry(OpOrderUpdateStatus, func() error {
		changes = nil
		return inTx(ctx, s.pool, func(tx pgx.Tx) error {
			store := s.newStore(tx)

			prior, err := claimKey(ctx, store, req.IdempotencyKey, OpOrderUpdateStatus)
			if err != nil {
				return err
			}
			if prior != nil {
				replayed = true
				result, err = replay[Order](prior)
				return err
			}

			order, err := store.GetOrder(ctx, req.OrderID)
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			if err != nil {
				return persistence("get order", err)
			}
			if order.Status == enum.OrderStatusPaid {
				return ErrOrderClosed
			}
			if allowedTransitions[order.Status] != req.Status {
				return transitionError(order.Status, req.Status)
			}

			updated, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
				ID:      order.ID,
				Status:  req.Status,
				Version: order.Version,
			})
			if errors.Is(err, pgx.ErrNoRows) {
				return errStaleVersion
			}
			if err != nil {
				return persistence("update order status", err)
			}

			if err := store.InsertOrderStatusLog(ctx, database.InsertOrderStatusLogParams{
				OrderID:    order.ID,
				FromStatus: textOrNull(order.Status),
				ToStatus:   req.Status,
				ChangedBy:  textOrNull(req.ChangedBy),
			}); err != nil {
				return persistence("insert status log", err)
			}

			if req.Status == enum.OrderStatusPaid {
				released, err := releaseTable(ctx, store, order.TableNumber, order.ID, enum.TableStatusNeedsCleaning)
				if err != nil {
					return err
				}
				if released {
					changes.table(order.TableNumber)
				}
			}

			lines, err := store.ListOrderLines(ctx, order.ID)
			if err != nil {
				return persistence("list order lines", err)
			}
			result = toOrder(updated, lines)
			if err := saveResult(ctx, store, req.IdempotencyKey, result); err != nil {
				return err
			}
			changes.order(enum.EventOrderUpdated, order.ID, order.TableNumber)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if !replayed {
		metrics.StatusTransitions.WithLabelValues(req.Status).Inc()
		changes.publish(ctx, s.notify)
	}
	return &result, nil
}

// --- Lines ---

// AddLineRequest adds quantity portions of a menu item to an open order.
type AddLineRequest struct {
	OrderID        uuid.UUID
	MenuItemID     string
	Quantity       int32
	Notes          string
	IdempotencyKey string
}

// AddLineResult is the created or merged line and the order after the change.
type AddLineResult struct {
	Line   OrderLine `json:"line"`
	Order  Order     `json:"order"`
	Merged bool      `json:"merged"`
}

// AddLine merges into an existing line for the same menu item, otherwise
// inserts a new one. Notes are not part of the match; a merged line keeps its
// original note.
func (s *OrderService) AddLine(ctx context.Context, req AddLineRequest) (*AddLineResult, error) {
	if req.MenuItemID == "" {
		return nil, ErrMenuItemRequired
	}
	if req.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	var (
		result   AddLineResult
		changes  changeSet
		replayed bool
	)
	err := s.retry(OpOrderAddItem, func() error {
		changes = nil
		return inTx(ctx, s.pool, func(tx pgx.Tx) error {
			store := s.newStore(tx)

			prior, err := claimKey(ctx, store, req.IdempotencyKey, OpOrderAddItem)
			if err != nil {
				return err
			}
			if prior != nil {
				replayed = true
				result, err = replay[AddLineResult](prior)
				return err
			}

			order, err := openOrder(ctx, store, req.OrderID)
			if err != nil {
				return err
			}
			item, err := lookupMenuItem(ctx, store, req.MenuItemID)
			if err != nil {
				return err
			}

			var (
				line   database.OrderLine
				merged bool
			)
			existing, err := store.GetOrderLineByItem(ctx, database.GetOrderLineByItemParams{
				OrderID:    order.ID,
				MenuItemID: req.MenuItemID,
			})
			switch {
			case err == nil:
				merged = true
				line, err = store.AddOrderLineQuantity(ctx, database.AddOrderLineQuantityParams{
					ID:    existing.ID,
					Delta: req.Quantity,
				})
				if err != nil {
					return persistence("merge order line", err)
				}
			case errors.Is(err, pgx.ErrNoRows):
				line, err = store.CreateOrderLine(ctx, database.CreateOrderLineParams{
					OrderID:    order.ID,
					MenuItemID: req.MenuItemID,
					Quantity:   req.Quantity,
					Notes:      textOrNull(req.Notes),
					UnitPrice:  item.Price,
				})
				if isUniqueViolation(err) {
					// Another writer inserted the same item; the retry merges.
					return errStaleVersion
				}
				if err != nil {
					return persistence("create order line", err)
				}
			default:
				return persistence("get order line", err)
			}

			effects, err := moveForOrderLine(ctx, store, req.MenuItemID, req.Quantity, order.ID)
			if err != nil {
				return err
			}
			changes.stock(effects)

			updated, lines, err := recalculate(ctx, store, order)
			if err != nil {
				return err
			}

			result = AddLineResult{Line: toOrderLine(line), Order: toOrder(updated, lines), Merged: merged}
			if err := saveResult(ctx, store, req.IdempotencyKey, result); err != nil {
				return err
			}
			changes.order(enum.EventOrderUpdated, order.ID, order.TableNumber)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if !replayed {
		changes.publish(ctx, s.notify)
	}
	return &result, nil
}

// UpdateLineQuantityRequest sets a line's quantity; zero removes the line.
type UpdateLineQuantityRequest struct {
	LineID         uuid.UUID
	Quantity       int32
	IdempotencyKey string
}

// UpdateLineQuantityResult is either the updated order or, when the last line
// was removed, a deletion marker.
type UpdateLineQuantityResult struct {
	OrderID uuid.UUID `json:"order_id"`
	Deleted bool      `json:"deleted"`
	Order   *Order    `json:"order,omitempty"`
}

// UpdateLineQuantity changes a line and moves stock by the difference.
// Removing the last line deletes the order and frees its table.
func (s *OrderService) UpdateLineQuantity(ctx context.Context, req UpdateLineQuantityRequest) (*UpdateLineQuantityResult, error) {
	if req.Quantity < 0 {
		return nil, ErrNegativeQuantity
	}

	var (
		result   UpdateLineQuantityResult
		changes  changeSet
		replayed bool
	)
	err := s.retry(OpOrderUpdateItemQty, func() error {
		changes = nil
		return inTx(ctx, s.pool, func(tx pgx.Tx) error {
			store := s.newStore(tx)

			prior, err := claimKey(ctx, store, req.IdempotencyKey, OpOrderUpdateItemQty)
			if err != nil {
				return err
			}
			if prior != nil {
				replayed = true
				result, err = replay[UpdateLineQuantityResult](prior)
				return err
			}

			line, err := store.GetOrderLine(ctx, req.LineID)
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderLineNotFound
			}
			if err != nil {
				return persistence("get order line", err)
			}
			order, err := openOrder(ctx, store, line.OrderID)
			if err != nil {
				return err
			}

			effects, err := moveForOrderLine(ctx, store, line.MenuItemID, req.Quantity-line.Quantity, order.ID)
			if err != nil {
				return err
			}
			changes.stock(effects)

			if req.Quantity > 0 {
				if _, err := store.SetOrderLineQuantity(ctx, database.SetOrderLineQuantityParams{
					ID:       line.ID,
					Quantity: req.Quantity,
				}); err != nil {
					return persistence("set order line quantity", err)
				}
				updated, lines, err := recalculate(ctx, store, order)
				if err != nil {
					return err
				}
				o := toOrder(updated, lines)
				result = UpdateLineQuantityResult{OrderID: order.ID, Order: &o}
				changes.order(enum.EventOrderUpdated, order.ID, order.TableNumber)
				return saveResult(ctx, store, req.IdempotencyKey, result)
			}

			if err := store.DeleteOrderLine(ctx, line.ID); err != nil {
				return persistence("delete order line", err)
			}
			remaining, err := store.CountOrderLines(ctx, order.ID)
			if err != nil {
				return persistence("count order lines", err)
			}
			if remaining > 0 {
				updated, lines, err := recalculate(ctx, store, order)
				if err != nil {
					return err
				}
				o := toOrder(updated, lines)
				result = UpdateLineQuantityResult{OrderID: order.ID, Order: &o}
				changes.order(enum.EventOrderUpdated, order.ID, order.TableNumber)
				return saveResult(ctx, store, req.IdempotencyKey, result)
			}

			released, err := releaseTable(ctx, store, order.TableNumber, order.ID, enum.TableStatusAvailable)
			if err != nil {
				return err
			}
			n, err := store.DeleteOrder(ctx, database.DeleteOrderParams{ID: order.ID, Version: order.Version})
			if err != nil {
				return persistence("delete order", err)
			}
			if n == 0 {
				return errStaleVersion
			}

			result = UpdateLineQuantityResult{OrderID: order.ID, Deleted: true}
			changes.order(enum.EventOrderDeleted, order.ID, order.TableNumber)
			if released {
				changes.table(order.TableNumber)
			}
			return saveResult(ctx, store, req.IdempotencyKey, result)
		})
	})
	if err != nil {
		return nil, err
	}

	if !replayed {
		changes.publish(ctx, s.notify)
	}
	return &result, nil
}

// openOrder loads an order that may still change.
func openOrder(ctx context.Context, store OrderStore, id uuid.UUID) (database.Order, error) {
	order, err := store.GetOrder(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return order, ErrOrderNotFound
	}
	if err != nil {
		return order, persistence("get order", err)
	}
	if order.Status == enum.OrderStatusPaid {
		return order, ErrOrderClosed
	}
	return order, nil
}

// recalculate recomputes the total from the lines under the version read at
// the start of the attempt.
func recalculate(ctx context.Context, store OrderStore, order database.Order) (database.Order, []database.OrderLine, error) {
	updated, err := store.RecalculateOrderTotal(ctx, database.RecalculateOrderTotalParams{
		ID:      order.ID,
		Version: order.Version,
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return updated, nil, errStaleVersion
	}
	if err != nil {
		return updated, nil, persistence("recalculate order total", err)
	}
	lines, err := store.ListOrderLines(ctx, order.ID)
	if err != nil {
		return updated, nil, persistence("list order lines", err)
	}
	return updated, lines, nil
}

// --- Reads ---

// GetOrder returns one order with its lines.
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	store := s.newStore(s.pool)
	order, err := store.GetOrder(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, persistence("get order", err)
	}
	lines, err := store.ListOrderLines(ctx, id)
	if err != nil {
		return nil, persistence("list order lines", err)
	}
	out := toOrder(order, lines)
	return &out, nil
}

// ListActive returns every order not yet paid, oldest first, with lines.
func (s *OrderService) ListActive(ctx context.Context) ([]Order, error) {
	store := s.newStore(s.pool)
	orders, err := store.ListActiveOrders(ctx)
	if err != nil {
		return nil, persistence("list active orders", err)
	}
	lines, err := store.ListActiveOrderLines(ctx)
	if err != nil {
		return nil, persistence("list active order lines", err)
	}

	byOrder := make(map[uuid.UUID][]database.OrderLine, len(orders))
	for _, l := range lines {
		byOrder[l.OrderID] = append(byOrder[l.OrderID], l)
	}

	out := make([]Order, len(orders))
	for i, o := range orders {
		ls := byOrder[o.ID]
		if ls == nil {
			ls = []database.OrderLine{}
		}
		out[i] = toOrder(o, ls)
	}
	return out, nil
}

// PaidHistoryRequest filters paid orders by payment time. To is exclusive.
type PaidHistoryRequest struct {
	Limit int32
	From  *time.Time
	To    *time.Time
}

// ListPaidHistory returns paid orders, newest payment first.
func (s *OrderService) ListPaidHistory(ctx context.Context, req PaidHistoryRequest) ([]Order, error) {
	if req.Limit < 0 {
		return nil, newError(ErrValidation, "limit must be >= 0")
	}
	if req.From != nil && req.To != nil && !req.From.Before(*req.To) {
		return nil, newError(ErrValidation, "from_date must be before to_date")
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultPaidHistoryLimit
	}
	if limit > maxPaidHistoryLimit {
		limit = maxPaidHistoryLimit
	}

	orders, err := s.newStore(s.pool).ListPaidOrders(ctx, database.ListPaidOrdersParams{
		Limit:    limit,
		FromDate: timestamptz(req.From),
		ToDate:   timestamptz(req.To),
	})
	if err != nil {
		return nil, persistence("list paid orders", err)
	}
	out := make([]Order, len(orders))
	for i, o := range orders {
		out[i] = toOrder(o, nil)
	}
	return out, nil
}

