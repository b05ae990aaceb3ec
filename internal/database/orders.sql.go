package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, table_number, status, total, waiter_name, version, created_at, updated_at, paid_at`

func scanOrder(row interface{ Scan(...any) error }) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.TableNumber,
		&i.Status,
		&i.Total,
		&i.WaiterName,
		&i.Version,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.PaidAt,
	)
	return i, err
}

const orderLineColumns = `id, order_id, menu_item_id, quantity, notes, unit_price, created_at`

func scanOrderLine(row interface{ Scan(...any) error }) (OrderLine, error) {
	var i OrderLine
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.MenuItemID,
		&i.Quantity,
		&i.Notes,
		&i.UnitPrice,
		&i.CreatedAt,
	)
	return i, err
}

const getMenuItemForOrder = `-- name: GetMenuItemForOrder :one
SELECT id, name, price, available, created_at FROM menu_items
WHERE id = $1
`

func (q *Queries) GetMenuItemForOrder(ctx context.Context, id string) (MenuItem, error) {
	row := q.db.QueryRow(ctx, getMenuItemForOrder, id)
	var i MenuItem
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Price,
		&i.Available,
		&i.CreatedAt,
	)
	return i, err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (table_number, status, total, waiter_name)
VALUES ($1, 'new', 0, $2)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	TableNumber int32       `json:"table_number"`
	WaiterName  pgtype.Text `json:"waiter_name"`
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder, arg.TableNumber, arg.WaiterName)
	return scanOrder(row)
}

const createOrderLine = `-- name: CreateOrderLine :one
INSERT INTO order_lines (order_id, menu_item_id, quantity, notes, unit_price)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + orderLineColumns

type CreateOrderLineParams struct {
	OrderID    uuid.UUID      `json:"order_id"`
	MenuItemID string         `json:"menu_item_id"`
	Quantity   int32          `json:"quantity"`
	Notes      pgtype.Text    `json:"notes"`
	UnitPrice  pgtype.Numeric `json:"unit_price"`
}

func (q *Queries) CreateOrderLine(ctx context.Context, arg CreateOrderLineParams) (OrderLine, error) {
	row := q.db.QueryRow(ctx, createOrderLine,
		arg.OrderID,
		arg.MenuItemID,
		arg.Quantity,
		arg.Notes,
		arg.UnitPrice,
	)
	return scanOrderLine(row)
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + ` FROM orders
WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, getOrder, id)
	return scanOrder(row)
}

const getOrderLine = `-- name: GetOrderLine :one
SELECT ` + orderLineColumns + ` FROM order_lines
WHERE id = $1
`

func (q *Queries) GetOrderLine(ctx context.Context, id uuid.UUID) (OrderLine, error) {
	row := q.db.QueryRow(ctx, getOrderLine, id)
	return scanOrderLine(row)
}

const getOrderLineByItem = `-- name: GetOrderLineByItem :one
SELECT ` + orderLineColumns + ` FROM order_lines
WHERE order_id = $1 AND menu_item_id = $2
`

type GetOrderLineByItemParams struct {
	OrderID    uuid.UUID `json:"order_id"`
	MenuItemID string    `json:"menu_item_id"`
}

func (q *Queries) GetOrderLineByItem(ctx context.Context, arg GetOrderLineByItemParams) (OrderLine, error) {
	row := q.db.QueryRow(ctx, getOrderLineByItem, arg.OrderID, arg.MenuItemID)
	return scanOrderLine(row)
}

const listOrderLines = `-- name: ListOrderLines :many
SELECT ` + orderLineColumns + ` FROM order_lines
WHERE order_id = $1
ORDER BY created_at, id
`

func (q *Queries) ListOrderLines(ctx context.Context, orderID uuid.UUID) ([]OrderLine, error) {
	rows, err := q.db.Query(ctx, listOrderLines, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrderLine{}
	for rows.Next() {
		i, err := scanOrderLine(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listActiveOrderLines = `-- name: ListActiveOrderLines :many
SELECT l.id, l.order_id, l.menu_item_id, l.quantity, l.notes, l.unit_price, l.created_at
FROM order_lines l
JOIN orders o ON o.id = l.order_id
WHERE o.status <> 'paid'
ORDER BY l.created_at, l.id
`

func (q *Queries) ListActiveOrderLines(ctx context.Context) ([]OrderLine, error) {
	rows, err := q.db.Query(ctx, listActiveOrderLines)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrderLine{}
	for rows.Next() {
		i, err := scanOrderLine(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const addOrderLineQuantity = `-- name: AddOrderLineQuantity :one
UPDATE order_lines SET quantity = quantity + $2
WHERE id = $1
RETURNING ` + orderLineColumns

type AddOrderLineQuantityParams struct {
	ID    uuid.UUID `json:"id"`
	Delta int32     `json:"delta"`
}

func (q *Queries) AddOrderLineQuantity(ctx context.Context, arg AddOrderLineQuantityParams) (OrderLine, error) {
	row := q.db.QueryRow(ctx, addOrderLineQuantity, arg.ID, arg.Delta)
	return scanOrderLine(row)
}

const setOrderLineQuantity = `-- name: SetOrderLineQuantity :one
UPDATE order_lines SET quantity = $2
WHERE id = $1
RETURNING ` + orderLineColumns

type SetOrderLineQuantityParams struct {
	ID       uuid.UUID `json:"id"`
	Quantity int32     `json:"quantity"`
}

func (q *Queries) SetOrderLineQuantity(ctx context.Context, arg SetOrderLineQuantityParams) (OrderLine, error) {
	row := q.db.QueryRow(ctx, setOrderLineQuantity, arg.ID, arg.Quantity)
	return scanOrderLine(row)
}

const deleteOrderLine = `-- name: DeleteOrderLine :exec
DELETE FROM order_lines WHERE id = $1
`

func (q *Queries) DeleteOrderLine(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteOrderLine, id)
	return err
}

const countOrderLines = `-- name: CountOrderLines :one
SELECT COUNT(*) FROM order_lines WHERE order_id = $1
`

func (q *Queries) CountOrderLines(ctx context.Context, orderID uuid.UUID) (int64, error) {
	row := q.db.QueryRow(ctx, countOrderLines, orderID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const recalculateOrderTotal = `-- name: RecalculateOrderTotal :one
UPDATE orders SET
    total = COALESCE((SELECT SUM(l.quantity * l.unit_price) FROM order_lines l WHERE l.order_id = orders.id), 0),
    version = version + 1,
    updated_at = now()
WHERE id = $1 AND version = $2
RETURNING ` + orderColumns

type RecalculateOrderTotalParams struct {
	ID      uuid.UUID `json:"id"`
	Version int64     `json:"version"`
}

// RecalculateOrderTotal recomputes the total from the lines and bumps the
// version. Returns pgx.ErrNoRows when the expected version is stale.
func (q *Queries) RecalculateOrderTotal(ctx context.Context, arg RecalculateOrderTotalParams) (Order, error) {
	row := q.db.QueryRow(ctx, recalculateOrderTotal, arg.ID, arg.Version)
	return scanOrder(row)
}

const updateOrderStatus = `-- name: UpdateOrderStatus :one
UPDATE orders SET
    status = $2,
    version = version + 1,
    updated_at = now(),
    paid_at = CASE WHEN $2 = 'paid' THEN now() ELSE paid_at END
WHERE id = $1 AND version = $3
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID      uuid.UUID `json:"id"`
	Status  string    `json:"status"`
	Version int64     `json:"version"`
}

// UpdateOrderStatus is a conditional update on the expected version.
// Returns pgx.ErrNoRows when another writer got there first.
func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status, arg.Version)
	return scanOrder(row)
}

const deleteOrder = `-- name: DeleteOrder :execrows
DELETE FROM orders WHERE id = $1 AND version = $2
`

type DeleteOrderParams struct {
	ID      uuid.UUID `json:"id"`
	Version int64     `json:"version"`
}

func (q *Queries) DeleteOrder(ctx context.Context, arg DeleteOrderParams) (int64, error) {
	result, err := q.db.Exec(ctx, deleteOrder, arg.ID, arg.Version)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listActiveOrders = `-- name: ListActiveOrders :many
SELECT ` + orderColumns + ` FROM orders
WHERE status <> 'paid'
ORDER BY created_at, id
`

func (q *Queries) ListActiveOrders(ctx context.Context) ([]Order, error) {
	rows, err := q.db.Query(ctx, listActiveOrders)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		i, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listPaidOrders = `-- name: ListPaidOrders :many
SELECT ` + orderColumns + ` FROM orders
WHERE status = 'paid'
  AND ($2::timestamptz IS NULL OR paid_at >= $2)
  AND ($3::timestamptz IS NULL OR paid_at < $3)
ORDER BY paid_at DESC, id
LIMIT $1
`

type ListPaidOrdersParams struct {
	Limit    int32              `json:"limit"`
	FromDate pgtype.Timestamptz `json:"from_date"`
	ToDate   pgtype.Timestamptz `json:"to_date"`
}

func (q *Queries) ListPaidOrders(ctx context.Context, arg ListPaidOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listPaidOrders, arg.Limit, arg.FromDate, arg.ToDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		i, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertOrderStatusLog = `-- name: InsertOrderStatusLog :exec
INSERT INTO order_status_log (order_id, from_status, to_status, changed_by)
VALUES ($1, $2, $3, $4)
`

type InsertOrderStatusLogParams struct {
	OrderID    uuid.UUID   `json:"order_id"`
	FromStatus pgtype.Text `json:"from_status"`
	ToStatus   string      `json:"to_status"`
	ChangedBy  pgtype.Text `json:"changed_by"`
}

func (q *Queries) InsertOrderStatusLog(ctx context.Context, arg InsertOrderStatusLogParams) error {
	_, err := q.db.Exec(ctx, insertOrderStatusLog,
		arg.OrderID,
		arg.FromStatus,
		arg.ToStatus,
		arg.ChangedBy,
	)
	return err
}
