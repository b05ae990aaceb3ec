package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const tableColumns = `number, status, current_order_id, capacity, reserved_for, last_cleaned, updated_at`

func scanTable(row interface{ Scan(...any) error }) (RestaurantTable, error) {
	var i RestaurantTable
	err := row.Scan(
		&i.Number,
		&i.Status,
		&i.CurrentOrderID,
		&i.Capacity,
		&i.ReservedFor,
		&i.LastCleaned,
		&i.UpdatedAt,
	)
	return i, err
}

const getTable = `-- name: GetTable :one
SELECT ` + tableColumns + ` FROM restaurant_tables
WHERE number = $1
`

func (q *Queries) GetTable(ctx context.Context, number int32) (RestaurantTable, error) {
	row := q.db.QueryRow(ctx, getTable, number)
	return scanTable(row)
}

const getTableForUpdate = `-- name: GetTableForUpdate :one
SELECT ` + tableColumns + ` FROM restaurant_tables
WHERE number = $1
FOR UPDATE
`

func (q *Queries) GetTableForUpdate(ctx context.Context, number int32) (RestaurantTable, error) {
	row := q.db.QueryRow(ctx, getTableForUpdate, number)
	return scanTable(row)
}

const listTables = `-- name: ListTables :many
SELECT ` + tableColumns + ` FROM restaurant_tables
ORDER BY number
`

func (q *Queries) ListTables(ctx context.Context) ([]RestaurantTable, error) {
	rows, err := q.db.Query(ctx, listTables)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []RestaurantTable{}
	for rows.Next() {
		i, err := scanTable(rows)
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

const assignTableOrder = `-- name: AssignTableOrder :one
UPDATE restaurant_tables SET
    status = 'occupied',
    current_order_id = $2,
    updated_at = now()
WHERE number = $1
RETURNING ` + tableColumns

type AssignTableOrderParams struct {
	Number  int32     `json:"number"`
	OrderID uuid.UUID `json:"order_id"`
}

func (q *Queries) AssignTableOrder(ctx context.Context, arg AssignTableOrderParams) (RestaurantTable, error) {
	row := q.db.QueryRow(ctx, assignTableOrder, arg.Number, arg.OrderID)
	return scanTable(row)
}

const releaseTableOrder = `-- name: ReleaseTableOrder :one
UPDATE restaurant_tables SET
    status = $3,
    current_order_id = NULL,
    reserved_for = NULL,
    updated_at = now()
WHERE number = $1 AND current_order_id = $2
RETURNING ` + tableColumns

type ReleaseTableOrderParams struct {
	Number  int32     `json:"number"`
	OrderID uuid.UUID `json:"order_id"`
	Status  string    `json:"status"`
}

// ReleaseTableOrder only touches the table while it still points at OrderID,
// so a table reassigned to a newer order is left alone (pgx.ErrNoRows).
func (q *Queries) ReleaseTableOrder(ctx context.Context, arg ReleaseTableOrderParams) (RestaurantTable, error) {
	row := q.db.QueryRow(ctx, releaseTableOrder, arg.Number, arg.OrderID, arg.Status)
	return scanTable(row)
}

const setTableStatus = `-- name: SetTableStatus :one
UPDATE restaurant_tables SET
    status = $2,
    current_order_id = $3,
    reserved_for = $4,
    last_cleaned = CASE WHEN $5::boolean THEN now() ELSE last_cleaned END,
    updated_at = now()
WHERE number = $1
RETURNING ` + tableColumns

type SetTableStatusParams struct {
	Number         int32       `json:"number"`
	Status         string      `json:"status"`
	CurrentOrderID pgtype.UUID `json:"current_order_id"`
	ReservedFor    pgtype.Text `json:"reserved_for"`
	MarkCleaned    bool        `json:"mark_cleaned"`
}

func (q *Queries) SetTableStatus(ctx context.Context, arg SetTableStatusParams) (RestaurantTable, error) {
	row := q.db.QueryRow(ctx, setTableStatus,
		arg.Number,
		arg.Status,
		arg.CurrentOrderID,
		arg.ReservedFor,
		arg.MarkCleaned,
	)
	return scanTable(row)
}

const upsertTable = `-- name: UpsertTable :one
INSERT INTO restaurant_tables (number, capacity)
VALUES ($1, $2)
ON CONFLICT (number) DO UPDATE SET capacity = EXCLUDED.capacity
RETURNING ` + tableColumns

type UpsertTableParams struct {
	Number   int32 `json:"number"`
	Capacity int32 `json:"capacity"`
}

func (q *Queries) UpsertTable(ctx context.Context, arg UpsertTableParams) (RestaurantTable, error) {
	row := q.db.QueryRow(ctx, upsertTable, arg.Number, arg.Capacity)
	return scanTable(row)
}
