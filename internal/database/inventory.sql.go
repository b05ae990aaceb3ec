package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const inventoryColumns = `id, name, unit, current_stock, minimum_stock, cost_per_unit, version, updated_at`

func scanInventoryItem(row interface{ Scan(...any) error }) (InventoryItem, error) {
	var i InventoryItem
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Unit,
		&i.CurrentStock,
		&i.MinimumStock,
		&i.CostPerUnit,
		&i.Version,
		&i.UpdatedAt,
	)
	return i, err
}

const movementColumns = `id, inventory_item_id, movement_type, quantity, reference_id, notes, created_at`

func scanStockMovement(row interface{ Scan(...any) error }) (StockMovement, error) {
	var i StockMovement
	err := row.Scan(
		&i.ID,
		&i.InventoryItemID,
		&i.MovementType,
		&i.Quantity,
		&i.ReferenceID,
		&i.Notes,
		&i.CreatedAt,
	)
	return i, err
}

const listRecipeIngredients = `-- name: ListRecipeIngredients :many
SELECT menu_item_id, inventory_item_id, quantity_needed FROM menu_item_ingredients
WHERE menu_item_id = $1
ORDER BY inventory_item_id
`

func (q *Queries) ListRecipeIngredients(ctx context.Context, menuItemID string) ([]MenuItemIngredient, error) {
	rows, err := q.db.Query(ctx, listRecipeIngredients, menuItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []MenuItemIngredient{}
	for rows.Next() {
		var i MenuItemIngredient
		if err := rows.Scan(&i.MenuItemID, &i.InventoryItemID, &i.QuantityNeeded); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getInventoryItem = `-- name: GetInventoryItem :one
SELECT ` + inventoryColumns + ` FROM inventory_items
WHERE id = $1
`

func (q *Queries) GetInventoryItem(ctx context.Context, id string) (InventoryItem, error) {
	row := q.db.QueryRow(ctx, getInventoryItem, id)
	return scanInventoryItem(row)
}

const listInventoryItems = `-- name: ListInventoryItems :many
SELECT ` + inventoryColumns + ` FROM inventory_items
ORDER BY id
`

func (q *Queries) ListInventoryItems(ctx context.Context) ([]InventoryItem, error) {
	rows, err := q.db.Query(ctx, listInventoryItems)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []InventoryItem{}
	for rows.Next() {
		i, err := scanInventoryItem(rows)
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

const applyStockDelta = `-- name: ApplyStockDelta :one
UPDATE inventory_items SET
    current_stock = current_stock + $2,
    version = version + 1,
    updated_at = now()
WHERE id = $1
RETURNING ` + inventoryColumns

type ApplyStockDeltaParams struct {
	ID    string         `json:"id"`
	Delta pgtype.Numeric `json:"delta"`
}

// ApplyStockDelta is a single atomic increment at the storage layer; the
// balance may go negative.
func (q *Queries) ApplyStockDelta(ctx context.Context, arg ApplyStockDeltaParams) (InventoryItem, error) {
	row := q.db.QueryRow(ctx, applyStockDelta, arg.ID, arg.Delta)
	return scanInventoryItem(row)
}

const applyStockDeltaNonNegative = `-- name: ApplyStockDeltaNonNegative :one
UPDATE inventory_items SET
    current_stock = current_stock + $2,
    version = version + 1,
    updated_at = now()
WHERE id = $1 AND current_stock + $2 >= 0
RETURNING ` + inventoryColumns

// ApplyStockDeltaNonNegative returns pgx.ErrNoRows when the item is missing
// or the resulting balance would be negative.
func (q *Queries) ApplyStockDeltaNonNegative(ctx context.Context, arg ApplyStockDeltaParams) (InventoryItem, error) {
	row := q.db.QueryRow(ctx, applyStockDeltaNonNegative, arg.ID, arg.Delta)
	return scanInventoryItem(row)
}

const createStockMovement = `-- name: CreateStockMovement :one
INSERT INTO stock_movements (inventory_item_id, movement_type, quantity, reference_id, notes)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + movementColumns

type CreateStockMovementParams struct {
	InventoryItemID string         `json:"inventory_item_id"`
	MovementType    string         `json:"movement_type"`
	Quantity        pgtype.Numeric `json:"quantity"`
	ReferenceID     pgtype.UUID    `json:"reference_id"`
	Notes           pgtype.Text    `json:"notes"`
}

func (q *Queries) CreateStockMovement(ctx context.Context, arg CreateStockMovementParams) (StockMovement, error) {
	row := q.db.QueryRow(ctx, createStockMovement,
		arg.InventoryItemID,
		arg.MovementType,
		arg.Quantity,
		arg.ReferenceID,
		arg.Notes,
	)
	return scanStockMovement(row)
}

const listStockMovements = `-- name: ListStockMovements :many
SELECT ` + movementColumns + ` FROM stock_movements
WHERE inventory_item_id = $1
ORDER BY created_at DESC, id
LIMIT $2
`

type ListStockMovementsParams struct {
	InventoryItemID string `json:"inventory_item_id"`
	Limit           int32  `json:"limit"`
}

func (q *Queries) ListStockMovements(ctx context.Context, arg ListStockMovementsParams) ([]StockMovement, error) {
	rows, err := q.db.Query(ctx, listStockMovements, arg.InventoryItemID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []StockMovement{}
	for rows.Next() {
		i, err := scanStockMovement(rows)
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

const sumStockMovements = `-- name: SumStockMovements :one
SELECT COALESCE(SUM(quantity), 0)::numeric FROM stock_movements
WHERE inventory_item_id = $1
`

func (q *Queries) SumStockMovements(ctx context.Context, inventoryItemID string) (pgtype.Numeric, error) {
	row := q.db.QueryRow(ctx, sumStockMovements, inventoryItemID)
	var sum pgtype.Numeric
	err := row.Scan(&sum)
	return sum, err
}

const upsertMenuItem = `-- name: UpsertMenuItem :exec
INSERT INTO menu_items (id, name, price, available)
VALUES ($1, $2, $3, TRUE)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price
`

type UpsertMenuItemParams struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Price pgtype.Numeric `json:"price"`
}

func (q *Queries) UpsertMenuItem(ctx context.Context, arg UpsertMenuItemParams) error {
	_, err := q.db.Exec(ctx, upsertMenuItem, arg.ID, arg.Name, arg.Price)
	return err
}

const upsertInventoryItem = `-- name: UpsertInventoryItem :exec
INSERT INTO inventory_items (id, name, unit, current_stock, minimum_stock, cost_per_unit)
VALUES ($1, $2, $3, 0, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    unit = EXCLUDED.unit,
    minimum_stock = EXCLUDED.minimum_stock,
    cost_per_unit = EXCLUDED.cost_per_unit
`

type UpsertInventoryItemParams struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Unit         string         `json:"unit"`
	MinimumStock pgtype.Numeric `json:"minimum_stock"`
	CostPerUnit  pgtype.Numeric `json:"cost_per_unit"`
}

// UpsertInventoryItem never writes current_stock on conflict; opening stock
// goes through a purchase movement.
func (q *Queries) UpsertInventoryItem(ctx context.Context, arg UpsertInventoryItemParams) error {
	_, err := q.db.Exec(ctx, upsertInventoryItem,
		arg.ID,
		arg.Name,
		arg.Unit,
		arg.MinimumStock,
		arg.CostPerUnit,
	)
	return err
}

const upsertRecipeIngredient = `-- name: UpsertRecipeIngredient :exec
INSERT INTO menu_item_ingredients (menu_item_id, inventory_item_id, quantity_needed)
VALUES ($1, $2, $3)
ON CONFLICT (menu_item_id, inventory_item_id) DO UPDATE SET quantity_needed = EXCLUDED.quantity_needed
`

func (q *Queries) UpsertRecipeIngredient(ctx context.Context, arg MenuItemIngredient) error {
	_, err := q.db.Exec(ctx, upsertRecipeIngredient, arg.MenuItemID, arg.InventoryItemID, arg.QuantityNeeded)
	return err
}
