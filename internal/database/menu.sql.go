package database

import (
	"context"
)

const listMenuItems = `-- name: ListMenuItems :many
SELECT id, name, price, available, created_at FROM menu_items
ORDER BY name
`

func (q *Queries) ListMenuItems(ctx context.Context) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, listMenuItems)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []MenuItem{}
	for rows.Next() {
		var i MenuItem
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.Price,
			&i.Available,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const setMenuItemAvailable = `-- name: SetMenuItemAvailable :one
UPDATE menu_items SET available = $2
WHERE id = $1
RETURNING id, name, price, available, created_at
`

type SetMenuItemAvailableParams struct {
	ID        string `json:"id"`
	Available bool   `json:"available"`
}

func (q *Queries) SetMenuItemAvailable(ctx context.Context, arg SetMenuItemAvailableParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, setMenuItemAvailable, arg.ID, arg.Available)
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
