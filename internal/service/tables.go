package service

import (
	"context"
	"errors"

	"github.com/floorline/api/internal/database"
	"github.com/floorline/api/internal/enum"
	"github.com/floorline/api/internal/event"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// TableController owns per-table occupancy. A table is occupied exactly when
// it links an order; the database CHECK constraint backs that up.
type TableController struct {
	pool     Pool
	newStore NewTableStore
	notify   event.Publisher
}

// NewTableController creates a new TableController.
func NewTableController(pool Pool, newStore NewTableStore, notify event.Publisher) *TableController {
	if notify == nil {
		notify = event.Nop{}
	}
	return &TableController{pool: pool, newStore: newStore, notify: notify}
}

func isValidTableStatus(s string) bool {
	switch s {
	case enum.TableStatusAvailable, enum.TableStatusOccupied,
		enum.TableStatusReserved, enum.TableStatusNeedsCleaning:
		return true
	}
	return false
}

func lockTable(ctx context.Context, store TableStore, number int32) (database.RestaurantTable, error) {
	if number <= 0 {
		return database.RestaurantTable{}, ErrInvalidTableNumber
	}
	t, err := store.GetTableForUpdate(ctx, number)
	if errors.Is(err, pgx.ErrNoRows) {
		return t, ErrTableNotFound
	}
	if err != nil {
		return t, persistence("get table", err)
	}
	return t, nil
}

// assignTable links orderID to the table and marks it occupied. Re-assigning
// the same order is a no-op; a different order overwrites the link.
func assignTable(ctx context.Context, store TableStore, number int32, orderID uuid.UUID) (database.RestaurantTable, bool, error) {
	t, err := lockTable(ctx, store, number)
	if err != nil {
		return t, false, err
	}
	if t.Status == enum.TableStatusOccupied && t.CurrentOrderID.Valid && uuid.UUID(t.CurrentOrderID.Bytes) == orderID {
		return t, false, nil
	}
	t, err = store.AssignTableOrder(ctx, database.AssignTableOrderParams{
		Number:  number,
		OrderID: orderID,
	})
	if err != nil {
		return t, false, persistence("assign table", err)
	}
	return t, true, nil
}

// releaseTable clears the table only while it still points at orderID. A
// table already handed to another order is left alone.
func releaseTable(ctx context.Context, store TableStore, number int32, orderID uuid.UUID, status string) (bool, error) {
	_, err := store.ReleaseTableOrder(ctx, database.ReleaseTableOrderParams{
		Number:  number,
		OrderID: orderID,
		Status:  status,
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, persistence("release table", err)
	}
	return true, nil
}

func activeOrder(ctx context.Context, store TableStore, orderID uuid.UUID) (database.Order, error) {
	o, err := store.GetOrder(ctx, orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return o, ErrOrderNotFound
	}
	if err != nil {
		return o, persistence("get order", err)
	}
	if o.Status == enum.OrderStatusPaid {
		return o, ErrOrderNotActive
	}
	return o, nil
}

// tableOrder is activeOrder restricted to orders placed at table number.
func tableOrder(ctx context.Context, store TableStore, number int32, orderID uuid.UUID) (database.Order, error) {
	o, err := activeOrder(ctx, store, orderID)
	if err != nil {
		return o, err
	}
	if o.TableNumber != number {
		return o, ErrOrderOtherTable
	}
	return o, nil
}

// mutate runs fn on a locked table inside a transaction and publishes a
// table change after commit.
func (c *TableController) mutate(ctx context.Context, number int32, fn func(store TableStore, t database.RestaurantTable) (database.RestaurantTable, error)) (*Table, error) {
	var updated database.RestaurantTable
	err := inTx(ctx, c.pool, func(tx pgx.Tx) error {
		store := c.newStore(tx)
		t, err := lockTable(ctx, store, number)
		if err != nil {
			return err
		}
		updated, err = fn(store, t)
		return err
	})
	if err != nil {
		return nil, err
	}

	var changes changeSet
	changes.table(number)
	changes.publish(ctx, c.notify)

	out := toTable(updated)
	return &out, nil
}

// assignOrder marks the table occupied by orderID, which must be active and
// placed at this table.
func (c *TableController) assignOrder(ctx context.Context, number int32, orderID uuid.UUID) (*Table, error) {
	return c.mutate(ctx, number, func(store TableStore, _ database.RestaurantTable) (database.RestaurantTable, error) {
		if _, err := tableOrder(ctx, store, number, orderID); err != nil {
			return database.RestaurantTable{}, err
		}
		t, _, err := assignTable(ctx, store, number, orderID)
		return t, err
	})
}

// release sends the table to needs-cleaning and drops its order link and
// reservation.
func (c *TableController) release(ctx context.Context, number int32) (*Table, error) {
	return c.mutate(ctx, number, func(store TableStore, _ database.RestaurantTable) (database.RestaurantTable, error) {
		t, err := store.SetTableStatus(ctx, database.SetTableStatusParams{
			Number: number,
			Status: enum.TableStatusNeedsCleaning,
		})
		if err != nil {
			return t, persistence("release table", err)
		}
		return t, nil
	})
}

// SetTableStatusRequest is a staff-driven status change.
type SetTableStatusRequest struct {
	Number         int32
	Status         string
	CurrentOrderID *uuid.UUID
}

// SetStatus applies a direct status change. Occupied needs an active order
// placed at this table (given, or already linked); reserved is refused while occupied; available
// and needs-cleaning drop the order link.
func (c *TableController) SetStatus(ctx context.Context, req SetTableStatusRequest) (*Table, error) {
	if !isValidTableStatus(req.Status) {
		return nil, ErrInvalidTableStatus
	}

	return c.mutate(ctx, req.Number, func(store TableStore, t database.RestaurantTable) (database.RestaurantTable, error) {
		params := database.SetTableStatusParams{
			Number: req.Number,
			Status: req.Status,
		}

		switch req.Status {
		case enum.TableStatusOccupied:
			orderID := t.CurrentOrderID
			if req.CurrentOrderID != nil {
				orderID = pgtype.UUID{Bytes: *req.CurrentOrderID, Valid: true}
			}
			if !orderID.Valid {
				return t, ErrOrderIDRequired
			}
			if _, err := tableOrder(ctx, store, req.Number, uuid.UUID(orderID.Bytes)); err != nil {
				return t, err
			}
			params.CurrentOrderID = orderID
			params.ReservedFor = t.ReservedFor
		case enum.TableStatusReserved:
			if t.Status == enum.TableStatusOccupied {
				return t, ErrTableOccupied
			}
			params.ReservedFor = t.ReservedFor
		case enum.TableStatusAvailable:
			params.MarkCleaned = t.Status == enum.TableStatusNeedsCleaning
		}

		updated, err := store.SetTableStatus(ctx, params)
		if err != nil {
			return updated, persistence("set table status", err)
		}
		return updated, nil
	})
}

// Reserve holds a free table for a guest.
func (c *TableController) Reserve(ctx context.Context, number int32, reservedFor string) (*Table, error) {
	if reservedFor == "" {
		return nil, ErrReservedForRequired
	}
	return c.mutate(ctx, number, func(store TableStore, t database.RestaurantTable) (database.RestaurantTable, error) {
		if t.Status == enum.TableStatusOccupied {
			return t, ErrTableOccupied
		}
		updated, err := store.SetTableStatus(ctx, database.SetTableStatusParams{
			Number:      number,
			Status:      enum.TableStatusReserved,
			ReservedFor: textOrNull(reservedFor),
		})
		if err != nil {
			return updated, persistence("reserve table", err)
		}
		return updated, nil
	})
}

// GetAll returns every table ordered by number.
func (c *TableController) GetAll(ctx context.Context) ([]Table, error) {
	rows, err := c.newStore(c.pool).ListTables(ctx)
	if err != nil {
		return nil, persistence("list tables", err)
	}
	out := make([]Table, len(rows))
	for i, t := range rows {
		out[i] = toTable(t)
	}
	return out, nil
}

// Get returns one table.
func (c *TableController) Get(ctx context.Context, number int32) (*Table, error) {
	if number <= 0 {
		return nil, ErrInvalidTableNumber
	}
	t, err := c.newStore(c.pool).GetTable(ctx, number)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTableNotFound
	}
	if err != nil {
		return nil, persistence("get table", err)
	}
	out := toTable(t)
	return &out, nil
}
