package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const serviceRequestColumns = `id, table_number, kind, notes, status, created_at, resolved_at`

func scanServiceRequest(row interface{ Scan(...any) error }) (ServiceRequest, error) {
	var i ServiceRequest
	err := row.Scan(
		&i.ID,
		&i.TableNumber,
		&i.Kind,
		&i.Notes,
		&i.Status,
		&i.CreatedAt,
		&i.ResolvedAt,
	)
	return i, err
}

const createServiceRequest = `-- name: CreateServiceRequest :one
INSERT INTO service_requests (table_number, kind, notes)
VALUES ($1, $2, $3)
RETURNING ` + serviceRequestColumns

type CreateServiceRequestParams struct {
	TableNumber int32       `json:"table_number"`
	Kind        string      `json:"kind"`
	Notes       pgtype.Text `json:"notes"`
}

func (q *Queries) CreateServiceRequest(ctx context.Context, arg CreateServiceRequestParams) (ServiceRequest, error) {
	row := q.db.QueryRow(ctx, createServiceRequest, arg.TableNumber, arg.Kind, arg.Notes)
	return scanServiceRequest(row)
}

const listOpenServiceRequests = `-- name: ListOpenServiceRequests :many
SELECT ` + serviceRequestColumns + ` FROM service_requests
WHERE status = 'open'
ORDER BY created_at, id
`

func (q *Queries) ListOpenServiceRequests(ctx context.Context) ([]ServiceRequest, error) {
	rows, err := q.db.Query(ctx, listOpenServiceRequests)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ServiceRequest{}
	for rows.Next() {
		i, err := scanServiceRequest(rows)
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

const resolveServiceRequest = `-- name: ResolveServiceRequest :one
UPDATE service_requests SET status = 'resolved', resolved_at = now()
WHERE id = $1 AND status = 'open'
RETURNING ` + serviceRequestColumns

func (q *Queries) ResolveServiceRequest(ctx context.Context, id uuid.UUID) (ServiceRequest, error) {
	row := q.db.QueryRow(ctx, resolveServiceRequest, id)
	return scanServiceRequest(row)
}

const getServiceRequest = `-- name: GetServiceRequest :one
SELECT ` + serviceRequestColumns + ` FROM service_requests
WHERE id = $1
`

func (q *Queries) GetServiceRequest(ctx context.Context, id uuid.UUID) (ServiceRequest, error) {
	row := q.db.QueryRow(ctx, getServiceRequest, id)
	return scanServiceRequest(row)
}

const claimIdempotencyKey = `-- name: ClaimIdempotencyKey :execrows
INSERT INTO idempotency_keys (key, operation)
VALUES ($1, $2)
ON CONFLICT (key) DO NOTHING
`

type ClaimIdempotencyKeyParams struct {
	Key       string `json:"key"`
	Operation string `json:"operation"`
}

// ClaimIdempotencyKey returns 1 when the key is new. A concurrent claimant
// blocks on the unique index until the first transaction settles.
func (q *Queries) ClaimIdempotencyKey(ctx context.Context, arg ClaimIdempotencyKeyParams) (int64, error) {
	result, err := q.db.Exec(ctx, claimIdempotencyKey, arg.Key, arg.Operation)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const getIdempotencyKey = `-- name: GetIdempotencyKey :one
SELECT key, operation, result, created_at FROM idempotency_keys
WHERE key = $1
`

func (q *Queries) GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKey, error) {
	row := q.db.QueryRow(ctx, getIdempotencyKey, key)
	var i IdempotencyKey
	err := row.Scan(&i.Key, &i.Operation, &i.Result, &i.CreatedAt)
	return i, err
}

const saveIdempotencyResult = `-- name: SaveIdempotencyResult :exec
UPDATE idempotency_keys SET result = $2 WHERE key = $1
`

type SaveIdempotencyResultParams struct {
	Key    string `json:"key"`
	Result []byte `json:"result"`
}

func (q *Queries) SaveIdempotencyResult(ctx context.Context, arg SaveIdempotencyResultParams) error {
	_, err := q.db.Exec(ctx, saveIdempotencyResult, arg.Key, arg.Result)
	return err
}

const deleteExpiredIdempotencyKeys = `-- name: DeleteExpiredIdempotencyKeys :execrows
DELETE FROM idempotency_keys WHERE created_at < $1
`

func (q *Queries) DeleteExpiredIdempotencyKeys(ctx context.Context, before time.Time) (int64, error) {
	result, err := q.db.Exec(ctx, deleteExpiredIdempotencyKeys, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
