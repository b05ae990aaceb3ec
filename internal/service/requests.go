package service

import (
	"context"
	"errors"

	"github.com/floorline/api/internal/database"
	"github.com/floorline/api/internal/enum"
	"github.com/floorline/api/internal/event"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ServiceRequestService handles calls from a table to the floor staff.
type ServiceRequestService struct {
	pool     Pool
	newStore NewServiceRequestStore
	notify   event.Publisher
}

// NewServiceRequestService creates a new ServiceRequestService.
func NewServiceRequestService(pool Pool, newStore NewServiceRequestStore, notify event.Publisher) *ServiceRequestService {
	if notify == nil {
		notify = event.Nop{}
	}
	return &ServiceRequestService{pool: pool, newStore: newStore, notify: notify}
}

func isValidRequestKind(k string) bool {
	switch k {
	case enum.ServiceRequestCallWaiter, enum.ServiceRequestRequestBill, enum.ServiceRequestAssistance:
		return true
	}
	return false
}

// CreateServiceRequestRequest is the input for serviceRequests.create.
type CreateServiceRequestRequest struct {
	TableNumber    int32
	Kind           string
	Notes          string
	IdempotencyKey string
}

// Create opens a request and notifies the table topic.
func (s *ServiceRequestService) Create(ctx context.Context, req CreateServiceRequestRequest) (*ServiceRequest, error) {
	if req.TableNumber <= 0 {
		return nil, ErrInvalidTableNumber
	}
	if !isValidRequestKind(req.Kind) {
		return nil, ErrInvalidRequestKind
	}

	var (
		result   ServiceRequest
		replayed bool
	)
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		store := s.newStore(tx)

		prior, err := claimKey(ctx, store, req.IdempotencyKey, OpServiceRequestCreate)
		if err != nil {
			return err
		}
		if prior != nil {
			replayed = true
			result, err = replay[ServiceRequest](prior)
			return err
		}

		if _, err := store.GetTable(ctx, req.TableNumber); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrTableNotFound
			}
			return persistence("get table", err)
		}

		row, err := store.CreateServiceRequest(ctx, database.CreateServiceRequestParams{
			TableNumber: req.TableNumber,
			Kind:        req.Kind,
			Notes:       textOrNull(req.Notes),
		})
		if err != nil {
			return persistence("create service request", err)
		}
		result = toServiceRequest(row)
		return saveResult(ctx, store, req.IdempotencyKey, result)
	})
	if err != nil {
		return nil, err
	}

	if !replayed {
		var changes changeSet
		changes.serviceRequest(enum.EventServiceRequestCreated, result.ID, result.TableNumber)
		changes.publish(ctx, s.notify)
	}
	return &result, nil
}

// ListOpen returns unresolved requests, oldest first.
func (s *ServiceRequestService) ListOpen(ctx context.Context) ([]ServiceRequest, error) {
	rows, err := s.newStore(s.pool).ListOpenServiceRequests(ctx)
	if err != nil {
		return nil, persistence("list open service requests", err)
	}
	out := make([]ServiceRequest, len(rows))
	for i, r := range rows {
		out[i] = toServiceRequest(r)
	}
	return out, nil
}

// Resolve closes an open request.
func (s *ServiceRequestService) Resolve(ctx context.Context, id uuid.UUID) (*ServiceRequest, error) {
	store := s.newStore(s.pool)
	row, err := store.ResolveServiceRequest(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := store.GetServiceRequest(ctx, id); errors.Is(getErr, pgx.ErrNoRows) {
			return nil, ErrServiceRequestNotFound
		}
		return nil, ErrRequestAlreadyClosed
	}
	if err != nil {
		return nil, persistence("resolve service request", err)
	}

	var changes changeSet
	changes.serviceRequest(enum.EventServiceRequestUpdated, row.ID, row.TableNumber)
	changes.publish(ctx, s.notify)

	out := toServiceRequest(row)
	return &out, nil
}
