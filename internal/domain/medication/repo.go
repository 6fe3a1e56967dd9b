package medication

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type OrderRepository interface {
	Create(ctx context.Context, o *MedicationOrder) error
	GetByID(ctx context.Context, id uuid.UUID) (*MedicationOrder, error)
	List(ctx context.Context, f OrderFilter, limit, offset int) ([]*MedicationOrder, int, error)
	// UpdateDecision persists an approval/rejection. The update is guarded by
	// the order's version and pending status; ErrVersionConflict is returned
	// when either no longer holds.
	UpdateDecision(ctx context.Context, o *MedicationOrder) error
	// UpdateAfterAdministration advances next/last dose. Guarded by version;
	// returns ErrVersionConflict on a stale read.
	UpdateAfterAdministration(ctx context.Context, orderID uuid.UUID, version int64, nextDoseAt *time.Time, lastDoseAt time.Time) error
	// Deactivate clears active and nextDoseAt.
	Deactivate(ctx context.Context, orderID uuid.UUID) error
}

type AdministrationRepository interface {
	// Append inserts one immutable record. Returns ErrDuplicateKey when the
	// (orderID, idempotencyKey) pair already exists.
	Append(ctx context.Context, r *AdministrationRecord) error
	GetByIdempotencyKey(ctx context.Context, orderID uuid.UUID, key string) (*AdministrationRecord, error)
	// ListByOrder returns records for an order, administeredAt descending.
	ListByOrder(ctx context.Context, orderID uuid.UUID, limit, offset int) ([]*AdministrationRecord, int, error)
}
