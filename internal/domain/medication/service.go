package medication

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medagenda/medagenda/internal/platform/clock"
	"github.com/medagenda/medagenda/internal/platform/db"
)

// TxRunner executes fn atomically. The pgx-backed runner wraps fn in a
// transaction that the repositories pick up from the context; the no-op
// runner exists for in-memory tests.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// PgTxRunner returns a TxRunner backed by a pgx transaction.
func PgTxRunner(pool *pgxpool.Pool) TxRunner {
	return func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.RunInTx(ctx, pool, fn)
	}
}

// NoTxRunner returns a TxRunner that calls fn directly.
func NoTxRunner() TxRunner {
	return func(ctx context.Context, fn func(ctx context.Context) error) error {
		return fn(ctx)
	}
}

// Service orchestrates order lifecycle, approval decisions, and dose
// administration. Administration is serialized per order with an in-process
// mutex; the version guard in the repository covers writers outside this
// process.
type Service struct {
	orders     OrderRepository
	ledger     AdministrationRepository
	visibility *VisibilityFilter
	clock      clock.Clock
	runInTx    TxRunner
	locks      sync.Map // order id -> *sync.Mutex
}

func NewService(orders OrderRepository, ledger AdministrationRepository, visibility *VisibilityFilter, clk clock.Clock, runInTx TxRunner) *Service {
	return &Service{
		orders:     orders,
		ledger:     ledger,
		visibility: visibility,
		clock:      clk,
		runInTx:    runInTx,
	}
}

func (s *Service) lockFor(orderID uuid.UUID) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(orderID.String(), &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// CreateOrderInput is the draft submitted by a client.
type CreateOrderInput struct {
	StudentID            uuid.UUID   `json:"student_id"`
	Name                 string      `json:"name"`
	Dosage               string      `json:"dosage"`
	FrequencyDescription string      `json:"frequency_description"`
	DailyTimes           []string    `json:"daily_times"`
	StartDate            time.Time   `json:"start_date"`
	EndDate              *time.Time  `json:"end_date,omitempty"`
	Notes                *string     `json:"notes,omitempty"`
	Attachment           *Attachment `json:"prescription_attachment,omitempty"`
}

// CreateOrder validates a draft and persists it. Parents must attach a
// prescription and always start pending; teachers start pending; coordinator
// orders are approved immediately and scheduled.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput, actor Actor) (*MedicationOrder, error) {
	if !actor.Role.Valid() {
		return nil, &AuthorizationError{Role: actor.Role, Action: "create orders"}
	}
	if input.Name == "" {
		return nil, &ValidationError{Field: "name", Reason: "required"}
	}
	if input.Dosage == "" {
		return nil, &ValidationError{Field: "dosage", Reason: "required"}
	}
	if input.StudentID == uuid.Nil {
		return nil, &ValidationError{Field: "student_id", Reason: "required"}
	}
	if len(input.DailyTimes) == 0 {
		return nil, &ValidationError{Field: "daily_times", Reason: "at least one time of day is required"}
	}
	times := make([]TimeOfDay, len(input.DailyTimes))
	for i, raw := range input.DailyTimes {
		t, err := ParseTimeOfDay(raw)
		if err != nil {
			return nil, &ValidationError{Field: "daily_times", Reason: err.Error()}
		}
		times[i] = t
	}
	if actor.Role == RoleParent && input.Attachment == nil {
		return nil, &ValidationError{Field: "prescription_attachment", Reason: "prescription required"}
	}

	now := s.clock.Now()
	startDate := input.StartDate
	if startDate.IsZero() {
		startDate = now
	}

	order := &MedicationOrder{
		StudentID:            input.StudentID,
		Name:                 input.Name,
		Dosage:               input.Dosage,
		FrequencyDescription: input.FrequencyDescription,
		DailyTimes:           sortedTimes(times),
		StartDate:            startDate,
		EndDate:              input.EndDate,
		Notes:                input.Notes,
		Attachment:           input.Attachment,
		Status:               StatusPending,
		RequestedByID:        actor.ID,
		RequestedByRole:      actor.Role,
		RequestedAt:          now,
	}

	if actor.Role == RoleCoordinator {
		order.Status = StatusApproved
		order.Active = true
		order.DecidedByID = &actor.ID
		order.DecidedAt = &now
		order.NextDoseAt = ProjectNext(order.DailyTimes, now)
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, storageErr("create order", err)
	}
	return order, nil
}

// GetOrder returns a single order the actor is allowed to see.
func (s *Service) GetOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*MedicationOrder, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, storageErr("get order", err)
	}
	ok, err := s.visibility.CanView(ctx, actor, order)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &AuthorizationError{Role: actor.Role, Action: "view this order"}
	}
	return order, nil
}

// ListOrders returns the orders within the actor's visibility scope.
func (s *Service) ListOrders(ctx context.Context, actor Actor, limit, offset int) ([]*MedicationOrder, int, error) {
	filter, err := s.visibility.Scope(ctx, actor)
	if err != nil {
		if errors.Is(err, errNoVisibility) {
			return []*MedicationOrder{}, 0, nil
		}
		return nil, 0, err
	}
	items, total, err := s.orders.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, storageErr("list orders", err)
	}
	if items == nil {
		items = []*MedicationOrder{}
	}
	return items, total, nil
}

// PendingQueue returns pending orders awaiting a decision. Coordinator only.
func (s *Service) PendingQueue(ctx context.Context, actor Actor, limit, offset int) ([]*MedicationOrder, int, error) {
	if actor.Role != RoleCoordinator {
		return nil, 0, &AuthorizationError{Role: actor.Role, Action: "view the pending queue"}
	}
	pending := StatusPending
	items, total, err := s.orders.List(ctx, OrderFilter{Status: &pending}, limit, offset)
	if err != nil {
		return nil, 0, storageErr("list pending orders", err)
	}
	if items == nil {
		items = []*MedicationOrder{}
	}
	return items, total, nil
}

// Decide finalizes a pending order. Only coordinators may decide, each order
// is decided exactly once, and a failed decision leaves the order untouched.
func (s *Service) Decide(ctx context.Context, orderID uuid.UUID, decision Decision, actor Actor) (*MedicationOrder, error) {
	if actor.Role != RoleCoordinator {
		return nil, &AuthorizationError{Role: actor.Role, Action: "decide orders"}
	}
	if decision != DecisionApproved && decision != DecisionRejected {
		return nil, &ValidationError{Field: "decision", Reason: "must be approved or rejected"}
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, storageErr("get order", err)
	}
	if order.Decided() {
		return nil, &InvalidStateError{Status: order.Status, Action: "decide", Reason: "already decided"}
	}

	now := s.clock.Now()
	order.DecidedByID = &actor.ID
	order.DecidedAt = &now
	switch decision {
	case DecisionApproved:
		order.Status = StatusApproved
		order.Active = true
		order.NextDoseAt = ProjectNext(order.DailyTimes, now)
	case DecisionRejected:
		order.Status = StatusRejected
		order.NextDoseAt = nil
	}

	if err := s.orders.UpdateDecision(ctx, order); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, &InvalidStateError{Status: order.Status, Action: "decide", Reason: "already decided"}
		}
		return nil, storageErr("update decision", err)
	}
	return order, nil
}

// Administer records one dose against an approved, active order. The record
// append and the order's next/last dose update commit in one transaction; a
// retry with the same idempotency key returns the original record without a
// second append.
func (s *Service) Administer(ctx context.Context, orderID uuid.UUID, actor Actor, idempotencyKey string) (*AdministrationRecord, error) {
	if actor.Role != RoleTeacher && actor.Role != RoleCoordinator {
		return nil, &AuthorizationError{Role: actor.Role, Action: "administer doses"}
	}
	if idempotencyKey == "" {
		return nil, &ValidationError{Field: "idempotency_key", Reason: "required"}
	}

	mu := s.lockFor(orderID)
	mu.Lock()
	defer mu.Unlock()

	// Authorization comes first: the ledger holds a minor's health records,
	// so even an idempotent replay must pass the visibility check.
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, storageErr("get order", err)
	}
	ok, err := s.visibility.CanView(ctx, actor, order)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &AuthorizationError{Role: actor.Role, Action: "administer this order"}
	}

	if existing, err := s.ledger.GetByIdempotencyKey(ctx, orderID, idempotencyKey); err == nil {
		return replayedRecord(existing, actor)
	} else if !errors.Is(err, ErrRecordNotFound) {
		return nil, storageErr("check idempotency key", err)
	}

	now := s.clock.Now()
	if !order.Administrable(now) {
		reason := "order is not approved"
		switch {
		case order.Status == StatusApproved && !order.Active:
			reason = "order is deactivated"
		case order.Status == StatusApproved:
			reason = "order is past its end date"
		}
		return nil, &InvalidStateError{Status: order.Status, Action: "administer", Reason: reason}
	}

	cooldown := CanAdminister(order.DailyTimes, order.LastDoseAt, now)
	if !cooldown.Permitted {
		return nil, &PolicyViolation{Remaining: *cooldown.Remaining}
	}

	record := &AdministrationRecord{
		OrderID:                order.ID,
		StudentID:              order.StudentID,
		AdministeredByID:       actor.ID,
		AdministeredByRole:     actor.Role,
		AdministeredAt:         now,
		DosageSnapshot:         order.Dosage,
		MedicationNameSnapshot: order.Name,
		IdempotencyKey:         idempotencyKey,
	}
	nextDose := ProjectNext(order.DailyTimes, now)

	err = s.runInTx(ctx, func(ctx context.Context) error {
		if err := s.ledger.Append(ctx, record); err != nil {
			return err
		}
		return s.orders.UpdateAfterAdministration(ctx, order.ID, order.Version, nextDose, now)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			existing, getErr := s.ledger.GetByIdempotencyKey(ctx, orderID, idempotencyKey)
			if getErr != nil {
				return nil, storageErr("get existing record", getErr)
			}
			return replayedRecord(existing, actor)
		}
		return nil, storageErr("record administration", err)
	}
	return record, nil
}

// replayedRecord returns a previously appended record for an idempotent
// retry. A key reused by a different actor is a collision, not a retry:
// returning the other actor's record would silently drop this actor's dose.
func replayedRecord(existing *AdministrationRecord, actor Actor) (*AdministrationRecord, error) {
	if existing.AdministeredByID != actor.ID {
		return nil, &ValidationError{Field: "idempotency_key", Reason: "already used by another actor"}
	}
	return existing, nil
}

// Probe reports whether a dose could be recorded right now, with the
// remaining wait when it could not. Read-only.
func (s *Service) Probe(ctx context.Context, orderID uuid.UUID, actor Actor) (CooldownResult, error) {
	order, err := s.GetOrder(ctx, orderID, actor)
	if err != nil {
		return CooldownResult{}, err
	}
	now := s.clock.Now()
	if !order.Administrable(now) {
		return CooldownResult{Permitted: false}, nil
	}
	return CanAdminister(order.DailyTimes, order.LastDoseAt, now), nil
}

// History returns the order's administration ledger, most recent first.
func (s *Service) History(ctx context.Context, orderID uuid.UUID, actor Actor, limit, offset int) ([]*AdministrationRecord, int, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, 0, storageErr("get order", err)
	}
	ok, err := s.visibility.CanView(ctx, actor, order)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, &AuthorizationError{Role: actor.Role, Action: "view this order's history"}
	}
	items, total, err := s.ledger.ListByOrder(ctx, orderID, limit, offset)
	if err != nil {
		return nil, 0, storageErr("list administration records", err)
	}
	if items == nil {
		items = []*AdministrationRecord{}
	}
	return items, total, nil
}

// Deactivate manually stops an active order. Coordinator only.
func (s *Service) Deactivate(ctx context.Context, orderID uuid.UUID, actor Actor) (*MedicationOrder, error) {
	if actor.Role != RoleCoordinator {
		return nil, &AuthorizationError{Role: actor.Role, Action: "deactivate orders"}
	}

	mu := s.lockFor(orderID)
	mu.Lock()
	defer mu.Unlock()

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, storageErr("get order", err)
	}
	if order.Status != StatusApproved {
		return nil, &InvalidStateError{Status: order.Status, Action: "deactivate", Reason: "only approved orders can be deactivated"}
	}

	if err := s.orders.Deactivate(ctx, orderID); err != nil {
		return nil, storageErr("deactivate order", err)
	}
	order, err = s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, storageErr("get order", err)
	}
	return order, nil
}
