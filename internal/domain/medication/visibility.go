package medication

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/medagenda/medagenda/internal/platform/directory"
)

// OrderFilter narrows repository list queries. A nil StudentIDs means no
// student restriction; an empty non-nil slice matches nothing.
type OrderFilter struct {
	StudentIDs []uuid.UUID
	Status     *OrderStatus
	ActiveOnly bool
}

// VisibilityFilter projects the order set down to what an actor may see:
// coordinators see everything, teachers see approved orders for students in
// their assigned classes, parents see their own children's orders, and any
// unknown role sees nothing.
type VisibilityFilter struct {
	dir directory.Directory
}

func NewVisibilityFilter(dir directory.Directory) *VisibilityFilter {
	return &VisibilityFilter{dir: dir}
}

// errNoVisibility signals an empty scope without a student list.
var errNoVisibility = errors.New("actor has no visibility scope")

// Scope translates an actor into an OrderFilter for indexed repository
// queries. It returns errNoVisibility when the actor can see nothing at all.
func (v *VisibilityFilter) Scope(ctx context.Context, actor Actor) (OrderFilter, error) {
	switch actor.Role {
	case RoleCoordinator:
		return OrderFilter{}, nil
	case RoleTeacher:
		classes, err := v.dir.ClassesOf(ctx, actor.ID)
		if err != nil {
			return OrderFilter{}, storageErr("resolve teacher classes", err)
		}
		var students []uuid.UUID
		for _, class := range classes {
			ids, err := v.dir.StudentsIn(ctx, class)
			if err != nil {
				return OrderFilter{}, storageErr("resolve class roster", err)
			}
			for _, id := range ids {
				sid, err := uuid.Parse(id)
				if err != nil {
					continue
				}
				students = append(students, sid)
			}
		}
		if len(students) == 0 {
			return OrderFilter{}, errNoVisibility
		}
		approved := StatusApproved
		return OrderFilter{StudentIDs: students, Status: &approved}, nil
	case RoleParent:
		children, err := v.dir.ChildrenOf(ctx, actor.ID)
		if err != nil {
			return OrderFilter{}, storageErr("resolve parent children", err)
		}
		var students []uuid.UUID
		for _, id := range children {
			sid, err := uuid.Parse(id)
			if err != nil {
				continue
			}
			students = append(students, sid)
		}
		if len(students) == 0 {
			return OrderFilter{}, errNoVisibility
		}
		return OrderFilter{StudentIDs: students}, nil
	default:
		return OrderFilter{}, errNoVisibility
	}
}

// CanView reports whether the actor may see the given order. Semantics match
// Scope exactly; used for single-order reads and the ledger view.
func (v *VisibilityFilter) CanView(ctx context.Context, actor Actor, order *MedicationOrder) (bool, error) {
	switch actor.Role {
	case RoleCoordinator:
		return true, nil
	case RoleTeacher:
		if order.Status != StatusApproved {
			return false, nil
		}
		class, err := v.dir.ClassOf(ctx, order.StudentID.String())
		if err != nil {
			if errors.Is(err, directory.ErrStudentNotFound) {
				return false, nil
			}
			return false, storageErr("resolve student class", err)
		}
		classes, err := v.dir.ClassesOf(ctx, actor.ID)
		if err != nil {
			return false, storageErr("resolve teacher classes", err)
		}
		for _, c := range classes {
			if c == class {
				return true, nil
			}
		}
		return false, nil
	case RoleParent:
		children, err := v.dir.ChildrenOf(ctx, actor.ID)
		if err != nil {
			return false, storageErr("resolve parent children", err)
		}
		for _, id := range children {
			if id == order.StudentID.String() {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, nil
	}
}

// Project filters an in-memory order slice down to the actor's scope. List
// queries use Scope for indexed filtering; Project exists for callers that
// already hold the orders.
func (v *VisibilityFilter) Project(ctx context.Context, actor Actor, orders []*MedicationOrder) ([]*MedicationOrder, error) {
	out := make([]*MedicationOrder, 0, len(orders))
	for _, o := range orders {
		ok, err := v.CanView(ctx, actor, o)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, o)
		}
	}
	return out, nil
}
