package medication

import (
	"context"
	"errors"
	"testing"

	"github.com/medagenda/medagenda/internal/platform/directory"
)

func testVisibility(t *testing.T) *VisibilityFilter {
	t.Helper()
	dir := directory.NewInMemory()
	dir.AddChild("parent-1", studentAna.String())
	dir.Enroll(studentAna.String(), "class-a")
	dir.Enroll(studentBeto.String(), "class-b")
	dir.AssignTeacher("teacher-1", "class-a")
	return NewVisibilityFilter(dir)
}

func TestScope_Coordinator(t *testing.T) {
	v := testVisibility(t)
	filter, err := v.Scope(context.Background(), coordinatorActor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filter.StudentIDs != nil || filter.Status != nil {
		t.Errorf("coordinator scope must be unrestricted, got %+v", filter)
	}
}

func TestScope_TeacherRestrictedToApprovedInClasses(t *testing.T) {
	v := testVisibility(t)
	filter, err := v.Scope(context.Background(), teacherActor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(filter.StudentIDs) != 1 || filter.StudentIDs[0] != studentAna {
		t.Errorf("expected scope limited to class-a students, got %v", filter.StudentIDs)
	}
	if filter.Status == nil || *filter.Status != StatusApproved {
		t.Errorf("teacher scope must be approved-only, got %v", filter.Status)
	}
}

func TestScope_Parent(t *testing.T) {
	v := testVisibility(t)
	filter, err := v.Scope(context.Background(), parentActor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(filter.StudentIDs) != 1 || filter.StudentIDs[0] != studentAna {
		t.Errorf("expected scope limited to linked children, got %v", filter.StudentIDs)
	}
	if filter.Status != nil {
		t.Error("parent scope must include any status")
	}
}

func TestScope_UnknownRoleSeesNothing(t *testing.T) {
	v := testVisibility(t)
	_, err := v.Scope(context.Background(), unknownActor)
	if !errors.Is(err, errNoVisibility) {
		t.Errorf("expected empty scope for unknown role, got %v", err)
	}
}

func TestScope_TeacherWithoutClasses(t *testing.T) {
	v := testVisibility(t)
	_, err := v.Scope(context.Background(), Actor{ID: "teacher-unassigned", Role: RoleTeacher})
	if !errors.Is(err, errNoVisibility) {
		t.Errorf("expected empty scope for unassigned teacher, got %v", err)
	}
}

func TestCanView(t *testing.T) {
	v := testVisibility(t)
	anaApproved := &MedicationOrder{StudentID: studentAna, Status: StatusApproved}
	anaPending := &MedicationOrder{StudentID: studentAna, Status: StatusPending}
	betoApproved := &MedicationOrder{StudentID: studentBeto, Status: StatusApproved}

	cases := []struct {
		name  string
		actor Actor
		order *MedicationOrder
		want  bool
	}{
		{"coordinator sees approved", coordinatorActor, anaApproved, true},
		{"coordinator sees pending", coordinatorActor, anaPending, true},
		{"teacher sees approved in class", teacherActor, anaApproved, true},
		{"teacher blind to pending", teacherActor, anaPending, false},
		{"teacher blind to other class", teacherActor, betoApproved, false},
		{"parent sees own child pending", parentActor, anaPending, true},
		{"parent sees own child approved", parentActor, anaApproved, true},
		{"parent blind to other child", parentActor, betoApproved, false},
		{"unknown role sees nothing", unknownActor, anaApproved, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := v.CanView(context.Background(), tc.actor, tc.order)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("CanView = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestProject_EveryResultInScope(t *testing.T) {
	v := testVisibility(t)
	orders := []*MedicationOrder{
		{StudentID: studentAna, Status: StatusApproved},
		{StudentID: studentAna, Status: StatusPending},
		{StudentID: studentBeto, Status: StatusApproved},
		{StudentID: studentBeto, Status: StatusPending},
	}

	for _, actor := range []Actor{parentActor, teacherActor, coordinatorActor, unknownActor} {
		projected, err := v.Project(context.Background(), actor, orders)
		if err != nil {
			t.Fatalf("project for %s failed: %v", actor.Role, err)
		}
		for _, o := range projected {
			ok, err := v.CanView(context.Background(), actor, o)
			if err != nil || !ok {
				t.Errorf("%s received an order outside their scope: %v", actor.Role, o.StudentID)
			}
		}
		if actor.Role == RoleCoordinator && len(projected) != len(orders) {
			t.Errorf("coordinator must see all orders, saw %d", len(projected))
		}
		if !actor.Role.Valid() && len(projected) != 0 {
			t.Errorf("unknown role must see nothing, saw %d", len(projected))
		}
	}
}
