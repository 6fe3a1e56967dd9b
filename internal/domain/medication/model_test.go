package medication

import (
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	valid := []string{"00:00", "08:00", "14:30", "23:59"}
	for _, s := range valid {
		if _, err := ParseTimeOfDay(s); err != nil {
			t.Errorf("expected %q to parse, got %v", s, err)
		}
	}

	invalid := []string{"", "8:00", "08:0", "24:00", "08:60", "0800", "8am", "ab:cd", "08:00:00"}
	for _, s := range invalid {
		if _, err := ParseTimeOfDay(s); err == nil {
			t.Errorf("expected %q to be rejected", s)
		}
	}
}

func TestTimeOfDay_Minutes(t *testing.T) {
	cases := map[string]int{
		"00:00": 0,
		"08:00": 480,
		"14:30": 870,
		"23:59": 1439,
	}
	for s, want := range cases {
		tod, err := ParseTimeOfDay(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if got := tod.Minutes(); got != want {
			t.Errorf("%q.Minutes() = %d, want %d", s, got, want)
		}
	}
}

func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{RoleParent, RoleTeacher, RoleCoordinator} {
		if !r.Valid() {
			t.Errorf("expected %q to be valid", r)
		}
	}
	for _, r := range []Role{"", "admin", "visitor", "PARENT"} {
		if r.Valid() {
			t.Errorf("expected %q to be invalid", r)
		}
	}
}

func TestOrder_Administrable(t *testing.T) {
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		order MedicationOrder
		want  bool
	}{
		{"approved active", MedicationOrder{Status: StatusApproved, Active: true}, true},
		{"pending", MedicationOrder{Status: StatusPending, Active: true}, false},
		{"rejected", MedicationOrder{Status: StatusRejected}, false},
		{"deactivated", MedicationOrder{Status: StatusApproved, Active: false}, false},
		{"past end date", MedicationOrder{Status: StatusApproved, Active: true, EndDate: &end}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.order.Administrable(now); got != tc.want {
				t.Errorf("Administrable = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestOrder_AdministrableOnEndDateDay(t *testing.T) {
	// The end date itself is still administrable; the order expires at the
	// end of that calendar day.
	end := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	order := MedicationOrder{Status: StatusApproved, Active: true, EndDate: &end}

	if !order.Administrable(time.Date(2024, 1, 5, 20, 0, 0, 0, time.UTC)) {
		t.Error("expected order to be administrable on its end date")
	}
	if order.Administrable(time.Date(2024, 1, 6, 0, 0, 1, 0, time.UTC)) {
		t.Error("expected order to expire after its end date")
	}
}
