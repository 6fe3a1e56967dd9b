// Package medication implements the medication administration and approval
// engine: order lifecycle, the coordinator approval gate, dose-interval
// scheduling and cooldown math, the append-only administration ledger, and
// role-based visibility.
package medication

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of actor roles the engine recognizes. Any other
// value sees nothing and may do nothing.
type Role string

const (
	RoleParent      Role = "parent"
	RoleTeacher     Role = "teacher"
	RoleCoordinator Role = "coordinator"
)

// Valid reports whether r is one of the recognized roles.
func (r Role) Valid() bool {
	switch r {
	case RoleParent, RoleTeacher, RoleCoordinator:
		return true
	}
	return false
}

// OrderStatus is the approval state of a medication order.
type OrderStatus string

const (
	StatusPending  OrderStatus = "pending"
	StatusApproved OrderStatus = "approved"
	StatusRejected OrderStatus = "rejected"
)

// Decision is the outcome a coordinator records on a pending order.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Actor identifies who performs an operation.
type Actor struct {
	ID   string `json:"actor_id"`
	Role Role   `json:"role"`
}

// TimeOfDay is a clock time in "HH:MM" form, e.g. "08:00".
type TimeOfDay string

// ParseTimeOfDay validates s as a 24-hour "HH:MM" value.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return "", fmt.Errorf("invalid time of day %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return "", fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return "", fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay(s), nil
}

// Minutes returns the offset from midnight in minutes. The value must have
// been validated with ParseTimeOfDay.
func (t TimeOfDay) Minutes() int {
	h, _ := strconv.Atoi(string(t)[:2])
	m, _ := strconv.Atoi(string(t)[3:])
	return h*60 + m
}

// sortedTimes returns a copy of times sorted ascending by time of day.
func sortedTimes(times []TimeOfDay) []TimeOfDay {
	out := make([]TimeOfDay, len(times))
	copy(out, times)
	sort.Slice(out, func(i, j int) bool { return out[i].Minutes() < out[j].Minutes() })
	return out
}

// Attachment is an opaque reference to an uploaded prescription document.
// The engine never parses or validates file content.
type Attachment struct {
	URL        string    `json:"url"`
	FileName   string    `json:"filename"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// MedicationOrder maps to the medication_orders table.
type MedicationOrder struct {
	ID                   uuid.UUID   `db:"id" json:"id"`
	StudentID            uuid.UUID   `db:"student_id" json:"student_id"`
	Name                 string      `db:"name" json:"name"`
	Dosage               string      `db:"dosage" json:"dosage"`
	FrequencyDescription string      `db:"frequency_description" json:"frequency_description,omitempty"`
	DailyTimes           []TimeOfDay `db:"daily_times" json:"daily_times"`
	StartDate            time.Time   `db:"start_date" json:"start_date"`
	EndDate              *time.Time  `db:"end_date" json:"end_date,omitempty"`
	Notes                *string     `db:"notes" json:"notes,omitempty"`
	Active               bool        `db:"active" json:"active"`
	Attachment           *Attachment `db:"-" json:"prescription_attachment,omitempty"`
	Status               OrderStatus `db:"status" json:"status"`
	RequestedByID        string      `db:"requested_by_id" json:"requested_by_id"`
	RequestedByRole      Role        `db:"requested_by_role" json:"requested_by_role"`
	RequestedAt          time.Time   `db:"requested_at" json:"requested_at"`
	DecidedByID          *string     `db:"decided_by_id" json:"decided_by_id,omitempty"`
	DecidedAt            *time.Time  `db:"decided_at" json:"decided_at,omitempty"`
	NextDoseAt           *time.Time  `db:"next_dose_at" json:"next_dose_at,omitempty"`
	LastDoseAt           *time.Time  `db:"last_dose_at" json:"last_dose_at,omitempty"`
	Version              int64       `db:"version" json:"version"`
	CreatedAt            time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time   `db:"updated_at" json:"updated_at"`
}

// Decided reports whether the order has left the pending state.
func (o *MedicationOrder) Decided() bool {
	return o.Status != StatusPending
}

// Administrable reports whether the order is in a state where doses may be
// recorded: approved, active, and not past its end date.
func (o *MedicationOrder) Administrable(now time.Time) bool {
	if o.Status != StatusApproved || !o.Active {
		return false
	}
	if o.EndDate != nil && now.After(endOfDay(*o.EndDate)) {
		return false
	}
	return true
}

// endOfDay returns the last instant of t's calendar day in t's location.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

// AdministrationRecord maps to the administration_records table. Records are
// immutable once created; they are never edited or deleted.
type AdministrationRecord struct {
	ID                     uuid.UUID `db:"id" json:"id"`
	OrderID                uuid.UUID `db:"order_id" json:"order_id"`
	StudentID              uuid.UUID `db:"student_id" json:"student_id"`
	AdministeredByID       string    `db:"administered_by_id" json:"administered_by_id"`
	AdministeredByRole     Role      `db:"administered_by_role" json:"administered_by_role"`
	AdministeredAt         time.Time `db:"administered_at" json:"administered_at"`
	DosageSnapshot         string    `db:"dosage_snapshot" json:"dosage_snapshot"`
	MedicationNameSnapshot string    `db:"medication_name_snapshot" json:"medication_name_snapshot"`
	IdempotencyKey         string    `db:"idempotency_key" json:"idempotency_key"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
}
