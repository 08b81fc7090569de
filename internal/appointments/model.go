// Package appointments governs the scheduled clinical encounter: its state
// machine, direct booking, check-in, consultation start, cancellation, and
// the reschedule coordinator.
package appointments

import (
	"time"

	"github.com/google/uuid"

	"github.com/oakwellcare/clinic-engagement/internal/faults"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusScheduled      Status = "SCHEDULED"
	StatusConfirmed      Status = "CONFIRMED"
	StatusCheckedIn      Status = "CHECKED_IN"
	StatusInConsultation Status = "IN_CONSULTATION"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
)

// transitions is the full adjacency list. COMPLETED is reachable only
// through the billing reconciler, never a bare status update; the map still
// names it so the reconciler shares the same guard.
var transitions = map[Status][]Status{
	StatusPending:   {StatusScheduled, StatusCancelled},
	StatusScheduled: {StatusConfirmed, StatusCheckedIn, StatusCancelled},
	StatusConfirmed: {StatusCheckedIn, StatusCancelled},
	// Front desk may check a patient in straight from SCHEDULED, without an
	// explicit confirmation step.
	StatusCheckedIn:      {StatusInConsultation, StatusCancelled},
	StatusInConsultation: {StatusCompleted, StatusCancelled},
	StatusCompleted:      {},
	StatusCancelled:      {},
}

// CanTransition reports whether from -> to is in the adjacency list.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0
}

// Type distinguishes how the encounter originated.
type Type string

const (
	TypeConsultation Type = "CONSULTATION"
	TypeFollowUp     Type = "FOLLOW_UP"
	TypeProcedure    Type = "PROCEDURE"
)

// Appointment is the scheduled clinical encounter aggregate. Version backs
// the optimistic concurrency check: every committed update bumps it, and a
// stale writer loses with a conflict.
type Appointment struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"appointment_date"` // availability.DateLayout
	StartTime string    `json:"start_time"`       // availability.TimeLayout
	Status    Status    `json:"status"`
	Type      Type      `json:"appointment_type"`
	Note      string    `json:"note,omitempty"`
	Reason    string    `json:"reason,omitempty"`

	// RequestID links the consultation request this booking came from.
	RequestID *uuid.UUID `json:"request_id,omitempty"`

	CheckedInAt             *time.Time `json:"checked_in_at,omitempty"`
	CheckedInBy             string     `json:"checked_in_by,omitempty"`
	ConsultationStartedAt   *time.Time `json:"consultation_started_at,omitempty"`
	ConsultationEndedAt     *time.Time `json:"consultation_ended_at,omitempty"`
	ConsultationDurationMin int        `json:"consultation_duration_min,omitempty"`

	Version   int       `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transition mutates Status after checking the adjacency list. The error
// names both states so callers can surface it directly.
func (a *Appointment) Transition(to Status) error {
	if !CanTransition(a.Status, to) {
		return faults.Conflict("appointment is %s, cannot move to %s", a.Status, to)
	}
	a.Status = to
	return nil
}

// clone returns a copy so repository callers cannot mutate stored state.
func (a *Appointment) clone() *Appointment {
	cp := *a
	if a.RequestID != nil {
		id := *a.RequestID
		cp.RequestID = &id
	}
	if a.CheckedInAt != nil {
		t := *a.CheckedInAt
		cp.CheckedInAt = &t
	}
	if a.ConsultationStartedAt != nil {
		t := *a.ConsultationStartedAt
		cp.ConsultationStartedAt = &t
	}
	if a.ConsultationEndedAt != nil {
		t := *a.ConsultationEndedAt
		cp.ConsultationEndedAt = &t
	}
	return &cp
}
