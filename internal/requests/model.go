// Package requests implements the consultation-request intake lifecycle: a
// patient submits an inquiry, staff review it, and a confirmed request
// becomes a linked appointment.
package requests

import (
	"time"

	"github.com/google/uuid"

	"github.com/oakwellcare/clinic-engagement/internal/faults"
)

// Status is a consultation request lifecycle state.
type Status string

const (
	StatusSubmitted     Status = "SUBMITTED"
	StatusPendingReview Status = "PENDING_REVIEW"
	StatusNeedsMoreInfo Status = "NEEDS_MORE_INFO"
	StatusApproved      Status = "APPROVED"
	StatusScheduled     Status = "SCHEDULED"
	StatusConfirmed     Status = "CONFIRMED"
	StatusCompleted     Status = "COMPLETED"
	StatusCancelled     Status = "CANCELLED"
)

// transitions is the allowed adjacency list. COMPLETED is set only by the
// billing reconciler once the linked appointment completes.
var transitions = map[Status][]Status{
	StatusSubmitted:     {StatusPendingReview},
	StatusPendingReview: {StatusNeedsMoreInfo, StatusApproved, StatusCancelled},
	StatusNeedsMoreInfo: {StatusPendingReview, StatusCancelled},
	StatusApproved:      {StatusScheduled, StatusCancelled},
	StatusScheduled:     {StatusConfirmed, StatusCancelled},
	StatusConfirmed:     {StatusCompleted, StatusCancelled},
	StatusCompleted:     {},
	StatusCancelled:     {},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions exist from s.
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0
}

// ConsultationRequest is the intake aggregate. DoctorID stays nil until a
// reviewer assigns one at approval; AppointmentID is set once the patient
// confirms and the linked appointment is booked.
type ConsultationRequest struct {
	ID            uuid.UUID  `json:"id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	DoctorID      *uuid.UUID `json:"doctor_id,omitempty"`
	Details       string     `json:"details"`
	Status        Status     `json:"status"`
	ReviewNotes   string     `json:"review_notes,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	ProposedDate  string     `json:"proposed_date,omitempty"`
	ProposedTime  string     `json:"proposed_time,omitempty"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	// AwaitingSurgicalPlanning is raised at completion when a recommended
	// procedure was accepted; downstream planning systems poll on it.
	AwaitingSurgicalPlanning bool      `json:"awaiting_surgical_planning,omitempty"`
	SubmittedAt              time.Time `json:"submitted_at"`
	Version                  int       `json:"-"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// Transition moves the request to the target status, or returns a conflict
// naming the current state. Status is unchanged on failure.
func (r *ConsultationRequest) Transition(to Status) error {
	if !CanTransition(r.Status, to) {
		return faults.Conflict("consultation request is %s, cannot move to %s", r.Status, to)
	}
	r.Status = to
	return nil
}

func (r *ConsultationRequest) clone() *ConsultationRequest {
	out := *r
	return &out
}
