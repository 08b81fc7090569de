// Package engagement is the orchestration facade over the lifecycle
// services. It exposes the boundary operations callers consume, retries
// dependency failures with bounded exponential backoff, and surfaces every
// other fault immediately.
package engagement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/oakwellcare/clinic-engagement/internal/actor"
	"github.com/oakwellcare/clinic-engagement/internal/appointments"
	"github.com/oakwellcare/clinic-engagement/internal/availability"
	"github.com/oakwellcare/clinic-engagement/internal/billing"
	"github.com/oakwellcare/clinic-engagement/internal/faults"
	"github.com/oakwellcare/clinic-engagement/internal/requests"
	"github.com/oakwellcare/clinic-engagement/pkg/logging"
)

// RetryPolicy bounds how dependency failures are retried. Attempt n waits
// BaseDelay * 2^(n-1) before running.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy is used when no policy is configured.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond}

// Facade bundles the lifecycle services behind the boundary operations.
type Facade struct {
	requests     *requests.Service
	appointments *appointments.Service
	availability *availability.Resolver
	billing      *billing.Reconciler
	retry        RetryPolicy
	logger       *logging.Logger
}

// New constructs the facade.
func New(req *requests.Service, appt *appointments.Service, avail *availability.Resolver,
	bill *billing.Reconciler, retry RetryPolicy, logger *logging.Logger) *Facade {
	if req == nil || appt == nil || avail == nil || bill == nil {
		panic("engagement: all lifecycle services required")
	}
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Facade{
		requests:     req,
		appointments: appt,
		availability: avail,
		billing:      bill,
		retry:        retry,
		logger:       logger,
	}
}

// SubmitConsultationRequest records a patient inquiry.
func (f *Facade) SubmitConsultationRequest(ctx context.Context, act actor.Actor, p requests.SubmitParams) (*requests.ConsultationRequest, error) {
	return withRetry(ctx, f, "submit_consultation_request", func() (*requests.ConsultationRequest, error) {
		return f.requests.Submit(ctx, act, p)
	})
}

// ReviewConsultationRequest applies a staff decision.
func (f *Facade) ReviewConsultationRequest(ctx context.Context, act actor.Actor, id uuid.UUID, p requests.ReviewParams) (*requests.ConsultationRequest, error) {
	return withRetry(ctx, f, "review_consultation_request", func() (*requests.ConsultationRequest, error) {
		return f.requests.Review(ctx, act, id, p)
	})
}

// RespondToInformationRequest returns an answered request to the review
// queue.
func (f *Facade) RespondToInformationRequest(ctx context.Context, act actor.Actor, id uuid.UUID, response string) (*requests.ConsultationRequest, error) {
	return withRetry(ctx, f, "respond_information_request", func() (*requests.ConsultationRequest, error) {
		return f.requests.RespondInfo(ctx, act, id, response)
	})
}

// ConfirmationResult links the confirmed request to its booked appointment.
type ConfirmationResult struct {
	Request     *requests.ConsultationRequest
	Appointment *appointments.Appointment
}

// ConfirmConsultationRequest is the patient accepting the proposed slot.
// Booking conflicts are never retried; the patient needs a fresh slot.
func (f *Facade) ConfirmConsultationRequest(ctx context.Context, act actor.Actor, id uuid.UUID) (*ConfirmationResult, error) {
	return withRetry(ctx, f, "confirm_consultation_request", func() (*ConfirmationResult, error) {
		req, appt, err := f.requests.Confirm(ctx, act, id)
		if err != nil {
			return nil, err
		}
		return &ConfirmationResult{Request: req, Appointment: appt}, nil
	})
}

// GetConsultationRequest fetches one request.
func (f *Facade) GetConsultationRequest(ctx context.Context, act actor.Actor, id uuid.UUID) (*requests.ConsultationRequest, error) {
	return f.requests.Get(ctx, act, id)
}

// ListPendingRequests returns the review queue.
func (f *Facade) ListPendingRequests(ctx context.Context, act actor.Actor) ([]requests.ConsultationRequest, error) {
	return f.requests.ListPending(ctx, act)
}

// GetAvailability resolves bookable slots for one clinic-local day.
func (f *Facade) GetAvailability(ctx context.Context, doctorID uuid.UUID, date string) ([]availability.Slot, error) {
	return withRetry(ctx, f, "get_availability", func() ([]availability.Slot, error) {
		return f.availability.SlotsForDay(ctx, doctorID, date)
	})
}

// GetAvailabilityRange resolves slots across an inclusive date range.
func (f *Facade) GetAvailabilityRange(ctx context.Context, doctorID uuid.UUID, from, to string) ([]availability.Slot, error) {
	return withRetry(ctx, f, "get_availability_range", func() ([]availability.Slot, error) {
		return f.availability.SlotsForRange(ctx, doctorID, from, to)
	})
}

// ScheduleAppointment books a slot directly, bypassing the intake flow.
func (f *Facade) ScheduleAppointment(ctx context.Context, act actor.Actor, p appointments.ScheduleParams) (*appointments.Appointment, error) {
	return withRetry(ctx, f, "schedule_appointment", func() (*appointments.Appointment, error) {
		return f.appointments.Schedule(ctx, act, p)
	})
}

// ConfirmAppointment moves SCHEDULED to CONFIRMED.
func (f *Facade) ConfirmAppointment(ctx context.Context, act actor.Actor, id uuid.UUID) (*appointments.Appointment, error) {
	return withRetry(ctx, f, "confirm_appointment", func() (*appointments.Appointment, error) {
		return f.appointments.Confirm(ctx, act, id)
	})
}

// CheckIn records the patient's arrival at the front desk.
func (f *Facade) CheckIn(ctx context.Context, act actor.Actor, id uuid.UUID) (*appointments.Appointment, error) {
	return withRetry(ctx, f, "check_in", func() (*appointments.Appointment, error) {
		return f.appointments.CheckIn(ctx, act, id)
	})
}

// StartConsultation is the clinician beginning the encounter.
func (f *Facade) StartConsultation(ctx context.Context, act actor.Actor, id, doctorID uuid.UUID) (*appointments.Appointment, error) {
	return withRetry(ctx, f, "start_consultation", func() (*appointments.Appointment, error) {
		return f.appointments.StartConsultation(ctx, act, id, doctorID)
	})
}

// CompleteConsultation atomically reconciles the outcome, bill, and
// terminal transition.
func (f *Facade) CompleteConsultation(ctx context.Context, act actor.Actor, p billing.CompleteParams) (*billing.Summary, error) {
	return withRetry(ctx, f, "complete_consultation", func() (*billing.Summary, error) {
		return f.billing.Complete(ctx, act, p)
	})
}

// RescheduleAppointment moves the slot, leaving status untouched.
func (f *Facade) RescheduleAppointment(ctx context.Context, act actor.Actor, id uuid.UUID, newDate, newTime, reason string) (*appointments.Appointment, error) {
	return withRetry(ctx, f, "reschedule_appointment", func() (*appointments.Appointment, error) {
		return f.appointments.Reschedule(ctx, act, id, newDate, newTime, reason)
	})
}

// CancelAppointment cancels with a required reason.
func (f *Facade) CancelAppointment(ctx context.Context, act actor.Actor, id uuid.UUID, reason string) (*appointments.Appointment, error) {
	return withRetry(ctx, f, "cancel_appointment", func() (*appointments.Appointment, error) {
		return f.appointments.Cancel(ctx, act, id, reason)
	})
}

// GetAppointment fetches one appointment, visible to its patient, its
// clinician, and staff.
func (f *Facade) GetAppointment(ctx context.Context, act actor.Actor, id uuid.UUID) (*appointments.Appointment, error) {
	appt, err := f.appointments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if act.IsPatient() && act.ID != appt.PatientID.String() {
		return nil, faults.Authorization("not your appointment")
	}
	return appt, nil
}

// GetBill fetches the payment attached to an appointment.
func (f *Facade) GetBill(ctx context.Context, act actor.Actor, appointmentID uuid.UUID) (*billing.Payment, error) {
	return f.billing.Bill(ctx, act, appointmentID)
}

// withRetry runs fn, retrying only dependency faults. Validation,
// authorization, not-found, and conflict outcomes reflect business state
// and surface immediately.
func withRetry[T any](ctx context.Context, f *Facade, op string, fn func() (T, error)) (T, error) {
	var (
		out  T
		err  error
		zero T
	)
	for attempt := 1; ; attempt++ {
		out, err = fn()
		if err == nil || !faults.Retryable(err) || attempt >= f.retry.MaxAttempts {
			return out, err
		}
		delay := f.retry.BaseDelay << (attempt - 1)
		f.logger.Warn("dependency failure, retrying",
			"operation", op, "attempt", attempt, "delay", delay.String(), "error", err)
		trace.SpanFromContext(ctx).AddEvent("retry",
			trace.WithAttributes(
				attribute.String("clinic.operation", op),
				attribute.Int("clinic.attempt", attempt),
			))
		select {
		case <-ctx.Done():
			return zero, faults.Dependency(ctx.Err(), "%s: aborted while waiting to retry", op)
		case <-time.After(delay):
		}
	}
}
