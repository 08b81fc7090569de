package billing

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/oakwellcare/clinic-engagement/internal/actor"
	"github.com/oakwellcare/clinic-engagement/internal/appointments"
	"github.com/oakwellcare/clinic-engagement/internal/audit"
	"github.com/oakwellcare/clinic-engagement/internal/clock"
	"github.com/oakwellcare/clinic-engagement/internal/faults"
	"github.com/oakwellcare/clinic-engagement/internal/locking"
	"github.com/oakwellcare/clinic-engagement/internal/notify"
	"github.com/oakwellcare/clinic-engagement/internal/observability/metrics"
	"github.com/oakwellcare/clinic-engagement/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.billing")

// Reconciler ends a consultation: it writes the bill and moves the
// appointment to COMPLETED as one atomic unit.
type Reconciler struct {
	store    Store
	clock    clock.Clock
	locker   locking.Locker
	auditor  audit.Recorder
	notifier notify.Notifier
	metrics  *metrics.LifecycleMetrics
	logger   *logging.Logger
}

// NewReconciler constructs the completion reconciler.
func NewReconciler(store Store, clk clock.Clock, locker locking.Locker,
	auditor audit.Recorder, notifier notify.Notifier, m *metrics.LifecycleMetrics, logger *logging.Logger) *Reconciler {
	if store == nil {
		panic("billing: store required")
	}
	if clk == nil {
		panic("billing: clock required")
	}
	if locker == nil {
		locker = locking.NewMemoryLocker()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		store:    store,
		clock:    clk,
		locker:   locker,
		auditor:  auditor,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
	}
}

// CompleteParams is everything a clinician submits when ending a
// consultation.
type CompleteParams struct {
	AppointmentID   uuid.UUID
	DoctorID        uuid.UUID
	Summary         string
	OutcomeType     OutcomeType
	PatientDecision PatientDecision
	Items           []ItemInput
	DiscountCents   int64
	CustomTotal     *int64
}

func (p CompleteParams) validate() error {
	if p.AppointmentID == uuid.Nil {
		return faults.Validation("appointmentId is required")
	}
	if p.DoctorID == uuid.Nil {
		return faults.Validation("doctorId is required")
	}
	if p.Summary == "" {
		return faults.Validation("outcome summary is required")
	}
	switch p.OutcomeType {
	case OutcomeConsultationOnly, OutcomeFollowUpNeeded, OutcomePatientDeciding, OutcomeReferralNeeded:
	case OutcomeProcedureRecommended:
		switch p.PatientDecision {
		case DecisionYes, DecisionNo, DecisionUndecided:
		case "":
			return faults.Validation("patientDecision is required when a procedure is recommended")
		default:
			return faults.Validation("unknown patient decision %q", p.PatientDecision)
		}
	case "":
		return faults.Validation("outcomeType is required")
	default:
		return faults.Validation("unknown outcome type %q", p.OutcomeType)
	}
	if p.DiscountCents < 0 {
		return faults.Validation("discount cannot be negative")
	}
	if p.CustomTotal != nil && *p.CustomTotal < 0 {
		return faults.Validation("custom total cannot be negative")
	}
	return ValidateItems(p.Items)
}

// Summary is the completion result returned to the caller.
type Summary struct {
	AppointmentID            uuid.UUID  `json:"appointment_id"`
	PaymentID                uuid.UUID  `json:"payment_id"`
	TotalCents               int64      `json:"total_cents"`
	DiscountCents            int64      `json:"discount_cents"`
	BillStatus               BillStatus `json:"bill_status"`
	FollowUpSuggested        bool       `json:"follow_up_suggested,omitempty"`
	AwaitingSurgicalPlanning bool       `json:"awaiting_surgical_planning,omitempty"`
}

// Complete validates the outcome, then atomically upserts the bill, moves
// the appointment IN_CONSULTATION -> COMPLETED, and completes a linked
// consultation request. A settled bill rejects the whole operation.
func (r *Reconciler) Complete(ctx context.Context, act actor.Actor, p CompleteParams) (*Summary, error) {
	ctx, span := tracer.Start(ctx, "billing.complete")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.appointment_id", p.AppointmentID.String()))

	if err := p.validate(); err != nil {
		return nil, err
	}
	if act.IsPatient() {
		return nil, faults.Authorization("patients cannot complete a consultation")
	}

	release, err := r.locker.Acquire(ctx, p.AppointmentID.String())
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		summary  Summary
		appt     *appointments.Appointment
		followUp = p.OutcomeType == OutcomeFollowUpNeeded
		awaiting = p.OutcomeType == OutcomeProcedureRecommended && p.PatientDecision == DecisionYes
	)

	err = r.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		appt, err = tx.Appointment(ctx, p.AppointmentID)
		if err != nil {
			return err
		}
		if appt.DoctorID != p.DoctorID {
			return faults.Authorization("not your appointment")
		}
		if appt.Status != appointments.StatusInConsultation {
			r.metrics.ObserveConflict("appointment", "complete")
			return faults.Conflict("appointment is %s, consultation is not in progress", appt.Status)
		}

		existing, err := tx.PaymentByAppointment(ctx, p.AppointmentID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Settled() {
			r.metrics.ObserveConflict("payment", "complete")
			return faults.Conflict("payment already completed, a settled bill cannot be revised")
		}

		payment := buildPayment(existing, appt, p)
		if err := tx.UpsertPayment(ctx, payment); err != nil {
			return err
		}

		now := r.clock.Now()
		if err := appt.Transition(appointments.StatusCompleted); err != nil {
			return err
		}
		endedAt := now
		appt.ConsultationEndedAt = &endedAt
		if appt.ConsultationStartedAt != nil {
			appt.ConsultationDurationMin = int(now.Sub(*appt.ConsultationStartedAt).Minutes())
		}
		if appt.Note != "" {
			appt.Note += "\n\n"
		}
		appt.Note += "Outcome: " + p.Summary
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}

		if appt.RequestID != nil {
			if err := tx.CompleteRequest(ctx, *appt.RequestID, awaiting); err != nil {
				return err
			}
		}

		summary = Summary{
			AppointmentID:            appt.ID,
			PaymentID:                payment.ID,
			TotalCents:               payment.TotalCents,
			DiscountCents:            payment.DiscountCents,
			BillStatus:               payment.Status,
			FollowUpSuggested:        followUp,
			AwaitingSurgicalPlanning: awaiting && appt.RequestID != nil,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.metrics.ObserveTransition("appointment", string(appointments.StatusCompleted))
	r.metrics.ObserveBillReconciled()
	r.recordAudit(ctx, act, appt, p)
	r.notifyCompletion(ctx, appt, followUp)
	r.logger.Info("consultation completed",
		"appointment_id", appt.ID, "outcome", string(p.OutcomeType),
		"total_cents", summary.TotalCents)
	return &summary, nil
}

// Bill returns the payment attached to an appointment, if any. Patients may
// only see their own.
func (r *Reconciler) Bill(ctx context.Context, act actor.Actor, appointmentID uuid.UUID) (*Payment, error) {
	p, err := r.store.PaymentByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, faults.NotFound("no bill exists for appointment %s", appointmentID)
	}
	if act.IsPatient() && act.ID != p.PatientID.String() {
		return nil, faults.Authorization("not your bill")
	}
	return p, nil
}

// buildPayment keeps the existing payment identity and settlement status;
// totals and items are always replaced wholesale.
func buildPayment(existing *Payment, appt *appointments.Appointment, p CompleteParams) *Payment {
	payment := &Payment{
		ID:            uuid.New(),
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		Status:        BillUnpaid,
	}
	if existing != nil {
		payment.ID = existing.ID
		payment.Status = existing.Status
		payment.AmountPaidCents = existing.AmountPaidCents
		payment.CreatedAt = existing.CreatedAt
	}
	payment.DiscountCents = p.DiscountCents
	payment.CustomTotal = p.CustomTotal
	payment.TotalCents = FinalTotal(p.Items, p.DiscountCents, p.CustomTotal)
	for _, in := range p.Items {
		payment.Items = append(payment.Items, BillItem{
			ID:        uuid.New(),
			PaymentID: payment.ID,
			ServiceID: in.ServiceID,
			Quantity:  in.Quantity,
			UnitCents: in.UnitCents,
		})
	}
	return payment
}

func (r *Reconciler) recordAudit(ctx context.Context, act actor.Actor, appt *appointments.Appointment, p CompleteParams) {
	if r.auditor == nil {
		return
	}
	err := r.auditor.Record(ctx, audit.Event{
		Aggregate:   audit.AggregateAppointment,
		AggregateID: appt.ID.String(),
		ActorID:     act.ID,
		ActorRole:   string(act.Role),
		FromStatus:  string(appointments.StatusInConsultation),
		ToStatus:    string(appointments.StatusCompleted),
		Reason:      "consultation completed: " + string(p.OutcomeType),
		OccurredAt:  r.clock.Now().UTC(),
	})
	if err != nil {
		r.logger.Error("audit write failed, transition already committed",
			"error", err, "appointment_id", appt.ID)
	}
}

func (r *Reconciler) notifyCompletion(ctx context.Context, appt *appointments.Appointment, followUp bool) {
	if r.notifier == nil {
		return
	}
	events := []notify.Event{{
		Type:          notify.EventAppointmentCompleted,
		PatientID:     appt.PatientID.String(),
		DoctorID:      appt.DoctorID.String(),
		AppointmentID: appt.ID.String(),
		Date:          appt.Date,
		StartTime:     appt.StartTime,
	}}
	if followUp {
		events = append(events, notify.Event{
			Type:          notify.EventFollowUpSuggested,
			PatientID:     appt.PatientID.String(),
			DoctorID:      appt.DoctorID.String(),
			AppointmentID: appt.ID.String(),
		})
	}
	for _, evt := range events {
		if err := r.notifier.Notify(ctx, evt); err != nil {
			r.logger.Warn("notification dispatch failed", "error", err, "type", string(evt.Type))
		}
	}
}
