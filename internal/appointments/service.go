package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/oakwellcare/clinic-engagement/internal/actor"
	"github.com/oakwellcare/clinic-engagement/internal/audit"
	"github.com/oakwellcare/clinic-engagement/internal/availability"
	"github.com/oakwellcare/clinic-engagement/internal/clock"
	"github.com/oakwellcare/clinic-engagement/internal/faults"
	"github.com/oakwellcare/clinic-engagement/internal/locking"
	"github.com/oakwellcare/clinic-engagement/internal/notify"
	"github.com/oakwellcare/clinic-engagement/internal/observability/metrics"
	"github.com/oakwellcare/clinic-engagement/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.appointments")

// SlotChecker re-resolves availability for a single slot. Satisfied by
// *availability.Resolver.
type SlotChecker interface {
	IsAvailable(ctx context.Context, doctorID uuid.UUID, date, startTime string) (bool, error)
}

// Service drives the appointment state machine.
type Service struct {
	repo     Repository
	slots    SlotChecker
	clock    clock.Clock
	locker   locking.Locker
	auditor  audit.Recorder
	notifier notify.Notifier
	metrics  *metrics.LifecycleMetrics
	logger   *logging.Logger
}

// NewService constructs an appointment service.
func NewService(repo Repository, slots SlotChecker, clk clock.Clock, locker locking.Locker,
	auditor audit.Recorder, notifier notify.Notifier, m *metrics.LifecycleMetrics, logger *logging.Logger) *Service {
	if repo == nil {
		panic("appointments: repository required")
	}
	if slots == nil {
		panic("appointments: slot checker required")
	}
	if clk == nil {
		panic("appointments: clock required")
	}
	if locker == nil {
		locker = locking.NewMemoryLocker()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:     repo,
		slots:    slots,
		clock:    clk,
		locker:   locker,
		auditor:  auditor,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
	}
}

// ScheduleParams describes a booking.
type ScheduleParams struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      string
	StartTime string
	Type      Type
	Note      string
}

func (p ScheduleParams) validate(loc *time.Location) error {
	if p.DoctorID == uuid.Nil {
		return faults.Validation("doctorId is required")
	}
	if p.PatientID == uuid.Nil {
		return faults.Validation("patientId is required")
	}
	if _, err := availability.CombineDateTime(p.Date, p.StartTime, loc); err != nil {
		return err
	}
	switch p.Type {
	case TypeConsultation, TypeFollowUp, TypeProcedure:
		return nil
	case "":
		return nil
	default:
		return faults.Validation("unknown appointment type %q", p.Type)
	}
}

// Schedule books an appointment directly (front-desk path). Availability is
// checked here and re-validated by the store at insert time, so concurrent
// bookings of the same slot resolve to exactly one winner.
func (s *Service) Schedule(ctx context.Context, act actor.Actor, p ScheduleParams) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.schedule")
	defer span.End()

	if !act.CanFrontDesk() {
		return nil, faults.Authorization("only staff may book appointments directly")
	}
	if err := p.validate(s.clock.Location()); err != nil {
		return nil, err
	}
	if p.Type == "" {
		p.Type = TypeConsultation
	}

	available, err := s.slots.IsAvailable(ctx, p.DoctorID, p.Date, p.StartTime)
	if err != nil {
		return nil, err
	}
	if !available {
		s.metrics.ObserveConflict("appointment", "schedule")
		return nil, faults.Conflict("no slots available at %s %s", p.Date, p.StartTime)
	}

	appt := &Appointment{
		ID:        uuid.New(),
		PatientID: p.PatientID,
		DoctorID:  p.DoctorID,
		Date:      p.Date,
		StartTime: p.StartTime,
		Status:    StatusScheduled,
		Type:      p.Type,
		Note:      p.Note,
	}
	if err := s.repo.Create(ctx, appt); err != nil {
		if faults.IsCode(err, faults.CodeConflict) {
			s.metrics.ObserveConflict("appointment", "schedule")
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("clinic.appointment_id", appt.ID.String()))
	s.metrics.ObserveTransition("appointment", string(StatusScheduled))
	s.recordAudit(ctx, appt, act, "", StatusScheduled, "")
	s.dispatch(ctx, notify.Event{
		Type:          notify.EventAppointmentScheduled,
		PatientID:     appt.PatientID.String(),
		DoctorID:      appt.DoctorID.String(),
		AppointmentID: appt.ID.String(),
		Date:          appt.Date,
		StartTime:     appt.StartTime,
	})
	s.logger.Info("appointment scheduled", "appointment_id", appt.ID, "doctor_id", appt.DoctorID, "date", appt.Date, "time", appt.StartTime)
	return appt, nil
}

// CreateFromRequest books the appointment produced by a confirmed
// consultation request. The request service owns the guards; the store's
// unique index still arbitrates a concurrent claim on the slot.
func (s *Service) CreateFromRequest(ctx context.Context, act actor.Actor, p ScheduleParams, requestID uuid.UUID) (*Appointment, error) {
	if err := p.validate(s.clock.Location()); err != nil {
		return nil, err
	}
	appt := &Appointment{
		ID:        uuid.New(),
		PatientID: p.PatientID,
		DoctorID:  p.DoctorID,
		Date:      p.Date,
		StartTime: p.StartTime,
		Status:    StatusConfirmed,
		Type:      TypeConsultation,
		Note:      p.Note,
		RequestID: &requestID,
	}
	if err := s.repo.Create(ctx, appt); err != nil {
		if faults.IsCode(err, faults.CodeConflict) {
			s.metrics.ObserveConflict("appointment", "schedule")
		}
		return nil, err
	}
	s.metrics.ObserveTransition("appointment", string(StatusConfirmed))
	s.recordAudit(ctx, appt, act, "", StatusConfirmed, "confirmed consultation request")
	return appt, nil
}

// Confirm moves SCHEDULED to CONFIRMED, by the patient or staff acting on
// the patient's behalf.
func (s *Service) Confirm(ctx context.Context, act actor.Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guardPatientOrStaff(act, appt); err != nil {
		return nil, err
	}
	from := appt.Status
	if err := appt.Transition(StatusConfirmed); err != nil {
		s.metrics.ObserveConflict("appointment", "confirm")
		return nil, err
	}
	if err := s.repo.Update(ctx, appt); err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition("appointment", string(StatusConfirmed))
	s.recordAudit(ctx, appt, act, from, StatusConfirmed, "")
	return appt, nil
}

// CheckIn marks the patient as arrived. Allowed from SCHEDULED or CONFIRMED
// and only on the appointment date.
func (s *Service) CheckIn(ctx context.Context, act actor.Actor, id uuid.UUID) (*Appointment, error) {
	if !act.CanFrontDesk() {
		return nil, faults.Authorization("only front-desk staff may check patients in")
	}
	appt, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusScheduled && appt.Status != StatusConfirmed {
		s.metrics.ObserveConflict("appointment", "check_in")
		return nil, faults.Conflict("cannot check in: appointment is %s", appt.Status)
	}
	today := s.clock.Now().Format(availability.DateLayout)
	if appt.Date != today {
		s.metrics.ObserveConflict("appointment", "check_in")
		return nil, faults.Conflict("check-in is only allowed on the appointment date (%s)", appt.Date)
	}

	from := appt.Status
	now := s.clock.Now()
	appt.CheckedInAt = &now
	appt.CheckedInBy = act.ID
	if err := appt.Transition(StatusCheckedIn); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, appt); err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition("appointment", string(StatusCheckedIn))
	s.recordAudit(ctx, appt, act, from, StatusCheckedIn, "")
	return appt, nil
}

// StartConsultation records the clinician opening the encounter.
func (s *Service) StartConsultation(ctx context.Context, act actor.Actor, id, doctorID uuid.UUID) (*Appointment, error) {
	if !act.IsClinician() {
		return nil, faults.Authorization("only a clinician may start a consultation")
	}
	appt, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.DoctorID != doctorID {
		return nil, faults.Authorization("not your appointment")
	}
	from := appt.Status
	if err := appt.Transition(StatusInConsultation); err != nil {
		s.metrics.ObserveConflict("appointment", "start_consultation")
		return nil, err
	}
	now := s.clock.Now()
	appt.ConsultationStartedAt = &now
	if err := s.repo.Update(ctx, appt); err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition("appointment", string(StatusInConsultation))
	s.recordAudit(ctx, appt, act, from, StatusInConsultation, "")
	return appt, nil
}

// Cancel terminates any non-terminal appointment. Mutations on one
// appointment are serialized through the locker so a cancel cannot race a
// reschedule to an inconsistent result.
func (s *Service) Cancel(ctx context.Context, act actor.Actor, id uuid.UUID, reason string) (*Appointment, error) {
	if reason == "" {
		return nil, faults.Validation("a cancellation reason is required")
	}
	release, err := s.locker.Acquire(ctx, id.String())
	if err != nil {
		return nil, err
	}
	defer release()

	appt, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guardPatientOrStaff(act, appt); err != nil {
		return nil, err
	}
	from := appt.Status
	if err := appt.Transition(StatusCancelled); err != nil {
		s.metrics.ObserveConflict("appointment", "cancel")
		return nil, err
	}
	appt.Reason = reason
	if err := s.repo.Update(ctx, appt); err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition("appointment", string(StatusCancelled))
	s.recordAudit(ctx, appt, act, from, StatusCancelled, reason)
	s.dispatch(ctx, notify.Event{
		Type:          notify.EventAppointmentCancelled,
		PatientID:     appt.PatientID.String(),
		DoctorID:      appt.DoctorID.String(),
		AppointmentID: appt.ID.String(),
		Date:          appt.Date,
		StartTime:     appt.StartTime,
		Reason:        reason,
	})
	return appt, nil
}

// Get loads one appointment.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) guardPatientOrStaff(act actor.Actor, appt *Appointment) error {
	if act.CanFrontDesk() {
		return nil
	}
	if act.IsPatient() && act.ID == appt.PatientID.String() {
		return nil
	}
	return faults.Authorization("not your appointment")
}

// recordAudit appends a transition event; failures degrade observability
// but never the transition itself.
func (s *Service) recordAudit(ctx context.Context, appt *Appointment, act actor.Actor, from, to Status, reason string) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Record(ctx, audit.Event{
		Aggregate:   audit.AggregateAppointment,
		AggregateID: appt.ID.String(),
		ActorID:     act.ID,
		ActorRole:   string(act.Role),
		FromStatus:  string(from),
		ToStatus:    string(to),
		Reason:      reason,
		OccurredAt:  s.clock.Now().UTC(),
	})
	if err != nil {
		s.logger.Error("audit write failed, transition already committed",
			"error", err, "appointment_id", appt.ID, "to_status", string(to))
	}
}

// dispatch sends a notification best-effort.
func (s *Service) dispatch(ctx context.Context, evt notify.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, evt); err != nil {
		s.logger.Warn("notification dispatch failed", "error", err, "type", string(evt.Type))
	}
}
