package requests

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/oakwellcare/clinic-engagement/internal/actor"
	"github.com/oakwellcare/clinic-engagement/internal/appointments"
	"github.com/oakwellcare/clinic-engagement/internal/audit"
	"github.com/oakwellcare/clinic-engagement/internal/availability"
	"github.com/oakwellcare/clinic-engagement/internal/clock"
	"github.com/oakwellcare/clinic-engagement/internal/faults"
	"github.com/oakwellcare/clinic-engagement/internal/notify"
	"github.com/oakwellcare/clinic-engagement/internal/observability/metrics"
	"github.com/oakwellcare/clinic-engagement/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.requests")

// Decision is a reviewer's verdict on a pending request.
type Decision string

const (
	DecisionNeedsMoreInfo Decision = "needs_more_info"
	DecisionApprove       Decision = "approve"
	DecisionSchedule      Decision = "schedule"
	DecisionCancel        Decision = "cancel"
)

// SlotChecker re-resolves availability for a single slot. Satisfied by
// *availability.Resolver.
type SlotChecker interface {
	IsAvailable(ctx context.Context, doctorID uuid.UUID, date, startTime string) (bool, error)
}

// AppointmentBooker books the appointment a confirmed request becomes.
// Satisfied by *appointments.Service.
type AppointmentBooker interface {
	CreateFromRequest(ctx context.Context, act actor.Actor, p appointments.ScheduleParams, requestID uuid.UUID) (*appointments.Appointment, error)
}

// Service drives the consultation request state machine.
type Service struct {
	repo     Repository
	booker   AppointmentBooker
	slots    SlotChecker
	clock    clock.Clock
	auditor  audit.Recorder
	notifier notify.Notifier
	metrics  *metrics.LifecycleMetrics
	logger   *logging.Logger
}

// NewService constructs a consultation request service.
func NewService(repo Repository, booker AppointmentBooker, slots SlotChecker, clk clock.Clock,
	auditor audit.Recorder, notifier notify.Notifier, m *metrics.LifecycleMetrics, logger *logging.Logger) *Service {
	if repo == nil {
		panic("requests: repository required")
	}
	if booker == nil {
		panic("requests: appointment booker required")
	}
	if slots == nil {
		panic("requests: slot checker required")
	}
	if clk == nil {
		panic("requests: clock required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:     repo,
		booker:   booker,
		slots:    slots,
		clock:    clk,
		auditor:  auditor,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
	}
}

// SubmitParams describes a new patient inquiry.
type SubmitParams struct {
	PatientID uuid.UUID
	Details   string
}

// Submit records a patient inquiry and places it on the review queue. The
// aggregate passes through SUBMITTED into PENDING_REVIEW in one call; both
// hops are audited.
func (s *Service) Submit(ctx context.Context, act actor.Actor, p SubmitParams) (*ConsultationRequest, error) {
	ctx, span := tracer.Start(ctx, "requests.submit")
	defer span.End()

	if p.PatientID == uuid.Nil {
		return nil, faults.Validation("patientId is required")
	}
	if p.Details == "" {
		return nil, faults.Validation("request details are required")
	}
	if act.IsPatient() && act.ID != p.PatientID.String() {
		return nil, faults.Authorization("cannot submit a request for another patient")
	}

	req := &ConsultationRequest{
		ID:          uuid.New(),
		PatientID:   p.PatientID,
		Details:     p.Details,
		Status:      StatusSubmitted,
		SubmittedAt: s.clock.Now(),
	}
	if err := s.repo.Create(ctx, req); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, req, act, "", StatusSubmitted, "")

	if err := req.Transition(StatusPendingReview); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, req); err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition("consultation_request", string(StatusPendingReview))
	s.recordAudit(ctx, req, act, StatusSubmitted, StatusPendingReview, "queued for review")
	s.logger.Info("consultation request submitted", "request_id", req.ID, "patient_id", req.PatientID)
	return req, nil
}

// ReviewParams carries a staff decision on a request.
type ReviewParams struct {
	Decision     Decision
	Notes        string
	DoctorID     *uuid.UUID
	ProposedDate string
	ProposedTime string
}

// Review applies a staff decision. Approve may carry a proposed slot, in
// which case the request moves straight through APPROVED into SCHEDULED;
// schedule proposes a slot for an already-approved request. Proposed slots
// must currently resolve as available.
func (s *Service) Review(ctx context.Context, act actor.Actor, id uuid.UUID, p ReviewParams) (*ConsultationRequest, error) {
	ctx, span := tracer.Start(ctx, "requests.review")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.request_id", id.String()))

	if !act.CanReview() {
		return nil, faults.Authorization("only staff may review consultation requests")
	}

	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	from := req.Status

	switch p.Decision {
	case DecisionNeedsMoreInfo:
		if p.Notes == "" {
			return nil, faults.Validation("a reason is required when requesting more information")
		}
		if err := req.Transition(StatusNeedsMoreInfo); err != nil {
			s.metrics.ObserveConflict("consultation_request", "review")
			return nil, err
		}
		req.Reason = p.Notes

	case DecisionApprove:
		if p.DoctorID == nil || *p.DoctorID == uuid.Nil {
			return nil, faults.Validation("approval requires an assigned clinician")
		}
		if err := req.Transition(StatusApproved); err != nil {
			s.metrics.ObserveConflict("consultation_request", "review")
			return nil, err
		}
		req.DoctorID = p.DoctorID
		req.ReviewNotes = p.Notes
		if p.ProposedDate != "" || p.ProposedTime != "" {
			if err := s.propose(ctx, req, p.ProposedDate, p.ProposedTime); err != nil {
				return nil, err
			}
		}

	case DecisionSchedule:
		if req.DoctorID == nil {
			return nil, faults.Conflict("request has no assigned clinician, approve it first")
		}
		if err := s.propose(ctx, req, p.ProposedDate, p.ProposedTime); err != nil {
			return nil, err
		}

	case DecisionCancel:
		if p.Notes == "" {
			return nil, faults.Validation("a cancellation reason is required")
		}
		if err := req.Transition(StatusCancelled); err != nil {
			s.metrics.ObserveConflict("consultation_request", "review")
			return nil, err
		}
		req.Reason = p.Notes

	default:
		return nil, faults.Validation("unknown review decision %q", p.Decision)
	}

	if err := s.repo.Update(ctx, req); err != nil {
		if faults.IsCode(err, faults.CodeConflict) {
			s.metrics.ObserveConflict("consultation_request", "review")
		}
		return nil, err
	}
	s.metrics.ObserveTransition("consultation_request", string(req.Status))
	s.recordAudit(ctx, req, act, from, req.Status, p.Notes)
	s.notifyPatient(ctx, req)
	s.logger.Info("consultation request reviewed",
		"request_id", req.ID, "decision", string(p.Decision), "status", string(req.Status))
	return req, nil
}

// propose validates and attaches a proposed slot, moving the request to
// SCHEDULED. The caller persists.
func (s *Service) propose(ctx context.Context, req *ConsultationRequest, date, startTime string) error {
	if _, err := availability.CombineDateTime(date, startTime, s.clock.Location()); err != nil {
		return err
	}
	available, err := s.slots.IsAvailable(ctx, *req.DoctorID, date, startTime)
	if err != nil {
		return err
	}
	if !available {
		s.metrics.ObserveConflict("consultation_request", "schedule")
		return faults.Conflict("no slots available at %s %s", date, startTime)
	}
	if err := req.Transition(StatusScheduled); err != nil {
		s.metrics.ObserveConflict("consultation_request", "schedule")
		return err
	}
	req.ProposedDate = date
	req.ProposedTime = startTime
	return nil
}

// RespondInfo records the patient's answer to a NEEDS_MORE_INFO request and
// returns it to the review queue.
func (s *Service) RespondInfo(ctx context.Context, act actor.Actor, id uuid.UUID, response string) (*ConsultationRequest, error) {
	ctx, span := tracer.Start(ctx, "requests.respond_info")
	defer span.End()

	if response == "" {
		return nil, faults.Validation("a response is required")
	}

	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guardPatient(act, req); err != nil {
		return nil, err
	}
	if req.Status != StatusNeedsMoreInfo {
		s.metrics.ObserveConflict("consultation_request", "respond_info")
		return nil, faults.Conflict("consultation request is %s, no information was requested", req.Status)
	}
	if err := req.Transition(StatusPendingReview); err != nil {
		return nil, err
	}
	req.Details = req.Details + "\n\nPatient response: " + response
	req.Reason = ""

	if err := s.repo.Update(ctx, req); err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition("consultation_request", string(StatusPendingReview))
	s.recordAudit(ctx, req, act, StatusNeedsMoreInfo, StatusPendingReview, "patient responded")
	s.logger.Info("consultation request back in review", "request_id", req.ID)
	return req, nil
}

// Confirm is the patient accepting the proposed slot. It books the linked
// appointment and moves the request to CONFIRMED; the store's unique index
// arbitrates if the slot was claimed in the meantime. Confirmation must
// happen before the proposed time elapses.
func (s *Service) Confirm(ctx context.Context, act actor.Actor, id uuid.UUID) (*ConsultationRequest, *appointments.Appointment, error) {
	ctx, span := tracer.Start(ctx, "requests.confirm")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.request_id", id.String()))

	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := s.guardPatient(act, req); err != nil {
		return nil, nil, err
	}
	if req.Status != StatusScheduled {
		s.metrics.ObserveConflict("consultation_request", "confirm")
		return nil, nil, faults.Conflict("consultation request is %s, there is no proposed slot to confirm", req.Status)
	}

	proposedAt, err := availability.CombineDateTime(req.ProposedDate, req.ProposedTime, s.clock.Location())
	if err != nil {
		return nil, nil, err
	}
	if !proposedAt.After(s.clock.Now()) {
		s.metrics.ObserveConflict("consultation_request", "confirm")
		return nil, nil, faults.Conflict("the proposed time has passed, ask staff for a new slot")
	}

	appt, err := s.booker.CreateFromRequest(ctx, act, appointments.ScheduleParams{
		DoctorID:  *req.DoctorID,
		PatientID: req.PatientID,
		Date:      req.ProposedDate,
		StartTime: req.ProposedTime,
		Type:      appointments.TypeConsultation,
	}, req.ID)
	if err != nil {
		return nil, nil, err
	}

	if err := req.Transition(StatusConfirmed); err != nil {
		return nil, nil, err
	}
	req.AppointmentID = &appt.ID
	if err := s.repo.Update(ctx, req); err != nil {
		// The appointment exists but the request write lost; surface the
		// error so the caller retries after a fresh read.
		s.logger.Error("request confirm write failed after booking",
			"request_id", req.ID, "appointment_id", appt.ID, "error", err)
		return nil, nil, err
	}
	s.metrics.ObserveTransition("consultation_request", string(StatusConfirmed))
	s.recordAudit(ctx, req, act, StatusScheduled, StatusConfirmed, "patient confirmed proposed slot")
	s.logger.Info("consultation request confirmed",
		"request_id", req.ID, "appointment_id", appt.ID)
	return req, appt, nil
}

// Complete marks the request's lifecycle done. Reached only through the
// billing reconciler once the linked appointment completes.
func (s *Service) Complete(ctx context.Context, act actor.Actor, id uuid.UUID) (*ConsultationRequest, error) {
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	from := req.Status
	if err := req.Transition(StatusCompleted); err != nil {
		s.metrics.ObserveConflict("consultation_request", "complete")
		return nil, err
	}
	if err := s.repo.Update(ctx, req); err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition("consultation_request", string(StatusCompleted))
	s.recordAudit(ctx, req, act, from, StatusCompleted, "linked appointment completed")
	return req, nil
}

// Get fetches one request, visible to its patient and to staff.
func (s *Service) Get(ctx context.Context, act actor.Actor, id uuid.UUID) (*ConsultationRequest, error) {
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guardPatient(act, req); err != nil {
		return nil, err
	}
	return req, nil
}

// ListPending returns the review queue, oldest first.
func (s *Service) ListPending(ctx context.Context, act actor.Actor) ([]ConsultationRequest, error) {
	if !act.CanReview() {
		return nil, faults.Authorization("only staff may list the review queue")
	}
	return s.repo.ListByStatus(ctx, StatusPendingReview)
}

func (s *Service) guardPatient(act actor.Actor, req *ConsultationRequest) error {
	if act.IsPatient() && act.ID != req.PatientID.String() {
		return faults.Authorization("not your consultation request")
	}
	return nil
}

func (s *Service) notifyPatient(ctx context.Context, req *ConsultationRequest) {
	var eventType notify.EventType
	switch req.Status {
	case StatusNeedsMoreInfo:
		eventType = notify.EventRequestNeedsInfo
	case StatusApproved:
		eventType = notify.EventRequestApproved
	case StatusScheduled:
		eventType = notify.EventRequestScheduled
	default:
		return
	}
	evt := notify.Event{
		Type:      eventType,
		PatientID: req.PatientID.String(),
		RequestID: req.ID.String(),
		Date:      req.ProposedDate,
		StartTime: req.ProposedTime,
		Reason:    req.Reason,
	}
	if req.DoctorID != nil {
		evt.DoctorID = req.DoctorID.String()
	}
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, evt); err != nil {
		s.logger.Warn("notification dispatch failed", "error", err, "type", string(evt.Type))
	}
}

func (s *Service) recordAudit(ctx context.Context, req *ConsultationRequest, act actor.Actor, from, to Status, reason string) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Record(ctx, audit.Event{
		Aggregate:   audit.AggregateRequest,
		AggregateID: req.ID.String(),
		ActorID:     act.ID,
		ActorRole:   string(act.Role),
		FromStatus:  string(from),
		ToStatus:    string(to),
		Reason:      reason,
		OccurredAt:  s.clock.Now().UTC(),
	})
	if err != nil {
		s.logger.Error("audit write failed, transition already committed",
			"error", err, "request_id", req.ID, "to_status", string(to))
	}
}
