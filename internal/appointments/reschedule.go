package appointments

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/oakwellcare/clinic-engagement/internal/actor"
	"github.com/oakwellcare/clinic-engagement/internal/availability"
	"github.com/oakwellcare/clinic-engagement/internal/faults"
	"github.com/oakwellcare/clinic-engagement/internal/notify"
)

// Reschedule atomically moves an appointment to a new date/time. Lifecycle
// status is untouched; only the slot changes. Terminal appointments are
// immutable, the target slot must currently resolve as available, and
// mutations on one appointment id are serialized so the loser of a race
// observes a conflict against current state.
func (s *Service) Reschedule(ctx context.Context, act actor.Actor, id uuid.UUID, newDate, newTime, reason string) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.reschedule")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.appointment_id", id.String()))

	if reason == "" {
		return nil, faults.Validation("a reschedule reason is required")
	}
	if _, err := availability.CombineDateTime(newDate, newTime, s.clock.Location()); err != nil {
		return nil, err
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
	if IsTerminal(appt.Status) {
		s.metrics.ObserveConflict("appointment", "reschedule")
		return nil, faults.Conflict("cannot reschedule: appointment is %s", appt.Status)
	}

	available, err := s.slots.IsAvailable(ctx, appt.DoctorID, newDate, newTime)
	if err != nil {
		return nil, err
	}
	if !available {
		s.metrics.ObserveConflict("appointment", "reschedule")
		return nil, faults.Conflict("no slots available at %s %s", newDate, newTime)
	}

	oldDate, oldTime := appt.Date, appt.StartTime
	appt.Date = newDate
	appt.StartTime = newTime
	if err := s.repo.Update(ctx, appt); err != nil {
		if faults.IsCode(err, faults.CodeConflict) {
			s.metrics.ObserveConflict("appointment", "reschedule")
		}
		return nil, err
	}

	s.recordAudit(ctx, appt, act, appt.Status, appt.Status,
		"rescheduled from "+oldDate+" "+oldTime+" to "+newDate+" "+newTime+": "+reason)
	s.dispatch(ctx, notify.Event{
		Type:            notify.EventAppointmentRescheduled,
		PatientID:       appt.PatientID.String(),
		DoctorID:        appt.DoctorID.String(),
		AppointmentID:   appt.ID.String(),
		Date:            newDate,
		StartTime:       newTime,
		Reason:          reason,
		NotifyClinician: !act.IsPatient(),
	})
	s.logger.Info("appointment rescheduled",
		"appointment_id", appt.ID, "from", oldDate+" "+oldTime, "to", newDate+" "+newTime)
	return appt, nil
}
