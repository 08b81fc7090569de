package requests

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakwellcare/clinic-engagement/internal/actor"
	"github.com/oakwellcare/clinic-engagement/internal/appointments"
	"github.com/oakwellcare/clinic-engagement/internal/audit"
	"github.com/oakwellcare/clinic-engagement/internal/availability"
	"github.com/oakwellcare/clinic-engagement/internal/clock"
	"github.com/oakwellcare/clinic-engagement/internal/faults"
	"github.com/oakwellcare/clinic-engagement/internal/locking"
	"github.com/oakwellcare/clinic-engagement/internal/notify"
)

var staff = actor.Actor{ID: "staff-1", Role: actor.RoleStaff}

type fixture struct {
	svc      *Service
	repo     *InMemoryRepository
	appts    *appointments.InMemoryRepository
	avail    *availability.InMemoryRepository
	clock    *clock.Fixed
	auditor  *audit.MemoryRecorder
	notifier *notify.MemoryNotifier
	doctor   uuid.UUID
	patient  actor.Actor
	patID    uuid.UUID
}

// newFixture pins the clock to Monday 2025-03-03 08:00 clinic time with a
// 09:00-12:00 Monday template, so the following Monday 2025-03-10 is
// proposable a week out.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	now := time.Date(2025, 3, 3, 8, 0, 0, 0, loc)

	f := &fixture{
		repo:     NewInMemoryRepository(),
		appts:    appointments.NewInMemoryRepository(),
		avail:    availability.NewInMemoryRepository(),
		clock:    clock.NewFixed(now),
		auditor:  audit.NewMemoryRecorder(),
		notifier: notify.NewMemoryNotifier(),
		doctor:   uuid.New(),
		patID:    uuid.New(),
	}
	f.patient = actor.Actor{ID: f.patID.String(), Role: actor.RolePatient}
	f.avail.SetTemplate(f.doctor,
		availability.TemplateDay(f.doctor, time.Monday, "09:00", "12:00"),
	)
	resolver := availability.NewResolver(f.avail, f.clock, 30, nil)
	booker := appointments.NewService(f.appts, resolver, f.clock, locking.NewMemoryLocker(), f.auditor, f.notifier, nil, nil)
	f.svc = NewService(f.repo, booker, resolver, f.clock, f.auditor, f.notifier, nil, nil)
	return f
}

func (f *fixture) submit(t *testing.T) *ConsultationRequest {
	t.Helper()
	req, err := f.svc.Submit(context.Background(), f.patient, SubmitParams{
		PatientID: f.patID,
		Details:   "interested in a consultation about recurring migraines",
	})
	require.NoError(t, err)
	return req
}

func (f *fixture) scheduled(t *testing.T) *ConsultationRequest {
	t.Helper()
	req := f.submit(t)
	req, err := f.svc.Review(context.Background(), staff, req.ID, ReviewParams{
		Decision:     DecisionApprove,
		Notes:        "looks good",
		DoctorID:     &f.doctor,
		ProposedDate: "2025-03-10",
		ProposedTime: "10:00",
	})
	require.NoError(t, err)
	require.Equal(t, StatusScheduled, req.Status)
	return req
}

func TestIntakeLifecycleEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.submit(t)
	assert.Equal(t, StatusPendingReview, req.Status)

	req, err := f.svc.Review(ctx, staff, req.ID, ReviewParams{
		Decision: DecisionNeedsMoreInfo,
		Notes:    "missing photos",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusNeedsMoreInfo, req.Status)
	assert.Equal(t, "missing photos", req.Reason)

	req, err = f.svc.RespondInfo(ctx, f.patient, req.ID, "photos attached to the portal")
	require.NoError(t, err)
	assert.Equal(t, StatusPendingReview, req.Status)
	assert.Contains(t, req.Details, "photos attached")

	req, err = f.svc.Review(ctx, staff, req.ID, ReviewParams{
		Decision:     DecisionApprove,
		Notes:        "complete, assigning Dr.",
		DoctorID:     &f.doctor,
		ProposedDate: "2025-03-10",
		ProposedTime: "10:00",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, req.Status)
	assert.Equal(t, "2025-03-10", req.ProposedDate)
	assert.Equal(t, "10:00", req.ProposedTime)

	req, appt, err := f.svc.Confirm(ctx, f.patient, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, req.Status)
	require.NotNil(t, req.AppointmentID)

	assert.Equal(t, appt.ID, *req.AppointmentID)
	assert.Equal(t, "2025-03-10", appt.Date)
	assert.Equal(t, "10:00", appt.StartTime)
	assert.Equal(t, appointments.StatusConfirmed, appt.Status)
	require.NotNil(t, appt.RequestID)
	assert.Equal(t, req.ID, *appt.RequestID)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.patient, SubmitParams{PatientID: f.patID})
	assert.True(t, faults.IsCode(err, faults.CodeValidation))

	_, err = f.svc.Submit(ctx, f.patient, SubmitParams{Details: "no patient"})
	assert.True(t, faults.IsCode(err, faults.CodeValidation))

	stranger := actor.Actor{ID: uuid.NewString(), Role: actor.RolePatient}
	_, err = f.svc.Submit(ctx, stranger, SubmitParams{PatientID: f.patID, Details: "on behalf of someone else"})
	assert.True(t, faults.IsCode(err, faults.CodeAuthorization))
}

func TestReviewIsStaffOnly(t *testing.T) {
	f := newFixture(t)
	req := f.submit(t)
	_, err := f.svc.Review(context.Background(), f.patient, req.ID, ReviewParams{Decision: DecisionApprove, DoctorID: &f.doctor})
	assert.True(t, faults.IsCode(err, faults.CodeAuthorization))
}

func TestNeedsMoreInfoRequiresReason(t *testing.T) {
	f := newFixture(t)
	req := f.submit(t)
	_, err := f.svc.Review(context.Background(), staff, req.ID, ReviewParams{Decision: DecisionNeedsMoreInfo})
	assert.True(t, faults.IsCode(err, faults.CodeValidation))
}

func TestCancelRequiresReason(t *testing.T) {
	f := newFixture(t)
	req := f.submit(t)
	ctx := context.Background()

	_, err := f.svc.Review(ctx, staff, req.ID, ReviewParams{Decision: DecisionCancel})
	assert.True(t, faults.IsCode(err, faults.CodeValidation))

	req, err = f.svc.Review(ctx, staff, req.ID, ReviewParams{Decision: DecisionCancel, Notes: "duplicate request"})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, req.Status)
	assert.Equal(t, "duplicate request", req.Reason)
}

func TestApproveRequiresClinician(t *testing.T) {
	f := newFixture(t)
	req := f.submit(t)
	_, err := f.svc.Review(context.Background(), staff, req.ID, ReviewParams{Decision: DecisionApprove, Notes: "ok"})
	assert.True(t, faults.IsCode(err, faults.CodeValidation))
}

func TestProposedSlotMustBeAvailable(t *testing.T) {
	f := newFixture(t)
	req := f.submit(t)

	// 13:00 is outside the 09:00-12:00 Monday template.
	_, err := f.svc.Review(context.Background(), staff, req.ID, ReviewParams{
		Decision:     DecisionApprove,
		DoctorID:     &f.doctor,
		ProposedDate: "2025-03-10",
		ProposedTime: "13:00",
	})
	require.Error(t, err)
	assert.True(t, faults.IsCode(err, faults.CodeConflict))
}

func TestScheduleDecisionAfterApproval(t *testing.T) {
	f := newFixture(t)
	req := f.submit(t)
	ctx := context.Background()

	req, err := f.svc.Review(ctx, staff, req.ID, ReviewParams{Decision: DecisionApprove, DoctorID: &f.doctor})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, req.Status)

	req, err = f.svc.Review(ctx, staff, req.ID, ReviewParams{
		Decision:     DecisionSchedule,
		ProposedDate: "2025-03-10",
		ProposedTime: "09:30",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, req.Status)
	assert.Equal(t, "09:30", req.ProposedTime)
}

func TestConfirmAfterProposedTimeElapsed(t *testing.T) {
	f := newFixture(t)
	req := f.scheduled(t)

	f.clock.Advance(8 * 24 * time.Hour)

	_, _, err := f.svc.Confirm(context.Background(), f.patient, req.ID)
	require.Error(t, err)
	assert.True(t, faults.IsCode(err, faults.CodeConflict))

	fresh, err := f.svc.Get(context.Background(), staff, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, fresh.Status)
}

func TestConfirmIsForTheOwningPatient(t *testing.T) {
	f := newFixture(t)
	req := f.scheduled(t)
	stranger := actor.Actor{ID: uuid.NewString(), Role: actor.RolePatient}
	_, _, err := f.svc.Confirm(context.Background(), stranger, req.ID)
	assert.True(t, faults.IsCode(err, faults.CodeAuthorization))
}

func TestConfirmLosesWhenSlotClaimedMeanwhile(t *testing.T) {
	f := newFixture(t)
	req := f.scheduled(t)

	// Another booking claims the proposed slot before the patient confirms.
	require.NoError(t, f.appts.Create(context.Background(), &appointments.Appointment{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		DoctorID:  f.doctor,
		Date:      req.ProposedDate,
		StartTime: req.ProposedTime,
		Status:    appointments.StatusScheduled,
		Type:      appointments.TypeConsultation,
	}))

	_, _, err := f.svc.Confirm(context.Background(), f.patient, req.ID)
	require.Error(t, err)
	assert.True(t, faults.IsCode(err, faults.CodeConflict))

	fresh, err := f.svc.Get(context.Background(), staff, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, fresh.Status, "request stays confirmable against a new slot")
}

func TestRespondInfoOnlyWhenRequested(t *testing.T) {
	f := newFixture(t)
	req := f.submit(t)
	_, err := f.svc.RespondInfo(context.Background(), f.patient, req.ID, "unprompted reply")
	require.Error(t, err)
	assert.True(t, faults.IsCode(err, faults.CodeConflict))
}

func TestCompleteOnlyFromConfirmed(t *testing.T) {
	f := newFixture(t)
	req := f.scheduled(t)
	ctx := context.Background()

	_, err := f.svc.Complete(ctx, staff, req.ID)
	require.Error(t, err)
	assert.True(t, faults.IsCode(err, faults.CodeConflict))

	_, _, err = f.svc.Confirm(ctx, f.patient, req.ID)
	require.NoError(t, err)

	done, err := f.svc.Complete(ctx, staff, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
}

func TestPatientFacingTransitionsNotify(t *testing.T) {
	f := newFixture(t)
	f.scheduled(t)

	var types []notify.EventType
	for _, evt := range f.notifier.Events() {
		types = append(types, evt.Type)
	}
	assert.Contains(t, types, notify.EventRequestScheduled)
}
