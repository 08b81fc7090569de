package billing

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
	"github.com/oakwellcare/clinic-engagement/internal/clock"
	"github.com/oakwellcare/clinic-engagement/internal/faults"
	"github.com/oakwellcare/clinic-engagement/internal/locking"
	"github.com/oakwellcare/clinic-engagement/internal/notify"
	"github.com/oakwellcare/clinic-engagement/internal/requests"
)

var clinicianActor = actor.Actor{ID: "doc-1", Role: actor.RoleClinician}

type fixture struct {
	rec      *Reconciler
	store    *MemoryStore
	appts    *appointments.InMemoryRepository
	reqs     *requests.InMemoryRepository
	clock    *clock.Fixed
	notifier *notify.MemoryNotifier
	doctor   uuid.UUID
	patient  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	f := &fixture{
		appts:    appointments.NewInMemoryRepository(),
		reqs:     requests.NewInMemoryRepository(),
		clock:    clock.NewFixed(time.Date(2025, 3, 3, 10, 0, 0, 0, loc)),
		notifier: notify.NewMemoryNotifier(),
		doctor:   uuid.New(),
		patient:  uuid.New(),
	}
	f.store = NewMemoryStore(f.appts, f.reqs)
	f.rec = NewReconciler(f.store, f.clock, locking.NewMemoryLocker(), audit.NewMemoryRecorder(), f.notifier, nil, nil)
	return f
}

// inConsultation seeds an appointment mid-consultation, started 45 minutes
// before the fixture clock.
func (f *fixture) inConsultation(t *testing.T) *appointments.Appointment {
	t.Helper()
	started := f.clock.Now().Add(-45 * time.Minute)
	appt := &appointments.Appointment{
		ID:                    uuid.New(),
		PatientID:             f.patient,
		DoctorID:              f.doctor,
		Date:                  "2025-03-03",
		StartTime:             "09:00",
		Status:                appointments.StatusInConsultation,
		Type:                  appointments.TypeConsultation,
		ConsultationStartedAt: &started,
	}
	require.NoError(t, f.appts.Create(context.Background(), appt))
	return appt
}

func (f *fixture) params(appt *appointments.Appointment) CompleteParams {
	return CompleteParams{
		AppointmentID: appt.ID,
		DoctorID:      f.doctor,
		Summary:       "assessed migraines, prescribed triptan trial",
		OutcomeType:   OutcomeConsultationOnly,
		Items: []ItemInput{
			{ServiceID: "svc-consult", Quantity: 2, UnitCents: 500},
			{ServiceID: "svc-imaging", Quantity: 1, UnitCents: 1000},
		},
		DiscountCents: 200,
	}
}

func TestCompleteWritesBillAndCompletesAppointment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.inConsultation(t)

	summary, err := f.rec.Complete(ctx, clinicianActor, f.params(appt))
	require.NoError(t, err)
	assert.Equal(t, int64(1800), summary.TotalCents)
	assert.Equal(t, BillUnpaid, summary.BillStatus)

	done, err := f.appts.FindByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointments.StatusCompleted, done.Status)
	require.NotNil(t, done.ConsultationEndedAt)
	assert.Equal(t, 45, done.ConsultationDurationMin)
	assert.Contains(t, done.Note, "Outcome: assessed migraines")

	bill, err := f.store.PaymentByAppointment(ctx, appt.ID)
	require.NoError(t, err)
	require.NotNil(t, bill)
	assert.Equal(t, int64(1800), bill.TotalCents)
	assert.Len(t, bill.Items, 2)

	var types []notify.EventType
	for _, evt := range f.notifier.Events() {
		types = append(types, evt.Type)
	}
	assert.Contains(t, types, notify.EventAppointmentCompleted)
}

func TestProcedureRecommendedRequiresDecision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.inConsultation(t)

	p := f.params(appt)
	p.OutcomeType = OutcomeProcedureRecommended
	p.PatientDecision = ""

	_, err := f.rec.Complete(ctx, clinicianActor, p)
	require.Error(t, err)
	assert.True(t, faults.IsCode(err, faults.CodeValidation))

	// Nothing moved: no bill, appointment still mid-consultation.
	bill, err := f.store.PaymentByAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Nil(t, bill)
	fresh, err := f.appts.FindByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointments.StatusInConsultation, fresh.Status)
}

func TestNonDecisionOutcomesComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started := f.clock.Now().Add(-45 * time.Minute)
	for i, outcome := range []OutcomeType{OutcomePatientDeciding, OutcomeReferralNeeded} {
		appt := &appointments.Appointment{
			ID:                    uuid.New(),
			PatientID:             f.patient,
			DoctorID:              f.doctor,
			Date:                  "2025-03-03",
			StartTime:             []string{"09:00", "09:30"}[i],
			Status:                appointments.StatusInConsultation,
			Type:                  appointments.TypeConsultation,
			ConsultationStartedAt: &started,
		}
		require.NoError(t, f.appts.Create(ctx, appt))

		p := f.params(appt)
		p.OutcomeType = outcome

		summary, err := f.rec.Complete(ctx, clinicianActor, p)
		require.NoError(t, err, "outcome %s", outcome)
		assert.False(t, summary.AwaitingSurgicalPlanning)

		done, err := f.appts.FindByID(ctx, appt.ID)
		require.NoError(t, err)
		assert.Equal(t, appointments.StatusCompleted, done.Status)
	}
}

func TestSummaryIsRequired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.inConsultation(t)

	p := f.params(appt)
	p.Summary = ""

	_, err := f.rec.Complete(ctx, clinicianActor, p)
	require.Error(t, err)
	assert.True(t, faults.IsCode(err, faults.CodeValidation))

	bill, err := f.store.PaymentByAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Nil(t, bill)
	fresh, err := f.appts.FindByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointments.StatusInConsultation, fresh.Status)
}

func TestSecondCompleteConflictsAndBillIsUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.inConsultation(t)

	_, err := f.rec.Complete(ctx, clinicianActor, f.params(appt))
	require.NoError(t, err)

	again := f.params(appt)
	again.Items = []ItemInput{{ServiceID: "svc-extra", Quantity: 9, UnitCents: 9999}}
	_, err = f.rec.Complete(ctx, clinicianActor, again)
	require.Error(t, err)
	assert.True(t, faults.IsCode(err, faults.CodeConflict))

	bill, err := f.store.PaymentByAppointment(ctx, appt.ID)
	require.NoError(t, err)
	require.NotNil(t, bill)
	assert.Equal(t, int64(1800), bill.TotalCents, "losing attempt must not revise the bill")
	assert.Len(t, bill.Items, 2)
}

func TestSettledBillCannotBeRevised(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.inConsultation(t)

	f.store.mu.Lock()
	f.store.payments[appt.ID] = &Payment{
		ID:            uuid.New(),
		AppointmentID: appt.ID,
		PatientID:     f.patient,
		TotalCents:    1800,
		Status:        BillPaid,
	}
	f.store.mu.Unlock()

	_, err := f.rec.Complete(ctx, clinicianActor, f.params(appt))
	require.Error(t, err)
	assert.True(t, faults.IsCode(err, faults.CodeConflict))
	assert.Contains(t, err.Error(), "payment already completed")

	fresh, err := f.appts.FindByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointments.StatusInConsultation, fresh.Status, "rejected reconcile must not complete the appointment")
}

func TestPartialPaymentSurvivesBillRevision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.inConsultation(t)

	f.store.mu.Lock()
	f.store.payments[appt.ID] = &Payment{
		ID:              uuid.New(),
		AppointmentID:   appt.ID,
		PatientID:       f.patient,
		TotalCents:      1800,
		AmountPaidCents: 500,
		Status:          BillPartial,
	}
	f.store.mu.Unlock()

	summary, err := f.rec.Complete(ctx, clinicianActor, f.params(appt))
	require.NoError(t, err)
	assert.Equal(t, BillPartial, summary.BillStatus)

	bill, err := f.store.PaymentByAppointment(ctx, appt.ID)
	require.NoError(t, err)
	require.NotNil(t, bill)
	assert.Equal(t, BillPartial, bill.Status, "settlement state is external, revision must not reset it")
	assert.Equal(t, int64(500), bill.AmountPaidCents)
}

func TestWrongClinicianRejected(t *testing.T) {
	f := newFixture(t)
	appt := f.inConsultation(t)

	p := f.params(appt)
	p.DoctorID = uuid.New()
	_, err := f.rec.Complete(context.Background(), clinicianActor, p)
	assert.True(t, faults.IsCode(err, faults.CodeAuthorization))
}

func TestCompleteRequiresConsultationInProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := &appointments.Appointment{
		ID:        uuid.New(),
		PatientID: f.patient,
		DoctorID:  f.doctor,
		Date:      "2025-03-03",
		StartTime: "11:00",
		Status:    appointments.StatusScheduled,
		Type:      appointments.TypeConsultation,
	}
	require.NoError(t, f.appts.Create(ctx, appt))

	_, err := f.rec.Complete(ctx, clinicianActor, f.params(appt))
	require.Error(t, err)
	assert.True(t, faults.IsCode(err, faults.CodeConflict))

	bill, err := f.store.PaymentByAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Nil(t, bill)
}

func TestPatientCannotComplete(t *testing.T) {
	f := newFixture(t)
	appt := f.inConsultation(t)
	pat := actor.Actor{ID: f.patient.String(), Role: actor.RolePatient}
	_, err := f.rec.Complete(context.Background(), pat, f.params(appt))
	assert.True(t, faults.IsCode(err, faults.CodeAuthorization))
}

func TestAcceptedProcedureCompletesLinkedRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := &requests.ConsultationRequest{
		ID:          uuid.New(),
		PatientID:   f.patient,
		DoctorID:    &f.doctor,
		Details:     "procedure inquiry",
		Status:      requests.StatusConfirmed,
		SubmittedAt: f.clock.Now(),
	}
	require.NoError(t, f.reqs.Create(ctx, req))

	appt := f.inConsultation(t)
	appt.RequestID = &req.ID
	require.NoError(t, f.appts.Update(ctx, appt))

	p := f.params(appt)
	p.OutcomeType = OutcomeProcedureRecommended
	p.PatientDecision = DecisionYes

	summary, err := f.rec.Complete(ctx, clinicianActor, p)
	require.NoError(t, err)
	assert.True(t, summary.AwaitingSurgicalPlanning)

	done, err := f.reqs.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, requests.StatusCompleted, done.Status)
	assert.True(t, done.AwaitingSurgicalPlanning)
}

func TestDeclinedProcedureStillCompletesRequestWithoutFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := &requests.ConsultationRequest{
		ID:          uuid.New(),
		PatientID:   f.patient,
		DoctorID:    &f.doctor,
		Details:     "procedure inquiry",
		Status:      requests.StatusConfirmed,
		SubmittedAt: f.clock.Now(),
	}
	require.NoError(t, f.reqs.Create(ctx, req))

	appt := f.inConsultation(t)
	appt.RequestID = &req.ID
	require.NoError(t, f.appts.Update(ctx, appt))

	p := f.params(appt)
	p.OutcomeType = OutcomeProcedureRecommended
	p.PatientDecision = DecisionNo

	summary, err := f.rec.Complete(ctx, clinicianActor, p)
	require.NoError(t, err)
	assert.False(t, summary.AwaitingSurgicalPlanning)

	done, err := f.reqs.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, requests.StatusCompleted, done.Status)
	assert.False(t, done.AwaitingSurgicalPlanning)
}

func TestFollowUpSuggestedButNeverAutoCreated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.inConsultation(t)

	p := f.params(appt)
	p.OutcomeType = OutcomeFollowUpNeeded

	summary, err := f.rec.Complete(ctx, clinicianActor, p)
	require.NoError(t, err)
	assert.True(t, summary.FollowUpSuggested)

	var types []notify.EventType
	for _, evt := range f.notifier.Events() {
		types = append(types, evt.Type)
	}
	assert.Contains(t, types, notify.EventFollowUpSuggested)

	// Suggestion only: no second appointment appears for this clinician.
	list, err := f.appts.ListByDoctorAndDateRange(ctx, f.doctor, "2025-03-01", "2025-03-31")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCustomTotalOverridesItemSum(t *testing.T) {
	f := newFixture(t)
	appt := f.inConsultation(t)

	custom := int64(1500)
	p := f.params(appt)
	p.CustomTotal = &custom
	p.DiscountCents = 300

	summary, err := f.rec.Complete(context.Background(), clinicianActor, p)
	require.NoError(t, err)
	assert.Equal(t, int64(1200), summary.TotalCents)
}
