package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oakwellcare/clinic-engagement/internal/appointments"
	"github.com/oakwellcare/clinic-engagement/internal/faults"
	"github.com/oakwellcare/clinic-engagement/internal/requests"
)

// Tx is the unit-of-work view the reconciler mutates through. Everything
// done through one Tx commits or rolls back together, so a bill can never
// land on an appointment whose terminal transition was lost.
type Tx interface {
	// Appointment reads the aggregate with the row held for update.
	Appointment(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
	// UpdateAppointment writes under the optimistic version check.
	UpdateAppointment(ctx context.Context, appt *appointments.Appointment) error
	// PaymentByAppointment returns the existing bill, or nil when none.
	PaymentByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error)
	// UpsertPayment writes the bill, replacing its items wholesale.
	UpsertPayment(ctx context.Context, p *Payment) error
	// CompleteRequest moves a CONFIRMED linked request to COMPLETED; a
	// request in any other state is left alone.
	CompleteRequest(ctx context.Context, requestID uuid.UUID, awaitingSurgicalPlanning bool) error
}

// Store runs reconciliations atomically.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// PaymentByAppointment is the read path for bill lookups outside a
	// reconciliation.
	PaymentByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error)
}

// MemoryStore implements Store over the in-memory repositories for tests
// and local development. Writes staged during fn are applied only after fn
// returns nil, appointment first, so a failed transition leaves the bill
// untouched.
type MemoryStore struct {
	mu       sync.Mutex
	appts    *appointments.InMemoryRepository
	reqs     *requests.InMemoryRepository
	payments map[uuid.UUID]*Payment
	clock    func() time.Time
}

// NewMemoryStore wires a memory store over the given repositories.
func NewMemoryStore(appts *appointments.InMemoryRepository, reqs *requests.InMemoryRepository) *MemoryStore {
	return &MemoryStore{
		appts:    appts,
		reqs:     reqs,
		payments: make(map[uuid.UUID]*Payment),
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// InTx implements Store.
func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{store: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit(ctx)
}

// PaymentByAppointment implements Store.
func (s *MemoryStore) PaymentByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[appointmentID]
	if !ok {
		return nil, nil
	}
	return p.clone(), nil
}

type memTx struct {
	store *MemoryStore

	pendingAppt    *appointments.Appointment
	pendingPayment *Payment
	pendingReqID   *uuid.UUID
	pendingFlag    bool
}

func (t *memTx) Appointment(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error) {
	return t.store.appts.FindByID(ctx, id)
}

func (t *memTx) UpdateAppointment(ctx context.Context, appt *appointments.Appointment) error {
	t.pendingAppt = appt
	return nil
}

func (t *memTx) PaymentByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	p, ok := t.store.payments[appointmentID]
	if !ok {
		return nil, nil
	}
	return p.clone(), nil
}

func (t *memTx) UpsertPayment(ctx context.Context, p *Payment) error {
	t.pendingPayment = p
	return nil
}

func (t *memTx) CompleteRequest(ctx context.Context, requestID uuid.UUID, awaitingSurgicalPlanning bool) error {
	id := requestID
	t.pendingReqID = &id
	t.pendingFlag = awaitingSurgicalPlanning
	return nil
}

func (t *memTx) commit(ctx context.Context) error {
	if t.pendingAppt != nil {
		if err := t.store.appts.Update(ctx, t.pendingAppt); err != nil {
			return err
		}
	}
	if t.pendingPayment != nil {
		now := t.store.clock()
		if t.pendingPayment.CreatedAt.IsZero() {
			t.pendingPayment.CreatedAt = now
		}
		t.pendingPayment.UpdatedAt = now
		t.store.payments[t.pendingPayment.AppointmentID] = t.pendingPayment.clone()
	}
	if t.pendingReqID != nil {
		if err := t.completeRequest(ctx, *t.pendingReqID, t.pendingFlag); err != nil {
			return err
		}
	}
	return nil
}

func (t *memTx) completeRequest(ctx context.Context, requestID uuid.UUID, flag bool) error {
	req, err := t.store.reqs.FindByID(ctx, requestID)
	if err != nil {
		if faults.IsCode(err, faults.CodeNotFound) {
			return nil
		}
		return err
	}
	if req.Status != requests.StatusConfirmed {
		return nil
	}
	if err := req.Transition(requests.StatusCompleted); err != nil {
		return err
	}
	req.AwaitingSurgicalPlanning = flag
	return t.store.reqs.Update(ctx, req)
}

var _ Store = (*MemoryStore)(nil)
