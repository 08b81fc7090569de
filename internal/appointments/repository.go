package appointments

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oakwellcare/clinic-engagement/internal/faults"
)

// Repository defines the persistence contract for appointments. Create and
// Update enforce the two invariants the store owns: no two non-cancelled
// appointments on one (doctor, date, time), and per-row optimistic
// versioning so a stale writer observes a conflict, never a silent
// overwrite.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Create(ctx context.Context, appt *Appointment) error
	// Update applies the aggregate if the stored version still matches
	// appt.Version, then bumps it.
	Update(ctx context.Context, appt *Appointment) error
	ListByDoctorAndDateRange(ctx context.Context, doctorID uuid.UUID, from, to string) ([]Appointment, error)
}

// InMemoryRepository implements Repository for tests and local development,
// with the same conflict semantics as the relational store.
type InMemoryRepository struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*Appointment
	clock func() time.Time
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		rows:  make(map[uuid.UUID]*Appointment),
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// FindByID implements Repository.
func (r *InMemoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, faults.NotFound("appointment %s not found", id)
	}
	return row.clone(), nil
}

// Create implements Repository.
func (r *InMemoryRepository) Create(ctx context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slotTakenLocked(appt.DoctorID, appt.Date, appt.StartTime, appt.ID) {
		return faults.Conflict("slot %s %s is no longer available", appt.Date, appt.StartTime)
	}
	now := r.clock()
	appt.Version = 1
	appt.CreatedAt = now
	appt.UpdatedAt = now
	r.rows[appt.ID] = appt.clone()
	return nil
}

// Update implements Repository.
func (r *InMemoryRepository) Update(ctx context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.rows[appt.ID]
	if !ok {
		return faults.NotFound("appointment %s not found", appt.ID)
	}
	if current.Version != appt.Version {
		return faults.Conflict("appointment was changed by a concurrent update")
	}
	if appt.Status != StatusCancelled && r.slotTakenLocked(appt.DoctorID, appt.Date, appt.StartTime, appt.ID) {
		return faults.Conflict("slot %s %s is no longer available", appt.Date, appt.StartTime)
	}
	appt.Version++
	appt.UpdatedAt = r.clock()
	r.rows[appt.ID] = appt.clone()
	return nil
}

// ListByDoctorAndDateRange implements Repository.
func (r *InMemoryRepository) ListByDoctorAndDateRange(ctx context.Context, doctorID uuid.UUID, from, to string) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, row := range r.rows {
		if row.DoctorID == doctorID && row.Date >= from && row.Date <= to {
			out = append(out, *row.clone())
		}
	}
	return out, nil
}

func (r *InMemoryRepository) slotTakenLocked(doctorID uuid.UUID, date, startTime string, exclude uuid.UUID) bool {
	for _, row := range r.rows {
		if row.ID == exclude {
			continue
		}
		if row.DoctorID == doctorID && row.Date == date && row.StartTime == startTime && row.Status != StatusCancelled {
			return true
		}
	}
	return false
}

var _ Repository = (*InMemoryRepository)(nil)
