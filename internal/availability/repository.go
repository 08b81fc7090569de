package availability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository supplies the raw inputs the resolver works from.
type Repository interface {
	// TemplateForDoctor returns the clinician's active weekly template.
	TemplateForDoctor(ctx context.Context, doctorID uuid.UUID) ([]TemplateRange, error)
	// BookedTimes returns start times of non-cancelled appointments for the
	// clinician on the given date.
	BookedTimes(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error)
}

// InMemoryRepository backs resolver tests and local development.
type InMemoryRepository struct {
	mu        sync.RWMutex
	templates map[uuid.UUID][]TemplateRange
	booked    map[string][]string // doctorID|date -> start times
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		templates: make(map[uuid.UUID][]TemplateRange),
		booked:    make(map[string][]string),
	}
}

// SetTemplate replaces the weekly template for a clinician.
func (r *InMemoryRepository) SetTemplate(doctorID uuid.UUID, ranges ...TemplateRange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[doctorID] = ranges
}

// AddBooked records a consumed slot.
func (r *InMemoryRepository) AddBooked(doctorID uuid.UUID, date, startTime string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := doctorID.String() + "|" + date
	r.booked[key] = append(r.booked[key], startTime)
}

// RemoveBooked releases a slot (cancellation).
func (r *InMemoryRepository) RemoveBooked(doctorID uuid.UUID, date, startTime string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := doctorID.String() + "|" + date
	times := r.booked[key]
	for i, t := range times {
		if t == startTime {
			r.booked[key] = append(times[:i], times[i+1:]...)
			return
		}
	}
}

// TemplateForDoctor implements Repository.
func (r *InMemoryRepository) TemplateForDoctor(ctx context.Context, doctorID uuid.UUID) ([]TemplateRange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ranges := r.templates[doctorID]
	out := make([]TemplateRange, len(ranges))
	copy(out, ranges)
	return out, nil
}

// BookedTimes implements Repository.
func (r *InMemoryRepository) BookedTimes(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	times := r.booked[doctorID.String()+"|"+date]
	out := make([]string, len(times))
	copy(out, times)
	return out, nil
}

var _ Repository = (*InMemoryRepository)(nil)

// TemplateDay is a convenience constructor for a single working block.
func TemplateDay(doctorID uuid.UUID, weekday time.Weekday, start, end string) TemplateRange {
	return TemplateRange{DoctorID: doctorID, Weekday: weekday, Start: start, End: end}
}
