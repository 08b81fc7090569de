package requests

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oakwellcare/clinic-engagement/internal/faults"
)

// Repository defines the persistence contract for consultation requests.
// Update enforces per-row optimistic versioning so two reviewers racing on
// the same request serialize: exactly one write lands, the loser observes
// a conflict against current state.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*ConsultationRequest, error)
	Create(ctx context.Context, req *ConsultationRequest) error
	// Update applies the aggregate if the stored version still matches
	// req.Version, then bumps it.
	Update(ctx context.Context, req *ConsultationRequest) error
	ListByStatus(ctx context.Context, status Status) ([]ConsultationRequest, error)
}

// InMemoryRepository implements Repository for tests and local development.
type InMemoryRepository struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*ConsultationRequest
	clock func() time.Time
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		rows:  make(map[uuid.UUID]*ConsultationRequest),
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// FindByID implements Repository.
func (r *InMemoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*ConsultationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, faults.NotFound("consultation request %s not found", id)
	}
	return row.clone(), nil
}

// Create implements Repository.
func (r *InMemoryRepository) Create(ctx context.Context, req *ConsultationRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock()
	req.Version = 1
	req.CreatedAt = now
	req.UpdatedAt = now
	r.rows[req.ID] = req.clone()
	return nil
}

// Update implements Repository.
func (r *InMemoryRepository) Update(ctx context.Context, req *ConsultationRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.rows[req.ID]
	if !ok {
		return faults.NotFound("consultation request %s not found", req.ID)
	}
	if current.Version != req.Version {
		return faults.Conflict("consultation request was changed by a concurrent update")
	}
	req.Version++
	req.UpdatedAt = r.clock()
	r.rows[req.ID] = req.clone()
	return nil
}

// ListByStatus implements Repository.
func (r *InMemoryRepository) ListByStatus(ctx context.Context, status Status) ([]ConsultationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ConsultationRequest
	for _, row := range r.rows {
		if row.Status == status {
			out = append(out, *row.clone())
		}
	}
	return out, nil
}

var _ Repository = (*InMemoryRepository)(nil)
