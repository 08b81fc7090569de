package requests

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oakwellcare/clinic-engagement/internal/faults"
)

// PgxPool is the slice of pgxpool.Pool this repository needs.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores consultation requests in the relational database.
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("requests: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const requestColumns = `
	id, patient_id, doctor_id, details, status, review_notes, reason,
	proposed_date, proposed_time, appointment_id, awaiting_surgical_planning,
	submitted_at, version, created_at, updated_at
`

// FindByID fetches one consultation request.
func (r *PostgresRepository) FindByID(ctx context.Context, id uuid.UUID) (*ConsultationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM consultation_requests WHERE id = $1`
	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, faults.NotFound("consultation request %s not found", id)
		}
		return nil, fmt.Errorf("requests: select failed: %w", err)
	}
	return req, nil
}

// Create inserts a new consultation request.
func (r *PostgresRepository) Create(ctx context.Context, req *ConsultationRequest) error {
	query := `
		INSERT INTO consultation_requests (
			id, patient_id, doctor_id, details, status, review_notes, reason,
			proposed_date, proposed_time, appointment_id,
			awaiting_surgical_planning, submitted_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1)
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		req.ID,
		req.PatientID,
		req.DoctorID,
		req.Details,
		req.Status,
		req.ReviewNotes,
		req.Reason,
		nullableLabel(req.ProposedDate),
		nullableLabel(req.ProposedTime),
		req.AppointmentID,
		req.AwaitingSurgicalPlanning,
		req.SubmittedAt,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("requests: insert failed: %w", err)
	}
	req.Version = 1
	return nil
}

// Update applies the aggregate under the optimistic version check. A stale
// version loses with a conflict reflecting the now-current state.
func (r *PostgresRepository) Update(ctx context.Context, req *ConsultationRequest) error {
	query := `
		UPDATE consultation_requests SET
			doctor_id = $3, details = $4, status = $5, review_notes = $6,
			reason = $7, proposed_date = $8, proposed_time = $9,
			appointment_id = $10, awaiting_surgical_planning = $11,
			version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
	`
	tag, err := r.pool.Exec(ctx, query,
		req.ID,
		req.Version,
		req.DoctorID,
		req.Details,
		req.Status,
		req.ReviewNotes,
		req.Reason,
		nullableLabel(req.ProposedDate),
		nullableLabel(req.ProposedTime),
		req.AppointmentID,
		req.AwaitingSurgicalPlanning,
	)
	if err != nil {
		return fmt.Errorf("requests: update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM consultation_requests WHERE id = $1)`, req.ID).Scan(&exists); err != nil {
			return fmt.Errorf("requests: update verify failed: %w", err)
		}
		if !exists {
			return faults.NotFound("consultation request %s not found", req.ID)
		}
		return faults.Conflict("consultation request was changed by a concurrent update")
	}
	req.Version++
	return nil
}

// ListByStatus returns requests in one lifecycle state, oldest first, for
// review queues.
func (r *PostgresRepository) ListByStatus(ctx context.Context, status Status) ([]ConsultationRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM consultation_requests
		WHERE status = $1
		ORDER BY submitted_at
	`
	rows, err := r.pool.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("requests: list failed: %w", err)
	}
	defer rows.Close()

	var out []ConsultationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("requests: list scan failed: %w", err)
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

func scanRequest(row pgx.Row) (*ConsultationRequest, error) {
	var r ConsultationRequest
	var reviewNotes, reason, proposedDate, proposedTime *string
	err := row.Scan(
		&r.ID, &r.PatientID, &r.DoctorID, &r.Details, &r.Status,
		&reviewNotes, &reason, &proposedDate, &proposedTime,
		&r.AppointmentID, &r.AwaitingSurgicalPlanning, &r.SubmittedAt,
		&r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if reviewNotes != nil {
		r.ReviewNotes = *reviewNotes
	}
	if reason != nil {
		r.Reason = *reason
	}
	if proposedDate != nil {
		r.ProposedDate = *proposedDate
	}
	if proposedTime != nil {
		r.ProposedTime = *proposedTime
	}
	return &r, nil
}

func nullableLabel(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ Repository = (*PostgresRepository)(nil)
