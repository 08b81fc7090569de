package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oakwellcare/clinic-engagement/internal/faults"
)

// uniqueViolation is the Postgres error code raised by the partial unique
// index on (doctor_id, appointment_date, start_time) WHERE status <> CANCELLED.
const uniqueViolation = "23505"

// PostgresRepository stores appointments in the relational database.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const appointmentColumns = `
	id, patient_id, doctor_id, appointment_date, start_time, status,
	appointment_type, note, reason, request_id,
	checked_in_at, checked_in_by,
	consultation_started_at, consultation_ended_at, consultation_duration_min,
	version, created_at, updated_at
`

// FindByID fetches one appointment.
func (r *PostgresRepository) FindByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	appt, err := scanAppointment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, faults.NotFound("appointment %s not found", id)
		}
		return nil, fmt.Errorf("appointments: select failed: %w", err)
	}
	return appt, nil
}

// Create inserts a new appointment. The partial unique index re-validates
// slot ownership inside the same transaction as the insert, so a losing
// concurrent booking surfaces as a conflict here.
func (r *PostgresRepository) Create(ctx context.Context, appt *Appointment) error {
	query := `
		INSERT INTO appointments (
			id, patient_id, doctor_id, appointment_date, start_time, status,
			appointment_type, note, reason, request_id, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		appt.ID,
		appt.PatientID,
		appt.DoctorID,
		appt.Date,
		appt.StartTime,
		appt.Status,
		appt.Type,
		appt.Note,
		appt.Reason,
		appt.RequestID,
	).Scan(&appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return faults.Conflict("slot %s %s is no longer available", appt.Date, appt.StartTime)
		}
		return fmt.Errorf("appointments: insert failed: %w", err)
	}
	appt.Version = 1
	return nil
}

// Update applies the aggregate under the optimistic version check. A stale
// version loses with a conflict reflecting the now-current state.
func (r *PostgresRepository) Update(ctx context.Context, appt *Appointment) error {
	query := `
		UPDATE appointments SET
			appointment_date = $3, start_time = $4, status = $5,
			appointment_type = $6, note = $7, reason = $8, request_id = $9,
			checked_in_at = $10, checked_in_by = $11,
			consultation_started_at = $12, consultation_ended_at = $13,
			consultation_duration_min = $14,
			version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
	`
	tag, err := r.pool.Exec(ctx, query,
		appt.ID,
		appt.Version,
		appt.Date,
		appt.StartTime,
		appt.Status,
		appt.Type,
		appt.Note,
		appt.Reason,
		appt.RequestID,
		appt.CheckedInAt,
		appt.CheckedInBy,
		appt.ConsultationStartedAt,
		appt.ConsultationEndedAt,
		appt.ConsultationDurationMin,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return faults.Conflict("slot %s %s is no longer available", appt.Date, appt.StartTime)
		}
		return fmt.Errorf("appointments: update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM appointments WHERE id = $1)`, appt.ID).Scan(&exists); err != nil {
			return fmt.Errorf("appointments: update verify failed: %w", err)
		}
		if !exists {
			return faults.NotFound("appointment %s not found", appt.ID)
		}
		return faults.Conflict("appointment was changed by a concurrent update")
	}
	appt.Version++
	return nil
}

// ListByDoctorAndDateRange returns a clinician's appointments in [from, to].
func (r *PostgresRepository) ListByDoctorAndDateRange(ctx context.Context, doctorID uuid.UUID, from, to string) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE doctor_id = $1 AND appointment_date BETWEEN $2 AND $3
		ORDER BY appointment_date, start_time
	`
	rows, err := r.pool.Query(ctx, query, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("appointments: list failed: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: list scan failed: %w", err)
		}
		out = append(out, *appt)
	}
	return out, rows.Err()
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var checkedInAt, startedAt, endedAt *time.Time
	var checkedInBy, note, reason *string
	err := row.Scan(
		&a.ID, &a.PatientID, &a.DoctorID, &a.Date, &a.StartTime, &a.Status,
		&a.Type, &note, &reason, &a.RequestID,
		&checkedInAt, &checkedInBy,
		&startedAt, &endedAt, &a.ConsultationDurationMin,
		&a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.CheckedInAt = checkedInAt
	a.ConsultationStartedAt = startedAt
	a.ConsultationEndedAt = endedAt
	if checkedInBy != nil {
		a.CheckedInBy = *checkedInBy
	}
	if note != nil {
		a.Note = *note
	}
	if reason != nil {
		a.Reason = *reason
	}
	return &a, nil
}

var _ Repository = (*PostgresRepository)(nil)
