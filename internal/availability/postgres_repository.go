package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository reads templates and bookings from the relational store.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("availability: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

// TemplateForDoctor returns the clinician's active weekly template ranges.
func (r *PostgresRepository) TemplateForDoctor(ctx context.Context, doctorID uuid.UUID) ([]TemplateRange, error) {
	query := `
		SELECT weekday, start_time, end_time
		FROM availability_templates
		WHERE doctor_id = $1 AND active
		ORDER BY weekday, start_time
	`
	rows, err := r.pool.Query(ctx, query, doctorID)
	if err != nil {
		return nil, fmt.Errorf("availability: template query failed: %w", err)
	}
	defer rows.Close()

	var ranges []TemplateRange
	for rows.Next() {
		var weekday int
		tr := TemplateRange{DoctorID: doctorID}
		if err := rows.Scan(&weekday, &tr.Start, &tr.End); err != nil {
			return nil, fmt.Errorf("availability: template scan failed: %w", err)
		}
		tr.Weekday = time.Weekday(weekday)
		ranges = append(ranges, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("availability: template rows failed: %w", err)
	}
	return ranges, nil
}

// BookedTimes returns start times already consumed by non-cancelled
// appointments for the clinician on the given date.
func (r *PostgresRepository) BookedTimes(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	query := `
		SELECT start_time
		FROM appointments
		WHERE doctor_id = $1 AND appointment_date = $2 AND status <> 'CANCELLED'
	`
	rows, err := r.pool.Query(ctx, query, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("availability: booked query failed: %w", err)
	}
	defer rows.Close()

	var times []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("availability: booked scan failed: %w", err)
		}
		times = append(times, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("availability: booked rows failed: %w", err)
	}
	return times, nil
}

var _ Repository = (*PostgresRepository)(nil)
