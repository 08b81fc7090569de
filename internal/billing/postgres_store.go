package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oakwellcare/clinic-engagement/internal/appointments"
	"github.com/oakwellcare/clinic-engagement/internal/faults"
	"github.com/oakwellcare/clinic-engagement/internal/requests"
)

// PostgresStore runs reconciliations in one database transaction. The
// appointment and payment rows are locked for the duration, so concurrent
// completions of the same appointment serialize at the store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore initializes a store backed by pgxpool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("billing: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

// InTx implements Store.
func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return faults.Dependency(err, "billing: begin transaction failed")
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return faults.Dependency(err, "billing: commit failed")
	}
	return nil
}

// PaymentByAppointment implements Store.
func (s *PostgresStore) PaymentByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	return queryPayment(ctx, s.pool, appointmentID, false)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Appointment(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error) {
	query := `
		SELECT id, patient_id, doctor_id, appointment_date, start_time, status,
		       appointment_type, note, request_id, consultation_started_at, version
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`
	var a appointments.Appointment
	var note *string
	err := t.tx.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.PatientID, &a.DoctorID, &a.Date, &a.StartTime, &a.Status,
		&a.Type, &note, &a.RequestID, &a.ConsultationStartedAt, &a.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, faults.NotFound("appointment %s not found", id)
		}
		return nil, fmt.Errorf("billing: appointment select failed: %w", err)
	}
	if note != nil {
		a.Note = *note
	}
	return &a, nil
}

func (t *pgTx) UpdateAppointment(ctx context.Context, appt *appointments.Appointment) error {
	query := `
		UPDATE appointments SET
			status = $3, note = $4,
			consultation_ended_at = $5, consultation_duration_min = $6,
			version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
	`
	tag, err := t.tx.Exec(ctx, query,
		appt.ID,
		appt.Version,
		appt.Status,
		appt.Note,
		appt.ConsultationEndedAt,
		appt.ConsultationDurationMin,
	)
	if err != nil {
		return fmt.Errorf("billing: appointment update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return faults.Conflict("appointment was changed by a concurrent update")
	}
	appt.Version++
	return nil
}

func (t *pgTx) PaymentByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	return queryPayment(ctx, t.tx, appointmentID, true)
}

func (t *pgTx) UpsertPayment(ctx context.Context, p *Payment) error {
	query := `
		INSERT INTO payments (
			id, appointment_id, patient_id, total_cents, discount_cents,
			custom_total_cents, amount_paid_cents, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (appointment_id) DO UPDATE SET
			total_cents = EXCLUDED.total_cents,
			discount_cents = EXCLUDED.discount_cents,
			custom_total_cents = EXCLUDED.custom_total_cents,
			amount_paid_cents = EXCLUDED.amount_paid_cents,
			status = EXCLUDED.status,
			updated_at = now()
	`
	_, err := t.tx.Exec(ctx, query,
		p.ID, p.AppointmentID, p.PatientID,
		p.TotalCents, p.DiscountCents, p.CustomTotal, p.AmountPaidCents, p.Status,
	)
	if err != nil {
		return fmt.Errorf("billing: payment upsert failed: %w", err)
	}

	if _, err := t.tx.Exec(ctx, `DELETE FROM payment_items WHERE payment_id = $1`, p.ID); err != nil {
		return fmt.Errorf("billing: item purge failed: %w", err)
	}
	for i := range p.Items {
		item := &p.Items[i]
		_, err := t.tx.Exec(ctx, `
			INSERT INTO payment_items (id, payment_id, service_id, quantity, unit_cents)
			VALUES ($1, $2, $3, $4, $5)
		`, item.ID, p.ID, item.ServiceID, item.Quantity, item.UnitCents)
		if err != nil {
			return fmt.Errorf("billing: item insert failed: %w", err)
		}
	}
	return nil
}

func (t *pgTx) CompleteRequest(ctx context.Context, requestID uuid.UUID, awaitingSurgicalPlanning bool) error {
	// Only a CONFIRMED request completes; anything else (already cancelled,
	// already completed) is left as-is.
	query := `
		UPDATE consultation_requests SET
			status = $2, awaiting_surgical_planning = $3,
			version = version + 1, updated_at = now()
		WHERE id = $1 AND status = $4
	`
	_, err := t.tx.Exec(ctx, query,
		requestID, requests.StatusCompleted, awaitingSurgicalPlanning, requests.StatusConfirmed,
	)
	if err != nil {
		return fmt.Errorf("billing: request completion failed: %w", err)
	}
	return nil
}

// querier covers pool and tx query surfaces.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryPayment(ctx context.Context, q querier, appointmentID uuid.UUID, forUpdate bool) (*Payment, error) {
	query := `
		SELECT id, appointment_id, patient_id, total_cents, discount_cents,
		       custom_total_cents, amount_paid_cents, status, created_at, updated_at
		FROM payments
		WHERE appointment_id = $1
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var p Payment
	err := q.QueryRow(ctx, query, appointmentID).Scan(
		&p.ID, &p.AppointmentID, &p.PatientID, &p.TotalCents, &p.DiscountCents,
		&p.CustomTotal, &p.AmountPaidCents, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("billing: payment select failed: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, payment_id, service_id, quantity, unit_cents
		FROM payment_items
		WHERE payment_id = $1
		ORDER BY service_id
	`, p.ID)
	if err != nil {
		return nil, fmt.Errorf("billing: item select failed: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item BillItem
		if err := rows.Scan(&item.ID, &item.PaymentID, &item.ServiceID, &item.Quantity, &item.UnitCents); err != nil {
			return nil, fmt.Errorf("billing: item scan failed: %w", err)
		}
		p.Items = append(p.Items, item)
	}
	return &p, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
var _ Tx = (*pgTx)(nil)
