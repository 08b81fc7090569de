// Package audit records lifecycle transition events. Writes are best effort:
// a failed audit write degrades observability but never blocks or rolls back
// the transition that produced it.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Aggregate names the kind of record a transition applies to.
type Aggregate string

const (
	AggregateAppointment Aggregate = "appointment"
	AggregateRequest     Aggregate = "consultation_request"
	AggregatePayment     Aggregate = "payment"
)

// Event is one immutable lifecycle transition record.
type Event struct {
	ID          string          `json:"id"`
	Aggregate   Aggregate       `json:"aggregate"`
	AggregateID string          `json:"aggregate_id"`
	ActorID     string          `json:"actor_id"`
	ActorRole   string          `json:"actor_role"`
	FromStatus  string          `json:"from_status"`
	ToStatus    string          `json:"to_status"`
	Reason      string          `json:"reason,omitempty"`
	Details     json.RawMessage `json:"details,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// Recorder is the audit sink contract consumed by the lifecycle services.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// Service persists audit events to an append-only table.
type Service struct {
	db *sql.DB
}

// NewService creates an audit service over the given connection.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Record inserts one audit event.
func (s *Service) Record(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	query := `
		INSERT INTO lifecycle_audit_events (
			id, aggregate, aggregate_id, actor_id, actor_role,
			from_status, to_status, reason, details, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Aggregate,
		event.AggregateID,
		event.ActorID,
		event.ActorRole,
		event.FromStatus,
		event.ToStatus,
		nullString(event.Reason),
		nullBytes(event.Details),
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to record event: %w", err)
	}
	return nil
}

// Filter specifies criteria for querying audit events.
type Filter struct {
	Aggregate   Aggregate
	AggregateID string
	StartTime   time.Time
	EndTime     time.Time
	Limit       int
}

// Query retrieves audit events matching the filter, newest first.
func (s *Service) Query(ctx context.Context, filter Filter) ([]Event, error) {
	query := `
		SELECT id, aggregate, aggregate_id, actor_id, actor_role,
			   from_status, to_status, reason, details, occurred_at
		FROM lifecycle_audit_events
		WHERE aggregate = $1 AND aggregate_id = $2
	`
	args := []interface{}{filter.Aggregate, filter.AggregateID}
	argIdx := 3

	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND occurred_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND occurred_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
		argIdx++
	}

	query += " ORDER BY occurred_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var reason sql.NullString
		if err := rows.Scan(
			&e.ID, &e.Aggregate, &e.AggregateID, &e.ActorID, &e.ActorRole,
			&e.FromStatus, &e.ToStatus, &reason, (*[]byte)(&e.Details), &e.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		e.Reason = reason.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// MemoryRecorder collects events in memory for tests.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
	fail   error
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder { return &MemoryRecorder{} }

// FailWith makes subsequent Record calls return err.
func (m *MemoryRecorder) FailWith(err error) { m.fail = err }

// Record implements Recorder.
func (m *MemoryRecorder) Record(ctx context.Context, event Event) error {
	if m.fail != nil {
		return m.fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of everything recorded so far.
func (m *MemoryRecorder) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

var (
	_ Recorder = (*Service)(nil)
	_ Recorder = (*MemoryRecorder)(nil)
)

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
