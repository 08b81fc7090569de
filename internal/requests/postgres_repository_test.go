package requests

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/oakwellcare/clinic-engagement/internal/faults"
)

var requestColumnNames = []string{
	"id", "patient_id", "doctor_id", "details", "status", "review_notes",
	"reason", "proposed_date", "proposed_time", "appointment_id",
	"awaiting_surgical_planning", "submitted_at", "version", "created_at",
	"updated_at",
}

func TestPostgresFindByIDScansNullableColumns(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	patientID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM consultation_requests WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(requestColumnNames).AddRow(
			id, patientID, (*uuid.UUID)(nil), "persistent knee pain", StatusPendingReview,
			(*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil), (*uuid.UUID)(nil),
			false, now, 1, now, now,
		))

	repo := NewPostgresRepository(mock)
	req, err := repo.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if req.PatientID != patientID {
		t.Fatalf("patient = %s, want %s", req.PatientID, patientID)
	}
	if req.DoctorID != nil || req.ReviewNotes != "" || req.ProposedDate != "" {
		t.Fatalf("nullable columns should stay zero-valued, got %+v", req)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresFindByIDMapsNoRowsToNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM consultation_requests WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(requestColumnNames))

	repo := NewPostgresRepository(mock)
	if _, err := repo.FindByID(context.Background(), id); faults.CodeOf(err) != faults.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgresUpdateStaleVersionIsConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	req := &ConsultationRequest{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		Details:   "persistent knee pain",
		Status:    StatusPendingReview,
		Version:   2,
	}

	mock.ExpectExec("UPDATE consultation_requests SET").
		WithArgs(req.ID, req.Version, req.DoctorID, req.Details, req.Status,
			req.ReviewNotes, req.Reason, (*string)(nil), (*string)(nil),
			req.AppointmentID, req.AwaitingSurgicalPlanning).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(req.ID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	repo := NewPostgresRepository(mock)
	if err := repo.Update(context.Background(), req); faults.CodeOf(err) != faults.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresUpdateVanishedRowIsNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	req := &ConsultationRequest{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		Details:   "persistent knee pain",
		Status:    StatusCancelled,
		Version:   1,
	}

	mock.ExpectExec("UPDATE consultation_requests SET").
		WithArgs(req.ID, req.Version, req.DoctorID, req.Details, req.Status,
			req.ReviewNotes, req.Reason, (*string)(nil), (*string)(nil),
			req.AppointmentID, req.AwaitingSurgicalPlanning).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(req.ID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	repo := NewPostgresRepository(mock)
	if err := repo.Update(context.Background(), req); faults.CodeOf(err) != faults.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
