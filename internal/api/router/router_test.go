package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakwellcare/clinic-engagement/internal/api/handlers"
	apimiddleware "github.com/oakwellcare/clinic-engagement/internal/api/middleware"
	"github.com/oakwellcare/clinic-engagement/internal/appointments"
	"github.com/oakwellcare/clinic-engagement/internal/audit"
	"github.com/oakwellcare/clinic-engagement/internal/availability"
	"github.com/oakwellcare/clinic-engagement/internal/billing"
	"github.com/oakwellcare/clinic-engagement/internal/clock"
	"github.com/oakwellcare/clinic-engagement/internal/engagement"
	"github.com/oakwellcare/clinic-engagement/internal/locking"
	"github.com/oakwellcare/clinic-engagement/internal/notify"
	"github.com/oakwellcare/clinic-engagement/internal/requests"
)

const testSecret = "router-test-secret"

type env struct {
	server  *httptest.Server
	doctor  uuid.UUID
	patient uuid.UUID
	clock   *clock.Fixed
}

func newEnv(t *testing.T) *env {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	clk := clock.NewFixed(time.Date(2025, 3, 3, 8, 0, 0, 0, loc))

	doctor := uuid.New()
	availRepo := availability.NewInMemoryRepository()
	availRepo.SetTemplate(doctor,
		availability.TemplateDay(doctor, time.Monday, "09:00", "12:00"),
	)
	resolver := availability.NewResolver(availRepo, clk, 30, nil)

	apptRepo := appointments.NewInMemoryRepository()
	reqRepo := requests.NewInMemoryRepository()
	auditor := audit.NewMemoryRecorder()
	notifier := notify.NewMemoryNotifier()
	locker := locking.NewMemoryLocker()

	apptSvc := appointments.NewService(apptRepo, resolver, clk, locker, auditor, notifier, nil, nil)
	reqSvc := requests.NewService(reqRepo, apptSvc, resolver, clk, auditor, notifier, nil, nil)
	reconciler := billing.NewReconciler(billing.NewMemoryStore(apptRepo, reqRepo), clk, locker, auditor, notifier, nil, nil)
	facade := engagement.New(reqSvc, apptSvc, resolver, reconciler, engagement.RetryPolicy{}, nil)

	handler := New(&Config{
		Requests:       handlers.NewRequestsHandler(facade, nil),
		Appointments:   handlers.NewAppointmentsHandler(facade, nil),
		ActorJWTSecret: testSecret,
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &env{server: server, doctor: doctor, patient: uuid.New(), clock: clk}
}

func (e *env) token(t *testing.T, subject, role string) string {
	t.Helper()
	claims := apimiddleware.ActorClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (e *env) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestHealthIsPublic(t *testing.T) {
	e := newEnv(t)
	resp, err := http.Get(e.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPIRequiresToken(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodGet, "/api/v1/requests/pending", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIntakeFlowOverHTTP(t *testing.T) {
	e := newEnv(t)
	patientTok := e.token(t, e.patient.String(), "patient")
	staffTok := e.token(t, "staff-1", "staff")

	resp := e.do(t, http.MethodPost, "/api/v1/requests", patientTok, map[string]string{
		"patient_id": e.patient.String(),
		"details":    "knee pain when climbing stairs",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var req struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeBody(t, resp, &req)
	assert.Equal(t, "PENDING_REVIEW", req.Status)

	resp = e.do(t, http.MethodPost, fmt.Sprintf("/api/v1/requests/%s/review", req.ID), staffTok, map[string]string{
		"decision":      "approve",
		"doctor_id":     e.doctor.String(),
		"proposed_date": "2025-03-10",
		"proposed_time": "10:00",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var reviewed struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &reviewed)
	assert.Equal(t, "SCHEDULED", reviewed.Status)

	resp = e.do(t, http.MethodPost, fmt.Sprintf("/api/v1/requests/%s/confirm", req.ID), patientTok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var confirmed struct {
		Request struct {
			Status string `json:"status"`
		} `json:"request"`
		Appointment struct {
			ID        string `json:"id"`
			Date      string `json:"appointment_date"`
			StartTime string `json:"start_time"`
			Status    string `json:"status"`
		} `json:"appointment"`
	}
	decodeBody(t, resp, &confirmed)
	assert.Equal(t, "CONFIRMED", confirmed.Request.Status)
	assert.Equal(t, "2025-03-10", confirmed.Appointment.Date)
	assert.Equal(t, "10:00", confirmed.Appointment.StartTime)
}

func TestDoubleBookingMapsToConflict(t *testing.T) {
	e := newEnv(t)
	staffTok := e.token(t, "staff-1", "staff")

	book := map[string]string{
		"doctor_id":  e.doctor.String(),
		"patient_id": uuid.NewString(),
		"date":       "2025-03-10",
		"start_time": "09:00",
	}
	resp := e.do(t, http.MethodPost, "/api/v1/appointments", staffTok, book)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	book["patient_id"] = uuid.NewString()
	resp = e.do(t, http.MethodPost, "/api/v1/appointments", staffTok, book)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var fail struct {
		Code string `json:"code"`
	}
	decodeBody(t, resp, &fail)
	assert.Equal(t, "conflict", fail.Code)
}

func TestValidationMapsToBadRequest(t *testing.T) {
	e := newEnv(t)
	staffTok := e.token(t, "staff-1", "staff")

	resp := e.do(t, http.MethodPost, "/api/v1/appointments", staffTok, map[string]string{
		"doctor_id":  "not-a-uuid",
		"patient_id": uuid.NewString(),
		"date":       "2025-03-10",
		"start_time": "09:00",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var fail struct {
		Code string `json:"code"`
	}
	decodeBody(t, resp, &fail)
	assert.Equal(t, "validation", fail.Code)
}

func TestPatientCannotScheduleDirectly(t *testing.T) {
	e := newEnv(t)
	patientID := uuid.NewString()
	patientTok := e.token(t, patientID, "patient")

	resp := e.do(t, http.MethodPost, "/api/v1/appointments", patientTok, map[string]string{
		"doctor_id":  e.doctor.String(),
		"patient_id": patientID,
		"date":       "2025-03-10",
		"start_time": "09:00",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
