package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oakwellcare/clinic-engagement/internal/actor"
	"github.com/oakwellcare/clinic-engagement/internal/appointments"
	"github.com/oakwellcare/clinic-engagement/internal/engagement"
	"github.com/oakwellcare/clinic-engagement/internal/requests"
	"github.com/oakwellcare/clinic-engagement/pkg/logging"
)

// RequestsHandler serves the consultation request endpoints.
type RequestsHandler struct {
	facade *engagement.Facade
	logger *logging.Logger
}

// NewRequestsHandler creates the handler.
func NewRequestsHandler(facade *engagement.Facade, logger *logging.Logger) *RequestsHandler {
	if facade == nil {
		panic("handlers: facade required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RequestsHandler{facade: facade, logger: logger}
}

type submitRequestBody struct {
	PatientID string `json:"patient_id"`
	Details   string `json:"details"`
}

// Submit handles POST /api/v1/requests.
func (h *RequestsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	act, ok := actor.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor", http.StatusUnauthorized)
		return
	}
	var body submitRequestBody
	if err := decodeStrict(r, &body); err != nil {
		writeFault(w, h.logger, err)
		return
	}
	patientID, err := parseID(body.PatientID, "patient_id")
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}

	req, err := h.facade.SubmitConsultationRequest(r.Context(), act, requests.SubmitParams{
		PatientID: patientID,
		Details:   body.Details,
	})
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

type reviewRequestBody struct {
	Decision     string `json:"decision"`
	Notes        string `json:"notes,omitempty"`
	DoctorID     string `json:"doctor_id,omitempty"`
	ProposedDate string `json:"proposed_date,omitempty"`
	ProposedTime string `json:"proposed_time,omitempty"`
}

// Review handles POST /api/v1/requests/{requestID}/review.
func (h *RequestsHandler) Review(w http.ResponseWriter, r *http.Request) {
	act, ok := actor.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor", http.StatusUnauthorized)
		return
	}
	id, err := parseID(chi.URLParam(r, "requestID"), "requestID")
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	var body reviewRequestBody
	if err := decodeStrict(r, &body); err != nil {
		writeFault(w, h.logger, err)
		return
	}
	params := requests.ReviewParams{
		Decision:     requests.Decision(body.Decision),
		Notes:        body.Notes,
		ProposedDate: body.ProposedDate,
		ProposedTime: body.ProposedTime,
	}
	if body.DoctorID != "" {
		doctorID, err := parseID(body.DoctorID, "doctor_id")
		if err != nil {
			writeFault(w, h.logger, err)
			return
		}
		params.DoctorID = &doctorID
	}

	req, err := h.facade.ReviewConsultationRequest(r.Context(), act, id, params)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type respondRequestBody struct {
	Response string `json:"response"`
}

// Respond handles POST /api/v1/requests/{requestID}/respond.
func (h *RequestsHandler) Respond(w http.ResponseWriter, r *http.Request) {
	act, ok := actor.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor", http.StatusUnauthorized)
		return
	}
	id, err := parseID(chi.URLParam(r, "requestID"), "requestID")
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	var body respondRequestBody
	if err := decodeStrict(r, &body); err != nil {
		writeFault(w, h.logger, err)
		return
	}

	req, err := h.facade.RespondToInformationRequest(r.Context(), act, id, body.Response)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type confirmationResponse struct {
	Request     *requests.ConsultationRequest `json:"request"`
	Appointment *appointments.Appointment     `json:"appointment"`
}

// Confirm handles POST /api/v1/requests/{requestID}/confirm.
func (h *RequestsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	act, ok := actor.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor", http.StatusUnauthorized)
		return
	}
	id, err := parseID(chi.URLParam(r, "requestID"), "requestID")
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}

	res, err := h.facade.ConfirmConsultationRequest(r.Context(), act, id)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmationResponse{
		Request:     res.Request,
		Appointment: res.Appointment,
	})
}

// Get handles GET /api/v1/requests/{requestID}.
func (h *RequestsHandler) Get(w http.ResponseWriter, r *http.Request) {
	act, ok := actor.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor", http.StatusUnauthorized)
		return
	}
	id, err := parseID(chi.URLParam(r, "requestID"), "requestID")
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}

	req, err := h.facade.GetConsultationRequest(r.Context(), act, id)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type pendingResponse struct {
	Requests []requests.ConsultationRequest `json:"requests"`
	Count    int                            `json:"count"`
}

// ListPending handles GET /api/v1/requests/pending.
func (h *RequestsHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	act, ok := actor.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor", http.StatusUnauthorized)
		return
	}
	list, err := h.facade.ListPendingRequests(r.Context(), act)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	if list == nil {
		list = []requests.ConsultationRequest{}
	}
	writeJSON(w, http.StatusOK, pendingResponse{Requests: list, Count: len(list)})
}
