package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oakwellcare/clinic-engagement/internal/actor"
	"github.com/oakwellcare/clinic-engagement/internal/appointments"
	"github.com/oakwellcare/clinic-engagement/internal/availability"
	"github.com/oakwellcare/clinic-engagement/internal/billing"
	"github.com/oakwellcare/clinic-engagement/internal/engagement"
	"github.com/oakwellcare/clinic-engagement/internal/faults"
	"github.com/oakwellcare/clinic-engagement/pkg/logging"
)

// AppointmentsHandler serves the appointment lifecycle endpoints.
type AppointmentsHandler struct {
	facade *engagement.Facade
	logger *logging.Logger
}

// NewAppointmentsHandler creates the handler.
func NewAppointmentsHandler(facade *engagement.Facade, logger *logging.Logger) *AppointmentsHandler {
	if facade == nil {
		panic("handlers: facade required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentsHandler{facade: facade, logger: logger}
}

type availabilityResponse struct {
	DoctorID string              `json:"doctor_id"`
	Slots    []availability.Slot `json:"slots"`
}

// Availability handles GET /api/v1/availability/{doctorID}. One of
// ?date=YYYY-MM-DD or ?from=...&to=... selects the window.
func (h *AppointmentsHandler) Availability(w http.ResponseWriter, r *http.Request) {
	doctorID, err := parseID(chi.URLParam(r, "doctorID"), "doctorID")
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}

	q := r.URL.Query()
	var slots []availability.Slot
	switch {
	case q.Get("date") != "":
		slots, err = h.facade.GetAvailability(r.Context(), doctorID, q.Get("date"))
	case q.Get("from") != "" && q.Get("to") != "":
		slots, err = h.facade.GetAvailabilityRange(r.Context(), doctorID, q.Get("from"), q.Get("to"))
	default:
		writeFault(w, h.logger, faults.Validation("either date or from/to query parameters are required"))
		return
	}
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	if slots == nil {
		slots = []availability.Slot{}
	}
	writeJSON(w, http.StatusOK, availabilityResponse{DoctorID: doctorID.String(), Slots: slots})
}

type scheduleBody struct {
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	Type      string `json:"type,omitempty"`
	Note      string `json:"note,omitempty"`
}

// Schedule handles POST /api/v1/appointments.
func (h *AppointmentsHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	act, ok := actor.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor", http.StatusUnauthorized)
		return
	}
	var body scheduleBody
	if err := decodeStrict(r, &body); err != nil {
		writeFault(w, h.logger, err)
		return
	}
	doctorID, err := parseID(body.DoctorID, "doctor_id")
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	patientID, err := parseID(body.PatientID, "patient_id")
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}

	appt, err := h.facade.ScheduleAppointment(r.Context(), act, appointments.ScheduleParams{
		DoctorID:  doctorID,
		PatientID: patientID,
		Date:      body.Date,
		StartTime: body.StartTime,
		Type:      appointments.Type(body.Type),
		Note:      body.Note,
	})
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// Get handles GET /api/v1/appointments/{appointmentID}.
func (h *AppointmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(act actor.Actor, id string) (any, error) {
		apptID, err := parseID(id, "appointmentID")
		if err != nil {
			return nil, err
		}
		return h.facade.GetAppointment(r.Context(), act, apptID)
	})
}

// Confirm handles POST /api/v1/appointments/{appointmentID}/confirm.
func (h *AppointmentsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(act actor.Actor, id string) (any, error) {
		apptID, err := parseID(id, "appointmentID")
		if err != nil {
			return nil, err
		}
		return h.facade.ConfirmAppointment(r.Context(), act, apptID)
	})
}

// CheckIn handles POST /api/v1/appointments/{appointmentID}/check-in.
func (h *AppointmentsHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(act actor.Actor, id string) (any, error) {
		apptID, err := parseID(id, "appointmentID")
		if err != nil {
			return nil, err
		}
		return h.facade.CheckIn(r.Context(), act, apptID)
	})
}

type startConsultationBody struct {
	DoctorID string `json:"doctor_id"`
}

// StartConsultation handles POST /api/v1/appointments/{appointmentID}/start.
func (h *AppointmentsHandler) StartConsultation(w http.ResponseWriter, r *http.Request) {
	act, ok := actor.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor", http.StatusUnauthorized)
		return
	}
	apptID, err := parseID(chi.URLParam(r, "appointmentID"), "appointmentID")
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	var body startConsultationBody
	if err := decodeStrict(r, &body); err != nil {
		writeFault(w, h.logger, err)
		return
	}
	doctorID, err := parseID(body.DoctorID, "doctor_id")
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}

	appt, err := h.facade.StartConsultation(r.Context(), act, apptID, doctorID)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

type completeBody struct {
	DoctorID        string              `json:"doctor_id"`
	Summary         string              `json:"summary"`
	OutcomeType     string              `json:"outcome_type"`
	PatientDecision string              `json:"patient_decision,omitempty"`
	Items           []billing.ItemInput `json:"items,omitempty"`
	DiscountCents   int64               `json:"discount_cents,omitempty"`
	CustomTotal     *int64              `json:"custom_total_cents,omitempty"`
}

// Complete handles POST /api/v1/appointments/{appointmentID}/complete.
func (h *AppointmentsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	act, ok := actor.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor", http.StatusUnauthorized)
		return
	}
	apptID, err := parseID(chi.URLParam(r, "appointmentID"), "appointmentID")
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	var body completeBody
	if err := decodeStrict(r, &body); err != nil {
		writeFault(w, h.logger, err)
		return
	}
	doctorID, err := parseID(body.DoctorID, "doctor_id")
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}

	summary, err := h.facade.CompleteConsultation(r.Context(), act, billing.CompleteParams{
		AppointmentID:   apptID,
		DoctorID:        doctorID,
		Summary:         body.Summary,
		OutcomeType:     billing.OutcomeType(body.OutcomeType),
		PatientDecision: billing.PatientDecision(body.PatientDecision),
		Items:           body.Items,
		DiscountCents:   body.DiscountCents,
		CustomTotal:     body.CustomTotal,
	})
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type rescheduleBody struct {
	NewDate string `json:"new_date"`
	NewTime string `json:"new_time"`
	Reason  string `json:"reason"`
}

// Reschedule handles POST /api/v1/appointments/{appointmentID}/reschedule.
func (h *AppointmentsHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	act, ok := actor.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor", http.StatusUnauthorized)
		return
	}
	apptID, err := parseID(chi.URLParam(r, "appointmentID"), "appointmentID")
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	var body rescheduleBody
	if err := decodeStrict(r, &body); err != nil {
		writeFault(w, h.logger, err)
		return
	}

	appt, err := h.facade.RescheduleAppointment(r.Context(), act, apptID, body.NewDate, body.NewTime, body.Reason)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

type cancelBody struct {
	Reason string `json:"reason"`
}

// Cancel handles POST /api/v1/appointments/{appointmentID}/cancel.
func (h *AppointmentsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	act, ok := actor.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor", http.StatusUnauthorized)
		return
	}
	apptID, err := parseID(chi.URLParam(r, "appointmentID"), "appointmentID")
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	var body cancelBody
	if err := decodeStrict(r, &body); err != nil {
		writeFault(w, h.logger, err)
		return
	}

	appt, err := h.facade.CancelAppointment(r.Context(), act, apptID, body.Reason)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// Bill handles GET /api/v1/appointments/{appointmentID}/bill.
func (h *AppointmentsHandler) Bill(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(act actor.Actor, id string) (any, error) {
		apptID, err := parseID(id, "appointmentID")
		if err != nil {
			return nil, err
		}
		return h.facade.GetBill(r.Context(), act, apptID)
	})
}

// act runs a bodyless appointment operation keyed by the appointmentID
// route param.
func (h *AppointmentsHandler) act(w http.ResponseWriter, r *http.Request, fn func(act actor.Actor, id string) (any, error)) {
	act, ok := actor.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor", http.StatusUnauthorized)
		return
	}
	out, err := fn(act, chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
