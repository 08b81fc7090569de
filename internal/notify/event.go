package notify

// EventType names a patient- or clinician-facing lifecycle moment.
type EventType string

const (
	EventRequestNeedsInfo       EventType = "request.needs_more_info"
	EventRequestApproved        EventType = "request.approved"
	EventRequestScheduled       EventType = "request.scheduled"
	EventAppointmentScheduled   EventType = "appointment.scheduled"
	EventAppointmentRescheduled EventType = "appointment.rescheduled"
	EventAppointmentCancelled   EventType = "appointment.cancelled"
	EventAppointmentCompleted   EventType = "appointment.completed"
	EventFollowUpSuggested      EventType = "appointment.follow_up_suggested"
)

// Event describes one notification to dispatch. Delivery is best effort;
// the lifecycle transition has already committed by the time this fires.
type Event struct {
	Type          EventType
	PatientID     string
	DoctorID      string
	AppointmentID string
	RequestID     string
	Date          string
	StartTime     string
	Reason        string
	// NotifyClinician asks the service to also inform the clinician
	// (staff-initiated reschedules).
	NotifyClinician bool
}
