package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/oakwellcare/clinic-engagement/pkg/logging"
)

// Notifier is the dispatch contract consumed by the lifecycle services.
// Failures never roll back or block the transition that raised the event.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// AddressBook resolves person ids to delivery addresses. The patient and
// clinician directories live outside this system.
type AddressBook interface {
	PatientEmail(ctx context.Context, patientID string) (string, error)
	ClinicianEmail(ctx context.Context, doctorID string) (string, error)
}

// Service renders lifecycle events into messages and hands them to a sender.
type Service struct {
	email  EmailSender
	book   AddressBook
	logger *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, book AddressBook, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, book: book, logger: logger}
}

// Notify renders and dispatches one event.
func (s *Service) Notify(ctx context.Context, evt Event) error {
	if s.email == nil || s.book == nil {
		s.logger.Debug("notify: sender not configured, skipping", "type", string(evt.Type))
		return nil
	}

	subject, body := render(evt)

	var errs []error
	if evt.PatientID != "" {
		if err := s.sendTo(ctx, s.book.PatientEmail, evt.PatientID, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	if evt.NotifyClinician && evt.DoctorID != "" {
		if err := s.sendTo(ctx, s.book.ClinicianEmail, evt.DoctorID, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d notification(s) failed", len(errs))
	}
	return nil
}

func (s *Service) sendTo(ctx context.Context, resolve func(context.Context, string) (string, error), personID, subject, body string) error {
	addr, err := resolve(ctx, personID)
	if err != nil {
		s.logger.Error("notify: address lookup failed", "error", err, "person_id", personID)
		return err
	}
	if addr == "" {
		s.logger.Debug("notify: no address on file", "person_id", personID)
		return nil
	}
	if err := s.email.Send(ctx, EmailMessage{To: addr, Subject: subject, Body: body}); err != nil {
		return err
	}
	return nil
}

func render(evt Event) (subject, body string) {
	when := evt.Date
	if evt.StartTime != "" {
		when = fmt.Sprintf("%s at %s", evt.Date, evt.StartTime)
	}
	switch evt.Type {
	case EventRequestNeedsInfo:
		return "More information needed for your consultation request",
			fmt.Sprintf("Our staff needs more information to review your consultation request: %s", evt.Reason)
	case EventRequestApproved:
		return "Your consultation request was approved",
			"Your consultation request has been approved. We will propose an appointment time shortly."
	case EventRequestScheduled:
		return "Proposed consultation time",
			fmt.Sprintf("We have proposed %s for your consultation. Please confirm the appointment.", when)
	case EventAppointmentScheduled:
		return "Your appointment is booked",
			fmt.Sprintf("Your appointment is booked for %s.", when)
	case EventAppointmentRescheduled:
		return "Your appointment was rescheduled",
			fmt.Sprintf("Your appointment has been moved to %s. Reason: %s", when, evt.Reason)
	case EventAppointmentCancelled:
		return "Your appointment was cancelled",
			fmt.Sprintf("Your appointment on %s was cancelled. Reason: %s", when, evt.Reason)
	case EventAppointmentCompleted:
		return "Thank you for your visit",
			"Your consultation is complete. Your bill summary is available at the front desk."
	case EventFollowUpSuggested:
		return "Follow-up consultation suggested",
			"Your clinician suggests scheduling a follow-up consultation. Please contact us to book a time."
	default:
		return "Update from your clinic", fmt.Sprintf("There is an update on your appointment for %s.", when)
	}
}

// StaticAddressBook serves addresses from in-memory maps; the production
// composition root seeds it from configuration.
type StaticAddressBook struct {
	mu         sync.RWMutex
	patients   map[string]string
	clinicians map[string]string
}

// NewStaticAddressBook builds an address book from the given maps.
func NewStaticAddressBook(patients, clinicians map[string]string) *StaticAddressBook {
	if patients == nil {
		patients = make(map[string]string)
	}
	if clinicians == nil {
		clinicians = make(map[string]string)
	}
	return &StaticAddressBook{patients: patients, clinicians: clinicians}
}

// NewStaticAddressBookFromJSON parses {"clinicians": {id: email}, "patients": {id: email}}.
func NewStaticAddressBookFromJSON(raw string) (*StaticAddressBook, error) {
	var parsed struct {
		Patients   map[string]string `json:"patients"`
		Clinicians map[string]string `json:"clinicians"`
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return nil, fmt.Errorf("notify: invalid address book JSON: %w", err)
		}
	}
	return NewStaticAddressBook(parsed.Patients, parsed.Clinicians), nil
}

// PatientEmail implements AddressBook.
func (b *StaticAddressBook) PatientEmail(ctx context.Context, patientID string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.patients[patientID], nil
}

// ClinicianEmail implements AddressBook.
func (b *StaticAddressBook) ClinicianEmail(ctx context.Context, doctorID string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.clinicians[doctorID], nil
}

// MemoryNotifier records events for tests.
type MemoryNotifier struct {
	mu     sync.Mutex
	events []Event
	fail   error
}

// NewMemoryNotifier creates an empty in-memory notifier.
func NewMemoryNotifier() *MemoryNotifier { return &MemoryNotifier{} }

// FailWith makes subsequent Notify calls return err.
func (m *MemoryNotifier) FailWith(err error) { m.fail = err }

// Notify implements Notifier.
func (m *MemoryNotifier) Notify(ctx context.Context, evt Event) error {
	if m.fail != nil {
		return m.fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

// Events returns a copy of dispatched events.
func (m *MemoryNotifier) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

var (
	_ Notifier    = (*Service)(nil)
	_ Notifier    = (*MemoryNotifier)(nil)
	_ AddressBook = (*StaticAddressBook)(nil)
)
