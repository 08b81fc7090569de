package availability

import (
	"time"

	"github.com/google/uuid"

	"github.com/oakwellcare/clinic-engagement/internal/faults"
)

// Wire formats for calendar dates and clinic-local times of day.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// TemplateRange is one weekly working block for a clinician.
type TemplateRange struct {
	DoctorID uuid.UUID
	Weekday  time.Weekday
	Start    string // TimeLayout
	End      string // TimeLayout
}

// Slot is a derived bookable interval. Never persisted; recomputed on every
// query from the template minus existing bookings.
type Slot struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Available bool      `json:"is_available"`
}

// ParseDate validates and parses a calendar date in the clinic location.
func ParseDate(date string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, faults.Validation("invalid date %q, want YYYY-MM-DD", date)
	}
	return t, nil
}

// ParseTimeOfDay validates a clinic-local time of day.
func ParseTimeOfDay(value string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, value)
	if err != nil {
		return time.Time{}, faults.Validation("invalid time %q, want HH:MM", value)
	}
	return t, nil
}

// CombineDateTime resolves a date + time-of-day pair to an instant in the
// clinic location.
func CombineDateTime(date, timeOfDay string, loc *time.Location) (time.Time, error) {
	d, err := ParseDate(date, loc)
	if err != nil {
		return time.Time{}, err
	}
	tod, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), tod.Hour(), tod.Minute(), 0, 0, loc), nil
}
