// Package clock provides the clinic-local time source. All scheduling
// arithmetic runs in one timezone so day boundaries stay stable.
package clock

import "time"

// Clock is the injected time source (TimeService in the external contract).
type Clock interface {
	// Now returns the current time in the clinic's location.
	Now() time.Time
	// Location returns the clinic's location.
	Location() *time.Location
}

// System is a Clock backed by the wall clock in a fixed location.
type System struct {
	loc *time.Location
}

// NewSystem builds a system clock for the named IANA timezone. An empty or
// unknown name falls back to UTC.
func NewSystem(tz string) *System {
	loc, err := time.LoadLocation(tz)
	if err != nil || tz == "" {
		loc = time.UTC
	}
	return &System{loc: loc}
}

func (s *System) Now() time.Time           { return time.Now().In(s.loc) }
func (s *System) Location() *time.Location { return s.loc }

// Fixed is a Clock pinned to one instant, for tests.
type Fixed struct {
	T time.Time
}

// NewFixed pins the clock to t.
func NewFixed(t time.Time) *Fixed { return &Fixed{T: t} }

func (f *Fixed) Now() time.Time           { return f.T }
func (f *Fixed) Location() *time.Location { return f.T.Location() }

// Advance moves a fixed clock forward.
func (f *Fixed) Advance(d time.Duration) { f.T = f.T.Add(d) }
