package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oakwellcare/clinic-engagement/internal/clock"
	"github.com/oakwellcare/clinic-engagement/internal/faults"
	"github.com/oakwellcare/clinic-engagement/pkg/logging"
)

// Resolver computes bookable slots from the weekly template minus existing
// bookings minus past times. Everything runs in the clinic location.
type Resolver struct {
	repo        Repository
	clock       clock.Clock
	slotMinutes int
	logger      *logging.Logger
}

// NewResolver constructs a resolver emitting fixed-width slots.
func NewResolver(repo Repository, clk clock.Clock, slotMinutes int, logger *logging.Logger) *Resolver {
	if repo == nil {
		panic("availability: repository required")
	}
	if clk == nil {
		panic("availability: clock required")
	}
	if slotMinutes <= 0 {
		slotMinutes = 30
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{repo: repo, clock: clk, slotMinutes: slotMinutes, logger: logger}
}

// SlotsForDay emits the candidate slots for one clinician and date. A day
// with no template yields an empty list, not an error.
func (r *Resolver) SlotsForDay(ctx context.Context, doctorID uuid.UUID, date string) ([]Slot, error) {
	day, err := ParseDate(date, r.clock.Location())
	if err != nil {
		return nil, err
	}

	ranges, err := r.repo.TemplateForDoctor(ctx, doctorID)
	if err != nil {
		return nil, faults.Dependency(err, "could not load availability template")
	}

	booked, err := r.repo.BookedTimes(ctx, doctorID, date)
	if err != nil {
		return nil, faults.Dependency(err, "could not load existing bookings")
	}
	taken := make(map[string]bool, len(booked))
	for _, t := range booked {
		taken[t] = true
	}

	now := r.clock.Now()
	width := time.Duration(r.slotMinutes) * time.Minute

	slots := []Slot{}
	for _, tr := range ranges {
		if tr.Weekday != day.Weekday() {
			continue
		}
		start, err := CombineDateTime(date, tr.Start, r.clock.Location())
		if err != nil {
			return nil, fmt.Errorf("availability: malformed template range: %w", err)
		}
		end, err := CombineDateTime(date, tr.End, r.clock.Location())
		if err != nil {
			return nil, fmt.Errorf("availability: malformed template range: %w", err)
		}
		for cur := start; !cur.Add(width).After(end); cur = cur.Add(width) {
			startLabel := cur.Format(TimeLayout)
			slots = append(slots, Slot{
				DoctorID:  doctorID,
				Date:      date,
				StartTime: startLabel,
				EndTime:   cur.Add(width).Format(TimeLayout),
				Available: !taken[startLabel] && cur.After(now),
			})
		}
	}
	return slots, nil
}

// SlotsForRange emits slots for every date in [from, to] inclusive.
func (r *Resolver) SlotsForRange(ctx context.Context, doctorID uuid.UUID, from, to string) ([]Slot, error) {
	start, err := ParseDate(from, r.clock.Location())
	if err != nil {
		return nil, err
	}
	end, err := ParseDate(to, r.clock.Location())
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, faults.Validation("date range end %s is before start %s", to, from)
	}

	var all []Slot
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		slots, err := r.SlotsForDay(ctx, doctorID, day.Format(DateLayout))
		if err != nil {
			return nil, err
		}
		all = append(all, slots...)
	}
	return all, nil
}

// IsAvailable reports whether the exact (date, startTime) slot currently
// resolves as bookable for the clinician.
func (r *Resolver) IsAvailable(ctx context.Context, doctorID uuid.UUID, date, startTime string) (bool, error) {
	if _, err := ParseTimeOfDay(startTime); err != nil {
		return false, err
	}
	slots, err := r.SlotsForDay(ctx, doctorID, date)
	if err != nil {
		return false, err
	}
	for _, s := range slots {
		if s.StartTime == startTime {
			return s.Available, nil
		}
	}
	return false, nil
}
