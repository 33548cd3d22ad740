package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/clinova/scheduling-core/internal/calendar"
)

// Schedule is the working-hours configuration the resolver walks for one
// doctor. Hours are whole clock hours in the clinic timezone.
type Schedule struct {
	CalendarID  string
	WorkingDays []time.Weekday
	StartHour   int
	EndHour     int
	SlotMinutes int
}

func (s Schedule) worksOn(day time.Weekday) bool {
	for _, d := range s.WorkingDays {
		if d == day {
			return true
		}
	}
	return false
}

// Resolver computes free slots as the complement of externally reported
// busy intervals within working hours.
type Resolver struct {
	provider calendar.Provider
	loc      *time.Location
}

func NewResolver(provider calendar.Provider, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{provider: provider, loc: loc}
}

// FreeSlots returns the ordered HH:MM start times free on the given date.
// An empty result means fully booked; a provider failure is returned as an
// error and must never be treated as "no availability".
func (r *Resolver) FreeSlots(ctx context.Context, sched Schedule, date time.Time) ([]string, error) {
	if sched.SlotMinutes <= 0 {
		return nil, fmt.Errorf("invalid slot duration %d", sched.SlotMinutes)
	}
	if sched.StartHour < 0 || sched.EndHour > 24 || sched.StartHour >= sched.EndHour {
		return nil, fmt.Errorf("invalid working hours %d-%d", sched.StartHour, sched.EndHour)
	}

	y, m, d := date.In(r.loc).Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, r.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	slots := []string{}

	if !sched.worksOn(dayStart.Weekday()) {
		return slots, nil
	}

	// A doctor without an external calendar has no busy set to subtract.
	var busy []calendar.Interval
	if sched.CalendarID != "" {
		intervals, err := r.provider.BusyIntervals(ctx, sched.CalendarID, dayStart, dayEnd)
		if err != nil {
			return nil, fmt.Errorf("query busy intervals: %w", err)
		}
		busy = intervals
	}

	workStart := time.Date(y, m, d, sched.StartHour, 0, 0, 0, r.loc)
	workEnd := time.Date(y, m, d, sched.EndHour, 0, 0, 0, r.loc)
	step := time.Duration(sched.SlotMinutes) * time.Minute

	for cursor := workStart; !cursor.Add(step).After(workEnd); cursor = cursor.Add(step) {
		if !anyOverlap(busy, cursor, cursor.Add(step)) {
			slots = append(slots, cursor.Format("15:04"))
		}
	}

	return slots, nil
}

// SlotAvailable re-checks one proposed interval against the provider. It is
// the last-instant check before a booking commit; the storage uniqueness
// constraint remains the real backstop for the check-then-book race.
func (r *Resolver) SlotAvailable(ctx context.Context, calendarID string, start time.Time, durationMinutes int) (bool, error) {
	if durationMinutes <= 0 {
		return false, fmt.Errorf("invalid slot duration %d", durationMinutes)
	}

	start = start.In(r.loc)
	y, m, d := start.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, r.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	busy, err := r.provider.BusyIntervals(ctx, calendarID, dayStart, dayEnd)
	if err != nil {
		return false, fmt.Errorf("query busy intervals: %w", err)
	}

	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	return !anyOverlap(busy, start, end), nil
}

func anyOverlap(busy []calendar.Interval, start, end time.Time) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}
