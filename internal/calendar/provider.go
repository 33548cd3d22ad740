package calendar

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrProviderUnavailable means the external calendar could not be
	// reached. Availability queries must surface this instead of
	// pretending the day is fully booked.
	ErrProviderUnavailable = errors.New("calendar provider unavailable")
	// ErrAuthRequired means the provider rejected our credentials.
	ErrAuthRequired = errors.New("calendar provider authentication required")
)

// Interval is an externally reported busy range, half-open [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether the half-open interval [start, end) intersects i.
func (i Interval) Overlaps(start, end time.Time) bool {
	return start.Before(i.End) && end.After(i.Start)
}

// Event is a calendar event to create for a booked appointment.
type Event struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Attendees   []string  `json:"attendees,omitempty"`
}

// Provider is the external calendar the availability resolver and the
// appointment lifecycle sync against.
type Provider interface {
	BusyIntervals(ctx context.Context, calendarID string, dayStart, dayEnd time.Time) ([]Interval, error)
	CreateEvent(ctx context.Context, calendarID string, ev Event) (string, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}
