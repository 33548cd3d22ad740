package waitlist

import (
	"time"

	"github.com/google/uuid"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank orders priorities for candidate selection, lowest value first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	default:
		return 3
	}
}

type Status string

const (
	StatusActive    Status = "active"
	StatusNotified  Status = "notified"
	StatusScheduled Status = "scheduled"
	StatusExpired   Status = "expired"
	StatusCanceled  Status = "canceled"
)

func (s Status) Terminal() bool {
	return s == StatusScheduled || s == StatusExpired || s == StatusCanceled
}

// Entry is one patient waiting for an opening. DoctorID nil means any
// doctor in the specialty.
type Entry struct {
	ID          uuid.UUID
	ClinicID    uuid.UUID
	SpecialtyID uuid.UUID
	DoctorID    *uuid.UUID

	PatientName  string
	PatientPhone string
	PatientEmail *string

	// Advisory preferences; matching does not strictly enforce them.
	PreferredDates  []string
	PreferredTimes  []string
	PreferredPeriod *string // morning, afternoon, evening

	Priority Priority
	Status   Status

	// Position is a cached 1-based rank within the cohort, recomputed by
	// full re-sort after mutations. Display only.
	Position int

	NotificationAttempts int
	LastNotificationAt   *time.Time
	NotifiedAt           *time.Time

	AppointmentID *uuid.UUID
	WaitMinutes   *int

	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the entry's TTL has passed, regardless of
// whether a sweep has flipped its status yet.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}
