package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCanceled   Status = "canceled"
	StatusNoShow     Status = "no-show"
)

// Terminal reports whether no further transition may leave the status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled || s == StatusNoShow
}

type ReminderType string

const (
	Reminder24h    ReminderType = "24h"
	Reminder1h     ReminderType = "1h"
	ReminderCustom ReminderType = "custom"
	ReminderManual ReminderType = "manual"
)

const (
	ReminderSent   = "sent"
	ReminderFailed = "failed"
)

type Clinic struct {
	ID            uuid.UUID
	Name          string
	WorkStartHour int
	WorkEndHour   int
	SlotMinutes   int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Specialty struct {
	ID   uuid.UUID
	Name string
}

// Doctor carries the scheduling-relevant configuration. Nil overrides fall
// back to the clinic defaults.
type Doctor struct {
	ID          uuid.UUID
	ClinicID    uuid.UUID
	SpecialtyID uuid.UUID
	Name        string
	WorkingDays []int // time.Weekday values, Sunday = 0
	StartHour   *int
	EndHour     *int
	SlotMinutes *int
	CalendarID  *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Appointment struct {
	ID          uuid.UUID
	ClinicID    uuid.UUID
	DoctorID    uuid.UUID
	SpecialtyID uuid.UUID

	PatientName  string
	PatientPhone string
	PatientEmail *string

	ScheduledDate   time.Time // calendar date, midnight in clinic tz
	ScheduledTime   string    // HH:MM
	DurationMinutes int
	ScheduledAt     time.Time // date+time resolved in clinic tz

	Status       Status
	CanceledBy   *string
	CancelReason *string

	Confirmed     bool
	ConfirmedAt   *time.Time
	ConfirmMethod *string

	CalendarEventID *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HistoryEntry is one line of the append-only audit trail.
type HistoryEntry struct {
	ID            int64
	AppointmentID uuid.UUID
	Action        string
	Actor         string
	Note          string
	CreatedAt     time.Time
}

// ReminderRecord is one delivery attempt, append-only.
type ReminderRecord struct {
	ID            int64
	AppointmentID uuid.UUID
	Type          ReminderType
	Method        string // email, message
	Status        string // sent, failed
	Error         *string
	SentAt        time.Time
}
