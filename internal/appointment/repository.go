package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrClinicNotFound      = errors.New("clinic not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrSpecialtyNotFound   = errors.New("specialty not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotTaken is the storage-level uniqueness backstop for the
	// check-then-book race: two bookers can both pass the availability
	// check, only one insert wins.
	ErrSlotTaken = errors.New("slot already taken")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetSpecialtyByID(ctx context.Context, id uuid.UUID) (*Specialty, error)

	CreateAppointment(ctx context.Context, a *Appointment) error
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// UpdateStatus is a guarded transition: it only writes when the row
	// still holds the expected status, and reports ErrAppointmentNotFound
	// when it no longer does.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
	SetConfirmation(ctx context.Context, id uuid.UUID, method string, at time.Time) error
	SetCancellation(ctx context.Context, id uuid.UUID, canceledBy, reason string) error
	SetCalendarEventID(ctx context.Context, id uuid.UUID, eventID string) error

	AppendHistory(ctx context.Context, h HistoryEntry) error
	ListHistory(ctx context.Context, appointmentID uuid.UUID) ([]HistoryEntry, error)

	AppendReminderRecord(ctx context.Context, r ReminderRecord) error
	ListReminderRecords(ctx context.Context, appointmentID uuid.UUID) ([]ReminderRecord, error)

	// Reminder sweep.
	ListUpcoming(ctx context.Context, from, to time.Time, statuses []Status) ([]Appointment, error)
}
