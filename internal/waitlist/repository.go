package waitlist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEntryNotFound = errors.New("waitlist entry not found")
)

// Repository contains all DB interactions needed by the queue service.
type Repository interface {
	CreateEntry(ctx context.Context, e *Entry) error
	GetEntryByID(ctx context.Context, id uuid.UUID) (*Entry, error)

	// ListCandidates returns promotable (active or notified), non-expired
	// entries for the specialty in priority/FIFO order. Notified entries
	// stay eligible; the anti-spam window is the throttle, not the status.
	// A non-nil doctorID also admits entries with no doctor preference;
	// nil returns the whole specialty.
	ListCandidates(ctx context.Context, specialtyID uuid.UUID, doctorID *uuid.UUID, limit int, now time.Time) ([]Entry, error)

	// MarkNotified bumps the anti-spam bookkeeping and moves the entry to
	// notified. Guarded on status active|notified.
	MarkNotified(ctx context.Context, id uuid.UUID, at time.Time) error

	// MarkScheduled is the one-way conversion. Guarded on status
	// active|notified; ErrEntryNotFound when the guard fails.
	MarkScheduled(ctx context.Context, id uuid.UUID, appointmentID uuid.UUID, waitMinutes int, at time.Time) (*Entry, error)

	// MarkCanceled is guarded on non-terminal status.
	MarkCanceled(ctx context.Context, id uuid.UUID) (*Entry, error)

	// ExpireDue flips active entries whose TTL passed to expired and
	// returns how many were flipped.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)

	// Cohort maintenance. A cohort is the exact (specialty, doctor-or-null)
	// scope; entries with no doctor preference form their own cohort.
	ListActiveCohort(ctx context.Context, specialtyID uuid.UUID, doctorID *uuid.UUID) ([]Entry, error)
	SetPosition(ctx context.Context, id uuid.UUID, position int) error
}
