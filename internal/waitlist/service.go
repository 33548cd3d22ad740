package waitlist

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinova/scheduling-core/internal/notify"
	"github.com/clinova/scheduling-core/internal/observability/metrics"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid waitlist transition")
)

// Options tunes the queue behavior. Zero values fall back to production
// defaults.
type Options struct {
	TTL            time.Duration // entry lifetime, default 30 days
	AntiSpamWindow time.Duration // min gap between notifications per entry
	NotifyDelay    time.Duration // throttle between outbound sends
	CandidateLimit int           // candidates considered per opening
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 30 * 24 * time.Hour
	}
	if o.AntiSpamWindow <= 0 {
		o.AntiSpamWindow = 24 * time.Hour
	}
	if o.CandidateLimit <= 0 {
		o.CandidateLimit = 5
	}
	return o
}

// Service maintains the per-(specialty, doctor) priority queues and drives
// promotion when a slot opens up.
type Service struct {
	repo    Repository
	email   notify.EmailSender
	message notify.MessageSender
	metrics *metrics.SchedulingMetrics
	opts    Options
	now     func() time.Time
}

func NewService(repo Repository, email notify.EmailSender, message notify.MessageSender, m *metrics.SchedulingMetrics, opts Options) *Service {
	return &Service{
		repo:    repo,
		email:   email,
		message: message,
		metrics: m,
		opts:    opts.withDefaults(),
		now:     time.Now,
	}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type EnqueueInput struct {
	ClinicID    uuid.UUID
	SpecialtyID uuid.UUID
	DoctorID    *uuid.UUID

	PatientName  string
	PatientPhone string
	PatientEmail *string

	PreferredDates  []string
	PreferredTimes  []string
	PreferredPeriod *string

	Priority Priority
}

// Enqueue adds a patient to the waitlist and refreshes the cohort's
// advisory positions.
func (s *Service) Enqueue(ctx context.Context, in EnqueueInput) (*Entry, error) {
	if strings.TrimSpace(in.PatientName) == "" {
		return nil, fmt.Errorf("%w: patient name is required", ErrValidation)
	}
	if strings.TrimSpace(in.PatientPhone) == "" {
		return nil, fmt.Errorf("%w: patient phone is required", ErrValidation)
	}
	switch in.Priority {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
	case "":
		in.Priority = PriorityNormal
	default:
		return nil, fmt.Errorf("%w: unknown priority %q", ErrValidation, in.Priority)
	}

	now := s.now()
	entry := &Entry{
		ClinicID:        in.ClinicID,
		SpecialtyID:     in.SpecialtyID,
		DoctorID:        in.DoctorID,
		PatientName:     strings.TrimSpace(in.PatientName),
		PatientPhone:    strings.TrimSpace(in.PatientPhone),
		PatientEmail:    in.PatientEmail,
		PreferredDates:  in.PreferredDates,
		PreferredTimes:  in.PreferredTimes,
		PreferredPeriod: in.PreferredPeriod,
		Priority:        in.Priority,
		Status:          StatusActive,
		ExpiresAt:       now.Add(s.opts.TTL),
	}

	if err := s.repo.CreateEntry(ctx, entry); err != nil {
		return nil, err
	}

	if err := s.RecomputePositions(ctx, in.SpecialtyID, in.DoctorID); err != nil {
		log.Printf("recompute positions after enqueue %s: %v", entry.ID, err)
	}

	return entry, nil
}

// Candidates returns up to limit promotable entries in priority/FIFO order.
func (s *Service) Candidates(ctx context.Context, specialtyID uuid.UUID, doctorID *uuid.UUID, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = s.opts.CandidateLimit
	}
	return s.repo.ListCandidates(ctx, specialtyID, doctorID, limit, s.now())
}

// Opening describes a freed slot a cancellation produced.
type Opening struct {
	ClinicID    uuid.UUID
	DoctorID    uuid.UUID
	SpecialtyID uuid.UUID
	Date        string // YYYY-MM-DD
	Time        string // HH:MM
}

// NotifyOpening tells waiting patients about a freed slot. Each candidate
// is skipped when it was notified within the anti-spam window; sends are
// throttled with a delay between them. Returns how many notifications went
// out. Two near-simultaneous openings can still race to the same
// candidate; the anti-spam window is the only mitigation, by design.
func (s *Service) NotifyOpening(ctx context.Context, op Opening) (int, error) {
	doctorID := op.DoctorID
	candidates, err := s.repo.ListCandidates(ctx, op.SpecialtyID, &doctorID, s.opts.CandidateLimit, s.now())
	if err != nil {
		return 0, fmt.Errorf("list candidates: %w", err)
	}

	notified := 0
	for i := range candidates {
		c := &candidates[i]
		now := s.now()

		if c.LastNotificationAt != nil && now.Sub(*c.LastNotificationAt) < s.opts.AntiSpamWindow {
			s.metrics.ObserveWaitlistEvent("skipped_anti_spam")
			continue
		}

		if !s.dispatch(ctx, c, op) {
			s.metrics.ObserveWaitlistEvent("notify_failed")
			continue
		}

		if err := s.repo.MarkNotified(ctx, c.ID, now); err != nil {
			log.Printf("mark waitlist entry %s notified: %v", c.ID, err)
			continue
		}
		s.metrics.ObserveWaitlistEvent("notified")
		notified++

		if s.opts.NotifyDelay > 0 && i < len(candidates)-1 {
			if err := sleepCtx(ctx, s.opts.NotifyDelay); err != nil {
				return notified, err
			}
		}
	}

	return notified, nil
}

// dispatch tries the patient's channels; one failing does not block the
// other. True when at least one delivery succeeded.
func (s *Service) dispatch(ctx context.Context, e *Entry, op Opening) bool {
	text := fmt.Sprintf(
		"Good news %s! A slot opened up on %s at %s. Reply here to grab it before it goes.",
		e.PatientName, op.Date, op.Time)

	ok := false
	if s.message != nil && e.PatientPhone != "" {
		if err := s.message.SendMessage(ctx, e.PatientPhone, text); err != nil {
			log.Printf("waitlist message to %s failed: %v", e.PatientPhone, err)
		} else {
			ok = true
		}
	}
	if s.email != nil && e.PatientEmail != nil && *e.PatientEmail != "" {
		if err := s.email.SendEmail(ctx, *e.PatientEmail, "A slot opened up", text); err != nil {
			log.Printf("waitlist email to %s failed: %v", *e.PatientEmail, err)
		} else {
			ok = true
		}
	}
	return ok
}

// ConvertToAppointment is the one-way promotion of an entry into a booked
// appointment. A second call on the same entry fails without mutating it,
// which guards against duplicate bookings on retry.
func (s *Service) ConvertToAppointment(ctx context.Context, id, appointmentID uuid.UUID) (*Entry, error) {
	entry, err := s.repo.GetEntryByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status != StatusActive && entry.Status != StatusNotified {
		return nil, fmt.Errorf("%w: cannot convert %s entry", ErrInvalidTransition, entry.Status)
	}

	now := s.now()
	waitMinutes := int(now.Sub(entry.CreatedAt).Minutes())

	updated, err := s.repo.MarkScheduled(ctx, id, appointmentID, waitMinutes, now)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, fmt.Errorf("%w: entry changed concurrently", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("mark scheduled: %w", err)
	}

	s.metrics.ObserveWaitlistEvent("converted")

	if err := s.RecomputePositions(ctx, entry.SpecialtyID, entry.DoctorID); err != nil {
		log.Printf("recompute positions after convert %s: %v", id, err)
	}

	return updated, nil
}

// Cancel removes the patient from the queue. Idempotent when already
// canceled; rejected from the other terminal states.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Entry, error) {
	entry, err := s.repo.GetEntryByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status == StatusCanceled {
		return entry, nil
	}
	if entry.Status.Terminal() {
		return nil, fmt.Errorf("%w: cannot cancel %s entry", ErrInvalidTransition, entry.Status)
	}

	updated, err := s.repo.MarkCanceled(ctx, id)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, fmt.Errorf("%w: entry changed concurrently", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("mark canceled: %w", err)
	}

	if err := s.RecomputePositions(ctx, entry.SpecialtyID, entry.DoctorID); err != nil {
		log.Printf("recompute positions after cancel %s: %v", id, err)
	}

	return updated, nil
}

// Get returns one entry.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.repo.GetEntryByID(ctx, id)
}

// ExpireSweep flips overdue active entries to expired. Intended to run
// periodically alongside the reminder sweep.
func (s *Service) ExpireSweep(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireDue(ctx, s.now())
	if err != nil {
		return 0, err
	}
	for i := int64(0); i < n; i++ {
		s.metrics.ObserveWaitlistEvent("expired")
	}
	return n, nil
}

// RecomputePositions re-sorts the cohort and assigns 1-based ranks. The
// result is advisory display data only; allocation never reads it.
func (s *Service) RecomputePositions(ctx context.Context, specialtyID uuid.UUID, doctorID *uuid.UUID) error {
	entries, err := s.repo.ListActiveCohort(ctx, specialtyID, doctorID)
	if err != nil {
		return fmt.Errorf("list cohort: %w", err)
	}
	for i := range entries {
		if err := s.repo.SetPosition(ctx, entries[i].ID, i+1); err != nil {
			return fmt.Errorf("set position for %s: %w", entries[i].ID, err)
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
