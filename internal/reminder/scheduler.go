package reminder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinova/scheduling-core/internal/appointment"
	"github.com/clinova/scheduling-core/internal/notify"
	"github.com/clinova/scheduling-core/internal/observability/metrics"
	"github.com/clinova/scheduling-core/internal/redisclient"
)

// AppointmentStore is the slice of the appointment service the scheduler
// needs. *appointment.Service satisfies it.
type AppointmentStore interface {
	ListUpcoming(ctx context.Context, from, to time.Time) ([]appointment.Appointment, error)
	HasReminder(ctx context.Context, id uuid.UUID, typ appointment.ReminderType, sentOnly bool) (bool, error)
	AddReminderRecord(ctx context.Context, rec appointment.ReminderRecord) error
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}

// Window fires a reminder when the time until the appointment lands in the
// half-open interval (Before-Width, Before]. Width must exceed the sweep
// cadence so every appointment is seen by at least one run; config.Load
// enforces that.
type Window struct {
	Type   appointment.ReminderType
	Before time.Duration
	Width  time.Duration
	// SentOnly dedupes only on successfully sent records, so a window
	// whose every channel failed is retried on the next sweep.
	SentOnly bool
}

// DefaultWindows builds the 24h and 1h windows from configured widths.
func DefaultWindows(width24h, width1h time.Duration) []Window {
	return []Window{
		{Type: appointment.Reminder24h, Before: 24 * time.Hour, Width: width24h, SentOnly: true},
		{Type: appointment.Reminder1h, Before: time.Hour, Width: width1h},
	}
}

// Scheduler is the periodic reminder sweep. Construct once at process
// start; Start/Stop own the ticker goroutine.
type Scheduler struct {
	store     AppointmentStore
	email     notify.EmailSender
	message   notify.MessageSender
	metrics   *metrics.SchedulingMetrics
	locker    redisclient.Locker // nil disables leader election
	interval  time.Duration
	lookahead time.Duration
	windows   []Window
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(store AppointmentStore, email notify.EmailSender, message notify.MessageSender, m *metrics.SchedulingMetrics, locker redisclient.Locker, interval, lookahead time.Duration, windows []Window) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if lookahead <= 0 {
		lookahead = 25 * time.Hour
	}
	return &Scheduler{
		store:     store,
		email:     email,
		message:   message,
		metrics:   m,
		locker:    locker,
		interval:  interval,
		lookahead: lookahead,
		windows:   windows,
		now:       time.Now,
	}
}

// WithClock overrides the scheduler clock. Test hook.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Start launches the sweep loop. It runs once immediately, then on every
// tick until Stop or context cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	// The goroutine closes its local copy; Stop nils the struct fields, so
	// touching them here would race.
	go func() {
		defer close(done)

		s.runOnce(runCtx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.runOnce(runCtx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	start := time.Now()
	if err := s.SweepOnce(runCtx); err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			log.Println("reminder sweep skipped, another worker holds the lock")
			return
		}
		s.metrics.ObserveSweepRun("reminders", false)
		log.Printf("reminder sweep error: %v", err)
		return
	}
	s.metrics.ObserveSweepRun("reminders", true)
	log.Printf("reminder sweep complete in %s", time.Since(start))
}

// SweepOnce evaluates every upcoming appointment against the configured
// windows and fires each at most once.
func (s *Scheduler) SweepOnce(ctx context.Context) error {
	if s.locker == nil {
		return s.sweep(ctx)
	}
	return s.locker.WithSweepLock(ctx, "reminders", func(ctx context.Context) error {
		return s.sweep(ctx)
	})
}

func (s *Scheduler) sweep(ctx context.Context) error {
	now := s.now()

	upcoming, err := s.store.ListUpcoming(ctx, now, now.Add(s.lookahead))
	if err != nil {
		return fmt.Errorf("list upcoming appointments: %w", err)
	}

	for i := range upcoming {
		appt := &upcoming[i]
		until := appt.ScheduledAt.Sub(now)

		for _, w := range s.windows {
			if until <= w.Before-w.Width || until > w.Before {
				continue
			}

			already, err := s.store.HasReminder(ctx, appt.ID, w.Type, w.SentOnly)
			if err != nil {
				log.Printf("check reminder history for %s: %v", appt.ID, err)
				continue
			}
			if already {
				continue
			}

			s.deliver(ctx, appt, w.Type)
		}
	}

	return nil
}

// SendManual fires an administrator-triggered reminder immediately,
// bypassing the window checks. Always recorded with type manual.
func (s *Scheduler) SendManual(ctx context.Context, appointmentID uuid.UUID) error {
	appt, err := s.store.Get(ctx, appointmentID)
	if err != nil {
		return err
	}
	s.deliver(ctx, appt, appointment.ReminderManual)
	return nil
}

// deliver attempts every channel the patient has; a failure on one does
// not block the other, and every attempt is recorded so the window check
// stays idempotent across sweeps.
func (s *Scheduler) deliver(ctx context.Context, appt *appointment.Appointment, typ appointment.ReminderType) {
	text := reminderText(appt, typ)

	if s.message != nil && appt.PatientPhone != "" {
		err := s.message.SendMessage(ctx, appt.PatientPhone, text)
		s.record(ctx, appt.ID, typ, "message", err)
	}
	if s.email != nil && appt.PatientEmail != nil && *appt.PatientEmail != "" {
		err := s.email.SendEmail(ctx, *appt.PatientEmail, "Appointment reminder", text)
		s.record(ctx, appt.ID, typ, "email", err)
	}
}

func (s *Scheduler) record(ctx context.Context, id uuid.UUID, typ appointment.ReminderType, method string, sendErr error) {
	rec := appointment.ReminderRecord{
		AppointmentID: id,
		Type:          typ,
		Method:        method,
		Status:        appointment.ReminderSent,
		SentAt:        s.now(),
	}
	if sendErr != nil {
		msg := sendErr.Error()
		rec.Status = appointment.ReminderFailed
		rec.Error = &msg
		log.Printf("reminder %s via %s for appointment %s failed: %v", typ, method, id, sendErr)
	}

	s.metrics.ObserveReminder(string(typ), method, sendErr == nil)

	if err := s.store.AddReminderRecord(ctx, rec); err != nil {
		log.Printf("record reminder %s for appointment %s: %v", typ, id, err)
	}
}

func reminderText(appt *appointment.Appointment, typ appointment.ReminderType) string {
	when := fmt.Sprintf("%s at %s", appt.ScheduledDate.Format("Monday, January 2"), appt.ScheduledTime)
	switch typ {
	case appointment.Reminder24h:
		return fmt.Sprintf("Hi %s, a reminder that your appointment is tomorrow, %s.", appt.PatientName, when)
	case appointment.Reminder1h:
		return fmt.Sprintf("Hi %s, your appointment starts in about an hour, %s.", appt.PatientName, when)
	default:
		return fmt.Sprintf("Hi %s, a reminder about your appointment on %s.", appt.PatientName, when)
	}
}
