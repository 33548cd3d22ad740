package appointment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinova/scheduling-core/internal/besteffort"
	"github.com/clinova/scheduling-core/internal/calendar"
)

const (
	minDurationMinutes = 15
	maxDurationMinutes = 180
)

var (
	// ErrValidation wraps malformed-input failures. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition rejects a status write the state machine does
	// not allow. The record is left untouched.
	ErrInvalidTransition = errors.New("invalid status transition")
)

var confirmMethods = map[string]bool{
	"email":    true,
	"whatsapp": true,
	"sms":      true,
	"phone":    true,
	"link":     true,
}

var cancelActors = map[string]bool{
	"patient": true,
	"doctor":  true,
	"clinic":  true,
	"system":  true,
}

// Service owns the appointment state machine and its downstream effects:
// calendar sync (best-effort) and the append-only history trail.
type Service struct {
	repo     Repository
	provider calendar.Provider
	effects  *besteffort.Runner
	loc      *time.Location
	now      func() time.Time
}

func NewService(repo Repository, provider calendar.Provider, effects *besteffort.Runner, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:     repo,
		provider: provider,
		effects:  effects,
		loc:      loc,
		now:      time.Now,
	}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateInput struct {
	ClinicID    uuid.UUID
	DoctorID    uuid.UUID
	SpecialtyID uuid.UUID

	PatientName  string
	PatientPhone string
	PatientEmail *string

	Date            time.Time
	Time            string // HH:MM
	DurationMinutes int

	Actor string
}

// Create books an appointment into a slot. It does not re-verify calendar
// availability; the caller combines the resolver's single-slot check with
// this call, and the storage unique index turns the remaining race into
// ErrSlotTaken.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Appointment, error) {
	if strings.TrimSpace(in.PatientName) == "" {
		return nil, fmt.Errorf("%w: patient name is required", ErrValidation)
	}
	if strings.TrimSpace(in.PatientPhone) == "" {
		return nil, fmt.Errorf("%w: patient phone is required", ErrValidation)
	}
	if in.DurationMinutes < minDurationMinutes || in.DurationMinutes > maxDurationMinutes {
		return nil, fmt.Errorf("%w: duration must be between %d and %d minutes",
			ErrValidation, minDurationMinutes, maxDurationMinutes)
	}

	hour, minute, err := parseClock(in.Time)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	clinic, err := s.repo.GetClinicByID(ctx, in.ClinicID)
	if err != nil {
		return nil, err
	}
	doctor, err := s.repo.GetDoctorByID(ctx, in.DoctorID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetSpecialtyByID(ctx, in.SpecialtyID); err != nil {
		return nil, err
	}

	y, m, d := in.Date.In(s.loc).Date()
	scheduledAt := time.Date(y, m, d, hour, minute, 0, 0, s.loc)

	appt := &Appointment{
		ClinicID:        clinic.ID,
		DoctorID:        doctor.ID,
		SpecialtyID:     in.SpecialtyID,
		PatientName:     strings.TrimSpace(in.PatientName),
		PatientPhone:    strings.TrimSpace(in.PatientPhone),
		PatientEmail:    in.PatientEmail,
		ScheduledDate:   time.Date(y, m, d, 0, 0, 0, 0, s.loc),
		ScheduledTime:   fmt.Sprintf("%02d:%02d", hour, minute),
		DurationMinutes: in.DurationMinutes,
		ScheduledAt:     scheduledAt,
		Status:          StatusPending,
	}

	if err := s.repo.CreateAppointment(ctx, appt); err != nil {
		return nil, err
	}

	s.appendHistory(ctx, appt.ID, "created", in.Actor,
		fmt.Sprintf("booked %s %s with %s", appt.ScheduledDate.Format(time.DateOnly), appt.ScheduledTime, doctor.Name))

	s.syncCalendarCreate(ctx, appt, doctor)

	return appt, nil
}

// Confirm moves a pending appointment to confirmed. Confirming an already
// confirmed appointment is a no-op success and appends nothing.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, method, actor string) (*Appointment, error) {
	if !confirmMethods[method] {
		return nil, fmt.Errorf("%w: unknown confirmation method %q", ErrValidation, method)
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if appt.Status == StatusConfirmed {
		return appt, nil
	}
	if appt.Status != StatusPending {
		return nil, fmt.Errorf("%w: cannot confirm %s appointment", ErrInvalidTransition, appt.Status)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, StatusPending, StatusConfirmed)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost the race; report the state we can no longer enter from.
			return nil, fmt.Errorf("%w: appointment changed concurrently", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("confirm appointment: %w", err)
	}

	now := s.now()
	if err := s.repo.SetConfirmation(ctx, id, method, now); err != nil {
		return nil, fmt.Errorf("record confirmation: %w", err)
	}
	updated.Confirmed = true
	updated.ConfirmedAt = &now
	updated.ConfirmMethod = &method

	s.appendHistory(ctx, id, "confirmed", actor, fmt.Sprintf("confirmed via %s", method))

	return updated, nil
}

// Cancel transitions to canceled, preserving the record for audit. Calling
// it on an already canceled appointment succeeds without re-appending
// history.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, canceledBy, reason string) (*Appointment, error) {
	if !cancelActors[canceledBy] {
		return nil, fmt.Errorf("%w: unknown cancel actor %q", ErrValidation, canceledBy)
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if appt.Status == StatusCanceled {
		return appt, nil
	}
	if appt.Status != StatusPending && appt.Status != StatusConfirmed {
		return nil, fmt.Errorf("%w: cannot cancel %s appointment", ErrInvalidTransition, appt.Status)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, StatusCanceled)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("%w: appointment changed concurrently", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	if err := s.repo.SetCancellation(ctx, id, canceledBy, reason); err != nil {
		return nil, fmt.Errorf("record cancellation: %w", err)
	}
	updated.CanceledBy = &canceledBy
	updated.CancelReason = &reason

	s.appendHistory(ctx, id, "canceled", canceledBy, fmt.Sprintf("canceled by %s: %s", canceledBy, reason))

	s.syncCalendarDelete(ctx, updated)

	return updated, nil
}

// Start marks a confirmed appointment as in progress.
func (s *Service) Start(ctx context.Context, id uuid.UUID, actor string) (*Appointment, error) {
	return s.transition(ctx, id, StatusConfirmed, StatusInProgress, actor)
}

// Complete closes out an in-progress appointment.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, actor string) (*Appointment, error) {
	return s.transition(ctx, id, StatusInProgress, StatusCompleted, actor)
}

// MarkNoShow records that the patient did not show up.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID, actor string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusPending && appt.Status != StatusConfirmed {
		return nil, fmt.Errorf("%w: cannot mark %s appointment as no-show", ErrInvalidTransition, appt.Status)
	}
	return s.transition(ctx, id, appt.Status, StatusNoShow, actor)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, from, to Status, actor string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status == to {
		return appt, nil
	}
	if appt.Status != from {
		return nil, fmt.Errorf("%w: cannot move %s appointment to %s", ErrInvalidTransition, appt.Status, to)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, from, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("%w: appointment changed concurrently", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.appendHistory(ctx, id, "status-changed", actor, fmt.Sprintf("status changed from %s to %s", from, to))

	return updated, nil
}

// Get returns one appointment.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

// Doctor returns the doctor's scheduling configuration.
func (s *Service) Doctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.repo.GetDoctorByID(ctx, id)
}

// Clinic returns the clinic with its working-hours defaults.
func (s *Service) Clinic(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	return s.repo.GetClinicByID(ctx, id)
}

// History returns the audit trail, oldest first.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]HistoryEntry, error) {
	return s.repo.ListHistory(ctx, id)
}

// AddReminderRecord appends one delivery attempt to the audit trail. It
// never overwrites prior entries.
func (s *Service) AddReminderRecord(ctx context.Context, rec ReminderRecord) error {
	switch rec.Type {
	case Reminder24h, Reminder1h, ReminderCustom, ReminderManual:
	default:
		return fmt.Errorf("%w: unknown reminder type %q", ErrValidation, rec.Type)
	}
	if rec.Status != ReminderSent && rec.Status != ReminderFailed {
		return fmt.Errorf("%w: unknown reminder status %q", ErrValidation, rec.Status)
	}
	if rec.SentAt.IsZero() {
		rec.SentAt = s.now()
	}
	return s.repo.AppendReminderRecord(ctx, rec)
}

// ListUpcoming returns pending or confirmed appointments scheduled in
// [from, to). Used by the reminder sweep.
func (s *Service) ListUpcoming(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	return s.repo.ListUpcoming(ctx, from, to, []Status{StatusPending, StatusConfirmed})
}

// HasReminder reports whether a reminder of the given type already exists.
// With sentOnly set, only records with status sent count.
func (s *Service) HasReminder(ctx context.Context, id uuid.UUID, typ ReminderType, sentOnly bool) (bool, error) {
	records, err := s.repo.ListReminderRecords(ctx, id)
	if err != nil {
		return false, err
	}
	for _, rec := range records {
		if rec.Type != typ {
			continue
		}
		if sentOnly && rec.Status != ReminderSent {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (s *Service) appendHistory(ctx context.Context, id uuid.UUID, action, actor, note string) {
	h := HistoryEntry{
		AppointmentID: id,
		Action:        action,
		Actor:         actor,
		Note:          note,
		CreatedAt:     s.now(),
	}
	if err := s.repo.AppendHistory(ctx, h); err != nil {
		log.Printf("failed to append history %s for appointment %s: %v", action, id, err)
	}
}

func (s *Service) syncCalendarCreate(ctx context.Context, appt *Appointment, doctor *Doctor) {
	if s.provider == nil || s.effects == nil || doctor.CalendarID == nil {
		return
	}

	calendarID := *doctor.CalendarID
	s.effects.Do(ctx, "calendar_event_create", func(ctx context.Context) error {
		ev := calendar.Event{
			Start: appt.ScheduledAt,
			End:   appt.ScheduledAt.Add(time.Duration(appt.DurationMinutes) * time.Minute),
			Title: fmt.Sprintf("Appointment: %s", appt.PatientName),
		}
		eventID, err := s.provider.CreateEvent(ctx, calendarID, ev)
		if err != nil {
			return err
		}
		if err := s.repo.SetCalendarEventID(ctx, appt.ID, eventID); err != nil {
			return err
		}
		appt.CalendarEventID = &eventID
		return nil
	})
}

func (s *Service) syncCalendarDelete(ctx context.Context, appt *Appointment) {
	if s.provider == nil || s.effects == nil || appt.CalendarEventID == nil {
		return
	}

	doctor, err := s.repo.GetDoctorByID(ctx, appt.DoctorID)
	if err != nil || doctor.CalendarID == nil {
		log.Printf("skip calendar event delete for appointment %s: no calendar", appt.ID)
		return
	}

	s.effects.Do(ctx, "calendar_event_delete", func(ctx context.Context) error {
		return s.provider.DeleteEvent(ctx, *doctor.CalendarID, *appt.CalendarEventID)
	})
}

func parseClock(v string) (hour, minute int, err error) {
	parts := strings.Split(v, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("time %q must be HH:MM", v)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("time %q has invalid hour", v)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time %q has invalid minute", v)
	}
	return hour, minute, nil
}
