package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinova/scheduling-core/internal/besteffort"
	"github.com/clinova/scheduling-core/internal/calendar"
)

// fakeRepo is an in-memory Repository with the same guarded-update
// semantics as the Postgres implementation.
type fakeRepo struct {
	clinics      map[uuid.UUID]*Clinic
	doctors      map[uuid.UUID]*Doctor
	specialties  map[uuid.UUID]*Specialty
	appointments map[uuid.UUID]*Appointment
	history      []HistoryEntry
	reminders    []ReminderRecord

	createErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		clinics:      map[uuid.UUID]*Clinic{},
		doctors:      map[uuid.UUID]*Doctor{},
		specialties:  map[uuid.UUID]*Specialty{},
		appointments: map[uuid.UUID]*Appointment{},
	}
}

func (r *fakeRepo) GetClinicByID(_ context.Context, id uuid.UUID) (*Clinic, error) {
	c, ok := r.clinics[id]
	if !ok {
		return nil, ErrClinicNotFound
	}
	return c, nil
}

func (r *fakeRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return d, nil
}

func (r *fakeRepo) GetSpecialtyByID(_ context.Context, id uuid.UUID) (*Specialty, error) {
	s, ok := r.specialties[id]
	if !ok {
		return nil, ErrSpecialtyNotFound
	}
	return s, nil
}

func (r *fakeRepo) CreateAppointment(_ context.Context, a *Appointment) error {
	if r.createErr != nil {
		return r.createErr
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	for _, existing := range r.appointments {
		if existing.DoctorID == a.DoctorID &&
			existing.ScheduledDate.Equal(a.ScheduledDate) &&
			existing.ScheduledTime == a.ScheduledTime &&
			existing.Status != StatusCanceled && existing.Status != StatusNoShow {
			return ErrSlotTaken
		}
	}
	cp := *a
	r.appointments[a.ID] = &cp
	return nil
}

func (r *fakeRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) SetConfirmation(_ context.Context, id uuid.UUID, method string, at time.Time) error {
	a, ok := r.appointments[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.Confirmed = true
	a.ConfirmedAt = &at
	a.ConfirmMethod = &method
	return nil
}

func (r *fakeRepo) SetCancellation(_ context.Context, id uuid.UUID, canceledBy, reason string) error {
	a, ok := r.appointments[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.CanceledBy = &canceledBy
	a.CancelReason = &reason
	return nil
}

func (r *fakeRepo) SetCalendarEventID(_ context.Context, id uuid.UUID, eventID string) error {
	a, ok := r.appointments[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.CalendarEventID = &eventID
	return nil
}

func (r *fakeRepo) AppendHistory(_ context.Context, h HistoryEntry) error {
	h.ID = int64(len(r.history) + 1)
	r.history = append(r.history, h)
	return nil
}

func (r *fakeRepo) ListHistory(_ context.Context, appointmentID uuid.UUID) ([]HistoryEntry, error) {
	var out []HistoryEntry
	for _, h := range r.history {
		if h.AppointmentID == appointmentID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *fakeRepo) AppendReminderRecord(_ context.Context, rec ReminderRecord) error {
	rec.ID = int64(len(r.reminders) + 1)
	r.reminders = append(r.reminders, rec)
	return nil
}

func (r *fakeRepo) ListReminderRecords(_ context.Context, appointmentID uuid.UUID) ([]ReminderRecord, error) {
	var out []ReminderRecord
	for _, rec := range r.reminders {
		if rec.AppointmentID == appointmentID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListUpcoming(_ context.Context, from, to time.Time, statuses []Status) ([]Appointment, error) {
	var out []Appointment
	for _, a := range r.appointments {
		if a.ScheduledAt.Before(from) || !a.ScheduledAt.Before(to) {
			continue
		}
		for _, s := range statuses {
			if a.Status == s {
				out = append(out, *a)
				break
			}
		}
	}
	return out, nil
}

type stubProvider struct {
	eventID   string
	createErr error
	deleted   []string
}

func (p *stubProvider) BusyIntervals(context.Context, string, time.Time, time.Time) ([]calendar.Interval, error) {
	return nil, nil
}

func (p *stubProvider) CreateEvent(context.Context, string, calendar.Event) (string, error) {
	if p.createErr != nil {
		return "", p.createErr
	}
	return p.eventID, nil
}

func (p *stubProvider) DeleteEvent(_ context.Context, _ string, eventID string) error {
	p.deleted = append(p.deleted, eventID)
	return nil
}

type fixture struct {
	repo      *fakeRepo
	svc       *Service
	clinic    *Clinic
	doctor    *Doctor
	specialty *Specialty
	baseNow   time.Time
}

func newFixture(t *testing.T, provider calendar.Provider) *fixture {
	t.Helper()

	repo := newFakeRepo()
	clinic := &Clinic{ID: uuid.New(), Name: "Centro", WorkStartHour: 8, WorkEndHour: 18, SlotMinutes: 30}
	calID := "cal-1"
	doctor := &Doctor{ID: uuid.New(), ClinicID: clinic.ID, Name: "Dr. Souza", CalendarID: &calID}
	specialty := &Specialty{ID: uuid.New(), Name: "Dermatology"}
	repo.clinics[clinic.ID] = clinic
	repo.doctors[doctor.ID] = doctor
	repo.specialties[specialty.ID] = specialty
	doctor.SpecialtyID = specialty.ID

	baseNow := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	effects := besteffort.NewRunner(time.Second, nil)
	svc := NewService(repo, provider, effects, time.UTC).WithClock(func() time.Time { return baseNow })

	return &fixture{repo: repo, svc: svc, clinic: clinic, doctor: doctor, specialty: specialty, baseNow: baseNow}
}

func (f *fixture) createInput() CreateInput {
	return CreateInput{
		ClinicID:        f.clinic.ID,
		DoctorID:        f.doctor.ID,
		SpecialtyID:     f.specialty.ID,
		PatientName:     "Ana Lima",
		PatientPhone:    "+5511999990000",
		Date:            time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
		Time:            "10:00",
		DurationMinutes: 30,
		Actor:           "patient",
	}
}

func TestCreateAppointment(t *testing.T) {
	f := newFixture(t, &stubProvider{eventID: "evt-1"})

	appt, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, "10:00", appt.ScheduledTime)
	assert.Equal(t, time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC), appt.ScheduledAt)

	history, err := f.svc.History(context.Background(), appt.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "created", history[0].Action)

	// Calendar sync happened and the event id was persisted.
	stored, err := f.svc.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CalendarEventID)
	assert.Equal(t, "evt-1", *stored.CalendarEventID)
}

func TestCreateAppointmentValidation(t *testing.T) {
	f := newFixture(t, &stubProvider{})

	cases := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"empty name", func(in *CreateInput) { in.PatientName = "  " }},
		{"empty phone", func(in *CreateInput) { in.PatientPhone = "" }},
		{"duration too short", func(in *CreateInput) { in.DurationMinutes = 10 }},
		{"duration too long", func(in *CreateInput) { in.DurationMinutes = 240 }},
		{"bad time format", func(in *CreateInput) { in.Time = "10h30" }},
		{"hour out of range", func(in *CreateInput) { in.Time = "25:00" }},
		{"minute out of range", func(in *CreateInput) { in.Time = "10:75" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := f.createInput()
			tc.mutate(&in)
			_, err := f.svc.Create(context.Background(), in)
			assert.True(t, errors.Is(err, ErrValidation), "got %v", err)
		})
	}
}

func TestCreateAppointmentUnknownReferences(t *testing.T) {
	f := newFixture(t, &stubProvider{})

	in := f.createInput()
	in.ClinicID = uuid.New()
	_, err := f.svc.Create(context.Background(), in)
	assert.True(t, errors.Is(err, ErrClinicNotFound))

	in = f.createInput()
	in.DoctorID = uuid.New()
	_, err = f.svc.Create(context.Background(), in)
	assert.True(t, errors.Is(err, ErrDoctorNotFound))

	in = f.createInput()
	in.SpecialtyID = uuid.New()
	_, err = f.svc.Create(context.Background(), in)
	assert.True(t, errors.Is(err, ErrSpecialtyNotFound))
}

func TestCreateAppointmentSlotTaken(t *testing.T) {
	f := newFixture(t, &stubProvider{})

	_, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	in := f.createInput()
	in.PatientName = "Bruno Reis"
	_, err = f.svc.Create(context.Background(), in)
	assert.True(t, errors.Is(err, ErrSlotTaken))
}

func TestCreateAppointmentSurvivesCalendarFailure(t *testing.T) {
	f := newFixture(t, &stubProvider{createErr: calendar.ErrProviderUnavailable})

	appt, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	stored, err := f.svc.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Nil(t, stored.CalendarEventID)
}

func TestConfirm(t *testing.T) {
	f := newFixture(t, &stubProvider{})

	appt, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	confirmed, err := f.svc.Confirm(context.Background(), appt.ID, "whatsapp", "patient")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
	assert.True(t, confirmed.Confirmed)
	require.NotNil(t, confirmed.ConfirmMethod)
	assert.Equal(t, "whatsapp", *confirmed.ConfirmMethod)

	history, err := f.svc.History(context.Background(), appt.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "confirmed", history[1].Action)
}

func TestConfirmIdempotent(t *testing.T) {
	f := newFixture(t, &stubProvider{})

	appt, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	_, err = f.svc.Confirm(context.Background(), appt.ID, "email", "patient")
	require.NoError(t, err)

	again, err := f.svc.Confirm(context.Background(), appt.ID, "email", "patient")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, again.Status)

	// Second confirm appends nothing.
	history, err := f.svc.History(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestConfirmRejectsBadMethodAndState(t *testing.T) {
	f := newFixture(t, &stubProvider{})

	appt, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	_, err = f.svc.Confirm(context.Background(), appt.ID, "carrier-pigeon", "patient")
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = f.svc.Cancel(context.Background(), appt.ID, "patient", "conflict")
	require.NoError(t, err)

	_, err = f.svc.Confirm(context.Background(), appt.ID, "email", "patient")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestCancel(t *testing.T) {
	f := newFixture(t, &stubProvider{eventID: "evt-9"})

	appt, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	canceled, err := f.svc.Cancel(context.Background(), appt.ID, "patient", "schedule conflict")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, canceled.Status)
	require.NotNil(t, canceled.CanceledBy)
	assert.Equal(t, "patient", *canceled.CanceledBy)

	// The freed slot is bookable again.
	in := f.createInput()
	in.PatientName = "Bruno Reis"
	_, err = f.svc.Create(context.Background(), in)
	assert.NoError(t, err)
}

func TestCancelIdempotent(t *testing.T) {
	f := newFixture(t, &stubProvider{})

	appt, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), appt.ID, "patient", "conflict")
	require.NoError(t, err)

	again, err := f.svc.Cancel(context.Background(), appt.ID, "clinic", "other")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, again.Status)

	history, err := f.svc.History(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2) // created + one cancel
}

func TestCancelRejectsCompletedAndBadActor(t *testing.T) {
	f := newFixture(t, &stubProvider{})

	appt, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), appt.ID, "intruder", "x")
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = f.svc.Confirm(context.Background(), appt.ID, "email", "patient")
	require.NoError(t, err)
	_, err = f.svc.Start(context.Background(), appt.ID, "doctor")
	require.NoError(t, err)
	_, err = f.svc.Complete(context.Background(), appt.ID, "doctor")
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), appt.ID, "patient", "too late")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestLifecycleTransitions(t *testing.T) {
	f := newFixture(t, &stubProvider{})

	appt, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	// Pending cannot go straight to in-progress.
	_, err = f.svc.Start(context.Background(), appt.ID, "doctor")
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	_, err = f.svc.Confirm(context.Background(), appt.ID, "sms", "patient")
	require.NoError(t, err)

	started, err := f.svc.Start(context.Background(), appt.ID, "doctor")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, started.Status)

	done, err := f.svc.Complete(context.Background(), appt.ID, "doctor")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)

	// Completed is terminal.
	_, err = f.svc.Start(context.Background(), appt.ID, "doctor")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestMarkNoShow(t *testing.T) {
	f := newFixture(t, &stubProvider{})

	appt, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	// Allowed from pending.
	marked, err := f.svc.MarkNoShow(context.Background(), appt.ID, "clinic")
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, marked.Status)

	// Terminal afterwards.
	_, err = f.svc.Confirm(context.Background(), appt.ID, "email", "patient")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestAddReminderRecord(t *testing.T) {
	f := newFixture(t, &stubProvider{})

	appt, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	err = f.svc.AddReminderRecord(context.Background(), ReminderRecord{
		AppointmentID: appt.ID,
		Type:          Reminder24h,
		Method:        "email",
		Status:        ReminderSent,
	})
	require.NoError(t, err)

	// Appends, never overwrites.
	errMsg := "gateway timeout"
	err = f.svc.AddReminderRecord(context.Background(), ReminderRecord{
		AppointmentID: appt.ID,
		Type:          Reminder24h,
		Method:        "message",
		Status:        ReminderFailed,
		Error:         &errMsg,
	})
	require.NoError(t, err)

	records, err := f.repo.ListReminderRecords(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	err = f.svc.AddReminderRecord(context.Background(), ReminderRecord{
		AppointmentID: appt.ID,
		Type:          "weekly",
		Method:        "email",
		Status:        ReminderSent,
	})
	assert.True(t, errors.Is(err, ErrValidation))

	err = f.svc.AddReminderRecord(context.Background(), ReminderRecord{
		AppointmentID: appt.ID,
		Type:          Reminder1h,
		Method:        "email",
		Status:        "maybe",
	})
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestHasReminder(t *testing.T) {
	f := newFixture(t, &stubProvider{})

	appt, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	errMsg := "boom"
	require.NoError(t, f.svc.AddReminderRecord(context.Background(), ReminderRecord{
		AppointmentID: appt.ID,
		Type:          Reminder24h,
		Method:        "email",
		Status:        ReminderFailed,
		Error:         &errMsg,
	}))

	// A failed record counts unless the caller asks for sent only.
	has, err := f.svc.HasReminder(context.Background(), appt.ID, Reminder24h, false)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = f.svc.HasReminder(context.Background(), appt.ID, Reminder24h, true)
	require.NoError(t, err)
	assert.False(t, has)
}
