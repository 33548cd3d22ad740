package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const appointmentColumns = `
	id, clinic_id, doctor_id, specialty_id,
	patient_name, patient_phone, patient_email,
	scheduled_date, scheduled_time, duration_minutes, scheduled_at,
	status, canceled_by, cancel_reason,
	confirmed, confirmed_at, confirm_method,
	calendar_event_id, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.ClinicID,
		&a.DoctorID,
		&a.SpecialtyID,
		&a.PatientName,
		&a.PatientPhone,
		&a.PatientEmail,
		&a.ScheduledDate,
		&a.ScheduledTime,
		&a.DurationMinutes,
		&a.ScheduledAt,
		&a.Status,
		&a.CanceledBy,
		&a.CancelReason,
		&a.Confirmed,
		&a.ConfirmedAt,
		&a.ConfirmMethod,
		&a.CalendarEventID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var days []int32

	err := row.Scan(
		&d.ID,
		&d.ClinicID,
		&d.SpecialtyID,
		&d.Name,
		&days,
		&d.StartHour,
		&d.EndHour,
		&d.SlotMinutes,
		&d.CalendarID,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.WorkingDays = make([]int, len(days))
	for i, v := range days {
		d.WorkingDays[i] = int(v)
	}
	return &d, nil
}

// Interface methods

func (r *PgRepository) GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	var c Clinic
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, work_start_hour, work_end_hour, slot_minutes, created_at, updated_at
		FROM clinics
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.WorkStartHour, &c.WorkEndHour, &c.SlotMinutes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, clinic_id, specialty_id, name, working_days,
		       start_hour, end_hour, slot_minutes, calendar_id, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetSpecialtyByID(ctx context.Context, id uuid.UUID) (*Specialty, error) {
	var s Specialty
	err := r.pool.QueryRow(ctx, `
		SELECT id, name
		FROM specialties
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSpecialtyNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (
			id, clinic_id, doctor_id, specialty_id,
			patient_name, patient_phone, patient_email,
			scheduled_date, scheduled_time, duration_minutes, scheduled_at,
			status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING created_at, updated_at
	`, a.ID, a.ClinicID, a.DoctorID, a.SpecialtyID,
		a.PatientName, a.PatientPhone, a.PatientEmail,
		a.ScheduledDate, a.ScheduledTime, a.DurationMinutes, a.ScheduledAt,
		a.Status)

	if err := row.Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrSlotTaken
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)
	return scanAppointment(row)
}

func (r *PgRepository) SetConfirmation(ctx context.Context, id uuid.UUID, method string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET confirmed = true,
		    confirmed_at = $2,
		    confirm_method = $3,
		    updated_at = now()
		WHERE id = $1
	`, id, at, method)
	if err != nil {
		return fmt.Errorf("set confirmation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) SetCancellation(ctx context.Context, id uuid.UUID, canceledBy, reason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET canceled_by = $2,
		    cancel_reason = $3,
		    updated_at = now()
		WHERE id = $1
	`, id, canceledBy, reason)
	if err != nil {
		return fmt.Errorf("set cancellation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) SetCalendarEventID(ctx context.Context, id uuid.UUID, eventID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET calendar_event_id = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, eventID)
	if err != nil {
		return fmt.Errorf("set calendar event id: %w", err)
	}
	return nil
}

func (r *PgRepository) AppendHistory(ctx context.Context, h HistoryEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_history (appointment_id, action, actor, note, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, h.AppointmentID, h.Action, h.Actor, h.Note, nullableTime(h.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

func (r *PgRepository) ListHistory(ctx context.Context, appointmentID uuid.UUID) ([]HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, action, actor, note, created_at
		FROM appointment_history
		WHERE appointment_id = $1
		ORDER BY id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.AppointmentID, &h.Action, &h.Actor, &h.Note, &h.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	return result, rows.Err()
}

func (r *PgRepository) AppendReminderRecord(ctx context.Context, rec ReminderRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_reminders (appointment_id, type, method, status, error, sent_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
	`, rec.AppointmentID, rec.Type, rec.Method, rec.Status, rec.Error, nullableTime(rec.SentAt))
	if err != nil {
		return fmt.Errorf("insert reminder record: %w", err)
	}
	return nil
}

func (r *PgRepository) ListReminderRecords(ctx context.Context, appointmentID uuid.UUID) ([]ReminderRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, type, method, status, error, sent_at
		FROM appointment_reminders
		WHERE appointment_id = $1
		ORDER BY id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ReminderRecord
	for rows.Next() {
		var rec ReminderRecord
		if err := rows.Scan(&rec.ID, &rec.AppointmentID, &rec.Type, &rec.Method, &rec.Status, &rec.Error, &rec.SentAt); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListUpcoming(ctx context.Context, from, to time.Time, statuses []Status) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE scheduled_at >= $1
		  AND scheduled_at < $2
		  AND status = ANY($3)
		ORDER BY scheduled_at
	`, from, to, statusStrings(statuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
