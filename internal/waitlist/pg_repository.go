package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const entryColumns = `
	id, clinic_id, specialty_id, doctor_id,
	patient_name, patient_phone, patient_email,
	preferred_dates, preferred_times, preferred_period,
	priority, status, position,
	notification_attempts, last_notification_at, notified_at,
	appointment_id, wait_minutes,
	expires_at, created_at, updated_at`

// priorityOrder keeps the queue ordering in one place: priority tier first,
// then FIFO within the tier.
const priorityOrder = `
	CASE priority
		WHEN 'urgent' THEN 0
		WHEN 'high' THEN 1
		WHEN 'normal' THEN 2
		ELSE 3
	END, created_at ASC`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry

	err := row.Scan(
		&e.ID,
		&e.ClinicID,
		&e.SpecialtyID,
		&e.DoctorID,
		&e.PatientName,
		&e.PatientPhone,
		&e.PatientEmail,
		&e.PreferredDates,
		&e.PreferredTimes,
		&e.PreferredPeriod,
		&e.Priority,
		&e.Status,
		&e.Position,
		&e.NotificationAttempts,
		&e.LastNotificationAt,
		&e.NotifiedAt,
		&e.AppointmentID,
		&e.WaitMinutes,
		&e.ExpiresAt,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	return &e, nil
}

func (r *PgRepository) CreateEntry(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO waitlist_entries (
			id, clinic_id, specialty_id, doctor_id,
			patient_name, patient_phone, patient_email,
			preferred_dates, preferred_times, preferred_period,
			priority, status, position, expires_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 0, $13, now(), now())
		RETURNING created_at, updated_at
	`, e.ID, e.ClinicID, e.SpecialtyID, e.DoctorID,
		e.PatientName, e.PatientPhone, e.PatientEmail,
		e.PreferredDates, e.PreferredTimes, e.PreferredPeriod,
		e.Priority, e.Status, e.ExpiresAt)

	if err := row.Scan(&e.CreatedAt, &e.UpdatedAt); err != nil {
		return fmt.Errorf("insert waitlist entry: %w", err)
	}
	return nil
}

func (r *PgRepository) GetEntryByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE id = $1
	`, id)
	return scanEntry(row)
}

func (r *PgRepository) ListCandidates(ctx context.Context, specialtyID uuid.UUID, doctorID *uuid.UUID, limit int, now time.Time) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE specialty_id = $1
		  AND status IN ('active', 'notified')
		  AND expires_at > $3
		  AND ($2::uuid IS NULL OR doctor_id IS NULL OR doctor_id = $2)
		ORDER BY `+priorityOrder+`
		LIMIT $4
	`, specialtyID, doctorID, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

func (r *PgRepository) MarkNotified(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE waitlist_entries
		SET status = 'notified',
		    notified_at = COALESCE(notified_at, $2),
		    last_notification_at = $2,
		    notification_attempts = notification_attempts + 1,
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('active', 'notified')
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *PgRepository) MarkScheduled(ctx context.Context, id uuid.UUID, appointmentID uuid.UUID, waitMinutes int, at time.Time) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE waitlist_entries
		SET status = 'scheduled',
		    appointment_id = $2,
		    wait_minutes = $3,
		    updated_at = $4
		WHERE id = $1
		  AND status IN ('active', 'notified')
		RETURNING `+entryColumns+`
	`, id, appointmentID, waitMinutes, at)
	return scanEntry(row)
}

func (r *PgRepository) MarkCanceled(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE waitlist_entries
		SET status = 'canceled',
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('active', 'notified')
		RETURNING `+entryColumns+`
	`, id)
	return scanEntry(row)
}

func (r *PgRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE waitlist_entries
		SET status = 'expired',
		    updated_at = now()
		WHERE status = 'active'
		  AND expires_at < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("expire waitlist entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) ListActiveCohort(ctx context.Context, specialtyID uuid.UUID, doctorID *uuid.UUID) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE specialty_id = $1
		  AND doctor_id IS NOT DISTINCT FROM $2
		  AND status = 'active'
		ORDER BY `+priorityOrder+`
	`, specialtyID, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

func (r *PgRepository) SetPosition(ctx context.Context, id uuid.UUID, position int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE waitlist_entries
		SET position = $2
		WHERE id = $1
	`, id, position)
	if err != nil {
		return fmt.Errorf("set position: %w", err)
	}
	return nil
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	var result []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}
