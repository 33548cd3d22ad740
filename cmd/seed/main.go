package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinova/scheduling-core/internal/db"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	clinicID, err := seedClinic(context.Background(), pool)
	if err != nil {
		log.Fatalf("seed clinic: %v", err)
	}
	specialtyIDs, err := seedSpecialties(context.Background(), pool)
	if err != nil {
		log.Fatalf("seed specialties: %v", err)
	}
	doctorIDs, err := seedDoctors(context.Background(), pool, clinicID, specialtyIDs, 40)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedWaitlist(context.Background(), pool, clinicID, specialtyIDs, doctorIDs, 300); err != nil {
		log.Fatalf("seed waitlist: %v", err)
	}

	log.Println("seed complete")
}

func seedClinic(ctx context.Context, pool *pgxpool.Pool) (uuid.UUID, error) {
	id := uuid.New()
	_, err := pool.Exec(ctx, `
		INSERT INTO clinics (id, name, work_start_hour, work_end_hour, slot_minutes, created_at, updated_at)
		VALUES ($1, $2, 8, 18, 30, now(), now())
	`, id, gofakeit.Company()+" Clinic")
	if err != nil {
		return uuid.Nil, err
	}
	log.Println("clinic seeded")
	return id, nil
}

func seedSpecialties(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	log.Printf("seeding %d specialties", len(specialties))

	ids := make([]uuid.UUID, 0, len(specialties))
	for _, name := range specialties {
		id := uuid.New()
		_, err := pool.Exec(ctx, `
			INSERT INTO specialties (id, name)
			VALUES ($1, $2)
		`, id, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	log.Println("specialties seeded")
	return ids, nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, clinicID uuid.UUID, specialtyIDs []uuid.UUID, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		specialty := specialtyIDs[gofakeit.Number(0, len(specialtyIDs)-1)]
		calendarID := gofakeit.UUID()

		// Mon-Fri, with an occasional Saturday doctor.
		days := []int32{1, 2, 3, 4, 5}
		if gofakeit.Number(0, 4) == 0 {
			days = append(days, 6)
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, clinic_id, specialty_id, name, working_days, calendar_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		`, id, clinicID, specialty, name, days, calendarID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("doctors seeded")
	return ids, nil
}

func seedWaitlist(ctx context.Context, pool *pgxpool.Pool, clinicID uuid.UUID, specialtyIDs, doctorIDs []uuid.UUID, count int) error {
	log.Printf("seeding %d waitlist entries", count)

	priorities := []string{"low", "normal", "normal", "normal", "high", "urgent"}

	const batchSize = 100

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			specialty := specialtyIDs[gofakeit.Number(0, len(specialtyIDs)-1)]
			priority := priorities[gofakeit.Number(0, len(priorities)-1)]
			email := gofakeit.Email()

			// Roughly half the entries want a specific doctor.
			var doctorID *uuid.UUID
			if gofakeit.Bool() {
				d := doctorIDs[gofakeit.Number(0, len(doctorIDs)-1)]
				doctorID = &d
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO waitlist_entries (
					id, clinic_id, specialty_id, doctor_id,
					patient_name, patient_phone, patient_email,
					priority, status, position, expires_at, created_at, updated_at
				)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'active', 0, now() + interval '30 days', now(), now())
			`, id, clinicID, specialty, doctorID,
				gofakeit.Name(), gofakeit.Phone(), &email, priority)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("waitlist entries seeded: %d/%d", end, count)
	}

	log.Println("waitlist seeded")
	return nil
}
