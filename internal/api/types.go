package api

import (
	"time"

	"github.com/google/uuid"
)

type CreateAppointmentRequest struct {
	ClinicID        string  `json:"clinic_id"`
	DoctorID        string  `json:"doctor_id"`
	SpecialtyID     string  `json:"specialty_id"`
	PatientName     string  `json:"patient_name"`
	PatientPhone    string  `json:"patient_phone"`
	PatientEmail    *string `json:"patient_email,omitempty"`
	Date            string  `json:"date"` // YYYY-MM-DD
	Time            string  `json:"time"` // HH:MM
	DurationMinutes int     `json:"duration_minutes"`
}

type ConfirmAppointmentRequest struct {
	Method string `json:"method"`
	Actor  string `json:"actor,omitempty"`
}

type CancelAppointmentRequest struct {
	CanceledBy string `json:"canceled_by"`
	Reason     string `json:"reason,omitempty"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	ClinicID        uuid.UUID  `json:"clinic_id"`
	DoctorID        uuid.UUID  `json:"doctor_id"`
	SpecialtyID     uuid.UUID  `json:"specialty_id"`
	PatientName     string     `json:"patient_name"`
	Date            string     `json:"date"`
	Time            string     `json:"time"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          string     `json:"status"`
	Confirmed       bool       `json:"confirmed"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`
	CanceledBy      *string    `json:"canceled_by,omitempty"`
	CancelReason    *string    `json:"cancel_reason,omitempty"`
}

type FreeSlotsResponse struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     string    `json:"date"`
	Slots    []string  `json:"slots"`
}

type JoinWaitlistRequest struct {
	ClinicID        string   `json:"clinic_id"`
	SpecialtyID     string   `json:"specialty_id"`
	DoctorID        *string  `json:"doctor_id,omitempty"`
	PatientName     string   `json:"patient_name"`
	PatientPhone    string   `json:"patient_phone"`
	PatientEmail    *string  `json:"patient_email,omitempty"`
	PreferredDates  []string `json:"preferred_dates,omitempty"`
	PreferredTimes  []string `json:"preferred_times,omitempty"`
	PreferredPeriod *string  `json:"preferred_period,omitempty"`
	Priority        string   `json:"priority,omitempty"`
}

type WaitlistEntryResponse struct {
	ID          uuid.UUID  `json:"id"`
	SpecialtyID uuid.UUID  `json:"specialty_id"`
	DoctorID    *uuid.UUID `json:"doctor_id,omitempty"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	Position    int        `json:"position"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

type ConvertWaitlistRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type SweepResponse struct {
	Sweep   string `json:"sweep"`
	Expired int64  `json:"expired,omitempty"`
	Status  string `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
