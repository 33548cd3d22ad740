package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinova/scheduling-core/internal/appointment"
	"github.com/clinova/scheduling-core/internal/availability"
	"github.com/clinova/scheduling-core/internal/calendar"
	"github.com/clinova/scheduling-core/internal/reminder"
	"github.com/clinova/scheduling-core/internal/waitlist"
)

// Handlers bundles the core services the route layer exposes.
type Handlers struct {
	appointments    *appointment.Service
	waitlistQueue   *waitlist.Service
	resolver        *availability.Resolver
	reminders       *reminder.Scheduler
	waitlistSweeper *waitlist.Sweeper
	loc             *time.Location
}

func NewHandlers(appointments *appointment.Service, waitlistQueue *waitlist.Service, resolver *availability.Resolver, reminders *reminder.Scheduler, waitlistSweeper *waitlist.Sweeper, loc *time.Location) *Handlers {
	if loc == nil {
		loc = time.UTC
	}
	return &Handlers{
		appointments:    appointments,
		waitlistQueue:   waitlistQueue,
		resolver:        resolver,
		reminders:       reminders,
		waitlistSweeper: waitlistSweeper,
		loc:             loc,
	}
}

func (h *Handlers) freeSlots(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := parseID(w, chi.URLParam(r, "id"), "doctor_id")
	if !ok {
		return
	}

	dateStr := r.URL.Query().Get("date")
	date, err := time.ParseInLocation(time.DateOnly, dateStr, h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	doctor, err := h.appointments.Doctor(r.Context(), doctorID)
	if err != nil {
		handleError(w, err)
		return
	}
	clinic, err := h.appointments.Clinic(r.Context(), doctor.ClinicID)
	if err != nil {
		handleError(w, err)
		return
	}

	slots, err := h.resolver.FreeSlots(r.Context(), scheduleFor(doctor, clinic), date)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FreeSlotsResponse{
		DoctorID: doctorID,
		Date:     dateStr,
		Slots:    slots,
	})
}

func (h *Handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	clinicID, ok := parseID(w, req.ClinicID, "clinic_id")
	if !ok {
		return
	}
	doctorID, ok := parseID(w, req.DoctorID, "doctor_id")
	if !ok {
		return
	}
	specialtyID, ok := parseID(w, req.SpecialtyID, "specialty_id")
	if !ok {
		return
	}

	date, err := time.ParseInLocation(time.DateOnly, req.Date, h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	doctor, err := h.appointments.Doctor(r.Context(), doctorID)
	if err != nil {
		handleError(w, err)
		return
	}

	// Last-instant availability re-check. Best-effort UX only; the unique
	// index decides the race at insert time.
	if doctor.CalendarID != nil {
		start, perr := scheduledStart(date, req.Time, h.loc)
		if perr == nil {
			free, aerr := h.resolver.SlotAvailable(r.Context(), *doctor.CalendarID, start, req.DurationMinutes)
			if aerr != nil {
				handleError(w, aerr)
				return
			}
			if !free {
				writeError(w, http.StatusConflict, "slot_taken", "slot is no longer available, re-fetch free slots")
				return
			}
		}
	}

	appt, err := h.appointments.Create(r.Context(), appointment.CreateInput{
		ClinicID:        clinicID,
		DoctorID:        doctorID,
		SpecialtyID:     specialtyID,
		PatientName:     req.PatientName,
		PatientPhone:    req.PatientPhone,
		PatientEmail:    req.PatientEmail,
		Date:            date,
		Time:            req.Time,
		DurationMinutes: req.DurationMinutes,
		Actor:           "patient",
	})
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *Handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "appointment_id")
	if !ok {
		return
	}

	appt, err := h.appointments.Get(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handlers) confirmAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "appointment_id")
	if !ok {
		return
	}

	var req ConfirmAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	if req.Actor == "" {
		req.Actor = "patient"
	}

	appt, err := h.appointments.Confirm(r.Context(), id, req.Method, req.Actor)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "appointment_id")
	if !ok {
		return
	}

	var req CancelAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	appt, err := h.appointments.Cancel(r.Context(), id, req.CanceledBy, req.Reason)
	if err != nil {
		handleError(w, err)
		return
	}

	// Promote waiting patients into the freed slot outside the request.
	go h.notifyOpening(appt)

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handlers) notifyOpening(appt *appointment.Appointment) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := h.waitlistQueue.NotifyOpening(ctx, waitlist.Opening{
		ClinicID:    appt.ClinicID,
		DoctorID:    appt.DoctorID,
		SpecialtyID: appt.SpecialtyID,
		Date:        appt.ScheduledDate.Format(time.DateOnly),
		Time:        appt.ScheduledTime,
	})
	if err != nil {
		log.Printf("waitlist promotion for appointment %s: %v", appt.ID, err)
		return
	}
	if n > 0 {
		log.Printf("waitlist promotion for appointment %s notified %d candidates", appt.ID, n)
	}
}

func (h *Handlers) sendManualReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "appointment_id")
	if !ok {
		return
	}

	if err := h.reminders.SendManual(r.Context(), id); err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *Handlers) joinWaitlist(w http.ResponseWriter, r *http.Request) {
	var req JoinWaitlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	clinicID, ok := parseID(w, req.ClinicID, "clinic_id")
	if !ok {
		return
	}
	specialtyID, ok := parseID(w, req.SpecialtyID, "specialty_id")
	if !ok {
		return
	}

	var doctorID *uuid.UUID
	if req.DoctorID != nil && *req.DoctorID != "" {
		id, ok := parseID(w, *req.DoctorID, "doctor_id")
		if !ok {
			return
		}
		doctorID = &id
	}

	entry, err := h.waitlistQueue.Enqueue(r.Context(), waitlist.EnqueueInput{
		ClinicID:        clinicID,
		SpecialtyID:     specialtyID,
		DoctorID:        doctorID,
		PatientName:     req.PatientName,
		PatientPhone:    req.PatientPhone,
		PatientEmail:    req.PatientEmail,
		PreferredDates:  req.PreferredDates,
		PreferredTimes:  req.PreferredTimes,
		PreferredPeriod: req.PreferredPeriod,
		Priority:        waitlist.Priority(req.Priority),
	})
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toWaitlistResponse(entry))
}

func (h *Handlers) getWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "entry_id")
	if !ok {
		return
	}

	entry, err := h.waitlistQueue.Get(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWaitlistResponse(entry))
}

func (h *Handlers) cancelWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "entry_id")
	if !ok {
		return
	}

	entry, err := h.waitlistQueue.Cancel(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWaitlistResponse(entry))
}

func (h *Handlers) convertWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"), "entry_id")
	if !ok {
		return
	}

	var req ConvertWaitlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	appointmentID, ok := parseID(w, req.AppointmentID, "appointment_id")
	if !ok {
		return
	}

	entry, err := h.waitlistQueue.ConvertToAppointment(r.Context(), id, appointmentID)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWaitlistResponse(entry))
}

func (h *Handlers) runReminderSweep(w http.ResponseWriter, r *http.Request) {
	if err := h.reminders.SweepOnce(r.Context()); err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{Sweep: "reminders", Status: "ok"})
}

func (h *Handlers) runWaitlistSweep(w http.ResponseWriter, r *http.Request) {
	n, err := h.waitlistSweeper.SweepOnce(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{Sweep: "waitlist", Expired: n, Status: "ok"})
}

// Helpers

func parseID(w http.ResponseWriter, raw, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func scheduleFor(d *appointment.Doctor, c *appointment.Clinic) availability.Schedule {
	sched := availability.Schedule{
		WorkingDays: make([]time.Weekday, 0, len(d.WorkingDays)),
		StartHour:   c.WorkStartHour,
		EndHour:     c.WorkEndHour,
		SlotMinutes: c.SlotMinutes,
	}
	for _, day := range d.WorkingDays {
		sched.WorkingDays = append(sched.WorkingDays, time.Weekday(day))
	}
	if d.StartHour != nil {
		sched.StartHour = *d.StartHour
	}
	if d.EndHour != nil {
		sched.EndHour = *d.EndHour
	}
	if d.SlotMinutes != nil {
		sched.SlotMinutes = *d.SlotMinutes
	}
	if d.CalendarID != nil {
		sched.CalendarID = *d.CalendarID
	}
	return sched
}

func scheduledStart(date time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("15:04", hhmm, loc)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := date.In(loc).Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc), nil
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		ClinicID:        a.ClinicID,
		DoctorID:        a.DoctorID,
		SpecialtyID:     a.SpecialtyID,
		PatientName:     a.PatientName,
		Date:            a.ScheduledDate.Format(time.DateOnly),
		Time:            a.ScheduledTime,
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		Confirmed:       a.Confirmed,
		ConfirmedAt:     a.ConfirmedAt,
		CanceledBy:      a.CanceledBy,
		CancelReason:    a.CancelReason,
	}
}

func toWaitlistResponse(e *waitlist.Entry) WaitlistEntryResponse {
	return WaitlistEntryResponse{
		ID:          e.ID,
		SpecialtyID: e.SpecialtyID,
		DoctorID:    e.DoctorID,
		Priority:    string(e.Priority),
		Status:      string(e.Status),
		Position:    e.Position,
		ExpiresAt:   e.ExpiresAt,
	}
}

func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrValidation) || errors.Is(err, waitlist.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, appointment.ErrClinicNotFound),
		errors.Is(err, appointment.ErrDoctorNotFound),
		errors.Is(err, appointment.ErrSpecialtyNotFound),
		errors.Is(err, appointment.ErrAppointmentNotFound),
		errors.Is(err, waitlist.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", "slot was booked concurrently, re-fetch free slots")
	case errors.Is(err, appointment.ErrInvalidTransition) || errors.Is(err, waitlist.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, calendar.ErrAuthRequired):
		writeError(w, http.StatusBadGateway, "calendar_auth_required", err.Error())
	case errors.Is(err, calendar.ErrProviderUnavailable):
		writeError(w, http.StatusBadGateway, "calendar_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
