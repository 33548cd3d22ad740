package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinova/scheduling-core/internal/appointment"
	"github.com/clinova/scheduling-core/internal/calendar"
	"github.com/clinova/scheduling-core/internal/waitlist"
)

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusConflict, "slot_taken", "slot was booked concurrently")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "slot_taken", body.Error)
	assert.Equal(t, "slot was booked concurrently", body.Details)
}

func TestHandleErrorMapping(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{fmt.Errorf("%w: name required", appointment.ErrValidation), http.StatusBadRequest, "validation_failed"},
		{fmt.Errorf("%w: bad priority", waitlist.ErrValidation), http.StatusBadRequest, "validation_failed"},
		{appointment.ErrClinicNotFound, http.StatusNotFound, "not_found"},
		{appointment.ErrDoctorNotFound, http.StatusNotFound, "not_found"},
		{appointment.ErrAppointmentNotFound, http.StatusNotFound, "not_found"},
		{waitlist.ErrEntryNotFound, http.StatusNotFound, "not_found"},
		{appointment.ErrSlotTaken, http.StatusConflict, "slot_taken"},
		{fmt.Errorf("%w: cannot confirm canceled", appointment.ErrInvalidTransition), http.StatusConflict, "invalid_transition"},
		{fmt.Errorf("%w: cannot convert scheduled", waitlist.ErrInvalidTransition), http.StatusConflict, "invalid_transition"},
		{calendar.ErrAuthRequired, http.StatusBadGateway, "calendar_auth_required"},
		{fmt.Errorf("query busy intervals: %w", calendar.ErrProviderUnavailable), http.StatusBadGateway, "calendar_unavailable"},
		{fmt.Errorf("connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.wantCode+"/"+tc.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleError(rec, tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.wantCode, body.Error)
		})
	}
}

func TestParseID(t *testing.T) {
	rec := httptest.NewRecorder()
	_, ok := parseID(rec, "not-a-uuid", "doctor_id")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_doctor_id", body.Error)

	rec = httptest.NewRecorder()
	_, ok = parseID(rec, "7b1f5cc1-4cb9-4c2a-91de-7e8f60f4f1a0", "doctor_id")
	assert.True(t, ok)
}

func TestScheduleForMergesDoctorOverrides(t *testing.T) {
	clinic := &appointment.Clinic{WorkStartHour: 8, WorkEndHour: 18, SlotMinutes: 30}

	doctor := &appointment.Doctor{WorkingDays: []int{1, 3, 5}}
	sched := scheduleFor(doctor, clinic)
	assert.Equal(t, 8, sched.StartHour)
	assert.Equal(t, 18, sched.EndHour)
	assert.Equal(t, 30, sched.SlotMinutes)
	assert.Empty(t, sched.CalendarID)

	start, end, slot := 10, 14, 45
	calID := "cal-7"
	doctor = &appointment.Doctor{
		WorkingDays: []int{2, 4},
		StartHour:   &start,
		EndHour:     &end,
		SlotMinutes: &slot,
		CalendarID:  &calID,
	}
	sched = scheduleFor(doctor, clinic)
	assert.Equal(t, 10, sched.StartHour)
	assert.Equal(t, 14, sched.EndHour)
	assert.Equal(t, 45, sched.SlotMinutes)
	assert.Equal(t, "cal-7", sched.CalendarID)
}
