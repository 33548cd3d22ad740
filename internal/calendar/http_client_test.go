package calendar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusyIntervals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "/calendars/cal-1/busy", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("from"))
		assert.NotEmpty(t, r.URL.Query().Get("to"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"intervals":[{"start":"2026-03-04T10:00:00Z","end":"2026-03-04T11:00:00Z"}]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "tok-1", time.Second)

	day := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	got, err := c.BusyIntervals(context.Background(), "cal-1", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC), got[0].Start)
}

func TestAuthFailuresMapToErrAuthRequired(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))

		c := NewHTTPClient(srv.URL, "", time.Second)
		day := time.Now()
		_, err := c.BusyIntervals(context.Background(), "cal-1", day, day.AddDate(0, 0, 1))
		assert.True(t, errors.Is(err, ErrAuthRequired), "status %d", code)

		srv.Close()
	}
}

func TestServerErrorsMapToErrProviderUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", time.Second)
	day := time.Now()
	_, err := c.BusyIntervals(context.Background(), "cal-1", day, day.AddDate(0, 0, 1))
	assert.True(t, errors.Is(err, ErrProviderUnavailable))
}

func TestTransportErrorMapsToErrProviderUnavailable(t *testing.T) {
	// Closed server: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewHTTPClient(srv.URL, "", 200*time.Millisecond)
	day := time.Now()
	_, err := c.BusyIntervals(context.Background(), "cal-1", day, day.AddDate(0, 0, 1))
	assert.True(t, errors.Is(err, ErrProviderUnavailable))
}

func TestClientErrorIsNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`bad interval`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", time.Second)
	day := time.Now()
	_, err := c.BusyIntervals(context.Background(), "cal-1", day, day.AddDate(0, 0, 1))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrProviderUnavailable))
	assert.False(t, errors.Is(err, ErrAuthRequired))
	assert.Contains(t, err.Error(), "422")
}

func TestCreateEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/calendars/cal-1/events", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"evt-42"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "tok-1", time.Second)
	id, err := c.CreateEvent(context.Background(), "cal-1", Event{
		Start: time.Now(),
		End:   time.Now().Add(30 * time.Minute),
		Title: "Appointment: Ana Lima",
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-42", id)
}

func TestDeleteEvent(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "tok-1", time.Second)
	require.NoError(t, c.DeleteEvent(context.Background(), "cal-1", "evt-42"))
	assert.Equal(t, "/calendars/cal-1/events/evt-42", gotPath)
}

func TestIntervalOverlaps(t *testing.T) {
	base := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	busy := Interval{Start: base, End: base.Add(time.Hour)}

	cases := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"inside", base.Add(15 * time.Minute), base.Add(45 * time.Minute), true},
		{"straddles start", base.Add(-15 * time.Minute), base.Add(15 * time.Minute), true},
		{"straddles end", base.Add(45 * time.Minute), base.Add(75 * time.Minute), true},
		{"covers", base.Add(-time.Hour), base.Add(2 * time.Hour), true},
		{"ends at busy start", base.Add(-time.Hour), base, false},
		{"starts at busy end", base.Add(time.Hour), base.Add(2 * time.Hour), false},
		{"disjoint", base.Add(3 * time.Hour), base.Add(4 * time.Hour), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, busy.Overlaps(tc.start, tc.end))
		})
	}
}
