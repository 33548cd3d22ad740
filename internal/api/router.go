package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type RouterConfig struct {
	Handlers *Handlers
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	h := cfg.Handlers

	// Availability
	r.Get("/doctors/{id}/slots", h.freeSlots)

	// Appointment lifecycle
	r.Post("/appointments", h.createAppointment)
	r.Get("/appointments/{id}", h.getAppointment)
	r.Post("/appointments/{id}/confirm", h.confirmAppointment)
	r.Post("/appointments/{id}/cancel", h.cancelAppointment)
	r.Post("/appointments/{id}/reminders", h.sendManualReminder)

	// Waitlist
	r.Post("/waitlist", h.joinWaitlist)
	r.Get("/waitlist/{id}", h.getWaitlistEntry)
	r.Post("/waitlist/{id}/cancel", h.cancelWaitlistEntry)
	r.Post("/waitlist/{id}/convert", h.convertWaitlistEntry)

	// Admin sweep triggers
	r.Post("/admin/sweeps/reminders", h.runReminderSweep)
	r.Post("/admin/sweeps/waitlist", h.runWaitlistSweep)

	return r
}
