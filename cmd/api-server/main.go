package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clinova/scheduling-core/internal/api"
	"github.com/clinova/scheduling-core/internal/appointment"
	"github.com/clinova/scheduling-core/internal/availability"
	"github.com/clinova/scheduling-core/internal/besteffort"
	"github.com/clinova/scheduling-core/internal/calendar"
	"github.com/clinova/scheduling-core/internal/config"
	"github.com/clinova/scheduling-core/internal/db"
	"github.com/clinova/scheduling-core/internal/notify"
	"github.com/clinova/scheduling-core/internal/observability/metrics"
	"github.com/clinova/scheduling-core/internal/redisclient"
	"github.com/clinova/scheduling-core/internal/reminder"
	"github.com/clinova/scheduling-core/internal/waitlist"
)

const version = "0.3.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s timezone=%s", cfg.Env, cfg.HTTPPort, cfg.ClinicTimezone)

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("load clinic timezone: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	schedMetrics := metrics.NewSchedulingMetrics(prometheus.DefaultRegisterer)

	provider := calendar.NewHTTPClient(cfg.CalendarBaseURL, cfg.CalendarToken, cfg.ProviderTimeout)
	effects := besteffort.NewRunner(cfg.ProviderTimeout, func(out besteffort.Outcome) {
		schedMetrics.ObserveBestEffort(out.Name, out.OK)
	})

	var emailSender notify.EmailSender
	if s := notify.NewSendGridSender(cfg.SendGridAPIKey, cfg.EmailFrom, cfg.EmailFromName); s != nil {
		emailSender = s
	}
	var messageSender notify.MessageSender
	if s := notify.NewGatewaySender(cfg.MessageGatewayURL, cfg.MessageGatewayToken, cfg.ProviderTimeout); s != nil {
		messageSender = s
	}

	apptRepo := appointment.NewPgRepository(pgPool)
	apptSvc := appointment.NewService(apptRepo, provider, effects, loc)

	wlRepo := waitlist.NewPgRepository(pgPool)
	wlSvc := waitlist.NewService(wlRepo, emailSender, messageSender, schedMetrics, waitlist.Options{
		TTL:            cfg.WaitlistTTL,
		AntiSpamWindow: cfg.AntiSpamWindow,
		NotifyDelay:    cfg.NotifyDelay,
		CandidateLimit: cfg.CandidateLimit,
	})

	locker := redisclient.NewRedisSweepLocker(rdb, cfg.LockTTL)

	reminderSched := reminder.NewScheduler(
		apptSvc, emailSender, messageSender, schedMetrics, locker,
		cfg.SweepInterval, cfg.ReminderLookahead,
		reminder.DefaultWindows(cfg.Window24hWidth, cfg.Window1hWidth),
	)
	wlSweeper := waitlist.NewSweeper(wlSvc, locker, time.Hour)

	reminderSched.Start(rootCtx)
	defer reminderSched.Stop()
	wlSweeper.Start(rootCtx)
	defer wlSweeper.Stop()

	resolver := availability.NewResolver(provider, loc)
	handlers := api.NewHandlers(apptSvc, wlSvc, resolver, reminderSched, wlSweeper, loc)

	router := api.NewRouter(api.RouterConfig{
		Handlers: handlers,
		PgPool:   pgPool,
		Redis:    rdb,
		Env:      cfg.Env,
		Version:  version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()

	log.Println("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
}
