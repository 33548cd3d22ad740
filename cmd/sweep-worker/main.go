package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clinova/scheduling-core/internal/appointment"
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

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("sweep-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running sweep worker in env=%s interval=%s", cfg.Env, cfg.SweepInterval)

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
	wlSweeper.Start(rootCtx)

	<-rootCtx.Done()

	log.Println("shutdown signal received, stopping sweep worker")
	reminderSched.Stop()
	wlSweeper.Stop()
}
