package waitlist

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/clinova/scheduling-core/internal/redisclient"
)

// Sweeper periodically expires overdue waitlist entries. Like the reminder
// scheduler it is an explicit long-lived object with Start/Stop, not a
// package-level singleton.
type Sweeper struct {
	svc      *Service
	locker   redisclient.Locker // nil disables leader election
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(svc *Service, locker redisclient.Locker, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{svc: svc, locker: locker, interval: interval}
}

func (w *Sweeper) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done

	// The goroutine closes its local copy; Stop nils the struct fields, so
	// touching them here would race.
	go func() {
		defer close(done)

		w.runOnce(runCtx)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				w.runOnce(runCtx)
			}
		}
	}()
}

func (w *Sweeper) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// SweepOnce runs one expiry pass, behind the leader lock when configured.
func (w *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	if w.locker == nil {
		return w.svc.ExpireSweep(ctx)
	}

	var expired int64
	err := w.locker.WithSweepLock(ctx, "waitlist", func(ctx context.Context) error {
		n, err := w.svc.ExpireSweep(ctx)
		expired = n
		return err
	})
	return expired, err
}

func (w *Sweeper) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()

	n, err := w.SweepOnce(runCtx)
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			log.Println("waitlist sweep skipped, another worker holds the lock")
			return
		}
		w.svc.metrics.ObserveSweepRun("waitlist", false)
		log.Printf("waitlist sweep error: %v", err)
		return
	}
	w.svc.metrics.ObserveSweepRun("waitlist", true)
	if n > 0 {
		log.Printf("waitlist sweep expired %d entries", n)
	}
}
