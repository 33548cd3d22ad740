// Package besteffort wraps side effects whose failure must not roll back
// the primary state transition they are attached to (calendar sync,
// notification sends). Failures are captured into an Outcome instead of
// being silently discarded, so callers can log and count them.
package besteffort

import (
	"context"
	"log"
	"time"
)

type Outcome struct {
	Name    string
	OK      bool
	Err     error
	Elapsed time.Duration
}

// Runner executes best-effort operations with a bounded timeout and hands
// every outcome to the observe hook (typically a metrics counter).
type Runner struct {
	timeout time.Duration
	observe func(Outcome)
}

func NewRunner(timeout time.Duration, observe func(Outcome)) *Runner {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Runner{timeout: timeout, observe: observe}
}

// Do runs fn and reports its outcome. It never returns an error: the caller
// has already committed the primary transition and only needs the result
// for observability.
func (r *Runner) Do(ctx context.Context, name string, fn func(ctx context.Context) error) Outcome {
	start := time.Now()

	opCtx, cancel := context.WithTimeout(ctx, r.timeout)
	err := fn(opCtx)
	cancel()

	out := Outcome{
		Name:    name,
		OK:      err == nil,
		Err:     err,
		Elapsed: time.Since(start),
	}

	if err != nil {
		log.Printf("best-effort %s failed after %s: %v", name, out.Elapsed, err)
	}
	if r.observe != nil {
		r.observe(out)
	}

	return out
}
