// Package workerutil supervises long-lived background goroutines: a panicking
// worker is logged, restarted with exponential backoff, and permanently
// stopped after too many consecutive panics.
package workerutil

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	defaultMaxRetries     = 10
)

// RecoveryOptions configures RunWithPanicRecovery. Zero-value numeric fields
// use the defaults above; nil callbacks are no-ops. MaxRetries of 1 means the
// worker runs once and is never restarted.
type RecoveryOptions struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxRetries     int

	// OnPanic is called after each recovered panic, before the backoff wait.
	// attempt is 1-based.
	OnPanic func(worker string, attempt int)
	// OnFatal is called once when MaxRetries is exhausted.
	OnFatal func(worker string, maxRetries int)
	// IsShutdown suppresses restarts during application teardown, where the
	// worker's collaborators may already be gone.
	IsShutdown func() bool
}

func (opts RecoveryOptions) applyDefaults() RecoveryOptions {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	// The backoff sequence must be non-decreasing.
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = opts.InitialBackoff
	}
	return opts
}

// RunWithPanicRecovery launches fn on a wg-tracked goroutine and keeps it
// alive across panics per opts. fn must watch ctx.Done for cancellation; a
// normal return stops the supervision.
func RunWithPanicRecovery(
	ctx context.Context,
	name string,
	wg *sync.WaitGroup,
	fn func(ctx context.Context),
	opts RecoveryOptions,
) {
	opts = opts.applyDefaults()
	wg.Go(func() {
		superviseWorker(ctx, name, fn, opts)
	})
}

func superviseWorker(ctx context.Context, name string, fn func(ctx context.Context), opts RecoveryOptions) {
	delay := opts.InitialBackoff

	for attempt := 0; attempt < opts.MaxRetries; attempt++ {
		panicked := false
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("[worker] recovered from panic",
						"worker", name, "panic", r, "stack", string(debug.Stack()))
					panicked = true
				}
			}()
			fn(ctx)
		}()

		if !panicked || ctx.Err() != nil {
			return
		}
		if opts.IsShutdown != nil && opts.IsShutdown() {
			slog.Info("[worker] shutting down, not restarting", "worker", name)
			return
		}

		slog.Warn("[worker] restarting after panic",
			"worker", name, "attempt", attempt+1, "delay", delay)
		if opts.OnPanic != nil {
			opts.OnPanic(name, attempt+1)
		}

		// No restart follows the final attempt; report fatal without waiting.
		if attempt == opts.MaxRetries-1 {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay = nextBackoff(delay, opts.MaxBackoff)
	}

	slog.Error("[worker] exceeded max retries, giving up",
		"worker", name, "maxRetries", opts.MaxRetries)
	if opts.OnFatal != nil {
		opts.OnFatal(name, opts.MaxRetries)
	}
}

// nextBackoff doubles current up to maxBackoff, guarding int64 overflow.
func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	if current <= 0 {
		return defaultInitialBackoff
	}
	if current >= maxBackoff {
		return maxBackoff
	}
	next := current * 2
	if next > maxBackoff || next < current {
		return maxBackoff
	}
	return next
}
