// Package sessionmon polls the OS session lock state and reports
// lock/unlock transitions. Its main consumer resets the monitoring state
// machine when the user unlocks their workstation.
package sessionmon

import (
	"log/slog"
	"sync"
	"time"
)

const pollInterval = 500 * time.Millisecond

// detectionThreshold is the number of consecutive locked probes required
// before a lock is confirmed. Probing the foreground window flickers during
// normal window switches.
const detectionThreshold = 3

// Monitor runs a single polling goroutine between Start and Stop.
type Monitor struct {
	onUnlocked func()

	// probeFn reports whether the session currently looks locked.
	// Swappable for tests.
	probeFn func() bool

	// interval between probes; tests shorten it.
	interval time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

func New(onUnlocked func()) *Monitor {
	return &Monitor{
		onUnlocked: onUnlocked,
		probeFn:    sessionLocked,
		interval:   pollInterval,
	}
}

// Start launches the polling loop. Starting a running monitor is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.running = true
	go m.run(m.stop, m.done)
	slog.Info("[sessionmon] session monitor started")
}

// Stop terminates the polling loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	stop, done := m.stop, m.done
	m.running = false
	m.mu.Unlock()

	close(stop)
	<-done
	slog.Info("[sessionmon] session monitor stopped")
}

func (m *Monitor) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	wasLocked := false
	lockedStreak := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		locked := m.probeFn()
		switch {
		case locked && !wasLocked:
			lockedStreak++
			if lockedStreak >= detectionThreshold {
				wasLocked = true
				lockedStreak = 0
				slog.Info("[sessionmon] session locked")
			}
		case !locked && wasLocked:
			wasLocked = false
			lockedStreak = 0
			slog.Info("[sessionmon] session unlocked")
			if m.onUnlocked != nil {
				m.onUnlocked()
			}
		default:
			lockedStreak = 0
		}
	}
}
