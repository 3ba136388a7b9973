// Package monitor owns the arming/trigger state machine: Idle, a countdown
// while Preparing, Active watching for input, and the single-shot trigger
// response pipeline.
//
// Lock ordering: Controller.mu is leaf-level. State change callbacks and all
// collaborator calls (watcher, camera, locker, journal) run outside the lock.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"snaplock/internal/config"
	"snaplock/internal/input"
	"snaplock/internal/journal"
	"snaplock/internal/lock"
)

// prepareDelay is the countdown between arming and active monitoring. It
// gives the user time to take their hands off the keyboard.
const prepareDelay = 2 * time.Second

// lockTimeout bounds the wait for the OS lock call. The pipeline must never
// hang on a lock invocation that does not return.
const lockTimeout = 5 * time.Second

// ErrInvalidState is returned for transition attempts that are illegal in
// the current state, such as arming while already armed.
var ErrInvalidState = errors.New("operation not valid in current monitoring state")

// exitFn indirects process termination for tests.
var exitFn = os.Exit

// State is the monitoring lifecycle state. Owned exclusively by Controller;
// collaborators observe it through Status and the state change callback.
type State uint8

const (
	StateIdle State = iota
	StatePreparing
	StateActive
	StateTriggered
)

func (s State) String() string {
	switch s {
	case StatePreparing:
		return "preparing"
	case StateActive:
		return "active"
	case StateTriggered:
		return "triggered"
	default:
		return "idle"
	}
}

// Settings is the per-trigger configuration snapshot, read once when the
// pipeline starts so concurrent settings changes cannot tear it. The camera
// is not part of it: the camera id is pinned at arm time.
type Settings struct {
	SavePath             string
	ExitOnLock           bool
	PostTriggerAction    config.PostTriggerAction
	NotificationsEnabled bool
}

// CaptureService takes a still image from a camera and returns the path of
// the written file.
type CaptureService interface {
	Capture(ctx context.Context, cameraID int, saveDir string) (string, error)
}

// Notifier posts a desktop notification.
type Notifier interface {
	Notify(title, body string) error
}

// TriggerJournal persists the audit trail of arming cycles. Optional; a nil
// journal disables persistence.
type TriggerJournal interface {
	BeginCycle(ctx context.Context, cameraID int) (string, error)
	RecordTrigger(ctx context.Context, cycleID, kind string) error
	RecordCapture(ctx context.Context, cycleID, path string) error
	EndCycle(ctx context.Context, cycleID, reason string) error
}

// Deps wires the controller's collaborators.
type Deps struct {
	Watcher  input.Watcher
	Camera   CaptureService
	Locker   lock.Locker
	Notifier Notifier
	Journal  TriggerJournal

	// Settings returns the current configuration snapshot.
	Settings func() Settings
	// OnState is invoked after every state change, outside the lock.
	OnState func(State)

	// PrepareDelay overrides the arming countdown when non-zero.
	PrepareDelay time.Duration
	// LockTimeout overrides the bounded wait for the lock call when non-zero.
	LockTimeout time.Duration
}

// Controller serializes all transitions behind a mutex. The countdown timer
// carries a generation number so a timer that survives a disarm cannot fire
// into a newer cycle.
type Controller struct {
	deps     Deps
	delay    time.Duration
	lockWait time.Duration

	mu         sync.Mutex
	state      State
	generation uint64
	cycleID    string
	cameraID   int // pinned for the cycle at arm time

	// triggered is the at-most-once latch for the current arming cycle.
	triggered atomic.Bool
}

func New(deps Deps) *Controller {
	delay := deps.PrepareDelay
	if delay <= 0 {
		delay = prepareDelay
	}
	lockWait := deps.LockTimeout
	if lockWait <= 0 {
		lockWait = lockTimeout
	}
	return &Controller{deps: deps, delay: delay, lockWait: lockWait}
}

// Status returns a snapshot of the current state.
func (c *Controller) Status() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Arm starts an arming cycle: Idle to Preparing, with active monitoring
// beginning after the countdown elapses. cameraID is pinned for the whole
// cycle; settings edits while armed affect only the next cycle's camera.
func (c *Controller) Arm(cameraID int) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrInvalidState
	}
	c.state = StatePreparing
	c.generation++
	gen := c.generation
	c.triggered.Store(false)
	c.cycleID = ""
	c.cameraID = cameraID
	c.mu.Unlock()

	if c.deps.Journal != nil {
		id, err := c.deps.Journal.BeginCycle(context.Background(), cameraID)
		if err != nil {
			slog.Warn("[monitor] journal cycle not recorded", "error", err)
		} else {
			c.mu.Lock()
			stale := c.generation != gen
			if !stale {
				c.cycleID = id
			}
			c.mu.Unlock()
			if stale {
				// A disarm landed while the row was being written; close it
				// here or it would stay open forever.
				if endErr := c.deps.Journal.EndCycle(context.Background(), id, journal.EndReasonDisarmed); endErr != nil {
					slog.Warn("[monitor] journal cycle not closed", "error", endErr)
				}
			}
		}
	}

	time.AfterFunc(c.delay, func() { c.activate(gen) })
	slog.Info("[monitor] armed, countdown started", "delay", c.delay)
	c.emit(StatePreparing)
	return nil
}

// activate fires when the countdown elapses. A stale generation means the
// cycle was disarmed while the timer was pending.
func (c *Controller) activate(gen uint64) {
	c.mu.Lock()
	if c.state != StatePreparing || c.generation != gen {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	events, err := c.deps.Watcher.Subscribe()

	c.mu.Lock()
	if c.state != StatePreparing || c.generation != gen {
		c.mu.Unlock()
		if err == nil {
			c.deps.Watcher.Unsubscribe()
		}
		return
	}
	if err != nil {
		c.state = StateIdle
		c.mu.Unlock()
		slog.Error("[monitor] input subscription failed, disarming", "error", err)
		c.endCycle(journal.EndReasonDisarmed)
		c.emit(StateIdle)
		return
	}
	c.state = StateActive
	c.mu.Unlock()

	go c.consume(events, gen)
	slog.Info("[monitor] active, watching for input")
	c.emit(StateActive)
}

// Disarm cancels the countdown or stops active monitoring. Legal from any
// non-Idle state.
func (c *Controller) Disarm() error {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return ErrInvalidState
	}
	wasActive := c.state == StateActive
	c.state = StateIdle
	c.generation++
	c.mu.Unlock()

	if wasActive {
		c.deps.Watcher.Unsubscribe()
	}
	c.endCycle(journal.EndReasonDisarmed)
	slog.Info("[monitor] disarmed")
	c.emit(StateIdle)
	return nil
}

// ResetToIdle forces the controller back to Idle regardless of state, for
// collaborators reacting to session-level events such as an unlock. A no-op
// when already Idle.
func (c *Controller) ResetToIdle(reason string) {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	wasActive := c.state == StateActive
	c.state = StateIdle
	c.generation++
	c.mu.Unlock()

	if wasActive {
		c.deps.Watcher.Unsubscribe()
	}
	c.endCycle(reason)
	slog.Info("[monitor] reset to idle", "reason", reason)
	c.emit(StateIdle)
}

// consume reads the event stream until the first qualifying event or until
// the stream is closed by an unsubscribe.
func (c *Controller) consume(events <-chan input.Event, gen uint64) {
	for ev := range events {
		if !c.beginTrigger(gen) {
			continue
		}
		// Unsubscribe before the pipeline runs: later events must be
		// dropped, never queued for a second response.
		c.deps.Watcher.Unsubscribe()
		c.runPipeline(ev)
		return
	}
}

// beginTrigger attempts the Active to Triggered transition. The atomic latch
// plus the generation check guarantee at most one success per arming cycle.
func (c *Controller) beginTrigger(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive || c.generation != gen {
		return false
	}
	if !c.triggered.CompareAndSwap(false, true) {
		return false
	}
	c.state = StateTriggered
	return true
}

// runPipeline executes the single-shot trigger response: capture, notify,
// lock, then exit or return to Idle. Capture failure never suppresses the
// lock step.
func (c *Controller) runPipeline(ev input.Event) {
	// No emit here: the last reported state stays "active" until the
	// pipeline lands back in Idle.
	slog.Info("[monitor] trigger", "kind", ev.Kind.String())

	settings := c.deps.Settings()
	ctx := context.Background()

	cycleID, cameraID := c.cycleInfo()
	if c.deps.Journal != nil && cycleID != "" {
		if err := c.deps.Journal.RecordTrigger(ctx, cycleID, ev.Kind.String()); err != nil {
			slog.Warn("[monitor] trigger not journaled", "error", err)
		}
	}

	path, err := c.deps.Camera.Capture(ctx, cameraID, settings.SavePath)
	if err != nil {
		slog.Error("[monitor] evidence capture failed", "camera", cameraID, "error", err)
	} else {
		slog.Info("[monitor] evidence captured", "path", path)
		if c.deps.Journal != nil && cycleID != "" {
			if err := c.deps.Journal.RecordCapture(ctx, cycleID, path); err != nil {
				slog.Warn("[monitor] capture not journaled", "error", err)
			}
		}
	}

	if settings.NotificationsEnabled && c.deps.Notifier != nil {
		if err := c.deps.Notifier.Notify("SnapLock Security Alert", "Unauthorized access detected"); err != nil {
			slog.Warn("[monitor] notification failed", "error", err)
		}
	}

	if settings.PostTriggerAction != config.CaptureOnly {
		lockCtx, cancel := context.WithTimeout(ctx, c.lockWait)
		err := c.deps.Locker.Lock(lockCtx)
		cancel()
		if err != nil {
			slog.Error("[monitor] screen lock failed", "error", err)
		} else {
			slog.Info("[monitor] screen locked")
		}
	}

	c.endCycle(journal.EndReasonTriggered)

	if settings.ExitOnLock {
		slog.Info("[monitor] exit on lock enabled, shutting down")
		exitFn(0)
		return
	}

	c.mu.Lock()
	reset := c.state == StateTriggered
	if reset {
		c.state = StateIdle
	}
	c.mu.Unlock()
	if reset {
		c.emit(StateIdle)
	}
}

func (c *Controller) cycleInfo() (cycleID string, cameraID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycleID, c.cameraID
}

// endCycle closes the journal cycle if one is open.
func (c *Controller) endCycle(reason string) {
	c.mu.Lock()
	id := c.cycleID
	c.cycleID = ""
	c.mu.Unlock()
	if c.deps.Journal == nil || id == "" {
		return
	}
	if err := c.deps.Journal.EndCycle(context.Background(), id, reason); err != nil {
		slog.Warn("[monitor] journal cycle not closed", "error", err)
	}
}

func (c *Controller) emit(s State) {
	if c.deps.OnState != nil {
		c.deps.OnState(s)
	}
}
