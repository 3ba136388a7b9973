package monitor

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"snaplock/internal/config"
	"snaplock/internal/input"
	"snaplock/internal/journal"
	"snaplock/internal/shortcut"
)

type fakeWatcher struct {
	mu         sync.Mutex
	ch         chan input.Event
	closed     bool
	subErr     error
	subCount   int
	unsubCount int
}

func (w *fakeWatcher) Subscribe() (<-chan input.Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.subErr != nil {
		return nil, w.subErr
	}
	w.subCount++
	w.ch = make(chan input.Event, 64)
	w.closed = false
	return w.ch, nil
}

func (w *fakeWatcher) Unsubscribe() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.unsubCount++
	if w.ch != nil && !w.closed {
		close(w.ch)
		w.closed = true
	}
}

func (w *fakeWatcher) RegisterHotkey(shortcut.Binding, func()) (*input.HotkeyHandle, error) {
	return nil, nil
}
func (w *fakeWatcher) UnregisterHotkey(*input.HotkeyHandle) error { return nil }

// emit injects an event, dropping it if the stream is already closed, the
// same way a real hook thread's events vanish after unsubscribing.
func (w *fakeWatcher) emit(kind input.Kind) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ch == nil || w.closed {
		return
	}
	select {
	case w.ch <- input.Event{Kind: kind, At: time.Now()}:
	default:
	}
}

type fakeCamera struct {
	mu    sync.Mutex
	calls int
	ids   []int
	dirs  []string
	err   error
}

func (c *fakeCamera) Capture(ctx context.Context, cameraID int, saveDir string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.ids = append(c.ids, cameraID)
	c.dirs = append(c.dirs, saveDir)
	if c.err != nil {
		return "", c.err
	}
	return saveDir + "/snaplock_capture_test.jpg", nil
}

func (c *fakeCamera) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeLocker struct {
	mu    sync.Mutex
	calls int
	err   error

	// blockUntilCancel makes Lock hang until its context is cancelled,
	// imitating an OS lock call that never returns.
	blockUntilCancel bool
}

func (l *fakeLocker) Lock(ctx context.Context) error {
	if l.blockUntilCancel {
		<-ctx.Done()
		l.mu.Lock()
		l.calls++
		l.mu.Unlock()
		return ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.err
}

func (l *fakeLocker) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *fakeNotifier) Notify(title, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return nil
}

type fakeJournal struct {
	mu       sync.Mutex
	cameras  []int
	triggers []string
	captures []string
	ends     []string

	// When beginGate is set, BeginCycle signals beginEntered and then blocks
	// until beginGate is closed. Both must be set before the controller runs.
	beginGate    chan struct{}
	beginEntered chan struct{}
}

func (j *fakeJournal) BeginCycle(_ context.Context, cameraID int) (string, error) {
	if j.beginGate != nil {
		j.beginEntered <- struct{}{}
		<-j.beginGate
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cameras = append(j.cameras, cameraID)
	return "cycle-1", nil
}
func (j *fakeJournal) RecordTrigger(_ context.Context, _, kind string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.triggers = append(j.triggers, kind)
	return nil
}
func (j *fakeJournal) RecordCapture(_ context.Context, _, path string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.captures = append(j.captures, path)
	return nil
}
func (j *fakeJournal) EndCycle(_ context.Context, _, reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ends = append(j.ends, reason)
	return nil
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

type harness struct {
	controller *Controller
	watcher    *fakeWatcher
	camera     *fakeCamera
	locker     *fakeLocker
	notifier   *fakeNotifier
	journal    *fakeJournal
	recorder   *stateRecorder
	settings   Settings
	settingsMu sync.Mutex
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		watcher:  &fakeWatcher{},
		camera:   &fakeCamera{},
		locker:   &fakeLocker{},
		notifier: &fakeNotifier{},
		journal:  &fakeJournal{},
		recorder: &stateRecorder{},
		settings: Settings{
			SavePath:          "/tmp/out",
			PostTriggerAction: config.CaptureAndLock,
		},
	}
	h.controller = New(Deps{
		Watcher:      h.watcher,
		Camera:       h.camera,
		Locker:       h.locker,
		Notifier:     h.notifier,
		Journal:      h.journal,
		Settings:     h.currentSettings,
		OnState:      h.recorder.record,
		PrepareDelay: 5 * time.Millisecond,
		LockTimeout:  50 * time.Millisecond,
	})
	return h
}

func (h *harness) currentSettings() Settings {
	h.settingsMu.Lock()
	defer h.settingsMu.Unlock()
	return h.settings
}

func (h *harness) setSettings(s Settings) {
	h.settingsMu.Lock()
	defer h.settingsMu.Unlock()
	h.settings = s
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func (h *harness) waitForState(t *testing.T, want State) {
	t.Helper()
	waitFor(t, func() bool { return h.controller.Status() == want },
		"timed out waiting for state "+want.String())
}

func TestArmOnlyFromIdle(t *testing.T) {
	h := newHarness(t)

	if err := h.controller.Arm(2); err != nil {
		t.Fatalf("Arm from Idle: %v", err)
	}
	if got := h.controller.Status(); got != StatePreparing {
		t.Fatalf("state after Arm = %v, want preparing", got)
	}
	if err := h.controller.Arm(2); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Arm from Preparing err = %v, want ErrInvalidState", err)
	}

	h.waitForState(t, StateActive)
	if err := h.controller.Arm(2); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Arm from Active err = %v, want ErrInvalidState", err)
	}
}

func TestCountdownLeadsToActiveStatusSequence(t *testing.T) {
	h := newHarness(t)

	if err := h.controller.Arm(2); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	h.waitForState(t, StateActive)

	states := h.recorder.snapshot()
	if len(states) < 2 || states[0] != StatePreparing || states[1] != StateActive {
		t.Errorf("status sequence = %v, want [preparing active ...]", states)
	}
	if h.watcher.subCount != 1 {
		t.Errorf("subscribe count = %d, want 1", h.watcher.subCount)
	}
}

func TestDisarmDuringCountdownCancelsTimer(t *testing.T) {
	h := newHarness(t)

	if err := h.controller.Arm(2); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	if err := h.controller.Disarm(); err != nil {
		t.Fatalf("Disarm: %v", err)
	}
	if got := h.controller.Status(); got != StateIdle {
		t.Fatalf("state after Disarm = %v, want idle", got)
	}

	// The stale timer must not fire into the new cycle.
	time.Sleep(30 * time.Millisecond)
	if got := h.controller.Status(); got != StateIdle {
		t.Errorf("state after stale countdown = %v, want idle", got)
	}
	if h.watcher.subCount != 0 {
		t.Errorf("watcher subscribed despite disarm, count = %d", h.watcher.subCount)
	}
}

func TestDisarmFromIdleIsInvalid(t *testing.T) {
	h := newHarness(t)
	if err := h.controller.Disarm(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Disarm from Idle err = %v, want ErrInvalidState", err)
	}
}

func TestEventFloodTriggersPipelineExactlyOnce(t *testing.T) {
	h := newHarness(t)

	if err := h.controller.Arm(2); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	h.waitForState(t, StateActive)

	for i := 0; i < 20; i++ {
		h.watcher.emit(input.KindKeyboard)
	}
	h.waitForState(t, StateIdle)

	if got := h.camera.callCount(); got != 1 {
		t.Errorf("capture calls = %d, want 1", got)
	}
	if got := h.locker.callCount(); got != 1 {
		t.Errorf("lock calls = %d, want 1", got)
	}

	idleCount := 0
	for _, s := range h.recorder.snapshot() {
		if s == StateIdle {
			idleCount++
		}
	}
	if idleCount != 1 {
		t.Errorf("idle transitions = %d, want 1", idleCount)
	}
}

func TestCaptureFailureDoesNotSuppressLock(t *testing.T) {
	h := newHarness(t)
	h.camera.err = errors.New("camera unavailable")

	if err := h.controller.Arm(2); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	h.waitForState(t, StateActive)
	h.watcher.emit(input.KindMouse)
	h.waitForState(t, StateIdle)

	if got := h.locker.callCount(); got != 1 {
		t.Errorf("lock calls = %d, want 1 despite capture failure", got)
	}
}

func TestCaptureOnlySkipsLock(t *testing.T) {
	h := newHarness(t)
	h.setSettings(Settings{
		SavePath:          "/tmp/out",
		PostTriggerAction: config.CaptureOnly,
	})

	if err := h.controller.Arm(2); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	h.waitForState(t, StateActive)
	h.watcher.emit(input.KindKeyboard)
	h.waitForState(t, StateIdle)

	if got := h.camera.callCount(); got != 1 {
		t.Errorf("capture calls = %d, want 1", got)
	}
	if got := h.locker.callCount(); got != 0 {
		t.Errorf("lock calls = %d, want 0 for capture-only", got)
	}
}

func TestLockFailureStillReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	h.locker.err = errors.New("lock refused")

	if err := h.controller.Arm(2); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	h.waitForState(t, StateActive)
	h.watcher.emit(input.KindKeyboard)
	h.waitForState(t, StateIdle)
}

func TestExitOnLockTerminatesProcess(t *testing.T) {
	h := newHarness(t)
	h.setSettings(Settings{
		SavePath:          "/tmp/out",
		ExitOnLock:        true,
		PostTriggerAction: config.CaptureAndLock,
	})

	exited := make(chan int, 1)
	prev := exitFn
	exitFn = func(code int) { exited <- code }
	defer func() { exitFn = prev }()

	if err := h.controller.Arm(2); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	h.waitForState(t, StateActive)
	h.watcher.emit(input.KindKeyboard)

	select {
	case code := <-exited:
		if code != 0 {
			t.Errorf("exit code = %d, want 0", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("process exit was not requested")
	}
	if got := h.locker.callCount(); got != 1 {
		t.Errorf("lock calls = %d, want lock before exit", got)
	}
}

func TestDisarmWhileActiveStopsWatch(t *testing.T) {
	h := newHarness(t)

	if err := h.controller.Arm(2); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	h.waitForState(t, StateActive)
	if err := h.controller.Disarm(); err != nil {
		t.Fatalf("Disarm: %v", err)
	}

	h.watcher.emit(input.KindKeyboard)
	time.Sleep(20 * time.Millisecond)
	if got := h.camera.callCount(); got != 0 {
		t.Errorf("capture calls after disarm = %d, want 0", got)
	}
	if h.watcher.unsubCount == 0 {
		t.Error("watcher was not unsubscribed on disarm")
	}
}

func TestSubscribeFailureDisarms(t *testing.T) {
	h := newHarness(t)
	h.watcher.subErr = errors.New("no hooks on this platform")

	if err := h.controller.Arm(2); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	h.waitForState(t, StateIdle)
}

func TestResetToIdle(t *testing.T) {
	h := newHarness(t)

	h.controller.ResetToIdle(journal.EndReasonUnlocked)
	if got := h.controller.Status(); got != StateIdle {
		t.Fatalf("state = %v, want idle", got)
	}

	if err := h.controller.Arm(2); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	h.waitForState(t, StateActive)
	h.controller.ResetToIdle(journal.EndReasonUnlocked)
	if got := h.controller.Status(); got != StateIdle {
		t.Fatalf("state after reset = %v, want idle", got)
	}

	h.journal.mu.Lock()
	ends := append([]string(nil), h.journal.ends...)
	h.journal.mu.Unlock()
	if len(ends) == 0 || ends[len(ends)-1] != journal.EndReasonUnlocked {
		t.Errorf("journal end reasons = %v, want last %q", ends, journal.EndReasonUnlocked)
	}
}

func TestTriggerRecordsJournalTrail(t *testing.T) {
	h := newHarness(t)

	if err := h.controller.Arm(2); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	h.waitForState(t, StateActive)
	h.watcher.emit(input.KindKeyboard)
	h.waitForState(t, StateIdle)

	h.journal.mu.Lock()
	defer h.journal.mu.Unlock()
	if len(h.journal.triggers) != 1 || h.journal.triggers[0] != "keyboard" {
		t.Errorf("journaled triggers = %v, want [keyboard]", h.journal.triggers)
	}
	if len(h.journal.captures) != 1 {
		t.Errorf("journaled captures = %v, want one entry", h.journal.captures)
	}
	if len(h.journal.ends) != 1 || h.journal.ends[0] != journal.EndReasonTriggered {
		t.Errorf("journal end reasons = %v, want [%s]", h.journal.ends, journal.EndReasonTriggered)
	}
}

func TestCaptureUsesCameraPinnedAtArm(t *testing.T) {
	h := newHarness(t)

	if err := h.controller.Arm(2); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	h.waitForState(t, StateActive)
	// A settings edit mid-cycle must not change the camera in flight.
	h.setSettings(Settings{
		SavePath:          "/tmp/out",
		PostTriggerAction: config.CaptureAndLock,
	})
	h.watcher.emit(input.KindKeyboard)
	h.waitForState(t, StateIdle)

	h.journal.mu.Lock()
	cams := append([]int(nil), h.journal.cameras...)
	h.journal.mu.Unlock()
	if len(cams) != 1 || cams[0] != 2 {
		t.Errorf("journaled cycle cameras = %v, want [2]", cams)
	}

	h.camera.mu.Lock()
	defer h.camera.mu.Unlock()
	if len(h.camera.ids) != 1 || h.camera.ids[0] != 2 {
		t.Errorf("capture camera ids = %v, want [2]", h.camera.ids)
	}
	if len(h.camera.dirs) != 1 || h.camera.dirs[0] != "/tmp/out" {
		t.Errorf("capture dirs = %v, want [/tmp/out]", h.camera.dirs)
	}
}

func TestHungLockerStillReachesIdle(t *testing.T) {
	h := newHarness(t)
	h.locker.blockUntilCancel = true

	if err := h.controller.Arm(2); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	h.waitForState(t, StateActive)
	h.watcher.emit(input.KindKeyboard)
	h.waitForState(t, StateIdle)

	if got := h.locker.callCount(); got != 1 {
		t.Errorf("lock calls = %d, want 1", got)
	}
	h.journal.mu.Lock()
	ends := append([]string(nil), h.journal.ends...)
	h.journal.mu.Unlock()
	if len(ends) != 1 || ends[0] != journal.EndReasonTriggered {
		t.Errorf("journal end reasons = %v, want [%s]", ends, journal.EndReasonTriggered)
	}
}

func TestHungLockerStillExitsWhenConfigured(t *testing.T) {
	h := newHarness(t)
	h.locker.blockUntilCancel = true
	h.setSettings(Settings{
		SavePath:          "/tmp/out",
		ExitOnLock:        true,
		PostTriggerAction: config.CaptureAndLock,
	})

	exited := make(chan int, 1)
	prev := exitFn
	exitFn = func(code int) { exited <- code }
	defer func() { exitFn = prev }()

	if err := h.controller.Arm(2); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	h.waitForState(t, StateActive)
	h.watcher.emit(input.KindKeyboard)

	select {
	case code := <-exited:
		if code != 0 {
			t.Errorf("exit code = %d, want 0", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline hung on the lock call instead of exiting")
	}
}

func TestTriggerStatusSequenceHasNoDuplicateActive(t *testing.T) {
	h := newHarness(t)

	if err := h.controller.Arm(2); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	h.waitForState(t, StateActive)
	h.watcher.emit(input.KindKeyboard)
	h.waitForState(t, StateIdle)

	got := h.recorder.snapshot()
	want := []State{StatePreparing, StateActive, StateIdle}
	if !slices.Equal(got, want) {
		t.Errorf("status sequence = %v, want %v", got, want)
	}
}

func TestDisarmDuringJournalBeginClosesCycle(t *testing.T) {
	h := newHarness(t)
	h.journal.beginGate = make(chan struct{})
	h.journal.beginEntered = make(chan struct{}, 1)

	armErr := make(chan error, 1)
	go func() { armErr <- h.controller.Arm(2) }()
	<-h.journal.beginEntered

	if err := h.controller.Disarm(); err != nil {
		t.Fatalf("Disarm: %v", err)
	}
	close(h.journal.beginGate)
	if err := <-armErr; err != nil {
		t.Fatalf("Arm: %v", err)
	}

	if got := h.controller.Status(); got != StateIdle {
		t.Fatalf("state = %v, want idle", got)
	}
	h.journal.mu.Lock()
	ends := append([]string(nil), h.journal.ends...)
	h.journal.mu.Unlock()
	if len(ends) != 1 || ends[0] != journal.EndReasonDisarmed {
		t.Errorf("journal end reasons = %v, want [%s]", ends, journal.EndReasonDisarmed)
	}
}
