package main

// Shared test doubles for the app-level tests. All of them override
// package-level seams or App fields; tests using them must not run in
// parallel.

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"snaplock/internal/config"
	"snaplock/internal/input"
	"snaplock/internal/shortcut"
)

// capturedEvent is one runtime event recorded by captureRuntimeEvents.
type capturedEvent struct {
	name    string
	payload any
}

// eventRecorder collects runtime events emitted through the seam.
type eventRecorder struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (r *eventRecorder) byName(name string) []capturedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []capturedEvent
	for _, ev := range r.events {
		if ev.name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// captureRuntimeEvents swaps runtimeEventsEmitFn for a recorder and restores
// it on cleanup.
func captureRuntimeEvents(t *testing.T) *eventRecorder {
	t.Helper()
	rec := &eventRecorder{}
	orig := runtimeEventsEmitFn
	t.Cleanup(func() { runtimeEventsEmitFn = orig })
	runtimeEventsEmitFn = func(_ context.Context, name string, data ...any) {
		var payload any
		if len(data) > 0 {
			payload = data[0]
		}
		rec.mu.Lock()
		rec.events = append(rec.events, capturedEvent{name: name, payload: payload})
		rec.mu.Unlock()
	}
	return rec
}

// fakeHotkeyWatcher implements input.Watcher. RegisterHotkey hands out
// zero-value handles; the app tracks the active binding itself.
type fakeHotkeyWatcher struct {
	mu          sync.Mutex
	registered  []shortcut.Binding
	triggers    map[string]func()
	unregisters int
	refuse      map[string]error // binding string -> registration error

	events       chan input.Event
	subscribeErr error
}

func newFakeHotkeyWatcher() *fakeHotkeyWatcher {
	return &fakeHotkeyWatcher{
		refuse:   map[string]error{},
		triggers: map[string]func(){},
	}
}

func (w *fakeHotkeyWatcher) Subscribe() (<-chan input.Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.subscribeErr != nil {
		return nil, w.subscribeErr
	}
	w.events = make(chan input.Event, 8)
	return w.events, nil
}

func (w *fakeHotkeyWatcher) Unsubscribe() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.events != nil {
		close(w.events)
		w.events = nil
	}
}

// sendEvent injects one activity event into the live subscription.
func (w *fakeHotkeyWatcher) sendEvent(ev input.Event) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.events == nil {
		return false
	}
	w.events <- ev
	return true
}

func (w *fakeHotkeyWatcher) RegisterHotkey(binding shortcut.Binding, onTrigger func()) (*input.HotkeyHandle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err, refused := w.refuse[binding.String()]; refused {
		return nil, err
	}
	w.registered = append(w.registered, binding)
	w.triggers[binding.String()] = onTrigger
	return &input.HotkeyHandle{}, nil
}

func (w *fakeHotkeyWatcher) UnregisterHotkey(*input.HotkeyHandle) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.unregisters++
	return nil
}

func (w *fakeHotkeyWatcher) registeredBindings() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.registered))
	for i, b := range w.registered {
		out[i] = b.String()
	}
	return out
}

func (w *fakeHotkeyWatcher) unregisterCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.unregisters
}

// fakeCaptureService implements monitor.CaptureService.
type fakeCaptureService struct {
	mu       sync.Mutex
	calls    int
	cameraID int
	saveDir  string
	err      error
}

func (f *fakeCaptureService) Capture(_ context.Context, cameraID int, saveDir string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.cameraID = cameraID
	f.saveDir = saveDir
	if f.err != nil {
		return "", f.err
	}
	return filepath.Join(saveDir, "capture.jpg"), nil
}

// fakeLocker implements lock.Locker.
type fakeLocker struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeLocker) Lock(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeLocker) lockCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeNotifier implements notify.Notifier and records posted notifications.
type fakeNotifier struct {
	mu    sync.Mutex
	notes []string
}

func (f *fakeNotifier) Notify(title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, title+": "+body)
	return nil
}

func (f *fakeNotifier) posted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.notes...)
}

// newTestApp builds an App with a fake watcher and notifier, a ready runtime
// context and a real config file under t.TempDir so commitConfigChange can
// persist.
func newTestApp(t *testing.T) (*App, *fakeHotkeyWatcher) {
	t.Helper()
	watcher := newFakeHotkeyWatcher()
	app := NewApp()
	app.watcher = watcher
	app.notifier = &fakeNotifier{}
	app.setRuntimeContext(context.Background())
	app.configPath = filepath.Join(t.TempDir(), "config.yaml")

	cfg := config.DefaultConfig()
	app.setConfigSnapshot(cfg)
	app.settingsDraft = config.NewDraft(cfg)
	return app, watcher
}
