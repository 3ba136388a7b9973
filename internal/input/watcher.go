// Package input abstracts the process-wide input listener: a unified stream
// of keyboard/mouse activity events plus global-hotkey registration.
package input

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"snaplock/internal/shortcut"
)

// subscriberBuffer bounds the event channel so the OS hook thread never
// blocks on a slow consumer; excess events are dropped, which is safe
// because any single event is a sufficient trigger.
const subscriberBuffer = 64

// hotkeyIgnoreWindow suppresses activity events for a short window after the
// global hotkey fires, so the keystrokes forming the hotkey chord cannot
// themselves be mistaken for a trigger.
const hotkeyIgnoreWindow = 500 * time.Millisecond

var (
	// ErrAlreadySubscribed is returned by Subscribe while a subscription is live.
	ErrAlreadySubscribed = errors.New("input watcher already has a subscriber")
	// ErrHotkeyActive is returned when registering a hotkey while another
	// registration is live. Registrations must never stack; callers
	// unregister the old handle first.
	ErrHotkeyActive = errors.New("a hotkey registration is already active")
	// ErrHotkeyRegistration wraps OS refusals to bind a global hotkey.
	ErrHotkeyRegistration = errors.New("hotkey registration failed")
	// ErrUnsupportedKey is returned for binding keys the OS layer cannot bind.
	ErrUnsupportedKey = errors.New("unsupported hotkey key")
)

// Kind distinguishes keyboard from mouse activity. Diagnostic only; any
// event kind is an equally valid trigger.
type Kind uint8

const (
	KindKeyboard Kind = iota
	KindMouse
)

func (k Kind) String() string {
	if k == KindMouse {
		return "mouse"
	}
	return "keyboard"
}

// Event marks that one input event occurred. Existence is the payload.
type Event struct {
	Kind Kind      `json:"kind"`
	At   time.Time `json:"at"`
}

// Watcher is the process-wide input listener contract.
type Watcher interface {
	// Subscribe starts the OS listener and returns the unified event
	// stream. Only one subscription may be live at a time.
	Subscribe() (<-chan Event, error)
	// Unsubscribe stops the OS listener and closes the stream.
	Unsubscribe()
	// RegisterHotkey binds a global hotkey; onTrigger runs on every press.
	RegisterHotkey(binding shortcut.Binding, onTrigger func()) (*HotkeyHandle, error)
	// UnregisterHotkey releases a handle. Idempotent per handle.
	UnregisterHotkey(h *HotkeyHandle) error
}

// SystemWatcher is the OS-backed Watcher. The raw listener implementation is
// chosen per platform at build time.
type SystemWatcher struct {
	mu         sync.Mutex
	subscriber chan Event
	stopRaw    func()
	active     *HotkeyHandle

	// suppressUntil is unix nanos; events observed before this instant are
	// part of a hotkey chord and are dropped.
	suppressUntil atomic.Int64
}

// NewSystemWatcher constructs a watcher with no live subscription.
func NewSystemWatcher() *SystemWatcher {
	return &SystemWatcher{}
}

// startRawListenerFn indirects the platform listener so tests can substitute
// a fake event source.
var startRawListenerFn = startRawListener

// Subscribe implements Watcher.
func (w *SystemWatcher) Subscribe() (<-chan Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.subscriber != nil {
		return nil, ErrAlreadySubscribed
	}

	ch := make(chan Event, subscriberBuffer)
	stop, err := startRawListenerFn(func(kind Kind) {
		w.dispatch(ch, kind)
	})
	if err != nil {
		return nil, err
	}
	w.subscriber = ch
	w.stopRaw = stop
	slog.Info("[input] raw listener started")
	return ch, nil
}

// Unsubscribe implements Watcher. Safe to call when no subscription is live.
func (w *SystemWatcher) Unsubscribe() {
	w.mu.Lock()
	stop := w.stopRaw
	ch := w.subscriber
	w.stopRaw = nil
	w.subscriber = nil
	w.mu.Unlock()

	if stop != nil {
		stop()
	}
	if ch != nil {
		close(ch)
		slog.Info("[input] raw listener stopped")
	}
}

// dispatch forwards one raw event to the subscriber. Runs on the OS hook
// goroutine: it must never block, so a full channel drops the event.
func (w *SystemWatcher) dispatch(ch chan Event, kind Kind) {
	if time.Now().UnixNano() < w.suppressUntil.Load() {
		return
	}
	select {
	case ch <- Event{Kind: kind, At: time.Now()}:
	default:
	}
}

// markHotkeyActivity opens the chord-suppression window.
func (w *SystemWatcher) markHotkeyActivity() {
	w.suppressUntil.Store(time.Now().Add(hotkeyIgnoreWindow).UnixNano())
}
