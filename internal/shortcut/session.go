package shortcut

import (
	"strings"
	"sync"
)

// KeyEvent is one key press as delivered by the capture UI. Key is the key
// token ("L", "Space", "Control", ...); the flags mirror the modifier state
// at the time of the press.
type KeyEvent struct {
	Key   string `json:"key"`
	Ctrl  bool   `json:"ctrl"`
	Alt   bool   `json:"alt"`
	Shift bool   `json:"shift"`
	Meta  bool   `json:"meta"`
}

func (ev KeyEvent) modifiers() Modifier {
	var mods Modifier
	if ev.Ctrl {
		mods |= ModCtrl
	}
	if ev.Alt {
		mods |= ModAlt
	}
	if ev.Shift {
		mods |= ModShift
	}
	if ev.Meta {
		mods |= ModMeta
	}
	// The pressed key may itself be a modifier ("Control" arriving before
	// the flag is set on some platforms); fold it into the mask.
	if mod, ok := modifierByName[strings.ToUpper(strings.TrimSpace(ev.Key))]; ok {
		mods |= mod
	}
	return mods
}

// CaptureSession accumulates modifier state from live key events until a
// qualifying non-modifier main key arrives. It exists only while the UI is
// recording a new binding and is destroyed on completion or cancellation.
type CaptureSession struct {
	mu     sync.Mutex
	active bool
	mods   Modifier
}

// NewCaptureSession starts an active capture session with no accumulated
// modifiers.
func NewCaptureSession() *CaptureSession {
	return &CaptureSession{active: true}
}

// Active reports whether the session is still accepting events.
func (s *CaptureSession) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Modifiers returns the modifier mask accumulated so far.
func (s *CaptureSession) Modifiers() Modifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mods
}

// Feed consumes one key event. Modifier-only events accumulate and leave the
// session open. A non-modifier main key finalizes the session and returns
// the candidate binding with done=true. A main key arriving with no
// accumulated modifiers returns ErrInvalidShortcut and leaves the session
// open so the user can retry.
func (s *CaptureSession) Feed(ev KeyEvent) (Binding, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return Binding{}, false, ErrInvalidShortcut
	}

	s.mods |= ev.modifiers()

	key := strings.TrimSpace(ev.Key)
	if key == "" && ev.Key == " " {
		key = ev.Key
	}
	if key == "" || IsModifierToken(key) {
		return Binding{}, false, nil
	}

	binding, err := FromCapture(s.mods, key)
	if err != nil {
		return Binding{}, false, err
	}
	s.active = false
	return binding, true, nil
}

// Cancel destroys the session. Further Feed calls fail.
func (s *CaptureSession) Cancel() {
	s.mu.Lock()
	s.active = false
	s.mods = 0
	s.mu.Unlock()
}
