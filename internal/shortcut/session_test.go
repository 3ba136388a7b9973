package shortcut

import (
	"errors"
	"testing"
)

func TestCaptureSessionAccumulatesModifiers(t *testing.T) {
	s := NewCaptureSession()

	// Modifier-only events keep the session open.
	for _, ev := range []KeyEvent{
		{Key: "Control", Ctrl: true},
		{Key: "Shift", Ctrl: true, Shift: true},
	} {
		if _, done, err := s.Feed(ev); done || err != nil {
			t.Fatalf("Feed(%+v) = done=%v err=%v, want open session", ev, done, err)
		}
	}
	if !s.Active() {
		t.Fatal("session should remain active until a main key arrives")
	}
	if s.Modifiers() != ModCtrl|ModShift {
		t.Fatalf("modifiers = %v, want Ctrl|Shift", s.Modifiers())
	}

	binding, done, err := s.Feed(KeyEvent{Key: "l", Ctrl: true, Shift: true})
	if err != nil || !done {
		t.Fatalf("Feed main key = done=%v err=%v, want finalized", done, err)
	}
	if binding.String() != "Ctrl+Shift+L" {
		t.Errorf("binding = %q, want Ctrl+Shift+L", binding)
	}
	if s.Active() {
		t.Error("session should be destroyed after finalizing")
	}
}

func TestCaptureSessionMainKeyWithoutModifiers(t *testing.T) {
	s := NewCaptureSession()

	_, done, err := s.Feed(KeyEvent{Key: "L"})
	if !errors.Is(err, ErrInvalidShortcut) {
		t.Fatalf("err = %v, want ErrInvalidShortcut", err)
	}
	if done {
		t.Error("invalid main key must not finalize the session")
	}
	if !s.Active() {
		t.Error("session must stay open after an invalid finalize attempt")
	}

	// The user can still complete the capture afterwards.
	binding, done, err := s.Feed(KeyEvent{Key: "L", Alt: true})
	if err != nil || !done {
		t.Fatalf("retry = done=%v err=%v, want finalized", done, err)
	}
	if binding.String() != "Alt+L" {
		t.Errorf("binding = %q, want Alt+L", binding)
	}
}

func TestCaptureSessionCancel(t *testing.T) {
	s := NewCaptureSession()
	s.Cancel()
	if s.Active() {
		t.Fatal("cancelled session reports active")
	}
	if _, _, err := s.Feed(KeyEvent{Key: "L", Ctrl: true}); !errors.Is(err, ErrInvalidShortcut) {
		t.Fatalf("Feed after cancel = %v, want ErrInvalidShortcut", err)
	}
}

func TestCaptureSessionSpaceKey(t *testing.T) {
	s := NewCaptureSession()
	binding, done, err := s.Feed(KeyEvent{Key: " ", Ctrl: true})
	if err != nil || !done {
		t.Fatalf("space main key = done=%v err=%v, want finalized", done, err)
	}
	if binding.String() != "Ctrl+Space" {
		t.Errorf("binding = %q, want Ctrl+Space", binding)
	}
}
