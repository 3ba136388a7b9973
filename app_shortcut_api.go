package main

import (
	"errors"
	"fmt"
	"log/slog"

	"snaplock/internal/config"
	"snaplock/internal/shortcut"
)

var (
	errCaptureInProgress = errors.New("a shortcut capture is already in progress")
	errNoCaptureSession  = errors.New("no shortcut capture is in progress")
)

// shortcutCaptureState is the payload of shortcut:capture-state events.
type shortcutCaptureState struct {
	Capturing bool   `json:"capturing"`
	Shortcut  string `json:"shortcut,omitempty"`
}

// StartShortcutCapture opens a capture session for rebinding the global
// hotkey. The live registration is released first so the chord being typed
// cannot toggle monitoring mid-capture. Wails-bound.
func (a *App) StartShortcutCapture() error {
	a.shortcutMu.Lock()
	defer a.shortcutMu.Unlock()

	if a.captureSession != nil {
		return errCaptureInProgress
	}

	a.priorBinding = shortcut.Binding{}
	if a.hotkeyHandle != nil {
		a.priorBinding = a.activeBinding
		if err := a.watcher.UnregisterHotkey(a.hotkeyHandle); err != nil {
			slog.Warn("[shortcut] unregister before capture failed", "error", err)
		}
		a.hotkeyHandle = nil
		a.activeBinding = shortcut.Binding{}
	}

	a.captureSession = shortcut.NewCaptureSession()
	slog.Info("[shortcut] capture session started", "prior", a.priorBinding.String())
	a.emitRuntimeEvent(eventShortcutCaptureState, shortcutCaptureState{Capturing: true})
	return nil
}

// FeedShortcutKey forwards one key event from the capture dialog. A modifier
// accumulates; a qualifying main key finalizes the binding, registers it and
// persists it. A main key with no modifiers returns ErrInvalidShortcut and
// the session stays open. Wails-bound.
//
// Returns the normalized binding string when the capture completed, empty
// string while still capturing.
func (a *App) FeedShortcutKey(ev shortcut.KeyEvent) (string, error) {
	a.shortcutMu.Lock()
	session := a.captureSession
	if session == nil {
		a.shortcutMu.Unlock()
		return "", errNoCaptureSession
	}

	binding, done, err := session.Feed(ev)
	if err != nil {
		// Session survives invalid finalization attempts.
		a.shortcutMu.Unlock()
		return "", err
	}
	if !done {
		a.shortcutMu.Unlock()
		return "", nil
	}

	handle, regErr := a.watcher.RegisterHotkey(binding, a.toggleMonitoring)
	if regErr != nil {
		// Report and restart the session; the finalized session would refuse
		// further events, and the user should get to try another chord or
		// cancel to restore the previous binding.
		a.captureSession = shortcut.NewCaptureSession()
		a.shortcutMu.Unlock()
		slog.Warn("[shortcut] captured binding refused by OS", "binding", binding.String(), "error", regErr)
		a.emitRuntimeEvent(eventHotkeyRegistrationFailed, map[string]string{
			"requested": binding.String(),
			"active":    "",
		})
		return "", fmt.Errorf("register %s: %w", binding.String(), regErr)
	}

	a.hotkeyHandle = handle
	a.activeBinding = binding
	a.captureSession = nil
	a.shortcutMu.Unlock()

	// Persist outside shortcutMu; commitConfigChange takes cfgSaveMu.
	if saveErr := a.commitConfigChange(func(cfg *config.Config) { cfg.Shortcut = binding.String() }); saveErr != nil {
		// The binding is live either way; only persistence failed.
		slog.Warn("[shortcut] failed to persist new binding", "binding", binding.String(), "error", saveErr)
	}

	slog.Info("[shortcut] rebound", "binding", binding.String())
	a.emitRuntimeEvent(eventShortcutCaptureState, shortcutCaptureState{
		Capturing: false,
		Shortcut:  binding.String(),
	})
	return binding.String(), nil
}

// CancelShortcutCapture aborts the capture session and restores the previous
// binding exactly. Idempotent: calling without a session is a no-op, so every
// dialog-close path may call it unconditionally. Wails-bound.
func (a *App) CancelShortcutCapture() {
	a.shortcutMu.Lock()
	if a.captureSession == nil {
		a.shortcutMu.Unlock()
		return
	}
	a.captureSession.Cancel()
	a.captureSession = nil

	prior := a.priorBinding
	restored := ""
	if a.hotkeyHandle == nil && !prior.IsZero() {
		handle, err := a.watcher.RegisterHotkey(prior, a.toggleMonitoring)
		if err != nil {
			slog.Warn("[shortcut] failed to restore prior binding", "binding", prior.String(), "error", err)
			a.shortcutMu.Unlock()
			a.emitRuntimeEvent(eventHotkeyRegistrationFailed, map[string]string{
				"requested": prior.String(),
				"active":    "",
			})
			a.emitRuntimeEvent(eventShortcutCaptureState, shortcutCaptureState{Capturing: false})
			return
		}
		a.hotkeyHandle = handle
		a.activeBinding = prior
		restored = prior.String()
	}
	a.shortcutMu.Unlock()

	slog.Info("[shortcut] capture cancelled", "restored", restored)
	a.emitRuntimeEvent(eventShortcutCaptureState, shortcutCaptureState{
		Capturing: false,
		Shortcut:  restored,
	})
}

// GetCurrentShortcut returns the binding that is actually registered, or the
// configured one when no registration is live. Wails-bound.
func (a *App) GetCurrentShortcut() string {
	a.shortcutMu.Lock()
	active := a.activeBinding
	live := a.hotkeyHandle != nil
	a.shortcutMu.Unlock()
	if live {
		return active.String()
	}
	return a.getConfigSnapshot().Shortcut
}
