package main

import (
	"errors"
	"log/slog"
	"time"

	"snaplock/internal/monitor"
)

// hotkeyToggleDebounce drops hotkey fires that land too close together.
// Key auto-repeat on a held chord would otherwise arm and instantly disarm.
const hotkeyToggleDebounce = 500 * time.Millisecond

var errMonitorUnavailable = errors.New("monitoring controller is not ready")

func (a *App) requireMonitor() (*monitor.Controller, error) {
	if a.mon == nil {
		return nil, errMonitorUnavailable
	}
	return a.mon, nil
}

// StartMonitoring arms the watch: a countdown runs, then any keyboard or
// mouse activity triggers the capture-and-lock pipeline. cameraID is pinned
// for the whole cycle; camera edits while armed only affect the next one.
// Wails-bound. Returns an error when monitoring is already running.
func (a *App) StartMonitoring(cameraID int) error {
	mon, err := a.requireMonitor()
	if err != nil {
		return err
	}
	if err := mon.Arm(cameraID); err != nil {
		slog.Debug("[monitor] arm rejected", "error", err)
		return err
	}
	return nil
}

// StopMonitoring disarms the watch during the countdown or while active.
// Wails-bound. Returns an error when monitoring is not running.
func (a *App) StopMonitoring() error {
	mon, err := a.requireMonitor()
	if err != nil {
		return err
	}
	if err := mon.Disarm(); err != nil {
		slog.Debug("[monitor] disarm rejected", "error", err)
		return err
	}
	cfg := a.getConfigSnapshot()
	if cfg.NotificationsEnabled && a.notifier != nil {
		if notifyErr := a.notifier.Notify("SnapLock", "Monitoring stopped"); notifyErr != nil {
			slog.Warn("[notify] stop notification failed", "error", notifyErr)
		}
	}
	return nil
}

// GetMonitoringStatus returns "idle", "preparing" or "active".
// Wails-bound: the frontend polls this on mount to seed its state.
func (a *App) GetMonitoringStatus() string {
	mon, err := a.requireMonitor()
	if err != nil {
		return monitor.StateIdle.String()
	}
	return monitoringStatusString(mon.Status())
}

// toggleMonitoring is the global-hotkey callback. It flips between armed and
// idle with a debounce window so chord auto-repeat cannot double-fire.
func (a *App) toggleMonitoring() {
	// CAS guard prevents interleaved toggles when a second fire arrives
	// while the first is still executing.
	if !a.hotkeyToggling.CompareAndSwap(false, true) {
		slog.Debug("[hotkey] toggle already in progress, skipping")
		return
	}
	defer a.hotkeyToggling.Store(false)

	now := time.Now().UnixNano()
	if now-a.lastHotkeyToggle.Load() < int64(hotkeyToggleDebounce) {
		slog.Debug("[hotkey] toggle debounced")
		return
	}
	a.lastHotkeyToggle.Store(now)

	mon, err := a.requireMonitor()
	if err != nil {
		slog.Warn("[hotkey] toggle dropped, controller not ready")
		return
	}

	if mon.Status() == monitor.StateIdle {
		if armErr := a.StartMonitoring(a.getConfigSnapshot().CameraID); armErr != nil {
			slog.Warn("[hotkey] arm via hotkey failed", "error", armErr)
		}
		return
	}
	if disarmErr := a.StopMonitoring(); disarmErr != nil {
		slog.Warn("[hotkey] disarm via hotkey failed", "error", disarmErr)
	}
}
