package main

import (
	"context"
	"log/slog"

	"snaplock/internal/journal"
	"snaplock/internal/monitor"
)

// Runtime events emitted to the frontend.
const (
	// eventMonitoringStatus carries {"status": "idle"|"preparing"|"active"}.
	eventMonitoringStatus = "monitoring:status-changed"
	// eventLogEntry is a payload-less ping; the frontend fetches the full
	// snapshot via GetActivityLog on receipt.
	eventLogEntry = "app:log-entry"
	// eventConfigUpdated carries the normalized config after a save or an
	// external file edit.
	eventConfigUpdated = "config:updated"
	// eventShortcutCaptureState carries the capture session state for the
	// rebinding dialog.
	eventShortcutCaptureState = "shortcut:capture-state"
	// eventHotkeyRegistrationFailed warns that a binding could not be
	// registered with the OS; manual arm stays usable.
	eventHotkeyRegistrationFailed = "hotkey:registration-failed"
)

// emitRuntimeEvent emits via the app context and delegates to emitRuntimeEventWithContext.
func (a *App) emitRuntimeEvent(name string, payload any) {
	a.emitRuntimeEventWithContext(a.runtimeContext(), name, payload)
}

// emitRuntimeEventWithContext emits a runtime event only when ctx is non-nil.
// Prefer this helper for best-effort contexts that may not be initialized yet.
func (a *App) emitRuntimeEventWithContext(ctx context.Context, name string, payload any) {
	if ctx == nil {
		slog.Warn("[event] runtime event dropped because app context is nil", "event", name)
		return
	}
	runtimeEventsEmitFn(ctx, name, payload)
}

// monitoringStatusString maps the controller state to the three status
// values the frontend understands. The transient trigger-pipeline state
// reads as "active": externally the watch is still the reason the machine
// is about to lock.
func monitoringStatusString(s monitor.State) string {
	if s == monitor.StateTriggered {
		return "active"
	}
	return s.String()
}

// onMonitorState is the controller's status subscription callback. It runs
// on controller-internal goroutines; keep it non-blocking.
func (a *App) onMonitorState(s monitor.State) {
	a.emitRuntimeEvent(eventMonitoringStatus, map[string]string{
		"status": monitoringStatusString(s),
	})

	if s == monitor.StateActive {
		cfg := a.getConfigSnapshot()
		if cfg.NotificationsEnabled && a.notifier != nil {
			if err := a.notifier.Notify("SnapLock", "Monitoring is now active"); err != nil {
				slog.Warn("[notify] active notification failed", "error", err)
			}
		}
	}
}

// onSessionUnlocked resets the controller when the session-monitor confirms
// the owner unlocked the workstation. A no-op unless a trigger left the
// machine locked while SnapLock kept running.
func (a *App) onSessionUnlocked() {
	slog.Info("[session] unlock detected, resetting monitoring state")
	a.mon.ResetToIdle(journal.EndReasonUnlocked)
}
