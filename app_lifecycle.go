package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"snaplock/internal/camera"
	"snaplock/internal/config"
	"snaplock/internal/ipc"
	"snaplock/internal/journal"
	"snaplock/internal/lock"
	"snaplock/internal/monitor"
	"snaplock/internal/preview"
	"snaplock/internal/sessionmon"
	"snaplock/internal/shortcut"
	"snaplock/internal/workerutil"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

type appRuntimeLogger interface {
	Warningf(context.Context, string, ...interface{})
	Infof(context.Context, string, ...interface{})
	Errorf(context.Context, string, ...interface{})
}

type wailsRuntimeLogger struct{}

func formatRuntimeLogMessage(message string, args ...interface{}) string {
	if len(args) == 0 {
		return message
	}
	return fmt.Sprintf(message, args...)
}

func (wailsRuntimeLogger) Warningf(ctx context.Context, message string, args ...interface{}) {
	if ctx == nil {
		slog.Warn(formatRuntimeLogMessage(message, args...))
		return
	}
	runtime.LogWarningf(ctx, message, args...)
}

func (wailsRuntimeLogger) Infof(ctx context.Context, message string, args ...interface{}) {
	if ctx == nil {
		slog.Info(formatRuntimeLogMessage(message, args...))
		return
	}
	runtime.LogInfof(ctx, message, args...)
}

func (wailsRuntimeLogger) Errorf(ctx context.Context, message string, args ...interface{}) {
	if ctx == nil {
		slog.Error(formatRuntimeLogMessage(message, args...))
		return
	}
	runtime.LogErrorf(ctx, message, args...)
}

var (
	runtimeEventsEmitFn                            = runtime.EventsEmit
	runtimeLogger                 appRuntimeLogger = wailsRuntimeLogger{}
	newIPCServerFn                                 = ipc.NewServer
	newCameraServiceFn                             = camera.NewService
	openJournalFn                                  = journal.Open
	configWatchFn                                  = config.Watch
	runtimeWindowIsMinimisedFn                     = runtime.WindowIsMinimised
	runtimeWindowHideFn                            = runtime.WindowHide
	runtimeWindowShowFn                            = runtime.WindowShow
	runtimeWindowUnminimiseFn                      = runtime.WindowUnminimise
	runtimeWindowSetAlwaysOnTopFn                  = runtime.WindowSetAlwaysOnTop
	newPreviewHubFn                                = func(addr string, source preview.FrameSource) *preview.Hub {
		return preview.NewHub(preview.HubOptions{Addr: addr}, source)
	}
)

const shutdownWaitTimeout = 10 * time.Second

// activityLogSyncInterval bounds how stale the on-disk activity log can be
// relative to the in-memory ring buffer.
const activityLogSyncInterval = 5 * time.Second

// hotkeyFallbacks is tried in order when the configured shortcut cannot be
// registered at startup. The first binding that registers is persisted.
var hotkeyFallbacks = [...]string{"Ctrl+Alt+L", "Ctrl+Shift+L", "Alt+Shift+L", "Ctrl+Alt+S"}

func (a *App) addPendingConfigLoadWarning(message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return
	}
	a.startupWarnMu.Lock()
	a.configLoadWarnings = append(a.configLoadWarnings, trimmed)
	a.startupWarnMu.Unlock()
}

func (a *App) consumePendingConfigLoadWarning() string {
	a.startupWarnMu.Lock()
	defer a.startupWarnMu.Unlock()
	if len(a.configLoadWarnings) == 0 {
		return ""
	}
	message := strings.Join(a.configLoadWarnings, "\n")
	a.configLoadWarnings = nil
	return message
}

func (a *App) flushPendingConfigLoadWarnings() {
	ctx := a.runtimeContext()
	if ctx == nil {
		return
	}
	if warning := a.consumePendingConfigLoadWarning(); warning != "" {
		a.emitRuntimeEventWithContext(ctx, "config:load-failed", map[string]string{
			"message": warning,
		})
	}
}

func (a *App) startup(ctx context.Context) {
	setConsoleUTF8()

	a.setRuntimeContext(ctx)
	a.setWindowVisible(true)

	a.configPath = config.DefaultPath()
	cfg, err := config.EnsureFile(a.configPath)
	if err != nil {
		// Config load/parse failures are non-fatal. Continue startup with
		// defaults and surface a warning to the user.
		cfg = config.DefaultConfig()
		a.addPendingConfigLoadWarning(
			"Failed to load config file at startup. Running with defaults. Error: " + err.Error(),
		)
		runtimeLogger.Warningf(ctx, "failed to load config from %s: %v", a.configPath, err)
	}
	a.setConfigSnapshot(cfg)
	a.settingsDraft = config.NewDraft(cfg)

	a.initActivityLog(cfg)
	a.installActivityLogTee()

	cam, camErr := newCameraServiceFn("")
	if camErr != nil {
		runtimeLogger.Warningf(ctx, "camera service unavailable: %v", camErr)
		a.addPendingConfigLoadWarning(
			"ffmpeg was not found on this system. Evidence capture and camera preview are disabled. Error: " + camErr.Error(),
		)
	} else {
		a.camera = cam
	}

	if jnl, jErr := openJournalFn(a.journalPath()); jErr != nil {
		// Journal failures are non-fatal everywhere; monitoring must work
		// without the audit trail.
		runtimeLogger.Warningf(ctx, "evidence journal unavailable: %v", jErr)
	} else {
		a.journal = jnl
	}

	a.locker = lock.NewSystemLocker()
	a.mon = monitor.New(a.monitorDeps())

	a.ipcServer = newIPCServerFn("", &ipcExecutor{app: a})
	if err := a.ipcServer.Start(); err != nil {
		runtimeLogger.Errorf(ctx, "ipc server failed: %v", err)
		a.addPendingConfigLoadWarning(
			"Failed to start the control IPC server at startup. CLI commands and second-instance activation may be unavailable. Error: " + err.Error(),
		)
	} else {
		runtimeLogger.Infof(ctx, "ipc server listening: %s", a.ipcServer.Endpoint())
	}

	a.configureGlobalHotkey()

	bgCtx, cancel := context.WithCancel(context.Background())
	a.bgCancel = cancel
	if err := configWatchFn(bgCtx, a.configPath, a.onExternalConfigChange); err != nil {
		runtimeLogger.Warningf(ctx, "config watcher failed, external edits will not hot-reload: %v", err)
	}

	a.sessionMon = sessionmon.New(a.onSessionUnlocked)
	a.sessionMon.Start()

	a.startPreviewHub(ctx, cfg)
	a.startActivityLogSyncWorker(bgCtx)

	a.flushPendingConfigLoadWarnings()
}

// monitorDeps assembles the controller dependencies. Optional services that
// failed to start stay nil-typed so the controller's nil checks apply.
func (a *App) monitorDeps() monitor.Deps {
	deps := monitor.Deps{
		Watcher:  a.watcher,
		Locker:   a.locker,
		Notifier: a.notifier,
		Settings: a.monitorSettings,
		OnState:  a.onMonitorState,
	}
	if a.camera != nil {
		deps.Camera = a.camera
	}
	if a.journal != nil {
		deps.Journal = a.journal
	}
	return deps
}

func (a *App) monitorSettings() monitor.Settings {
	cfg := a.getConfigSnapshot()
	return monitor.Settings{
		SavePath:             cfg.SavePath,
		ExitOnLock:           cfg.ExitOnLock,
		PostTriggerAction:    cfg.PostTriggerAction,
		NotificationsEnabled: cfg.NotificationsEnabled,
	}
}

func (a *App) journalPath() string {
	return filepath.Join(filepath.Dir(a.configPath), "journal.db")
}

func (a *App) shutdown(_ context.Context) {
	a.shuttingDown.Store(true)
	logCtx := a.runtimeContext()

	if a.bgCancel != nil {
		a.bgCancel()
		a.bgCancel = nil
	}
	if a.sessionMon != nil {
		a.sessionMon.Stop()
	}

	if a.mon != nil && a.mon.Status() != monitor.StateIdle {
		if err := a.mon.Disarm(); err != nil {
			runtimeLogger.Warningf(logCtx, "disarm during shutdown failed: %v", err)
		}
	}

	a.shortcutMu.Lock()
	if a.captureSession != nil {
		a.captureSession.Cancel()
		a.captureSession = nil
	}
	handle := a.hotkeyHandle
	a.hotkeyHandle = nil
	a.activeBinding = shortcut.Binding{}
	a.shortcutMu.Unlock()
	if handle != nil {
		if err := a.watcher.UnregisterHotkey(handle); err != nil {
			runtimeLogger.Warningf(logCtx, "hotkey unregister during shutdown failed: %v", err)
		}
	}

	if a.previewHub != nil {
		if err := a.previewHub.Stop(); err != nil {
			runtimeLogger.Warningf(logCtx, "preview hub stop failed: %v", err)
		}
	}
	if a.ipcServer != nil {
		if err := a.ipcServer.Stop(); err != nil {
			runtimeLogger.Warningf(logCtx, "ipc server stop failed: %v", err)
		}
	}
	if a.camera != nil {
		a.camera.StopRecordings()
	}

	if !waitWithTimeout(a.bgWG.Wait, shutdownWaitTimeout) {
		runtimeLogger.Warningf(logCtx, "timed out waiting for background workers during shutdown")
	}

	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			runtimeLogger.Warningf(logCtx, "journal close failed: %v", err)
		}
	}
	a.closeActivityLog()
}

func (a *App) startPreviewHub(ctx context.Context, cfg config.Config) {
	if a.camera == nil {
		slog.Debug("[preview] skipped, camera service unavailable")
		return
	}
	addr := "127.0.0.1:0"
	if cfg.PreviewPort > 0 {
		addr = fmt.Sprintf("127.0.0.1:%d", cfg.PreviewPort)
	}
	hub := newPreviewHubFn(addr, a.camera)
	if err := hub.Start(ctx); err != nil {
		runtimeLogger.Warningf(ctx, "preview server failed, camera preview disabled: %v", err)
		return
	}
	a.previewHub = hub
}

// startActivityLogSyncWorker periodically flushes the activity log file so a
// crash loses at most activityLogSyncInterval worth of entries.
func (a *App) startActivityLogSyncWorker(ctx context.Context) {
	workerutil.RunWithPanicRecovery(ctx, "activity-log-sync", &a.bgWG, func(ctx context.Context) {
		ticker := time.NewTicker(activityLogSyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.syncActivityLog()
			}
		}
	}, workerutil.RecoveryOptions{
		IsShutdown: a.shuttingDown.Load,
	})
}

func waitWithTimeout(waitFn func(), timeout time.Duration) bool {
	// Best effort timeout guard for shutdown paths. The waiting goroutine may
	// outlive timeout when waitFn blocks indefinitely, but this function is only
	// used during process shutdown where eventual completion is expected.
	done := make(chan struct{})
	go func() {
		waitFn()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// configureGlobalHotkey registers the configured shortcut, falling back
// through hotkeyFallbacks when the OS refuses it. A successful fallback is
// persisted so the UI reflects the binding that is actually live.
func (a *App) configureGlobalHotkey() {
	cfg := a.getConfigSnapshot()
	spec := strings.TrimSpace(cfg.Shortcut)

	candidates := make([]string, 0, len(hotkeyFallbacks)+1)
	if spec != "" {
		candidates = append(candidates, spec)
	}
	for _, fallback := range hotkeyFallbacks {
		if fallback != spec {
			candidates = append(candidates, fallback)
		}
	}

	for i, candidate := range candidates {
		binding, err := shortcut.Parse(candidate)
		if err != nil {
			slog.Warn("[hotkey] invalid shortcut spec", "spec", candidate, "error", err)
			continue
		}
		handle, err := a.watcher.RegisterHotkey(binding, a.toggleMonitoring)
		if err != nil {
			slog.Warn("[hotkey] registration refused", "binding", binding.String(), "error", err)
			continue
		}
		a.shortcutMu.Lock()
		a.hotkeyHandle = handle
		a.activeBinding = binding
		a.shortcutMu.Unlock()
		runtimeLogger.Infof(a.runtimeContext(), "global hotkey registered: %s", binding.String())

		if i > 0 || candidate != spec {
			if err := a.commitConfigChange(func(c *config.Config) { c.Shortcut = binding.String() }); err != nil {
				slog.Warn("[hotkey] failed to persist fallback binding", "binding", binding.String(), "error", err)
			}
			a.emitRuntimeEvent(eventHotkeyRegistrationFailed, map[string]string{
				"requested": spec,
				"active":    binding.String(),
			})
		}
		return
	}

	runtimeLogger.Warningf(a.runtimeContext(), "no global hotkey could be registered, manual arm remains available")
	a.emitRuntimeEvent(eventHotkeyRegistrationFailed, map[string]string{
		"requested": spec,
		"active":    "",
	})
}

// onExternalConfigChange applies a config file edit made outside the app.
// The live hotkey is re-registered when the shortcut changed.
func (a *App) onExternalConfigChange(cfg config.Config) {
	previous := a.getConfigSnapshot()

	a.cfgSaveMu.Lock()
	a.setConfigSnapshot(cfg)
	a.settingsDraft = config.NewDraft(cfg)
	a.cfgSaveMu.Unlock()

	if previous.Shortcut != cfg.Shortcut {
		a.rebindHotkeyFromConfig(cfg.Shortcut)
	}
	a.emitRuntimeEvent(eventConfigUpdated, cfg)
}

// rebindHotkeyFromConfig swaps the live registration to spec. Skipped while
// a capture session is running; the session owns the registration then.
func (a *App) rebindHotkeyFromConfig(spec string) {
	binding, err := shortcut.Parse(spec)
	if err != nil {
		slog.Warn("[hotkey] external config change has invalid shortcut", "spec", spec, "error", err)
		return
	}

	a.shortcutMu.Lock()
	defer a.shortcutMu.Unlock()
	if a.captureSession != nil {
		slog.Debug("[hotkey] skip external rebind during capture session")
		return
	}
	if a.hotkeyHandle != nil {
		if a.activeBinding.Equal(binding) {
			return
		}
		if err := a.watcher.UnregisterHotkey(a.hotkeyHandle); err != nil {
			slog.Warn("[hotkey] unregister before rebind failed", "error", err)
		}
		a.hotkeyHandle = nil
		a.activeBinding = shortcut.Binding{}
	}
	handle, err := a.watcher.RegisterHotkey(binding, a.toggleMonitoring)
	if err != nil {
		slog.Warn("[hotkey] external rebind failed", "binding", binding.String(), "error", err)
		a.emitRuntimeEvent(eventHotkeyRegistrationFailed, map[string]string{
			"requested": binding.String(),
			"active":    "",
		})
		return
	}
	a.hotkeyHandle = handle
	a.activeBinding = binding
	slog.Info("[hotkey] rebound after external config change", "binding", binding.String())
}

// bringWindowToFront shows and raises the application window.
// Used when a second instance signals the first to activate.
func (a *App) bringWindowToFront() {
	ctx := a.runtimeContext()
	if ctx == nil {
		slog.Warn("[ipc] bringWindowToFront dropped because runtime context is nil")
		return
	}
	a.raiseWindow(ctx)
	a.setWindowVisible(true)
}

func (a *App) raiseWindow(ctx context.Context) {
	runtimeWindowShowFn(ctx)
	runtimeWindowUnminimiseFn(ctx)
	runtimeWindowSetAlwaysOnTopFn(ctx, true)
	runtimeWindowSetAlwaysOnTopFn(ctx, false)
}

func (a *App) setWindowVisible(visible bool) {
	a.windowMu.Lock()
	a.windowVisible = visible
	a.windowMu.Unlock()
}

// ToggleWindow hides the window when visible and raises it otherwise.
// Wails-bound: the frontend tray control calls this.
func (a *App) ToggleWindow() {
	ctx := a.runtimeContext()
	if ctx == nil {
		return
	}

	// Read OS window state outside lock; no Wails runtime API inside mutex.
	isMinimised := runtimeWindowIsMinimisedFn(ctx)

	a.windowMu.Lock()
	currentlyVisible := a.windowVisible && !isMinimised
	a.windowMu.Unlock()

	if currentlyVisible {
		runtimeWindowHideFn(ctx)
	} else {
		a.raiseWindow(ctx)
	}

	a.setWindowVisible(!currentlyVisible)
}
