package main

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"snaplock/internal/camera"
	"snaplock/internal/config"
	"snaplock/internal/input"
	"snaplock/internal/ipc"
	"snaplock/internal/journal"
	"snaplock/internal/lock"
	"snaplock/internal/monitor"
	"snaplock/internal/notify"
	"snaplock/internal/preview"
	"snaplock/internal/sessionmon"
	"snaplock/internal/shortcut"
)

// App is the Wails-bound application service.
type App struct {
	// Runtime context lifecycle.
	ctx   context.Context
	ctxMu sync.RWMutex

	// Configuration state and startup warnings.
	// Lock ordering (outer -> inner):
	//   cfgSaveMu -> cfgMu
	//
	// Independent locks: do not assume ordering across these.
	//   shortcutMu, windowMu, startupWarnMu, ctxMu, activityLogMu
	//
	// shortcutMu is NEVER held while acquiring cfgSaveMu: shortcut capture
	// persists its result after releasing shortcutMu.
	cfgMu         sync.RWMutex
	cfgSaveMu     sync.Mutex
	cfg           config.Config
	configPath    string
	settingsDraft *config.Draft[config.Config]

	startupWarnMu      sync.Mutex
	configLoadWarnings []string

	// Backend services. Assigned once during startup, read-only afterwards.
	watcher    input.Watcher
	camera     *camera.Service
	locker     lock.Locker
	notifier   notify.Notifier
	mon        *monitor.Controller
	journal    *journal.Journal
	ipcServer  *ipc.Server
	previewHub *preview.Hub
	sessionMon *sessionmon.Monitor

	// Shortcut capture state (ShortcutManager sub-state machine).
	// Idle: captureSession == nil. Capturing: captureSession != nil.
	// priorBinding is the binding to restore on cancel; zero when the
	// capture started with no live registration.
	shortcutMu     sync.Mutex
	captureSession *shortcut.CaptureSession
	hotkeyHandle   *input.HotkeyHandle
	activeBinding  shortcut.Binding // binding behind hotkeyHandle; zero when none
	priorBinding   shortcut.Binding

	// Hotkey toggle debounce: the chord that registers the hotkey often
	// auto-repeats; a second fire within the window is dropped.
	lastHotkeyToggle atomic.Int64
	hotkeyToggling   atomic.Bool // CAS guard against concurrent toggle runs

	// Activity log state (captures slog records for the frontend panel).
	// Protected by activityLogMu (RWMutex: write-lock for append/close,
	// read-lock for get).
	//
	// activityLogLastEmit: time of the last app:log-entry ping; throttles
	//   high-frequency emissions to prevent Wails IPC saturation.
	// activityLogSeq: monotonically increasing counter for stable frontend
	//   deduplication.
	activityLogMu       sync.RWMutex
	activityLogFile     *os.File
	activityLogPath     string
	activityLogEntries  activityLogRingBuffer
	activityLogLastEmit time.Time
	activityLogSeq      uint64

	// Window visibility state.
	windowMu      sync.Mutex
	windowVisible bool
	shuttingDown  atomic.Bool // set at the start of shutdown(); checked by worker recovery loops

	// Background worker cancellation/waits.
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// NewApp creates the app service.
func NewApp() *App {
	return &App{
		watcher:            input.NewSystemWatcher(),
		notifier:           notify.NewSystemNotifier(),
		activityLogEntries: newActivityLogRingBuffer(activityLogMaxEntries),
	}
}

// GetPreviewURL returns the WebSocket endpoint URL for the camera preview
// stream. The frontend calls this when the settings panel opens. Returns
// empty string if the preview server is not available.
func (a *App) GetPreviewURL() string {
	if a.previewHub == nil {
		slog.Debug("[preview] hub is nil, preview URL unavailable")
		return ""
	}
	return a.previewHub.URL()
}
