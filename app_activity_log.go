package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"

	"snaplock/internal/applog"
	"snaplock/internal/config"
)

const (
	activityLogDir             = "activity-logs"
	activityLogMaxFiles        = 100
	activityLogMaxEntries      = 10000
	activityLogEmitMinInterval = 50 * time.Millisecond
)

// initActivityLog creates the JSONL activity log file for the current run
// when the save_logs_to_file toggle is on. Non-fatal: logs a warning and
// continues on any I/O failure.
func (a *App) initActivityLog(cfg config.Config) {
	if !cfg.SaveLogsToFile {
		slog.Debug("[activity-log] file sink disabled by config")
		return
	}

	dir := filepath.Join(filepath.Dir(a.configPath), activityLogDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.Warn("[activity-log] failed to create log directory", "dir", dir, "error", err)
		return
	}

	// PID is appended to prevent filename collision on sub-second restart.
	filename := fmt.Sprintf("activity-%s-%d.jsonl", time.Now().Format("20060102-150405"), os.Getpid())
	fullPath := filepath.Join(dir, filename)

	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		slog.Warn("[activity-log] failed to open log file", "path", fullPath, "error", err)
		return
	}

	// Write shared fields under lock so concurrent readers always observe a
	// consistent pair.
	a.activityLogMu.Lock()
	a.activityLogFile = f
	a.activityLogPath = fullPath
	a.activityLogMu.Unlock()

	a.cleanupOldActivityLogs()

	slog.Info("[activity-log] initialized", "path", fullPath)
}

// installActivityLogTee replaces the default slog handler with a tee that
// feeds writeActivityLogEntry. All levels are captured; the frontend filters
// debug entries according to show_debug_logs.
func (a *App) installActivityLogTee() {
	base := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(applog.NewTeeHandler(base, slog.LevelDebug, a.onLogRecord)))
}

// onLogRecord is the tee callback. It must never log through slog itself;
// the handler would re-enter this function.
func (a *App) onLogRecord(ts time.Time, level slog.Level, msg string, group string) {
	a.writeActivityLogEntry(ActivityLogEntry{
		Timestamp: ts.Format("20060102150405"),
		Level:     strings.ToLower(level.String()),
		Message:   msg,
		Target:    group,
	})
}

// cleanupOldActivityLogs removes the oldest log files when the count exceeds
// activityLogMaxFiles.
func (a *App) cleanupOldActivityLogs() {
	a.activityLogMu.RLock()
	currentPath := a.activityLogPath
	a.activityLogMu.RUnlock()
	if strings.TrimSpace(currentPath) == "" {
		return
	}

	logDir := filepath.Dir(currentPath)
	currentFile := filepath.Base(currentPath)
	entries, err := os.ReadDir(logDir)
	if err != nil {
		slog.Warn("[activity-log] failed to read log directory for cleanup", "dir", logDir, "error", err)
		return
	}

	var logFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, "activity-") && strings.HasSuffix(name, ".jsonl") {
			logFiles = append(logFiles, name)
		}
	}

	// Lexicographic order approximates age ordering because of the
	// timestamp prefix; PID ties are irrelevant for count-based cleanup.
	sort.Strings(logFiles)

	excess := len(logFiles) - activityLogMaxFiles
	if excess <= 0 {
		return
	}

	deleted := 0
	for _, name := range logFiles {
		if deleted >= excess {
			break
		}
		if name == currentFile {
			// Never delete the active log file for this process.
			continue
		}
		target := filepath.Join(logDir, name)
		if err := os.Remove(target); err != nil {
			slog.Warn("[activity-log] failed to delete old log file", "path", target, "error", err)
			continue
		}
		deleted++
	}
}

// writeActivityLogEntry appends an entry to both the in-memory ring buffer
// and the JSONL file. All state mutations and the shouldEmit decision happen
// in a single lock acquisition.
//
// The event model is "ping + fetch": the emitted app:log-entry event carries
// no payload, and the frontend calls GetActivityLog to obtain the full
// snapshot. Throttling only affects ping frequency, never loses entries.
func (a *App) writeActivityLogEntry(entry ActivityLogEntry) {
	// slog must NOT be called while activityLogMu is held or from this
	// function at all: the TeeHandler calls back into it, which would
	// deadlock on the non-reentrant mutex. Internal diagnostics use
	// fmt.Fprintf(os.Stderr, ...) to bypass the tee entirely.

	var marshalErr, writeErr error
	shouldEmit := false
	var syncFile *os.File

	a.activityLogMu.Lock()

	a.activityLogSeq++
	entry.Seq = a.activityLogSeq

	if a.activityLogFile != nil {
		raw, err := json.Marshal(entry)
		if err != nil {
			marshalErr = err
		} else {
			raw = append(raw, '\n')
			if _, err := a.activityLogFile.Write(raw); err != nil {
				writeErr = err
			} else if entry.Level == "error" {
				// Capture while holding the lock, then sync after unlock.
				syncFile = a.activityLogFile
			}
		}
	}

	a.activityLogEntries.push(entry)

	now := time.Now()
	if now.Sub(a.activityLogLastEmit) >= activityLogEmitMinInterval {
		a.activityLogLastEmit = now
		shouldEmit = true
	}

	a.activityLogMu.Unlock()

	// Post-lock I/O: Sync() for error-level entries.
	if syncFile != nil {
		if syncErr := syncFile.Sync(); syncErr != nil {
			// os.ErrClosed can occur when closeActivityLog races with this
			// post-lock Sync; the file was already flushed and closed.
			// Windows can also return EINVAL for the same race.
			isExpectedCloseRace := errors.Is(syncErr, os.ErrClosed) ||
				(runtime.GOOS == "windows" && errors.Is(syncErr, syscall.EINVAL))
			if !isExpectedCloseRace {
				fmt.Fprintf(os.Stderr, "[activity-log] failed to sync log file: %v\n", syncErr)
			}
		}
	}

	if marshalErr != nil {
		fmt.Fprintf(os.Stderr, "[activity-log] failed to marshal log entry: %v\n", marshalErr)
	}
	if writeErr != nil {
		fmt.Fprintf(os.Stderr, "[activity-log] failed to write log entry: %v\n", writeErr)
	}

	// nil payload arrives as JSON null on the frontend; the event is a
	// notification trigger, not a data carrier.
	if shouldEmit {
		a.emitRuntimeEvent(eventLogEntry, nil)
	}
}

// syncActivityLog flushes the file sink. Called by the background sync
// worker; a nil file is a no-op.
func (a *App) syncActivityLog() {
	a.activityLogMu.RLock()
	f := a.activityLogFile
	a.activityLogMu.RUnlock()
	if f == nil {
		return
	}
	if err := f.Sync(); err != nil && !errors.Is(err, os.ErrClosed) {
		fmt.Fprintf(os.Stderr, "[activity-log] periodic sync failed: %v\n", err)
	}
}

// closeActivityLog flushes and closes the log file handle.
func (a *App) closeActivityLog() {
	var closeErr error

	a.activityLogMu.Lock()
	if a.activityLogFile != nil {
		closeErr = a.activityLogFile.Close()
		a.activityLogFile = nil
	}
	a.activityLogMu.Unlock()

	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "[activity-log] failed to close log file: %v\n", closeErr)
	}
}

// GetActivityLog returns a copy of all in-memory activity log entries.
// Wails-bound: the frontend calls this after an app:log-entry ping, so it
// always has the complete snapshot regardless of ping throttling. Entries
// below info level are omitted unless show_debug_logs is on.
func (a *App) GetActivityLog() []ActivityLogEntry {
	showDebug := a.getConfigSnapshot().ShowDebugLogs

	a.activityLogMu.RLock()
	entries := a.activityLogEntries.snapshot()
	a.activityLogMu.RUnlock()

	if showDebug {
		return entries
	}
	filtered := entries[:0]
	for _, entry := range entries {
		if entry.Level == "debug" {
			continue
		}
		filtered = append(filtered, entry)
	}
	return filtered
}

// GetActivityLogFilePath returns the absolute path to the current JSONL log
// file, or empty when the file sink is disabled. Wails-bound.
func (a *App) GetActivityLogFilePath() string {
	a.activityLogMu.RLock()
	defer a.activityLogMu.RUnlock()
	return a.activityLogPath
}
