package main

import (
	"context"
	"errors"
	"time"

	"snaplock/internal/camera"
	"snaplock/internal/config"
	"snaplock/internal/journal"
)

// deviceQueryTimeout bounds camera enumeration and permission probes so a
// hung ffmpeg cannot stall a settings dialog.
const deviceQueryTimeout = 10 * time.Second

var errCameraUnavailable = errors.New("camera service is not available (ffmpeg missing)")

// GetConfig returns the current config and surfaces any pending startup
// warnings. Wails-bound: the frontend calls this on mount.
func (a *App) GetConfig() config.Config {
	a.flushPendingConfigLoadWarnings()
	return a.getConfigSnapshot()
}

// SetCameraID selects the camera used for evidence capture.
func (a *App) SetCameraID(id int) error {
	return a.commitConfigChange(func(cfg *config.Config) { cfg.CameraID = id })
}

// SetSavePath sets the directory captured photos are written to. Empty
// resets to the default pictures directory.
func (a *App) SetSavePath(path string) error {
	return a.commitConfigChange(func(cfg *config.Config) { cfg.SavePath = path })
}

// SetExitOnLock controls whether SnapLock exits after a triggered lock.
func (a *App) SetExitOnLock(enabled bool) error {
	return a.commitConfigChange(func(cfg *config.Config) { cfg.ExitOnLock = enabled })
}

// SetPostTriggerAction selects "capture_and_lock" or "capture_only".
func (a *App) SetPostTriggerAction(action string) error {
	return a.commitConfigChange(func(cfg *config.Config) {
		cfg.PostTriggerAction = config.PostTriggerAction(action)
	})
}

// SetNotificationsEnabled gates all system notifications.
func (a *App) SetNotificationsEnabled(enabled bool) error {
	return a.commitConfigChange(func(cfg *config.Config) { cfg.NotificationsEnabled = enabled })
}

// SetShowDebugLogs controls debug-level visibility in the activity log panel.
func (a *App) SetShowDebugLogs(enabled bool) error {
	return a.commitConfigChange(func(cfg *config.Config) { cfg.ShowDebugLogs = enabled })
}

// SetSaveLogsToFile controls the JSONL activity log file sink. Takes effect
// on the next start; the running sink is not reopened mid-session.
func (a *App) SetSaveLogsToFile(enabled bool) error {
	return a.commitConfigChange(func(cfg *config.Config) { cfg.SaveLogsToFile = enabled })
}

// commitConfigChange applies mutate to a draft of the committed config and
// two-phase-commits it: persisted and promoted on success, rolled back to the
// last committed value on failure. The config:updated event carries the
// normalized config that was actually written.
func (a *App) commitConfigChange(mutate func(*config.Config)) error {
	a.cfgSaveMu.Lock()
	draft := a.settingsDraft
	if draft == nil {
		a.cfgSaveMu.Unlock()
		return errors.New("configuration is not loaded yet")
	}

	candidate := draft.Committed()
	mutate(&candidate)
	draft.Set(candidate)

	err := draft.Commit(func(cfg config.Config) error {
		normalized, saveErr := config.Save(a.configPath, cfg)
		if saveErr != nil {
			return saveErr
		}
		a.setConfigSnapshot(normalized)
		return nil
	})
	a.cfgSaveMu.Unlock()
	if err != nil {
		return err
	}

	// Event emission intentionally happens outside cfgSaveMu.
	a.emitRuntimeEvent(eventConfigUpdated, a.getConfigSnapshot())
	return nil
}

// ListCameras enumerates the attached video capture devices.
// Wails-bound: the settings dialog populates its camera dropdown with this.
func (a *App) ListCameras() ([]camera.Device, error) {
	if a.camera == nil {
		return nil, errCameraUnavailable
	}
	ctx, cancel := context.WithTimeout(context.Background(), deviceQueryTimeout)
	defer cancel()
	return a.camera.ListDevices(ctx)
}

// CheckCameraAccess probes whether the configured camera can be opened.
func (a *App) CheckCameraAccess(cameraID int) bool {
	if a.camera == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), deviceQueryTimeout)
	defer cancel()
	return a.camera.CheckAccess(ctx, cameraID)
}

// StartVideoRecording begins a bounded recording from the given camera into
// the configured save path and returns the output file path without waiting
// for the recording to finish. durationSeconds <= 0 uses the service default.
// Wails-bound. At most one recording per camera may be live.
func (a *App) StartVideoRecording(cameraID, durationSeconds int) (string, error) {
	if a.camera == nil {
		return "", errCameraUnavailable
	}
	ctx, cancel := context.WithTimeout(context.Background(), deviceQueryTimeout)
	defer cancel()
	duration := time.Duration(durationSeconds) * time.Second
	return a.camera.StartRecording(ctx, cameraID, a.getConfigSnapshot().SavePath, duration)
}

// StopVideoRecording stops every live recording. Wails-bound; safe to call
// when none is running.
func (a *App) StopVideoRecording() {
	if a.camera == nil {
		return
	}
	a.camera.StopRecordings()
}

// GetCaptureHistory returns the most recent evidence captures, newest first.
// Wails-bound: backs the history panel. Returns an empty slice when the
// journal is unavailable.
func (a *App) GetCaptureHistory(limit int) ([]journal.Capture, error) {
	if a.journal == nil {
		return []journal.Capture{}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), deviceQueryTimeout)
	defer cancel()
	return a.journal.RecentCaptures(ctx, limit)
}
