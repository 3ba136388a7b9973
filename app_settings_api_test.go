package main

// NOTE: These tests override runtimeEventsEmitFn, a process-global seam.
// Do not use t.Parallel() in this file.

import (
	"errors"
	"path/filepath"
	"testing"

	"snaplock/internal/config"
)

func TestSetCameraIDPersistsAndEmits(t *testing.T) {
	rec := captureRuntimeEvents(t)
	app, _ := newTestApp(t)

	if err := app.SetCameraID(3); err != nil {
		t.Fatalf("SetCameraID failed: %v", err)
	}

	if got := app.getConfigSnapshot().CameraID; got != 3 {
		t.Fatalf("snapshot camera id = %d, want 3", got)
	}
	saved, err := config.Load(app.configPath)
	if err != nil {
		t.Fatalf("reloading config failed: %v", err)
	}
	if saved.CameraID != 3 {
		t.Fatalf("persisted camera id = %d, want 3", saved.CameraID)
	}

	updates := rec.byName(eventConfigUpdated)
	if len(updates) != 1 {
		t.Fatalf("config:updated events = %d, want 1", len(updates))
	}
	if payload := updates[0].payload.(config.Config); payload.CameraID != 3 {
		t.Fatalf("event payload camera id = %d, want 3", payload.CameraID)
	}
}

func TestCommitConfigChangeRejectsInvalidValue(t *testing.T) {
	rec := captureRuntimeEvents(t)
	app, _ := newTestApp(t)

	if err := app.SetPostTriggerAction("explode"); err == nil {
		t.Fatal("unknown post-trigger action should be rejected")
	}

	// The committed state must be untouched and no event emitted.
	if got := app.getConfigSnapshot().PostTriggerAction; got != config.CaptureAndLock {
		t.Fatalf("snapshot action = %q, want %q", got, config.CaptureAndLock)
	}
	if got := app.settingsDraft.Committed().PostTriggerAction; got != config.CaptureAndLock {
		t.Fatalf("committed action = %q, want %q", got, config.CaptureAndLock)
	}
	if len(rec.byName(eventConfigUpdated)) != 0 {
		t.Fatal("rejected change must not emit config:updated")
	}
}

func TestCommitConfigChangeRollsBackOnSaveFailure(t *testing.T) {
	rec := captureRuntimeEvents(t)
	app, _ := newTestApp(t)
	// A directory at the config path makes the atomic rename fail.
	app.configPath = t.TempDir()

	if err := app.SetExitOnLock(true); err == nil {
		t.Fatal("save onto a directory should fail")
	}

	if app.getConfigSnapshot().ExitOnLock {
		t.Fatal("snapshot must keep the committed value after a failed save")
	}
	if app.settingsDraft.Committed().ExitOnLock {
		t.Fatal("draft must roll back to the committed value after a failed save")
	}
	if len(rec.byName(eventConfigUpdated)) != 0 {
		t.Fatal("failed save must not emit config:updated")
	}

	// A later valid change must commit cleanly from the rolled-back state.
	app.configPath = filepath.Join(app.configPath, "config.yaml")
	if err := app.SetExitOnLock(true); err != nil {
		t.Fatalf("commit after rollback failed: %v", err)
	}
	if !app.getConfigSnapshot().ExitOnLock {
		t.Fatal("snapshot should carry the new value after recovery")
	}
}

func TestSettingsSettersUpdateTheirFields(t *testing.T) {
	captureRuntimeEvents(t)
	app, _ := newTestApp(t)

	dir := t.TempDir()
	steps := []struct {
		name  string
		apply func() error
		check func(cfg config.Config) bool
	}{
		{
			name:  "save path",
			apply: func() error { return app.SetSavePath(dir) },
			check: func(cfg config.Config) bool { return cfg.SavePath == dir },
		},
		{
			name:  "post trigger action",
			apply: func() error { return app.SetPostTriggerAction(string(config.CaptureOnly)) },
			check: func(cfg config.Config) bool { return cfg.PostTriggerAction == config.CaptureOnly },
		},
		{
			name:  "notifications",
			apply: func() error { return app.SetNotificationsEnabled(false) },
			check: func(cfg config.Config) bool { return !cfg.NotificationsEnabled },
		},
		{
			name:  "debug logs",
			apply: func() error { return app.SetShowDebugLogs(true) },
			check: func(cfg config.Config) bool { return cfg.ShowDebugLogs },
		},
		{
			name:  "file log sink",
			apply: func() error { return app.SetSaveLogsToFile(true) },
			check: func(cfg config.Config) bool { return cfg.SaveLogsToFile },
		},
	}

	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			if err := step.apply(); err != nil {
				t.Fatalf("setter failed: %v", err)
			}
			if !step.check(app.getConfigSnapshot()) {
				t.Fatal("snapshot does not reflect the change")
			}
			saved, err := config.Load(app.configPath)
			if err != nil {
				t.Fatalf("reloading config failed: %v", err)
			}
			if !step.check(saved) {
				t.Fatal("persisted config does not reflect the change")
			}
		})
	}
}

func TestCommitConfigChangeWithoutDraft(t *testing.T) {
	captureRuntimeEvents(t)
	app := NewApp()

	if err := app.SetCameraID(1); err == nil {
		t.Fatal("commit before startup should fail")
	}
}

func TestListCamerasWithoutService(t *testing.T) {
	app, _ := newTestApp(t)

	if _, err := app.ListCameras(); !errors.Is(err, errCameraUnavailable) {
		t.Fatalf("ListCameras = %v, want errCameraUnavailable", err)
	}
}

func TestCheckCameraAccessWithoutService(t *testing.T) {
	app, _ := newTestApp(t)

	if app.CheckCameraAccess(0) {
		t.Fatal("access check must fail without a camera service")
	}
}

func TestStartVideoRecordingWithoutService(t *testing.T) {
	app, _ := newTestApp(t)

	if _, err := app.StartVideoRecording(0, 5); !errors.Is(err, errCameraUnavailable) {
		t.Fatalf("StartVideoRecording = %v, want errCameraUnavailable", err)
	}
}

func TestStopVideoRecordingWithoutServiceIsNoOp(t *testing.T) {
	app, _ := newTestApp(t)

	app.StopVideoRecording()
}

func TestGetCaptureHistoryWithoutJournal(t *testing.T) {
	app, _ := newTestApp(t)

	captures, err := app.GetCaptureHistory(10)
	if err != nil {
		t.Fatalf("GetCaptureHistory failed: %v", err)
	}
	if captures == nil || len(captures) != 0 {
		t.Fatalf("captures = %v, want empty non-nil slice", captures)
	}
}
