// Package config loads and persists SnapLock runtime configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"snaplock/internal/shortcut"
)

const (
	maxConfigFileBytes int64 = 1 << 20 // 1MB
	maxRenameRetry           = 10
	// Windows file lock releases (antivirus/indexing) typically settle quickly.
	// Use a short linear backoff: baseDelay * (1..maxRenameRetry).
	renameRetryBaseDelay = 10 * time.Millisecond
	// maxValidPort is the highest TCP port number. Port 0 means "OS auto-assign".
	maxValidPort = 65535
)

// userHomeDirFn is a test seam; tests override it to simulate home-directory
// resolution failures.
var userHomeDirFn = os.UserHomeDir

// PostTriggerAction selects what the trigger pipeline does after the capture
// step.
type PostTriggerAction string

const (
	// CaptureAndLock captures a photo and then locks the screen.
	CaptureAndLock PostTriggerAction = "capture_and_lock"
	// CaptureOnly captures a photo and returns to idle without locking.
	CaptureOnly PostTriggerAction = "capture_only"
)

// Config is SnapLock runtime configuration.
type Config struct {
	// Shortcut is the global hotkey that toggles monitoring,
	// serialized in the canonical "Ctrl+Alt+L" form.
	Shortcut string `yaml:"shortcut" json:"shortcut"`
	CameraID int    `yaml:"camera_id" json:"camera_id"`
	// SavePath is the directory captured photos are written to.
	// Empty string means "use the default pictures directory".
	SavePath          string            `yaml:"save_path,omitempty" json:"save_path,omitempty"`
	ExitOnLock        bool              `yaml:"exit_on_lock" json:"exit_on_lock"`
	PostTriggerAction PostTriggerAction `yaml:"post_trigger_action" json:"post_trigger_action"`
	// NotificationsEnabled gates all system notifications (armed, disarmed,
	// security alert on trigger).
	NotificationsEnabled bool `yaml:"notifications_enabled" json:"notifications_enabled"`
	ShowDebugLogs        bool `yaml:"show_debug_logs" json:"show_debug_logs"`
	SaveLogsToFile       bool `yaml:"save_logs_to_file" json:"save_logs_to_file"`
	// PreviewPort is the port for the local WebSocket server used for
	// camera preview frame streaming. 0 (default) lets the OS assign an
	// available port, which is recommended to avoid port conflicts.
	PreviewPort int `yaml:"preview_port" json:"preview_port"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		Shortcut:             "Alt+L",
		CameraID:             0,
		ExitOnLock:           false,
		PostTriggerAction:    CaptureAndLock,
		NotificationsEnabled: true,
	}
}

// DefaultPath resolves the config file path, preferring LOCALAPPDATA over
// APPDATA on Windows, falling back to ~/.config, and then to os.TempDir()
// if the home directory cannot be resolved. The temp-dir fallback is not a
// stable persistence location.
func DefaultPath() string {
	base := ""
	if runtime.GOOS == "windows" {
		base = strings.TrimSpace(os.Getenv("LOCALAPPDATA"))
		if base == "" {
			base = strings.TrimSpace(os.Getenv("APPDATA"))
		}
	}
	if base == "" {
		home, err := userHomeDirFn()
		if err != nil {
			slog.Warn("[config] using temp dir as config path fallback", "error", err)
			base = os.TempDir()
		} else {
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, "snaplock", "config.yaml")
}

// Load reads the config file. If the file does not exist, defaults are
// returned with a nil error. A file that exists but fails to parse or
// validate returns defaults along with the error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, errors.New("config path required")
	}

	raw, err := readLimitedFile(path, maxConfigFileBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		slog.Warn("[config] failed to parse config, using defaults", "path", path, "error", err)
		return DefaultConfig(), err
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// EnsureFile writes the default config if missing and returns the loaded
// config.
func EnsureFile(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if _, err := Save(path, cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// Save validates cfg, fills defaults, and atomically writes it to path.
// Returns the normalized config that was actually written to disk.
func Save(path string, cfg Config) (Config, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return cfg, errors.New("config path required")
	}
	absolute, err := filepath.Abs(trimmed)
	if err != nil {
		return cfg, fmt.Errorf("save config: resolve path: %w", err)
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, fmt.Errorf("save config: %w", err)
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return cfg, fmt.Errorf("save config: marshal: %w", err)
	}
	if err := atomicWrite(absolute, raw); err != nil {
		return cfg, err
	}
	slog.Debug("[config] config saved", "path", path)
	return cfg, nil
}

// applyDefaultsAndValidate normalizes cfg in place. Invalid values for
// enumerated or bounded fields are errors; a missing shortcut falls back to
// the default binding so the app never starts without one.
func applyDefaultsAndValidate(cfg *Config) error {
	cfg.Shortcut = strings.TrimSpace(cfg.Shortcut)
	if cfg.Shortcut == "" {
		cfg.Shortcut = DefaultConfig().Shortcut
	}
	binding, err := shortcut.Parse(cfg.Shortcut)
	if err != nil {
		return fmt.Errorf("shortcut: %w", err)
	}
	cfg.Shortcut = binding.String()

	if cfg.PostTriggerAction == "" {
		cfg.PostTriggerAction = CaptureAndLock
	}
	switch cfg.PostTriggerAction {
	case CaptureAndLock, CaptureOnly:
	default:
		return fmt.Errorf("post_trigger_action: unknown value %q", cfg.PostTriggerAction)
	}

	if cfg.CameraID < 0 {
		return fmt.Errorf("camera_id: must be non-negative, got %d", cfg.CameraID)
	}
	if cfg.PreviewPort < 0 || cfg.PreviewPort > maxValidPort {
		return fmt.Errorf("preview_port: out of range: %d", cfg.PreviewPort)
	}
	cfg.SavePath = strings.TrimSpace(cfg.SavePath)
	return nil
}

// readLimitedFile reads at most limit bytes from path, failing on larger
// files instead of truncating them silently.
func readLimitedFile(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > limit {
		return nil, fmt.Errorf("config file exceeds %d bytes: %s", limit, path)
	}
	return raw, nil
}

// atomicWrite writes config data using temp-file + rename to avoid partial
// writes and retries rename on Windows to tolerate transient file locks.
func atomicWrite(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("save config: mkdir: %w", err)
	}

	// Temp file + rename in the same directory ensures a same-filesystem
	// rename and prevents partial writes on crash.
	tmpFile, err := os.CreateTemp(dir, ".config.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("save config: create temp: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			if closeErr := tmpFile.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
				slog.Warn("[config] failed to close temp file", "path", tmpPath, "error", closeErr)
			}
		}
		if err != nil {
			if removeErr := os.Remove(tmpPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				slog.Warn("[config] failed to remove temp file", "path", tmpPath, "error", removeErr)
			}
		}
	}()

	if err = tmpFile.Chmod(0o600); err != nil {
		return fmt.Errorf("save config: chmod temp: %w", err)
	}
	if _, err = tmpFile.Write(data); err != nil {
		return fmt.Errorf("save config: write: %w", err)
	}
	if err = tmpFile.Sync(); err != nil {
		return fmt.Errorf("save config: sync: %w", err)
	}
	err = tmpFile.Close()
	tmpFile = nil
	if err != nil {
		return fmt.Errorf("save config: close: %w", err)
	}

	if err = renameFileWithRetry(tmpPath, path); err != nil {
		return fmt.Errorf("save config: rename: %w", err)
	}
	return nil
}

func renameFileWithRetry(oldPath, newPath string) error {
	var lastErr error
	for attempt := 1; attempt <= maxRenameRetry; attempt++ {
		lastErr = os.Rename(oldPath, newPath)
		if lastErr == nil {
			return nil
		}
		time.Sleep(renameRetryBaseDelay * time.Duration(attempt))
	}
	return lastErr
}
