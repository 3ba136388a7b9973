package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the write+rename event bursts editors and the
// atomic Save produce into a single reload.
const watchDebounce = 200 * time.Millisecond

// Watch reloads path whenever it changes on disk and invokes onChange with
// the new config. Unparseable intermediate states are skipped. The watcher
// runs until ctx is cancelled. The parent directory is watched rather than
// the file itself so atomic rename-into-place is observed.
func Watch(ctx context.Context, path string, onChange func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		var pending *time.Timer
		reload := func() {
			cfg, err := Load(path)
			if err != nil {
				slog.Warn("[config] external change not applied", "path", path, "error", err)
				return
			}
			slog.Info("[config] reloaded after external change", "path", path)
			onChange(cfg)
		}
		for {
			select {
			case <-ctx.Done():
				if pending != nil {
					pending.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(watchDebounce, reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("[config] watcher error", "error", err)
			}
		}
	}()
	return nil
}
