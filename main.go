package main

import (
	"embed"
	"errors"
	"log/slog"

	"snaplock/internal/ipc"
	"snaplock/internal/singleinstance"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	// Single-instance check BEFORE any Wails/WebView2 initialization.
	// A second monitoring process would fight the first over the global
	// input hooks and the hotkey registration.
	mutexLock, err := singleinstance.TryLock(singleinstance.DefaultMutexName())
	if errors.Is(err, singleinstance.ErrAlreadyRunning) {
		slog.Info("[single] another instance is already running, signaling activation")
		if _, sendErr := ipc.Send("", ipc.Request{Command: ipc.CommandActivateWindow}); sendErr != nil {
			slog.Warn("[single] failed to signal existing instance", "error", sendErr)
		}
		return
	}
	if err != nil {
		// Mutex creation failed for unexpected reason. Continue startup;
		// the IPC endpoint bind below still rejects a duplicate instance.
		slog.Warn("[single] mutex creation failed, proceeding without single-instance guard", "error", err)
	}
	if mutexLock != nil {
		defer func() {
			if releaseErr := mutexLock.Release(); releaseErr != nil {
				slog.Warn("[single] mutex release failed", "error", releaseErr)
			}
		}()
	}

	app := NewApp()

	err = wails.Run(&options.App{
		Title:     "SnapLock",
		Width:     920,
		Height:    640,
		MinWidth:  720,
		MinHeight: 520,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: 12, G: 14, B: 20, A: 1},
		OnStartup:        app.startup,
		OnShutdown:       app.shutdown,
		Bind: []any{
			app,
		},
	})

	if err != nil {
		slog.Error("[single] wails run failed", "error", err)
	}
}
