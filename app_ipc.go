package main

import (
	"fmt"
	"strconv"
	"strings"

	"snaplock/internal/ipc"
)

// ipcExecutor adapts the App control surface to the ipc.CommandExecutor
// contract: arm, disarm and status for the companion CLI, plus the
// activate-window signal sent by a second launched instance.
type ipcExecutor struct {
	app *App
}

func (e *ipcExecutor) Execute(req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandArm:
		// An optional argument overrides the configured camera for this cycle.
		cameraID := e.app.getConfigSnapshot().CameraID
		if len(req.Args) > 0 {
			id, err := strconv.Atoi(req.Args[0])
			if err != nil || id < 0 {
				return ipc.Response{ExitCode: 2, Stderr: fmt.Sprintf("invalid camera id %q", req.Args[0])}
			}
			cameraID = id
		}
		if err := e.app.StartMonitoring(cameraID); err != nil {
			return ipc.Response{ExitCode: 1, Stderr: err.Error()}
		}
		return ipc.Response{Stdout: "monitoring armed"}
	case ipc.CommandDisarm:
		if err := e.app.StopMonitoring(); err != nil {
			return ipc.Response{ExitCode: 1, Stderr: err.Error()}
		}
		return ipc.Response{Stdout: "monitoring disarmed"}
	case ipc.CommandStatus:
		return ipc.Response{Stdout: e.app.GetMonitoringStatus()}
	case ipc.CommandActivateWindow:
		e.app.bringWindowToFront()
		return ipc.Response{Stdout: "window activated"}
	default:
		return ipc.Response{
			ExitCode: 2,
			Stderr:   fmt.Sprintf("unknown command %q", strings.TrimSpace(req.Command)),
		}
	}
}
