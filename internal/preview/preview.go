// Package preview streams live camera preview frames to the settings UI over
// a localhost WebSocket. Each binary message is one JPEG frame.
//
// The client drives the stream with JSON text messages:
//
//	{"action":"start","cameraId":2}
//	{"action":"stop"}
package preview

import (
	"context"
	"time"
)

// frameInterval is the preview frame rate. Two frames per second is plenty
// for a positioning aid and keeps ffmpeg invocations cheap.
const frameInterval = 500 * time.Millisecond

// FrameSource produces one downscaled JPEG frame from a camera.
type FrameSource interface {
	PreviewFrame(ctx context.Context, cameraID int) ([]byte, error)
}

const (
	startAction = "start"
	stopAction  = "stop"
)

// controlMsg is the JSON payload for client start/stop requests.
type controlMsg struct {
	Action   string `json:"action"`
	CameraID int    `json:"cameraId"`
}

// errorMsg is the JSON payload for server error notifications.
type errorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
