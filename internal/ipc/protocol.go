// Package ipc carries control commands between SnapLock processes: a second
// launched instance (or a companion CLI) sends a command, the running
// instance executes it. One request and one response per connection, both
// newline-delimited JSON.
package ipc

import "encoding/json"

// Request is a single control command.
type Request struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// Response is the command result.
type Response struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

// Commands understood by the running instance.
const (
	CommandArm            = "arm"
	CommandDisarm         = "disarm"
	CommandStatus         = "status"
	CommandActivateWindow = "activate-window"
)

// CommandExecutor handles a control request and returns a response.
type CommandExecutor interface {
	Execute(req Request) Response
}

func encodeRequest(req Request) ([]byte, error) {
	return json.Marshal(req)
}

func decodeRequest(raw []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, err
	}
	return req, nil
}

func encodeResponse(resp Response) ([]byte, error) {
	return json.Marshal(resp)
}

func decodeResponse(raw []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}
