// Package camera captures evidence photos and preview frames from attached
// video devices by driving an ffmpeg binary. Device discovery and input
// selection are platform specific; everything else is shared.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"snaplock/internal/procutil"
)

var (
	// ErrNoCamera is returned when the requested device does not exist.
	ErrNoCamera = errors.New("camera not found")
	// ErrFFmpegMissing is returned when no ffmpeg binary can be located.
	ErrFFmpegMissing = errors.New("ffmpeg binary not found")
	// ErrRecordingActive is returned when a recording for the device is
	// already running.
	ErrRecordingActive = errors.New("recording already active for camera")
)

// captureTimeout bounds a single still capture. Cold device initialization
// on Windows dshow can take a couple of seconds.
const captureTimeout = 10 * time.Second

// Device describes one attached video input.
type Device struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Service drives ffmpeg for stills, previews and recordings. Methods are
// safe for concurrent use; at most one recording per device may be live.
type Service struct {
	ffmpegPath string

	mu         sync.Mutex
	recordings map[int]*exec.Cmd
}

// runCommandFn indirects command execution so tests can fake ffmpeg.
var runCommandFn = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	procutil.HideWindow(cmd)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// NewService locates ffmpeg and returns a ready service. A non-empty
// ffmpegPath overrides PATH lookup.
func NewService(ffmpegPath string) (*Service, error) {
	if ffmpegPath == "" {
		found, err := exec.LookPath("ffmpeg")
		if err != nil {
			return nil, ErrFFmpegMissing
		}
		ffmpegPath = found
	} else if _, err := os.Stat(ffmpegPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFFmpegMissing, ffmpegPath)
	}
	return &Service{
		ffmpegPath: ffmpegPath,
		recordings: make(map[int]*exec.Cmd),
	}, nil
}

// listDevicesFn indirects platform enumeration for tests.
var listDevicesFn = listDevices

// ListDevices enumerates attached video inputs.
func (s *Service) ListDevices(ctx context.Context) ([]Device, error) {
	return listDevicesFn(ctx, s.ffmpegPath)
}

// Capture grabs a single frame from the device and writes a timestamped
// JPEG under saveDir, creating the directory if needed. Returns the path
// of the written file.
func (s *Service) Capture(ctx context.Context, cameraID int, saveDir string) (string, error) {
	input, err := s.inputArgs(ctx, cameraID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(saveDir, 0o755); err != nil {
		return "", fmt.Errorf("create save directory %s: %w", saveDir, err)
	}

	filename := fmt.Sprintf("snaplock_capture_%s.jpg", time.Now().Format("20060102_150405"))
	outPath := filepath.Join(saveDir, filename)

	ctx, cancel := context.WithTimeout(ctx, captureTimeout)
	defer cancel()

	args := append(input, "-frames:v", "1", "-q:v", "2", "-y", outPath)
	if _, stderr, err := runCommandFn(ctx, s.ffmpegPath, args...); err != nil {
		return "", fmt.Errorf("capture from camera %d: %w: %s", cameraID, err, lastLine(stderr))
	}
	if fi, err := os.Stat(outPath); err != nil || fi.Size() == 0 {
		return "", fmt.Errorf("capture from camera %d: ffmpeg produced no image", cameraID)
	}
	slog.Info("[camera] photo captured", "camera", cameraID, "path", outPath)
	return outPath, nil
}

// PreviewFrame grabs one downscaled JPEG frame and returns its bytes,
// suitable for streaming to the UI.
func (s *Service) PreviewFrame(ctx context.Context, cameraID int) ([]byte, error) {
	input, err := s.inputArgs(ctx, cameraID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, captureTimeout)
	defer cancel()

	args := append(input,
		"-frames:v", "1",
		"-vf", "scale=320:240",
		"-f", "image2pipe", "-vcodec", "mjpeg", "-")
	stdout, stderr, err := runCommandFn(ctx, s.ffmpegPath, args...)
	if err != nil {
		return nil, fmt.Errorf("preview from camera %d: %w: %s", cameraID, err, lastLine(stderr))
	}
	if len(stdout) == 0 {
		return nil, fmt.Errorf("preview from camera %d: empty frame", cameraID)
	}
	return stdout, nil
}

// CheckAccess reports whether the device exists and a frame can actually be
// read from it.
func (s *Service) CheckAccess(ctx context.Context, cameraID int) bool {
	input, err := s.inputArgs(ctx, cameraID)
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, captureTimeout)
	defer cancel()

	args := append(input, "-frames:v", "1", "-f", "null", "-")
	if _, _, err := runCommandFn(ctx, s.ffmpegPath, args...); err != nil {
		slog.Warn("[camera] access check failed", "camera", cameraID, "error", err)
		return false
	}
	return true
}

// StartRecording begins a bounded video recording and returns the output
// path without waiting for completion.
func (s *Service) StartRecording(ctx context.Context, cameraID int, saveDir string, duration time.Duration) (string, error) {
	input, err := s.inputArgs(ctx, cameraID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(saveDir, 0o755); err != nil {
		return "", fmt.Errorf("create save directory %s: %w", saveDir, err)
	}
	if duration <= 0 {
		duration = 5 * time.Second
	}

	filename := fmt.Sprintf("snaplock_video_%s.mkv", time.Now().Format("20060102_150405"))
	outPath := filepath.Join(saveDir, filename)

	args := append(input,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-crf", "25",
		"-pix_fmt", "yuv420p",
		"-t", fmt.Sprintf("%d", int(duration.Seconds())),
		"-y", outPath)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, live := s.recordings[cameraID]; live {
		return "", ErrRecordingActive
	}
	cmd := exec.Command(s.ffmpegPath, args...)
	procutil.HideWindow(cmd)
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start recording from camera %d: %w", cameraID, err)
	}
	s.recordings[cameraID] = cmd
	go func() {
		cmd.Wait()
		s.mu.Lock()
		if s.recordings[cameraID] == cmd {
			delete(s.recordings, cameraID)
		}
		s.mu.Unlock()
	}()
	slog.Info("[camera] recording started", "camera", cameraID, "path", outPath)
	return outPath, nil
}

// StopRecordings kills every live recording process and waits briefly for
// each to exit.
func (s *Service) StopRecordings() {
	s.mu.Lock()
	cmds := make(map[int]*exec.Cmd, len(s.recordings))
	for id, cmd := range s.recordings {
		cmds[id] = cmd
	}
	s.recordings = make(map[int]*exec.Cmd)
	s.mu.Unlock()

	for id, cmd := range cmds {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		done := make(chan struct{})
		go func() { cmd.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			slog.Warn("[camera] recording did not exit after kill", "camera", id)
		}
	}
}

// inputArgs validates the device exists and returns the platform ffmpeg
// input arguments for it.
func (s *Service) inputArgs(ctx context.Context, cameraID int) ([]string, error) {
	devices, err := listDevicesFn(ctx, s.ffmpegPath)
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.ID == cameraID {
			return deviceInputArgs(d), nil
		}
	}
	ids := make([]int, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.ID)
	}
	return nil, fmt.Errorf("%w: id %d, available %v", ErrNoCamera, cameraID, ids)
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
