package camera

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func withFakes(t *testing.T, devices []Device, run func(ctx context.Context, name string, args ...string) ([]byte, []byte, error)) {
	t.Helper()
	prevList, prevRun := listDevicesFn, runCommandFn
	listDevicesFn = func(context.Context, string) ([]Device, error) {
		return devices, nil
	}
	if run != nil {
		runCommandFn = run
	}
	t.Cleanup(func() {
		listDevicesFn, runCommandFn = prevList, prevRun
	})
}

func TestCaptureWritesTimestampedJPEG(t *testing.T) {
	dir := t.TempDir()
	withFakes(t, []Device{{ID: 0, Name: "Integrated Webcam"}},
		func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
			out := args[len(args)-1]
			if err := os.WriteFile(out, []byte("jpegdata"), 0o644); err != nil {
				return nil, nil, err
			}
			return nil, nil, nil
		})

	s := &Service{ffmpegPath: "ffmpeg"}
	path, err := s.Capture(context.Background(), 0, dir)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "snaplock_capture_") || !strings.HasSuffix(base, ".jpg") {
		t.Errorf("unexpected capture filename %q", base)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("capture file missing: %v", err)
	}
}

func TestCaptureUnknownCamera(t *testing.T) {
	withFakes(t, []Device{{ID: 0, Name: "Integrated Webcam"}}, nil)

	s := &Service{ffmpegPath: "ffmpeg"}
	_, err := s.Capture(context.Background(), 7, t.TempDir())
	if !errors.Is(err, ErrNoCamera) {
		t.Fatalf("err = %v, want ErrNoCamera", err)
	}
}

func TestCaptureEmptyOutputIsError(t *testing.T) {
	withFakes(t, []Device{{ID: 0, Name: "Integrated Webcam"}},
		func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
			return nil, nil, nil
		})

	s := &Service{ffmpegPath: "ffmpeg"}
	if _, err := s.Capture(context.Background(), 0, t.TempDir()); err == nil {
		t.Fatal("Capture succeeded despite ffmpeg writing nothing")
	}
}

func TestPreviewFrameReturnsStdout(t *testing.T) {
	withFakes(t, []Device{{ID: 2, Name: "USB Camera"}},
		func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
			return []byte{0xFF, 0xD8, 0xFF}, nil, nil
		})

	s := &Service{ffmpegPath: "ffmpeg"}
	frame, err := s.PreviewFrame(context.Background(), 2)
	if err != nil {
		t.Fatalf("PreviewFrame: %v", err)
	}
	if len(frame) != 3 || frame[0] != 0xFF {
		t.Errorf("unexpected frame bytes %v", frame)
	}
}

func TestCheckAccess(t *testing.T) {
	fail := errors.New("device busy")
	tests := []struct {
		name   string
		runErr error
		want   bool
	}{
		{"readable", nil, true},
		{"busy", fail, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withFakes(t, []Device{{ID: 0, Name: "cam"}},
				func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
					return nil, nil, tt.runErr
				})
			s := &Service{ffmpegPath: "ffmpeg"}
			if got := s.CheckAccess(context.Background(), 0); got != tt.want {
				t.Errorf("CheckAccess = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStartRecordingUnknownCamera(t *testing.T) {
	withFakes(t, []Device{{ID: 0, Name: "Integrated Webcam"}}, nil)

	s := &Service{ffmpegPath: "ffmpeg", recordings: make(map[int]*exec.Cmd)}
	_, err := s.StartRecording(context.Background(), 7, t.TempDir(), 5*time.Second)
	if !errors.Is(err, ErrNoCamera) {
		t.Fatalf("err = %v, want ErrNoCamera", err)
	}
}

func TestStartRecordingRejectsSecondRecording(t *testing.T) {
	withFakes(t, []Device{{ID: 0, Name: "Integrated Webcam"}}, nil)

	s := &Service{
		ffmpegPath: "ffmpeg",
		recordings: map[int]*exec.Cmd{0: {}},
	}
	_, err := s.StartRecording(context.Background(), 0, t.TempDir(), 5*time.Second)
	if !errors.Is(err, ErrRecordingActive) {
		t.Fatalf("err = %v, want ErrRecordingActive", err)
	}
}

func TestStopRecordingsWithNoneLive(t *testing.T) {
	s := &Service{ffmpegPath: "ffmpeg", recordings: make(map[int]*exec.Cmd)}
	s.StopRecordings()

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.recordings) != 0 {
		t.Fatalf("recordings = %v, want empty", s.recordings)
	}
}

func TestNewServiceMissingBinary(t *testing.T) {
	if _, err := NewService(filepath.Join(t.TempDir(), "nope")); !errors.Is(err, ErrFFmpegMissing) {
		t.Fatalf("err = %v, want ErrFFmpegMissing", err)
	}
}
