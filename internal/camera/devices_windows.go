//go:build windows

package camera

import (
	"context"
	"fmt"
	"strings"
)

// listDevices parses ffmpeg's dshow device dump. ffmpeg exits non-zero for
// the dummy input, so the error is ignored when the listing produced output.
func listDevices(ctx context.Context, ffmpegPath string) ([]Device, error) {
	_, stderr, err := runCommandFn(ctx, ffmpegPath,
		"-hide_banner", "-list_devices", "true", "-f", "dshow", "-i", "dummy")
	if err != nil && len(stderr) == 0 {
		return nil, fmt.Errorf("list dshow devices: %w", err)
	}

	var devices []Device
	for _, line := range strings.Split(string(stderr), "\n") {
		if !strings.Contains(line, "(video)") {
			continue
		}
		start := strings.Index(line, `"`)
		end := strings.LastIndex(line, `"`)
		if start < 0 || end <= start {
			continue
		}
		devices = append(devices, Device{
			ID:   len(devices),
			Name: line[start+1 : end],
		})
	}
	return devices, nil
}

func deviceInputArgs(d Device) []string {
	return []string{"-f", "dshow", "-i", "video=" + d.Name}
}
