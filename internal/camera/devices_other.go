//go:build !windows && !linux

package camera

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// listDevices parses ffmpeg's avfoundation device dump. Lines look like
// "[AVFoundation ...] [0] FaceTime HD Camera"; audio devices follow a
// separate header and are skipped.
func listDevices(ctx context.Context, ffmpegPath string) ([]Device, error) {
	_, stderr, err := runCommandFn(ctx, ffmpegPath,
		"-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", "")
	if err != nil && len(stderr) == 0 {
		return nil, fmt.Errorf("list avfoundation devices: %w", err)
	}

	var devices []Device
	inVideo := false
	for _, line := range strings.Split(string(stderr), "\n") {
		switch {
		case strings.Contains(line, "video devices"):
			inVideo = true
			continue
		case strings.Contains(line, "audio devices"):
			inVideo = false
			continue
		}
		if !inVideo {
			continue
		}
		open := strings.LastIndex(line, "[")
		close := strings.LastIndex(line, "]")
		if open < 0 || close <= open {
			continue
		}
		id, err := strconv.Atoi(line[open+1 : close])
		if err != nil {
			continue
		}
		devices = append(devices, Device{
			ID:   id,
			Name: strings.TrimSpace(line[close+1:]),
		})
	}
	return devices, nil
}

func deviceInputArgs(d Device) []string {
	return []string{"-f", "avfoundation", "-framerate", "30", "-i", strconv.Itoa(d.ID)}
}
