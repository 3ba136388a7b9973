//go:build linux

package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// listDevices enumerates /dev/video* nodes. Device names come from sysfs
// when available.
func listDevices(ctx context.Context, ffmpegPath string) ([]Device, error) {
	nodes, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, fmt.Errorf("scan video devices: %w", err)
	}

	var devices []Device
	for _, node := range nodes {
		id, err := strconv.Atoi(strings.TrimPrefix(node, "/dev/video"))
		if err != nil {
			continue
		}
		name := node
		if raw, err := os.ReadFile(fmt.Sprintf("/sys/class/video4linux/video%d/name", id)); err == nil {
			name = strings.TrimSpace(string(raw))
		}
		devices = append(devices, Device{ID: id, Name: name})
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}

func deviceInputArgs(d Device) []string {
	return []string{"-f", "v4l2", "-i", fmt.Sprintf("/dev/video%d", d.ID)}
}
