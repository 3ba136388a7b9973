//go:build linux

package input

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

const (
	evKey = 0x01
	evRel = 0x02
	evAbs = 0x03

	// Key codes at btnMouse and above are mouse/gamepad buttons.
	btnMouse = 0x100

	// struct input_event on 64-bit: 16 bytes timeval + type + code + value.
	inputEventSize = 24
)

// startRawListener opens every readable /dev/input/event* device and reads
// raw input_event records from each. Key presses dispatch as keyboard
// activity, relative and absolute motion as mouse activity. Requires read
// access to the event devices (typically the "input" group).
func startRawListener(dispatch func(kind Kind)) (func(), error) {
	devices, err := filepath.Glob("/dev/input/event*")
	if err != nil {
		return nil, fmt.Errorf("scan input devices: %w", err)
	}

	var files []*os.File
	for _, dev := range devices {
		f, err := os.Open(dev)
		if err != nil {
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return nil, errors.New("no readable devices under /dev/input; membership in the input group is required")
	}

	var stopped atomic.Bool
	var wg sync.WaitGroup
	for _, f := range files {
		wg.Add(1)
		go func(f *os.File) {
			defer wg.Done()
			buf := make([]byte, inputEventSize)
			for {
				if _, err := f.Read(buf); err != nil {
					return
				}
				if stopped.Load() {
					return
				}
				evType := binary.LittleEndian.Uint16(buf[16:18])
				code := binary.LittleEndian.Uint16(buf[18:20])
				value := int32(binary.LittleEndian.Uint32(buf[20:24]))
				switch evType {
				case evKey:
					if value != 1 {
						continue
					}
					if code >= btnMouse {
						dispatch(KindMouse)
					} else {
						dispatch(KindKeyboard)
					}
				case evRel, evAbs:
					dispatch(KindMouse)
				}
			}
		}(f)
	}

	stop := func() {
		stopped.Store(true)
		for _, f := range files {
			f.Close()
		}
		wg.Wait()
	}
	return stop, nil
}
