//go:build windows

package sessionmon

import (
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procGetForegroundWindow = user32.NewProc("GetForegroundWindow")
	procGetWindowTextW      = user32.NewProc("GetWindowTextW")
)

// Window titles that identify the Windows lock screen.
var lockIndicators = []string{
	"Windows Default Lock Screen",
	"LockApp",
	"Windows.UI.Core.CoreWindow",
}

// sessionLocked inspects the foreground window. No foreground window at all
// also reads as locked; the confirmation threshold in the poll loop absorbs
// the false positives this produces.
func sessionLocked() bool {
	hwnd, _, _ := procGetForegroundWindow.Call()
	if hwnd == 0 {
		return true
	}

	var buf [256]uint16
	n, _, _ := procGetWindowTextW.Call(hwnd,
		uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if n == 0 {
		return false
	}
	title := windows.UTF16ToString(buf[:n])
	for _, indicator := range lockIndicators {
		if strings.Contains(title, indicator) {
			return true
		}
	}
	return false
}
