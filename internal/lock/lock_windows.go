//go:build windows

package lock

import (
	"context"
	"fmt"

	"golang.org/x/sys/windows"
)

var (
	user32              = windows.NewLazySystemDLL("user32.dll")
	procLockWorkStation = user32.NewProc("LockWorkStation")
)

// lockSession calls LockWorkStation directly. The call is asynchronous on
// the OS side, so a successful return means the lock was requested, not
// that the session is already locked.
func lockSession(ctx context.Context) error {
	ret, _, err := procLockWorkStation.Call()
	if ret == 0 {
		return fmt.Errorf("LockWorkStation: %w", err)
	}
	return nil
}
