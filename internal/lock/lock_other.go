//go:build !windows && !linux

package lock

import (
	"context"
	"os/exec"
)

// lockSession suspends the login session on macOS. CGSession is the same
// binary the fast-user-switching menu invokes.
func lockSession(ctx context.Context) error {
	const cgSession = "/System/Library/CoreServices/Menu Extras/User.menu/Contents/Resources/CGSession"
	return exec.CommandContext(ctx, cgSession, "-suspend").Run()
}
