//go:build linux

package lock

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
)

// lockCommands are tried in order; the first one that exists and succeeds
// wins. Coverage: systemd-logind, freedesktop screensavers, LightDM.
var lockCommands = [][]string{
	{"loginctl", "lock-session"},
	{"xdg-screensaver", "lock"},
	{"dm-tool", "lock"},
}

func lockSession(ctx context.Context) error {
	var lastErr error
	for _, argv := range lockCommands {
		if _, err := exec.LookPath(argv[0]); err != nil {
			continue
		}
		if err := exec.CommandContext(ctx, argv[0], argv[1:]...).Run(); err != nil {
			slog.Warn("[lock] lock command failed", "command", argv[0], "error", err)
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return errors.New("no screen lock command available")
}
