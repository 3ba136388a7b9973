//go:build !windows

package notify

import "log/slog"

func pushNotification(title, body string) error {
	slog.Info("[notify] notification", "title", title, "body", body)
	return nil
}
