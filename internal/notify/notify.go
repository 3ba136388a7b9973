// Package notify delivers desktop notifications for security events.
package notify

// appID identifies the application in the OS notification center.
const appID = "SnapLock"

// Notifier posts a desktop notification. Implementations must not block on
// user interaction.
type Notifier interface {
	Notify(title, body string) error
}

// SystemNotifier is the OS-backed Notifier. On platforms without a wired
// toast backend it degrades to a log line.
type SystemNotifier struct{}

func NewSystemNotifier() *SystemNotifier { return &SystemNotifier{} }

func (n *SystemNotifier) Notify(title, body string) error {
	return pushNotification(title, body)
}
