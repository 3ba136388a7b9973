// Package lock engages the operating system screen lock.
package lock

import "context"

// Locker locks the interactive session. Implementations must be safe to
// call from any goroutine and should respect ctx cancellation where the
// underlying mechanism allows it.
type Locker interface {
	Lock(ctx context.Context) error
}

// SystemLocker is the OS-backed Locker.
type SystemLocker struct{}

func NewSystemLocker() *SystemLocker { return &SystemLocker{} }

func (l *SystemLocker) Lock(ctx context.Context) error {
	return lockSession(ctx)
}
