//go:build !windows

package sessionmon

// sessionLocked has no reliable cross-desktop probe outside Windows; the
// monitor simply never reports a transition.
func sessionLocked() bool { return false }
