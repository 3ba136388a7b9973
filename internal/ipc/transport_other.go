//go:build !windows

package ipc

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"snaplock/internal/userutil"
)

var socketPathPattern = regexp.MustCompile(`^/[^\0]{1,200}\.sock$`)

// DefaultEndpoint returns the unix socket path to use. If SNAPLOCK_IPC is
// set and passes pattern validation, its value is used; otherwise a per-user
// default under the temp directory.
func DefaultEndpoint() string {
	if v, ok := trustedEndpointFromEnv(); ok {
		return v
	}
	username := ""
	if current, err := user.Current(); err == nil {
		username = current.Username
	}
	return filepath.Join(os.TempDir(),
		fmt.Sprintf("snaplock-%s.sock", userutil.SanitizeUsername(username)))
}

func trustedEndpointFromEnv() (string, bool) {
	value := strings.TrimSpace(os.Getenv("SNAPLOCK_IPC"))
	if value == "" {
		return "", false
	}
	if !socketPathPattern.MatchString(value) {
		slog.Warn("[ipc] SNAPLOCK_IPC rejected: value does not match allowed pattern", "value", value)
		return "", false
	}
	return value, true
}

// listenEndpoint binds a unix socket restricted to the current user. A stale
// socket from a crashed run is removed only when nothing is listening on it.
func listenEndpoint(endpoint string) (net.Listener, error) {
	if _, err := os.Stat(endpoint); err == nil {
		if conn, dialErr := net.DialTimeout("unix", endpoint, time.Second); dialErr == nil {
			conn.Close()
			return nil, fmt.Errorf("endpoint %s is in use", endpoint)
		}
		if err := os.Remove(endpoint); err != nil {
			return nil, fmt.Errorf("remove stale socket %s: %w", endpoint, err)
		}
	}

	listener, err := net.Listen("unix", endpoint)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(endpoint, 0o600); err != nil {
		listener.Close()
		os.Remove(endpoint)
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}
	return listener, nil
}

func dialEndpoint(endpoint string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", endpoint, timeout)
}
