//go:build windows

package ipc

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/user"
	"regexp"
	"strings"
	"time"

	"snaplock/internal/userutil"

	"github.com/Microsoft/go-winio"
)

var pipeNamePattern = regexp.MustCompile(`(?i)^\\\\\.\\pipe\\snaplock-[a-z0-9._-]{1,128}$`)

const defaultPipePrefix = `\\.\pipe\snaplock-`

// DefaultEndpoint returns the pipe path to use. If SNAPLOCK_IPC is set and
// passes pattern validation, its value is used; otherwise a per-user default
// is constructed from the current username.
func DefaultEndpoint() string {
	if v, ok := trustedEndpointFromEnv(); ok {
		return v
	}
	username := strings.TrimSpace(os.Getenv("USERNAME"))
	if username == "" {
		if current, err := user.Current(); err == nil {
			username = current.Username
		}
	}
	return defaultPipePrefix + userutil.SanitizeUsername(username)
}

func trustedEndpointFromEnv() (string, bool) {
	value := strings.TrimSpace(os.Getenv("SNAPLOCK_IPC"))
	if value == "" {
		return "", false
	}
	if !pipeNamePattern.MatchString(value) {
		slog.Warn("[ipc] SNAPLOCK_IPC rejected: value does not match allowed pattern", "value", value)
		return "", false
	}
	return value, true
}

// listenEndpoint creates a named pipe listener restricted to the current
// user. The DACL grants access only to SYSTEM and the current user's SID so
// other local users cannot inject arm/disarm commands.
func listenEndpoint(endpoint string) (net.Listener, error) {
	securityDescriptor, err := pipeSecurityDescriptor()
	if err != nil {
		return nil, err
	}
	return winio.ListenPipe(endpoint, &winio.PipeConfig{
		SecurityDescriptor: securityDescriptor,
		MessageMode:        false,
		InputBufferSize:    int32(maxRequestBytes),
		OutputBufferSize:   int32(maxResponseBytes),
	})
}

func dialEndpoint(endpoint string, timeout time.Duration) (net.Conn, error) {
	return winio.DialPipe(endpoint, &timeout)
}

var validSIDPattern = regexp.MustCompile(`^S-1(-\d+)+$`)

func pipeSecurityDescriptor() (string, error) {
	current, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("resolve current user: %w", err)
	}
	sid := strings.TrimSpace(current.Uid)
	if sid == "" {
		return "", errors.New("current user SID is unavailable")
	}
	if !validSIDPattern.MatchString(sid) {
		return "", fmt.Errorf("current user SID has unexpected format: %s", sid)
	}
	// D:P = protected DACL, full access for SYSTEM and the current user only.
	return fmt.Sprintf("D:P(A;;GA;;;SY)(A;;GA;;;%s)", sid), nil
}
