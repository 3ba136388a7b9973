// Package applog tees slog records into the application activity log so the
// frontend panel can display them.
package applog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"
)

// EntryCallback is invoked for each log record at or above the capture
// threshold. group is the accumulated dot-separated slog group name (empty
// when ungrouped); callers typically map it to the entry's target field.
type EntryCallback func(ts time.Time, level slog.Level, msg string, group string)

// TeeHandler wraps a base [slog.Handler] and tees records at or above
// minLevel to a callback. All records are forwarded to the base handler
// regardless of level; only the callback invocation is gated by minLevel.
type TeeHandler struct {
	base     slog.Handler
	callback EntryCallback
	minLevel slog.Level
	group    string
}

// NewTeeHandler creates a TeeHandler that delegates to base and invokes
// callback for every record whose level is >= minLevel.
//
// Passing a nil callback is safe; the handler simply delegates to base
// without teeing.
func NewTeeHandler(base slog.Handler, minLevel slog.Level, callback EntryCallback) *TeeHandler {
	return &TeeHandler{
		base:     base,
		callback: callback,
		minLevel: minLevel,
	}
}

// Enabled reports whether the base handler is enabled for the given level.
// The callback threshold does not affect visibility; the base handler decides.
func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// Handle forwards the record to the base handler, then conditionally invokes
// the callback if the record's level meets or exceeds minLevel.
//
// The callback is invoked regardless of base handler error: the activity log
// entry should not depend on base handler success.
func (h *TeeHandler) Handle(ctx context.Context, record slog.Record) error {
	err := h.base.Handle(ctx, record)

	if h.callback != nil && record.Level >= h.minLevel {
		func() {
			defer func() {
				if r := recover(); r != nil {
					// Callback panic goes to stderr (not slog) to avoid
					// recursive TeeHandler invocation.
					fmt.Fprintf(os.Stderr, "[applog] callback panicked: %v\n%s\n", r, debug.Stack())
				}
			}()
			h.callback(record.Time, record.Level, record.Message, h.group)
		}()
	}

	// Returning the base handler error is intentional. slog.Logger emits it
	// to stderr as an internal fallback, making handler failures visible.
	return err
}

// WithAttrs returns a new TeeHandler whose base handler has the given
// attributes applied. The callback, minLevel, and accumulated group are
// preserved.
func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return &TeeHandler{
		base:     h.base.WithAttrs(attrs),
		callback: h.callback,
		minLevel: h.minLevel,
		group:    h.group,
	}
}

// WithGroup returns a new TeeHandler whose base handler is wrapped with the
// given group name. The name is appended to the accumulated group string,
// separated by "." if a prefix already exists.
func (h *TeeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h // slog.Handler contract: empty group name returns the receiver unchanged.
	}
	newGroup := name
	if h.group != "" {
		newGroup = h.group + "." + name
	}

	return &TeeHandler{
		base:     h.base.WithGroup(name),
		callback: h.callback,
		minLevel: h.minLevel,
		group:    newGroup,
	}
}
