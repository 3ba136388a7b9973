package main

// ActivityLogEntry is a single record in the activity log panel. Seq is a
// monotonically increasing sequence number assigned at write time, giving
// the frontend a stable deduplication key across snapshot fetches.
type ActivityLogEntry struct {
	Seq       uint64 `json:"seq"`
	Timestamp string `json:"ts"`    // "20060102150405" format
	Level     string `json:"level"` // "debug", "info", "warn", "error"
	Message   string `json:"msg"`
	Target    string `json:"target"` // slog group or component name
}

// activityLogRingBuffer is a fixed-capacity circular buffer for
// ActivityLogEntry. It avoids O(N) slice copies on every append by
// overwriting the oldest entry when full.
//
// Not safe for concurrent use; callers must hold activityLogMu.
type activityLogRingBuffer struct {
	buf   []ActivityLogEntry
	head  int // index of the oldest entry (next to be overwritten when full)
	count int // number of valid entries (0..cap)
}

// newActivityLogRingBuffer allocates a ring buffer with the given capacity.
// Capacity values <= 0 are clamped to 1 to prevent modulo-by-zero panics.
func newActivityLogRingBuffer(capacity int) activityLogRingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return activityLogRingBuffer{
		buf: make([]ActivityLogEntry, capacity),
	}
}

// push appends an entry. When full, the oldest entry is overwritten.
func (rb *activityLogRingBuffer) push(entry ActivityLogEntry) {
	bufCap := len(rb.buf)
	if bufCap == 0 {
		return
	}
	if rb.count < bufCap {
		rb.buf[(rb.head+rb.count)%bufCap] = entry
		rb.count++
	} else {
		rb.buf[rb.head] = entry
		rb.head = (rb.head + 1) % bufCap
	}
}

// snapshot returns a newly allocated slice of all entries in chronological
// order (oldest first), independent of the internal storage.
func (rb *activityLogRingBuffer) snapshot() []ActivityLogEntry {
	if rb.count == 0 {
		return []ActivityLogEntry{}
	}

	out := make([]ActivityLogEntry, rb.count)
	bufCap := len(rb.buf)

	first := min(bufCap-rb.head, rb.count)
	copy(out, rb.buf[rb.head:rb.head+first])

	if rest := rb.count - first; rest > 0 {
		copy(out[first:], rb.buf[:rest])
	}
	return out
}

// len returns the number of valid entries currently stored.
func (rb *activityLogRingBuffer) len() int {
	return rb.count
}
