// Package supervisor owns the in-memory map of running service
// processes: spawning them in their own process group, tapping their
// stdout into a bounded ring, driving the stop/restart/status
// operations, and periodically reaping processes whose OS state has
// diverged from what the map believes.
package supervisor

import (
	"sync"
	"time"

	"github.com/nexsock/nexsockd/internal/protocol"
)

// stdoutRing is a bounded, append-with-eviction buffer of a running
// service's captured stdout/stderr lines. The writer is the tap
// goroutine reading the child's output; readers take a point-in-time
// snapshot under the same lock.
type stdoutRing struct {
	mu       sync.Mutex
	entries  []protocol.LogEntry
	capacity int
	next     int
	full     bool
}

func newStdoutRing(capacity int) *stdoutRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &stdoutRing{entries: make([]protocol.LogEntry, capacity), capacity: capacity}
}

// Append adds a line, evicting the oldest entry once the ring is full.
func (r *stdoutRing) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.next] = protocol.LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Line:      line,
	}
	r.next = (r.next + 1) % r.capacity
	if r.next == 0 {
		r.full = true
	}
}

// Snapshot returns up to maxLines of the buffered entries in
// chronological order; maxLines == 0 means "all buffered lines".
func (r *stdoutRing) Snapshot(maxLines int) []protocol.LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ordered []protocol.LogEntry
	if r.full {
		ordered = append(ordered, r.entries[r.next:]...)
		ordered = append(ordered, r.entries[:r.next]...)
	} else {
		ordered = append(ordered, r.entries[:r.next]...)
	}

	if maxLines > 0 && len(ordered) > maxLines {
		ordered = ordered[len(ordered)-maxLines:]
	}

	out := make([]protocol.LogEntry, len(ordered))
	copy(out, ordered)
	return out
}
