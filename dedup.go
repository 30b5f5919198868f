package kvserver

import (
	"time"

	"github.com/pior/kvserver/internal/coarsetime"
)

// seenWindow is the set of sequence numbers already processed on one
// connection. It keeps at most capacity entries, and entries older than
// maxAge when maxAge > 0; the oldest entries are evicted first. A
// retransmit of an evicted seq is processed again.
//
// Not safe for concurrent use; each connection owns its own window.
type seenWindow struct {
	capacity int
	maxAge   time.Duration
	now      func() time.Time

	seen  map[int]struct{}
	order []seenEntry // insertion order, oldest at head
	head  int
}

type seenEntry struct {
	seq int
	at  time.Time
}

func newSeenWindow(capacity int, maxAge time.Duration) *seenWindow {
	if capacity <= 0 {
		capacity = DefaultDedupWindow
	}
	return &seenWindow{
		capacity: capacity,
		maxAge:   maxAge,
		now:      coarsetime.Now,
		seen:     make(map[int]struct{}),
	}
}

// Observe records seq and reports whether it was already present.
func (w *seenWindow) Observe(seq int) (duplicate bool) {
	var now time.Time
	if w.maxAge > 0 {
		now = w.now()
		w.expire(now)
	}

	if _, ok := w.seen[seq]; ok {
		return true
	}

	if len(w.seen) >= w.capacity {
		w.evictOldest()
	}

	w.seen[seq] = struct{}{}
	w.order = append(w.order, seenEntry{seq: seq, at: now})
	return false
}

// Len returns the number of sequence numbers currently remembered.
func (w *seenWindow) Len() int {
	return len(w.seen)
}

func (w *seenWindow) expire(now time.Time) {
	for w.head < len(w.order) && now.Sub(w.order[w.head].at) > w.maxAge {
		w.evictOldest()
	}
}

func (w *seenWindow) evictOldest() {
	delete(w.seen, w.order[w.head].seq)
	w.order[w.head] = seenEntry{}
	w.head++

	// compact once the evicted prefix dominates the slice
	if w.head > len(w.order)/2 {
		n := copy(w.order, w.order[w.head:])
		w.order = w.order[:n]
		w.head = 0
	}
}
