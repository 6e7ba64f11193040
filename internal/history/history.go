// Package history keeps a fixed-size ring of recent latency samples that one
// sampler goroutine writes and any number of readers observe without locking.
package history

import (
	"math"
	"sync/atomic"
	"time"
)

const DefaultCapacity = 10

// Sample is a round-trip latency in milliseconds. Two values are reserved:
// NoData for slots that were never written and Failed for probes that got no
// reply. Real latencies always lie strictly between them.
type Sample uint64

const (
	NoData Sample = 0
	Failed Sample = math.MaxUint64
)

func (s Sample) IsNoData() bool {
	return s == NoData
}

func (s Sample) IsFailed() bool {
	return s == Failed
}

// Valid reports whether s is a measured latency rather than a sentinel.
func (s Sample) Valid() bool {
	return s != NoData && s != Failed
}

// FromDuration converts a measured RTT into a Sample. Sub-millisecond RTTs
// round up to 1 so they are not mistaken for NoData; a positive int64 can
// never reach Failed.
func FromDuration(d time.Duration) Sample {
	ms := d.Milliseconds()
	if ms < 1 {
		return 1
	}
	return Sample(ms)
}

// LatencyStatus pairs the latest sample with the whole window, most recent
// first. It is rebuilt on every read and never stored.
type LatencyStatus struct {
	Current Sample
	Values  []Sample
}

// History is a circular buffer of samples. Every slot and the cursor are
// independent atomics: a reader may see a mix of old and new slots while an
// append is in flight, but never a torn sample. There is no cross-slot
// consistency and none is needed for display.
//
// Only one goroutine may call Append.
type History struct {
	values []atomic.Uint64
	cursor atomic.Uint64
}

func New(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{values: make([]atomic.Uint64, capacity)}
}

func (h *History) Cap() int {
	return len(h.values)
}

// Append writes s at the cursor, then advances it. The slot is stored before
// the cursor moves, so Latest never points at an unwritten slot.
func (h *History) Append(s Sample) {
	n := uint64(len(h.values))
	idx := h.cursor.Load()
	h.values[idx].Store(uint64(s))
	h.cursor.Store((idx + 1) % n)
}

func (h *History) Latest() Sample {
	n := uint64(len(h.values))
	idx := h.cursor.Load()
	return Sample(h.values[(idx+n-1)%n].Load())
}

// Snapshot returns all slots, most recent first.
func (h *History) Snapshot() []Sample {
	n := uint64(len(h.values))
	current := h.cursor.Load()
	out := make([]Sample, 0, n)
	for i := uint64(0); i < n; i++ {
		idx := (current + n - i - 1) % n
		out = append(out, Sample(h.values[idx].Load()))
	}
	return out
}

func (h *History) Status() LatencyStatus {
	return LatencyStatus{
		Current: h.Latest(),
		Values:  h.Snapshot(),
	}
}
