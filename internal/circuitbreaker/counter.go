package circuitbreaker

import (
	"sync/atomic"
	"time"
)

// Snapshot is an aggregate view of the event counter over the trailing
// sliding window.
type Snapshot struct {
	Successes uint64
	Failures  uint64
}

// Total returns the number of counted events in the window.
func (s Snapshot) Total() uint64 {
	return s.Successes + s.Failures
}

// FailureRate returns failures / (successes + failures).
// Returns 0 when no events have been counted.
func (s Snapshot) FailureRate() float64 {
	total := s.Total()
	if total == 0 {
		return 0
	}
	return float64(s.Failures) / float64(total)
}

// bucket is a single time slot of the ring. slot identifies which window
// slot the counts currently belong to; a bucket whose slot lags the slot a
// writer lands on has rolled out of the window and is reclaimed by that
// writer before counting.
type bucket struct {
	slot      atomic.Int64
	successes atomic.Uint64
	failures  atomic.Uint64
}

// eventCounter is a ring of time buckets, each interval wide, spanning the
// sliding window. Writes claim the bucket covering the event's time slot and
// bump atomic counters; reads sum every bucket still inside the window
// without mutating anything. Slot numbers come from a single monotonic
// source (elapsed time since the counter was built), so wall-clock jumps
// cannot tear the window.
type eventCounter struct {
	origin   time.Time
	interval time.Duration
	buckets  []bucket
}

func newEventCounter(window, interval time.Duration) *eventCounter {
	n := int((window + interval - 1) / interval)
	c := &eventCounter{
		origin:   time.Now(),
		interval: interval,
		buckets:  make([]bucket, n),
	}
	for i := range c.buckets {
		c.buckets[i].slot.Store(-1)
	}
	return c
}

// slotAt maps a timestamp to its window slot number. The subtraction uses
// the monotonic clock reading carried by both timestamps.
func (c *eventCounter) slotAt(now time.Time) int64 {
	return int64(now.Sub(c.origin) / c.interval)
}

func (c *eventCounter) recordSuccess(now time.Time) {
	if b := c.claim(c.slotAt(now)); b != nil {
		b.successes.Add(1)
	}
}

func (c *eventCounter) recordFailure(now time.Time) {
	if b := c.claim(c.slotAt(now)); b != nil {
		b.failures.Add(1)
	}
}

// claim returns the bucket covering slot, reclaiming it first when a stale
// slot still occupies it. Returns nil when the bucket has already advanced
// past slot; an event that old carries no weight in the current window.
func (c *eventCounter) claim(slot int64) *bucket {
	b := &c.buckets[int(slot%int64(len(c.buckets)))]
	for {
		current := b.slot.Load()
		if current == slot {
			return b
		}
		if current > slot {
			return nil
		}
		if b.slot.CompareAndSwap(current, slot) {
			b.successes.Store(0)
			b.failures.Store(0)
			return b
		}
	}
}

// snapshot sums every bucket whose slot falls inside the window ending at
// now. Buckets that rolled out are skipped, not cleared; the next writer
// landing on them does the clearing.
func (c *eventCounter) snapshot(now time.Time) Snapshot {
	newest := c.slotAt(now)
	oldest := newest - int64(len(c.buckets)) + 1

	var snap Snapshot
	for i := range c.buckets {
		b := &c.buckets[i]
		slot := b.slot.Load()
		if slot < oldest || slot > newest {
			continue
		}
		snap.Successes += b.successes.Load()
		snap.Failures += b.failures.Load()
	}
	return snap
}

// reset zeroes the whole ring. Called on transitions back to closed, which
// happen under the breaker's transition lock, so concurrent writers are at
// worst stale trial reports that the breaker discards anyway.
func (c *eventCounter) reset() {
	for i := range c.buckets {
		b := &c.buckets[i]
		b.successes.Store(0)
		b.failures.Store(0)
		b.slot.Store(-1)
	}
}
