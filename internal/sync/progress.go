package sync

import (
	"sync"
	"time"
)

// ProgressFunc receives progress events. Events may be throttled; the sink
// must not rely on seeing every intermediate value.
type ProgressFunc func(Progress)

// Tracker computes a monotonic progress target while the total is still
// unknown: the target is the larger of the remote's total hint and the
// number of items listed so far, so it only grows. Displayed progress stays
// below 100% until listing has finished and every enqueued item reached a
// terminal state.
type Tracker struct {
	mu          sync.Mutex
	processed   int
	listed      int
	totalHint   int
	listingDone bool
	phase       string

	sink        ProgressFunc
	lastEmit    time.Time
	minInterval time.Duration
}

func NewTracker(sink ProgressFunc) *Tracker {
	return &Tracker{
		sink:        sink,
		phase:       "starting",
		minInterval: 200 * time.Millisecond,
	}
}

func (t *Tracker) SetPhase(phase string) {
	t.mu.Lock()
	t.phase = phase
	t.mu.Unlock()
	t.emit(true)
}

// PageListed records a listed page and the remote's total hint, if any.
func (t *Tracker) PageListed(items, totalHint int) {
	t.mu.Lock()
	t.listed += items
	if totalHint > t.totalHint {
		t.totalHint = totalHint
	}
	t.mu.Unlock()
	t.emit(false)
}

// ItemDone records one conversation reaching a terminal state, whether it
// was fetched, skipped, or failed.
func (t *Tracker) ItemDone() {
	t.mu.Lock()
	t.processed++
	t.mu.Unlock()
	t.emit(false)
}

// ListingFinished marks the target as exact, unlocking 100%.
func (t *Tracker) ListingFinished() {
	t.mu.Lock()
	t.listingDone = true
	t.mu.Unlock()
	t.emit(true)
}

func (t *Tracker) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Progress {
	target := t.totalHint
	if t.listed > target {
		target = t.listed
	}

	pct := 0.0
	if target > 0 {
		pct = float64(t.processed) / float64(target) * 100
	}
	if !t.listingDone && pct > 99 {
		pct = 99
	}
	if pct > 100 {
		pct = 100
	}

	return Progress{
		Processed: t.processed,
		Target:    target,
		Phase:     t.phase,
		Percent:   pct,
	}
}

func (t *Tracker) emit(force bool) {
	if t.sink == nil {
		return
	}
	t.mu.Lock()
	now := time.Now()
	if !force && now.Sub(t.lastEmit) < t.minInterval {
		t.mu.Unlock()
		return
	}
	t.lastEmit = now
	p := t.snapshotLocked()
	t.mu.Unlock()
	t.sink(p)
}
