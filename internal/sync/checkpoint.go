package sync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/XReyRobert/chatgpt-conversations-sync/internal/logger"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/metrics"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/store"
)

// pageTracker orders cursor advancement. Fetch completion is unordered, but
// a page's offset is only safe to persist once every item the page
// contributed has reached a terminal state AND every earlier page is
// likewise complete. The tracker keeps one outstanding-item counter per
// page and exposes the next offset of the contiguous completed prefix.
type pageTracker struct {
	mu        sync.Mutex
	pages     []pageEntry
	committed int // pages in the completed prefix
}

type pageEntry struct {
	nextOffset  int
	outstanding int
}

func newPageTracker() *pageTracker {
	return &pageTracker{}
}

// AddPage registers a listed page and returns its index. outstanding is the
// number of items the page enqueued; a page whose items were all classified
// unchanged is complete immediately.
func (t *pageTracker) AddPage(nextOffset, outstanding int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pages = append(t.pages, pageEntry{nextOffset: nextOffset, outstanding: outstanding})
	t.advanceLocked()
	return len(t.pages) - 1
}

// ItemDone records a terminal outcome for an item of page idx.
func (t *pageTracker) ItemDone(idx int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pages[idx].outstanding--
	t.advanceLocked()
}

func (t *pageTracker) advanceLocked() {
	for t.committed < len(t.pages) && t.pages[t.committed].outstanding == 0 {
		t.committed++
	}
}

// CommittedOffset returns the offset safe to resume from, or false when no
// page has fully completed yet.
func (t *pageTracker) CommittedOffset() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.committed == 0 {
		return 0, false
	}
	return t.pages[t.committed-1].nextOffset, true
}

// Checkpointer rate-limits state persistence: a checkpoint is written when
// enough events have accumulated or enough time has passed, whichever comes
// first, bounding both persistence overhead and progress lost to an
// interruption.
type Checkpointer struct {
	store       store.Store
	everyEvents int
	every       time.Duration

	mu     sync.Mutex
	events int
	last   time.Time
}

func NewCheckpointer(st store.Store, everyEvents int, every time.Duration) *Checkpointer {
	return &Checkpointer{
		store:       st,
		everyEvents: everyEvents,
		every:       every,
		last:        time.Now(),
	}
}

// Event counts one checkpointable event and persists the snapshot when a
// threshold is crossed. snapshot is only invoked when a write happens.
func (c *Checkpointer) Event(ctx context.Context, snapshot func() *store.SyncState) {
	c.mu.Lock()
	c.events++
	due := c.events >= c.everyEvents || time.Since(c.last) >= c.every
	if due {
		c.events = 0
		c.last = time.Now()
	}
	c.mu.Unlock()

	if due {
		c.write(ctx, snapshot())
	}
}

// Force persists the snapshot immediately, falling back to the slim schema
// when the full save fails. Used for the mode-decision checkpoint and the
// best-effort checkpoint on abort.
func (c *Checkpointer) Force(ctx context.Context, state *store.SyncState) {
	c.mu.Lock()
	c.events = 0
	c.last = time.Now()
	c.mu.Unlock()

	c.write(ctx, state)
}

func (c *Checkpointer) write(ctx context.Context, state *store.SyncState) {
	if err := c.store.SaveSyncState(ctx, state); err != nil {
		logger.Log.Warn("checkpoint save failed, retrying slim state", zap.Error(err))
		if err := c.store.SaveSyncState(ctx, state.Slim()); err != nil {
			logger.Log.Error("slim checkpoint save failed, progress may be lost", zap.Error(err))
			return
		}
	}
	metrics.CheckpointsWritten.Inc()
}
