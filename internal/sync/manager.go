package sync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/XReyRobert/chatgpt-conversations-sync/internal/config"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/logger"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/metrics"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/store"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/transport"
)

// Remote is the transport the engine pulls from. Satisfied by
// *transport.Client.
type Remote interface {
	PageSource
	BodyFetcher
}

// Archive persists conversation artifacts and the index. Satisfied by
// *archive.Writer.
type Archive interface {
	ArtifactWriter
	Delete(id string) error
	WriteIndex(entries []store.ConversationMeta) error
}

// Manager owns the sync lifecycle. At most one run is active at a time; the
// run flag is checked and set atomically so concurrent triggers fail fast
// instead of queueing.
type Manager struct {
	cfg     *config.Config
	store   store.Store
	remote  Remote
	archive Archive

	running atomic.Bool

	mu       sync.Mutex
	progress Progress
	lastRun  *store.SyncHistory
}

func NewManager(cfg *config.Config, st store.Store, remote Remote, archive Archive) *Manager {
	return &Manager{
		cfg:     cfg,
		store:   st,
		remote:  remote,
		archive: archive,
	}
}

// TriggerSync starts a sync run in the background. Returns ErrRunActive if
// a run is already in flight.
func (m *Manager) TriggerSync(reason string) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrRunActive
	}
	go func() {
		defer m.running.Store(false)
		if err := m.runSync(context.Background(), reason, false); err != nil {
			logger.Log.Error("sync run failed", zap.String("reason", reason), zap.Error(err))
		}
	}()
	return nil
}

// ForceFullInventory resets the last-full-inventory timestamp and the
// cursor, then starts a full pass. Fails fast if a run is already active.
func (m *Manager) ForceFullInventory() error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrRunActive
	}
	go func() {
		defer m.running.Store(false)
		if err := m.runSync(context.Background(), "forced full inventory", true); err != nil {
			logger.Log.Error("forced full inventory failed", zap.Error(err))
		}
	}()
	return nil
}

// RunOnce executes a sync run synchronously. Returns ErrRunActive if a run
// is already in flight.
func (m *Manager) RunOnce(ctx context.Context, reason string) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrRunActive
	}
	defer m.running.Store(false)
	return m.runSync(ctx, reason, false)
}

// Running reports whether a run is currently active.
func (m *Manager) Running() bool {
	return m.running.Load()
}

// Progress returns the latest progress snapshot of the current or most
// recent run.
func (m *Manager) Progress() Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress
}

// LastRun returns the history entry of the current or most recent run.
func (m *Manager) LastRun() *store.SyncHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastRun == nil {
		return nil
	}
	cp := *m.lastRun
	return &cp
}

// History lists past runs, newest first.
func (m *Manager) History(ctx context.Context, limit, offset int) ([]*store.SyncHistory, error) {
	return m.store.GetSyncHistory(ctx, limit, offset)
}

func (m *Manager) publishProgress(p Progress) {
	m.mu.Lock()
	m.progress = p
	m.mu.Unlock()
}

func (m *Manager) setLastRun(h *store.SyncHistory) {
	m.mu.Lock()
	cp := *h
	m.lastRun = &cp
	m.mu.Unlock()
}

// runSync executes one sync pass end to end: mode decision, paginated
// listing with per-item classification, bounded-concurrency body fetching,
// reconciliation, and finalization. The caller holds the run flag.
func (m *Manager) runSync(ctx context.Context, reason string, forceFull bool) error {
	runCtx, cancel := context.WithTimeout(ctx, m.cfg.Sync.RunTimeout)
	defer cancel()

	state, err := m.store.LoadSyncState(runCtx)
	if err != nil {
		return fmt.Errorf("failed to load sync state: %w", err)
	}
	state.Normalize()
	if forceFull {
		state.LastFullInventoryAt = time.Time{}
		state.Cursor = nil
	}

	dec := ChooseMode(state, m.cfg.Sync.DeleteRemoved, m.cfg.Sync.FullInventoryInterval, m.cfg.Sync.CursorMaxAge, time.Now())
	logger.Log.Info("starting sync run",
		zap.String("reason", reason),
		zap.String("mode", dec.Mode()),
		zap.String("mode_reason", dec.Reason),
		zap.Int("start_offset", dec.StartOffset),
	)

	cp := NewCheckpointer(m.store, m.cfg.Sync.CheckpointEveryEvents, m.cfg.Sync.CheckpointInterval)
	if dec.FullInventory {
		state.InventoryInProgress = true
	}
	cp.Force(runCtx, state)

	now := time.Now().UTC()
	hist := &store.SyncHistory{
		ID:        uuid.New().String(),
		StartedAt: now,
		Mode:      dec.Mode(),
		Reason:    reason,
		Status:    "running",
	}
	if err := m.store.CreateSyncHistory(runCtx, hist); err != nil {
		logger.Log.Warn("failed to record run start", zap.Error(err))
	}
	m.setLastRun(hist)

	rec := NewReconciler(state)
	watermark := rec.KnownWatermark()
	tracker := NewTracker(m.publishProgress)
	pages := newPageTracker()
	lister := NewLister(m.remote, m.cfg.Sync.PageLimit, m.cfg.Sync.PageFallbackLimits)
	pool := NewFetchPool(m.cfg.Sync.Workers, m.remote, m.archive)
	pool.Start(runCtx)

	// Checkpoint snapshots carry a cursor only once a contiguous prefix of
	// pages has fully completed; until then the previously persisted cursor
	// (cloned with the state) remains the resume anchor.
	snapshot := func() *store.SyncState {
		st := rec.StateSnapshot()
		if dec.FullInventory {
			if off, ok := pages.CommittedOffset(); ok {
				st.Cursor = &store.InventoryCursor{
					Offset:    off,
					PageLimit: m.cfg.Sync.PageLimit,
					UpdatedAt: time.Now().UTC(),
				}
			}
		}
		return st
	}

	collectDone := make(chan struct{})
	go func() {
		defer close(collectDone)
		for out := range pool.Outcomes() {
			if out.Err != nil {
				rec.ApplyError(out.Item, out.Err)
			} else {
				rec.ApplyFetched(out.Item, out.Body)
			}
			pages.ItemDone(out.Item.PageIndex)
			tracker.ItemDone()
			cp.Event(runCtx, snapshot)
		}
	}()

	tracker.SetPhase("listing")
	listingComplete, truncated, emptyFirstPage, listErr := m.listPass(runCtx, dec, watermark, lister, rec, pool, pages, tracker)

	tracker.SetPhase("fetching")
	pool.Close()
	<-collectDone

	if listingComplete && listErr == nil {
		tracker.ListingFinished()
	}

	tracker.SetPhase("finalizing")
	runErr := listErr
	if runErr == nil && runCtx.Err() != nil {
		runErr = fmt.Errorf("sync run aborted: %w", runCtx.Err())
	}

	// Partial enumeration must never be mistaken for complete enumeration:
	// a pass that hit the page ceiling, saw an empty first page, resumed
	// mid-inventory, or failed may not prune anything.
	completeFull := dec.FullInventory && listingComplete && !truncated && !emptyFirstPage && runErr == nil
	removalEligible := completeFull && dec.StartOffset == 0

	removed, removeFailures := 0, 0
	if removalEligible && m.cfg.Sync.DeleteRemoved {
		removed, removeFailures = rec.RemoveMissing(m.archive.Delete)
	}

	finishedAt := time.Now().UTC()
	if completeFull {
		state.LastFullInventoryAt = finishedAt
		state.Cursor = nil
		state.InventoryInProgress = false
	} else if dec.FullInventory {
		if off, ok := pages.CommittedOffset(); ok {
			state.Cursor = &store.InventoryCursor{
				Offset:    off,
				PageLimit: m.cfg.Sync.PageLimit,
				UpdatedAt: finishedAt,
			}
		}
	}

	if runErr == nil {
		if err := m.archive.WriteIndex(rec.IndexEntries()); err != nil {
			logger.Log.Warn("failed to write index snapshot", zap.Error(err))
		}
	}

	// Best-effort final checkpoint, on a fresh context so an expired run
	// deadline cannot block it.
	saveCtx, saveCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer saveCancel()
	cp.Force(saveCtx, state)

	updated, unchanged, errorCount := rec.Counts()
	hist.CompletedAt = &finishedAt
	hist.Updated = updated
	hist.Unchanged = unchanged
	hist.Errors = errorCount + removeFailures
	hist.Removed = removed
	if runErr != nil {
		hist.Status = "failed"
		hist.ErrorMessage = runErr.Error()
	} else {
		hist.Status = "completed"
	}
	if err := m.store.UpdateSyncHistory(saveCtx, hist); err != nil {
		logger.Log.Warn("failed to record run completion", zap.Error(err))
	}
	m.setLastRun(hist)
	metrics.RunsTotal.WithLabelValues(dec.Mode(), hist.Status).Inc()

	tracker.SetPhase(hist.Status)
	logger.Log.Info("sync run finished",
		zap.String("mode", dec.Mode()),
		zap.String("status", hist.Status),
		zap.Int("updated", updated),
		zap.Int("unchanged", unchanged),
		zap.Int("errors", hist.Errors),
		zap.Int("removed", removed),
		zap.Duration("duration", finishedAt.Sub(now)),
	)
	return runErr
}

// listPass drives the sequential listing loop: page N+1 is requested only
// after page N's items are classified and enqueued, while body fetches run
// concurrently in the pool.
func (m *Manager) listPass(
	ctx context.Context,
	dec ModeDecision,
	watermark float64,
	lister *Lister,
	rec *Reconciler,
	pool *FetchPool,
	pages *pageTracker,
	tracker *Tracker,
) (listingComplete, truncated, emptyFirstPage bool, listErr error) {
	offset := dec.StartOffset

	for pageCount := 0; ; pageCount++ {
		if err := ctx.Err(); err != nil {
			return false, false, false, fmt.Errorf("listing aborted: %w", err)
		}
		if pageCount >= m.cfg.Sync.MaxPages {
			logger.Log.Warn("page ceiling reached, inventory incomplete",
				zap.Int("max_pages", m.cfg.Sync.MaxPages))
			return false, true, false, nil
		}

		pg, err := lister.FetchPage(ctx, offset)
		if err != nil {
			return false, false, false, err
		}
		metrics.PagesListed.Inc()

		if len(pg.Items) == 0 {
			if pageCount == 0 {
				return false, false, true, nil
			}
			return true, false, false, nil
		}

		tracker.PageListed(len(pg.Items), pg.Total)

		var pending []Item
		for _, c := range pg.Items {
			if rec.Classify(c) {
				pending = append(pending, Item{Conv: c, ObservedTime: transport.ObservedTime(c)})
			} else {
				tracker.ItemDone()
			}
		}

		idx := pages.AddPage(pg.NextOffset(), len(pending))
		for _, it := range pending {
			it.PageIndex = idx
			if err := pool.Submit(ctx, it); err != nil {
				return false, false, false, fmt.Errorf("listing aborted: %w", err)
			}
		}

		// Pages are update-time descending: once a page's minimum drops to
		// the pre-pass watermark, everything that changed since the last
		// sync has already been surfaced.
		if !dec.FullInventory && watermark > 0 && pg.MinUpdateTime <= watermark {
			logger.Log.Debug("partial pass reached known watermark",
				zap.Float64("watermark", watermark),
				zap.Float64("page_min", pg.MinUpdateTime),
			)
			return true, false, false, nil
		}

		if !pg.Continues() {
			return true, false, false, nil
		}
		offset = pg.NextOffset()
	}
}
