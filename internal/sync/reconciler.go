package sync

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/XReyRobert/chatgpt-conversations-sync/internal/logger"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/metrics"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/store"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/transport"
)

// Reconciler merges freshly observed conversation state into the known
// state. Classification happens on the listing goroutine while fetch
// outcomes land from the collector, so all state access is serialized
// through the mutex. Per-id watermarks only ever move forward.
type Reconciler struct {
	mu    sync.Mutex
	state *store.SyncState
	seen  map[string]struct{}

	updated    int
	unchanged  int
	errorCount int
}

func NewReconciler(state *store.SyncState) *Reconciler {
	state.Normalize()
	return &Reconciler{
		state: state,
		seen:  make(map[string]struct{}),
	}
}

// KnownWatermark is the highest update time across all known conversations,
// as of the start of the pass. The partial-pass stopping rule compares page
// minimums against this value; it must not include times observed during
// the current pass, or the first page would immediately end listing.
func (r *Reconciler) KnownWatermark() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	max := 0.0
	for _, t := range r.state.Watermarks {
		if t > max {
			max = t
		}
	}
	return max
}

// Classify decides whether a listed conversation needs a body fetch.
// Unchanged conversations get their metadata refreshed from the listing and
// a RunRecord written without any fetch; changed ones are reported as
// pending for the caller to enqueue.
func (r *Reconciler) Classify(c transport.Conversation) (pending bool) {
	observed := transport.ObservedTime(c)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seen[c.ID] = struct{}{}
	known := r.state.Watermarks[c.ID]

	if observed <= known {
		r.state.Metadata[c.ID] = store.ConversationMeta{
			ID:         c.ID,
			Title:      c.Title,
			CreateTime: c.CreateTime.Seconds(),
			UpdateTime: known,
		}
		r.state.RunRecords[c.ID] = store.RunRecord{
			Status:     store.StatusUnchanged,
			UpdateTime: known,
			Timestamp:  time.Now().UTC(),
		}
		r.unchanged++
		metrics.ItemsProcessed.WithLabelValues(string(store.StatusUnchanged)).Inc()
		return false
	}
	return true
}

// ApplyFetched records a successful body fetch. The new watermark is the
// maximum of the listing-observed time, the time the body itself reports,
// and the previously known value, so a body reporting an older time than
// the listing never regresses the watermark.
func (r *Reconciler) ApplyFetched(it Item, body *transport.ConversationBody) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	final := it.ObservedTime
	if t := body.UpdateTime.Seconds(); t > final {
		final = t
	}
	if known := r.state.Watermarks[it.Conv.ID]; known > final {
		final = known
	}

	title := body.Title
	if title == "" {
		title = it.Conv.Title
	}

	r.state.Watermarks[it.Conv.ID] = final
	r.state.Metadata[it.Conv.ID] = store.ConversationMeta{
		ID:         it.Conv.ID,
		Title:      title,
		CreateTime: it.Conv.CreateTime.Seconds(),
		UpdateTime: final,
	}
	r.state.RunRecords[it.Conv.ID] = store.RunRecord{
		Status:     store.StatusUpdated,
		UpdateTime: final,
		Timestamp:  time.Now().UTC(),
	}
	r.updated++
	metrics.ItemsProcessed.WithLabelValues(string(store.StatusUpdated)).Inc()
	return final
}

// ApplyError records a failed body fetch. The watermark is left untouched,
// which keeps the conversation eligible for retry on the next partial pass.
func (r *Reconciler) ApplyError(it Item, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.RunRecords[it.Conv.ID] = store.RunRecord{
		Status:     store.StatusError,
		UpdateTime: r.state.Watermarks[it.Conv.ID],
		Timestamp:  time.Now().UTC(),
		Error:      err.Error(),
	}
	r.errorCount++
	metrics.ItemsProcessed.WithLabelValues(string(store.StatusError)).Inc()
	logger.Log.Warn("conversation sync failed",
		zap.String("id", it.Conv.ID),
		zap.Error(err),
	)
}

// RemoveMissing prunes every conversation present in known state but absent
// from the pass's observed id set, deleting its artifacts through deleteFn.
// Only a completed full pass may call this. Deletion failures are counted
// but do not stop the sweep.
func (r *Reconciler) RemoveMissing(deleteFn func(id string) error) (removed, failures int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.state.Watermarks {
		if _, ok := r.seen[id]; ok {
			continue
		}
		delete(r.state.Watermarks, id)
		delete(r.state.Metadata, id)
		delete(r.state.RunRecords, id)
		if err := deleteFn(id); err != nil {
			failures++
			logger.Log.Warn("failed to delete artifacts for removed conversation",
				zap.String("id", id),
				zap.Error(err),
			)
		} else {
			metrics.ArtifactsDeleted.Inc()
		}
		removed++
	}
	return removed, failures
}

// IndexEntries returns the metadata snapshot used to render the index.
func (r *Reconciler) IndexEntries() []store.ConversationMeta {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]store.ConversationMeta, 0, len(r.state.Metadata))
	for _, meta := range r.state.Metadata {
		entries = append(entries, meta)
	}
	return entries
}

// StateSnapshot clones the state under the lock, for checkpointing while
// workers are still reporting.
func (r *Reconciler) StateSnapshot() *store.SyncState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// Counts reports the pass's classification tallies so far.
func (r *Reconciler) Counts() (updated, unchanged, errorCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updated, r.unchanged, r.errorCount
}
