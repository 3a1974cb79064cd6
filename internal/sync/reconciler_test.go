package sync

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XReyRobert/chatgpt-conversations-sync/internal/store"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/transport"
)

func body(id string, updateTime float64) *transport.ConversationBody {
	return &transport.ConversationBody{ID: id, Title: "t-" + id, UpdateTime: transport.UnixTime(updateTime)}
}

func TestReconciler_ClassifyKnownAndNew(t *testing.T) {
	st := store.NewSyncState()
	st.Watermarks["A"] = 100
	rec := NewReconciler(st)

	// A at its known watermark is unchanged, B is pending.
	assert.False(t, rec.Classify(conv("A", 100)))
	assert.True(t, rec.Classify(conv("B", 200)))

	_, unchanged, _ := rec.Counts()
	assert.Equal(t, 1, unchanged)

	recA, ok := st.RunRecords["A"]
	require.True(t, ok)
	assert.Equal(t, store.StatusUnchanged, recA.Status)
	assert.Equal(t, 100.0, recA.UpdateTime)
	assert.Equal(t, "t-A", st.Metadata["A"].Title)
}

func TestReconciler_ClassifyFallsBackToCreateTime(t *testing.T) {
	rec := NewReconciler(store.NewSyncState())

	c := transport.Conversation{ID: "A", CreateTime: transport.UnixTime(50)}
	assert.True(t, rec.Classify(c))
	assert.Equal(t, 50.0, transport.ObservedTime(c))
}

func TestReconciler_ApplyFetchedAdvancesWatermark(t *testing.T) {
	st := store.NewSyncState()
	rec := NewReconciler(st)

	it := Item{Conv: conv("B", 200), ObservedTime: 200}
	final := rec.ApplyFetched(it, body("B", 250))

	assert.Equal(t, 250.0, final)
	assert.Equal(t, 250.0, st.Watermarks["B"])
	assert.Equal(t, store.StatusUpdated, st.RunRecords["B"].Status)
}

func TestReconciler_WatermarkNeverRegresses(t *testing.T) {
	st := store.NewSyncState()
	st.Watermarks["B"] = 300
	rec := NewReconciler(st)

	// Body reports an older time than what is already known.
	it := Item{Conv: conv("B", 200), ObservedTime: 200}
	final := rec.ApplyFetched(it, body("B", 150))

	assert.Equal(t, 300.0, final)
	assert.Equal(t, 300.0, st.Watermarks["B"])
}

func TestReconciler_ApplyErrorKeepsWatermark(t *testing.T) {
	st := store.NewSyncState()
	st.Watermarks["C"] = 120
	rec := NewReconciler(st)

	it := Item{Conv: conv("C", 500), ObservedTime: 500}
	rec.ApplyError(it, errors.New("boom"))

	assert.Equal(t, 120.0, st.Watermarks["C"], "failed fetch must not advance the watermark")
	recC := st.RunRecords["C"]
	assert.Equal(t, store.StatusError, recC.Status)
	assert.Equal(t, 120.0, recC.UpdateTime)
	assert.Equal(t, "boom", recC.Error)

	_, _, errorCount := rec.Counts()
	assert.Equal(t, 1, errorCount)
}

func TestReconciler_ListingScenario(t *testing.T) {
	// KnownState = {A: 100}; page returns A@100 and B@200.
	st := store.NewSyncState()
	st.Watermarks["A"] = 100
	rec := NewReconciler(st)

	assert.False(t, rec.Classify(conv("A", 100)))
	require.True(t, rec.Classify(conv("B", 200)))
	rec.ApplyFetched(Item{Conv: conv("B", 200), ObservedTime: 200}, body("B", 200))

	assert.Equal(t, map[string]float64{"A": 100, "B": 200}, st.Watermarks)
}

func TestReconciler_RemoveMissing(t *testing.T) {
	st := store.NewSyncState()
	for _, id := range []string{"A", "B", "C"} {
		st.Watermarks[id] = 100
		st.Metadata[id] = store.ConversationMeta{ID: id}
	}
	rec := NewReconciler(st)

	rec.Classify(conv("A", 100))
	rec.Classify(conv("B", 100))

	var deleted []string
	removed, failures := rec.RemoveMissing(func(id string) error {
		deleted = append(deleted, id)
		return nil
	})

	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, failures)
	assert.Equal(t, []string{"C"}, deleted)
	assert.NotContains(t, st.Watermarks, "C")
	assert.NotContains(t, st.Metadata, "C")
}

func TestReconciler_RemoveMissingCountsDeleteFailures(t *testing.T) {
	st := store.NewSyncState()
	st.Watermarks["C"] = 100
	rec := NewReconciler(st)

	removed, failures := rec.RemoveMissing(func(id string) error {
		return errors.New("disk full")
	})

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, failures)
	assert.NotContains(t, st.Watermarks, "C", "state entry is pruned even when artifact deletion fails")
}

func TestReconciler_KnownWatermark(t *testing.T) {
	st := store.NewSyncState()
	st.Watermarks["A"] = 100
	st.Watermarks["B"] = 300
	st.Watermarks["C"] = 200
	rec := NewReconciler(st)

	assert.Equal(t, 300.0, rec.KnownWatermark())
}
