package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/XReyRobert/chatgpt-conversations-sync/internal/store"
)

func TestChooseMode_EmptyStateForcesFull(t *testing.T) {
	st := store.NewSyncState()
	st.LastFullInventoryAt = time.Now()

	dec := ChooseMode(st, false, 24*time.Hour, 24*time.Hour, time.Now())

	assert.True(t, dec.FullInventory)
	assert.Equal(t, 0, dec.StartOffset)
}

func TestChooseMode_DeleteRemovedForcesFull(t *testing.T) {
	st := store.NewSyncState()
	st.Watermarks["a"] = 100
	st.LastFullInventoryAt = time.Now()

	dec := ChooseMode(st, true, 24*time.Hour, 24*time.Hour, time.Now())

	assert.True(t, dec.FullInventory)
}

func TestChooseMode_MissingLastFullForcesFull(t *testing.T) {
	st := store.NewSyncState()
	st.Watermarks["a"] = 100

	dec := ChooseMode(st, false, 24*time.Hour, 24*time.Hour, time.Now())

	assert.True(t, dec.FullInventory)
}

func TestChooseMode_StaleLastFullForcesFull(t *testing.T) {
	now := time.Now()
	st := store.NewSyncState()
	st.Watermarks["a"] = 100
	st.LastFullInventoryAt = now.Add(-25 * time.Hour)

	dec := ChooseMode(st, false, 24*time.Hour, 24*time.Hour, now)

	assert.True(t, dec.FullInventory)
}

func TestChooseMode_RecentFullYieldsPartial(t *testing.T) {
	now := time.Now()
	st := store.NewSyncState()
	st.Watermarks["a"] = 100
	st.LastFullInventoryAt = now.Add(-1 * time.Hour)

	dec := ChooseMode(st, false, 24*time.Hour, 24*time.Hour, now)

	assert.False(t, dec.FullInventory)
	assert.Equal(t, 0, dec.StartOffset)
	assert.Equal(t, "partial", dec.Mode())
}

func TestChooseMode_FreshCursorResumesFull(t *testing.T) {
	now := time.Now()
	st := store.NewSyncState()
	st.Cursor = &store.InventoryCursor{Offset: 280, PageLimit: 28, UpdatedAt: now.Add(-1 * time.Hour)}

	dec := ChooseMode(st, false, 24*time.Hour, 24*time.Hour, now)

	assert.True(t, dec.FullInventory)
	assert.Equal(t, 280, dec.StartOffset)
}

func TestChooseMode_StaleCursorRestartsAtZero(t *testing.T) {
	now := time.Now()
	st := store.NewSyncState()
	st.Cursor = &store.InventoryCursor{Offset: 280, PageLimit: 28, UpdatedAt: now.Add(-25 * time.Hour)}

	dec := ChooseMode(st, false, 24*time.Hour, 24*time.Hour, now)

	assert.True(t, dec.FullInventory)
	assert.Equal(t, 0, dec.StartOffset)
}

func TestChooseMode_PartialIgnoresCursor(t *testing.T) {
	now := time.Now()
	st := store.NewSyncState()
	st.Watermarks["a"] = 100
	st.LastFullInventoryAt = now.Add(-1 * time.Hour)
	st.Cursor = &store.InventoryCursor{Offset: 280, PageLimit: 28, UpdatedAt: now}

	dec := ChooseMode(st, false, 24*time.Hour, 24*time.Hour, now)

	assert.False(t, dec.FullInventory)
	assert.Equal(t, 0, dec.StartOffset)
}
