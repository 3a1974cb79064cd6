package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XReyRobert/chatgpt-conversations-sync/internal/config"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(config.StateStorage{FilePath: filepath.Join(t.TempDir(), "state.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_LoadEmptyReturnsFreshState(t *testing.T) {
	s := newSQLiteStore(t)

	st, err := s.LoadSyncState(context.Background())
	require.NoError(t, err)
	assert.Empty(t, st.Watermarks)
	assert.Nil(t, st.Cursor)
}

func TestSQLiteStore_SaveLoadRoundtrip(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	in := sampleState()

	require.NoError(t, s.SaveSyncState(ctx, in))
	out, err := s.LoadSyncState(ctx)
	require.NoError(t, err)

	assert.Equal(t, in.Watermarks, out.Watermarks)
	assert.Equal(t, "first", out.Metadata["A"].Title)
	assert.Equal(t, StatusUpdated, out.RunRecords["A"].Status)
	require.NotNil(t, out.Cursor)
	assert.Equal(t, in.Cursor.Offset, out.Cursor.Offset)
	assert.True(t, out.InventoryInProgress)
	assert.Equal(t, in.LastFullInventoryAt.Unix(), out.LastFullInventoryAt.Unix())
}

func TestSQLiteStore_SaveReplacesPreviousState(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSyncState(ctx, sampleState()))

	second := NewSyncState()
	second.Watermarks["Z"] = 42
	require.NoError(t, s.SaveSyncState(ctx, second))

	out, err := s.LoadSyncState(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"Z": 42}, out.Watermarks)
	assert.Nil(t, out.Cursor)
}

func TestSQLiteStore_ToleratesSlimState(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSyncState(ctx, sampleState().Slim()))

	out, err := s.LoadSyncState(ctx)
	require.NoError(t, err)
	assert.Len(t, out.Watermarks, 2)
	assert.Empty(t, out.Metadata)
	assert.Empty(t, out.RunRecords)
}

func TestSQLiteStore_HistoryLifecycle(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	first := &SyncHistory{ID: "run-1", StartedAt: time.Now().UTC().Add(-time.Minute), Mode: "full", Status: "running"}
	require.NoError(t, s.CreateSyncHistory(ctx, first))

	second := &SyncHistory{ID: "run-2", StartedAt: time.Now().UTC(), Mode: "partial", Status: "completed", Updated: 3}
	require.NoError(t, s.CreateSyncHistory(ctx, second))

	done := time.Now().UTC()
	first.CompletedAt = &done
	first.Status = "failed"
	first.ErrorMessage = "timeout"
	require.NoError(t, s.UpdateSyncHistory(ctx, first))

	entries, err := s.GetSyncHistory(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "run-2", entries[0].ID, "newest first")
	assert.Equal(t, "failed", entries[1].Status)
	assert.Equal(t, "timeout", entries[1].ErrorMessage)
}
