package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XReyRobert/chatgpt-conversations-sync/internal/config"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/store"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/transport"
)

func newWriter(t *testing.T, markdown bool) *Writer {
	t.Helper()
	w, err := NewWriter(config.ArchiveConfig{Dir: t.TempDir(), Markdown: markdown})
	require.NoError(t, err)
	return w
}

func testBody(id string) *transport.ConversationBody {
	raw, _ := json.Marshal(map[string]any{"id": id, "title": "hello"})
	return &transport.ConversationBody{
		ID:    id,
		Title: "hello",
		Raw:   raw,
	}
}

func TestWriter_WriteConversationJSONOnly(t *testing.T) {
	w := newWriter(t, false)
	body := testBody("conv-1")

	require.NoError(t, w.WriteConversation(body))

	data, err := os.ReadFile(filepath.Join(w.dir, "conv-1.json"))
	require.NoError(t, err)
	assert.JSONEq(t, string(body.Raw), string(data), "raw payload written verbatim")

	_, err = os.Stat(filepath.Join(w.dir, "conv-1.md"))
	assert.True(t, os.IsNotExist(err), "no transcript when markdown disabled")
}

func TestWriter_WriteConversationWithMarkdown(t *testing.T) {
	w := newWriter(t, true)

	require.NoError(t, w.WriteConversation(testBody("conv-2")))

	md, err := os.ReadFile(filepath.Join(w.dir, "conv-2.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "# hello")
}

func TestWriter_DeleteIsIdempotent(t *testing.T) {
	w := newWriter(t, true)
	require.NoError(t, w.WriteConversation(testBody("conv-3")))

	require.NoError(t, w.Delete("conv-3"))
	_, err := os.Stat(filepath.Join(w.dir, "conv-3.json"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(w.dir, "conv-3.md"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, w.Delete("conv-3"), "second delete is a no-op")
	require.NoError(t, w.Delete("never-written"))
}

func TestWriter_IndexRoundtripSortsNewestFirst(t *testing.T) {
	w := newWriter(t, false)

	entries := []store.ConversationMeta{
		{ID: "old", Title: "old", UpdateTime: 100},
		{ID: "new", Title: "new", UpdateTime: 300},
		{ID: "mid", Title: "mid", UpdateTime: 200},
	}
	require.NoError(t, w.WriteIndex(entries))

	got, err := w.ReadIndex()
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, "mid", got[1].ID)
	assert.Equal(t, "old", got[2].ID)
}

func TestWriter_IndexTiesBreakByID(t *testing.T) {
	w := newWriter(t, false)

	require.NoError(t, w.WriteIndex([]store.ConversationMeta{
		{ID: "b", UpdateTime: 50},
		{ID: "a", UpdateTime: 50},
	}))

	got, err := w.ReadIndex()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
}

func TestWriter_ReadIndexMissingReturnsNil(t *testing.T) {
	w := newWriter(t, false)

	got, err := w.ReadIndex()
	require.NoError(t, err)
	assert.Nil(t, got)
}
