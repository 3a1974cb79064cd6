package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/XReyRobert/chatgpt-conversations-sync/internal/config"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/logger"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/store"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/transport"
)

// Writer persists conversation artifacts under a directory: one JSON body
// per conversation, optionally a rendered Markdown transcript, and an index
// snapshot. Every write is addressed by conversation id, so concurrent
// workers never contend on the same file, and rewriting an id simply
// replaces its artifacts.
type Writer struct {
	dir      string
	markdown bool

	// guards index.json, which unlike per-id artifacts is a shared file
	indexMu sync.Mutex
}

func NewWriter(cfg config.ArchiveConfig) (*Writer, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive dir: %w", err)
	}
	return &Writer{dir: cfg.Dir, markdown: cfg.Markdown}, nil
}

func (w *Writer) jsonPath(id string) string {
	return filepath.Join(w.dir, id+".json")
}

func (w *Writer) markdownPath(id string) string {
	return filepath.Join(w.dir, id+".md")
}

func (w *Writer) indexPath() string {
	return filepath.Join(w.dir, "index.json")
}

// WriteConversation writes the JSON body and, when enabled, the Markdown
// transcript for one conversation.
func (w *Writer) WriteConversation(body *transport.ConversationBody) error {
	if err := writeAtomic(w.jsonPath(body.ID), body.Raw); err != nil {
		return fmt.Errorf("failed to write conversation %s: %w", body.ID, err)
	}
	if w.markdown {
		md := RenderMarkdown(body)
		if err := writeAtomic(w.markdownPath(body.ID), []byte(md)); err != nil {
			return fmt.Errorf("failed to write transcript %s: %w", body.ID, err)
		}
	}
	return nil
}

// Delete removes the artifacts for one conversation. Missing files are not
// an error; deletion is idempotent.
func (w *Writer) Delete(id string) error {
	var firstErr error
	for _, path := range []string{w.jsonPath(id), w.markdownPath(id)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to delete artifact %s: %w", path, err)
			}
		}
	}
	return firstErr
}

// WriteIndex snapshots the conversation metadata as index.json, newest
// first.
func (w *Writer) WriteIndex(entries []store.ConversationMeta) error {
	w.indexMu.Lock()
	defer w.indexMu.Unlock()

	sorted := make([]store.ConversationMeta, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].UpdateTime != sorted[j].UpdateTime {
			return sorted[i].UpdateTime > sorted[j].UpdateTime
		}
		return sorted[i].ID < sorted[j].ID
	})

	data, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	if err := writeAtomic(w.indexPath(), data); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	logger.Log.Debug("wrote index snapshot", zap.Int("entries", len(sorted)))
	return nil
}

// ReadIndex loads the last index snapshot. Returns nil when none exists.
func (w *Writer) ReadIndex() ([]store.ConversationMeta, error) {
	w.indexMu.Lock()
	defer w.indexMu.Unlock()

	data, err := os.ReadFile(w.indexPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	var entries []store.ConversationMeta
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse index: %w", err)
	}
	return entries, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
