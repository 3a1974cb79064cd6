package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/XReyRobert/chatgpt-conversations-sync/internal/config"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/logger"
)

const stateFormatVersion = 1

const (
	schemaFull = "full"
	schemaSlim = "slim"
)

// stateEnvelope is the on-disk shape of state.json. Schema records whether
// the payload carries the full state or the slimmed watermark-only form.
type stateEnvelope struct {
	Version   int        `json:"version"`
	Schema    string     `json:"schema"`
	SavedAt   time.Time  `json:"saved_at"`
	State     *SyncState `json:"state"`
}

// FileStore persists sync state and run history as JSON files in a
// directory. Writes go through a temp file rename so a crash mid-write never
// leaves a truncated state behind.
type FileStore struct {
	dir      string
	maxBytes int
	mu       sync.Mutex
}

func NewFileStore(cfg config.StateStorage) (*FileStore, error) {
	if err := os.MkdirAll(cfg.FilePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	return &FileStore{dir: cfg.FilePath, maxBytes: cfg.MaxStateBytes}, nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) statePath() string {
	return filepath.Join(s.dir, "state.json")
}

func (s *FileStore) historyPath() string {
	return filepath.Join(s.dir, "history.json")
}

func (s *FileStore) LoadSyncState(ctx context.Context) (*SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.statePath())
	if errors.Is(err, os.ErrNotExist) {
		return NewSyncState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var env stateEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	if env.State == nil {
		return NewSyncState(), nil
	}
	env.State.Normalize()
	return env.State, nil
}

// SaveSyncState writes the full schema, degrading to the slim schema when
// the full serialization exceeds the configured size limit.
func (s *FileStore) SaveSyncState(ctx context.Context, state *SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.marshalState(state, schemaFull)
	if err != nil {
		return err
	}
	if s.maxBytes > 0 && len(data) > s.maxBytes {
		logger.Log.Warn("state exceeds size limit, saving slim schema",
			zap.Int("size", len(data)),
			zap.Int("limit", s.maxBytes),
		)
		data, err = s.marshalState(state.Slim(), schemaSlim)
		if err != nil {
			return err
		}
	}
	return writeFileAtomic(s.statePath(), data)
}

func (s *FileStore) marshalState(state *SyncState, schema string) ([]byte, error) {
	env := stateEnvelope{
		Version: stateFormatVersion,
		Schema:  schema,
		SavedAt: time.Now().UTC(),
		State:   state,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	return data, nil
}

func (s *FileStore) CreateSyncHistory(ctx context.Context, history *SyncHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readHistory()
	if err != nil {
		return err
	}
	entries = append([]*SyncHistory{history}, entries...)
	if len(entries) > maxHistoryEntries {
		entries = entries[:maxHistoryEntries]
	}
	return s.writeHistory(entries)
}

func (s *FileStore) UpdateSyncHistory(ctx context.Context, history *SyncHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readHistory()
	if err != nil {
		return err
	}
	for i, e := range entries {
		if e.ID == history.ID {
			entries[i] = history
			return s.writeHistory(entries)
		}
	}
	return fmt.Errorf("history entry %s not found", history.ID)
}

func (s *FileStore) GetSyncHistory(ctx context.Context, limit, offset int) ([]*SyncHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readHistory()
	if err != nil {
		return nil, err
	}
	if offset >= len(entries) {
		return nil, nil
	}
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries, nil
}

const maxHistoryEntries = 50

func (s *FileStore) readHistory() ([]*SyncHistory, error) {
	data, err := os.ReadFile(s.historyPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	var entries []*SyncHistory
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse history file: %w", err)
	}
	return entries, nil
}

func (s *FileStore) writeHistory(entries []*SyncHistory) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	return writeFileAtomic(s.historyPath(), data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return nil
}
