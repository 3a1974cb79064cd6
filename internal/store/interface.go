package store

import (
	"context"
	"fmt"

	"github.com/XReyRobert/chatgpt-conversations-sync/internal/config"
)

type Store interface {
	// Sync State
	LoadSyncState(ctx context.Context) (*SyncState, error)
	SaveSyncState(ctx context.Context, state *SyncState) error

	// History
	CreateSyncHistory(ctx context.Context, history *SyncHistory) error
	UpdateSyncHistory(ctx context.Context, history *SyncHistory) error
	GetSyncHistory(ctx context.Context, limit, offset int) ([]*SyncHistory, error)

	// General
	Close() error
}

// New builds the store backend selected by configuration.
func New(cfg config.StateStorage) (Store, error) {
	switch cfg.Type {
	case "file":
		return NewFileStore(cfg)
	case "sqlite":
		return NewSQLiteStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported state storage type %q", cfg.Type)
	}
}
