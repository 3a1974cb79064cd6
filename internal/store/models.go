package store

import (
	"time"
)

type RunStatus string

const (
	StatusUpdated   RunStatus = "updated"
	StatusUnchanged RunStatus = "unchanged"
	StatusError     RunStatus = "error"
)

// ConversationMeta is the lightweight per-conversation metadata kept so the
// local index can be rendered without re-fetching bodies.
type ConversationMeta struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	CreateTime float64 `json:"create_time"`
	UpdateTime float64 `json:"update_time"`
}

// RunRecord is the outcome of the most recent sync attempt for one
// conversation, independent of whether its value changed.
type RunRecord struct {
	Status     RunStatus `json:"status"`
	UpdateTime float64   `json:"update_time"`
	Timestamp  time.Time `json:"timestamp"`
	Error      string    `json:"error,omitempty"`
}

// InventoryCursor is the resumption anchor for an in-progress full inventory
// pass. A cursor older than the configured staleness window is ignored and
// listing restarts at offset 0.
type InventoryCursor struct {
	Offset    int       `json:"offset"`
	PageLimit int       `json:"page_limit"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SyncState is the single persisted unit of truth the engine reads at the
// start of every run and mutates through completed or checkpointed runs.
//
// Watermarks holds, per conversation id, the highest update time ever
// observed for that id. It never moves backward.
type SyncState struct {
	Watermarks          map[string]float64          `json:"watermarks"`
	Metadata            map[string]ConversationMeta `json:"metadata,omitempty"`
	RunRecords          map[string]RunRecord        `json:"run_records,omitempty"`
	LastFullInventoryAt time.Time                   `json:"last_full_inventory_at,omitempty"`
	Cursor              *InventoryCursor            `json:"cursor,omitempty"`
	InventoryInProgress bool                        `json:"inventory_in_progress,omitempty"`
}

func NewSyncState() *SyncState {
	return &SyncState{
		Watermarks: make(map[string]float64),
		Metadata:   make(map[string]ConversationMeta),
		RunRecords: make(map[string]RunRecord),
	}
}

// Normalize replaces nil maps with empty ones so a state loaded from a slim
// snapshot can be mutated without nil checks at every site.
func (s *SyncState) Normalize() {
	if s.Watermarks == nil {
		s.Watermarks = make(map[string]float64)
	}
	if s.Metadata == nil {
		s.Metadata = make(map[string]ConversationMeta)
	}
	if s.RunRecords == nil {
		s.RunRecords = make(map[string]RunRecord)
	}
}

func (s *SyncState) Clone() *SyncState {
	c := &SyncState{
		Watermarks:          make(map[string]float64, len(s.Watermarks)),
		Metadata:            make(map[string]ConversationMeta, len(s.Metadata)),
		RunRecords:          make(map[string]RunRecord, len(s.RunRecords)),
		LastFullInventoryAt: s.LastFullInventoryAt,
		InventoryInProgress: s.InventoryInProgress,
	}
	for k, v := range s.Watermarks {
		c.Watermarks[k] = v
	}
	for k, v := range s.Metadata {
		c.Metadata[k] = v
	}
	for k, v := range s.RunRecords {
		c.RunRecords[k] = v
	}
	if s.Cursor != nil {
		cur := *s.Cursor
		c.Cursor = &cur
	}
	return c
}

// Slim returns the degraded form of the state: id-to-watermark mapping plus
// cursor and inventory flags, dropping metadata and run records. Saved when
// the full form exceeds the store's size limit.
func (s *SyncState) Slim() *SyncState {
	slim := &SyncState{
		Watermarks:          make(map[string]float64, len(s.Watermarks)),
		LastFullInventoryAt: s.LastFullInventoryAt,
		InventoryInProgress: s.InventoryInProgress,
	}
	for k, v := range s.Watermarks {
		slim.Watermarks[k] = v
	}
	if s.Cursor != nil {
		cur := *s.Cursor
		slim.Cursor = &cur
	}
	return slim
}

// SyncHistory is one row of the run history, persisted per run.
type SyncHistory struct {
	ID           string     `json:"id"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Mode         string     `json:"mode"` // "full" or "partial"
	Reason       string     `json:"reason,omitempty"`
	Updated      int        `json:"updated"`
	Unchanged    int        `json:"unchanged"`
	Errors       int        `json:"errors"`
	Removed      int        `json:"removed"`
	Status       string     `json:"status"` // "running", "completed", "failed"
	ErrorMessage string     `json:"error_message,omitempty"`
}
