package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/XReyRobert/chatgpt-conversations-sync/internal/config"
)

// SQLiteStore keeps sync state in an embedded database. One row per
// conversation carries the watermark, the index metadata, and the latest run
// record; a key/value table carries the cursor and inventory flags.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id              TEXT PRIMARY KEY,
	watermark       REAL NOT NULL,
	title           TEXT,
	create_time     REAL,
	update_time     REAL,
	run_status      TEXT,
	run_update_time REAL,
	run_timestamp   TIMESTAMP,
	run_error       TEXT
);
CREATE TABLE IF NOT EXISTS sync_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sync_history (
	id            TEXT PRIMARY KEY,
	started_at    TIMESTAMP NOT NULL,
	completed_at  TIMESTAMP,
	mode          TEXT NOT NULL,
	reason        TEXT,
	updated       INTEGER NOT NULL DEFAULT 0,
	unchanged     INTEGER NOT NULL DEFAULT 0,
	errors        INTEGER NOT NULL DEFAULT 0,
	removed       INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL,
	error_message TEXT
);
`

func NewSQLiteStore(cfg config.StateStorage) (*SQLiteStore, error) {
	if dir := filepath.Dir(cfg.FilePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// modernc sqlite serializes writes itself, keep a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadSyncState(ctx context.Context) (*SyncState, error) {
	state := NewSyncState()

	rows, err := s.db.QueryContext(ctx, `SELECT id, watermark, title, create_time, update_time, run_status, run_update_time, run_timestamp, run_error FROM conversations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id            string
			watermark     float64
			title         sql.NullString
			createTime    sql.NullFloat64
			updateTime    sql.NullFloat64
			runStatus     sql.NullString
			runUpdateTime sql.NullFloat64
			runTimestamp  sql.NullTime
			runError      sql.NullString
		)
		if err := rows.Scan(&id, &watermark, &title, &createTime, &updateTime, &runStatus, &runUpdateTime, &runTimestamp, &runError); err != nil {
			return nil, err
		}
		state.Watermarks[id] = watermark
		if title.Valid || createTime.Valid || updateTime.Valid {
			state.Metadata[id] = ConversationMeta{
				ID:         id,
				Title:      title.String,
				CreateTime: createTime.Float64,
				UpdateTime: updateTime.Float64,
			}
		}
		if runStatus.Valid {
			state.RunRecords[id] = RunRecord{
				Status:     RunStatus(runStatus.String),
				UpdateTime: runUpdateTime.Float64,
				Timestamp:  runTimestamp.Time,
				Error:      runError.String,
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadMeta(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *SQLiteStore) loadMeta(ctx context.Context, state *SyncState) error {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM sync_meta`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		switch key {
		case "last_full_inventory_at":
			t, err := time.Parse(time.RFC3339Nano, value)
			if err == nil {
				state.LastFullInventoryAt = t
			}
		case "cursor":
			var cur InventoryCursor
			if err := json.Unmarshal([]byte(value), &cur); err == nil {
				state.Cursor = &cur
			}
		case "inventory_in_progress":
			state.InventoryInProgress = value == "true"
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) SaveSyncState(ctx context.Context, state *SyncState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations`); err != nil {
		return err
	}

	insert := `INSERT INTO conversations (id, watermark, title, create_time, update_time, run_status, run_update_time, run_timestamp, run_error)
			   VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for id, watermark := range state.Watermarks {
		var (
			title         sql.NullString
			createTime    sql.NullFloat64
			updateTime    sql.NullFloat64
			runStatus     sql.NullString
			runUpdateTime sql.NullFloat64
			runTimestamp  sql.NullTime
			runError      sql.NullString
		)
		if meta, ok := state.Metadata[id]; ok {
			title = sql.NullString{String: meta.Title, Valid: true}
			createTime = sql.NullFloat64{Float64: meta.CreateTime, Valid: true}
			updateTime = sql.NullFloat64{Float64: meta.UpdateTime, Valid: true}
		}
		if rec, ok := state.RunRecords[id]; ok {
			runStatus = sql.NullString{String: string(rec.Status), Valid: true}
			runUpdateTime = sql.NullFloat64{Float64: rec.UpdateTime, Valid: true}
			runTimestamp = sql.NullTime{Time: rec.Timestamp, Valid: true}
			if rec.Error != "" {
				runError = sql.NullString{String: rec.Error, Valid: true}
			}
		}
		if _, err := tx.ExecContext(ctx, insert, id, watermark, title, createTime, updateTime, runStatus, runUpdateTime, runTimestamp, runError); err != nil {
			return err
		}
	}

	if err := s.saveMeta(ctx, tx, state); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) saveMeta(ctx context.Context, tx *sql.Tx, state *SyncState) error {
	upsert := `INSERT INTO sync_meta (key, value) VALUES (?, ?)
			   ON CONFLICT(key) DO UPDATE SET value = excluded.value`

	lastFull := ""
	if !state.LastFullInventoryAt.IsZero() {
		lastFull = state.LastFullInventoryAt.Format(time.RFC3339Nano)
	}
	if _, err := tx.ExecContext(ctx, upsert, "last_full_inventory_at", lastFull); err != nil {
		return err
	}

	cursor := ""
	if state.Cursor != nil {
		data, err := json.Marshal(state.Cursor)
		if err != nil {
			return err
		}
		cursor = string(data)
	}
	if _, err := tx.ExecContext(ctx, upsert, "cursor", cursor); err != nil {
		return err
	}

	inProgress := "false"
	if state.InventoryInProgress {
		inProgress = "true"
	}
	_, err := tx.ExecContext(ctx, upsert, "inventory_in_progress", inProgress)
	return err
}

func (s *SQLiteStore) CreateSyncHistory(ctx context.Context, history *SyncHistory) error {
	query := `INSERT INTO sync_history (id, started_at, completed_at, mode, reason, updated, unchanged, errors, removed, status, error_message)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		history.ID,
		history.StartedAt,
		nullTimePtr(history.CompletedAt),
		history.Mode,
		history.Reason,
		history.Updated,
		history.Unchanged,
		history.Errors,
		history.Removed,
		history.Status,
		history.ErrorMessage,
	)
	return err
}

func (s *SQLiteStore) UpdateSyncHistory(ctx context.Context, history *SyncHistory) error {
	query := `UPDATE sync_history SET completed_at = ?, updated = ?, unchanged = ?, errors = ?, removed = ?, status = ?, error_message = ? WHERE id = ?`

	_, err := s.db.ExecContext(ctx, query,
		nullTimePtr(history.CompletedAt),
		history.Updated,
		history.Unchanged,
		history.Errors,
		history.Removed,
		history.Status,
		history.ErrorMessage,
		history.ID,
	)
	return err
}

func (s *SQLiteStore) GetSyncHistory(ctx context.Context, limit, offset int) ([]*SyncHistory, error) {
	query := `SELECT id, started_at, completed_at, mode, reason, updated, unchanged, errors, removed, status, error_message
			  FROM sync_history ORDER BY started_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*SyncHistory
	for rows.Next() {
		var (
			h            SyncHistory
			completedAt  sql.NullTime
			reason       sql.NullString
			errorMessage sql.NullString
		)
		err := rows.Scan(
			&h.ID,
			&h.StartedAt,
			&completedAt,
			&h.Mode,
			&reason,
			&h.Updated,
			&h.Unchanged,
			&h.Errors,
			&h.Removed,
			&h.Status,
			&errorMessage,
		)
		if err != nil {
			return nil, err
		}
		if completedAt.Valid {
			t := completedAt.Time
			h.CompletedAt = &t
		}
		h.Reason = reason.String
		h.ErrorMessage = errorMessage.String
		history = append(history, &h)
	}
	return history, rows.Err()
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
