package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gree-bridge/internal/bridges/gree"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// timestampLayout matches strftime('%Y-%m-%dT%H:%M:%fZ') so stored
	// values sort lexically in time order.
	timestampLayout = "2006-01-02T15:04:05.000Z"
)

// ErrDeviceIDRequired is returned when an operation is called without a device id.
var ErrDeviceIDRequired = errors.New("history: device id is required")

// SQLiteRepository implements Repository on the state_history table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// RecordStateChange inserts a snapshot of state for deviceID.
func (r *SQLiteRepository) RecordStateChange(ctx context.Context, deviceID string, state gree.DeviceState, source string, at time.Time) error {
	if deviceID == "" {
		return ErrDeviceIDRequired
	}
	if source == "" {
		source = SourcePoll
	}
	if at.IsZero() {
		at = r.now()
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO state_history (device_id, state, source, created_at) VALUES (?, ?, ?, ?)",
		deviceID,
		string(stateJSON),
		source,
		at.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}

	return nil
}

// GetHistory returns recent entries for a device, newest first.
// limit defaults to 50 and is capped at 200.
func (r *SQLiteRepository) GetHistory(ctx context.Context, deviceID string, limit int) ([]Entry, error) {
	if deviceID == "" {
		return nil, ErrDeviceIDRequired
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, state, source, created_at
		 FROM state_history
		 WHERE device_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		deviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var entry Entry
		var stateJSON, createdAt string

		if err := rows.Scan(&entry.ID, &entry.DeviceID, &stateJSON, &entry.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &entry.State); err != nil {
			return nil, fmt.Errorf("unmarshalling state: %w", err)
		}

		ts, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
		}
		entry.CreatedAt = ts

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}

	return entries, nil
}

// Prune deletes entries recorded before now-olderThan.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("history: retention must be positive, got %v", olderThan)
	}

	cutoff := r.now().UTC().Add(-olderThan).Format(timestampLayout)
	result, err := r.db.ExecContext(ctx, "DELETE FROM state_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
