package history

import (
	"context"
	"time"

	"github.com/nerrad567/gree-bridge/internal/bridges/gree"
)

// SourcePoll marks entries recorded from a periodic or post-command status refresh.
const SourcePoll = "poll"

// Entry is one recorded state change.
type Entry struct {
	ID        int64            `json:"id"`
	DeviceID  string           `json:"device_id"`
	State     gree.DeviceState `json:"state"`
	Source    string           `json:"source"`
	CreatedAt time.Time        `json:"created_at"`
}

// Repository stores and retrieves device state history.
//
// Implementations must be safe for concurrent use and store UTC timestamps.
type Repository interface {
	// RecordStateChange stores a snapshot. A zero at means now.
	RecordStateChange(ctx context.Context, deviceID string, state gree.DeviceState, source string, at time.Time) error

	// GetHistory returns up to limit entries for a device, newest first.
	GetHistory(ctx context.Context, deviceID string, limit int) ([]Entry, error)

	// Prune deletes entries older than olderThan and returns how many went.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}
