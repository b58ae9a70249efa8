package history

import (
	"context"
	"time"

	"github.com/nerrad567/gree-bridge/internal/bridges/gree"
)

// DefaultPruneInterval is how often RunPruner deletes expired entries.
const DefaultPruneInterval = time.Hour

// Logger is the logging interface used by the recorder.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Recorder writes state changes to a Repository. It implements
// gree.StateObserver; unchanged polls are skipped.
type Recorder struct {
	repo   Repository
	logger Logger
}

// NewRecorder creates a recorder. A nil logger discards output.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{repo: repo, logger: logger}
}

// ObserveState records obs when the state differs from the previous decode.
func (r *Recorder) ObserveState(ctx context.Context, obs gree.Observation) {
	if !obs.Changed() {
		return
	}
	if err := r.repo.RecordStateChange(ctx, obs.Device.ID, obs.State, SourcePoll, obs.Time); err != nil {
		r.logger.Warn("failed to record state history",
			"device_id", obs.Device.ID,
			"error", err,
		)
	}
}

// RunPruner deletes entries older than retention every interval until ctx
// is cancelled. One prune runs immediately.
func (r *Recorder) RunPruner(ctx context.Context, retention, interval time.Duration) {
	if retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = DefaultPruneInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r.prune(ctx, retention)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Recorder) prune(ctx context.Context, retention time.Duration) {
	n, err := r.repo.Prune(ctx, retention)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("state history prune failed", "error", err)
		}
		return
	}
	if n > 0 {
		r.logger.Info("pruned state history", "deleted", n, "retention", retention.String())
	}
}
