package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gree-bridge/internal/bridges/gree"
	"github.com/nerrad567/gree-bridge/internal/infrastructure/config"
	"github.com/nerrad567/gree-bridge/internal/infrastructure/database"
	"github.com/nerrad567/gree-bridge/migrations"
)

// openTestRepo returns a repository on a freshly migrated temporary database.
func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if _, err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	return NewSQLiteRepository(db.DB)
}

func TestRecordAndGetHistory(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

	states := []gree.DeviceState{
		{Power: true, Mode: gree.ModeCool, TargetTemperature: 24, FanSpeed: gree.FanAuto},
		{Power: true, Mode: gree.ModeCool, TargetTemperature: 22, FanSpeed: gree.FanHigh},
		{Power: false, Mode: gree.ModeCool, TargetTemperature: 22, FanSpeed: gree.FanHigh},
	}
	for i, s := range states {
		if err := repo.RecordStateChange(ctx, "lounge", s, "", base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("RecordStateChange(%d) error = %v", i, err)
		}
	}
	if err := repo.RecordStateChange(ctx, "bedroom", states[0], SourcePoll, base); err != nil {
		t.Fatalf("RecordStateChange(bedroom) error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, "lounge", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}

	newest := entries[0]
	if newest.State != states[2] {
		t.Errorf("newest state = %+v, want %+v", newest.State, states[2])
	}
	if !newest.CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("newest CreatedAt = %v", newest.CreatedAt)
	}
	if newest.Source != SourcePoll || newest.DeviceID != "lounge" {
		t.Errorf("newest = %+v", newest)
	}
	if entries[2].State != states[0] {
		t.Errorf("oldest state = %+v, want %+v", entries[2].State, states[0])
	}

	limited, err := repo.GetHistory(ctx, "lounge", 1)
	if err != nil {
		t.Fatalf("GetHistory(limit 1) error = %v", err)
	}
	if len(limited) != 1 || limited[0].ID != newest.ID {
		t.Errorf("limited = %+v", limited)
	}

	none, err := repo.GetHistory(ctx, "kitchen", 10)
	if err != nil || len(none) != 0 {
		t.Errorf("GetHistory(unknown) = %v, %v; want empty", none, err)
	}
}

func TestRecordStateChange_Validation(t *testing.T) {
	repo := openTestRepo(t)

	err := repo.RecordStateChange(context.Background(), "", gree.DeviceState{}, SourcePoll, time.Now())
	if !errors.Is(err, ErrDeviceIDRequired) {
		t.Errorf("RecordStateChange(\"\") error = %v, want ErrDeviceIDRequired", err)
	}
	if _, err := repo.GetHistory(context.Background(), "", 10); !errors.Is(err, ErrDeviceIDRequired) {
		t.Errorf("GetHistory(\"\") error = %v, want ErrDeviceIDRequired", err)
	}
}

func TestRecordStateChange_ZeroTimeUsesClock(t *testing.T) {
	repo := openTestRepo(t)
	fixed := time.Date(2026, 10, 19, 12, 30, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	if err := repo.RecordStateChange(context.Background(), "lounge", gree.DeviceState{}, SourcePoll, time.Time{}); err != nil {
		t.Fatalf("RecordStateChange() error = %v", err)
	}
	entries, err := repo.GetHistory(context.Background(), "lounge", 1)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 || !entries[0].CreatedAt.Equal(fixed) {
		t.Errorf("entries = %+v, want CreatedAt %v", entries, fixed)
	}
}

func TestGetHistory_LimitClamp(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	for i := 0; i < maxHistoryLimit+5; i++ {
		state := gree.DeviceState{TargetTemperature: 16 + i%15}
		if err := repo.RecordStateChange(ctx, "lounge", state, SourcePoll, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("RecordStateChange(%d) error = %v", i, err)
		}
	}

	entries, err := repo.GetHistory(ctx, "lounge", 10_000)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != maxHistoryLimit {
		t.Errorf("len(entries) = %d, want %d", len(entries), maxHistoryLimit)
	}
}

func TestPrune(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	for _, age := range []time.Duration{48 * time.Hour, 25 * time.Hour, time.Hour, 0} {
		if err := repo.RecordStateChange(ctx, "lounge", gree.DeviceState{}, SourcePoll, now.Add(-age)); err != nil {
			t.Fatalf("RecordStateChange() error = %v", err)
		}
	}

	n, err := repo.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() deleted %d, want 2", n)
	}

	entries, err := repo.GetHistory(ctx, "lounge", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("remaining = %d, want 2", len(entries))
	}

	if _, err := repo.Prune(ctx, 0); err == nil {
		t.Error("Prune(0) should fail")
	}
}
