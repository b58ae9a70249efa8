package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gree-bridge/internal/infrastructure/config"
)

func TestOpen(t *testing.T) {
	t.Run("creates nested directory and file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "data", "nested", "greebridge.db")

		db, err := Open(config.DatabaseConfig{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if _, err := db.ExecContext(context.Background(), "CREATE TABLE t (id INTEGER)"); err != nil {
			t.Fatalf("create table: %v", err)
		}
		if _, err := os.Stat(dbPath); err != nil {
			t.Errorf("database file not created: %v", err)
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
		}
	})

	t.Run("journal mode follows config", func(t *testing.T) {
		for _, wal := range []bool{true, false} {
			db, err := Open(config.DatabaseConfig{
				Path:        filepath.Join(t.TempDir(), "mode.db"),
				WALMode:     wal,
				BusyTimeout: 1,
			})
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}

			var mode string
			if err := db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&mode); err != nil {
				t.Fatalf("PRAGMA journal_mode: %v", err)
			}
			if want := map[bool]string{true: "wal", false: "delete"}[wal]; mode != want {
				t.Errorf("WALMode=%v journal_mode = %q, want %q", wal, mode, want)
			}
			db.Close() //nolint:errcheck // Test cleanup
		}
	})

	t.Run("empty path", func(t *testing.T) {
		if _, err := Open(config.DatabaseConfig{}); err == nil {
			t.Error("Open() with empty path should fail")
		}
	})
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	db.Close() //nolint:errcheck // Test cleanup
	if err := db.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() on closed database should fail")
	}
}

func TestClose(t *testing.T) {
	db := openTestDB(t)
	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	var zero DB
	if err := zero.Close(); err != nil {
		t.Errorf("Close() on zero DB error = %v", err)
	}
}

func TestWithTx(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE tx_test (value TEXT)"); err != nil {
		t.Fatalf("CREATE TABLE error = %v", err)
	}

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO tx_test (value) VALUES (?)", "committed")
		return err
	})
	if err != nil {
		t.Fatalf("WithTx() commit path error = %v", err)
	}

	boom := errors.New("boom")
	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO tx_test (value) VALUES (?)", "rolled_back"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v, want %v", err, boom)
	}

	var values []string
	rows, err := db.QueryContext(ctx, "SELECT value FROM tx_test")
	if err != nil {
		t.Fatalf("SELECT error = %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			t.Fatal(err)
		}
		values = append(values, v)
	}
	if len(values) != 1 || values[0] != "committed" {
		t.Errorf("rows = %v, want [committed]", values)
	}
}

func TestSingleWriterPool(t *testing.T) {
	db := openTestDB(t)
	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", got)
	}
}

// openTestDB creates a temporary database closed at test cleanup.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	return db
}
