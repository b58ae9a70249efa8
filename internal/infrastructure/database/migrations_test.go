package database

import (
	"context"
	"testing"
	"testing/fstest"
)

// testMigrations is a two-step schema used across the migration tests.
func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20261001_090000_create_units.up.sql": {Data: []byte(
			"CREATE TABLE test_units (id TEXT PRIMARY KEY, name TEXT NOT NULL);")},
		"20261001_090000_create_units.down.sql": {Data: []byte(
			"DROP TABLE test_units;")},
		"20261002_090000_add_model.up.sql": {Data: []byte(
			"ALTER TABLE test_units ADD COLUMN model TEXT;")},
		"20261002_090000_add_model.down.sql": {Data: []byte(
			"ALTER TABLE test_units DROP COLUMN model;")},
		"README.md": {Data: []byte("ignored")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return count == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	src := testMigrations()

	n, err := db.Migrate(ctx, src)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Migrate() applied %d, want 2", n)
	}
	if !tableExists(t, db, "test_units") {
		t.Fatal("table test_units not created")
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO test_units (id, name, model) VALUES ('a', 'b', 'c')"); err != nil {
		t.Errorf("second migration not applied: %v", err)
	}

	n, err = db.Migrate(ctx, src)
	if err != nil || n != 0 {
		t.Errorf("second Migrate() = %d, %v; want 0, nil", n, err)
	}
}

func TestMigrate_FailureKeepsEarlierSteps(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	src := testMigrations()
	src["20261002_090000_add_model.up.sql"] = &fstest.MapFile{Data: []byte("NOT VALID SQL")}

	n, err := db.Migrate(ctx, src)
	if err == nil {
		t.Fatal("Migrate() should fail on invalid SQL")
	}
	if n != 1 {
		t.Errorf("applied = %d, want 1", n)
	}

	applied, pending, err := db.MigrationStatus(ctx, src)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 1 {
		t.Errorf("applied=%d pending=%d, want 1/1", len(applied), len(pending))
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	src := testMigrations()

	if _, err := db.Migrate(ctx, src); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, src); err != nil {
		t.Fatalf("first MigrateDown() error = %v", err)
	}
	if err := db.MigrateDown(ctx, src); err != nil {
		t.Fatalf("second MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "test_units") {
		t.Error("table test_units should have been dropped")
	}

	applied, _, err := db.MigrationStatus(ctx, src)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("applied = %d after rollback, want 0", len(applied))
	}

	if err := db.MigrateDown(ctx, src); err != nil {
		t.Errorf("MigrateDown() with nothing applied error = %v", err)
	}
}

func TestMigrate_NilSource(t *testing.T) {
	db := openTestDB(t)
	n, err := db.Migrate(context.Background(), nil)
	if err != nil || n != 0 {
		t.Errorf("Migrate(nil) = %d, %v; want 0, nil", n, err)
	}
}

func TestLoadMigrations_DownWithoutUp(t *testing.T) {
	src := fstest.MapFS{
		"20261001_090000_orphan.down.sql": {Data: []byte("DROP TABLE x;")},
	}
	if _, err := loadMigrations(src); err == nil {
		t.Error("loadMigrations() should reject a down file with no up file")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantIsUp    bool
		wantOk      bool
	}{
		{"up", "20261019_120000_state_history.up.sql", "20261019_120000", true, true},
		{"down", "20261019_120000_state_history.down.sql", "20261019_120000", false, true},
		{"not sql", "readme.txt", "", false, false},
		{"missing direction", "20261019_120000_state_history.sql", "", false, false},
		{"no version", "invalid.up.sql", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if ok && (version != tt.wantVersion || isUp != tt.wantIsUp) {
				t.Errorf("got (%q, %v), want (%q, %v)", version, isUp, tt.wantVersion, tt.wantIsUp)
			}
		})
	}
}

func TestExtractMigrationName(t *testing.T) {
	tests := map[string]string{
		"20261019_120000_state_history.up.sql":    "state_history",
		"20261019_120000_state_history.down.sql":  "state_history",
		"20261020_080000_add_swing_column.up.sql": "add_swing_column",
	}
	for filename, want := range tests {
		if got := extractMigrationName(filename); got != want {
			t.Errorf("extractMigrationName(%q) = %q, want %q", filename, got, want)
		}
	}
}
