package database

import (
	"context"
	"testing"
	"testing/fstest"
	"time"
)

// useMigrations swaps MigrationsFS for the duration of a test.
func useMigrations(t *testing.T, fsys fstest.MapFS) {
	t.Helper()
	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS, MigrationsDir = origFS, origDir
	})
	MigrationsFS = fsys
	MigrationsDir = "."
}

func ledgerFixture() fstest.MapFS {
	return fstest.MapFS{
		"20260301_090000_runs.up.sql": {Data: []byte(
			"CREATE TABLE test_runs (id TEXT PRIMARY KEY) STRICT;",
		)},
		"20260301_090000_runs.down.sql": {Data: []byte(
			"DROP TABLE test_runs;",
		)},
		"20260302_120000_fetches.up.sql": {Data: []byte(
			"CREATE TABLE test_fetches (run_id TEXT NOT NULL REFERENCES test_runs(id)) STRICT;",
		)},
		"20260302_120000_fetches.down.sql": {Data: []byte(
			"DROP TABLE test_fetches;",
		)},
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
		t.Fatalf("query error: %v", err)
	}
	return count == 1
}

// TestMigrate verifies migration application.
func TestMigrate(t *testing.T) {
	useMigrations(t, ledgerFixture())
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	for _, table := range []string{"test_runs", "test_fetches"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s not created", table)
		}
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("expected 2 applied migrations, got %d", len(applied))
	}
	if len(pending) != 0 {
		t.Errorf("expected 0 pending migrations, got %d", len(pending))
	}
	if applied[0].AppliedAt.IsZero() {
		t.Error("AppliedAt should be recorded")
	}

	// Running again should be idempotent
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

// TestMigrateDown verifies migration rollback.
func TestMigrateDown(t *testing.T) {
	useMigrations(t, ledgerFixture())
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	if tableExists(t, db, "test_fetches") {
		t.Error("table test_fetches should have been dropped")
	}
	if !tableExists(t, db, "test_runs") {
		t.Error("table test_runs should survive a single rollback")
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 1 {
		t.Errorf("after rollback applied=%d pending=%d, want 1 and 1", len(applied), len(pending))
	}
}

// TestMigrateNoMigrations verifies behaviour with no migrations.
func TestMigrateNoMigrations(t *testing.T) {
	origFS := MigrationsFS
	t.Cleanup(func() { MigrationsFS = origFS })
	MigrationsFS = nil

	db := openTestDB(t)

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() with no migrations error = %v", err)
	}
	if err := db.MigrateDown(context.Background()); err != nil {
		t.Fatalf("MigrateDown() with nothing applied error = %v", err)
	}
}

func TestMigrateBrokenSQL(t *testing.T) {
	fsys := ledgerFixture()
	fsys["20260303_000000_broken.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE (")}
	useMigrations(t, fsys)
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err == nil {
		t.Fatal("Migrate() expected error for broken SQL")
	}

	// Earlier migrations stay committed.
	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 1 {
		t.Errorf("applied=%d pending=%d, want 2 and 1", len(applied), len(pending))
	}
}

func TestLoadMigrations_DownWithoutUp(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"20260301_090000_orphan.down.sql": {Data: []byte("DROP TABLE x;")},
	})

	if _, err := loadMigrations(); err == nil {
		t.Error("loadMigrations() expected error for down file without up file")
	}
}

// TestParseMigrationFilename verifies filename parsing.
func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     migrationFile
		wantOk   bool
	}{
		{
			name:     "valid up migration",
			filename: "20260301_090000_run_ledger.up.sql",
			want:     migrationFile{version: "20260301_090000", name: "run_ledger", up: true},
			wantOk:   true,
		},
		{
			name:     "valid down migration",
			filename: "20260301_090000_run_ledger.down.sql",
			want:     migrationFile{version: "20260301_090000", name: "run_ledger"},
			wantOk:   true,
		},
		{
			name:     "not sql file",
			filename: "readme.txt",
		},
		{
			name:     "missing direction",
			filename: "20260301_090000_run_ledger.sql",
		},
		{
			name:     "invalid format",
			filename: "invalid.up.sql",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if ok && got != tt.want {
				t.Errorf("parseMigrationFilename(%q) = %+v, want %+v", tt.filename, got, tt.want)
			}
		})
	}
}
