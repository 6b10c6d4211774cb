package database

import (
	"context"
	"testing"
	"testing/fstest"
)

func TestMigrate(t *testing.T) {
	fsys := fstest.MapFS{
		"20260101_000000_first.up.sql":  {Data: []byte("CREATE TABLE a (id INTEGER PRIMARY KEY);")},
		"20260102_000000_second.up.sql": {Data: []byte("CREATE TABLE b (id INTEGER PRIMARY KEY);")},
		"README.md":                     {Data: []byte("ignored")},
		"bad_name.up.sql":               {Data: []byte("ignored")},
	}

	db := openTestDB(t)
	ctx := context.Background()

	n, err := db.Migrate(ctx, fsys)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Migrate() applied %d, want 2", n)
	}

	for _, table := range []string{"a", "b"} {
		var name string
		if err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name); err != nil {
			t.Errorf("table %s not created: %v", table, err)
		}
	}

	// Second run is a no-op.
	n, err = db.Migrate(ctx, fsys)
	if err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	if n != 0 {
		t.Errorf("second Migrate() applied %d, want 0", n)
	}
}

func TestMigrate_FailureStopsAndRollsBack(t *testing.T) {
	fsys := fstest.MapFS{
		"20260101_000000_ok.up.sql":     {Data: []byte("CREATE TABLE ok (id INTEGER);")},
		"20260102_000000_broken.up.sql": {Data: []byte("CREATE TABLE broken (;")},
	}

	db := openTestDB(t)
	ctx := context.Background()

	n, err := db.Migrate(ctx, fsys)
	if err == nil {
		t.Fatal("Migrate() expected error for broken SQL")
	}
	if n != 1 {
		t.Errorf("Migrate() applied %d before failing, want 1", n)
	}

	applied, err := db.AppliedVersions(ctx)
	if err != nil {
		t.Fatalf("AppliedVersions() error = %v", err)
	}
	if !applied["20260101_000000"] || applied["20260102_000000"] {
		t.Errorf("AppliedVersions() = %v", applied)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantOK      bool
	}{
		{"20260118_120000_initial_schema.up.sql", "20260118_120000", "initial_schema", true},
		{"20260118_120000_initial_schema.down.sql", "", "", false},
		{"20260118_120000.up.sql", "", "", false},
		{"notes.sql", "", "", false},
		{"2026_120000_x.up.sql", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			v, n, ok := parseMigrationFilename(tt.filename)
			if v != tt.wantVersion || n != tt.wantName || ok != tt.wantOK {
				t.Errorf("parseMigrationFilename(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.filename, v, n, ok, tt.wantVersion, tt.wantName, tt.wantOK)
			}
		})
	}
}
