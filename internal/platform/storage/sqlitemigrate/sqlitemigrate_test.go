package sqlitemigrate

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func TestUpSection(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "up and down", content: "-- +migrate Up\nCREATE TABLE a(id INT);\n-- +migrate Down\nDROP TABLE a;", want: "CREATE TABLE a(id INT);"},
		{name: "up only", content: "-- +migrate Up\nCREATE TABLE b(id INT);\n", want: "CREATE TABLE b(id INT);"},
		{name: "no marker", content: "CREATE TABLE c(id INT);", want: "CREATE TABLE c(id INT);"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := UpSection(tc.content); got != tc.want {
				t.Fatalf("UpSection = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLoadSortsAndSkipsNonSQL(t *testing.T) {
	fsys := fstest.MapFS{
		"002_second.sql": {Data: []byte("-- +migrate Up\nSELECT 2;")},
		"001_first.sql":  {Data: []byte("-- +migrate Up\nSELECT 1;")},
		"README.md":      {Data: []byte("notes")},
	}
	got, err := Load(fsys)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[0].Name != "001_first.sql" || got[1].Name != "002_second.sql" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	db := openMemoryDB(t)
	fsys := fstest.MapFS{
		"001_rooms.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE rooms(id TEXT PRIMARY KEY);\n-- +migrate Down\nDROP TABLE rooms;")},
	}
	ctx := context.Background()
	if err := ApplyMigrations(ctx, db, fsys); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := ApplyMigrations(ctx, db, fsys); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM schema_migrations"); n != 1 {
		t.Fatalf("expected one recorded migration, got %d", n)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='rooms'"); n != 1 {
		t.Fatal("expected rooms table")
	}
}

func TestApplyMigrationsLeavesFailureUnrecorded(t *testing.T) {
	db := openMemoryDB(t)
	ctx := context.Background()

	bad := fstest.MapFS{"001_bad.sql": {Data: []byte("-- +migrate Up\nCREAT TABLE x(id INT);")}}
	if err := ApplyMigrations(ctx, db, bad); err == nil {
		t.Fatal("expected syntax error")
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM schema_migrations"); n != 0 {
		t.Fatalf("failed migration recorded %d rows", n)
	}

	fixed := fstest.MapFS{"001_bad.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE x(id INT);")}}
	if err := ApplyMigrations(ctx, db, fixed); err != nil {
		t.Fatalf("apply fixed: %v", err)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM schema_migrations"); n != 1 {
		t.Fatalf("expected fixed migration recorded, got %d", n)
	}
}

func TestApplyMigrationsRequiresDB(t *testing.T) {
	if err := ApplyMigrations(context.Background(), nil, fstest.MapFS{}); err == nil {
		t.Fatal("expected error for nil db")
	}
}

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func countRows(t *testing.T, db *sql.DB, query string) int64 {
	t.Helper()
	var n int64
	if err := db.QueryRow(query).Scan(&n); err != nil {
		t.Fatalf("query %q: %v", query, err)
	}
	return n
}
