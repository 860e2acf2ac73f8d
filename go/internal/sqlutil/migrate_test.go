package sqlutil

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"
)

func TestExtractUpMigration(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (id INTEGER);\n-- +migrate Down\nDROP TABLE a;\n"
	up := ExtractUpMigration(content)
	if !strings.Contains(up, "CREATE TABLE a") {
		t.Fatalf("up section missing create: %q", up)
	}
	if strings.Contains(up, "DROP TABLE") {
		t.Fatalf("up section contains down: %q", up)
	}

	plain := "CREATE TABLE b (id INTEGER);"
	if got := ExtractUpMigration(plain); got != plain {
		t.Fatalf("no markers: got %q", got)
	}
}

func TestLoadMigrationsOrdersAndFilters(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_second.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE two (id INTEGER);\n")},
		"migrations/001_first.sql":  {Data: []byte("-- +migrate Up\nCREATE TABLE one (id INTEGER);\n-- +migrate Down\nDROP TABLE one;\n")},
		"migrations/003_empty.sql":  {Data: []byte("-- +migrate Up\n\n-- +migrate Down\nDROP TABLE x;\n")},
		"migrations/README.md":      {Data: []byte("not sql")},
	}

	got, err := LoadMigrations(fsys, "migrations")
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(got), got)
	}
	if got[0].Name != "001_first.sql" || got[1].Name != "002_second.sql" {
		t.Fatalf("order = %s, %s", got[0].Name, got[1].Name)
	}
}

func TestLoadMigrationsMissingDir(t *testing.T) {
	if _, err := LoadMigrations(fstest.MapFS{}, "nope"); err == nil {
		t.Fatal("expected error for missing dir")
	}
}

func TestIsAlreadyExistsError(t *testing.T) {
	if !IsAlreadyExistsError(errors.New(`relation "sessions" already exists`)) {
		t.Fatal("expected already exists match")
	}
	if !IsAlreadyExistsError(errors.New("duplicate column name: alias")) {
		t.Fatal("expected duplicate column match")
	}
	if IsAlreadyExistsError(errors.New("syntax error")) {
		t.Fatal("unexpected match")
	}
}
