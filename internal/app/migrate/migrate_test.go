package migrate

import (
	"io"
	"log/slog"
	"testing"
)

func TestNewValidatesInputs(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	if _, err := New("", "", dir, log); err == nil {
		t.Fatal("expected error for empty dsn")
	}
	if _, err := New("postgres://u:p@localhost:5432/app", "", "", log); err == nil {
		t.Fatal("expected error for empty migrations dir")
	}
	if _, err := New("postgres://u:p@localhost:5432/app", "", dir+"/missing", log); err == nil {
		t.Fatal("expected error for missing migrations dir")
	}
}

func TestNewOverridesDatabase(t *testing.T) {
	runner, err := New("postgres://u:p@localhost:5432/app?sslmode=disable", "errors_db", t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if runner.connConfig.Database != "errors_db" {
		t.Fatalf("expected database override, got %q", runner.connConfig.Database)
	}
}
