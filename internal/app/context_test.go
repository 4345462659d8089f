package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"choreline/internal/config"
	"choreline/internal/engine"
)

func TestOpenWithoutConfigUsesDefaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "flat-7")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	ws, err := Open(context.Background(), dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ws.Close()
	if ws.Config.Household.Name != "flat-7" {
		t.Fatalf("expected household named after the directory, got %q", ws.Config.Household.Name)
	}
	if got := ws.UploadDir(); got != filepath.Join(dir, "uploads") {
		t.Fatalf("unexpected upload dir %s", got)
	}
	if _, err := ws.Engine().CreateUser(context.Background(), engine.UserCreateOptions{Name: "Ann"}); err != nil {
		t.Fatalf("engine on migrated db: %v", err)
	}
}

func TestOpenReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(config.Path(dir), []byte("household:\n  name: Casa\ndefaults:\n  points: 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ws, err := Open(context.Background(), dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ws.Close()
	if ws.Config.Household.Name != "Casa" || ws.Config.Defaults.Points != 4 {
		t.Fatalf("config not read: %+v", ws.Config.Household)
	}
	if ws.Config.Defaults.DueDays != 7 {
		t.Fatalf("missing keys should keep defaults, got due_days=%d", ws.Config.Defaults.DueDays)
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(config.Path(dir), []byte("urgency:\n  red_below: 80\n  yellow_below: 20\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(context.Background(), dir); err == nil {
		t.Fatalf("expected invalid config to fail")
	}
}
