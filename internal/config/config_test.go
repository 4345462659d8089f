package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("flat-7")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Household.Name != "flat-7" {
		t.Fatalf("household not applied: %q", cfg.Household.Name)
	}
	if cfg.Defaults.DueDays != 7 || cfg.Escalation.Max != 2 || cfg.Log.DefaultLimit != 100 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestFromYAMLKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := FromYAML([]byte("household:\n  name: wg\nurgency:\n  max_votes: 3\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Urgency.MaxVotes != 3 {
		t.Fatalf("override lost: %d", cfg.Urgency.MaxVotes)
	}
	if cfg.Urgency.YellowBelow != 40 || cfg.Uploads.Dir != "uploads" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestFromYAMLRejectsBadBands(t *testing.T) {
	_, err := FromYAML([]byte("household:\n  name: wg\nurgency:\n  red_below: 50\n  yellow_below: 20\n"))
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("expected nil,nil for missing file, got %v %v", cfg, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "choreline.yml"), []byte(GenerateDefault("home")), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil || cfg == nil {
		t.Fatalf("expected config, got %v %v", cfg, err)
	}
	if got := cfg.UploadDir(dir); got != filepath.Join(dir, "uploads") {
		t.Fatalf("unexpected upload dir %s", got)
	}
}

func TestLoadServerEnv(t *testing.T) {
	t.Setenv("CHORELINE_ADDR", "0.0.0.0:9000")
	t.Setenv("CHORELINE_ALLOW_USER_HEADER", "false")
	se, err := LoadServerEnv()
	if err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if se.Addr != "0.0.0.0:9000" || se.AllowUserHeader || se.BasePath != "/v0" {
		t.Fatalf("unexpected env: %+v", se)
	}
}
