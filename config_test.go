package mvcc

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
durability_path: /var/lib/mvcc/commits.log
reaper_schedule: "@every 30s"
reaper_max_age: 5m
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DurabilityPath != "/var/lib/mvcc/commits.log" {
		t.Errorf("DurabilityPath = %q", cfg.DurabilityPath)
	}
	if cfg.ReaperSchedule != "@every 30s" {
		t.Errorf("ReaperSchedule = %q", cfg.ReaperSchedule)
	}
	if cfg.ReaperMaxAge != 5*time.Minute {
		t.Errorf("ReaperMaxAge = %v, want 5m", cfg.ReaperMaxAge)
	}
}

func TestLoadConfigEmptyFields(t *testing.T) {
	path := writeConfig(t, `durability_path: ""`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DurabilityPath != "" || cfg.ReaperSchedule != "" || cfg.ReaperMaxAge != 0 {
		t.Errorf("expected zero config, got %+v", cfg)
	}
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `reaper_max_age: soon`)
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected an error for an unparseable reaper_max_age")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected an error for a missing config file")
	}
}
