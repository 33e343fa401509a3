package runconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewAppliesDefaults(t *testing.T) {
	cfg := New()
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.Diagnostics.Enabled {
		t.Fatal("expected diagnostics disabled by default")
	}
	if cfg.Heartbeat.CronSpec != "@every 30s" {
		t.Fatalf("unexpected default heartbeat cron spec: %q", cfg.Heartbeat.CronSpec)
	}
}

func TestLoadReadsYAMLFileAndAppliesEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resinker.yaml")
	yamlContent := `
spec_files:
  - spec/onboarding.yaml
logging:
  level: debug
  format: json
diagnostics:
  enabled: true
  addr: ":9090"
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Setenv("RESINKER_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.SpecFiles) != 1 || cfg.SpecFiles[0] != "spec/onboarding.yaml" {
		t.Fatalf("unexpected spec_files: %v", cfg.SpecFiles)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected env override to win, got level %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected file value to survive when no env override, got format %q", cfg.Logging.Format)
	}
	if !cfg.Diagnostics.Enabled || cfg.Diagnostics.Addr != ":9090" {
		t.Fatalf("unexpected diagnostics config: %+v", cfg.Diagnostics)
	}
}

func TestLoadRejectsMissingSpecFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resinker.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error when no spec_files are configured")
	}
}
