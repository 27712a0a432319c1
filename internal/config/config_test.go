package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.DBPath != "chorewheel.db" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.SweepInterval != 5*time.Minute {
		t.Errorf("SweepInterval = %v", cfg.SweepInterval)
	}
	if cfg.Addr() != ":8080" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHOREWHEEL_PORT", "9090")
	t.Setenv("CHOREWHEEL_SWEEP_INTERVAL", "30s")
	t.Setenv("CHOREWHEEL_LOG_FORMAT", "json")

	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.SweepInterval != 30*time.Second {
		t.Errorf("SweepInterval = %v", cfg.SweepInterval)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chorewheel.yaml")
	if err := os.WriteFile(path, []byte("db_path: /var/lib/chorewheel.db\nlog_level: debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(New(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/var/lib/chorewheel.db" || cfg.LogLevel != "debug" {
		t.Errorf("file values not applied: %+v", cfg)
	}
}

func TestRejectsBadValues(t *testing.T) {
	t.Setenv("CHOREWHEEL_LOG_FORMAT", "xml")
	if _, err := Load(New(), ""); err == nil {
		t.Error("expected error for unknown log format")
	}
}
