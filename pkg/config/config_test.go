package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Identity.KeyPath != DefaultKeyPath {
		t.Errorf("Expected key path %q, got %q", DefaultKeyPath, cfg.Identity.KeyPath)
	}
	if cfg.Storage.Graph.Backend != "sqlite" {
		t.Errorf("Expected graph backend sqlite, got %q", cfg.Storage.Graph.Backend)
	}
	if cfg.Sync.Schedule != DefaultSyncSchedule {
		t.Errorf("Expected schedule %q, got %q", DefaultSyncSchedule, cfg.Sync.Schedule)
	}
	if cfg.Sync.PendingTimeout != 5*time.Minute {
		t.Errorf("Expected pending timeout 5m, got %v", cfg.Sync.PendingTimeout)
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("Expected metrics enabled by default")
	}

	if err := Validate(cfg); err != nil {
		t.Fatalf("Default config should validate: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := `
device:
  name: test-device
storage:
  graph:
    backend: memory
  facts:
    backend: memory
sync:
  peers:
    - "10.0.0.2:7420"
  session_timeout: 2s
telemetry:
  logging:
    level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Device.Name != "test-device" {
		t.Errorf("Expected device name test-device, got %q", cfg.Device.Name)
	}
	if cfg.Storage.Graph.Backend != "memory" {
		t.Errorf("Expected memory backend, got %q", cfg.Storage.Graph.Backend)
	}
	if cfg.Sync.SessionTimeout != 2*time.Second {
		t.Errorf("Expected session timeout 2s, got %v", cfg.Sync.SessionTimeout)
	}
	// Defaults still fill unset fields.
	if cfg.Sync.Schedule != DefaultSyncSchedule {
		t.Errorf("Expected default schedule, got %q", cfg.Sync.Schedule)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Graph.Backend = "postgres"
	cfg.Sync.Schedule = "not a cron expression"
	cfg.Telemetry.Logging.Level = "loud"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error")
	}

	verr, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("Expected ValidationError, got %T", err)
	}
	if len(verr.Errors) != 3 {
		t.Errorf("Expected 3 field errors, got %d: %v", len(verr.Errors), verr)
	}
	if !strings.Contains(verr.Error(), "storage.graph.backend") {
		t.Errorf("Expected backend error in message, got %q", verr.Error())
	}
}

func TestValidateSQLiteRequiresPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Facts.Path = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for sqlite backend without path")
	}
}

func TestValidateBadPeerAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sync.Peers = []string{"not-an-address"}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for bad peer address")
	}
}
