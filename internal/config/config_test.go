package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if cfg.Server.Port != 8080 {
			t.Errorf("Expected port 8080, got %d", cfg.Server.Port)
		}
		if cfg.Storage.Backend != "local" {
			t.Errorf("Expected local backend, got %q", cfg.Storage.Backend)
		}
		if cfg.GraceDelay() != 2*time.Second {
			t.Errorf("Expected 2s grace delay, got %v", cfg.GraceDelay())
		}
		if cfg.ReconcileInterval() != 3*time.Second {
			t.Errorf("Expected 3s interval, got %v", cfg.ReconcileInterval())
		}
		if cfg.Reconcile.MaxCycles != 0 {
			t.Errorf("Expected unbounded polling by default, got %d", cfg.Reconcile.MaxCycles)
		}
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := writeConfig(t, `
server:
  port: 9090
  publicUrl: https://snapbatch.example.com
storage:
  backend: http
  endpoint: https://objects.example.com
  probeRatePerSec: 5
upload:
  graceDelayMs: 500
reconcile:
  intervalMs: 1000
  maxCycles: 40
logLevel: debug
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if cfg.Server.Port != 9090 {
			t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
		}
		if cfg.Storage.Endpoint != "https://objects.example.com" {
			t.Errorf("Unexpected endpoint %q", cfg.Storage.Endpoint)
		}
		if cfg.Storage.ProbeRatePerSec != 5 {
			t.Errorf("Expected probe rate 5, got %v", cfg.Storage.ProbeRatePerSec)
		}
		if cfg.GraceDelay() != 500*time.Millisecond {
			t.Errorf("Expected 500ms grace delay, got %v", cfg.GraceDelay())
		}
		if cfg.Reconcile.MaxCycles != 40 {
			t.Errorf("Expected 40 cycles, got %d", cfg.Reconcile.MaxCycles)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("Expected debug level, got %q", cfg.LogLevel)
		}
		// Untouched sections keep their defaults.
		if cfg.Server.BodyLimit != "64M" {
			t.Errorf("Expected default body limit, got %q", cfg.Server.BodyLimit)
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeConfig(t, "server:\n  port: 9090\n")
		t.Setenv("PORT", "7070")
		t.Setenv("STORE_BACKEND", "http")
		t.Setenv("STORE_ENDPOINT", "https://env.example.com")

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Server.Port != 7070 {
			t.Errorf("Expected env port 7070, got %d", cfg.Server.Port)
		}
		if cfg.Storage.Backend != "http" || cfg.Storage.Endpoint != "https://env.example.com" {
			t.Errorf("Expected env storage settings, got %+v", cfg.Storage)
		}
	})

	t.Run("rejects unknown backend", func(t *testing.T) {
		path := writeConfig(t, "storage:\n  backend: s3\n")
		if _, err := Load(path); err == nil {
			t.Error("Expected error for unknown backend")
		}
	})

	t.Run("rejects http backend without endpoint", func(t *testing.T) {
		path := writeConfig(t, "storage:\n  backend: http\n")
		if _, err := Load(path); err == nil {
			t.Error("Expected error for missing endpoint")
		}
	})

	t.Run("rejects non-positive interval", func(t *testing.T) {
		path := writeConfig(t, "reconcile:\n  intervalMs: 0\n")
		if _, err := Load(path); err == nil {
			t.Error("Expected error for zero interval")
		}
	})

	t.Run("rejects malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "server: [not a map\n")
		if _, err := Load(path); err == nil {
			t.Error("Expected parse error")
		}
	})
}
