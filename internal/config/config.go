// Package config loads the YAML server configuration with an
// environment-variable overlay for containerized deployments.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Upload    UploadConfig    `yaml:"upload"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	History   HistoryConfig   `yaml:"history"`
	LogLevel  string          `yaml:"logLevel"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int    `yaml:"port"`
	BindAddress  string `yaml:"bindAddress"`
	PublicURL    string `yaml:"publicUrl"`
	EnableCORS   bool   `yaml:"enableCors"`
	AllowOrigins string `yaml:"allowOrigins"`
	BodyLimit    string `yaml:"bodyLimit"`
}

// StorageConfig selects and tunes the object store backend.
type StorageConfig struct {
	// Backend is "local" or "http".
	Backend string `yaml:"backend"`

	// Local backend.
	DataDir    string `yaml:"dataDir"`
	SignSecret string `yaml:"signSecret"`

	// HTTP backend.
	Endpoint        string  `yaml:"endpoint"`
	SignerURL       string  `yaml:"signerUrl"`
	ProbeRatePerSec float64 `yaml:"probeRatePerSec"`

	// URLCacheMinutes is how long display signed URLs are memoized.
	URLCacheMinutes int `yaml:"urlCacheMinutes"`
}

// UploadConfig tunes the orchestrator.
type UploadConfig struct {
	// GraceDelayMs is the pause between the last upload attempt and
	// the first reconciliation cycle.
	GraceDelayMs int `yaml:"graceDelayMs"`
}

// ReconcileConfig tunes the polling loop.
type ReconcileConfig struct {
	IntervalMs int `yaml:"intervalMs"`

	// MaxCycles stops polling after that many cycles; 0 polls until
	// the batch resolves.
	MaxCycles int `yaml:"maxCycles"`

	// RetentionMinutes is how long resolved batches stay queryable.
	RetentionMinutes int `yaml:"retentionMinutes"`

	// CleanupIntervalMinutes is the sweep cadence for the registry.
	CleanupIntervalMinutes int `yaml:"cleanupIntervalMinutes"`
}

// HistoryConfig tunes the resolved-batch ledger.
type HistoryConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			BindAddress:  "0.0.0.0",
			PublicURL:    "http://localhost:8080",
			EnableCORS:   true,
			AllowOrigins: "*",
			BodyLimit:    "64M",
		},
		Storage: StorageConfig{
			Backend:         "local",
			DataDir:         "./data/objects",
			ProbeRatePerSec: 20,
			URLCacheMinutes: 30,
		},
		Upload: UploadConfig{
			GraceDelayMs: 2000,
		},
		Reconcile: ReconcileConfig{
			IntervalMs:             3000,
			MaxCycles:              0,
			RetentionMinutes:       30,
			CleanupIntervalMinutes: 10,
		},
		History: HistoryConfig{
			Dir: "./data/history",
		},
		LogLevel: "info",
	}
}

// Load reads the YAML file at path on top of the defaults, then
// applies environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults + env only.
		case err != nil:
			return cfg, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, cfg.validate()
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("PUBLIC_URL"); v != "" {
		c.Server.PublicURL = v
	}
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("STORE_ENDPOINT"); v != "" {
		c.Storage.Endpoint = v
	}
	if v := os.Getenv("STORE_SIGNER_URL"); v != "" {
		c.Storage.SignerURL = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("SIGN_SECRET"); v != "" {
		c.Storage.SignSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "local":
		if c.Storage.DataDir == "" {
			return fmt.Errorf("storage.dataDir must be set for the local backend")
		}
	case "http":
		if c.Storage.Endpoint == "" {
			return fmt.Errorf("storage.endpoint must be set for the http backend")
		}
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}
	if c.Upload.GraceDelayMs < 0 || c.Reconcile.IntervalMs <= 0 {
		return fmt.Errorf("reconcile cadence must be positive")
	}
	return nil
}

// GraceDelay returns the grace delay as a duration.
func (c *Config) GraceDelay() time.Duration {
	return time.Duration(c.Upload.GraceDelayMs) * time.Millisecond
}

// ReconcileInterval returns the polling interval as a duration.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Reconcile.IntervalMs) * time.Millisecond
}
