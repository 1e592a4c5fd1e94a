package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, root, content string) {
	t.Helper()
	dir := filepath.Join(root, ".jules")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sync.Limit != 100 {
		t.Errorf("Sync.Limit = %d, want 100", cfg.Sync.Limit)
	}
	if cfg.Sync.Depth != "metadata" {
		t.Errorf("Sync.Depth = %q, want metadata", cfg.Sync.Depth)
	}
	if cfg.Fleet.BaseBranch != "main" {
		t.Errorf("Fleet.BaseBranch = %q, want main", cfg.Fleet.BaseBranch)
	}
	if cfg.Fleet.MaxCIWait.Duration(0) != 600*time.Second {
		t.Errorf("Fleet.MaxCIWait = %v, want 600s", cfg.Fleet.MaxCIWait.Duration(0))
	}
}

func TestLoadReadsFile(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
[api]
key = "file-key"
request_timeout = "45s"

[sync]
limit = 25
depth = "activities"

[fleet]
base_branch = "develop"
max_retries = 0
`)

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Key != "file-key" {
		t.Errorf("API.Key = %q, want file-key", cfg.API.Key)
	}
	if cfg.API.RequestTimeout.Duration(0) != 45*time.Second {
		t.Errorf("RequestTimeout = %v, want 45s", cfg.API.RequestTimeout.Duration(0))
	}
	if cfg.Sync.Limit != 25 {
		t.Errorf("Sync.Limit = %d, want 25", cfg.Sync.Limit)
	}
	if cfg.Sync.Depth != "activities" {
		t.Errorf("Sync.Depth = %q, want activities", cfg.Sync.Depth)
	}
	if cfg.Fleet.BaseBranch != "develop" {
		t.Errorf("Fleet.BaseBranch = %q, want develop", cfg.Fleet.BaseBranch)
	}
	// Explicit zero survives; only negatives reset to the default.
	if cfg.Fleet.MaxRetries != 0 {
		t.Errorf("Fleet.MaxRetries = %d, want 0", cfg.Fleet.MaxRetries)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
[api]
key = "file-key"
base_url = "https://file.example"
`)
	t.Setenv(EnvAPIKey, "env-key")
	t.Setenv(EnvBaseURL, "https://env.example")

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Key != "env-key" {
		t.Errorf("API.Key = %q, want env-key", cfg.API.Key)
	}
	if cfg.API.BaseURL != "https://env.example" {
		t.Errorf("API.BaseURL = %q, want https://env.example", cfg.API.BaseURL)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
[api]
request_timeout = "not-a-duration"
`)
	if _, err := Load(root); err == nil {
		t.Error("expected error for invalid duration")
	}
}
