package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"syncabull/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if cfg.Sync.Concurrency != 4 || cfg.Sync.MaxAttempts != 4 {
		t.Fatalf("unexpected sync defaults: %+v", cfg.Sync)
	}
	if cfg.Sync.AssetURLTTLMinutes != 55 {
		t.Fatalf("asset url ttl default = %d, want 55", cfg.Sync.AssetURLTTLMinutes)
	}
	if !filepath.IsAbs(cfg.Paths.StateDir) {
		t.Fatalf("state dir not expanded: %s", cfg.Paths.StateDir)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
state_dir = "` + filepath.Join(dir, "state") + `"
destination_dir = "` + filepath.Join(dir, "photos") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[sync]
concurrency = 8
max_attempts = 6

[library]
base_url = "https://photos.example/v1/"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("resolved=%q exists=%v", resolved, exists)
	}
	if cfg.Sync.Concurrency != 8 || cfg.Sync.MaxAttempts != 6 {
		t.Fatalf("overrides not applied: %+v", cfg.Sync)
	}
	if strings.HasSuffix(cfg.Library.BaseURL, "/") {
		t.Fatalf("base url not normalized: %s", cfg.Library.BaseURL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero concurrency", func(c *config.Config) { c.Sync.Concurrency = 0 }},
		{"zero max attempts", func(c *config.Config) { c.Sync.MaxAttempts = 0 }},
		{"cap below base", func(c *config.Config) { c.Sync.BackoffCapSeconds = 0 }},
		{"oversized page", func(c *config.Config) { c.Library.PageSize = 500 }},
		{"missing token url", func(c *config.Config) { c.OAuth.TokenURL = "" }},
		{"idle below scan", func(c *config.Config) { c.Workflow.IdleScanInterval = 1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("sample config should load: exists=%v err=%v", exists, err)
	}
}
