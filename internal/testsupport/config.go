package testsupport

import (
	"path/filepath"
	"testing"

	"syncabull/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.DestinationDir = filepath.Join(base, "library")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.OAuth.ClientID = "test-client"
	cfg.OAuth.ClientSecret = "test-secret"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithLibraryBaseURL points the catalog client at a test server.
func WithLibraryBaseURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Library.BaseURL = url
	}
}

// WithTokenURL points the token refresh endpoint at a test server.
func WithTokenURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.OAuth.TokenURL = url
	}
}

// WithMaxAttempts overrides the download attempt budget.
func WithMaxAttempts(attempts int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Sync.MaxAttempts = attempts
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
