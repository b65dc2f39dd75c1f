package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir       string `toml:"state_dir"`
	DestinationDir string `toml:"destination_dir"`
	LogDir         string `toml:"log_dir"`
}

// Library contains configuration for the remote library API.
type Library struct {
	BaseURL        string  `toml:"base_url"`
	PageSize       int     `toml:"page_size"`
	RequestTimeout int     `toml:"request_timeout"`
	RequestsPerSec float64 `toml:"requests_per_second"`
}

// OAuth contains configuration for the token endpoint the engine refreshes
// against. The initial authorization-code exchange is owned by an external
// collaborator; the engine only consumes refresh tokens.
type OAuth struct {
	TokenURL             string `toml:"token_url"`
	ClientID             string `toml:"client_id"`
	ClientSecret         string `toml:"client_secret"`
	RefreshMarginMinutes int    `toml:"refresh_margin_minutes"`
	RefreshTimeout       int    `toml:"refresh_timeout"`
}

// Sync contains download scheduler and retry policy settings.
type Sync struct {
	Concurrency        int `toml:"concurrency"`
	MaxAttempts        int `toml:"max_attempts"`
	BackoffBaseSeconds int `toml:"backoff_base_seconds"`
	BackoffCapSeconds  int `toml:"backoff_cap_seconds"`
	AssetURLTTLMinutes int `toml:"asset_url_ttl_minutes"`
	DownloadTimeout    int `toml:"download_timeout"`
}

// Workflow contains daemon timing and intervals.
type Workflow struct {
	ScanInterval       int `toml:"scan_interval"`
	IdleScanInterval   int `toml:"idle_scan_interval"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Syncabull.
//
// Configuration sections by subsystem:
//   - Paths: state database, destination root, and log directories
//   - Library: remote library API endpoint, paging, and client-side pacing
//   - OAuth: token endpoint used for access token refresh
//   - Sync: worker pool size, retry policy, and asset URL lifetime
//   - Workflow: daemon polling intervals
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Library  Library  `toml:"library"`
	OAuth    OAuth    `toml:"oauth"`
	Sync     Sync     `toml:"sync"`
	Workflow Workflow `toml:"workflow"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/syncabull/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("syncabull.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// DestinationDir is created on a best-effort basis so the daemon can start
// when external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.DestinationDir) != "" {
		_ = os.MkdirAll(c.Paths.DestinationDir, 0o755)
	}
	return nil
}

// DatabasePath returns the item store location inside the state directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "syncabull.db")
}

// LockPath returns the daemon lock file location inside the state directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "syncabull.lock")
}

// RefreshMargin returns the minimum remaining access token TTL before a
// refresh is forced.
func (c *Config) RefreshMargin() time.Duration {
	return time.Duration(c.OAuth.RefreshMarginMinutes) * time.Minute
}

// AssetURLTTL returns how long a signed asset URL is trusted after fetch.
func (c *Config) AssetURLTTL() time.Duration {
	return time.Duration(c.Sync.AssetURLTTLMinutes) * time.Minute
}

// BackoffBase returns the retry policy base delay.
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Sync.BackoffBaseSeconds) * time.Second
}

// BackoffCap returns the retry policy delay ceiling.
func (c *Config) BackoffCap() time.Duration {
	return time.Duration(c.Sync.BackoffCapSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
