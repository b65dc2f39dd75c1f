package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLibrary(); err != nil {
		return err
	}
	if err := c.validateOAuth(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	return c.validateWorkflow()
}

func (c *Config) validatePaths() error {
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	if c.Paths.DestinationDir == "" {
		return errors.New("paths.destination_dir must be set")
	}
	return nil
}

func (c *Config) validateLibrary() error {
	if c.Library.BaseURL == "" {
		return errors.New("library.base_url must be set")
	}
	if c.Library.PageSize < 1 || c.Library.PageSize > 100 {
		return fmt.Errorf("library.page_size must be between 1 and 100, got %d", c.Library.PageSize)
	}
	if c.Library.RequestTimeout <= 0 {
		return errors.New("library.request_timeout must be positive")
	}
	if c.Library.RequestsPerSec <= 0 {
		return errors.New("library.requests_per_second must be positive")
	}
	return nil
}

func (c *Config) validateOAuth() error {
	if c.OAuth.TokenURL == "" {
		return errors.New("oauth.token_url must be set")
	}
	if c.OAuth.RefreshMarginMinutes <= 0 {
		return errors.New("oauth.refresh_margin_minutes must be positive")
	}
	if c.OAuth.RefreshTimeout <= 0 {
		return errors.New("oauth.refresh_timeout must be positive")
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.Concurrency < 1 {
		return errors.New("sync.concurrency must be at least 1")
	}
	if c.Sync.MaxAttempts < 1 {
		return errors.New("sync.max_attempts must be at least 1")
	}
	if c.Sync.BackoffBaseSeconds < 1 {
		return errors.New("sync.backoff_base_seconds must be at least 1")
	}
	if c.Sync.BackoffCapSeconds < c.Sync.BackoffBaseSeconds {
		return errors.New("sync.backoff_cap_seconds must be >= sync.backoff_base_seconds")
	}
	if c.Sync.AssetURLTTLMinutes < 1 {
		return errors.New("sync.asset_url_ttl_minutes must be at least 1")
	}
	if c.Sync.DownloadTimeout <= 0 {
		return errors.New("sync.download_timeout must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.ScanInterval <= 0 {
		return errors.New("workflow.scan_interval must be positive")
	}
	if c.Workflow.IdleScanInterval < c.Workflow.ScanInterval {
		return errors.New("workflow.idle_scan_interval must be >= workflow.scan_interval")
	}
	if c.Workflow.QueuePollInterval <= 0 {
		return errors.New("workflow.queue_poll_interval must be positive")
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		return errors.New("workflow.error_retry_interval must be positive")
	}
	return nil
}
