package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"syncabull/internal/config"
	"syncabull/internal/services"
)

// Engine setting keys recognized at startup.
const (
	SettingDestinationDir      = "destination_dir"
	SettingDownloadConcurrency = "download_concurrency"
)

// ApplyOverrides copies recognized engine settings over the loaded config.
// A malformed value is skipped so a stale row cannot keep the engine from
// starting.
func (s *Store) ApplyOverrides(ctx context.Context, cfg *config.Config) error {
	if value, err := s.GetSetting(ctx, SettingDestinationDir); err != nil {
		return err
	} else if trimmed := strings.TrimSpace(value); trimmed != "" {
		cfg.Paths.DestinationDir = trimmed
	}

	if value, err := s.GetSetting(ctx, SettingDownloadConcurrency); err != nil {
		return err
	} else if trimmed := strings.TrimSpace(value); trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			cfg.Sync.Concurrency = parsed
		}
	}

	return nil
}

// GetSetting reads an engine setting. Missing keys return ("", nil).
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM engine_settings WHERE key = ?`, key)
	var value string
	err := row.Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", services.Wrap(services.ErrDatabase, "store", "get setting", key, err)
	}
	return value, nil
}

// SetSetting writes an engine setting, replacing any previous value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO engine_settings (key, value) VALUES (?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return services.Wrap(services.ErrDatabase, "store", "set setting", key, err)
	}
	return nil
}
