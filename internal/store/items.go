package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"syncabull/internal/fileutil"
	"syncabull/internal/media"
	"syncabull/internal/services"
)

const itemColumns = "id, account_id, description, product_url, base_url, base_url_fetched_at, mime_type, filename, metadata_json, contributor_json, download_attempts, download_success, terminal, last_attempt_at, last_error, final_path, bytes_downloaded, created_at, updated_at"

// UpsertItems durably records a page of descriptors in one transaction.
// Upserts are idempotent by remote identifier: catalog fields are replaced,
// download-outcome fields (attempts, success, terminal) are never touched.
func (s *Store) UpsertItems(ctx context.Context, accountID string, items []media.Item) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return services.Wrap(services.ErrDatabase, "store", "upsert items", "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := timestamp(time.Now())
	for i := range items {
		item := &items[i]
		if err := item.Validate(); err != nil {
			return services.Wrap(services.ErrDatabase, "store", "upsert items", "invalid descriptor", err)
		}

		metadataJSON, contributorJSON, err := encodePayloads(item)
		if err != nil {
			return services.Wrap(services.ErrDatabase, "store", "upsert items", "encode metadata", err)
		}

		fetchedAt := item.BaseURLObtained
		if fetchedAt.IsZero() {
			fetchedAt = time.Now()
		}

		// The sanitized local name is stored alongside the raw one so
		// collision checks compare what actually lands on disk.
		localName := fileutil.SanitizeFilename(item.Filename)
		if localName == "" {
			localName = fileutil.SanitizeFilename(item.ID)
		}

		_, err = tx.ExecContext(ctx, `
            INSERT INTO media_items (
                id, account_id, description, product_url, base_url, base_url_fetched_at,
                mime_type, filename, local_filename, metadata_json, contributor_json,
                created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(id) DO UPDATE SET
                account_id = excluded.account_id,
                description = excluded.description,
                product_url = excluded.product_url,
                base_url = excluded.base_url,
                base_url_fetched_at = excluded.base_url_fetched_at,
                mime_type = excluded.mime_type,
                filename = excluded.filename,
                local_filename = excluded.local_filename,
                metadata_json = excluded.metadata_json,
                contributor_json = excluded.contributor_json,
                updated_at = excluded.updated_at`,
			item.ID,
			accountID,
			nullableString(item.Description),
			item.ProductURL,
			item.BaseURL,
			timestamp(fetchedAt),
			nullableString(item.MimeType),
			item.Filename,
			localName,
			nullableString(metadataJSON),
			nullableString(contributorJSON),
			now,
			now,
		)
		if err != nil {
			return services.Wrap(services.ErrDatabase, "store", "upsert items", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return services.Wrap(services.ErrDatabase, "store", "upsert items", "commit", err)
	}
	return nil
}

// GetItem fetches an item with its sync record by remote identifier.
// A missing row returns (nil, nil).
func (s *Store) GetItem(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM media_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrDatabase, "store", "get item", id, err)
	}
	return item, nil
}

// NextEligible returns up to limit items awaiting download: not yet
// successful and not terminal, ordered by ascending attempt count then by
// insertion order so stuck items never starve fresh ones. The query is
// restartable; it keeps no cursor state of its own.
func (s *Store) NextEligible(ctx context.Context, limit int) ([]*Item, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT `+itemColumns+` FROM media_items
        WHERE download_success = 0 AND terminal = 0
        ORDER BY download_attempts ASC, rowid ASC
        LIMIT ?`, limit)
	if err != nil {
		return nil, services.Wrap(services.ErrDatabase, "store", "next eligible", "query", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, services.Wrap(services.ErrDatabase, "store", "next eligible", "scan", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// RecordOutcome transactionally increments the attempt count and applies the
// download result. Terminal is set on a fatal classification, or when a
// failed attempt exhausts the configured maximum.
func (s *Store) RecordOutcome(ctx context.Context, id string, outcome Outcome) (*Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrDatabase, "store", "record outcome", "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var attempts int
	row := tx.QueryRowContext(ctx, `SELECT download_attempts FROM media_items WHERE id = ?`, id)
	if err := row.Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.Wrap(services.ErrDatabase, "store", "record outcome", "unknown item "+id, err)
		}
		return nil, services.Wrap(services.ErrDatabase, "store", "record outcome", "read attempts", err)
	}

	attempts++
	terminal := outcome.Fatal
	if !outcome.Success && outcome.MaxAttempts > 0 && attempts >= outcome.MaxAttempts {
		terminal = true
	}
	if outcome.Success {
		terminal = false
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
        UPDATE media_items
        SET download_attempts = ?, download_success = ?, terminal = ?,
            last_attempt_at = ?, last_error = ?, final_path = ?,
            bytes_downloaded = ?, updated_at = ?
        WHERE id = ?`,
		attempts,
		boolToInt(outcome.Success),
		boolToInt(terminal),
		timestamp(now),
		nullableString(outcome.Error),
		nullableString(outcome.FinalPath),
		outcome.Bytes,
		timestamp(now),
		id,
	)
	if err != nil {
		return nil, services.Wrap(services.ErrDatabase, "store", "record outcome", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, services.Wrap(services.ErrDatabase, "store", "record outcome", "commit", err)
	}
	return s.GetItem(ctx, id)
}

// RefreshAssetURL swaps in a newly fetched signed URL for an item.
func (s *Store) RefreshAssetURL(ctx context.Context, id, baseURL string, fetchedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
        UPDATE media_items
        SET base_url = ?, base_url_fetched_at = ?, updated_at = ?
        WHERE id = ?`,
		baseURL, timestamp(fetchedAt), timestamp(time.Now()), id)
	if err != nil {
		return services.Wrap(services.ErrDatabase, "store", "refresh asset url", id, err)
	}
	return nil
}

// ResetTerminal returns terminal items to the eligible pool, clearing their
// attempt history. With no ids, every terminal item is reset. This is the
// operator intervention path; the engine never does it on its own.
func (s *Store) ResetTerminal(ctx context.Context, ids ...string) (int64, error) {
	now := timestamp(time.Now())
	if len(ids) == 0 {
		res, err := s.db.ExecContext(ctx, `
            UPDATE media_items
            SET terminal = 0, download_attempts = 0, last_error = NULL, updated_at = ?
            WHERE terminal = 1 AND download_success = 0`, now)
		if err != nil {
			return 0, services.Wrap(services.ErrDatabase, "store", "reset terminal", "all", err)
		}
		return res.RowsAffected()
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, now)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE media_items
        SET terminal = 0, download_attempts = 0, last_error = NULL, updated_at = ?
        WHERE terminal = 1 AND download_success = 0 AND id IN (` + makePlaceholders(len(ids)) + `)`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, services.Wrap(services.ErrDatabase, "store", "reset terminal", "selected", err)
	}
	return res.RowsAffected()
}

// FilenameShared reports whether any other item claims the same sanitized
// target filename. Comparisons run over the local name so distinct remote
// names that collapse to one on-disk name are still caught.
func (s *Store) FilenameShared(ctx context.Context, localName, excludeID string) (bool, error) {
	var count int
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM media_items WHERE local_filename = ? AND id != ?`, localName, excludeID)
	if err := row.Scan(&count); err != nil {
		return false, services.Wrap(services.ErrDatabase, "store", "filename shared", localName, err)
	}
	return count > 0, nil
}

// ItemsByAccount lists items for one account ordered by insertion, newest
// capped at limit (0 means no cap). Used by the CLI.
func (s *Store) ItemsByAccount(ctx context.Context, accountID string, limit int) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM media_items WHERE account_id = ? ORDER BY rowid`
	args := []any{accountID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, services.Wrap(services.ErrDatabase, "store", "items by account", accountID, err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, services.Wrap(services.ErrDatabase, "store", "items by account", "scan", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Stats aggregates per-account item counts for status output.
func (s *Store) Stats(ctx context.Context) ([]AccountStats, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT account_id,
               COUNT(1),
               SUM(CASE WHEN download_success = 0 AND terminal = 0 THEN 1 ELSE 0 END),
               SUM(CASE WHEN download_success = 1 THEN 1 ELSE 0 END),
               SUM(CASE WHEN terminal = 1 AND download_success = 0 THEN 1 ELSE 0 END),
               SUM(bytes_downloaded)
        FROM media_items GROUP BY account_id ORDER BY account_id`)
	if err != nil {
		return nil, services.Wrap(services.ErrDatabase, "store", "stats", "query", err)
	}
	defer rows.Close()

	var stats []AccountStats
	for rows.Next() {
		var st AccountStats
		if err := rows.Scan(&st.AccountID, &st.Total, &st.Pending, &st.Downloaded, &st.Terminal, &st.Bytes); err != nil {
			return nil, services.Wrap(services.ErrDatabase, "store", "stats", "scan", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func encodePayloads(item *media.Item) (metadataJSON, contributorJSON string, err error) {
	if item.Metadata != nil {
		data, err := json.Marshal(item.Metadata)
		if err != nil {
			return "", "", fmt.Errorf("marshal metadata: %w", err)
		}
		metadataJSON = string(data)
	}
	if item.Contributor != nil {
		data, err := json.Marshal(item.Contributor)
		if err != nil {
			return "", "", fmt.Errorf("marshal contributor: %w", err)
		}
		contributorJSON = string(data)
	}
	return metadataJSON, contributorJSON, nil
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id              string
		accountID       string
		description     sql.NullString
		productURL      string
		baseURL         string
		baseURLFetched  sql.NullString
		mimeType        sql.NullString
		filename        string
		metadataJSON    sql.NullString
		contributorJSON sql.NullString
		attempts        int
		success         sql.NullInt64
		terminal        sql.NullInt64
		lastAttemptRaw  sql.NullString
		lastError       sql.NullString
		finalPath       sql.NullString
		bytes           sql.NullInt64
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&accountID,
		&description,
		&productURL,
		&baseURL,
		&baseURLFetched,
		&mimeType,
		&filename,
		&metadataJSON,
		&contributorJSON,
		&attempts,
		&success,
		&terminal,
		&lastAttemptRaw,
		&lastError,
		&finalPath,
		&bytes,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		Media: media.Item{
			ID:          id,
			Description: description.String,
			ProductURL:  productURL,
			BaseURL:     baseURL,
			MimeType:    mimeType.String,
			Filename:    filename,
		},
		AccountID:       accountID,
		Attempts:        attempts,
		Success:         success.Valid && success.Int64 != 0,
		Terminal:        terminal.Valid && terminal.Int64 != 0,
		LastError:       lastError.String,
		FinalPath:       finalPath.String,
		BytesDownloaded: bytes.Int64,
	}

	if metadataJSON.Valid && metadataJSON.String != "" {
		meta := &media.Metadata{}
		if err := json.Unmarshal([]byte(metadataJSON.String), meta); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", id, err)
		}
		item.Media.Metadata = meta
	}
	if contributorJSON.Valid && contributorJSON.String != "" {
		contributor := &media.ContributorInfo{}
		if err := json.Unmarshal([]byte(contributorJSON.String), contributor); err != nil {
			return nil, fmt.Errorf("decode contributor for %s: %w", id, err)
		}
		item.Media.Contributor = contributor
	}

	if fetched, err := parseTimeString(baseURLFetched.String); err == nil {
		item.Media.BaseURLObtained = fetched
	}
	if last, err := parseTimeString(lastAttemptRaw.String); err == nil {
		item.LastAttemptAt = &last
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
