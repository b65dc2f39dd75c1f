package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"syncabull/internal/services"
)

// GetCursor fetches the persisted pagination position for an account. A
// missing row returns (nil, nil), which means enumeration starts from the
// first page.
func (s *Store) GetCursor(ctx context.Context, accountID string) (*Cursor, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT account_id, next_token, prev_token, updated_at
        FROM sync_cursors WHERE account_id = ?`, accountID)

	var (
		cursor     Cursor
		updatedRaw sql.NullString
	)
	err := row.Scan(&cursor.AccountID, &cursor.NextToken, &cursor.PrevToken, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrDatabase, "store", "get cursor", accountID, err)
	}
	if updated, parseErr := parseTimeString(updatedRaw.String); parseErr == nil {
		cursor.UpdatedAt = updated
	}
	return &cursor, nil
}

// SetCursor records the pagination position. Callers persist the page's
// items first, so a crash between the two replays the page rather than
// skipping it.
func (s *Store) SetCursor(ctx context.Context, accountID, nextToken, prevToken string) error {
	now := timestamp(time.Now())
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO sync_cursors (account_id, next_token, prev_token, updated_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(account_id) DO UPDATE SET
            next_token = excluded.next_token,
            prev_token = excluded.prev_token,
            updated_at = excluded.updated_at`,
		accountID, nextToken, prevToken, now)
	if err != nil {
		return services.Wrap(services.ErrDatabase, "store", "set cursor", accountID, err)
	}
	return nil
}

// ClearCursor drops the persisted position so the next pass starts over.
func (s *Store) ClearCursor(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_cursors WHERE account_id = ?`, accountID)
	if err != nil {
		return services.Wrap(services.ErrDatabase, "store", "clear cursor", accountID, err)
	}
	return nil
}
