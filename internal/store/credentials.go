package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"syncabull/internal/services"
)

// GetCredential fetches the token pair for an account. A missing row
// returns (nil, nil).
func (s *Store) GetCredential(ctx context.Context, accountID string) (*Credential, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT account_id, access_token, refresh_token, token_expiry, updated_at
        FROM credentials WHERE account_id = ?`, accountID)

	var (
		cred       Credential
		expiryRaw  sql.NullString
		updatedRaw sql.NullString
	)
	err := row.Scan(&cred.AccountID, &cred.AccessToken, &cred.RefreshToken, &expiryRaw, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrDatabase, "store", "get credential", accountID, err)
	}
	if expiry, parseErr := parseTimeString(expiryRaw.String); parseErr == nil {
		cred.Expiry = expiry
	}
	if updated, parseErr := parseTimeString(updatedRaw.String); parseErr == nil {
		cred.UpdatedAt = updated
	}
	return &cred, nil
}

// InvalidateAccessToken discards the stored access token so the next token
// request is forced through a refresh. The refresh token is untouched.
func (s *Store) InvalidateAccessToken(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx, `
        UPDATE credentials
        SET access_token = '', token_expiry = NULL, updated_at = ?
        WHERE account_id = ?`,
		timestamp(time.Now()), accountID)
	if err != nil {
		return services.Wrap(services.ErrDatabase, "store", "invalidate access token", accountID, err)
	}
	return nil
}

// PutAccessToken atomically swaps in a freshly minted access token. The
// refresh token is replaced too when the authorization server rotated it.
func (s *Store) PutAccessToken(ctx context.Context, accountID, accessToken, refreshToken string, expiry time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return services.Wrap(services.ErrDatabase, "store", "put access token", "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := timestamp(time.Now())
	if refreshToken != "" {
		_, err = tx.ExecContext(ctx, `
            UPDATE credentials
            SET access_token = ?, refresh_token = ?, token_expiry = ?, updated_at = ?
            WHERE account_id = ?`,
			accessToken, refreshToken, nullableTime(&expiry), now, accountID)
	} else {
		_, err = tx.ExecContext(ctx, `
            UPDATE credentials
            SET access_token = ?, token_expiry = ?, updated_at = ?
            WHERE account_id = ?`,
			accessToken, nullableTime(&expiry), now, accountID)
	}
	if err != nil {
		return services.Wrap(services.ErrDatabase, "store", "put access token", accountID, err)
	}

	if err := tx.Commit(); err != nil {
		return services.Wrap(services.ErrDatabase, "store", "put access token", "commit", err)
	}
	return nil
}
