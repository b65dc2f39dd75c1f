package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"syncabull/internal/services"
)

// AddAccount registers an account together with its initial credential in a
// single transaction. Re-adding an existing account replaces the stored
// refresh token and clears any reauthorization flag.
func (s *Store) AddAccount(ctx context.Context, account Account, cred Credential) error {
	if account.ID == "" {
		return services.Wrap(services.ErrDatabase, "store", "add account", "empty account id", nil)
	}
	if cred.RefreshToken == "" {
		return services.Wrap(services.ErrDatabase, "store", "add account", "empty refresh token", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return services.Wrap(services.ErrDatabase, "store", "add account", "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := timestamp(time.Now())
	_, err = tx.ExecContext(ctx, `
        INSERT INTO accounts (id, display_name, reauth_required, initial_scan_complete, created_at, updated_at)
        VALUES (?, ?, 0, 0, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            display_name = excluded.display_name,
            reauth_required = 0,
            updated_at = excluded.updated_at`,
		account.ID, nullableString(account.DisplayName), now, now)
	if err != nil {
		return services.Wrap(services.ErrDatabase, "store", "add account", account.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO credentials (account_id, access_token, refresh_token, token_expiry, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(account_id) DO UPDATE SET
            access_token = excluded.access_token,
            refresh_token = excluded.refresh_token,
            token_expiry = excluded.token_expiry,
            updated_at = excluded.updated_at`,
		account.ID, cred.AccessToken, cred.RefreshToken, nullableTime(&cred.Expiry), now)
	if err != nil {
		return services.Wrap(services.ErrDatabase, "store", "add account", "credential for "+account.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return services.Wrap(services.ErrDatabase, "store", "add account", "commit", err)
	}
	return nil
}

// GetAccount fetches one account. A missing row returns (nil, nil).
func (s *Store) GetAccount(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, display_name, reauth_required, initial_scan_complete, created_at, updated_at
        FROM accounts WHERE id = ?`, id)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrDatabase, "store", "get account", id, err)
	}
	return account, nil
}

// ListAccounts returns all registered accounts ordered by identifier.
func (s *Store) ListAccounts(ctx context.Context) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, display_name, reauth_required, initial_scan_complete, created_at, updated_at
        FROM accounts ORDER BY id`)
	if err != nil {
		return nil, services.Wrap(services.ErrDatabase, "store", "list accounts", "query", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, services.Wrap(services.ErrDatabase, "store", "list accounts", "scan", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// RemoveAccount deletes an account. Credentials, cursors, and item records
// follow through foreign key cascade. Downloaded files stay on disk.
func (s *Store) RemoveAccount(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return false, services.Wrap(services.ErrDatabase, "store", "remove account", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, services.Wrap(services.ErrDatabase, "store", "remove account", "rows affected", err)
	}
	return affected > 0, nil
}

// SetReauthRequired flags or clears the account's need for operator
// reauthorization. Set when the refresh token is rejected outright.
func (s *Store) SetReauthRequired(ctx context.Context, id string, required bool) error {
	_, err := s.db.ExecContext(ctx, `
        UPDATE accounts SET reauth_required = ?, updated_at = ? WHERE id = ?`,
		boolToInt(required), timestamp(time.Now()), id)
	if err != nil {
		return services.Wrap(services.ErrDatabase, "store", "set reauth required", id, err)
	}
	return nil
}

// SetInitialScanComplete marks the first full enumeration pass finished so
// later passes can run on the relaxed idle interval.
func (s *Store) SetInitialScanComplete(ctx context.Context, id string, complete bool) error {
	_, err := s.db.ExecContext(ctx, `
        UPDATE accounts SET initial_scan_complete = ?, updated_at = ? WHERE id = ?`,
		boolToInt(complete), timestamp(time.Now()), id)
	if err != nil {
		return services.Wrap(services.ErrDatabase, "store", "set initial scan complete", id, err)
	}
	return nil
}

func scanAccount(scanner interface{ Scan(dest ...any) error }) (*Account, error) {
	var (
		account    Account
		name       sql.NullString
		reauth     sql.NullInt64
		scanDone   sql.NullInt64
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(&account.ID, &name, &reauth, &scanDone, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	account.DisplayName = name.String
	account.ReauthRequired = reauth.Valid && reauth.Int64 != 0
	account.InitialScanComplete = scanDone.Valid && scanDone.Int64 != 0
	if created, err := parseTimeString(createdRaw.String); err == nil {
		account.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		account.UpdatedAt = updated
	}
	return &account, nil
}
