// Package auth maintains per-account access tokens, refreshing them through
// the OAuth token endpoint before expiry.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"syncabull/internal/config"
	"syncabull/internal/logging"
	"syncabull/internal/services"
	"syncabull/internal/store"
)

// Manager hands out valid access tokens. Concurrent requests for the same
// account share one refresh; the result is persisted before any caller sees
// it, so a crash never loses a rotated refresh token.
type Manager struct {
	cfg    *config.Config
	store  *store.Store
	group  singleflight.Group
	logger *slog.Logger

	now func() time.Time
}

// NewManager builds a token manager. logger may be nil.
func NewManager(cfg *config.Config, st *store.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:    cfg,
		store:  st,
		logger: logger.With(logging.FieldComponent, "auth"),
		now:    time.Now,
	}
}

// AccessToken returns a token valid for at least the configured refresh
// margin. Accounts flagged for reauthorization fail immediately with an
// authorization error; the operator must re-add the account.
func (m *Manager) AccessToken(ctx context.Context, accountID string) (string, error) {
	account, err := m.store.GetAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	if account == nil {
		return "", services.Wrap(services.ErrAuth, "auth", "access token", "unknown account "+accountID, nil)
	}
	if account.ReauthRequired {
		return "", services.Wrap(services.ErrAuth, "auth", "access token", accountID+" requires reauthorization", nil)
	}

	cred, err := m.store.GetCredential(ctx, accountID)
	if err != nil {
		return "", err
	}
	if cred == nil || cred.RefreshToken == "" {
		return "", services.Wrap(services.ErrAuth, "auth", "access token", "no credential for "+accountID, nil)
	}

	if cred.AccessToken != "" && cred.Expiry.After(m.now().Add(m.cfg.RefreshMargin())) {
		return cred.AccessToken, nil
	}

	token, err, _ := m.group.Do(accountID, func() (any, error) {
		return m.refresh(ctx, accountID, cred)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// Invalidate discards the stored access token after the API rejected it, so
// the next AccessToken call runs a refresh even though the local expiry
// still looked valid. Early revocation and clock skew both land here.
func (m *Manager) Invalidate(ctx context.Context, accountID string) error {
	m.logger.Info("access token rejected by the API, discarding it",
		logging.String(logging.FieldAccountID, accountID))
	return m.store.InvalidateAccessToken(ctx, accountID)
}

// refresh exchanges the refresh token for a fresh access token and persists
// the result. It runs detached from the triggering caller's cancellation so
// a shared refresh is not abandoned when one waiter gives up.
func (m *Manager) refresh(ctx context.Context, accountID string, cred *store.Credential) (string, error) {
	// Another waiter may have refreshed between the staleness check and
	// entering the flight.
	if latest, err := m.store.GetCredential(ctx, accountID); err == nil && latest != nil {
		if latest.AccessToken != "" && latest.Expiry.After(m.now().Add(m.cfg.RefreshMargin())) {
			return latest.AccessToken, nil
		}
		cred = latest
	}

	timeout := time.Duration(m.cfg.OAuth.RefreshTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	conf := &oauth2.Config{
		ClientID:     m.cfg.OAuth.ClientID,
		ClientSecret: m.cfg.OAuth.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: m.cfg.OAuth.TokenURL},
	}
	source := conf.TokenSource(refreshCtx, &oauth2.Token{RefreshToken: cred.RefreshToken})

	token, err := source.Token()
	if err != nil {
		return "", m.refreshError(refreshCtx, accountID, err)
	}

	rotated := ""
	if token.RefreshToken != "" && token.RefreshToken != cred.RefreshToken {
		rotated = token.RefreshToken
	}
	if err := m.store.PutAccessToken(refreshCtx, accountID, token.AccessToken, rotated, token.Expiry); err != nil {
		return "", err
	}

	m.logger.Info("access token refreshed",
		logging.String(logging.FieldAccountID, accountID),
		logging.Bool("refresh_token_rotated", rotated != ""))
	return token.AccessToken, nil
}

// refreshError separates rejected refresh tokens, which need the operator,
// from transient endpoint failures, which the next cycle retries.
func (m *Manager) refreshError(ctx context.Context, accountID string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		rejected := retrieveErr.ErrorCode == "invalid_grant"
		if !rejected && retrieveErr.Response != nil {
			status := retrieveErr.Response.StatusCode
			rejected = status == http.StatusBadRequest || status == http.StatusUnauthorized
		}
		if rejected {
			if markErr := m.store.SetReauthRequired(ctx, accountID, true); markErr != nil {
				m.logger.Error("failed to flag reauthorization",
					logging.String(logging.FieldAccountID, accountID),
					logging.Error(markErr))
			}
			m.logger.Warn("refresh token rejected, account needs reauthorization",
				logging.String(logging.FieldAccountID, accountID))
			return services.Wrap(services.ErrAuth, "auth", "refresh", accountID, err)
		}
	}
	return services.Wrap(services.ErrNetwork, "auth", "refresh", accountID, err)
}
