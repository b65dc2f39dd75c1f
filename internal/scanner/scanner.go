// Package scanner walks the remote catalog page by page and records every
// discovered item durably before advancing its cursor.
package scanner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"syncabull/internal/config"
	"syncabull/internal/logging"
	"syncabull/internal/retry"
	"syncabull/internal/services"
	"syncabull/internal/services/photos"
	"syncabull/internal/store"
)

// Library is the slice of the catalog client the scanner needs.
type Library interface {
	ListPage(ctx context.Context, accountID, pageToken string) (*photos.Page, error)
}

// Scanner enumerates one account at a time. Page items are upserted before
// the cursor moves, so a crash replays the in-flight page instead of
// skipping it. Replays are absorbed by idempotent upserts.
type Scanner struct {
	cfg     *config.Config
	store   *store.Store
	library Library
	logger  *slog.Logger
	policy  retry.Policy
}

// New builds a scanner. logger may be nil.
func New(cfg *config.Config, st *store.Store, library Library, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scanner{
		cfg:     cfg,
		store:   st,
		library: library,
		logger:  logger.With(logging.FieldComponent, "scanner"),
		policy:  retry.New(cfg),
	}
}

// SyncAccount runs one enumeration pass, resuming from the persisted cursor.
// It returns the number of items recorded. On error the cursor stays at the
// failed page and the next pass resumes there.
func (s *Scanner) SyncAccount(ctx context.Context, accountID string) (int, error) {
	token := ""
	if cursor, err := s.store.GetCursor(ctx, accountID); err != nil {
		return 0, err
	} else if cursor != nil {
		token = cursor.NextToken
	}

	logger := s.logger.With(logging.String(logging.FieldAccountID, accountID))
	if token != "" {
		logger.Info("resuming enumeration from persisted cursor")
	}

	recorded := 0
	for {
		if err := ctx.Err(); err != nil {
			return recorded, err
		}

		page, err := s.fetchPage(ctx, accountID, token)
		if err != nil {
			return recorded, err
		}

		if len(page.Items) > 0 {
			if err := s.store.UpsertItems(ctx, accountID, page.Items); err != nil {
				return recorded, err
			}
			recorded += len(page.Items)
		}

		if page.NextPageToken == "" {
			if err := s.store.ClearCursor(ctx, accountID); err != nil {
				return recorded, err
			}
			if err := s.store.SetInitialScanComplete(ctx, accountID, true); err != nil {
				return recorded, err
			}
			logger.Info("enumeration pass complete", logging.Int("items", recorded))
			return recorded, nil
		}

		if err := s.store.SetCursor(ctx, accountID, page.NextPageToken, token); err != nil {
			return recorded, err
		}
		token = page.NextPageToken
	}
}

// fetchPage lists one catalog page, retrying transient failures in place so
// a brief network blip does not abort the whole pass. Auth failures and
// fatal errors propagate immediately.
func (s *Scanner) fetchPage(ctx context.Context, accountID, token string) (*photos.Page, error) {
	for attempt := 1; ; attempt++ {
		page, err := s.library.ListPage(ctx, accountID, token)
		if err == nil {
			return page, nil
		}
		if errors.Is(err, services.ErrAuth) ||
			s.policy.Classify(err) != retry.Retryable ||
			s.policy.Exhausted(attempt) {
			return nil, err
		}

		delay := s.policy.Delay(attempt, err)
		s.logger.Warn("page fetch failed, retrying",
			logging.String(logging.FieldAccountID, accountID),
			logging.Error(err),
			logging.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// SyncAll runs one pass per registered account, skipping accounts flagged
// for reauthorization. The first error stops the sweep.
func (s *Scanner) SyncAll(ctx context.Context) (int, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, account := range accounts {
		if account.ReauthRequired {
			s.logger.Warn("skipping account pending reauthorization",
				logging.String(logging.FieldAccountID, account.ID))
			continue
		}
		recorded, err := s.SyncAccount(ctx, account.ID)
		total += recorded
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
