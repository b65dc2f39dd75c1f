// Package photos talks to the remote media library API: paged catalog
// enumeration, single-item refresh, and signed asset fetches.
package photos

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"syncabull/internal/config"
	"syncabull/internal/logging"
	"syncabull/internal/media"
	"syncabull/internal/services"
)

// TokenProvider supplies a valid access token for an account, refreshing it
// when needed. Invalidate discards a token the API rejected so the next
// AccessToken call refreshes instead of replaying it.
type TokenProvider interface {
	AccessToken(ctx context.Context, accountID string) (string, error)
	Invalidate(ctx context.Context, accountID string) error
}

// Page is one catalog page. An empty NextPageToken means enumeration is
// complete.
type Page struct {
	Items         []media.Item `json:"mediaItems"`
	NextPageToken string       `json:"nextPageToken"`
}

// Client is the library API client. API calls are paced by a shared rate
// limiter; asset fetches go straight to the CDN and are not paced.
type Client struct {
	baseURL  string
	pageSize int
	tokens   TokenProvider
	http     *http.Client
	assets   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// New builds a client from configuration. logger may be nil.
func New(cfg *config.Config, tokens TokenProvider, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	requestTimeout := time.Duration(cfg.Library.RequestTimeout) * time.Second
	downloadTimeout := time.Duration(cfg.Sync.DownloadTimeout) * time.Second

	var limiter *rate.Limiter
	if cfg.Library.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Library.RequestsPerSec), 1)
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.Library.BaseURL, "/"),
		pageSize: cfg.Library.PageSize,
		tokens:   tokens,
		http:     &http.Client{Timeout: requestTimeout},
		assets:   &http.Client{Timeout: downloadTimeout},
		limiter:  limiter,
		logger:   logger.With(logging.FieldComponent, "photos"),
	}
}

// ListPage fetches one catalog page. An empty pageToken requests the first
// page. Signed URLs on returned items are stamped with the fetch time so
// their lifetime can be tracked.
func (c *Client) ListPage(ctx context.Context, accountID, pageToken string) (*Page, error) {
	query := url.Values{}
	if c.pageSize > 0 {
		query.Set("pageSize", strconv.Itoa(c.pageSize))
	}
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}

	endpoint := c.baseURL + "/mediaItems"
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	body, err := c.apiGet(ctx, accountID, "list page", endpoint)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var page Page
	if err := json.NewDecoder(body).Decode(&page); err != nil {
		return nil, services.Wrap(services.ErrNetwork, "photos", "list page", "decode response", err)
	}

	now := time.Now()
	for i := range page.Items {
		page.Items[i].BaseURLObtained = now
	}
	c.logger.Debug("listed page",
		logging.String(logging.FieldAccountID, accountID),
		logging.Int("items", len(page.Items)),
		logging.Bool("more", page.NextPageToken != ""))
	return &page, nil
}

// GetItem re-fetches a single descriptor, typically to renew an expired
// signed URL.
func (c *Client) GetItem(ctx context.Context, accountID, itemID string) (*media.Item, error) {
	endpoint := c.baseURL + "/mediaItems/" + url.PathEscape(itemID)
	body, err := c.apiGet(ctx, accountID, "get item", endpoint)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var item media.Item
	if err := json.NewDecoder(body).Decode(&item); err != nil {
		return nil, services.Wrap(services.ErrNetwork, "photos", "get item", "decode response", err)
	}
	item.BaseURLObtained = time.Now()
	return &item, nil
}

// FetchAsset opens a streaming read of the item's bytes at original quality.
// The caller owns the returned body. Size is the declared content length, or
// -1 when the server did not declare one.
func (c *Client) FetchAsset(ctx context.Context, item *media.Item) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, DownloadURL(item), nil)
	if err != nil {
		return nil, 0, services.Wrap(services.ErrNetwork, "photos", "fetch asset", "build request", err)
	}

	resp, err := c.assets.Do(req)
	if err != nil {
		return nil, 0, services.Wrap(services.ErrNetwork, "photos", "fetch asset", item.ID, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, 0, statusError(resp, "fetch asset", item.ID)
	}
	return resp.Body, resp.ContentLength, nil
}

// DownloadURL appends the original-quality download parameter to the item's
// signed URL: "=dv" for video assets, "=d" otherwise.
func DownloadURL(item *media.Item) string {
	if item.IsVideo() {
		return item.BaseURL + "=dv"
	}
	return item.BaseURL + "=d"
}

// apiGet performs an authorized GET. A first 401 is treated as a stale
// access token: it is invalidated, refreshed, and the request replayed once.
// Only a 401 surviving that refresh surfaces as an authorization error.
func (c *Client) apiGet(ctx context.Context, accountID, op, endpoint string) (io.ReadCloser, error) {
	for replayed := false; ; replayed = true {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, services.Wrap(services.ErrNetwork, "photos", op, "rate limiter", err)
			}
		}

		token, err := c.tokens.AccessToken(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("access token for %s: %w", accountID, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, services.Wrap(services.ErrNetwork, "photos", op, "build request", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, services.Wrap(services.ErrNetwork, "photos", op, "request failed", err)
		}
		if resp.StatusCode == http.StatusUnauthorized && !replayed {
			resp.Body.Close()
			if invErr := c.tokens.Invalidate(ctx, accountID); invErr != nil {
				return nil, invErr
			}
			c.logger.Warn("stale access token rejected, replaying after refresh",
				logging.String(logging.FieldAccountID, accountID))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			defer resp.Body.Close()
			return nil, statusError(resp, op, endpoint)
		}
		return resp.Body, nil
	}
}

// statusError maps a non-200 response to the error taxonomy.
func statusError(resp *http.Response, op, subject string) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	detail := fmt.Sprintf("%s: status %d", subject, resp.StatusCode)
	if len(snippet) > 0 {
		detail += ": " + strings.TrimSpace(string(snippet))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrAuth, "photos", op, detail, nil)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return services.Wrap(services.ErrNotFound, "photos", op, detail, nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return services.Wrap(services.ErrRateLimited, "photos", op, detail,
			&services.RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))})
	default:
		return services.Wrap(services.ErrNetwork, "photos", op, detail, nil)
	}
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}
