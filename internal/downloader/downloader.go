// Package downloader drains the eligible item pool: each worker streams an
// asset to a temp file, verifies it, publishes it atomically, and records
// exactly one outcome per attempt.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"syncabull/internal/config"
	"syncabull/internal/fileutil"
	"syncabull/internal/logging"
	"syncabull/internal/media"
	"syncabull/internal/retry"
	"syncabull/internal/services"
	"syncabull/internal/store"
)

// Catalog is the slice of the library client the downloader needs: signed
// URL renewal and asset streaming.
type Catalog interface {
	GetItem(ctx context.Context, accountID, itemID string) (*media.Item, error)
	FetchAsset(ctx context.Context, item *media.Item) (io.ReadCloser, int64, error)
}

// Downloader schedules download attempts over a bounded worker pool. An item
// is never handed to two workers at once, and failed items wait out their
// backoff before re-dispatch.
type Downloader struct {
	cfg     *config.Config
	store   *store.Store
	catalog Catalog
	policy  retry.Policy
	logger  *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
	notUntil map[string]time.Time

	now func() time.Time
}

// New builds a downloader. logger may be nil.
func New(cfg *config.Config, st *store.Store, catalog Catalog, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Downloader{
		cfg:      cfg,
		store:    st,
		catalog:  catalog,
		policy:   retry.New(cfg),
		logger:   logger.With(logging.FieldComponent, "downloader"),
		inFlight: make(map[string]struct{}),
		notUntil: make(map[string]time.Time),
		now:      time.Now,
	}
}

// RunCycle dispatches one batch of eligible items across the worker pool and
// waits for it to drain. It returns the number of attempts made. Items still
// inside their backoff window are left for a later cycle.
func (d *Downloader) RunCycle(ctx context.Context) (int, error) {
	concurrency := d.cfg.Sync.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	candidates, err := d.store.NextEligible(ctx, concurrency*4)
	if err != nil {
		return 0, err
	}

	batch := d.claim(candidates)
	if len(batch) == 0 {
		return 0, nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)
	for _, item := range batch {
		item := item
		group.Go(func() error {
			defer d.release(item.Media.ID)
			d.downloadOne(groupCtx, item)
			return nil
		})
	}
	_ = group.Wait()
	return len(batch), ctx.Err()
}

// Backlog reports whether eligible work remains, ignoring backoff windows.
func (d *Downloader) Backlog(ctx context.Context) (bool, error) {
	items, err := d.store.NextEligible(ctx, 1)
	if err != nil {
		return false, err
	}
	return len(items) > 0, nil
}

// claim filters out items already in flight or still backing off and marks
// the rest as claimed.
func (d *Downloader) claim(candidates []*store.Item) []*store.Item {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	batch := make([]*store.Item, 0, len(candidates))
	for _, item := range candidates {
		id := item.Media.ID
		if _, busy := d.inFlight[id]; busy {
			continue
		}
		if until, waiting := d.notUntil[id]; waiting && now.Before(until) {
			continue
		}
		d.inFlight[id] = struct{}{}
		batch = append(batch, item)
	}
	return batch
}

func (d *Downloader) release(id string) {
	d.mu.Lock()
	delete(d.inFlight, id)
	d.mu.Unlock()
}

// downloadOne runs a single attempt end to end. Every failure path records
// at most one outcome; cancellation records none so shutdown does not burn
// the attempt budget.
func (d *Downloader) downloadOne(ctx context.Context, item *store.Item) {
	logger := d.logger.With(
		logging.String(logging.FieldAccountID, item.AccountID),
		logging.String(logging.FieldItemID, item.Media.ID))

	finalPath, bytes, err := d.attempt(ctx, item, logger)
	if err == nil {
		// Persistence runs detached so a shutdown right after the rename
		// still records the success.
		if _, recErr := d.store.RecordOutcome(context.WithoutCancel(ctx), item.Media.ID, store.Outcome{
			Success:     true,
			MaxAttempts: d.policy.MaxAttempts,
			FinalPath:   finalPath,
			Bytes:       bytes,
		}); recErr != nil {
			logger.Error("failed to record success", logging.Error(recErr))
			return
		}
		d.clearDelay(item.Media.ID)
		logger.Info("download complete",
			logging.String("path", finalPath),
			logging.Int64("bytes", bytes))
		return
	}

	switch d.policy.Classify(err) {
	case retry.Canceled:
		logger.Debug("attempt interrupted by shutdown")
		return
	case retry.Fatal:
		updated, recErr := d.store.RecordOutcome(context.WithoutCancel(ctx), item.Media.ID, store.Outcome{
			Fatal:       true,
			MaxAttempts: d.policy.MaxAttempts,
			Error:       err.Error(),
		})
		if recErr != nil {
			logger.Error("failed to record fatal outcome", logging.Error(recErr))
			return
		}
		d.clearDelay(item.Media.ID)
		logger.Warn("download failed permanently",
			logging.Int(logging.FieldAttempt, updated.Attempts),
			logging.Error(err))
		return
	}

	if errors.Is(err, services.ErrAuth) {
		// The account is paused for reauthorization; the attempt budget
		// stays untouched until tokens work again.
		d.setDelay(item.Media.ID, d.policy.Delay(item.Attempts+1, err))
		logger.Warn("download blocked by authorization", logging.Error(err))
		return
	}

	updated, recErr := d.store.RecordOutcome(context.WithoutCancel(ctx), item.Media.ID, store.Outcome{
		MaxAttempts: d.policy.MaxAttempts,
		Error:       err.Error(),
	})
	if recErr != nil {
		logger.Error("failed to record failure", logging.Error(recErr))
		return
	}
	if updated.Terminal {
		d.clearDelay(item.Media.ID)
		logger.Warn("attempt budget exhausted",
			logging.Int(logging.FieldAttempt, updated.Attempts),
			logging.Error(err))
		return
	}

	delay := d.policy.Delay(updated.Attempts, err)
	d.setDelay(item.Media.ID, delay)
	logger.Info("download failed, will retry",
		logging.Int(logging.FieldAttempt, updated.Attempts),
		logging.Duration("backoff", delay),
		logging.Error(err))
}

// attempt fetches the asset into a temp file and publishes it. It returns
// the final path and byte count on success.
func (d *Downloader) attempt(ctx context.Context, item *store.Item, logger *slog.Logger) (string, int64, error) {
	if err := d.renewAssetURL(ctx, item, logger); err != nil {
		return "", 0, err
	}

	finalPath, err := d.targetPath(ctx, item)
	if err != nil {
		return "", 0, err
	}

	tempPath := filepath.Join(d.cfg.Paths.DestinationDir, ".syncabull-"+uuid.NewString()+".part")

	body, declaredSize, err := d.catalog.FetchAsset(ctx, &item.Media)
	if err != nil {
		return "", 0, err
	}
	defer body.Close()

	// A failure while streaming can come from either side: the remote read
	// is a transient network fault, the local write is a fatal disk fault.
	src := &sourceTracker{r: body}
	written, err := fileutil.WriteStream(tempPath, src)
	if err != nil {
		if src.err != nil {
			return "", 0, services.Wrap(services.ErrNetwork, "downloader", "stream asset", item.Media.ID, err)
		}
		return "", 0, services.Wrap(services.ErrStorage, "downloader", "write asset", item.Media.ID, err)
	}
	if declaredSize >= 0 && written != declaredSize {
		fileutil.RemoveQuiet(tempPath)
		return "", 0, services.Wrap(services.ErrStorage, "downloader", "verify asset",
			fmt.Sprintf("%s: got %d bytes, expected %d", item.Media.ID, written, declaredSize), nil)
	}

	if err := fileutil.PublishAtomic(tempPath, finalPath); err != nil {
		fileutil.RemoveQuiet(tempPath)
		return "", 0, services.Wrap(services.ErrStorage, "downloader", "publish asset", item.Media.ID, err)
	}
	return finalPath, written, nil
}

// renewAssetURL re-fetches the descriptor when the signed URL has outlived
// its trusted window, persisting the renewal so a later attempt reuses it.
func (d *Downloader) renewAssetURL(ctx context.Context, item *store.Item, logger *slog.Logger) error {
	ttl := d.cfg.AssetURLTTL()
	if ttl <= 0 {
		return nil
	}
	obtained := item.Media.BaseURLObtained
	if !obtained.IsZero() && d.now().Sub(obtained) < ttl {
		return nil
	}

	fresh, err := d.catalog.GetItem(ctx, item.AccountID, item.Media.ID)
	if err != nil {
		return err
	}
	item.Media.BaseURL = fresh.BaseURL
	item.Media.BaseURLObtained = fresh.BaseURLObtained
	if fresh.MimeType != "" {
		item.Media.MimeType = fresh.MimeType
	}

	if err := d.store.RefreshAssetURL(ctx, item.Media.ID, fresh.BaseURL, fresh.BaseURLObtained); err != nil {
		return err
	}
	logger.Debug("signed url renewed")
	return nil
}

// targetPath derives the destination file path. The collision check runs
// over the sanitized name, not the raw remote one, so two distinct remote
// names that map to the same local file still get disambiguated by
// embedding the remote identifier in the stem.
func (d *Downloader) targetPath(ctx context.Context, item *store.Item) (string, error) {
	name := fileutil.SanitizeFilename(item.Media.Filename)
	if name == "" {
		name = fileutil.SanitizeFilename(item.Media.ID)
	}

	shared, err := d.store.FilenameShared(ctx, name, item.Media.ID)
	if err != nil {
		return "", err
	}
	if shared {
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		name = stem + "-" + shortID(item.Media.ID) + ext
	}
	return filepath.Join(d.cfg.Paths.DestinationDir, name), nil
}

// shortID keeps collision suffixes readable; remote identifiers are long
// and the first characters are already unique in practice.
func shortID(id string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, id)
	if len(cleaned) > 12 {
		return cleaned[:12]
	}
	return cleaned
}

// sourceTracker remembers whether the read side of a copy failed so stream
// errors can be told apart from disk errors.
type sourceTracker struct {
	r   io.Reader
	err error
}

func (t *sourceTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}

func (d *Downloader) setDelay(id string, delay time.Duration) {
	d.mu.Lock()
	d.notUntil[id] = d.now().Add(delay)
	d.mu.Unlock()
}

func (d *Downloader) clearDelay(id string) {
	d.mu.Lock()
	delete(d.notUntil, id)
	d.mu.Unlock()
}
