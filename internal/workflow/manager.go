package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"syncabull/internal/config"
	"syncabull/internal/downloader"
	"syncabull/internal/logging"
	"syncabull/internal/scanner"
	"syncabull/internal/services"
	"syncabull/internal/store"
)

// Manager coordinates the scan and download lanes over a shared store.
type Manager struct {
	cfg        *config.Config
	store      *store.Store
	logger     *slog.Logger
	scanner    *scanner.Scanner
	downloader *downloader.Downloader

	mu          sync.RWMutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lastScanAt  time.Time
	lastScanErr error
}

// NewManager constructs a workflow manager from pre-built components.
func NewManager(cfg *config.Config, st *store.Store, sc *scanner.Scanner, dl *downloader.Downloader, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:        cfg,
		store:      st,
		logger:     logger.With(logging.FieldComponent, "workflow"),
		scanner:    sc,
		downloader: dl,
	}
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(2)
	m.mu.Unlock()

	go m.runScanLane(runCtx)
	go m.runDownloadLane(runCtx)
	return nil
}

// Stop terminates background processing and waits for both lanes to settle.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Running reports whether the lanes are active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// LastScan returns the completion time and error of the most recent
// enumeration sweep.
func (m *Manager) LastScan() (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastScanAt, m.lastScanErr
}

// RunOnce performs a single foreground pass: one full enumeration sweep,
// then download cycles until the pool yields no more dispatchable work.
// Used by the one-shot sync command.
func (m *Manager) RunOnce(ctx context.Context) (scanned, attempted int, err error) {
	scanned, err = m.scanner.SyncAll(ctx)
	if err != nil {
		return scanned, 0, err
	}

	for {
		attempts, cycleErr := m.downloader.RunCycle(ctx)
		attempted += attempts
		if cycleErr != nil {
			return scanned, attempted, cycleErr
		}
		if attempts == 0 {
			return scanned, attempted, nil
		}
	}
}

func (m *Manager) runScanLane(ctx context.Context) {
	defer m.wg.Done()

	ctx = services.WithStage(ctx, "scan")
	logger := logging.WithContext(ctx, m.logger)

	for {
		recorded, err := m.scanner.SyncAll(ctx)
		m.recordScan(err)
		switch {
		case errors.Is(err, context.Canceled):
			return
		case err != nil:
			logger.Error("enumeration sweep failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "scan_failed"))
			if !m.sleep(ctx, time.Duration(m.cfg.Workflow.ErrorRetryInterval)*time.Second) {
				return
			}
			continue
		default:
			logger.Info("enumeration sweep complete", logging.Int("items", recorded))
		}

		if !m.sleep(ctx, m.scanInterval(ctx)) {
			return
		}
	}
}

func (m *Manager) runDownloadLane(ctx context.Context) {
	defer m.wg.Done()

	ctx = services.WithStage(ctx, "download")
	logger := logging.WithContext(ctx, m.logger)

	for {
		attempts, err := m.downloader.RunCycle(ctx)
		if errors.Is(err, context.Canceled) {
			return
		}
		if err != nil {
			logger.Error("download cycle failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "download_cycle_failed"))
			if !m.sleep(ctx, time.Duration(m.cfg.Workflow.ErrorRetryInterval)*time.Second) {
				return
			}
			continue
		}
		if attempts == 0 {
			if !m.sleep(ctx, time.Duration(m.cfg.Workflow.QueuePollInterval)*time.Second) {
				return
			}
		}
	}
}

// scanInterval picks the sweep cadence: tight until every account has a
// complete first pass, relaxed afterward.
func (m *Manager) scanInterval(ctx context.Context) time.Duration {
	interval := time.Duration(m.cfg.Workflow.ScanInterval) * time.Second
	accounts, err := m.store.ListAccounts(ctx)
	if err != nil || len(accounts) == 0 {
		return interval
	}
	for _, account := range accounts {
		if !account.InitialScanComplete {
			return interval
		}
	}
	return time.Duration(m.cfg.Workflow.IdleScanInterval) * time.Second
}

func (m *Manager) recordScan(err error) {
	m.mu.Lock()
	m.lastScanAt = time.Now()
	m.lastScanErr = err
	m.mu.Unlock()
}

// sleep waits for the interval or shutdown, reporting false on shutdown.
func (m *Manager) sleep(ctx context.Context, interval time.Duration) bool {
	if interval <= 0 {
		interval = time.Second
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(interval):
		return true
	}
}
