package service

import (
	"context"
	"fmt"
	"io"

	"github.com/Ning0612/lzxauto/internal/cache"
	"github.com/Ning0612/lzxauto/internal/compact"
	"github.com/Ning0612/lzxauto/internal/config"
	"github.com/Ning0612/lzxauto/internal/domain"
	"github.com/Ning0612/lzxauto/internal/engine"
	"github.com/Ning0612/lzxauto/internal/lock"
	"github.com/Ning0612/lzxauto/internal/logger"
	"github.com/Ning0612/lzxauto/internal/metrics"
	"github.com/Ning0612/lzxauto/internal/progress"
	"github.com/Ning0612/lzxauto/internal/state"
)

// CompactService orchestrates compaction sessions
type CompactService struct {
	config     *config.Config
	lock       *lock.FileLock
	store      *cache.Store
	history    *state.Manager
	metrics    *metrics.Collector
	compactor  engine.Compactor
	reporter   progress.Reporter
	version    string
	engineOpts []engine.Option
}

// Option customizes a CompactService
type Option func(*CompactService)

// WithCompactor replaces the compaction tool invoker
func WithCompactor(c engine.Compactor) Option {
	return func(s *CompactService) {
		s.compactor = c
	}
}

// WithVersion sets the version logged at session start
func WithVersion(v string) Option {
	return func(s *CompactService) {
		s.version = v
	}
}

// WithEngineOptions passes options through to every session engine
func WithEngineOptions(opts ...engine.Option) Option {
	return func(s *CompactService) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// NewCompactService creates a service keeping its state in cfg's data directory
func NewCompactService(cfg *config.Config, opts ...Option) (*CompactService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	dataDir := cfg.GetDataDir()
	fileLock, err := lock.NewFileLock(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create file lock: %w", err)
	}

	history, err := state.NewManager(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create state manager: %w", err)
	}

	s := &CompactService{
		config:  cfg,
		lock:    fileLock,
		store:   cache.NewStore(cfg.SnapshotPath()),
		history: history,
		metrics: metrics.New(),
		compactor: compact.New(compact.Options{
			Tool:        cfg.Compact.Tool,
			Algorithm:   cfg.Compact.Algorithm,
			LowPriority: cfg.Compact.LowPriority,
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SetProgressReporter sets the reporter for subsequent sessions
func (s *CompactService) SetProgressReporter(reporter progress.Reporter) {
	s.reporter = reporter
}

// Run executes one session over root while holding the instance lock.
// Another running session yields an error matching domain.ErrSessionInProgress.
// Whenever the engine returns a summary it is recorded in the session
// history and exported as metrics, even if the session failed.
func (s *CompactService) Run(ctx context.Context, root string) (*domain.SessionSummary, error) {
	if err := s.lock.Acquire(lock.OpSession, root); err != nil {
		logger.Get().Error("failed to acquire instance lock", "root", root, "error", err)
		return nil, fmt.Errorf("failed to acquire instance lock: %w", err)
	}
	defer func() {
		if err := s.lock.Release(); err != nil {
			logger.Get().Error("failed to release instance lock", "root", root, "error", err)
		}
	}()

	eng := engine.New(s.store, s.compactor, engine.Options{
		SkipExtensions: s.config.SkipExtensions,
		Workers:        s.config.Parallelism(),
		Ceiling:        s.config.Ceiling(),
		SaveInterval:   s.config.SaveInterval,
		Reporter:       s.reporter,
		Version:        s.version,
	}, s.engineOpts...)

	summary, err := eng.Run(ctx, root)
	if summary != nil {
		s.record(summary)
	}
	return summary, err
}

func (s *CompactService) record(summary *domain.SessionSummary) {
	if err := s.history.SaveSession(state.RecordFromSummary(summary)); err != nil {
		logger.Get().Warn("failed to record session history", "root", summary.Root, "error", err)
	}

	s.metrics.Observe(summary)
	if path := s.config.Metrics.Textfile; path != "" {
		if err := s.metrics.WriteTextfile(config.ExpandPath(path)); err != nil {
			logger.Get().Warn("failed to export metrics", "path", path, "error", err)
		}
	}
}

// Reset deletes the change cache snapshot so the next session reprocesses
// every file. It refuses to run while a session or another reset holds the
// instance lock.
func (s *CompactService) Reset() error {
	if err := s.lock.Acquire(lock.OpReset, ""); err != nil {
		return fmt.Errorf("failed to acquire instance lock: %w", err)
	}
	defer func() {
		if err := s.lock.Release(); err != nil {
			logger.Get().Error("failed to release instance lock", "error", err)
		}
	}()

	if err := s.store.Reset(); err != nil {
		return err
	}
	logger.Get().Info("change cache reset", "path", s.store.Path())
	return nil
}

// History returns the latest sessions for root, or for every root when
// root is empty
func (s *CompactService) History(root string, limit int) ([]state.SessionRecord, error) {
	if root == "" {
		return s.history.GetAllHistory(limit)
	}
	return s.history.GetHistory(root, limit)
}

// LastSuccess returns the last successful session for root, or nil
func (s *CompactService) LastSuccess(root string) (*state.SessionRecord, error) {
	return s.history.GetLastSuccess(root)
}

// Metrics exposes the session metrics collector
func (s *CompactService) Metrics() *metrics.Collector {
	return s.metrics
}

// IsLocked checks if another session is in progress
func (s *CompactService) IsLocked() bool {
	return s.lock.IsLocked()
}

// LockHolder returns the live holder of the instance lock
func (s *CompactService) LockHolder() (*lock.Holder, error) {
	return s.lock.Current()
}

// ForceUnlock forcibly releases the lock (use with caution)
func (s *CompactService) ForceUnlock() error {
	return s.lock.ForceRelease()
}

// Close releases the history database
func (s *CompactService) Close() error {
	return s.history.Close()
}

var _ io.Closer = (*CompactService)(nil)
