package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/Ning0612/lzxauto/internal/cache"
	"github.com/Ning0612/lzxauto/internal/compact"
	"github.com/Ning0612/lzxauto/internal/dispatch"
	"github.com/Ning0612/lzxauto/internal/domain"
	"github.com/Ning0612/lzxauto/internal/logger"
	"github.com/Ning0612/lzxauto/internal/progress"
	"github.com/Ning0612/lzxauto/internal/scheduler"
	"github.com/Ning0612/lzxauto/internal/walker"
)

// Compactor is everything a session needs from the compaction tool
type Compactor interface {
	dispatch.Compactor
	walker.DirClearer
}

// Options configures a session
type Options struct {
	SkipExtensions []string
	Workers        int
	Ceiling        int

	// SaveInterval is the period of the background snapshot save
	SaveInterval time.Duration

	// Reporter receives per-file outcomes; nil disables reporting
	Reporter progress.Reporter

	// Version is logged at session start
	Version string
}

// Engine runs compaction sessions over a directory tree
type Engine struct {
	store     *cache.Store
	compactor Compactor
	opts      Options

	fs          afero.Fs
	walkerOpts  []walker.Option
	diskUsage   func(path string) (compact.Usage, error)
	clusterSize func(path string) uint64
	elevated    func() bool
}

// Option customizes an Engine
type Option func(*Engine)

// WithFs replaces the filesystem the walker enumerates
func WithFs(fsys afero.Fs) Option {
	return func(e *Engine) {
		e.fs = fsys
	}
}

// WithWalkerOptions passes options through to the walker
func WithWalkerOptions(opts ...walker.Option) Option {
	return func(e *Engine) {
		e.walkerOpts = append(e.walkerOpts, opts...)
	}
}

// New creates an engine persisting its change cache through store
func New(store *cache.Store, comp Compactor, opts Options, engineOpts ...Option) *Engine {
	if opts.SaveInterval <= 0 {
		opts.SaveInterval = 30 * time.Second
	}
	if opts.Reporter == nil {
		opts.Reporter = progress.NullReporter{}
	}

	e := &Engine{
		store:       store,
		compactor:   comp,
		opts:        opts,
		fs:          afero.NewOsFs(),
		diskUsage:   compact.DiskUsage,
		clusterSize: compact.ClusterSize,
		elevated:    compact.IsElevated,
	}
	for _, opt := range engineOpts {
		opt(e)
	}
	return e
}

// Run executes one session over root.
//
// The change cache is loaded first; a corrupt snapshot aborts the session
// with domain.ErrCacheCorrupt before any file is touched. Once the cache is
// loaded the session always drains, saves the cache and returns a summary,
// whether the walk completed, was cancelled through ctx, or failed at the root.
// Cancellation never interrupts a compaction that already started.
func (e *Engine) Run(ctx context.Context, root string) (*domain.SessionSummary, error) {
	start := time.Now()

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}

	log := logger.With("root", abs)
	elevated := e.elevated()
	log.Info("session started",
		"version", e.opts.Version,
		"workers", e.opts.Workers,
		"ceiling", e.opts.Ceiling,
		"elevated", elevated)
	if !elevated {
		log.Info("not running elevated, some files may be inaccessible")
	}

	c, err := e.store.Load()
	if err != nil {
		log.Error("failed to load change cache, terminating", "path", e.store.Path(), "error", err)
		return nil, err
	}

	before, usageErr := e.diskUsage(abs)
	if usageErr != nil {
		log.Debug("disk usage unavailable", "error", usageErr)
	}

	stats := &domain.SessionStats{}
	pipeline := dispatch.NewPipeline(c, e.compactor, stats, dispatch.PipelineOptions{
		SkipExtensions: e.opts.SkipExtensions,
		ClusterSize:    e.clusterSize(abs),
		Reporter:       e.opts.Reporter,
	})
	disp := dispatch.New(dispatch.Config{Workers: e.opts.Workers, Ceiling: e.opts.Ceiling}, pipeline)

	saver, err := scheduler.NewIntervalScheduler(
		scheduler.Config{Name: "cache-save", Interval: e.opts.SaveInterval},
		scheduler.TaskFunc(func(context.Context) error {
			return e.store.Save(c)
		}))
	if err != nil {
		disp.Drain()
		return nil, err
	}
	if err := saver.Start(ctx); err != nil {
		disp.Drain()
		return nil, err
	}

	w := walker.New(e.fs, e.compactor, e.walkerOpts...)
	walkErr := w.Walk(ctx, abs, func(item domain.WorkItem) error {
		return disp.Submit(ctx, item)
	})

	// Exactly one save has the last word: stop the trigger, then drain, then save
	if err := saver.Stop(); err != nil {
		log.Warn("failed to stop periodic save", "error", err)
	}
	disp.Drain()
	if n := disp.Panicked(); n > 0 {
		stats.Failed.Add(n)
	}
	saveErr := e.store.Save(c)
	e.opts.Reporter.Finish()

	summary := stats.Summarize(abs, start, time.Now())
	summary.CacheEntries = c.Len()
	if usageErr == nil {
		summary.DiskCapacity = before.Total
		summary.DiskFreeBefore = before.Free
		if after, err := e.diskUsage(abs); err == nil {
			summary.DiskFreeAfter = after.Free
			summary.DiskUsedAfter = after.Used()
		}
	}

	switch {
	case errors.Is(walkErr, context.Canceled), errors.Is(walkErr, context.DeadlineExceeded):
		summary.Status = domain.StatusCancelled
		log.Warn("session cancelled, in-flight files finished")
	case walkErr != nil:
		summary.Status = domain.StatusPartial
		summary.WalkError = walkErr.Error()
		log.Error("walk aborted", "error", walkErr)
	default:
		summary.Status = domain.StatusSuccess
	}

	if saveErr != nil {
		summary.Status = domain.StatusFailed
		log.Error("failed to save change cache", "path", e.store.Path(), "error", saveErr)
	}

	logSummary(log, summary, disp.Peak(), elevated)

	if saveErr != nil {
		return summary, fmt.Errorf("save change cache: %w", saveErr)
	}
	return summary, nil
}

func logSummary(log logger.Logger, s *domain.SessionSummary, peak int64, elevated bool) {
	log.Info("session finished",
		"status", s.Status,
		"elapsed", s.Elapsed().Round(time.Millisecond),
		"visited", s.Visited,
		"processed", s.Processed,
		"skipped_attribute", s.SkippedByAttribute,
		"skipped_extension", s.SkippedByExtension,
		"skipped_unchanged", s.SkippedUnchanged,
		"skipped_empty", s.SkippedEmpty,
		"failed", s.Failed,
		"cache_entries", s.CacheEntries,
		"peak_in_flight", peak,
		"files_per_minute", fmt.Sprintf("%.2f", s.FilesPerMinute()),
		"compacted_per_minute", fmt.Sprintf("%.2f", s.CompactedPerMinute()))

	if s.DiskCapacity > 0 {
		log.Info("drive stats",
			"capacity", progress.FormatBytes(int64(s.DiskCapacity)),
			"free_before", progress.FormatBytes(int64(s.DiskFreeBefore)),
			"free_after", progress.FormatBytes(int64(s.DiskFreeAfter)),
			"saved_this_session", progress.FormatBytes(int64(s.SessionSaved())))
	}
	if elevated {
		log.Info("compaction estimate",
			"uncompressed", progress.FormatBytes(s.UncompressedBytes),
			"signature_before", progress.FormatBytes(s.BytesBefore),
			"signature_after", progress.FormatBytes(s.BytesAfter),
			"saved", progress.FormatBytes(s.SavedBytes),
			"saved_on_drive", progress.FormatBytes(int64(s.DriveSavedEstimate())))
	}
}
