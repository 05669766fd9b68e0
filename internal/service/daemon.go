package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Ning0612/lzxauto/internal/config"
	"github.com/Ning0612/lzxauto/internal/daemon"
	"github.com/Ning0612/lzxauto/internal/domain"
	"github.com/Ning0612/lzxauto/internal/logger"
	"github.com/Ning0612/lzxauto/internal/scheduler"
	"github.com/Ning0612/lzxauto/internal/state"
)

// DaemonService runs a session over the same root at a fixed interval
type DaemonService struct {
	mu         sync.RWMutex
	config     *config.Config
	scheduler  scheduler.Scheduler
	compactSvc *CompactService
	pidFile    *daemon.PIDFile
	root       string
	cancel     context.CancelFunc
	fatal      *fatalSignal
}

// fatalSignal carries the first error that ends the daemon on its own
type fatalSignal struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newFatalSignal() *fatalSignal {
	return &fatalSignal{done: make(chan struct{})}
}

func (f *fatalSignal) trip(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// DaemonStatus represents the current daemon status
type DaemonStatus struct {
	Running        bool
	Root           string
	SchedulerStats *scheduler.Status
	LastSession    *state.SessionRecord
}

// NewDaemonService creates a new daemon service
func NewDaemonService(cfg *config.Config, opts ...Option) (*DaemonService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	compactSvc, err := NewCompactService(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create compact service: %w", err)
	}

	return &DaemonService{
		config:     cfg,
		compactSvc: compactSvc,
		pidFile:    daemon.NewPIDFile(cfg.GetPIDPath()),
		fatal:      newFatalSignal(),
	}, nil
}

// Start writes the PID file and schedules a session over root every
// interval, running the first one immediately. A corrupt change cache ends
// the schedule; Done is closed and Err reports the cause.
func (d *DaemonService) Start(ctx context.Context, root string, interval time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.scheduler != nil {
		return fmt.Errorf("daemon is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	fatal := newFatalSignal()
	runner := &sessionRunner{
		svc:  d.compactSvc,
		root: root,
		abort: func(err error) {
			fatal.trip(err)
			cancel()
		},
	}

	sched, err := scheduler.NewIntervalScheduler(scheduler.Config{
		Name:           "compact",
		Interval:       interval,
		RunImmediately: true,
	}, runner)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	if err := d.pidFile.Write(); err != nil {
		cancel()
		return err
	}

	if err := sched.Start(runCtx); err != nil {
		cancel()
		d.pidFile.Remove()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	d.scheduler = sched
	d.root = root
	d.cancel = cancel
	d.fatal = fatal
	logger.Get().Info("daemon started", "root", root, "interval", interval, "pid_file", d.pidFile.Path())
	return nil
}

// Stop stops scheduling sessions and waits for a running one to finish
func (d *DaemonService) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.scheduler == nil {
		return fmt.Errorf("daemon is not running")
	}

	return d.stopLocked()
}

func (d *DaemonService) stopLocked() error {
	var errs []error
	if err := d.scheduler.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop scheduler: %w", err))
	}
	d.cancel()
	if err := d.pidFile.Remove(); err != nil {
		errs = append(errs, err)
	}

	d.scheduler = nil
	logger.Get().Info("daemon stopped", "root", d.root)
	return errors.Join(errs...)
}

// Done is closed when a session error ends the daemon without a Stop
func (d *DaemonService) Done() <-chan struct{} {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.fatal.done
}

// Err returns the error that closed Done, or nil
func (d *DaemonService) Err() error {
	d.mu.RLock()
	fatal := d.fatal
	d.mu.RUnlock()

	select {
	case <-fatal.done:
		return fatal.err
	default:
		return nil
	}
}

// Status returns the current daemon status
func (d *DaemonService) Status() *DaemonStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := &DaemonStatus{
		Running: d.scheduler != nil,
		Root:    d.root,
	}

	if d.scheduler != nil {
		status.SchedulerStats = d.scheduler.Status()
	}

	if d.root != "" {
		history, err := d.compactSvc.History(d.root, 1)
		if err == nil && len(history) > 0 {
			status.LastSession = &history[0]
		}
	}

	return status
}

// Close stops the daemon if needed and releases all resources
func (d *DaemonService) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	if d.scheduler != nil {
		if err := d.stopLocked(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.compactSvc.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// sessionRunner adapts CompactService to scheduler.Task
type sessionRunner struct {
	svc   *CompactService
	root  string
	abort func(error)
}

// Run executes one session. A session still running from a manual
// invocation is not an error; the next tick tries again. A corrupt change
// cache needs a manual reset, so it aborts the schedule.
func (r *sessionRunner) Run(ctx context.Context) error {
	summary, err := r.svc.Run(ctx, r.root)
	if errors.Is(err, domain.ErrSessionInProgress) {
		logger.Get().Info("session already in progress, skipping tick", "root", r.root)
		return nil
	}
	if errors.Is(err, domain.ErrCacheCorrupt) {
		logger.Get().Error("change cache is corrupt, stopping daemon", "root", r.root, "error", err)
		if r.abort != nil {
			r.abort(err)
		}
		return err
	}
	if err != nil {
		return err
	}
	if summary.Status == domain.StatusPartial {
		return fmt.Errorf("session incomplete: %s", summary.WalkError)
	}
	return nil
}
