package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Ning0612/lzxauto/internal/logger"
)

// IntervalScheduler runs a task on a time.Ticker.
// Runs never overlap: a tick that arrives while the task is running is dropped.
type IntervalScheduler struct {
	config Config
	task   Task

	// Runtime state
	mu          sync.RWMutex
	running     bool
	started     bool
	stopOnce    sync.Once // Ensure Stop() is idempotent
	closeOnce   sync.Once // Ensure stoppedChan is closed exactly once
	stopChan    chan struct{}
	stoppedChan chan struct{}

	// Statistics
	stats struct {
		lastRunTime    time.Time
		nextRunTime    time.Time
		totalRuns      int
		successfulRuns int
		failedRuns     int
		lastError      string
	}
}

// NewIntervalScheduler creates a new interval-based scheduler
func NewIntervalScheduler(config Config, task Task) (*IntervalScheduler, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", config.Interval)
	}

	if task == nil {
		return nil, fmt.Errorf("task cannot be nil")
	}

	return &IntervalScheduler{
		config:      config,
		task:        task,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}, nil
}

// Start begins the scheduling loop. A scheduler cannot be restarted.
func (s *IntervalScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler %q is already running", s.config.Name)
	}

	if s.started {
		return fmt.Errorf("scheduler %q cannot be restarted after stop", s.config.Name)
	}

	s.running = true
	s.started = true
	s.stats.nextRunTime = time.Now().Add(s.config.Interval)

	go s.run(ctx)

	return nil
}

// run is the main scheduling loop
func (s *IntervalScheduler) run(ctx context.Context) {
	defer s.closeOnce.Do(func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(s.stoppedChan)
	})

	if s.config.RunImmediately {
		s.execute(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.execute(ctx)
		}
	}
}

// execute runs the task once and records the result
func (s *IntervalScheduler) execute(ctx context.Context) {
	s.mu.Lock()
	s.stats.lastRunTime = time.Now()
	s.stats.totalRuns++
	s.mu.Unlock()

	err := s.task.Run(ctx)

	s.mu.Lock()
	s.stats.nextRunTime = time.Now().Add(s.config.Interval)
	if err != nil {
		s.stats.failedRuns++
		s.stats.lastError = err.Error()
	} else {
		s.stats.successfulRuns++
		s.stats.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		logger.Get().Warn("scheduled task failed", "task", s.config.Name, "error", err)
	}
}

// Stop ends the loop and waits for an in-progress run to return.
// Stopping a scheduler whose loop already ended is not an error.
func (s *IntervalScheduler) Stop() error {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	if !started {
		return fmt.Errorf("scheduler %q is not running", s.config.Name)
	}

	s.stopOnce.Do(func() {
		close(s.stopChan)
	})

	<-s.stoppedChan
	return nil
}

// Status returns the current scheduler status
func (s *IntervalScheduler) Status() *Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &Status{
		Running:        s.running,
		LastRunTime:    s.stats.lastRunTime,
		NextRunTime:    s.stats.nextRunTime,
		TotalRuns:      s.stats.totalRuns,
		SuccessfulRuns: s.stats.successfulRuns,
		FailedRuns:     s.stats.failedRuns,
		LastError:      s.stats.lastError,
	}
}
