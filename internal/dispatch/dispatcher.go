package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/semaphore"

	"github.com/Ning0612/lzxauto/internal/domain"
	"github.com/Ning0612/lzxauto/internal/logger"
)

// ErrClosed is returned by Submit after Drain
var ErrClosed = errors.New("dispatcher is drained")

// Handler processes one work item
type Handler interface {
	Handle(item domain.WorkItem)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(item domain.WorkItem)

// Handle calls f(item)
func (f HandlerFunc) Handle(item domain.WorkItem) {
	f(item)
}

// Config sizes the worker pool
type Config struct {
	// Workers is the number of goroutines processing items
	Workers int

	// Ceiling is the maximum number of admitted, unfinished items
	Ceiling int
}

// Dispatcher is a bounded-concurrency executor.
// Submit blocks while Ceiling items are in flight; Drain stops admission
// and waits for every admitted item to finish.
type Dispatcher struct {
	handler Handler
	ceiling int

	sem  *semaphore.Weighted
	jobs chan domain.WorkItem
	wg   conc.WaitGroup

	inflight atomic.Int64
	peak     atomic.Int64
	panicked atomic.Int64

	closed    atomic.Bool
	drainOnce sync.Once
}

// New starts the workers. Non-positive values fall back to 1.
func New(cfg Config, h Handler) *Dispatcher {
	workers := max(cfg.Workers, 1)
	ceiling := max(cfg.Ceiling, 1)

	d := &Dispatcher{
		handler: h,
		ceiling: ceiling,
		sem:     semaphore.NewWeighted(int64(ceiling)),
		jobs:    make(chan domain.WorkItem, ceiling),
	}

	for i := 0; i < workers; i++ {
		d.wg.Go(d.work)
	}

	return d
}

// Submit admits item, blocking while the ceiling is reached.
// It returns ctx.Err() if ctx is done before a slot frees up.
// Submit must be called from a single goroutine.
func (d *Dispatcher) Submit(ctx context.Context, item domain.WorkItem) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	// A slot freed at the moment of cancellation must not admit more work
	if err := ctx.Err(); err != nil {
		d.sem.Release(1)
		return err
	}

	n := d.inflight.Add(1)
	for {
		p := d.peak.Load()
		if n <= p || d.peak.CompareAndSwap(p, n) {
			break
		}
	}

	// Capacity equals the ceiling, so a held slot always fits
	d.jobs <- item
	return nil
}

// Drain stops admission and waits for all admitted items to finish.
// It is safe to call more than once.
func (d *Dispatcher) Drain() {
	d.drainOnce.Do(func() {
		d.closed.Store(true)
		close(d.jobs)
	})
	d.wg.Wait()
}

// InFlight returns the number of admitted, unfinished items
func (d *Dispatcher) InFlight() int64 {
	return d.inflight.Load()
}

// Peak returns the highest in-flight count observed
func (d *Dispatcher) Peak() int64 {
	return d.peak.Load()
}

// Panicked returns how many items panicked in their handler
func (d *Dispatcher) Panicked() int64 {
	return d.panicked.Load()
}

// Ceiling returns the admission ceiling
func (d *Dispatcher) Ceiling() int {
	return d.ceiling
}

func (d *Dispatcher) work() {
	for item := range d.jobs {
		d.process(item)
	}
}

func (d *Dispatcher) process(item domain.WorkItem) {
	defer func() {
		d.inflight.Add(-1)
		d.sem.Release(1)
	}()

	var pc panics.Catcher
	pc.Try(func() { d.handler.Handle(item) })
	if r := pc.Recovered(); r != nil {
		d.panicked.Add(1)
		logger.Get().Error("panic while processing file",
			"path", item.Path,
			"panic", r.Value,
			"stack", string(r.Stack))
	}
}
