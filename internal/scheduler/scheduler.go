package scheduler

import (
	"context"
	"time"
)

// Scheduler runs a task repeatedly
type Scheduler interface {
	// Start begins the scheduling loop
	Start(ctx context.Context) error

	// Stop ends the loop and waits for a running task to return
	Stop() error

	// Status returns the current scheduler status
	Status() *Status
}

// Status represents the current state of a scheduler
type Status struct {
	Running        bool
	LastRunTime    time.Time
	NextRunTime    time.Time
	TotalRuns      int
	SuccessfulRuns int
	FailedRuns     int
	LastError      string
}

// Config contains scheduler configuration
type Config struct {
	// Name identifies the task in logs
	Name string

	// Interval is the duration between runs
	Interval time.Duration

	// RunImmediately runs the task once when the loop starts
	RunImmediately bool
}

// Task is the unit of work a scheduler executes
type Task interface {
	Run(ctx context.Context) error
}

// TaskFunc adapts a function to Task
type TaskFunc func(ctx context.Context) error

// Run calls f(ctx)
func (f TaskFunc) Run(ctx context.Context) error {
	return f(ctx)
}
