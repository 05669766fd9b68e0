package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Ning0612/lzxauto/internal/domain"
)

// Reporter receives the outcome of every file of a session.
// Implementations must be safe for concurrent use.
type Reporter interface {
	// Report records the outcome of one file
	Report(item domain.WorkItem, outcome domain.Outcome)
	// Finish marks the end of the session
	Finish()
}

// Callback is a function that receives progress updates
type Callback func(update Update)

// Update represents a progress update
type Update struct {
	Type           UpdateType
	CurrentFile    string
	Outcome        domain.Outcome
	FilesVisited   int64
	FilesCompacted int64
	FilesSkipped   int64
	FilesFailed    int64
	BytesVisited   int64
	Elapsed        time.Duration
	FilesPerSecond float64
}

// UpdateType indicates the type of progress update
type UpdateType int

const (
	UpdateFile UpdateType = iota
	UpdateDone
)

// CallbackReporter implements Reporter with a callback function
type CallbackReporter struct {
	callback  Callback
	mu        sync.Mutex
	startTime time.Time
	visited   int64
	compacted int64
	skipped   int64
	failed    int64
	bytes     int64
}

// NewCallbackReporter creates a new CallbackReporter
func NewCallbackReporter(callback Callback) *CallbackReporter {
	return &CallbackReporter{
		callback:  callback,
		startTime: time.Now(),
	}
}

// Report records the outcome of one file
func (r *CallbackReporter) Report(item domain.WorkItem, outcome domain.Outcome) {
	r.mu.Lock()
	r.visited++
	r.bytes += item.Size
	switch outcome {
	case domain.OutcomeProcessed:
		r.compacted++
	case domain.OutcomeFailed:
		r.failed++
	default:
		r.skipped++
	}

	update := r.snapshot(UpdateFile)
	update.CurrentFile = item.Path
	update.Outcome = outcome
	callback := r.callback
	r.mu.Unlock()

	// Call callback outside lock to prevent deadlock
	if callback != nil {
		callback(update)
	}
}

// Finish emits the final totals
func (r *CallbackReporter) Finish() {
	r.mu.Lock()
	update := r.snapshot(UpdateDone)
	callback := r.callback
	r.mu.Unlock()

	if callback != nil {
		callback(update)
	}
}

// snapshot builds an update from the counters; caller holds r.mu
func (r *CallbackReporter) snapshot(t UpdateType) Update {
	elapsed := time.Since(r.startTime)
	var rate float64
	if s := elapsed.Seconds(); s > 0 {
		rate = float64(r.visited) / s
	}
	return Update{
		Type:           t,
		FilesVisited:   r.visited,
		FilesCompacted: r.compacted,
		FilesSkipped:   r.skipped,
		FilesFailed:    r.failed,
		BytesVisited:   r.bytes,
		Elapsed:        elapsed,
		FilesPerSecond: rate,
	}
}

// NewLinePrinter returns a Callback writing one status line to w at most
// every interval, plus a final line when the session is done
func NewLinePrinter(w io.Writer, interval time.Duration) Callback {
	var mu sync.Mutex
	var last time.Time

	return func(u Update) {
		mu.Lock()
		defer mu.Unlock()

		if u.Type == UpdateFile && time.Since(last) < interval {
			return
		}
		last = time.Now()
		fmt.Fprintln(w, FormatUpdate(u))
	}
}

// FormatUpdate renders an update as a single status line
func FormatUpdate(u Update) string {
	prefix := "progress"
	if u.Type == UpdateDone {
		prefix = "done"
	}
	return fmt.Sprintf("%s: %d files (%s), %d compacted, %d skipped, %d failed, %.1f files/s",
		prefix, u.FilesVisited, FormatBytes(u.BytesVisited),
		u.FilesCompacted, u.FilesSkipped, u.FilesFailed, u.FilesPerSecond)
}

// NullReporter is a no-op reporter
type NullReporter struct{}

func (NullReporter) Report(item domain.WorkItem, outcome domain.Outcome) {}
func (NullReporter) Finish()                                             {}

// FormatBytes formats bytes into human-readable string
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.2f TB", float64(bytes)/TB)
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
