package domain

import (
	"sync/atomic"
	"time"
)

// SessionStats holds the counters of one compaction session.
// All fields are updated atomically by concurrent workers and only ever grow.
type SessionStats struct {
	SkippedByAttribute atomic.Int64
	SkippedByExtension atomic.Int64
	SkippedUnchanged   atomic.Int64
	SkippedEmpty       atomic.Int64
	Processed          atomic.Int64
	Failed             atomic.Int64

	// UncompressedBytes is a best-effort estimate of the space visited files
	// would occupy uncompressed (logical size rounded up to the cluster size)
	UncompressedBytes atomic.Int64

	// BytesBefore and BytesAfter sum the on-disk signatures of processed files
	// before and after compaction
	BytesBefore atomic.Int64
	BytesAfter  atomic.Int64

	// SavedBytes sums max(0, before-after) per processed file
	SavedBytes atomic.Int64
}

// Record increments the counter matching the outcome
func (s *SessionStats) Record(o Outcome) {
	switch o {
	case OutcomeProcessed:
		s.Processed.Add(1)
	case OutcomeSkippedExtension:
		s.SkippedByExtension.Add(1)
	case OutcomeSkippedAttribute:
		s.SkippedByAttribute.Add(1)
	case OutcomeSkippedEmpty:
		s.SkippedEmpty.Add(1)
	case OutcomeSkippedUnchanged:
		s.SkippedUnchanged.Add(1)
	case OutcomeFailed:
		s.Failed.Add(1)
	}
}

// Visited returns the number of files that reached a final outcome
func (s *SessionStats) Visited() int64 {
	return s.SkippedByAttribute.Load() +
		s.SkippedByExtension.Load() +
		s.SkippedUnchanged.Load() +
		s.SkippedEmpty.Load() +
		s.Processed.Load() +
		s.Failed.Load()
}

// SessionStatus is the terminal state of a session
type SessionStatus string

const (
	StatusSuccess   SessionStatus = "success"
	StatusCancelled SessionStatus = "cancelled"
	StatusPartial   SessionStatus = "partial"
	StatusFailed    SessionStatus = "failed"
)

// SessionSummary is the read-once view of a finished session, handed to
// callers for rendering and persistence
type SessionSummary struct {
	Root      string
	Status    SessionStatus
	StartTime time.Time
	EndTime   time.Time

	SkippedByAttribute int64
	SkippedByExtension int64
	SkippedUnchanged   int64
	SkippedEmpty       int64
	Processed          int64
	Failed             int64
	Visited            int64

	UncompressedBytes int64
	BytesBefore       int64
	BytesAfter        int64
	SavedBytes        int64

	// CacheEntries is the size of the change cache at session end
	CacheEntries int

	// Drive figures are best effort and zero when unavailable
	DiskCapacity   uint64
	DiskFreeBefore uint64
	DiskFreeAfter  uint64
	DiskUsedAfter  uint64

	// WalkError is the top-level walk failure, if any
	WalkError string
}

// Summarize freezes the counters into a SessionSummary
func (s *SessionStats) Summarize(root string, start, end time.Time) *SessionSummary {
	return &SessionSummary{
		Root:               root,
		StartTime:          start,
		EndTime:            end,
		SkippedByAttribute: s.SkippedByAttribute.Load(),
		SkippedByExtension: s.SkippedByExtension.Load(),
		SkippedUnchanged:   s.SkippedUnchanged.Load(),
		SkippedEmpty:       s.SkippedEmpty.Load(),
		Processed:          s.Processed.Load(),
		Failed:             s.Failed.Load(),
		Visited:            s.Visited(),
		UncompressedBytes:  s.UncompressedBytes.Load(),
		BytesBefore:        s.BytesBefore.Load(),
		BytesAfter:         s.BytesAfter.Load(),
		SavedBytes:         s.SavedBytes.Load(),
	}
}

// Elapsed returns the session duration
func (s *SessionSummary) Elapsed() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// FilesPerMinute returns visited files per minute
func (s *SessionSummary) FilesPerMinute() float64 {
	return perMinute(s.Visited, s.Elapsed())
}

// CompactedPerMinute returns processed files per minute
func (s *SessionSummary) CompactedPerMinute() float64 {
	return perMinute(s.Processed, s.Elapsed())
}

// SessionSaved returns the growth in free space over the session, never negative
func (s *SessionSummary) SessionSaved() uint64 {
	if s.DiskFreeAfter > s.DiskFreeBefore {
		return s.DiskFreeAfter - s.DiskFreeBefore
	}
	return 0
}

// DriveSavedEstimate approximates the whole-drive saving as the uncompressed
// size of the processed files minus the space in use on the drive, never negative.
// It is only meaningful when the root covers most of the drive.
func (s *SessionSummary) DriveSavedEstimate() uint64 {
	if s.UncompressedBytes <= 0 || s.DiskUsedAfter == 0 {
		return 0
	}
	if u := uint64(s.UncompressedBytes); u > s.DiskUsedAfter {
		return u - s.DiskUsedAfter
	}
	return 0
}

func perMinute(n int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Minutes()
}
