package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Ning0612/lzxauto/internal/daemon"
	"github.com/Ning0612/lzxauto/internal/domain"
)

const (
	// FileName is the instance lock file inside the lock directory
	FileName = ".lzxauto.lock"
	// DefaultStaleAfter is how long a lock written by another host is honored
	DefaultStaleAfter = 30 * time.Minute
)

// unreadableGrace is how long a lock file that does not parse is treated as
// being written by its owner rather than left behind by a crash
const unreadableGrace = 5 * time.Second

// Operation names what the lock holder is doing
type Operation string

const (
	// OpSession is a compaction session over a root
	OpSession Operation = "session"
	// OpReset is a change cache reset
	OpReset Operation = "reset"
)

// Holder is the content of the lock file
type Holder struct {
	Operation Operation `json:"operation"`
	Root      string    `json:"root,omitempty"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	Acquired  time.Time `json:"acquired"`
}

// Activity describes the holder's work for messages
func (h *Holder) Activity() string {
	switch h.Operation {
	case OpSession:
		return "compacting " + h.Root
	case OpReset:
		return "resetting the change cache"
	default:
		return string(h.Operation)
	}
}

func (h *Holder) sameAs(o *Holder) bool {
	return h.PID == o.PID &&
		h.Hostname == o.Hostname &&
		h.Operation == o.Operation &&
		h.Acquired.Equal(o.Acquired)
}

// FileLock keeps sessions and resets from overlapping, within one process
// and across processes sharing the lock directory. A FileLock is safe for
// concurrent use; while one caller holds it every other Acquire fails.
type FileLock struct {
	mu         sync.Mutex
	path       string
	staleAfter time.Duration
	alive      func(pid int) bool
	held       *Holder
}

// NewFileLock creates a lock in dir, or in the user config directory when
// dir is empty
func NewFileLock(dir string) (*FileLock, error) {
	if dir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config dir: %w", err)
		}
		dir = filepath.Join(configDir, "lzxauto")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	return &FileLock{
		path:       filepath.Join(dir, FileName),
		staleAfter: DefaultStaleAfter,
		alive:      daemon.ProcessAlive,
	}, nil
}

// Path returns the lock file path
func (l *FileLock) Path() string {
	return l.path
}

// Acquire takes the lock for op. root is recorded for sessions.
// A held lock, by this FileLock or another process, yields a *LockError.
func (l *FileLock) Acquire(op Operation, root string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held != nil {
		current := *l.held
		return &LockError{Holder: &current}
	}

	hostname, _ := os.Hostname()
	h := &Holder{
		Operation: op,
		Root:      root,
		PID:       os.Getpid(),
		Hostname:  hostname,
		Acquired:  time.Now(),
	}
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode lock holder: %w", err)
	}

	// A stale file is removed once; losing the race after that is a conflict
	for attempt := 0; attempt < 2; attempt++ {
		err := createExclusive(l.path, data)
		if err == nil {
			l.held = h
			return nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("failed to create lock file: %w", err)
		}

		current, stale := l.inspect()
		if !stale {
			if current == nil {
				return &LockError{Reason: "lock file is being written"}
			}
			return &LockError{Holder: current}
		}
		if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}

	current, _ := l.inspect()
	return &LockError{Holder: current, Reason: "lock was taken during acquisition"}
}

// Release gives up the lock. It is a no-op when the lock is not held, and
// an error when another process replaced the lock file.
func (l *FileLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held == nil {
		return nil
	}
	held := l.held
	l.held = nil

	current, err := readHolder(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err == nil && !current.sameAs(held) {
		return fmt.Errorf("lock file was taken over by PID %d on %s", current.PID, current.Hostname)
	}

	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// IsLocked reports whether a live holder owns the lock file
func (l *FileLock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, stale := l.inspect()
	return !stale
}

// Current returns the live holder of the lock file
func (l *FileLock) Current() (*Holder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, err := readHolder(l.path)
	if err != nil {
		return nil, err
	}
	if l.isStale(h) {
		return nil, fmt.Errorf("lock held by PID %d on %s is stale", h.PID, h.Hostname)
	}
	return h, nil
}

// ForceRelease removes the lock file whoever holds it.
// Only for a holder known to have crashed.
func (l *FileLock) ForceRelease() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to force remove lock: %w", err)
	}
	l.held = nil
	return nil
}

// inspect reads the lock file and reports whether it may be replaced.
// A missing file counts as stale. An unreadable one is stale once it is
// older than the grace period.
func (l *FileLock) inspect() (*Holder, bool) {
	h, err := readHolder(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, true
	}
	if err != nil {
		info, statErr := os.Stat(l.path)
		if statErr != nil {
			return nil, true
		}
		return nil, time.Since(info.ModTime()) > unreadableGrace
	}
	return h, l.isStale(h)
}

// isStale reports whether the holder is gone. On this host that means its
// process is dead, whatever its age. Locks from another host expire.
func (l *FileLock) isStale(h *Holder) bool {
	hostname, _ := os.Hostname()
	if h.Hostname == hostname {
		return !l.alive(h.PID)
	}
	return time.Since(h.Acquired) > l.staleAfter
}

func readHolder(path string) (*Holder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var h Holder
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("invalid lock file %s: %w", path, err)
	}
	return &h, nil
}

// createExclusive writes data to a new file, failing if path exists
func createExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// LockError is returned when the lock is held elsewhere.
// It matches domain.ErrSessionInProgress with errors.Is.
type LockError struct {
	Holder *Holder
	Reason string
}

func (e *LockError) Error() string {
	if e.Holder == nil {
		return "instance lock unavailable: " + e.Reason
	}
	msg := fmt.Sprintf("another instance is %s (PID %d on %s since %s)",
		e.Holder.Activity(),
		e.Holder.PID,
		e.Holder.Hostname,
		e.Holder.Acquired.Format(time.RFC3339))
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *LockError) Unwrap() error {
	return domain.ErrSessionInProgress
}
