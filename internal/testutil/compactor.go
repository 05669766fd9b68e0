package testutil

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Ning0612/lzxauto/internal/compact"
	"github.com/Ning0612/lzxauto/internal/domain"
)

// CompactCall records one Compact invocation
type CompactCall struct {
	Path  string
	Force bool
}

type compacted struct {
	size    int64
	modTime time.Time
	sig     uint64
}

// FakeCompactor stands in for the compaction tool.
//
// Size reports the logical length of a file, unless the file was compacted
// by this fake and has not changed since, in which case it reports half
// the length. Editing a file therefore changes its signature, like a real
// rewrite that lands uncompressed.
type FakeCompactor struct {
	mu        sync.Mutex
	done      map[string]compacted
	calls     []CompactCall
	cleared   []string
	fail      map[string]bool
	active    int
	maxActive int

	// Block, when non-nil, makes Compact wait until it is closed
	Block chan struct{}

	// BlockOnly limits Block to a single path when set
	BlockOnly string

	// Started receives the path of every Compact call when non-nil
	Started chan string
}

// NewFakeCompactor creates a fake with no failures
func NewFakeCompactor() *FakeCompactor {
	return &FakeCompactor{
		done: make(map[string]compacted),
		fail: make(map[string]bool),
	}
}

// FailOn makes Compact fail for path
func (f *FakeCompactor) FailOn(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[path] = true
}

// ClearFailures makes every path succeed again
func (f *FakeCompactor) ClearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = make(map[string]bool)
}

// Compact implements dispatch.Compactor
func (f *FakeCompactor) Compact(path string, force bool) (compact.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, CompactCall{Path: path, Force: force})
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	failing := f.fail[path]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.Started != nil {
		f.Started <- path
	}
	if f.Block != nil && (f.BlockOnly == "" || f.BlockOnly == path) {
		<-f.Block
	}

	if failing {
		return compact.Result{Output: "access denied", ExitCode: 1},
			fmt.Errorf("%w: exit status 1", domain.ErrCompactFailed)
	}

	info, err := os.Stat(path)
	if err != nil {
		return compact.Result{ExitCode: 1}, fmt.Errorf("%w: %v", domain.ErrCompactFailed, err)
	}

	sig := uint64(info.Size()+1) / 2
	f.mu.Lock()
	f.done[path] = compacted{size: info.Size(), modTime: info.ModTime(), sig: sig}
	f.mu.Unlock()

	return compact.Result{Output: "1 files compressed", Signature: sig}, nil
}

// ClearCompressedFlag implements dispatch.Compactor
func (f *FakeCompactor) ClearCompressedFlag(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, path)
	return nil
}

// Size implements dispatch.Compactor
func (f *FakeCompactor) Size(path string) uint64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.done[path]; ok && c.size == info.Size() && c.modTime.Equal(info.ModTime()) {
		return c.sig
	}
	return uint64(info.Size())
}

// UncompressDir implements walker.DirClearer
func (f *FakeCompactor) UncompressDir(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, path)
	return nil
}

// Calls returns a copy of the recorded Compact calls
func (f *FakeCompactor) Calls() []CompactCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CompactCall(nil), f.calls...)
}

// Cleared returns the paths whose compression flag was cleared
func (f *FakeCompactor) Cleared() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cleared...)
}

// MaxActive returns the highest number of concurrent Compact calls
func (f *FakeCompactor) MaxActive() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

// CalledWith reports whether Compact was called for path
func (f *FakeCompactor) CalledWith(path string) bool {
	for _, c := range f.Calls() {
		if c.Path == path {
			return true
		}
	}
	return false
}
