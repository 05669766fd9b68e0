package compact

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"

	"github.com/Ning0612/lzxauto/internal/domain"
	"github.com/Ning0612/lzxauto/internal/logger"
)

// Result is the outcome of one tool invocation
type Result struct {
	// Output is the combined stdout/stderr of the tool
	Output string

	// ExitCode is the process exit status (-1 if it never ran)
	ExitCode int

	// Signature is the on-disk allocated size of the file after the run
	Signature uint64
}

// Options configures an Invoker
type Options struct {
	// Tool is the compaction executable, normally "compact"
	Tool string

	// Algorithm is passed as /exe:<Algorithm>
	Algorithm string

	// LowPriority runs the tool below normal scheduling priority
	LowPriority bool

	// Size overrides the signature query (defaults to AllocatedSize)
	Size func(path string) uint64
}

// Invoker runs the external compaction tool one file at a time.
// It is safe for concurrent use.
type Invoker struct {
	tool        string
	algorithm   string
	lowPriority bool
	size        func(path string) uint64
}

// New creates an Invoker
func New(opts Options) *Invoker {
	size := opts.Size
	if size == nil {
		size = AllocatedSize
	}
	return &Invoker{
		tool:        opts.Tool,
		algorithm:   opts.Algorithm,
		lowPriority: opts.LowPriority,
		size:        size,
	}
}

// Compact runs `<tool> /c /exe:<algorithm> [/f] <path>` and waits for it.
// The child is never bound to a context: a started compaction always runs to
// completion so the file is not left half rewritten.
func (inv *Invoker) Compact(path string, force bool) (Result, error) {
	res, err := inv.run(compactArgs(inv.algorithm, path, force))
	if err != nil {
		return res, err
	}
	res.Signature = inv.size(path)
	return res, nil
}

// UncompressDir runs `<tool> /u <path>` to clear the native compression flag
// on a directory so compaction below it is not suppressed
func (inv *Invoker) UncompressDir(path string) error {
	res, err := inv.run([]string{"/u", path})
	if err != nil {
		return err
	}
	logger.Get().Debug("directory uncompressed", "path", path, "output", res.Output)
	return nil
}

// ClearCompressedFlag clears the native compression flag on a single file
func (inv *Invoker) ClearCompressedFlag(path string) error {
	if err := clearCompression(path); err != nil {
		return fmt.Errorf("clear compression flag on %s: %w", path, err)
	}
	return nil
}

// Size returns the signature of path as the invoker measures it
func (inv *Invoker) Size(path string) uint64 {
	return inv.size(path)
}

func compactArgs(algorithm, path string, force bool) []string {
	args := []string{"/c", "/exe:" + algorithm}
	if force {
		args = append(args, "/f")
	}
	return append(args, path)
}

func (inv *Invoker) run(args []string) (Result, error) {
	cmd := exec.Command(inv.tool, args...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if inv.lowPriority {
		prepareLowPriority(cmd)
	}

	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("%w: %s: %v", domain.ErrToolNotFound, inv.tool, err)
	}

	if inv.lowPriority {
		if err := applyLowPriority(cmd); err != nil {
			logger.Get().Debug("failed to lower tool priority", "pid", cmd.Process.Pid, "error", err)
		}
	}

	waitErr := cmd.Wait()
	res := Result{
		Output:   out.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return res, fmt.Errorf("%w: exit status %d", domain.ErrCompactFailed, res.ExitCode)
		}
		return res, fmt.Errorf("wait for %s: %w", inv.tool, waitErr)
	}

	return res, nil
}
