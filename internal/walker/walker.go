package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"

	"github.com/Ning0612/lzxauto/internal/compact"
	"github.com/Ning0612/lzxauto/internal/domain"
	"github.com/Ning0612/lzxauto/internal/logger"
)

// VisitFunc receives each regular file. Returning an error stops the walk.
type VisitFunc func(item domain.WorkItem) error

// DirClearer clears the native compression flag of a directory
type DirClearer interface {
	UncompressDir(path string) error
}

// Walker enumerates the files of a directory tree
type Walker struct {
	fs      afero.Fs
	clearer DirClearer
	attrs   func(fs.FileInfo) domain.Attributes
}

// Option configures a Walker
type Option func(*Walker)

// WithAttributes overrides how entry attributes are read
func WithAttributes(fn func(fs.FileInfo) domain.Attributes) Option {
	return func(w *Walker) {
		w.attrs = fn
	}
}

// New creates a walker over fsys. clearer may be nil.
func New(fsys afero.Fs, clearer DirClearer, opts ...Option) *Walker {
	w := &Walker{
		fs:      fsys,
		clearer: clearer,
		attrs:   compact.AttributesOf,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// subtreeError marks a directory that could not be enumerated
type subtreeError struct {
	path string
	err  error
}

func (e *subtreeError) Error() string {
	return fmt.Sprintf("enumerate %s: %v", e.path, e.err)
}

func (e *subtreeError) Unwrap() error {
	return e.err
}

// Walk visits every regular file under root: the direct files of a directory
// first, then each subdirectory recursively. A subdirectory that cannot be
// enumerated is logged and skipped. Symlinks are not followed.
//
// Walk returns a wrapped domain error when root itself cannot be enumerated,
// ctx.Err() on cancellation, or the first error returned by visit.
func (w *Walker) Walk(ctx context.Context, root string, visit VisitFunc) error {
	info, err := w.fs.Stat(root)
	if err != nil {
		return topLevelError(root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", domain.ErrNotDirectory, root)
	}

	err = w.walkDir(ctx, root, visit)
	var se *subtreeError
	if errors.As(err, &se) {
		return topLevelError(root, se.err)
	}
	return err
}

func (w *Walker) walkDir(ctx context.Context, dir string, visit VisitFunc) error {
	entries, err := afero.ReadDir(w.fs, dir)
	if err != nil {
		return &subtreeError{path: dir, err: err}
	}

	var subdirs []fs.FileInfo
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch {
		case entry.IsDir():
			subdirs = append(subdirs, entry)
		case entry.Mode().IsRegular():
			item := domain.WorkItem{
				Path:  filepath.Join(dir, entry.Name()),
				Size:  entry.Size(),
				Attrs: w.attrs(entry),
			}
			if err := visit(item); err != nil {
				return err
			}
		}
	}

	log := logger.Get()
	for _, sub := range subdirs {
		if err := ctx.Err(); err != nil {
			return err
		}

		path := filepath.Join(dir, sub.Name())
		if err := w.walkDir(ctx, path, visit); err != nil {
			var se *subtreeError
			if !errors.As(err, &se) {
				return err
			}
			log.Warn("skipping subtree", "path", se.path, "error", se.err)
			continue
		}

		if w.clearer != nil && w.attrs(sub).Has(domain.AttrCompressed) {
			log.Info("clearing native compression on directory", "path", path)
			if err := w.clearer.UncompressDir(path); err != nil {
				log.Warn("failed to clear directory compression", "path", path, "error", err)
			}
		}
	}

	return nil
}

// topLevelError maps a failure on the root to a domain error
func topLevelError(root string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %s", domain.ErrRootNotFound, root)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, root)
	case isPathTooLong(err):
		return fmt.Errorf("%w: %s", domain.ErrPathTooLong, root)
	case errors.Is(err, syscall.ENOTDIR):
		return fmt.Errorf("%w: %s", domain.ErrNotDirectory, root)
	default:
		return fmt.Errorf("walk %s: %w", root, err)
	}
}
