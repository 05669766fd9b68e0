package walker

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"

	"github.com/spf13/afero"

	"github.com/Ning0612/lzxauto/internal/domain"
)

// denyFs refuses to open the listed directories
type denyFs struct {
	afero.Fs
	denied map[string]bool
}

func (d *denyFs) Open(name string) (afero.File, error) {
	if d.denied[filepath.Clean(name)] {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return d.Fs.Open(name)
}

type recordingClearer struct {
	mu      sync.Mutex
	cleared []string
}

func (r *recordingClearer) UncompressDir(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = append(r.cleared, path)
	return nil
}

func buildTree(t *testing.T, fsys afero.Fs, files map[string]int) {
	t.Helper()
	for path, size := range files {
		if err := fsys.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := afero.WriteFile(fsys, path, make([]byte, size), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

// attrsByName marks entries whose base name is listed
func attrsByName(m map[string]domain.Attributes) Option {
	return WithAttributes(func(info fs.FileInfo) domain.Attributes {
		return m[info.Name()]
	})
}

func collect(items *[]domain.WorkItem) VisitFunc {
	return func(item domain.WorkItem) error {
		*items = append(*items, item)
		return nil
	}
}

func paths(items []domain.WorkItem) string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = filepath.ToSlash(it.Path)
	}
	return strings.Join(out, ",")
}

func TestWalk_FilesBeforeSubdirectories(t *testing.T) {
	fsys := afero.NewMemMapFs()
	buildTree(t, fsys, map[string]int{
		"/r/z.txt":          3,
		"/r/a.txt":          1,
		"/r/sub/b.txt":      2,
		"/r/sub/deep/c.txt": 4,
		"/r/m/d.txt":        5,
	})

	var items []domain.WorkItem
	if err := New(fsys, nil).Walk(context.Background(), "/r", collect(&items)); err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	want := "/r/a.txt,/r/z.txt,/r/m/d.txt,/r/sub/b.txt,/r/sub/deep/c.txt"
	if got := paths(items); got != want {
		t.Errorf("visit order = %s\nwant %s", got, want)
	}
	if items[0].Size != 1 || items[4].Size != 4 {
		t.Errorf("sizes not carried: %+v", items)
	}
}

func TestWalk_EmptyRoot(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := fsys.MkdirAll("/empty", 0755); err != nil {
		t.Fatal(err)
	}

	var items []domain.WorkItem
	if err := New(fsys, nil).Walk(context.Background(), "/empty", collect(&items)); err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no items, got %d", len(items))
	}
}

func TestWalk_InaccessibleSubtreeIsSkipped(t *testing.T) {
	base := afero.NewMemMapFs()
	buildTree(t, base, map[string]int{
		"/r/root.txt":          1,
		"/r/locked/secret.txt": 1,
		"/r/locked/in/x.txt":   1,
		"/r/open/ok.txt":       1,
	})
	fsys := &denyFs{Fs: base, denied: map[string]bool{"/r/locked": true}}

	var items []domain.WorkItem
	if err := New(fsys, nil).Walk(context.Background(), "/r", collect(&items)); err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	if got := paths(items); got != "/r/root.txt,/r/open/ok.txt" {
		t.Errorf("visited = %s", got)
	}
}

func TestWalk_TopLevelErrors(t *testing.T) {
	base := afero.NewMemMapFs()
	buildTree(t, base, map[string]int{
		"/denied/a.txt": 1,
		"/file.txt":     1,
	})
	fsys := &denyFs{Fs: base, denied: map[string]bool{"/denied": true}}

	tests := []struct {
		name string
		root string
		want error
	}{
		{"missing", "/nope", domain.ErrRootNotFound},
		{"denied", "/denied", domain.ErrPermissionDenied},
		{"not a directory", "/file.txt", domain.ErrNotDirectory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			visited := 0
			err := New(fsys, nil).Walk(context.Background(), tt.root, func(domain.WorkItem) error {
				visited++
				return nil
			})
			if !errors.Is(err, tt.want) {
				t.Errorf("Walk() error = %v, want %v", err, tt.want)
			}
			if visited != 0 {
				t.Errorf("visited %d files on failed root", visited)
			}
		})
	}
}

func TestTopLevelError_Mapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"not exist", &os.PathError{Op: "open", Path: "/r", Err: os.ErrNotExist}, domain.ErrRootNotFound},
		{"permission", &os.PathError{Op: "open", Path: "/r", Err: os.ErrPermission}, domain.ErrPermissionDenied},
		{"name too long", &os.PathError{Op: "stat", Path: "/r", Err: syscall.ENAMETOOLONG}, domain.ErrPathTooLong},
		{"not a directory", &os.PathError{Op: "open", Path: "/r", Err: syscall.ENOTDIR}, domain.ErrNotDirectory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := topLevelError("/r", tt.err); !errors.Is(err, tt.want) {
				t.Errorf("topLevelError() = %v, want %v", err, tt.want)
			}
		})
	}

	other := errors.New("device not ready")
	err := topLevelError("/r", other)
	if !errors.Is(err, other) || !strings.Contains(err.Error(), "walk /r") {
		t.Errorf("unmapped error should be wrapped, got %v", err)
	}
}

func TestWalk_Cancellation(t *testing.T) {
	fsys := afero.NewMemMapFs()
	buildTree(t, fsys, map[string]int{
		"/r/1.txt":   1,
		"/r/2.txt":   1,
		"/r/3.txt":   1,
		"/r/s/4.txt": 1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	visited := 0
	err := New(fsys, nil).Walk(ctx, "/r", func(domain.WorkItem) error {
		visited++
		if visited == 2 {
			cancel()
		}
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Walk() error = %v, want context.Canceled", err)
	}
	if visited != 2 {
		t.Errorf("visited = %d, want 2", visited)
	}
}

func TestWalk_VisitErrorStopsWalk(t *testing.T) {
	fsys := afero.NewMemMapFs()
	buildTree(t, fsys, map[string]int{
		"/r/a.txt":   1,
		"/r/s/b.txt": 1,
	})

	stop := errors.New("stop")
	visited := 0
	err := New(fsys, nil).Walk(context.Background(), "/r", func(domain.WorkItem) error {
		visited++
		return stop
	})

	if !errors.Is(err, stop) {
		t.Errorf("Walk() error = %v, want stop", err)
	}
	if visited != 1 {
		t.Errorf("visited = %d, want 1", visited)
	}
}

func TestWalk_ClearsCompressedDirectoriesAfterSubtree(t *testing.T) {
	base := afero.NewMemMapFs()
	buildTree(t, base, map[string]int{
		"/r/ntfs/a.txt":       1,
		"/r/ntfs/inner/b.txt": 1,
		"/r/plain/c.txt":      1,
		"/r/lockedntfs/d.txt": 1,
	})
	fsys := &denyFs{Fs: base, denied: map[string]bool{"/r/lockedntfs": true}}
	clearer := &recordingClearer{}

	var order []string
	visit := func(item domain.WorkItem) error {
		order = append(order, filepath.ToSlash(item.Path))
		return nil
	}
	tracking := &orderClearer{inner: clearer, order: &order}

	attrs := attrsByName(map[string]domain.Attributes{
		"ntfs":       domain.AttrDirectory | domain.AttrCompressed,
		"inner":      domain.AttrDirectory | domain.AttrCompressed,
		"lockedntfs": domain.AttrDirectory | domain.AttrCompressed,
		"plain":      domain.AttrDirectory,
	})

	if err := New(fsys, tracking, attrs).Walk(context.Background(), "/r", visit); err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	want := "/r/ntfs/a.txt,/r/ntfs/inner/b.txt,clear:/r/ntfs/inner,clear:/r/ntfs,/r/plain/c.txt"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("order = %s\nwant %s", got, want)
	}
	if len(clearer.cleared) != 2 {
		t.Errorf("cleared %v, want 2 directories", clearer.cleared)
	}
}

type orderClearer struct {
	inner *recordingClearer
	order *[]string
}

func (o *orderClearer) UncompressDir(path string) error {
	*o.order = append(*o.order, "clear:"+filepath.ToSlash(path))
	return o.inner.UncompressDir(path)
}

func TestWalk_AttributesOnItems(t *testing.T) {
	fsys := afero.NewMemMapFs()
	buildTree(t, fsys, map[string]int{
		"/r/sys.dat": 10,
		"/r/cmp.dat": 10,
	})

	var items []domain.WorkItem
	attrs := attrsByName(map[string]domain.Attributes{
		"sys.dat": domain.AttrSystem,
		"cmp.dat": domain.AttrCompressed,
	})
	if err := New(fsys, nil, attrs).Walk(context.Background(), "/r", collect(&items)); err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("got %d items", len(items))
	}
	if !items[0].Attrs.Has(domain.AttrCompressed) || !items[1].Attrs.Has(domain.AttrSystem) {
		t.Errorf("attributes not carried: %+v", items)
	}
}
