package cache

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Ning0612/lzxauto/internal/domain"
)

func TestStore_LoadMissing(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "filedict.db"))

	c, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}
}

func TestStore_LoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filedict.db")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}

	c, err := NewStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "filedict.db")
	store := NewStore(path)

	c := New()
	for i := 0; i < 5000; i++ {
		c.Set(IdentityOf(filepath.Join("/data", "dir", string(rune('a'+i%26)), "f"+string(rune('0'+i%10)))), uint64(i))
		c.Set(Identity(i), uint64(i)*4096)
	}

	if err := store.Save(c); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Len() != c.Len() {
		t.Fatalf("loaded %d entries, want %d", loaded.Len(), c.Len())
	}
	for id, sig := range c.Snapshot() {
		if got, ok := loaded.Get(id); !ok || got != sig {
			t.Fatalf("entry %d = (%d, %v), want %d", id, got, ok, sig)
		}
	}
}

func TestStore_SaveEmptyCache(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "filedict.db"))

	if err := store.Save(New()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	c, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}
}

func TestStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "filedict.db"))

	c := New()
	c.Set(1, 1)
	for i := 0; i < 3; i++ {
		if err := store.Save(c); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "filedict.db" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("unexpected files in data dir: %v", names)
	}
}

func TestStore_LoadCorrupt(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "filedict.db"))

	c := New()
	for i := 0; i < 100; i++ {
		c.Set(Identity(i), uint64(i))
	}
	if err := store.Save(c); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	valid, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}

	flipped := append([]byte(nil), valid...)
	flipped[len(flipped)-1] ^= 0xFF

	tests := []struct {
		name string
		data []byte
	}{
		{"garbage", []byte("not a snapshot at all")},
		{"bad magic", append([]byte("XXXX"), valid[4:]...)},
		{"truncated", valid[:len(valid)/2]},
		{"checksum mismatch", flipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := os.WriteFile(store.Path(), tt.data, 0644); err != nil {
				t.Fatal(err)
			}
			_, err := store.Load()
			if !errors.Is(err, domain.ErrCacheCorrupt) {
				t.Errorf("expected ErrCacheCorrupt, got %v", err)
			}
		})
	}
}

func TestStore_Reset(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "filedict.db"))

	c := New()
	c.Set(1, 1)
	if err := store.Save(c); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := store.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Error("snapshot still exists after Reset")
	}

	// Resetting twice is not an error
	if err := store.Reset(); err != nil {
		t.Errorf("second Reset() error = %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Len() != 0 {
		t.Errorf("expected cold cache after reset, got %d entries", loaded.Len())
	}
}

func TestStore_ConcurrentSavesWithWriters(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "filedict.db"))
	c := New()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				c.Set(Identity(w*500+i), uint64(i))
			}
		}(w)
	}
	for s := 0; s < 4; s++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Save(c); err != nil {
				t.Errorf("Save() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if err := store.Save(c); err != nil {
		t.Fatalf("final Save() error = %v", err)
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Len() != 2000 {
		t.Errorf("loaded %d entries, want 2000", loaded.Len())
	}
}
