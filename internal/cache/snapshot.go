package cache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/Ning0612/lzxauto/internal/domain"
	"github.com/Ning0612/lzxauto/internal/logger"
)

const (
	snapshotMagic   = "LZXC"
	snapshotVersion = 1

	recordSize   = 16 // identity + signature, little endian
	checksumSize = 8
)

// Store persists a Cache as one snapshot file.
// Save calls are serialized; the file on disk is always a complete snapshot.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store for the snapshot at path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the snapshot location
func (s *Store) Path() string {
	return s.path
}

// Load reads the snapshot. A missing or empty file yields an empty cache.
// Any decoding problem returns domain.ErrCacheCorrupt.
func (s *Store) Load() (*Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Get().Info("change cache snapshot not found, starting cold", "path", s.path)
			return New(), nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	if len(data) == 0 {
		return New(), nil
	}

	entries, err := decodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrCacheCorrupt, s.path, err)
	}

	logger.Get().Info("change cache loaded", "path", s.path, "entries", len(entries))
	return newWithEntries(entries), nil
}

// Save writes a point-in-time copy of c, replacing the previous snapshot
// through a temp file and rename
func (s *Store) Save(c *Cache) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := c.Snapshot()
	data, err := encodeSnapshot(entries)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".filedict-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}

	logger.Get().Debug("change cache saved", "path", s.path, "entries", len(entries), "bytes", len(data))
	return nil
}

// Reset deletes the snapshot so the next session starts cold
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}

// encodeSnapshot lays out: magic | version | uvarint count | zstd(records) | xxhash64(records)
func encodeSnapshot(entries map[Identity]uint64) ([]byte, error) {
	keys := make([]Identity, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	payload := make([]byte, 0, len(keys)*recordSize)
	for _, k := range keys {
		payload = binary.LittleEndian.AppendUint64(payload, uint64(k))
		payload = binary.LittleEndian.AppendUint64(payload, entries[k])
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	defer enc.Close()

	var buf bytes.Buffer
	buf.WriteString(snapshotMagic)
	buf.WriteByte(snapshotVersion)
	buf.Write(binary.AppendUvarint(nil, uint64(len(keys))))
	if len(payload) > 0 {
		buf.Write(enc.EncodeAll(payload, nil))
	}
	buf.Write(binary.LittleEndian.AppendUint64(nil, xxhash.Sum64(payload)))

	return buf.Bytes(), nil
}

func decodeSnapshot(data []byte) (map[Identity]uint64, error) {
	header := len(snapshotMagic) + 1
	if len(data) < header+1+checksumSize {
		return nil, fmt.Errorf("truncated snapshot (%d bytes)", len(data))
	}
	if string(data[:len(snapshotMagic)]) != snapshotMagic {
		return nil, fmt.Errorf("bad magic")
	}
	if v := data[len(snapshotMagic)]; v != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", v)
	}

	count, n := binary.Uvarint(data[header:])
	if n <= 0 {
		return nil, fmt.Errorf("bad entry count")
	}

	body := data[header+n : len(data)-checksumSize]
	want := binary.LittleEndian.Uint64(data[len(data)-checksumSize:])

	var payload []byte
	if len(body) > 0 {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()

		payload, err = dec.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress: %w", err)
		}
	}
	if len(payload)%recordSize != 0 || uint64(len(payload)/recordSize) != count {
		return nil, fmt.Errorf("payload holds %d bytes, header declares %d entries", len(payload), count)
	}
	if got := xxhash.Sum64(payload); got != want {
		return nil, fmt.Errorf("checksum mismatch")
	}

	entries := make(map[Identity]uint64, count)
	for off := 0; off < len(payload); off += recordSize {
		id := Identity(binary.LittleEndian.Uint64(payload[off:]))
		entries[id] = binary.LittleEndian.Uint64(payload[off+8:])
	}
	return entries, nil
}
