// Package store defines the generic keyed record store the core consumes:
// a DatabaseModel capability (id-typed, partition-named, serializable) and
// a narrow Store interface of get/put operations over little-endian keys,
// plus an in-memory and a file-backed implementation. No transactions, no
// range scans, no interior retry policy — callers needing per-chip
// read-modify-write linearizability serialize externally (see SPEC_FULL.md §5).
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/icprovenance/rfidchain/canon"
)

// DatabaseModel is implemented by every row type persisted here:
// PublicKeyRecord (keyregistry) and CentralLedger (ledger). RecordKey
// returns the little-endian encoding of the model's identifier; Tree names
// its logical partition.
type DatabaseModel interface {
	RecordKey() []byte
	Tree() string
}

// Store is a partitioned byte-oriented key/value store. Put overwrites the
// row at (tree, key); Get reports ok=false when absent.
type Store interface {
	Put(tree string, key []byte, value []byte) error
	Get(tree string, key []byte) (value []byte, ok bool, err error)
}

// PutModel canon-serializes v and writes it under its own tree and key.
func PutModel[T DatabaseModel](s Store, v T) error {
	data, err := canon.Bytes(v)
	if err != nil {
		return fmt.Errorf("store: encode %T: %w", v, err)
	}
	if err := s.Put(v.Tree(), v.RecordKey(), data); err != nil {
		return fmt.Errorf("store: put %T: %w", v, err)
	}
	return nil
}

// GetModel reads and canon-decodes the row at (tree, key) into out. ok is
// false, with no error, when the row does not exist.
func GetModel[T any](s Store, tree string, key []byte, out *T) (ok bool, err error) {
	raw, ok, err := s.Get(tree, key)
	if err != nil {
		return false, fmt.Errorf("store: get from %s: %w", tree, err)
	}
	if !ok {
		return false, nil
	}
	if err := canon.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("store: decode from %s: %w", tree, err)
	}
	return true, nil
}

// MemStore is an in-memory Store, safe for concurrent use. The tests use
// it in place of FileStore.
type MemStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemStore returns an empty, ready-to-use MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string]map[string][]byte)}
}

func (m *MemStore) Put(tree string, key []byte, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.data[tree]
	if !ok {
		t = make(map[string][]byte)
		m.data[tree] = t
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	t[string(key)] = cp
	return nil
}

func (m *MemStore) Get(tree string, key []byte) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.data[tree]
	if !ok {
		return nil, false, nil
	}
	v, ok := t[string(key)]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

// FileStore persists each (tree, key) row as its own file under
// baseDir/tree/<hex key>.json — one JSON blob per row, mirroring the
// one-file-per-dataset layout the directory cache in the teacher repo
// uses, just keyed per row instead of per dataset. Concurrent callers
// share one mutex; this is plumbing, not a high-throughput store.
type FileStore struct {
	mu      sync.Mutex
	baseDir string
}

// NewFileStore roots a FileStore at baseDir, creating it if necessary.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create base dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (f *FileStore) rowPath(tree string, key []byte) string {
	return filepath.Join(f.baseDir, tree, fmt.Sprintf("%x.json", key))
}

func (f *FileStore) Put(tree string, key []byte, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := f.rowPath(tree, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("store: create tree dir: %w", err)
	}
	if err := os.WriteFile(path, value, 0o600); err != nil {
		return fmt.Errorf("store: write row: %w", err)
	}
	return nil
}

func (f *FileStore) Get(tree string, key []byte) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.rowPath(tree, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: read row: %w", err)
	}
	return data, true, nil
}
