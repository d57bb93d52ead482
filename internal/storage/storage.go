// Package storage is a small file-backed JSON store used for state that
// must survive process restarts, such as the directory trust list.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned when a key has never been written.
var ErrNotFound = errors.New("not found")

// Store persists one JSON document per key under a base directory.
type Store struct {
	basePath string

	mu    sync.Mutex
	locks map[string]*FileLock
}

// New creates a store rooted at basePath. The directory is created on
// first write.
func New(basePath string) *Store {
	return &Store{
		basePath: basePath,
		locks:    make(map[string]*FileLock),
	}
}

func (s *Store) file(key string) string {
	return filepath.Join(s.basePath, key+".json")
}

// Get reads the document stored under key into v.
func (s *Store) Get(key string, v any) error {
	data, err := os.ReadFile(s.file(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Put writes v under key. The write is atomic: data goes to a temp file
// that is renamed into place while holding a flock, so concurrent daemons
// sharing a data directory cannot interleave partial writes.
func (s *Store) Put(key string, v any) error {
	path := s.file(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", key, err)
	}

	lock := s.lockFor(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

// Delete removes the document under key. Deleting a missing key is a
// no-op.
func (s *Store) Delete(key string) error {
	path := s.file(key)

	lock := s.lockFor(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	defer lock.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Exists reports whether key has been written.
func (s *Store) Exists(key string) bool {
	_, err := os.Stat(s.file(key))
	return err == nil
}

func (s *Store) lockFor(path string) *FileLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[path]
	if !ok {
		lock = NewFileLock(path)
		s.locks[path] = lock
	}
	return lock
}
