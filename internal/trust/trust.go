// Package trust decides which project directories the daemon is allowed
// to serve. Every session operation is gated on the trust list before the
// session registry is touched.
package trust

import (
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/agentd-ai/agentd/internal/storage"
)

const storeKey = "trusted_folders"

// Entry records one trusted directory.
type Entry struct {
	Path      string    `json:"path"`
	TrustedAt time.Time `json:"trustedAt"`
}

// Service maintains the persisted trust list.
type Service struct {
	mu      sync.RWMutex
	store   *storage.Store
	entries map[string]Entry
}

// NewService loads the trust list from the given store. A missing list is
// treated as empty.
func NewService(store *storage.Store) (*Service, error) {
	s := &Service{
		store:   store,
		entries: make(map[string]Entry),
	}

	var saved []Entry
	if err := store.Get(storeKey, &saved); err != nil {
		if err != storage.ErrNotFound {
			return nil, err
		}
	}
	for _, e := range saved {
		s.entries[e.Path] = e
	}
	return s, nil
}

// IsTrusted reports whether path, or any of its ancestors, has been
// trusted.
func (s *Service) IsTrusted(path string) bool {
	path = filepath.Clean(path)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for dir := path; ; dir = filepath.Dir(dir) {
		if _, ok := s.entries[dir]; ok {
			return true
		}
		if dir == filepath.Dir(dir) {
			return false
		}
	}
}

// Trust adds path to the trust list and persists it.
func (s *Service) Trust(path string) error {
	path = filepath.Clean(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[path]; ok {
		return nil
	}
	s.entries[path] = Entry{Path: path, TrustedAt: time.Now()}
	return s.persistLocked()
}

// Revoke removes path from the trust list. Revoking an untrusted path is
// a no-op.
func (s *Service) Revoke(path string) error {
	path = filepath.Clean(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[path]; !ok {
		return nil
	}
	delete(s.entries, path)
	return s.persistLocked()
}

// List returns the trusted directories sorted by path.
func (s *Service) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Service) persistLocked() error {
	return s.store.Put(storeKey, s.snapshotLocked())
}

func (s *Service) snapshotLocked() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
