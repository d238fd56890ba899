// Package memory provides an in-memory transcript store for testing and
// lightweight deployments. Transcripts are lost when the process
// restarts. Optional LRU eviction limits memory usage.
package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"

	"github.com/tributary-ai/tributary/pkg/storage"
)

// entry holds a stored transcript and its LRU position.
type entry struct {
	tr      *storage.Transcript
	lruElem *list.Element
}

// Store is an in-memory transcript store with optional LRU eviction.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	lruList *list.List // front = most recently used
	maxSize int        // 0 = unlimited
}

var _ storage.Store = (*Store)(nil)

// New creates an in-memory store. If maxSize is 0, the store grows
// without limit; otherwise the least recently used transcript is
// evicted when the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// Save persists a transcript in memory.
func (s *Store) Save(ctx context.Context, tr *storage.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[tr.ID]; exists {
		return storage.ErrConflict
	}
	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}
	elem := s.lruList.PushFront(tr.ID)
	s.entries[tr.ID] = &entry{tr: tr, lruElem: elem}
	return nil
}

// Get retrieves a transcript by ID and marks it recently used.
func (s *Store) Get(ctx context.Context, id string) (*storage.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	s.lruList.MoveToFront(e.lruElem)
	return e.tr, nil
}

// List returns transcripts ordered newest first by creation time.
func (s *Store) List(ctx context.Context, limit int) ([]*storage.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*storage.Transcript, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.tr)
	}
	sortByCreatedDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete removes a transcript by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return storage.ErrNotFound
	}
	s.lruList.Remove(e.lruElem)
	delete(s.entries, id)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

// Len returns the number of stored transcripts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// evictOldest removes the least recently used entry. Caller holds the lock.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, id)
}

func sortByCreatedDesc(trs []*storage.Transcript) {
	sort.Slice(trs, func(i, j int) bool {
		return trs[i].CreatedAt.After(trs[j].CreatedAt)
	})
}
