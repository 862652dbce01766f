// README: In-memory ledger store.
package ledger

import (
	"context"
	"sort"
	"sync"

	"plow/internal/types"
)

type MemStore struct {
	mu      sync.RWMutex
	txns    map[types.ID]*Transaction
	entries map[types.ID][]*Entry
	nextID  int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		txns:    make(map[types.ID]*Transaction),
		entries: make(map[types.ID][]*Entry),
	}
}

func (s *MemStore) Create(_ context.Context, t *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txns[t.ID]; ok {
		return ErrConflict
	}
	for _, cur := range s.txns {
		if cur.JobID == t.JobID && cur.Generation == t.Generation {
			return ErrConflict
		}
	}
	s.txns[t.ID] = t.Clone()
	return nil
}

func (s *MemStore) Get(_ context.Context, id types.ID) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.txns[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (s *MemStore) Update(_ context.Context, t *Transaction, expected Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.txns[t.ID]
	if !ok {
		return false, ErrNotFound
	}
	if cur.Status != expected {
		return false, nil
	}
	s.txns[t.ID] = t.Clone()
	return true, nil
}

func (s *MemStore) ListByJob(_ context.Context, jobID types.ID) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Transaction
	for _, t := range s.txns {
		if t.JobID == jobID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Generation < out[k].Generation })
	return out, nil
}

func (s *MemStore) AppendEntry(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	cp := *e
	cp.ID = s.nextID
	e.ID = cp.ID
	s.entries[e.JobID] = append(s.entries[e.JobID], &cp)
	return nil
}

func (s *MemStore) Entries(_ context.Context, jobID types.ID) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, 0, len(s.entries[jobID]))
	for _, e := range s.entries[jobID] {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}
