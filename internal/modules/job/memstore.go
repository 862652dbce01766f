// README: In-memory job store for tests and local runs without Postgres.
package job

import (
	"context"
	"sort"
	"sync"

	"plow/internal/types"
)

type MemStore struct {
	mu     sync.RWMutex
	jobs   map[types.ID]*Job
	events map[types.ID][]*Event
	nextID int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		jobs:   make(map[types.ID]*Job),
		events: make(map[types.ID][]*Event),
	}
}

func (s *MemStore) Create(_ context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; ok {
		return ErrConflict
	}
	if j.Status.Active() && s.hasActive(*j.OperatorID, j.ID) {
		return ErrOperatorBusy
	}
	s.jobs[j.ID] = j.Clone()
	return nil
}

func (s *MemStore) Get(_ context.Context, id types.ID) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

func (s *MemStore) Update(_ context.Context, j *Job, expected int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.jobs[j.ID]
	if !ok {
		return false, ErrNotFound
	}
	if cur.Version != expected {
		return false, nil
	}
	// Mirrors the partial unique index in Postgres.
	if j.Status.Active() && j.OperatorID != nil && s.hasActive(*j.OperatorID, j.ID) {
		return false, ErrOperatorBusy
	}
	j.Version = expected + 1
	s.jobs[j.ID] = j.Clone()
	return true, nil
}

func (s *MemStore) hasActive(operatorID, except types.ID) bool {
	for id, j := range s.jobs {
		if id != except && j.Status.Active() && j.IsOperator(operatorID) {
			return true
		}
	}
	return false
}

func (s *MemStore) ListByOperator(_ context.Context, operatorID types.ID, statuses ...Status) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Job
	for _, j := range s.jobs {
		if j.IsOperator(operatorID) && statusIn(j.Status, statuses) {
			out = append(out, j.Clone())
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *MemStore) ListByClient(_ context.Context, clientID types.ID) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Job
	for _, j := range s.jobs {
		if j.ClientID == clientID {
			out = append(out, j.Clone())
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *MemStore) AppendEvent(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	cp := *e
	cp.ID = s.nextID
	s.events[e.JobID] = append(s.events[e.JobID], &cp)
	return nil
}

func (s *MemStore) Events(_ context.Context, jobID types.ID) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Event, 0, len(s.events[jobID]))
	for _, e := range s.events[jobID] {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

// LockOperator is a no-op: the memory unit of work already runs exclusively.
func (s *MemStore) LockOperator(context.Context, types.ID) error {
	return nil
}

func statusIn(s Status, statuses []Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

func sortByCreated(jobs []*Job) {
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].ID < jobs[k].ID
		}
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
}
