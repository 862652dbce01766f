package profile

import (
	"context"
	"sync"

	"plow/internal/types"
)

// MemStore keeps profiles in process memory.
type MemStore struct {
	mu        sync.RWMutex
	locations map[types.ID]types.Point
	payouts   map[types.ID]string
	tokens    map[types.ID]string
}

func NewMemStore() *MemStore {
	return &MemStore{
		locations: make(map[types.ID]types.Point),
		payouts:   make(map[types.ID]string),
		tokens:    make(map[types.ID]string),
	}
}

func (s *MemStore) Location(_ context.Context, userID types.ID) (*types.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.locations[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *MemStore) SetLocation(_ context.Context, userID types.ID, p types.Point) error {
	if !ValidPoint(p) {
		return ErrInvalidLocation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[userID] = p
	return nil
}

func (s *MemStore) PayoutDestination(_ context.Context, operatorID types.ID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.payouts[operatorID], nil
}

func (s *MemStore) SetPayoutDestination(_ context.Context, operatorID types.ID, dest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payouts[operatorID] = dest
	return nil
}

func (s *MemStore) DeviceToken(_ context.Context, userID types.ID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[userID], nil
}

func (s *MemStore) SetDeviceToken(_ context.Context, userID types.ID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[userID] = token
	return nil
}
