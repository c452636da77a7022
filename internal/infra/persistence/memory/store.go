// Package memory keeps session filter state in process memory.
package memory

import (
	"context"
	"sort"
	"sync"

	"crossfilter/internal/infra/persistence"
	"crossfilter/pkg/dashapi"
)

var _ persistence.StateStore = (*Store)(nil)

// Store holds serialized payloads keyed by session then store id.
type Store struct {
	mu    sync.RWMutex
	state map[string]map[string][]byte
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{state: make(map[string]map[string][]byte)}
}

func (s *Store) Load(_ context.Context, sessionID, storeID string) (dashapi.FilterRange, bool, error) {
	if err := persistence.CheckKey(sessionID, storeID); err != nil {
		return dashapi.FilterRange{}, false, err
	}
	s.mu.RLock()
	payload, ok := s.state[sessionID][storeID]
	s.mu.RUnlock()
	if !ok {
		return dashapi.FilterRange{}, false, nil
	}
	value, err := persistence.Decode(payload)
	if err != nil {
		return dashapi.FilterRange{}, false, err
	}
	return value, true, nil
}

func (s *Store) Save(_ context.Context, sessionID, storeID string, value dashapi.FilterRange) error {
	if err := persistence.CheckKey(sessionID, storeID); err != nil {
		return err
	}
	payload, err := persistence.Encode(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stores, ok := s.state[sessionID]
	if !ok {
		stores = make(map[string][]byte)
		s.state[sessionID] = stores
	}
	stores[storeID] = payload
	return nil
}

func (s *Store) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.state, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *Store) Sessions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.state))
	for id := range s.state {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) Close() error { return nil }
