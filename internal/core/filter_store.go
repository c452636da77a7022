package core

import (
	"context"
	"fmt"
	"sync"
)

// StoreChange is delivered to subscribers when the store value changes.
// Previous is nil for the seed write.
type StoreChange struct {
	Previous *FilterRange
	Value    FilterRange
}

// StoreSubscriber observes store changes. It runs on the writer's goroutine
// after the store lock has been released.
type StoreSubscriber func(ctx context.Context, change StoreChange)

// FilterStore is the session-scoped cell holding the canonical filter value.
// It is uninitialized until the first Set. Writes are mirrored to an optional
// SessionStateStore under the store id.
type FilterStore struct {
	sessionID string
	id        string
	state     SessionStateStore

	mu      sync.Mutex
	value   FilterRange
	set     bool
	subs    map[int]StoreSubscriber
	nextSub int
}

// NewFilterStore returns an uninitialized store for the session. state may be nil.
func NewFilterStore(sessionID string, state SessionStateStore) *FilterStore {
	return &FilterStore{
		sessionID: sessionID,
		id:        DefaultStoreID,
		state:     state,
		subs:      make(map[int]StoreSubscriber),
	}
}

// ID returns the persistence store id.
func (s *FilterStore) ID() string { return s.id }

// Get returns the current value; ok is false while uninitialized.
func (s *FilterStore) Get() (FilterRange, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.set
}

// Set stores value and notifies subscribers. Writing the current value again
// is a no-op that reports changed=false and notifies nobody.
func (s *FilterStore) Set(ctx context.Context, value FilterRange) (bool, error) {
	if err := value.Validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	var previous *FilterRange
	if s.set {
		if !transition(&s.value, value) {
			s.mu.Unlock()
			return false, nil
		}
		previous = s.value.Ptr()
	}
	if s.state != nil {
		if err := s.state.Save(ctx, s.sessionID, s.id, value); err != nil {
			s.mu.Unlock()
			return false, fmt.Errorf("persist %s for session %s: %w", s.id, s.sessionID, err)
		}
	}
	s.value = value
	s.set = true
	subs := make([]StoreSubscriber, 0, len(s.subs))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	s.mu.Unlock()

	change := StoreChange{Previous: previous, Value: value}
	for _, fn := range subs {
		fn(ctx, change)
	}
	return true, nil
}

// Restore loads a previously mirrored value without notifying subscribers.
// It reports whether a value was found.
func (s *FilterStore) Restore(ctx context.Context) (bool, error) {
	if s.state == nil {
		return false, nil
	}
	value, ok, err := s.state.Load(ctx, s.sessionID, s.id)
	if err != nil || !ok {
		return false, err
	}
	s.mu.Lock()
	s.value = value
	s.set = true
	s.mu.Unlock()
	return true, nil
}

// Subscribe registers fn and returns a function that removes it. Subscribers
// are notified in registration order.
func (s *FilterStore) Subscribe(fn StoreSubscriber) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
