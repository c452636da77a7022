package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSessionCapacity bounds live sessions when no capacity is configured.
const DefaultSessionCapacity = 1024

// SessionOptions configures sessions created by a SessionManager.
type SessionOptions struct {
	State            SessionStateStore
	RejectOutOfRange bool
	Observability    Observability
}

// Session is the per-user context object: one FilterStore, one widget per
// page and the engine that keeps them in agreement. Sessions share only the
// immutable dashboard.
type Session struct {
	id        string
	dashboard *Dashboard
	store     *FilterStore
	engine    *SyncEngine
	byTarget  map[string]*Widget
	createdAt time.Time
	closeOnce sync.Once
}

// NewSession builds widgets from the dashboard controls and activates the
// engine, seeding the store from the dashboard bounds.
func NewSession(ctx context.Context, id string, d *Dashboard, opts SessionOptions) (*Session, error) {
	if d == nil {
		return nil, fmt.Errorf("session %s: dashboard required", id)
	}
	obs := opts.Observability.withDefaults()
	store := NewFilterStore(id, opts.State)
	if _, err := store.Restore(ctx); err != nil {
		return nil, fmt.Errorf("session %s: restore filter: %w", id, err)
	}
	s := &Session{
		id:        id,
		dashboard: d,
		store:     store,
		byTarget:  make(map[string]*Widget),
		createdAt: obs.Clock.Now(),
	}
	widgets := make([]*Widget, 0, len(d.pages))
	for _, control := range d.Controls() {
		w, err := NewWidget(control.Prefix, control.TargetComponents(), control.Selector.Value, d.Bounds())
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", id, err)
		}
		for _, target := range w.Targets() {
			s.byTarget[target] = w
		}
		widgets = append(widgets, w)
	}
	engine, err := NewSyncEngine(SyncEngineConfig{
		SessionID:        id,
		Store:            store,
		Widgets:          widgets,
		Renderer:         d,
		Bounds:           d.Bounds(),
		RejectOutOfRange: opts.RejectOutOfRange,
		Observability:    obs,
	})
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	s.engine = engine
	if _, err := engine.Activate(ctx); err != nil {
		engine.Close()
		return nil, err
	}
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Dashboard returns the shared dashboard.
func (s *Session) Dashboard() *Dashboard { return s.dashboard }

// Store returns the session filter store.
func (s *Session) Store() *FilterStore { return s.store }

// Engine returns the session sync engine.
func (s *Session) Engine() *SyncEngine { return s.engine }

// Filter returns the canonical filter value.
func (s *Session) Filter() (FilterRange, bool) { return s.store.Get() }

// Interact forwards a user change on the control to the engine.
func (s *Session) Interact(ctx context.Context, controlID string, value FilterRange) (SyncResult, error) {
	return s.engine.Interact(ctx, controlID, value)
}

// FilterFor returns the filter a component is rendered with: the value of the
// widget targeting it, or the store value when no widget targets it.
func (s *Session) FilterFor(componentID string) *FilterRange {
	if w, ok := s.byTarget[componentID]; ok {
		return w.Current().Ptr()
	}
	if v, ok := s.store.Get(); ok {
		return v.Ptr()
	}
	return nil
}

// Render renders a component with FilterFor(componentID).
func (s *Session) Render(ctx context.Context, componentID string) (ChartArtifact, error) {
	return s.dashboard.RenderComponent(ctx, componentID, s.FilterFor(componentID))
}

// Close detaches the engine from the store.
func (s *Session) Close() {
	s.closeOnce.Do(s.engine.Close)
}

// SessionManager holds live sessions in an LRU. Evicted sessions are closed
// and their mirrored state deleted.
type SessionManager struct {
	dashboard *Dashboard
	opts      SessionOptions
	obs       Observability
	sessions  *lru.Cache[string, *Session]
}

// NewSessionManager returns a manager holding at most capacity sessions.
func NewSessionManager(d *Dashboard, capacity int, opts SessionOptions) (*SessionManager, error) {
	if d == nil {
		return nil, fmt.Errorf("session manager: dashboard required")
	}
	if capacity <= 0 {
		capacity = DefaultSessionCapacity
	}
	m := &SessionManager{dashboard: d, opts: opts, obs: opts.Observability.withDefaults()}
	cache, err := lru.NewWithEvict[string, *Session](capacity, m.evicted)
	if err != nil {
		return nil, fmt.Errorf("session manager: %w", err)
	}
	m.sessions = cache
	return m, nil
}

func (m *SessionManager) evicted(id string, s *Session) {
	s.Close()
	if m.opts.State == nil {
		return
	}
	if err := m.opts.State.Delete(context.Background(), id); err != nil {
		m.obs.Logger.Warn("delete session state", "session", id, "error", err)
	}
	m.obs.Logger.Debug("session released", "session", id)
}

// Create starts a new session with a random id.
func (m *SessionManager) Create(ctx context.Context) (*Session, error) {
	s, err := NewSession(ctx, uuid.NewString(), m.dashboard, m.opts)
	if err != nil {
		return nil, err
	}
	m.sessions.Add(s.ID(), s)
	return s, nil
}

// Get returns a live session.
func (m *SessionManager) Get(id string) (*Session, error) {
	s, ok := m.sessions.Get(id)
	if !ok {
		return nil, ErrNotFound{Entity: EntitySession, ID: id}
	}
	return s, nil
}

// Remove ends a session.
func (m *SessionManager) Remove(id string) error {
	if !m.sessions.Remove(id) {
		return ErrNotFound{Entity: EntitySession, ID: id}
	}
	return nil
}

// Len reports the number of live sessions.
func (m *SessionManager) Len() int { return m.sessions.Len() }

// IDs lists live session ids, oldest first.
func (m *SessionManager) IDs() []string { return m.sessions.Keys() }

// Purge ends every session.
func (m *SessionManager) Purge() { m.sessions.Purge() }
