package core

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"crossfilter/internal/dataset"
)

// EntityType names the kind of object a lookup failed for.
type EntityType string

const (
	EntityChart     EntityType = "chart"
	EntityComponent EntityType = "component"
	EntityDataset   EntityType = "dataset"
	EntitySession   EntityType = "session"
	EntityWidget    EntityType = "widget"
)

// ErrNotFound is returned when a lookup by id fails.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

type serviceOptions struct {
	obs              Observability
	state            SessionStateStore
	sessionCapacity  int
	rejectOutOfRange bool
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

func defaultServiceOptions() serviceOptions {
	return serviceOptions{obs: Observability{}.withDefaults()}
}

// WithClock overrides the service clock.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.obs.Clock = clock
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.obs.Logger = logger
		}
	}
}

// WithAuditRecorder sets the audit recorder.
func WithAuditRecorder(rec AuditRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if rec != nil {
			o.obs.Audit = rec
		}
	}
}

// WithMetricsRecorder sets the metrics recorder.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if rec != nil {
			o.obs.Metrics = rec
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.obs.Tracer = tracer
		}
	}
}

// WithStateStore mirrors session filter values into store.
func WithStateStore(store SessionStateStore) ServiceOption {
	return func(o *serviceOptions) { o.state = store }
}

// WithSessionCapacity bounds the number of live sessions.
func WithSessionCapacity(n int) ServiceOption {
	return func(o *serviceOptions) { o.sessionCapacity = n }
}

// WithRejectOutOfRange makes interactions outside the dataset bounds fail
// instead of being clamped.
func WithRejectOutOfRange(reject bool) ServiceOption {
	return func(o *serviceOptions) { o.rejectOutOfRange = reject }
}

// Service ties together the installed plugins, the dataset loaders, the built
// dashboard and its live sessions.
type Service struct {
	opts     serviceOptions
	datasets *dataset.Manager

	mu        sync.RWMutex
	plugins   map[string]PluginMetadata
	charts    map[string]Chart
	dashboard *Dashboard
	sessions  *SessionManager
}

// NewService constructs a service.
func NewService(opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{
		opts:     o,
		datasets: dataset.NewManager(),
		plugins:  make(map[string]PluginMetadata),
		charts:   make(map[string]Chart),
	}
}

// Datasets returns the dataset loader manager.
func (s *Service) Datasets() *dataset.Manager { return s.datasets }

// Logger returns the configured logger.
func (s *Service) Logger() Logger { return s.opts.obs.Logger }

func (s *Service) run(ctx context.Context, op, sessionID, subject string, fn func(context.Context) error) error {
	ctx, span := s.opts.obs.Tracer.Start(ctx, op)
	start := s.opts.obs.Clock.Now()
	err := fn(ctx)
	duration := s.opts.obs.Clock.Now().Sub(start)
	span.End(err)
	s.opts.obs.Metrics.Observe(ctx, op, err == nil, duration)
	entry := AuditEntry{
		Operation: op,
		SessionID: sessionID,
		Subject:   subject,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: start,
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.opts.obs.Logger.Error("operation failed", "operation", op, "session", sessionID, "subject", subject, "error", err)
	} else {
		s.opts.obs.Logger.Debug("operation completed", "operation", op, "session", sessionID, "subject", subject)
	}
	s.opts.obs.Audit.Record(ctx, entry)
	return err
}

// InstallPlugin registers a plugin's charts and datasets.
func (s *Service) InstallPlugin(plugin Plugin) (PluginMetadata, error) {
	if plugin == nil {
		return PluginMetadata{}, fmt.Errorf("plugin cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plugins[plugin.Name()]; ok {
		return PluginMetadata{}, fmt.Errorf("plugin %s already registered", plugin.Name())
	}

	registry := NewPluginRegistry()
	if err := plugin.Register(registry); err != nil {
		return PluginMetadata{}, err
	}
	charts := registry.Charts()
	for _, chart := range charts {
		if _, exists := s.charts[chart.Key]; exists {
			return PluginMetadata{}, fmt.Errorf("plugin %s: chart %s already registered", plugin.Name(), chart.Key)
		}
	}
	sources := registry.Datasets()
	names := make([]string, 0, len(sources))
	for name := range sources {
		if _, exists := s.datasets.Loader(name); exists {
			return PluginMetadata{}, fmt.Errorf("plugin %s: dataset %s already registered", plugin.Name(), name)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := s.datasets.Register(name, sources[name]); err != nil {
			return PluginMetadata{}, err
		}
	}

	meta := PluginMetadata{Name: plugin.Name(), Version: plugin.Version(), Datasets: names}
	for _, chart := range charts {
		s.charts[chart.Key] = chart
		meta.Charts = append(meta.Charts, chart.Key)
	}
	s.plugins[plugin.Name()] = meta
	s.opts.obs.Logger.Info("plugin installed", "plugin", meta.Name, "version", meta.Version, "charts", len(meta.Charts))
	return meta, nil
}

// RegisteredPlugins returns metadata describing installed plugins.
func (s *Service) RegisteredPlugins() []PluginMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PluginMetadata, 0, len(s.plugins))
	for _, meta := range s.plugins {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Chart implements ChartLookup.
func (s *Service) Chart(key string) (Chart, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.charts[key]
	return c, ok
}

// Charts returns installed charts sorted by key.
func (s *Service) Charts() []Chart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Chart, 0, len(s.charts))
	for _, c := range s.charts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// BuildDashboard builds the layout and replaces the session manager. Any
// live sessions of a previous dashboard are ended.
func (s *Service) BuildDashboard(ctx context.Context, cfg DashboardConfig) (*Dashboard, error) {
	var built *Dashboard
	err := s.run(ctx, "build_dashboard", "", cfg.Title, func(ctx context.Context) error {
		d, err := NewDashboardBuilder(cfg, s, s.datasets).WithObservability(s.opts.obs).Build(ctx)
		if err != nil {
			return err
		}
		sessions, err := NewSessionManager(d, s.opts.sessionCapacity, s.sessionOptions())
		if err != nil {
			return err
		}
		s.mu.Lock()
		previous := s.sessions
		s.dashboard = d
		s.sessions = sessions
		s.mu.Unlock()
		if previous != nil {
			previous.Purge()
		}
		built = d
		return nil
	})
	return built, err
}

func (s *Service) sessionOptions() SessionOptions {
	return SessionOptions{
		State:            s.opts.state,
		RejectOutOfRange: s.opts.rejectOutOfRange,
		Observability:    s.opts.obs,
	}
}

// Dashboard returns the built dashboard.
func (s *Service) Dashboard() (*Dashboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dashboard == nil {
		return nil, fmt.Errorf("dashboard not built")
	}
	return s.dashboard, nil
}

func (s *Service) sessionManager() (*SessionManager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sessions == nil {
		return nil, fmt.Errorf("dashboard not built")
	}
	return s.sessions, nil
}

// CreateSession starts a session and seeds its filter store.
func (s *Service) CreateSession(ctx context.Context) (*Session, error) {
	var created *Session
	err := s.run(ctx, "create_session", "", "", func(ctx context.Context) error {
		m, err := s.sessionManager()
		if err != nil {
			return err
		}
		created, err = m.Create(ctx)
		return err
	})
	return created, err
}

// Session returns a live session.
func (s *Service) Session(id string) (*Session, error) {
	m, err := s.sessionManager()
	if err != nil {
		return nil, err
	}
	return m.Get(id)
}

// CloseSession ends a session and drops its mirrored state.
func (s *Service) CloseSession(ctx context.Context, id string) error {
	return s.run(ctx, "close_session", id, "", func(context.Context) error {
		m, err := s.sessionManager()
		if err != nil {
			return err
		}
		return m.Remove(id)
	})
}

// Interact applies a user change to a session control.
func (s *Service) Interact(ctx context.Context, sessionID, controlID string, value FilterRange) (SyncResult, error) {
	var result SyncResult
	err := s.run(ctx, "interact", sessionID, controlID, func(ctx context.Context) error {
		sess, err := s.Session(sessionID)
		if err != nil {
			return err
		}
		result, err = sess.Interact(ctx, controlID, value)
		return err
	})
	return result, err
}

// Render renders a component for a session.
func (s *Service) Render(ctx context.Context, sessionID, componentID string) (ChartArtifact, error) {
	var artifact ChartArtifact
	err := s.run(ctx, "render", sessionID, componentID, func(ctx context.Context) error {
		sess, err := s.Session(sessionID)
		if err != nil {
			return err
		}
		artifact, err = sess.Render(ctx, componentID)
		return err
	})
	return artifact, err
}

// Close ends all sessions and closes the state store.
func (s *Service) Close() error {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = nil
	s.mu.Unlock()
	if sessions != nil {
		sessions.Purge()
	}
	if s.opts.state != nil {
		return s.opts.state.Close()
	}
	return nil
}
