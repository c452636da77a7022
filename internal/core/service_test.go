package core_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"crossfilter/internal/core"
	"crossfilter/internal/dataset"
	"crossfilter/plugins/gapminder"
)

type auditLog struct {
	mu      sync.Mutex
	entries []core.AuditEntry
}

func (a *auditLog) Record(_ context.Context, entry core.AuditEntry) {
	a.mu.Lock()
	a.entries = append(a.entries, entry)
	a.mu.Unlock()
}

func (a *auditLog) operations() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Operation+":"+string(e.Status))
	}
	return out
}

type metricCounts struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *metricCounts) Observe(_ context.Context, op string, _ bool, _ time.Duration) {
	m.mu.Lock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[op]++
	m.mu.Unlock()
}

func (m *metricCounts) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[op]
}

func TestServiceCrossPageSynchronization(t *testing.T) {
	ctx := context.Background()
	audit := &auditLog{}
	metrics := &metricCounts{}
	svc := core.NewService(core.WithAuditRecorder(audit), core.WithMetricsRecorder(metrics))
	defer func() { _ = svc.Close() }()

	meta, err := svc.InstallPlugin(gapminder.New(nil))
	if err != nil {
		t.Fatalf("install plugin: %v", err)
	}
	if len(meta.Charts) != 3 || len(meta.Datasets) != 1 {
		t.Fatalf("unexpected plugin metadata %+v", meta)
	}
	d, err := svc.BuildDashboard(ctx, core.DefaultDashboardConfig())
	if err != nil {
		t.Fatalf("build dashboard: %v", err)
	}
	if d.Bounds() != (core.FilterRange{Min: 1952, Max: 2007}) {
		t.Fatalf("unexpected bounds %v", d.Bounds())
	}

	sess, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if v, ok := sess.Filter(); !ok || v != d.Bounds() {
		t.Fatalf("expected store seeded with bounds, got %v %v", v, ok)
	}

	result, err := svc.Interact(ctx, sess.ID(), "p1_year_range", core.FilterRange{Min: 1980, Max: 2000})
	if err != nil {
		t.Fatalf("interact: %v", err)
	}
	if len(result.Applied) != 1 || result.Applied[0] != "p2_year_range" {
		t.Fatalf("expected page two updated, got %v", result.Applied)
	}
	if got, ok := sess.Engine().Widget("p2_year_range"); !ok || got.Current() != (core.FilterRange{Min: 1980, Max: 2000}) {
		t.Fatalf("page two widget not synchronized")
	}

	scatter, err := svc.Render(ctx, sess.ID(), "scatter_chart")
	if err != nil {
		t.Fatalf("render scatter: %v", err)
	}
	if scatter.Title != "Life Expectancy vs GDP per Capita (1997)" {
		t.Fatalf("unexpected scatter title %q", scatter.Title)
	}
	bar, err := svc.Render(ctx, sess.ID(), "bar_chart")
	if err != nil {
		t.Fatalf("render bar: %v", err)
	}
	if bar.Title != "Total Population by Continent (1997)" || bar.YAxis.Title != "Population" {
		t.Fatalf("unexpected bar chart %q %q", bar.Title, bar.YAxis.Title)
	}

	if metrics.count("store.set") < 2 || metrics.count("chart.render") != 3 || metrics.count("dataset.load") != 1 {
		t.Fatalf("unexpected metrics %+v", metrics.counts)
	}
	ops := strings.Join(audit.operations(), ",")
	for _, want := range []string{"build_dashboard:success", "create_session:success", "interact:success", "render:success"} {
		if !strings.Contains(ops, want) {
			t.Fatalf("expected %s in audit trail %s", want, ops)
		}
	}
}

func TestServiceSessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	svc := core.NewService()
	defer func() { _ = svc.Close() }()
	if _, err := svc.InstallPlugin(gapminder.New(nil)); err != nil {
		t.Fatalf("install: %v", err)
	}
	if _, err := svc.BuildDashboard(ctx, core.DefaultDashboardConfig()); err != nil {
		t.Fatalf("build: %v", err)
	}
	a, _ := svc.CreateSession(ctx)
	b, _ := svc.CreateSession(ctx)
	if _, err := svc.Interact(ctx, a.ID(), "p2_year_range", core.FilterRange{Min: 1960, Max: 1970}); err != nil {
		t.Fatalf("interact: %v", err)
	}
	if v, _ := b.Filter(); v != (core.FilterRange{Min: 1952, Max: 2007}) {
		t.Fatalf("session b affected by session a: %v", v)
	}
	if err := svc.CloseSession(ctx, a.ID()); err != nil {
		t.Fatalf("close: %v", err)
	}
	var notFound core.ErrNotFound
	if _, err := svc.Session(a.ID()); !errors.As(err, &notFound) {
		t.Fatalf("expected closed session to be gone, got %v", err)
	}
}

func TestServiceRejectsDuplicatePlugin(t *testing.T) {
	svc := core.NewService()
	if _, err := svc.InstallPlugin(gapminder.New(nil)); err != nil {
		t.Fatalf("install: %v", err)
	}
	if _, err := svc.InstallPlugin(gapminder.New(nil)); err == nil {
		t.Fatal("expected duplicate plugin error")
	}
	if got := len(svc.RegisteredPlugins()); got != 1 {
		t.Fatalf("expected one plugin, got %d", got)
	}
	if got := len(svc.Charts()); got != 3 {
		t.Fatalf("expected three charts, got %d", got)
	}
}

func TestServiceBuildFailsWhenDataUnavailable(t *testing.T) {
	ctx := context.Background()
	audit := &auditLog{}
	svc := core.NewService(core.WithAuditRecorder(audit))
	failing := dataset.SourceFunc(func(context.Context) (io.ReadCloser, error) {
		return nil, errors.New("bucket offline")
	})
	if _, err := svc.InstallPlugin(gapminder.New(failing)); err != nil {
		t.Fatalf("install: %v", err)
	}
	_, err := svc.BuildDashboard(ctx, core.DefaultDashboardConfig())
	if !errors.Is(err, core.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
	if _, err := svc.Dashboard(); err == nil {
		t.Fatal("expected no dashboard after failed build")
	}
	if _, err := svc.CreateSession(ctx); err == nil {
		t.Fatal("expected session creation to fail without a dashboard")
	}
	if !strings.Contains(strings.Join(audit.operations(), ","), "build_dashboard:error") {
		t.Fatalf("expected failed build to be audited: %v", audit.operations())
	}
}

func TestServiceRejectOutOfRangeOption(t *testing.T) {
	ctx := context.Background()
	svc := core.NewService(core.WithRejectOutOfRange(true))
	if _, err := svc.InstallPlugin(gapminder.New(nil)); err != nil {
		t.Fatalf("install: %v", err)
	}
	if _, err := svc.BuildDashboard(ctx, core.DefaultDashboardConfig()); err != nil {
		t.Fatalf("build: %v", err)
	}
	sess, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := svc.Interact(ctx, sess.ID(), "p1_year_range", core.FilterRange{Min: 1900, Max: 1990}); !errors.Is(err, core.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if v, _ := sess.Filter(); v != (core.FilterRange{Min: 1952, Max: 2007}) {
		t.Fatalf("rejected value must not reach the store, got %v", v)
	}
}
