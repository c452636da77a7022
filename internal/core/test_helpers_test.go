package core

import (
	"context"
	"sync"
	"testing"

	"crossfilter/internal/dataset"
	"crossfilter/internal/infra/persistence/memory"
	"crossfilter/pkg/dashapi"
)

var sampleBounds = FilterRange{Min: 1952, Max: 2007}

type chartSet map[string]Chart

func (c chartSet) Chart(key string) (Chart, bool) {
	chart, ok := c[key]
	return chart, ok
}

type loaderSet map[string]*dataset.Loader

func (l loaderSet) Loader(name string) (*dataset.Loader, bool) {
	loader, ok := l[name]
	return loader, ok
}

type renderCall struct {
	chart  string
	filter *FilterRange
}

type renderLog struct {
	mu    sync.Mutex
	calls []renderCall
}

func (l *renderLog) record(chart string, filter *FilterRange) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var cp *FilterRange
	if filter != nil {
		cp = filter.Ptr()
	}
	l.calls = append(l.calls, renderCall{chart: chart, filter: cp})
}

func (l *renderLog) reset() {
	l.mu.Lock()
	l.calls = nil
	l.mu.Unlock()
}

func (l *renderLog) charts() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.calls))
	for _, c := range l.calls {
		out = append(out, c.chart)
	}
	return out
}

// recordingCharts returns a line, scatter and bar chart that count the rows
// they see and log every call.
func recordingCharts(log *renderLog) chartSet {
	set := chartSet{}
	for _, key := range []string{"line_chart", "scatter_chart", "bar_chart"} {
		key := key
		set[key] = Chart{
			Key:     key,
			Dataset: "gapminder",
			Render: func(ds *dashapi.Dataset, filter *FilterRange) (ChartArtifact, error) {
				log.record(key, filter)
				rows := ds.Rows(filter)
				artifact := ChartArtifact{Title: key, Rows: len(rows)}
				if filter != nil {
					artifact.Filter = filter.Ptr()
				}
				return artifact, nil
			},
		}
	}
	return set
}

func sampleLoaders() loaderSet {
	return loaderSet{"gapminder": dataset.NewLoader("gapminder", dataset.EmbeddedSource{})}
}

func buildTestDashboard(t *testing.T, log *renderLog) *Dashboard {
	t.Helper()
	d, err := NewDashboardBuilder(DefaultDashboardConfig(), recordingCharts(log), sampleLoaders()).Build(context.Background())
	if err != nil {
		t.Fatalf("build dashboard: %v", err)
	}
	return d
}

func newTestSession(t *testing.T, id string, opts SessionOptions) (*Session, *renderLog) {
	t.Helper()
	log := &renderLog{}
	s, err := NewSession(context.Background(), id, buildTestDashboard(t, log), opts)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(s.Close)
	log.reset()
	return s, log
}

func rowsBetween(ds *Dataset, r FilterRange) int {
	n := 0
	for _, rec := range ds.Rows(nil) {
		if rec.Year >= r.Min && rec.Year <= r.Max {
			n++
		}
	}
	return n
}

// countingState wraps the memory backend and counts writes. Saves fail once
// failAfter writes have succeeded, when failAfter is positive.
type countingState struct {
	*memory.Store
	mu        sync.Mutex
	saves     int
	failAfter int
}

func newCountingState() *countingState {
	return &countingState{Store: memory.NewStore()}
}

func (c *countingState) Save(ctx context.Context, sessionID, storeID string, value FilterRange) error {
	c.mu.Lock()
	if c.failAfter > 0 && c.saves >= c.failAfter {
		c.mu.Unlock()
		return errSaveFailed
	}
	c.saves++
	c.mu.Unlock()
	return c.Store.Save(ctx, sessionID, storeID, value)
}

func (c *countingState) saveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

type stringError string

func (e stringError) Error() string { return string(e) }

const errSaveFailed = stringError("save failed")

type eventLog struct {
	mu     sync.Mutex
	events []SyncEvent
}

func (l *eventLog) add(ev SyncEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) count(kind EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (l *eventLog) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}
