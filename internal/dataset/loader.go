// Package dataset loads the shared dashboard dataset once per process and
// derives control bounds from it.
package dataset

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"crossfilter/pkg/dashapi"
)

// Loader fetches and parses a dataset on first use and memoizes the result.
// Concurrent first callers share a single in-flight fetch. Failed fetches are
// not cached.
type Loader struct {
	name   string
	source Source

	group   singleflight.Group
	mu      sync.RWMutex
	cached  *dashapi.Dataset
	fetches atomic.Int64
}

// NewLoader returns a loader for the named dataset.
func NewLoader(name string, source Source) *Loader {
	return &Loader{name: name, source: source}
}

// Name returns the dataset name.
func (l *Loader) Name() string { return l.name }

// Fetches reports how many times the source has been opened.
func (l *Loader) Fetches() int64 { return l.fetches.Load() }

// Loaded reports whether a dataset is cached.
func (l *Loader) Loaded() bool { return l.current() != nil }

// Load returns the cached dataset, fetching it on the first call. Errors wrap
// dashapi.ErrDataUnavailable.
func (l *Loader) Load(ctx context.Context) (*dashapi.Dataset, error) {
	if ds := l.current(); ds != nil {
		return ds, nil
	}
	ch := l.group.DoChan(l.name, func() (any, error) {
		if ds := l.current(); ds != nil {
			return ds, nil
		}
		// the shared fetch outlives any single caller's cancellation
		ds, err := l.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.cached = ds
		l.mu.Unlock()
		return ds, nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", dashapi.ErrDataUnavailable, l.name, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*dashapi.Dataset), nil
	}
}

func (l *Loader) current() *dashapi.Dataset {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cached
}

func (l *Loader) fetch(ctx context.Context) (*dashapi.Dataset, error) {
	l.fetches.Add(1)
	if l.source == nil {
		return nil, fmt.Errorf("%w: %s: no source configured", dashapi.ErrDataUnavailable, l.name)
	}
	rc, err := l.source.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s from %s: %w", dashapi.ErrDataUnavailable, l.name, l.source.Describe(), err)
	}
	defer func() { _ = rc.Close() }()
	records, err := ParseCSV(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: parse: %w", dashapi.ErrDataUnavailable, l.name, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s: no rows", dashapi.ErrDataUnavailable, l.name)
	}
	return dashapi.NewDataset(l.name, records), nil
}

// Bounds returns the inclusive integer range of a numeric field across all rows.
func Bounds(ds *dashapi.Dataset, field string) (int, int, error) {
	if ds.Len() == 0 {
		return 0, 0, fmt.Errorf("%w: empty dataset", dashapi.ErrDataUnavailable)
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, rec := range ds.Rows(nil) {
		v, ok := rec.Field(field)
		if !ok {
			return 0, 0, fmt.Errorf("unknown numeric field %q", field)
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return int(math.Floor(lo)), int(math.Ceil(hi)), nil
}

// YearBounds returns the dataset's year domain as a filter range.
func YearBounds(ds *dashapi.Dataset) (dashapi.FilterRange, error) {
	lo, hi, err := Bounds(ds, dashapi.FieldYear)
	if err != nil {
		return dashapi.FilterRange{}, err
	}
	return dashapi.FilterRange{Min: lo, Max: hi}, nil
}

// Manager maps dataset names to loaders, the way pages refer to data by name.
type Manager struct {
	mu      sync.RWMutex
	loaders map[string]*Loader
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{loaders: make(map[string]*Loader)}
}

// Register adds a named source. Registering a name twice fails.
func (m *Manager) Register(name string, source Source) (*Loader, error) {
	if name == "" {
		return nil, fmt.Errorf("dataset name required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.loaders[name]; exists {
		return nil, fmt.Errorf("dataset %s already registered", name)
	}
	l := NewLoader(name, source)
	m.loaders[name] = l
	return l, nil
}

// Loader returns the loader for name.
func (m *Manager) Loader(name string) (*Loader, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.loaders[name]
	return l, ok
}

// Names lists registered dataset names in order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.loaders))
	for name := range m.loaders {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names
}
