package core

import (
	"fmt"
	"sort"
	"strings"

	"crossfilter/internal/dataset"
)

// Plugin contributes charts and the datasets they read.
type Plugin interface {
	Name() string
	Version() string
	Register(registry *PluginRegistry) error
}

// PluginRegistry accumulates plugin contributions during registration.
type PluginRegistry struct {
	charts   map[string]Chart
	datasets map[string]dataset.Source
}

// NewPluginRegistry constructs a plugin registry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{
		charts:   make(map[string]Chart),
		datasets: make(map[string]dataset.Source),
	}
}

// RegisterChart adds a chart renderer under its key.
func (r *PluginRegistry) RegisterChart(chart Chart) error {
	if err := chart.Validate(); err != nil {
		return err
	}
	if _, exists := r.charts[chart.Key]; exists {
		return fmt.Errorf("chart %s already registered", chart.Key)
	}
	r.charts[chart.Key] = chart
	return nil
}

// RegisterDataset declares a named dataset source. Charts refer to it by name.
func (r *PluginRegistry) RegisterDataset(name string, source dataset.Source) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("dataset name required")
	}
	if source == nil {
		return fmt.Errorf("dataset %s: source required", name)
	}
	if _, exists := r.datasets[name]; exists {
		return fmt.Errorf("dataset %s already registered", name)
	}
	r.datasets[name] = source
	return nil
}

// Charts returns registered charts sorted by key.
func (r *PluginRegistry) Charts() []Chart {
	out := make([]Chart, 0, len(r.charts))
	for _, c := range r.charts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Datasets returns a copy of the registered sources keyed by name.
func (r *PluginRegistry) Datasets() map[string]dataset.Source {
	out := make(map[string]dataset.Source, len(r.datasets))
	for name, src := range r.datasets {
		out[name] = src
	}
	return out
}

// PluginMetadata stores metadata describing an installed plugin.
type PluginMetadata struct {
	Name     string
	Version  string
	Charts   []string
	Datasets []string
}
