package core

import (
	"context"
	"fmt"
	"strings"

	"crossfilter/internal/dataset"
)

// Selector configures a page's range slider.
type Selector struct {
	Title string      `json:"title"`
	Min   int         `json:"min"`
	Max   int         `json:"max"`
	Step  int         `json:"step"`
	Value FilterRange `json:"value"`
}

// ControlDescriptor is the widget description handed to the page layout. Each
// target field path has the form "<componentID>.year".
type ControlDescriptor struct {
	ID               string   `json:"id"`
	SelectorID       string   `json:"selector_id"`
	Prefix           string   `json:"prefix"`
	TargetFieldPaths []string `json:"targets"`
	Selector         Selector `json:"selector"`
}

// TargetComponents strips the field suffix from each target path.
func (c ControlDescriptor) TargetComponents() []string {
	out := make([]string, 0, len(c.TargetFieldPaths))
	for _, path := range c.TargetFieldPaths {
		out = append(out, strings.TrimSuffix(path, FieldPathSuffix))
	}
	return out
}

// Component is a chart placed on a page.
type Component struct {
	ID    string `json:"id"`
	Chart string `json:"chart"`
	Title string `json:"title"`
	Page  string `json:"page"`
}

// Page is a built dashboard page.
type Page struct {
	Title      string            `json:"title"`
	Path       string            `json:"path"`
	Prefix     string            `json:"prefix"`
	Components []Component       `json:"components"`
	Control    ControlDescriptor `json:"control"`
}

// Dashboard is an immutable, validated layout bound to a loaded dataset.
type Dashboard struct {
	title      string
	dataset    *Dataset
	bounds     FilterRange
	pages      []Page
	components map[string]Component
	charts     map[string]Chart
}

// Title returns the dashboard title.
func (d *Dashboard) Title() string { return d.title }

// Dataset returns the shared dataset.
func (d *Dashboard) Dataset() *Dataset { return d.dataset }

// Bounds returns the year bounds computed when the dashboard was built.
func (d *Dashboard) Bounds() FilterRange { return d.bounds }

// Pages returns a copy of the pages.
func (d *Dashboard) Pages() []Page {
	out := make([]Page, len(d.pages))
	for i, p := range d.pages {
		out[i] = p
		out[i].Components = append([]Component(nil), p.Components...)
		out[i].Control.TargetFieldPaths = append([]string(nil), p.Control.TargetFieldPaths...)
	}
	return out
}

// Controls returns the control descriptor of every page in page order.
func (d *Dashboard) Controls() []ControlDescriptor {
	out := make([]ControlDescriptor, 0, len(d.pages))
	for _, p := range d.Pages() {
		out = append(out, p.Control)
	}
	return out
}

// Component looks up a component by id.
func (d *Dashboard) Component(id string) (Component, bool) {
	c, ok := d.components[id]
	return c, ok
}

// RenderComponent renders the component's chart over the shared dataset.
func (d *Dashboard) RenderComponent(_ context.Context, componentID string, filter *FilterRange) (ChartArtifact, error) {
	comp, ok := d.components[componentID]
	if !ok {
		return ChartArtifact{}, ErrNotFound{Entity: EntityComponent, ID: componentID}
	}
	chart := d.charts[comp.Chart]
	artifact, err := chart.Render(d.dataset, filter)
	if err != nil {
		return ChartArtifact{}, fmt.Errorf("render %s: %w", componentID, err)
	}
	if comp.Title != "" {
		artifact.Title = comp.Title
	}
	return artifact, nil
}

// ChartLookup resolves chart keys.
type ChartLookup interface {
	Chart(key string) (Chart, bool)
}

// LoaderLookup resolves dataset names to loaders.
type LoaderLookup interface {
	Loader(name string) (*dataset.Loader, bool)
}

// DashboardBuilder assembles a Dashboard from a layout.
type DashboardBuilder struct {
	cfg     DashboardConfig
	charts  ChartLookup
	loaders LoaderLookup
	obs     Observability
}

// NewDashboardBuilder returns a builder for cfg.
func NewDashboardBuilder(cfg DashboardConfig, charts ChartLookup, loaders LoaderLookup) *DashboardBuilder {
	return &DashboardBuilder{cfg: cfg, charts: charts, loaders: loaders, obs: Observability{}.withDefaults()}
}

// WithObservability sets the logger and metrics used during Build.
func (b *DashboardBuilder) WithObservability(obs Observability) *DashboardBuilder {
	b.obs = obs.withDefaults()
	return b
}

// AddPage appends a page to the layout.
func (b *DashboardBuilder) AddPage(page PageConfig) *DashboardBuilder {
	b.cfg.Pages = append(b.cfg.Pages, page)
	return b
}

// Build validates the layout, loads the dataset and derives the controls.
// Dataset failures wrap ErrDataUnavailable; a control target that names no
// component on its page wraps ErrStaleTarget. No partial dashboard is returned.
func (b *DashboardBuilder) Build(ctx context.Context) (*Dashboard, error) {
	cfg := b.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.charts == nil || b.loaders == nil {
		return nil, fmt.Errorf("dashboard %s: chart and dataset registries required", cfg.Title)
	}

	d := &Dashboard{
		title:      cfg.Title,
		components: make(map[string]Component),
		charts:     make(map[string]Chart),
	}
	for _, page := range cfg.Pages {
		for _, comp := range page.Components {
			chart, ok := b.charts.Chart(comp.Chart)
			if !ok {
				return nil, fmt.Errorf("component %s: %w", comp.ID, ErrNotFound{Entity: EntityChart, ID: comp.Chart})
			}
			if chart.Dataset != cfg.Dataset {
				return nil, fmt.Errorf("component %s: chart %s reads dataset %s, dashboard uses %s", comp.ID, chart.Key, chart.Dataset, cfg.Dataset)
			}
			d.charts[chart.Key] = chart
			d.components[comp.ID] = Component{ID: comp.ID, Chart: chart.Key, Title: comp.Title, Page: page.Prefix}
		}
	}

	loader, ok := b.loaders.Loader(cfg.Dataset)
	if !ok {
		return nil, fmt.Errorf("dashboard %s: %w: %w", cfg.Title, ErrDataUnavailable, ErrNotFound{Entity: EntityDataset, ID: cfg.Dataset})
	}
	start := b.obs.Clock.Now()
	ds, err := loader.Load(ctx)
	b.obs.observe(ctx, "dataset.load", start, err)
	if err != nil {
		b.obs.Logger.Error("dashboard build failed", "dashboard", cfg.Title, "dataset", cfg.Dataset, "error", err)
		return nil, fmt.Errorf("dashboard %s: %w", cfg.Title, err)
	}
	bounds, err := dataset.YearBounds(ds)
	if err != nil {
		return nil, fmt.Errorf("dashboard %s: %w", cfg.Title, err)
	}
	d.dataset = ds
	d.bounds = bounds

	for _, page := range cfg.Pages {
		control, err := buildControl(page, d.components, bounds)
		if err != nil {
			b.obs.Logger.Error("dashboard build failed", "dashboard", cfg.Title, "page", page.Title, "error", err)
			return nil, err
		}
		p := Page{Title: page.Title, Path: page.Path, Prefix: page.Prefix, Control: control}
		for _, comp := range page.Components {
			p.Components = append(p.Components, d.components[comp.ID])
		}
		d.pages = append(d.pages, p)
	}
	b.obs.Logger.Info("dashboard built", "dashboard", cfg.Title, "pages", len(d.pages), "bounds", bounds.String())
	return d, nil
}

func buildControl(page PageConfig, components map[string]Component, bounds FilterRange) (ControlDescriptor, error) {
	targets := page.Targets
	if len(targets) == 0 {
		for _, comp := range page.Components {
			targets = append(targets, comp.ID)
		}
	}
	id := WidgetID(page.Prefix)
	paths := make([]string, 0, len(targets))
	for _, target := range targets {
		componentID := strings.TrimSuffix(target, FieldPathSuffix)
		comp, ok := components[componentID]
		if !ok || comp.Page != page.Prefix {
			return ControlDescriptor{}, fmt.Errorf("control %s target %s: %w", id, target, ErrStaleTarget)
		}
		paths = append(paths, componentID+FieldPathSuffix)
	}
	step := page.Step
	if step == 0 {
		step = DefaultSelectorStep
	}
	title := page.ControlTitle
	if title == "" {
		title = DefaultControlTitle
	}
	return ControlDescriptor{
		ID:               id,
		SelectorID:       SelectorID(page.Prefix),
		Prefix:           page.Prefix,
		TargetFieldPaths: paths,
		Selector:         Selector{Title: title, Min: bounds.Min, Max: bounds.Max, Step: step, Value: bounds},
	}, nil
}
