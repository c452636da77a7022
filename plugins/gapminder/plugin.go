// Package gapminder contributes the gapminder dataset and the three charts of
// the default dashboard.
package gapminder

import (
	"crossfilter/internal/core"
	"crossfilter/internal/dataset"
	"crossfilter/pkg/dashapi"
)

// DatasetName is the name charts use to refer to the gapminder table.
const DatasetName = "gapminder"

// Chart keys.
const (
	LineChartKey    = "line_chart"
	ScatterChartKey = "scatter_chart"
	BarChartKey     = "bar_chart"
)

// Plugin registers the gapminder dataset and charts.
type Plugin struct {
	source dataset.Source
}

// New constructs a plugin that reads the dataset from source. A nil source
// serves the embedded sample.
func New(source dataset.Source) Plugin {
	if source == nil {
		source = dataset.EmbeddedSource{}
	}
	return Plugin{source: source}
}

// Name returns the plugin identifier.
func (Plugin) Name() string { return "gapminder" }

// Version returns the plugin semantic version.
func (Plugin) Version() string { return "0.1.0" }

// Register wires the dataset source and chart renderers.
func (p Plugin) Register(registry *core.PluginRegistry) error {
	if err := registry.RegisterDataset(DatasetName, p.source); err != nil {
		return err
	}
	for _, chart := range Charts() {
		if err := registry.RegisterChart(chart); err != nil {
			return err
		}
	}
	return nil
}

// Charts returns the chart definitions contributed by the plugin.
func Charts() []dashapi.Chart {
	return []dashapi.Chart{
		{
			Key:         LineChartKey,
			Title:       "GDP per Capita Over Time",
			Description: "GDP per capita by year for selected countries.",
			Dataset:     DatasetName,
			Render:      LineChart,
		},
		{
			Key:         ScatterChartKey,
			Title:       "Life Expectancy vs GDP per Capita",
			Description: "Latest year in range, sized by population and coloured by continent.",
			Dataset:     DatasetName,
			Render:      ScatterChart,
		},
		{
			Key:         BarChartKey,
			Title:       "Total Population by Continent",
			Description: "Population summed by continent for the latest year in range.",
			Dataset:     DatasetName,
			Render:      BarChart,
		},
	}
}
