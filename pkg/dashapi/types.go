// Package dashapi declares the types shared between the dashboard host and the
// chart plugins it loads: dataset rows, the year filter range and the chart
// artifacts renderers produce.
package dashapi

import (
	"fmt"
	"sort"
	"strings"
)

// Numeric field names understood by Record.Field.
const (
	FieldYear      = "year"
	FieldLifeExp   = "lifeExp"
	FieldPop       = "pop"
	FieldGDPPercap = "gdpPercap"
	FieldISONum    = "iso_num"
)

// Record is a single gapminder observation.
type Record struct {
	Country   string  `json:"country"`
	Continent string  `json:"continent"`
	Year      int     `json:"year"`
	LifeExp   float64 `json:"lifeExp"`
	Pop       int64   `json:"pop"`
	GDPPercap float64 `json:"gdpPercap"`
	ISOAlpha  string  `json:"iso_alpha"`
	ISONum    int     `json:"iso_num"`
}

// Field returns the value of a numeric column by name.
func (r Record) Field(name string) (float64, bool) {
	switch name {
	case FieldYear:
		return float64(r.Year), true
	case FieldLifeExp:
		return r.LifeExp, true
	case FieldPop:
		return float64(r.Pop), true
	case FieldGDPPercap:
		return r.GDPPercap, true
	case FieldISONum:
		return float64(r.ISONum), true
	default:
		return 0, false
	}
}

// Dataset is an immutable table of records. Callers receive copies of the rows
// so the shared instance can be handed to every page without locking.
type Dataset struct {
	name    string
	records []Record
}

// NewDataset copies records into a new immutable dataset.
func NewDataset(name string, records []Record) *Dataset {
	cp := make([]Record, len(records))
	copy(cp, records)
	return &Dataset{name: name, records: cp}
}

// Name returns the registered dataset name.
func (d *Dataset) Name() string { return d.name }

// Len returns the row count.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

// Rows returns the rows matching filter. A nil filter selects every row.
func (d *Dataset) Rows(filter *FilterRange) []Record {
	if d == nil {
		return nil
	}
	out := make([]Record, 0, len(d.records))
	for _, r := range d.records {
		if filter != nil && !filter.Contains(r.Year) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Columns lists the numeric columns available through Record.Field.
func (d *Dataset) Columns() []string {
	return []string{FieldYear, FieldLifeExp, FieldPop, FieldGDPPercap, FieldISONum}
}

// ChartFunc renders a chart from the dataset restricted to filter. A nil filter
// renders the unfiltered dataset. Implementations must not retain or mutate ds.
type ChartFunc func(ds *Dataset, filter *FilterRange) (ChartArtifact, error)

// Chart binds a renderer to a registry key.
type Chart struct {
	Key         string
	Title       string
	Description string
	Dataset     string
	Render      ChartFunc
}

// Validate ensures the chart can be registered.
func (c Chart) Validate() error {
	if strings.TrimSpace(c.Key) == "" {
		return fmt.Errorf("chart key required")
	}
	if strings.TrimSpace(c.Dataset) == "" {
		return fmt.Errorf("chart %s: dataset required", c.Key)
	}
	if c.Render == nil {
		return fmt.Errorf("chart %s: render function required", c.Key)
	}
	return nil
}

// ChartType enumerates the artifact kinds produced by renderers.
type ChartType string

const (
	ChartLine    ChartType = "line"
	ChartScatter ChartType = "scatter"
	ChartBar     ChartType = "bar"
)

// Point is a single plotted value. Label is used by categorical axes.
type Point struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label,omitempty"`
	Size  float64 `json:"size,omitempty"`
	Hover string  `json:"hover,omitempty"`
}

// Series is a named group of points, typically one per colour.
type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// ChartArtifact is the opaque render output handed back to the page.
type ChartArtifact struct {
	Type   ChartType    `json:"type"`
	Title  string       `json:"title"`
	XAxis  Axis         `json:"x_axis"`
	YAxis  Axis         `json:"y_axis"`
	Series []Series     `json:"series"`
	Filter *FilterRange `json:"filter,omitempty"`
	Rows   int          `json:"rows"`
}

// Axis describes one chart axis.
type Axis struct {
	Title string `json:"title"`
	Log   bool   `json:"log,omitempty"`
}

// SeriesNames returns the sorted series names, mostly useful in tests and exports.
func (a ChartArtifact) SeriesNames() []string {
	names := make([]string, 0, len(a.Series))
	for _, s := range a.Series {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}
