package gapminder

import (
	"fmt"
	"sort"

	"crossfilter/pkg/dashapi"
)

// LineCountries are plotted by LineChart, in legend order.
var LineCountries = []string{"United States", "China", "India", "Germany", "Brazil"}

// LineChart plots GDP per capita over time for LineCountries.
func LineChart(ds *dashapi.Dataset, filter *dashapi.FilterRange) (dashapi.ChartArtifact, error) {
	rows := ds.Rows(filter)
	byCountry := make(map[string][]dashapi.Point, len(LineCountries))
	for _, r := range rows {
		byCountry[r.Country] = append(byCountry[r.Country], dashapi.Point{
			X:     float64(r.Year),
			Y:     r.GDPPercap,
			Hover: r.Country,
		})
	}
	artifact := dashapi.ChartArtifact{
		Type:   dashapi.ChartLine,
		Title:  "GDP per Capita Over Time (Selected Countries)",
		XAxis:  dashapi.Axis{Title: "year"},
		YAxis:  dashapi.Axis{Title: "gdpPercap"},
		Filter: copyFilter(filter),
		Rows:   len(rows),
	}
	for _, country := range LineCountries {
		points := byCountry[country]
		if len(points) == 0 {
			continue
		}
		sort.Slice(points, func(i, j int) bool { return points[i].X < points[j].X })
		artifact.Series = append(artifact.Series, dashapi.Series{Name: country, Points: points})
	}
	return artifact, nil
}

// ScatterChart plots life expectancy against GDP per capita for the latest
// year in range, one series per continent.
func ScatterChart(ds *dashapi.Dataset, filter *dashapi.FilterRange) (dashapi.ChartArtifact, error) {
	rows := ds.Rows(filter)
	artifact := dashapi.ChartArtifact{
		Type:   dashapi.ChartScatter,
		Title:  "Life Expectancy vs GDP per Capita",
		XAxis:  dashapi.Axis{Title: "gdpPercap", Log: true},
		YAxis:  dashapi.Axis{Title: "lifeExp"},
		Filter: copyFilter(filter),
		Rows:   len(rows),
	}
	latest, ok := latestYear(rows)
	if !ok {
		return artifact, nil
	}
	artifact.Title = fmt.Sprintf("Life Expectancy vs GDP per Capita (%d)", latest)
	byContinent := make(map[string][]dashapi.Point)
	for _, r := range rows {
		if r.Year != latest {
			continue
		}
		byContinent[r.Continent] = append(byContinent[r.Continent], dashapi.Point{
			X:     r.GDPPercap,
			Y:     r.LifeExp,
			Size:  float64(r.Pop),
			Label: r.ISOAlpha,
			Hover: r.Country,
		})
	}
	for _, continent := range sortedKeys(byContinent) {
		points := byContinent[continent]
		sort.Slice(points, func(i, j int) bool { return points[i].Hover < points[j].Hover })
		artifact.Series = append(artifact.Series, dashapi.Series{Name: continent, Points: points})
	}
	return artifact, nil
}

// BarChart sums population by continent for the latest year in range.
func BarChart(ds *dashapi.Dataset, filter *dashapi.FilterRange) (dashapi.ChartArtifact, error) {
	rows := ds.Rows(filter)
	artifact := dashapi.ChartArtifact{
		Type:   dashapi.ChartBar,
		Title:  "Total Population by Continent",
		XAxis:  dashapi.Axis{Title: "continent"},
		YAxis:  dashapi.Axis{Title: "Population"},
		Filter: copyFilter(filter),
		Rows:   len(rows),
	}
	latest, ok := latestYear(rows)
	if !ok {
		return artifact, nil
	}
	artifact.Title = fmt.Sprintf("Total Population by Continent (%d)", latest)
	totals := make(map[string]int64)
	for _, r := range rows {
		if r.Year == latest {
			totals[r.Continent] += r.Pop
		}
	}
	for i, continent := range sortedKeys(totals) {
		artifact.Series = append(artifact.Series, dashapi.Series{
			Name:   continent,
			Points: []dashapi.Point{{X: float64(i), Y: float64(totals[continent]), Label: continent}},
		})
	}
	return artifact, nil
}

func latestYear(rows []dashapi.Record) (int, bool) {
	if len(rows) == 0 {
		return 0, false
	}
	latest := rows[0].Year
	for _, r := range rows[1:] {
		if r.Year > latest {
			latest = r.Year
		}
	}
	return latest, true
}

func copyFilter(filter *dashapi.FilterRange) *dashapi.FilterRange {
	if filter == nil {
		return nil
	}
	return filter.Ptr()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
