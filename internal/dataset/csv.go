package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"crossfilter/pkg/dashapi"
)

var requiredColumns = []string{"country", "continent", "year", "lifeExp", "pop", "gdpPercap"}

// ParseCSV decodes gapminder-shaped CSV. Header names are matched case
// insensitively; iso_alpha and iso_num are optional.
func ParseCSV(r io.Reader) ([]dashapi.Record, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[strings.ToLower(col)]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}
	get := func(row []string, col string) string {
		i, ok := index[strings.ToLower(col)]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []dashapi.Record
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec, err := parseRow(row, get)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(row []string, get func([]string, string) string) (dashapi.Record, error) {
	year, err := strconv.Atoi(get(row, "year"))
	if err != nil {
		return dashapi.Record{}, fmt.Errorf("year: %w", err)
	}
	lifeExp, err := strconv.ParseFloat(get(row, "lifeExp"), 64)
	if err != nil {
		return dashapi.Record{}, fmt.Errorf("lifeExp: %w", err)
	}
	pop, err := strconv.ParseFloat(get(row, "pop"), 64)
	if err != nil {
		return dashapi.Record{}, fmt.Errorf("pop: %w", err)
	}
	gdp, err := strconv.ParseFloat(get(row, "gdpPercap"), 64)
	if err != nil {
		return dashapi.Record{}, fmt.Errorf("gdpPercap: %w", err)
	}
	rec := dashapi.Record{
		Country:   get(row, "country"),
		Continent: get(row, "continent"),
		Year:      year,
		LifeExp:   lifeExp,
		Pop:       int64(pop),
		GDPPercap: gdp,
		ISOAlpha:  get(row, "iso_alpha"),
	}
	if raw := get(row, "iso_num"); raw != "" {
		if rec.ISONum, err = strconv.Atoi(raw); err != nil {
			return dashapi.Record{}, fmt.Errorf("iso_num: %w", err)
		}
	}
	return rec, nil
}
