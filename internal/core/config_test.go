package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const twoPageYAML = `title: Gapminder Data Dashboard
dataset: gapminder
pages:
  - title: Economic Trends
    path: /economic-trends
    prefix: p1_
    components:
      - id: line_chart
        chart: line_chart
  - title: Global Analysis
    prefix: p2_
    step: 10
    components:
      - id: scatter_chart
        chart: scatter_chart
      - id: bar_chart
        chart: bar_chart
    targets: [scatter_chart.year]
`

func TestParseDashboardConfig(t *testing.T) {
	cfg, err := ParseDashboardConfig(strings.NewReader(twoPageYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cfg.Pages) != 2 || cfg.Pages[1].Step != 10 || cfg.Pages[1].Targets[0] != "scatter_chart.year" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestParseDashboardConfigErrors(t *testing.T) {
	cases := map[string]string{
		"empty":           "",
		"unknown field":   twoPageYAML + "colour: red\n",
		"bad prefix":      strings.Replace(twoPageYAML, "prefix: p1_", "prefix: Page1", 1),
		"duplicate page":  strings.Replace(twoPageYAML, "prefix: p2_", "prefix: p1_", 1),
		"duplicate id":    strings.Replace(twoPageYAML, "id: bar_chart", "id: scatter_chart", 1),
		"missing dataset": strings.Replace(twoPageYAML, "dataset: gapminder\n", "", 1),
		"bad path":        strings.Replace(twoPageYAML, "path: /economic-trends", "path: economic", 1),
		"no components":   "title: t\ndataset: d\npages:\n  - title: p\n    prefix: p1_\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseDashboardConfig(strings.NewReader(doc)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestPagePrefixRuleIsEnforced(t *testing.T) {
	cfg := DefaultDashboardConfig()
	cfg.Pages[0].Prefix = "Page1"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "Prefix failed pageprefix") {
		t.Fatalf("expected pageprefix failure, got %v", err)
	}
	if err := DefaultDashboardConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
}

func TestLoadDashboardConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashboard.yaml")
	if err := os.WriteFile(path, []byte(twoPageYAML), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadDashboardConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Title != "Gapminder Data Dashboard" {
		t.Fatalf("unexpected title %q", cfg.Title)
	}
	if _, err := LoadDashboardConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestDefaultDashboardConfigIsValid(t *testing.T) {
	if err := DefaultDashboardConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
