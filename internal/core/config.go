package core

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultSelectorStep is the slider step used when a page does not set one.
const DefaultSelectorStep = 5

// DefaultControlTitle labels the year selector.
const DefaultControlTitle = "Year Range"

var (
	configValidate *validator.Validate
	prefixPattern  = regexp.MustCompile(`^[a-z][a-z0-9]*_$`)
)

func init() {
	configValidate = validator.New()
	if err := configValidate.RegisterValidation("pageprefix", func(fl validator.FieldLevel) bool {
		return prefixPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("register pageprefix validation: %v", err))
	}
}

// DashboardConfig is the YAML layout of a dashboard.
type DashboardConfig struct {
	Title   string       `yaml:"title" validate:"required"`
	Dataset string       `yaml:"dataset" validate:"required"`
	Pages   []PageConfig `yaml:"pages" validate:"required,min=1,dive"`
}

// PageConfig lays out one page. Targets lists the component ids the page's
// year control drives; when empty it drives every component on the page.
type PageConfig struct {
	Title        string            `yaml:"title" validate:"required"`
	Path         string            `yaml:"path" validate:"omitempty,startswith=/"`
	Prefix       string            `yaml:"prefix" validate:"required,pageprefix"`
	Step         int               `yaml:"step" validate:"omitempty,min=1"`
	ControlTitle string            `yaml:"control_title"`
	Components   []ComponentConfig `yaml:"components" validate:"required,min=1,dive"`
	Targets      []string          `yaml:"targets"`
}

// ComponentConfig places a registered chart on a page.
type ComponentConfig struct {
	ID    string `yaml:"id" validate:"required"`
	Chart string `yaml:"chart" validate:"required"`
	Title string `yaml:"title"`
}

// Validate checks field constraints and cross-page uniqueness.
func (c DashboardConfig) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid dashboard config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid dashboard config: %w", err)
	}
	prefixes := make(map[string]struct{}, len(c.Pages))
	components := make(map[string]struct{})
	for _, page := range c.Pages {
		if _, dup := prefixes[page.Prefix]; dup {
			return fmt.Errorf("invalid dashboard config: duplicate page prefix %s", page.Prefix)
		}
		prefixes[page.Prefix] = struct{}{}
		for _, comp := range page.Components {
			if _, dup := components[comp.ID]; dup {
				return fmt.Errorf("invalid dashboard config: duplicate component id %s", comp.ID)
			}
			components[comp.ID] = struct{}{}
		}
	}
	return nil
}

// ParseDashboardConfig decodes and validates a YAML layout. Unknown keys are
// rejected.
func ParseDashboardConfig(r io.Reader) (DashboardConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var cfg DashboardConfig
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return DashboardConfig{}, fmt.Errorf("dashboard config is empty")
		}
		return DashboardConfig{}, fmt.Errorf("decode dashboard config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return DashboardConfig{}, err
	}
	return cfg, nil
}

// LoadDashboardConfig reads a YAML layout from path.
func LoadDashboardConfig(path string) (DashboardConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DashboardConfig{}, fmt.Errorf("read dashboard config: %w", err)
	}
	return ParseDashboardConfig(bytes.NewReader(data))
}

// DefaultDashboardConfig is the two-page gapminder layout.
func DefaultDashboardConfig() DashboardConfig {
	return DashboardConfig{
		Title:   "Gapminder Data Dashboard",
		Dataset: "gapminder",
		Pages: []PageConfig{
			{
				Title:  "Economic Trends",
				Path:   "/economic-trends",
				Prefix: "p1_",
				Components: []ComponentConfig{
					{ID: "line_chart", Chart: "line_chart"},
				},
			},
			{
				Title:  "Global Analysis",
				Path:   "/global-analysis",
				Prefix: "p2_",
				Components: []ComponentConfig{
					{ID: "scatter_chart", Chart: "scatter_chart"},
					{ID: "bar_chart", Chart: "bar_chart"},
				},
			},
		},
	}
}
