package core

import (
	"errors"
	"reflect"
	"testing"
)

func TestNewWidget(t *testing.T) {
	w, err := NewWidget("p2_", []string{"scatter_chart", " ", "bar_chart"}, sampleBounds, sampleBounds)
	if err != nil {
		t.Fatalf("new widget: %v", err)
	}
	if w.ID() != "p2_year_range" || w.SelectorID() != "p2_year_range-selector" || w.Prefix() != "p2_" {
		t.Fatalf("unexpected ids %s %s", w.ID(), w.SelectorID())
	}
	targets := w.Targets()
	if !reflect.DeepEqual(targets, []string{"scatter_chart", "bar_chart"}) {
		t.Fatalf("unexpected targets %v", targets)
	}
	targets[0] = "mutated"
	if w.Targets()[0] != "scatter_chart" {
		t.Fatalf("targets must be immutable")
	}
	if w.Current() != sampleBounds || w.Bounds() != sampleBounds {
		t.Fatalf("unexpected initial state")
	}
}

func TestNewWidgetRejectsOutOfRangeInitial(t *testing.T) {
	if _, err := NewWidget("p1_", nil, FilterRange{Min: 1900, Max: 2000}, sampleBounds); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if _, err := NewWidget("p1_", nil, FilterRange{Min: 2000, Max: 1990}, sampleBounds); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange for inverted initial value, got %v", err)
	}
}
