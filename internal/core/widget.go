package core

import (
	"fmt"
	"strings"
	"sync"
)

// Widget is a page's year-range control. Its target list is fixed at
// construction; its current value changes only through the SyncEngine.
type Widget struct {
	prefix  string
	targets []string
	bounds  FilterRange

	mu      sync.RWMutex
	current FilterRange
}

// NewWidget builds a widget for the page prefix. The initial value must lie
// within bounds.
func NewWidget(prefix string, targets []string, initial, bounds FilterRange) (*Widget, error) {
	if err := bounds.Validate(); err != nil {
		return nil, fmt.Errorf("widget %s bounds: %w", prefix+widgetIDSuffix, err)
	}
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("widget %s initial value: %w", prefix+widgetIDSuffix, err)
	}
	if !initial.Within(bounds) {
		return nil, fmt.Errorf("widget %s initial value %s outside %s: %w", prefix+widgetIDSuffix, initial, bounds, ErrOutOfRange)
	}
	cp := make([]string, 0, len(targets))
	for _, t := range targets {
		if t = strings.TrimSpace(t); t != "" {
			cp = append(cp, t)
		}
	}
	return &Widget{prefix: prefix, targets: cp, bounds: bounds, current: initial}, nil
}

// WidgetID derives a widget id from a page prefix.
func WidgetID(prefix string) string { return prefix + widgetIDSuffix }

// SelectorID derives the selector id from a page prefix.
func SelectorID(prefix string) string { return prefix + selectorIDSuffix }

// ID returns the widget id.
func (w *Widget) ID() string { return WidgetID(w.prefix) }

// SelectorID returns the id of the widget's range selector.
func (w *Widget) SelectorID() string { return SelectorID(w.prefix) }

// Prefix returns the page prefix.
func (w *Widget) Prefix() string { return w.prefix }

// Bounds returns the dataset-derived bounds the widget accepts.
func (w *Widget) Bounds() FilterRange { return w.bounds }

// Targets returns a copy of the component ids re-rendered on change.
func (w *Widget) Targets() []string {
	out := make([]string, len(w.targets))
	copy(out, w.targets)
	return out
}

// Current returns the displayed value.
func (w *Widget) Current() FilterRange {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// apply sets the displayed value. Callers run the transition guard first.
func (w *Widget) apply(value FilterRange) {
	w.mu.Lock()
	w.current = value
	w.mu.Unlock()
}
