// Package testutil hosts helper utilities for dashboard adapter tests.
// It encapsulates access to runtime plugins so the production adapter
// package never depends on plugin implementations directly.
package testutil

import (
	"context"

	"crossfilter/internal/core"
	"crossfilter/plugins/gapminder"
)

// InstallGapminderPlugin installs the gapminder plugin over the embedded
// sample and returns its metadata.
func InstallGapminderPlugin(svc *core.Service) (core.PluginMetadata, error) {
	return svc.InstallPlugin(gapminder.New(nil))
}

// NewGapminderService returns a service with the gapminder plugin installed
// and the default dashboard built.
func NewGapminderService(ctx context.Context, opts ...core.ServiceOption) (*core.Service, error) {
	svc := core.NewService(opts...)
	if _, err := InstallGapminderPlugin(svc); err != nil {
		return nil, err
	}
	if _, err := svc.BuildDashboard(ctx, core.DefaultDashboardConfig()); err != nil {
		return nil, err
	}
	return svc, nil
}
