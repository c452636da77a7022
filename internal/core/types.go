package core

import (
	"crossfilter/internal/infra/persistence"
	"crossfilter/pkg/dashapi"
)

type (
	FilterRange       = dashapi.FilterRange
	Dataset           = dashapi.Dataset
	Chart             = dashapi.Chart
	ChartArtifact     = dashapi.ChartArtifact
	SessionStateStore = persistence.StateStore
)

// DefaultStoreID is the fixed persistence key of the shared year filter.
const DefaultStoreID = "year_range_store"

// Widget id suffixes appended to a page prefix.
const (
	widgetIDSuffix   = "year_range"
	selectorIDSuffix = "year_range-selector"
)

// FieldPathSuffix routes a widget value to a component's year argument.
const FieldPathSuffix = "." + dashapi.FieldYear

var (
	ErrDataUnavailable = dashapi.ErrDataUnavailable
	ErrOutOfRange      = dashapi.ErrOutOfRange
	ErrStaleTarget     = dashapi.ErrStaleTarget
)
