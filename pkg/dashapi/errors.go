package dashapi

import "errors"

var (
	// ErrDataUnavailable is returned when the base dataset cannot be fetched.
	ErrDataUnavailable = errors.New("dataset unavailable")
	// ErrOutOfRange marks a filter value outside the dataset bounds or with inverted ends.
	ErrOutOfRange = errors.New("filter value out of range")
	// ErrStaleTarget marks a control target that names no rendered component.
	ErrStaleTarget = errors.New("stale control target")
)
