package dashapi

import (
	"encoding/json"
	"fmt"
)

// FilterRange is an inclusive [Min, Max] year bound. It serializes as a two
// element JSON array, the shape range sliders exchange.
type FilterRange struct {
	Min int
	Max int
}

// NewFilterRange builds a range, rejecting inverted bounds.
func NewFilterRange(min, max int) (FilterRange, error) {
	r := FilterRange{Min: min, Max: max}
	if err := r.Validate(); err != nil {
		return FilterRange{}, err
	}
	return r, nil
}

// Validate reports ErrOutOfRange when Min > Max.
func (r FilterRange) Validate() error {
	if r.Min > r.Max {
		return fmt.Errorf("%w: min %d greater than max %d", ErrOutOfRange, r.Min, r.Max)
	}
	return nil
}

// Contains reports whether year lies within the range.
func (r FilterRange) Contains(year int) bool {
	return year >= r.Min && year <= r.Max
}

// Within reports whether r lies entirely inside bounds.
func (r FilterRange) Within(bounds FilterRange) bool {
	return r.Min >= bounds.Min && r.Max <= bounds.Max
}

// Clamp pulls both ends of r into bounds.
func (r FilterRange) Clamp(bounds FilterRange) FilterRange {
	out := r
	if out.Min < bounds.Min {
		out.Min = bounds.Min
	}
	if out.Max > bounds.Max {
		out.Max = bounds.Max
	}
	if out.Min > bounds.Max {
		out.Min = bounds.Max
	}
	if out.Max < bounds.Min {
		out.Max = bounds.Min
	}
	return out
}

// Ptr returns a pointer to a copy of r.
func (r FilterRange) Ptr() *FilterRange { return &r }

func (r FilterRange) String() string {
	return fmt.Sprintf("[%d, %d]", r.Min, r.Max)
}

// MarshalJSON encodes the range as [min, max].
func (r FilterRange) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{r.Min, r.Max})
}

// UnmarshalJSON decodes [min, max].
func (r *FilterRange) UnmarshalJSON(data []byte) error {
	var pair []int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode filter range: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("decode filter range: expected 2 values, got %d", len(pair))
	}
	decoded := FilterRange{Min: pair[0], Max: pair[1]}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*r = decoded
	return nil
}
