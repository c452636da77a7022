// Package persistence declares the session filter-state contract implemented by
// the memory, sqlite and postgres backends.
//
// Backends hold state for live sessions only. Each backend purges its table when
// opened, so nothing written by a previous process is ever observed.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"crossfilter/pkg/dashapi"
)

// StateStore persists the serialized filter value of each (session, store) pair.
type StateStore interface {
	// Load returns the saved range; ok is false when nothing was saved.
	Load(ctx context.Context, sessionID, storeID string) (dashapi.FilterRange, bool, error)
	// Save upserts the range.
	Save(ctx context.Context, sessionID, storeID string, value dashapi.FilterRange) error
	// Delete drops every store saved for the session.
	Delete(ctx context.Context, sessionID string) error
	// Sessions lists session ids with saved state, sorted.
	Sessions(ctx context.Context) ([]string, error)
	Close() error
}

// Encode serializes a range into the [min,max] payload stored by every backend.
func Encode(value dashapi.FilterRange) ([]byte, error) {
	if err := value.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(value)
}

// Decode parses a stored payload.
func Decode(payload []byte) (dashapi.FilterRange, error) {
	var value dashapi.FilterRange
	if err := json.Unmarshal(payload, &value); err != nil {
		return dashapi.FilterRange{}, fmt.Errorf("decode state payload: %w", err)
	}
	return value, nil
}

// CheckKey validates the identifiers shared by every backend.
func CheckKey(sessionID, storeID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id required")
	}
	if strings.TrimSpace(storeID) == "" {
		return fmt.Errorf("store id required")
	}
	return nil
}
