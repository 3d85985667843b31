// Package idgen mints time-ordered identifiers for causal traces.
package idgen

import "github.com/google/uuid"

// New returns a UUIDv7 string. Time ordering keeps trace IDs sortable by
// creation time; on the rare entropy failure it falls back to a random v4.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
