package idgen

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReturnsValidUUID(t *testing.T) {
	id := New()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
}

func TestNewIsUnique(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		id := New()
		assert.False(t, seen[id])
		seen[id] = true
	}
}
