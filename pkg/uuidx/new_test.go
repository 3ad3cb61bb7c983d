package uuidx

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	id := New()
	assert.Equal(t, uuid.Version(7), id.Version(), "UUID should be version 7")
	assert.Equal(t, uuid.RFC4122, id.Variant(), "UUID should have RFC4122 variant")
	assert.NotEqual(t, id, New(), "Generated UUIDs should be unique")
}

func TestNewString(t *testing.T) {
	idStr := NewString()
	id, err := uuid.Parse(idStr)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.Regexp(t, "^[0-9a-f]{8}-[0-9a-f]{4}-7[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$", idStr)
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("sub")
	assert.True(t, strings.HasPrefix(id, "sub_"))
	assert.Len(t, strings.TrimPrefix(id, "sub_"), 32)
	assert.NotContains(t, id, "-")

	bare := Prefixed("")
	assert.Len(t, bare, 32)

	// v7 ids sort by creation time
	first, second := Prefixed("e"), Prefixed("e")
	assert.LessOrEqual(t, first, second)
}
