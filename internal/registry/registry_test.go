package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/audiobridge/internal/callmodel"
)

func TestInsertGetRemove(t *testing.T) {
	reg := New()
	rec := callmodel.NewRecord("c1", "+15551234567", "book a table", "auto", "Alice", "https://cb")
	reg.Insert(rec)

	got, found := reg.Get("c1")
	require.True(t, found)
	assert.Same(t, rec, got)

	assert.True(t, reg.Remove("c1"))
	_, found = reg.Get("c1")
	assert.False(t, found)
}

func TestRemoveIsIdempotent(t *testing.T) {
	reg := New()
	rec := callmodel.NewRecord("c1", "+1", "b", "auto", "A", "https://cb")
	reg.Insert(rec)

	assert.True(t, reg.Remove("c1"))
	assert.False(t, reg.Remove("c1"))
}

func TestLookupByCarrierCallID(t *testing.T) {
	reg := New()
	rec := callmodel.NewRecord("c1", "+1", "b", "auto", "A", "https://cb")
	rec.CarrierCallID = "carrier-123"
	reg.Insert(rec)

	got, found := reg.LookupByCarrierCallID("carrier-123")
	require.True(t, found)
	assert.Equal(t, "c1", got.CallID)

	_, found = reg.LookupByCarrierCallID("missing")
	assert.False(t, found)
}
