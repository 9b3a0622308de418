package smarthash

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertGetBelowThreshold(t *testing.T) {
	h := New()
	assert.True(t, h.Insert("f", []byte("v")))
	assert.False(t, h.Insert("f", []byte("v2")))

	v, ok := h.Get("f")
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), v)
}

func TestUpgradesAboveThresholdAndStaysCorrect(t *testing.T) {
	h := New()
	for i := 0; i < Threshold+10; i++ {
		h.Insert(fmt.Sprintf("f%d", i), []byte{byte(i)})
	}
	assert.Equal(t, reprMap, h.which)
	assert.Equal(t, Threshold+10, h.Len())

	for i := 0; i < Threshold+10; i++ {
		v, ok := h.Get(fmt.Sprintf("f%d", i))
		require.True(t, ok)
		assert.Equal(t, byte(i), v[0])
	}
}

func TestRemoveFlagsDowngradeButDoesNotConvertImmediately(t *testing.T) {
	h := New()
	for i := 0; i < Threshold+10; i++ {
		h.Insert(fmt.Sprintf("f%d", i), nil)
	}
	require.Equal(t, reprMap, h.which)

	for i := 0; i < Threshold-5; i++ {
		h.Remove(fmt.Sprintf("f%d", i))
	}
	// Still below Threshold/2 should have flagged downgrade, but
	// representation does not change until the next Insert/Iter.
	assert.Equal(t, reprMap, h.which)
	assert.True(t, h.pendingDowngrade)

	h.Insert("trigger", nil)
	assert.Equal(t, reprZip, h.which)
}

func TestIterCoversAllFieldsInBothRepresentations(t *testing.T) {
	h := New()
	want := map[string]bool{}
	for i := 0; i < 5; i++ {
		f := fmt.Sprintf("f%d", i)
		h.Insert(f, nil)
		want[f] = true
	}
	got := map[string]bool{}
	h.Iter(func(field string, value []byte) { got[field] = true })
	assert.Equal(t, want, got)
}
