package intset

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertKeepsSortedAndWidens(t *testing.T) {
	s := New()
	assert.Equal(t, Width16, s.Width())

	s.Insert(10)
	s.Insert(-5)
	s.Insert(1 << 20) // forces Width32
	assert.Equal(t, Width32, s.Width())

	s.Insert(int64(1) << 40) // forces Width64
	assert.Equal(t, Width64, s.Width())

	var got []int64
	s.Iter(func(v int64) { got = append(got, v) })
	assert.True(t, sort.SliceIsSorted(got, func(i, j int) bool { return got[i] < got[j] }))
}

func TestWidthNeverNarrows(t *testing.T) {
	s := New()
	s.Insert(1 << 40)
	require.Equal(t, Width64, s.Width())
	s.Remove(1 << 40)
	assert.Equal(t, Width64, s.Width())
}

func TestContainsReflectsInsertsAndRemoves(t *testing.T) {
	s := New()
	present := map[int64]bool{}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		v := rng.Int63n(1 << 50)
		if rng.Intn(3) == 0 && len(present) > 0 {
			for k := range present {
				s.Remove(k)
				delete(present, k)
				break
			}
			continue
		}
		s.Insert(v)
		present[v] = true
	}

	for v := range present {
		assert.True(t, s.Contains(v))
	}
}

func TestIterRevIsReverseOfIter(t *testing.T) {
	s := New()
	for _, v := range []int64{5, -2, 100, 1} {
		s.Insert(v)
	}
	var fwd, rev []int64
	s.Iter(func(v int64) { fwd = append(fwd, v) })
	s.IterRev(func(v int64) { rev = append(rev, v) })
	for i, j := 0, len(rev)-1; i < len(rev); i, j = i+1, j-1 {
		assert.Equal(t, fwd[i], rev[j])
	}
}

func TestIterRangeInclusive(t *testing.T) {
	s := New()
	for _, v := range []int64{1, 2, 3, 10, 20} {
		s.Insert(v)
	}
	var got []int64
	s.IterRange(2, 10, func(v int64) { got = append(got, v) })
	assert.Equal(t, []int64{2, 3, 10}, got)

	got = nil
	s.IterRange(10, 2, func(v int64) { got = append(got, v) })
	assert.Empty(t, got)
}
