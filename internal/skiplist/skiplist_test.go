package skiplist

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertGetRemove(t *testing.T) {
	s := New()
	assert.True(t, s.Insert(Int64(1), "a"))
	assert.False(t, s.Insert(Int64(1), "b"), "overwrite returns false")

	v, ok := s.Get(Int64(1))
	require.True(t, ok)
	assert.Equal(t, "b", v)

	assert.True(t, s.Remove(Int64(1)))
	_, ok = s.Get(Int64(1))
	assert.False(t, ok)
	assert.False(t, s.Remove(Int64(1)))
}

func TestIterAscendingOrder(t *testing.T) {
	s := New()
	vals := []int64{5, 1, 9, 3, 7, -2}
	for _, v := range vals {
		s.Insert(Int64(v), v)
	}
	var got []int64
	s.Iter(func(k Key, v any) { got = append(got, int64(k.(Int64))) })

	want := append([]int64(nil), vals...)
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	assert.Equal(t, want, got)
}

func TestIterRevIsReverseOfIter(t *testing.T) {
	s := New()
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		s.Insert(Int64(rng.Int63n(10000)), i)
	}

	var fwd, rev []int64
	s.Iter(func(k Key, v any) { fwd = append(fwd, int64(k.(Int64))) })
	s.IterRev(func(k Key, v any) { rev = append(rev, int64(k.(Int64))) })

	require.Equal(t, len(fwd), len(rev))
	for i, j := 0, len(rev)-1; i < len(rev); i, j = i+1, j-1 {
		assert.Equal(t, fwd[i], rev[j])
	}
}

func TestRangeIsHalfOpen(t *testing.T) {
	s := New()
	for _, v := range []int64{1, 2, 3, 4, 5, 10} {
		s.Insert(Int64(v), v)
	}
	var got []int64
	s.Range(Int64(2), Int64(5), func(k Key, v any) { got = append(got, int64(k.(Int64))) })
	assert.Equal(t, []int64{2, 3, 4}, got)
}

func TestLenTracksSize(t *testing.T) {
	s := New()
	for i := int64(0); i < 50; i++ {
		s.Insert(Int64(i), i)
	}
	assert.Equal(t, 50, s.Len())
	for i := int64(0); i < 25; i++ {
		s.Remove(Int64(i))
	}
	assert.Equal(t, 25, s.Len())
}

func TestScoreMemberOrdering(t *testing.T) {
	s := New()
	s.Insert(ScoreMember{Score: 1, Member: "b"}, nil)
	s.Insert(ScoreMember{Score: 1, Member: "a"}, nil)
	s.Insert(ScoreMember{Score: 0.5, Member: "z"}, nil)

	var got []string
	s.Iter(func(k Key, v any) { got = append(got, k.(ScoreMember).Member) })
	assert.Equal(t, []string{"z", "a", "b"}, got)
}
