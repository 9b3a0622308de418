package shardedindex

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zumic/zumic/internal/value"
)

func TestInsertGetRemove(t *testing.T) {
	idx := New(8)
	idx.Insert("a", value.FromInt(1))
	v, ok := idx.Get("a")
	require.True(t, ok)
	assert.Equal(t, int64(1), v.Int)

	assert.True(t, idx.Remove("a"))
	_, ok = idx.Get("a")
	assert.False(t, ok)
	assert.False(t, idx.Remove("a"))
}

func TestShardCountIsRoundedUpToPowerOfTwo(t *testing.T) {
	idx := New(5)
	assert.Equal(t, 8, len(idx.shards))
}

func TestMSetThenMGetPreservesInputOrder(t *testing.T) {
	idx := New(16)
	kvs := map[string]value.Value{}
	keys := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		k := fmt.Sprintf("key-%d", i)
		kvs[k] = value.FromInt(int64(i))
		keys = append(keys, k)
	}
	// shuffle the read order relative to insertion to prove ordering comes
	// from the requested key slice, not map iteration.
	readOrder := make([]string, len(keys))
	for i, k := range keys {
		readOrder[len(keys)-1-i] = k
	}

	idx.MSet(kvs)
	got := idx.MGet(readOrder)
	require.Len(t, got, len(readOrder))
	for i, k := range readOrder {
		want := kvs[k]
		assert.Equal(t, want.Int, got[i].Int)
	}
}

func TestMGetReturnsNullForMissingKeys(t *testing.T) {
	idx := New(4)
	idx.Insert("present", value.FromInt(7))
	got := idx.MGet([]string{"present", "absent"})
	require.Len(t, got, 2)
	assert.Equal(t, int64(7), got[0].Int)
	assert.True(t, got[1].IsNull())
}

func TestConcurrentInsertsAcrossShardsAllLand(t *testing.T) {
	idx := New(16)
	const perWorker = 200
	const workers = 8

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				k := fmt.Sprintf("w%d-k%d", w, i)
				idx.Insert(k, value.FromInt(int64(i)))
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, int64(workers*perWorker), idx.Len())
}

func TestSnapshotReportsBalanceAndOpsStats(t *testing.T) {
	idx := New(4)
	for i := 0; i < 100; i++ {
		idx.Insert(fmt.Sprintf("k%d", i), value.FromInt(int64(i)))
	}
	for i := 0; i < 100; i++ {
		idx.Get(fmt.Sprintf("k%d", i))
	}

	st := idx.Snapshot()
	assert.Equal(t, int64(100), st.TotalKeys)
	assert.GreaterOrEqual(t, st.BalanceRatio, 1.0)
	assert.Equal(t, uint64(200), st.TotalOps)
}

func TestIterVisitsEveryKeyExactlyOnce(t *testing.T) {
	idx := New(8)
	want := map[string]bool{}
	for i := 0; i < 37; i++ {
		k := fmt.Sprintf("iter-%d", i)
		idx.Insert(k, value.FromInt(int64(i)))
		want[k] = true
	}
	got := map[string]bool{}
	idx.Iter(func(key string, v value.Value) { got[key] = true })
	assert.Equal(t, want, got)
}
