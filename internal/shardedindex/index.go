// Package shardedindex implements the concurrent sharded key index that
// backs the in-memory storage engine: each shard owns a plain
// map[string]value.Value guarded by its own sync.RWMutex, and routing uses a
// seeded xxhash of the key so lookups never contend across shards.
package shardedindex

import (
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/zumic/zumic/internal/value"
)

// shard owns a disjoint slice of the key space.
type shard struct {
	mu   sync.RWMutex
	data map[string]value.Value
}

func newShard() *shard {
	return &shard{data: make(map[string]value.Value)}
}

func (s *shard) get(key string) (value.Value, bool) {
	s.mu.RLock()
	v, ok := s.data[key]
	s.mu.RUnlock()
	return v, ok
}

func (s *shard) insert(key string, v value.Value) {
	s.mu.Lock()
	s.data[key] = v
	s.mu.Unlock()
}

func (s *shard) remove(key string) bool {
	s.mu.Lock()
	_, ok := s.data[key]
	if ok {
		delete(s.data, key)
	}
	s.mu.Unlock()
	return ok
}

func (s *shard) len() int {
	s.mu.RLock()
	n := len(s.data)
	s.mu.RUnlock()
	return n
}

// Stats is a point-in-time snapshot of the index's load distribution and
// slow-operation rate.
type Stats struct {
	ShardCount         int
	TotalKeys          int64
	MaxShardKeys       int64
	MinShardKeys       int64
	BalanceRatio       float64
	TotalOps           uint64
	SlowOps            uint64
	SlowOpsPercentage  float64
}

// ShardedIndex routes keys to a fixed number of independently-locked shards.
// The shard count is chosen once at construction and never changes; rebalance
// across shards is not part of this package's contract (that lives one layer
// up, in the cluster slot manager).
type ShardedIndex struct {
	shards      []*shard
	seed        uint64
	slowThresh  time.Duration
	logger      *zap.Logger
	metrics     metricsSink

	totalOps uint64
	slowOps  uint64
	opsMu    sync.Mutex
}

// Option configures a ShardedIndex at construction time.
type Option func(*ShardedIndex)

// WithLogger attaches a zap logger used to warn about slow operations.
func WithLogger(l *zap.Logger) Option {
	return func(idx *ShardedIndex) { idx.logger = l }
}

// WithSlowThreshold sets the duration above which an operation is counted
// as slow and logged.
func WithSlowThreshold(d time.Duration) Option {
	return func(idx *ShardedIndex) { idx.slowThresh = d }
}

// WithMetrics enables Prometheus-backed metrics on the given registry. When
// not called, the index uses a noop sink.
func WithMetrics(enabled bool, reg *prometheus.Registry) Option {
	return func(idx *ShardedIndex) {
		idx.metrics = newMetricsSink(enabled, reg)
	}
}

// New constructs a ShardedIndex with the given number of shards, rounded up
// to a power of two if it isn't already.
func New(numShards int, opts ...Option) *ShardedIndex {
	n := nextPowerOfTwo(numShards)
	idx := &ShardedIndex{
		shards:     make([]*shard, n),
		seed:       xxhash.Sum64String("zumic-shard-seed"),
		slowThresh: 0,
		logger:     zap.NewNop(),
		metrics:    noopMetrics{},
	}
	for i := range idx.shards {
		idx.shards[i] = newShard()
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// shardForKey computes shard_for_key(k) = hash(k) mod N, using a bitmask
// since the shard count is always a power of two.
func (idx *ShardedIndex) shardForKey(key string) int {
	h := xxhash.Sum64String(key) ^ idx.seed
	return int(h & uint64(len(idx.shards)-1))
}

func (idx *ShardedIndex) recordOp(shardID int, isWrite bool, start time.Time) {
	elapsed := time.Since(start)
	idx.metrics.observeLockWait(shardID, elapsed.Seconds())
	if isWrite {
		idx.metrics.incWrite(shardID)
	} else {
		idx.metrics.incRead(shardID)
	}

	idx.opsMu.Lock()
	idx.totalOps++
	slow := idx.slowThresh > 0 && elapsed > idx.slowThresh
	if slow {
		idx.slowOps++
	}
	idx.opsMu.Unlock()

	if slow {
		idx.metrics.incSlowOp(shardID)
		idx.logger.Warn("slow shard operation",
			zap.Int("shard", shardID),
			zap.Duration("elapsed", elapsed),
			zap.Bool("write", isWrite))
	}
}

// Get returns the value stored for key, if any.
func (idx *ShardedIndex) Get(key string) (value.Value, bool) {
	start := time.Now()
	id := idx.shardForKey(key)
	v, ok := idx.shards[id].get(key)
	idx.recordOp(id, false, start)
	return v, ok
}

// Insert stores v under key, overwriting any existing value.
func (idx *ShardedIndex) Insert(key string, v value.Value) {
	start := time.Now()
	id := idx.shardForKey(key)
	idx.shards[id].insert(key, v)
	idx.recordOp(id, true, start)
	idx.metrics.setKeyCount(id, int64(idx.shards[id].len()))
}

// Remove deletes key, reporting whether it was present.
func (idx *ShardedIndex) Remove(key string) bool {
	start := time.Now()
	id := idx.shardForKey(key)
	removed := idx.shards[id].remove(key)
	idx.recordOp(id, true, start)
	idx.metrics.setKeyCount(id, int64(idx.shards[id].len()))
	return removed
}

// MSet writes multiple keys, visiting shards in ascending shard-id order so
// that concurrent MSet calls touching overlapping shard sets never deadlock
// against each other.
func (idx *ShardedIndex) MSet(kvs map[string]value.Value) {
	byShard := make(map[int]map[string]value.Value)
	for k, v := range kvs {
		id := idx.shardForKey(k)
		m, ok := byShard[id]
		if !ok {
			m = make(map[string]value.Value)
			byShard[id] = m
		}
		m[k] = v
	}

	ids := make([]int, 0, len(byShard))
	for id := range byShard {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		start := time.Now()
		s := idx.shards[id]
		s.mu.Lock()
		for k, v := range byShard[id] {
			s.data[k] = v
		}
		n := len(s.data)
		s.mu.Unlock()
		idx.recordOp(id, true, start)
		idx.metrics.setKeyCount(id, int64(n))
	}
}

// MGet reads multiple keys, returning a pre-sized output vector that
// preserves the order of keys.
// Shards are still visited in ascending id order to keep the locking
// discipline uniform with MSet, even though pure reads cannot deadlock.
func (idx *ShardedIndex) MGet(keys []string) []value.Value {
	out := make([]value.Value, len(keys))
	found := make([]bool, len(keys))

	byShard := make(map[int][]int) // shard id -> indexes into keys/out
	for i, k := range keys {
		id := idx.shardForKey(k)
		byShard[id] = append(byShard[id], i)
	}

	ids := make([]int, 0, len(byShard))
	for id := range byShard {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		start := time.Now()
		s := idx.shards[id]
		s.mu.RLock()
		for _, i := range byShard[id] {
			v, ok := s.data[keys[i]]
			if ok {
				out[i] = v
				found[i] = true
			}
		}
		s.mu.RUnlock()
		idx.recordOp(id, false, start)
	}

	result := make([]value.Value, len(keys))
	for i := range keys {
		if found[i] {
			result[i] = out[i]
		} else {
			result[i] = value.Null()
		}
	}
	return result
}

// Len returns the total number of keys across all shards.
func (idx *ShardedIndex) Len() int64 {
	var total int64
	for _, s := range idx.shards {
		total += int64(s.len())
	}
	return total
}

// Snapshot returns per-shard load and slow-operation statistics.
func (idx *ShardedIndex) Snapshot() Stats {
	st := Stats{ShardCount: len(idx.shards)}
	var minKeys int64 = -1
	for i, s := range idx.shards {
		n := int64(s.len())
		st.TotalKeys += n
		if n > st.MaxShardKeys {
			st.MaxShardKeys = n
		}
		if minKeys < 0 || n < minKeys {
			minKeys = n
		}
		idx.metrics.setKeyCount(i, n)
	}
	if minKeys < 0 {
		minKeys = 0
	}
	st.MinShardKeys = minKeys
	if minKeys > 0 {
		st.BalanceRatio = float64(st.MaxShardKeys) / float64(minKeys)
	} else if st.MaxShardKeys > 0 {
		st.BalanceRatio = float64(st.MaxShardKeys)
	} else {
		st.BalanceRatio = 1.0
	}

	idx.opsMu.Lock()
	st.TotalOps = idx.totalOps
	st.SlowOps = idx.slowOps
	idx.opsMu.Unlock()
	if st.TotalOps > 0 {
		st.SlowOpsPercentage = 100 * float64(st.SlowOps) / float64(st.TotalOps)
	}
	return st
}

// Iter walks every key/value pair across all shards. The callback must not
// call back into the index: each shard is held under its read lock for the
// duration of its own slice of the walk.
func (idx *ShardedIndex) Iter(fn func(key string, v value.Value)) {
	for _, s := range idx.shards {
		s.mu.RLock()
		for k, v := range s.data {
			fn(k, v)
		}
		s.mu.RUnlock()
	}
}
