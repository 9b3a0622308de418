package slotmanager

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/btree"
)

// defaultVirtualNodes is the number of virtual nodes placed per shard on
// the consistent-hash ring.
const defaultVirtualNodes = 128

// ringPoint is one virtual-node entry on the hash ring, ordered by Hash.
type ringPoint struct {
	Hash  uint64
	Shard int
}

func ringPointLess(a, b ringPoint) bool { return a.Hash < b.Hash }

// ConsistentHashRing maintains an alternative routing strategy to the
// explicit slot table: given a key, it walks the ring clockwise from the
// key's hash and returns the first virtual node's owning shard. It is kept
// in parallel with the slot state machine, not used to drive it.
type ConsistentHashRing struct {
	mu           sync.RWMutex
	tree         *btree.BTreeG[ringPoint]
	virtualNodes int
	shards       map[int]bool
}

// NewConsistentHashRing constructs an empty ring with the given number of
// virtual nodes per shard.
func NewConsistentHashRing(virtualNodes int) *ConsistentHashRing {
	if virtualNodes <= 0 {
		virtualNodes = defaultVirtualNodes
	}
	return &ConsistentHashRing{
		tree:         btree.NewG(32, ringPointLess),
		virtualNodes: virtualNodes,
		shards:       make(map[int]bool),
	}
}

func virtualNodeHash(shard, vnode int) uint64 {
	key := fmt32(shard, vnode)
	return xxhash.Sum64String(key)
}

func fmt32(a, b int) string {
	// Allocation-light key construction avoids importing fmt on this
	// hot-ish ring-build path.
	buf := make([]byte, 0, 24)
	buf = appendInt(buf, a)
	buf = append(buf, '#')
	buf = appendInt(buf, b)
	return string(buf)
}

func appendInt(buf []byte, v int) []byte {
	if v == 0 {
		return append(buf, '0')
	}
	neg := v < 0
	if neg {
		v = -v
	}
	start := len(buf)
	for v > 0 {
		buf = append(buf, byte('0'+v%10))
		v /= 10
	}
	if neg {
		buf = append(buf, '-')
	}
	// reverse the digits just appended
	for i, j := start, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return buf
}

// AddShard inserts virtualNodes ring points for shard.
func (r *ConsistentHashRing) AddShard(shard int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shards[shard] {
		return
	}
	r.shards[shard] = true
	for v := 0; v < r.virtualNodes; v++ {
		r.tree.ReplaceOrInsert(ringPoint{Hash: virtualNodeHash(shard, v), Shard: shard})
	}
}

// RemoveShard deletes every virtual node belonging to shard.
func (r *ConsistentHashRing) RemoveShard(shard int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.shards[shard] {
		return
	}
	delete(r.shards, shard)
	for v := 0; v < r.virtualNodes; v++ {
		r.tree.Delete(ringPoint{Hash: virtualNodeHash(shard, v)})
	}
}

// Route returns the shard owning key on the ring: the first virtual node at
// or after key's hash, wrapping around to the smallest hash if key's hash
// exceeds every virtual node.
func (r *ConsistentHashRing) Route(key []byte) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.tree.Len() == 0 {
		return 0, false
	}

	h := xxhash.Sum64(key)
	var found *ringPoint
	r.tree.AscendGreaterOrEqual(ringPoint{Hash: h}, func(p ringPoint) bool {
		pp := p
		found = &pp
		return false
	})
	if found == nil {
		// Wrapped past the end: take the smallest hash on the ring.
		r.tree.Ascend(func(p ringPoint) bool {
			pp := p
			found = &pp
			return false
		})
	}
	if found == nil {
		return 0, false
	}
	return found.Shard, true
}
