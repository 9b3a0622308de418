// Package skiplist implements a probabilistic ordered map: a skip list with
// forward and backward links supporting forward, reverse, and range
// iteration.
//
// The node type owns its forward chain; backward is a non-owning pointer to
// the level-0 predecessor restored on removal before the node is dropped.
package skiplist

import (
	"math/rand/v2"
)

const (
	maxLevel = 16
	p        = 0.5
)

// Key orders skip list entries. Concrete key constructors below (Int64,
// Bytes, ScoreMember) cover every use this module needs: List sequence
// numbers, raw byte-string keys, and ZSet (score, member) pairs.
type Key interface {
	Less(other Key) bool
}

// Int64 is an ordered key over a monotonically increasing sequence number,
// used to back List.
type Int64 int64

func (a Int64) Less(other Key) bool { return a < other.(Int64) }

// Bytes is a byte-lexicographic ordered key.
type Bytes []byte

func (a Bytes) Less(other Key) bool {
	b := other.(Bytes)
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// ScoreMember orders first by Score, then lexicographically by Member,
// matching the usual ZSet tie-breaking rule.
type ScoreMember struct {
	Score  float64
	Member string
}

func (a ScoreMember) Less(other Key) bool {
	b := other.(ScoreMember)
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Member < b.Member
}

func equal(a, b Key) bool { return !a.Less(b) && !b.Less(a) }

type node struct {
	key      Key
	value    any
	forward  []*node
	backward *node
}

// SkipList is a probabilistic ordered map. The zero value is not usable;
// construct with New. head is a sentinel at maxLevel holding no user data.
type SkipList struct {
	head  *node
	level int
	n     int
	rng   *rand.Rand
}

// New constructs an empty skip list.
func New() *SkipList {
	return &SkipList{
		head:  &node{forward: make([]*node, maxLevel)},
		level: 1,
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Len returns the number of entries.
func (s *SkipList) Len() int { return s.n }

func (s *SkipList) randomLevel() int {
	lvl := 1
	for lvl < maxLevel && s.rng.Float64() < p {
		lvl++
	}
	return lvl
}

// Insert sets the value for key, overwriting any existing value for an
// equal key. It returns true if a new entry was created.
func (s *SkipList) Insert(key Key, value any) bool {
	update := make([]*node, maxLevel)
	cur := s.head
	for i := s.level - 1; i >= 0; i-- {
		for cur.forward[i] != nil && cur.forward[i].key.Less(key) {
			cur = cur.forward[i]
		}
		update[i] = cur
	}

	succ := cur.forward[0]
	if succ != nil && equal(succ.key, key) {
		succ.value = value
		return false
	}

	lvl := s.randomLevel()
	if lvl > s.level {
		for i := s.level; i < lvl; i++ {
			update[i] = s.head
		}
		s.level = lvl
	}

	n := &node{key: key, value: value, forward: make([]*node, lvl)}
	for i := 0; i < lvl; i++ {
		n.forward[i] = update[i].forward[i]
		update[i].forward[i] = n
	}

	if cur == s.head {
		n.backward = nil
	} else {
		n.backward = cur
	}
	if n.forward[0] != nil {
		n.forward[0].backward = n
	}

	s.n++
	return true
}

// Get returns the value for key, if present.
func (s *SkipList) Get(key Key) (any, bool) {
	cur := s.head
	for i := s.level - 1; i >= 0; i-- {
		for cur.forward[i] != nil && cur.forward[i].key.Less(key) {
			cur = cur.forward[i]
		}
	}
	cur = cur.forward[0]
	if cur != nil && equal(cur.key, key) {
		return cur.value, true
	}
	return nil, false
}

// Remove deletes key, returning whether it was present.
func (s *SkipList) Remove(key Key) bool {
	update := make([]*node, maxLevel)
	cur := s.head
	for i := s.level - 1; i >= 0; i-- {
		for cur.forward[i] != nil && cur.forward[i].key.Less(key) {
			cur = cur.forward[i]
		}
		update[i] = cur
	}

	target := cur.forward[0]
	if target == nil || !equal(target.key, key) {
		return false
	}

	for i := 0; i < s.level; i++ {
		if update[i].forward[i] != target {
			continue
		}
		update[i].forward[i] = target.forward[i]
	}

	if target.forward[0] != nil {
		target.forward[0].backward = target.backward
	}

	for s.level > 1 && s.head.forward[s.level-1] == nil {
		s.level--
	}

	s.n--
	return true
}

// Iter walks keys in strictly ascending order.
func (s *SkipList) Iter(fn func(key Key, value any)) {
	for cur := s.head.forward[0]; cur != nil; cur = cur.forward[0] {
		fn(cur.key, cur.value)
	}
}

// IterRev walks keys in strictly descending order, starting from the tail
// and following backward pointers to the head.
func (s *SkipList) IterRev(fn func(key Key, value any)) {
	cur := s.tail()
	for cur != nil {
		fn(cur.key, cur.value)
		cur = cur.backward
	}
}

func (s *SkipList) tail() *node {
	cur := s.head
	for i := s.level - 1; i >= 0; i-- {
		for cur.forward[i] != nil {
			cur = cur.forward[i]
		}
	}
	if cur == s.head {
		return nil
	}
	return cur
}

// Range walks keys k with start <= k < end, in ascending order.
func (s *SkipList) Range(start, end Key, fn func(key Key, value any)) {
	cur := s.head
	for i := s.level - 1; i >= 0; i-- {
		for cur.forward[i] != nil && cur.forward[i].key.Less(start) {
			cur = cur.forward[i]
		}
	}
	cur = cur.forward[0]
	for cur != nil && cur.key.Less(end) {
		fn(cur.key, cur.value)
		cur = cur.forward[0]
	}
}

// Entries materializes all pairs in ascending order, for serialization.
func (s *SkipList) Entries() []struct {
	Key   Key
	Value any
} {
	out := make([]struct {
		Key   Key
		Value any
	}, 0, s.n)
	s.Iter(func(k Key, v any) {
		out = append(out, struct {
			Key   Key
			Value any
		}{k, v})
	})
	return out
}
