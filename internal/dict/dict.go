// Package dict implements an incrementally rehashing hash table: two
// tables plus a rehash cursor, so that growing the table never produces a
// pause.
package dict

import (
	"math/rand"

	"github.com/cespare/xxhash/v2"
)

const initialSize = 4

type bucketEntry struct {
	key   string
	value any
	next  *bucketEntry
}

type table struct {
	buckets []*bucketEntry
	mask    uint64
	used    int
}

func newTable(size uint64) *table {
	if size < 1 {
		size = 1
	}
	// Round up to a power of two so indexing can use a bitmask.
	sz := uint64(1)
	for sz < size {
		sz <<= 1
	}
	return &table{buckets: make([]*bucketEntry, sz), mask: sz - 1}
}

// Dict is a chained hash table with incremental rehashing. The zero value
// is not usable; construct with New.
type Dict struct {
	ht       [2]*table
	rehashIdx int // -1 when not rehashing
	seed      uint64
}

// New constructs an empty Dict.
func New() *Dict {
	return &Dict{
		ht:        [2]*table{newTable(initialSize), nil},
		rehashIdx: -1,
		seed:      rand.Uint64(),
	}
}

func (d *Dict) hash(key string) uint64 {
	return xxhash.Sum64String(key) ^ d.seed
}

// Len returns the number of keys currently stored.
func (d *Dict) Len() int {
	n := d.ht[0].used
	if d.ht[1] != nil {
		n += d.ht[1].used
	}
	return n
}

func (d *Dict) rehashing() bool { return d.rehashIdx != -1 }

// rehashStep migrates one bucket from ht[0] to ht[1]. When the cursor
// reaches the end of ht[0], ht[1] is promoted to ht[0] and rehashing stops.
func (d *Dict) rehashStep() {
	if !d.rehashing() {
		return
	}
	src := d.ht[0]
	for d.rehashIdx < len(src.buckets) && src.buckets[d.rehashIdx] == nil {
		d.rehashIdx++
	}
	if d.rehashIdx >= len(src.buckets) {
		d.ht[0] = d.ht[1]
		d.ht[1] = nil
		d.rehashIdx = -1
		return
	}

	e := src.buckets[d.rehashIdx]
	src.buckets[d.rehashIdx] = nil
	dst := d.ht[1]
	for e != nil {
		next := e.next
		h := d.hash(e.key) & dst.mask
		e.next = dst.buckets[h]
		dst.buckets[h] = e
		dst.used++
		src.used--
		e = next
	}
	d.rehashIdx++
}

// expandIfNeeded starts a rehash when ht[0]'s load factor reaches 1.
func (d *Dict) expandIfNeeded() {
	if d.rehashing() {
		return
	}
	if d.ht[0].used < len(d.ht[0].buckets) {
		return
	}
	d.ht[1] = newTable(uint64(len(d.ht[0].buckets)) * 2)
	d.rehashIdx = 0
}

// Insert sets key's value, overwriting any prior value. It returns true if
// the key was newly created.
func (d *Dict) Insert(key string, val any) bool {
	d.expandIfNeeded()
	d.rehashStep()

	h := d.hash(key)

	if d.rehashing() {
		if found := findIn(d.ht[1], h, key); found != nil {
			found.value = val
			return false
		}
	}
	if found := findIn(d.ht[0], h, key); found != nil {
		found.value = val
		return false
	}

	active := d.ht[0]
	if d.rehashing() {
		active = d.ht[1]
	}
	idx := h & active.mask
	e := &bucketEntry{key: key, value: val, next: active.buckets[idx]}
	active.buckets[idx] = e
	active.used++
	return true
}

func findIn(t *table, h uint64, key string) *bucketEntry {
	idx := h & t.mask
	for e := t.buckets[idx]; e != nil; e = e.next {
		if e.key == key {
			return e
		}
	}
	return nil
}

// Get looks up key, performing one rehash step if a rehash is in progress.
func (d *Dict) Get(key string) (any, bool) {
	d.rehashStep()
	h := d.hash(key)
	if e := findIn(d.ht[0], h, key); e != nil {
		return e.value, true
	}
	if d.rehashing() {
		if e := findIn(d.ht[1], h, key); e != nil {
			return e.value, true
		}
	}
	return nil, false
}

// Remove deletes key, returning whether it was present.
func (d *Dict) Remove(key string) bool {
	d.rehashStep()
	h := d.hash(key)
	if removeFrom(d.ht[0], h, key) {
		return true
	}
	if d.rehashing() {
		return removeFrom(d.ht[1], h, key)
	}
	return false
}

func removeFrom(t *table, h uint64, key string) bool {
	idx := h & t.mask
	var prev *bucketEntry
	for e := t.buckets[idx]; e != nil; e = e.next {
		if e.key == key {
			if prev == nil {
				t.buckets[idx] = e.next
			} else {
				prev.next = e.next
			}
			t.used--
			return true
		}
		prev = e
	}
	return false
}

// Iter yields each key once across both tables, in unspecified order.
func (d *Dict) Iter(fn func(key string, value any)) {
	for _, t := range d.ht {
		if t == nil {
			continue
		}
		for _, head := range t.buckets {
			for e := head; e != nil; e = e.next {
				fn(e.key, e.value)
			}
		}
	}
}
