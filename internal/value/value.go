// Package value defines the tagged union stored under every key in Zumic.
//
// Dispatch across variants is a plain type switch on Kind, never an
// interface method set: the storage engine matches on Kind and fails with
// WrongType on mismatch, rather than relying on virtual calls.
package value

import (
	"github.com/zumic/zumic/internal/hyperloglog"
	"github.com/zumic/zumic/internal/intset"
	"github.com/zumic/zumic/internal/sds"
	"github.com/zumic/zumic/internal/skiplist"
	"github.com/zumic/zumic/internal/smarthash"
)

// Kind tags which field of Value is populated.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindStr
	KindHash
	KindList
	KindSet
	KindZSet
	KindHLL
	KindGeoSet
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindStr:
		return "string"
	case KindHash:
		return "hash"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	case KindZSet:
		return "zset"
	case KindHLL:
		return "hyperloglog"
	case KindGeoSet:
		return "geoset"
	default:
		return "unknown"
	}
}

// GeoPoint is a single member of a GeoSet: longitude/latitude plus the
// member's own byte-string identity.
type GeoPoint struct {
	Member             sds.SDS
	Longitude, Latitude float64
}

// GeoSet holds geo-tagged members. Distance/radius query math is not part
// of this store; this type only owns storage of the members. StorageEngine
// has no geo-specific methods: a GeoSet is stored, read and persisted as a
// whole Value like any other kind.
type GeoSet struct {
	Points map[string]GeoPoint
}

func NewGeoSet() *GeoSet {
	return &GeoSet{Points: make(map[string]GeoPoint)}
}

// List is backed by a SkipList keyed by a monotonically increasing sequence
// number: PushBack appends in O(log n) and Iter walks members in insertion
// order. There is no pop, push-front or indexed access.
type List struct {
	seq  int64
	list *skiplist.SkipList
}

func NewList() *List {
	return &List{list: skiplist.New()}
}

func (l *List) PushBack(member sds.SDS) {
	l.seq++
	l.list.Insert(skiplist.Int64(l.seq), member)
}

func (l *List) Len() int { return l.list.Len() }

func (l *List) Iter(fn func(seq int64, member sds.SDS)) {
	l.list.Iter(func(k skiplist.Key, v any) {
		fn(int64(k.(skiplist.Int64)), v.(sds.SDS))
	})
}

// ZSet pairs a skip list (ordered by score, tie-broken by member) with a
// dictionary from member to score for O(1) score lookups, the same dual
// structure Redis-family sorted sets use.
type ZSet struct {
	byScore *skiplist.SkipList
	scores  map[string]float64
}

func NewZSet() *ZSet {
	return &ZSet{byScore: skiplist.New(), scores: make(map[string]float64)}
}

// Add inserts or updates member's score, keeping the score-ordered skip
// list and the member->score dict in sync.
func (z *ZSet) Add(member string, score float64) {
	if old, ok := z.scores[member]; ok {
		z.byScore.Remove(skiplist.ScoreMember{Score: old, Member: member})
	}
	z.scores[member] = score
	z.byScore.Insert(skiplist.ScoreMember{Score: score, Member: member}, member)
}

// Remove deletes member, returning whether it was present.
func (z *ZSet) Remove(member string) bool {
	old, ok := z.scores[member]
	if !ok {
		return false
	}
	delete(z.scores, member)
	z.byScore.Remove(skiplist.ScoreMember{Score: old, Member: member})
	return true
}

// Score returns member's score, if present.
func (z *ZSet) Score(member string) (float64, bool) {
	s, ok := z.scores[member]
	return s, ok
}

// Len returns the number of members.
func (z *ZSet) Len() int { return len(z.scores) }

// Range walks members in ascending score order.
func (z *ZSet) Range(fn func(member string, score float64)) {
	z.byScore.Iter(func(k skiplist.Key, v any) {
		sm := k.(skiplist.ScoreMember)
		fn(sm.Member, sm.Score)
	})
}

// Value is the tagged union stored under every key.
type Value struct {
	Kind Kind

	Bool  bool
	Int   int64
	Float float64
	Str   sds.SDS
	Hash  *smarthash.SmartHash
	List  *List
	Set   *intset.IntSet // used when every member is representable as int64
	StrSet map[string]struct{} // fallback set representation for non-integer members
	ZSet  *ZSet
	HLL   *hyperloglog.HLL
	Geo   *GeoSet
}

// Null returns the Null variant.
func Null() Value { return Value{Kind: KindNull} }

// FromBool wraps a bool.
func FromBool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// FromInt wraps an int64.
func FromInt(i int64) Value { return Value{Kind: KindInt, Int: i} }

// FromFloat wraps a float64.
func FromFloat(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// FromBytes wraps a byte string as an SDS-backed Str value.
func FromBytes(b []byte) Value { return Value{Kind: KindStr, Str: sds.FromBytes(b)} }

// FromString wraps a Go string as an SDS-backed Str value.
func FromString(s string) Value { return Value{Kind: KindStr, Str: sds.FromString(s)} }

// IsNull reports whether v is the Null variant.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Clone returns a copy of v. Str, Hash, Set and HLL interiors are deep
// copied; List, ZSet and GeoSet pointers are shared with the original.
func (v Value) Clone() Value {
	out := v
	switch v.Kind {
	case KindStr:
		out.Str = v.Str.Clone()
	case KindHash:
		if v.Hash != nil {
			out.Hash = v.Hash.Clone()
		}
	case KindSet:
		if v.Set != nil {
			out.Set = v.Set.Clone()
		}
		if v.StrSet != nil {
			out.StrSet = cloneStrSet(v.StrSet)
		}
	case KindHLL:
		if v.HLL != nil {
			out.HLL = v.HLL.Clone()
		}
	case KindList, KindZSet, KindGeoSet:
		// Deep copies of List/ZSet/GeoSet are never needed in practice:
		// these values are always replaced wholesale, never aliased across
		// keys, since rename/renamenx move the value instead of
		// duplicating it. A shallow copy of the pointer preserves the
		// single-owner invariant as a result.
	}
	return out
}

func cloneStrSet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}
