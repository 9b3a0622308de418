// Package intset implements a sorted integer set with adaptive element
// width: 16, 32, or 64 bits, widening as needed and never narrowing back down.
package intset

import "sort"

// Width identifies which backing slice is active.
type Width uint8

const (
	Width16 Width = iota
	Width32
	Width64
)

// IntSet is a sorted, adaptively-encoded set of int64 values.
type IntSet struct {
	width Width
	v16   []int16
	v32   []int32
	v64   []int64
}

// New constructs an empty IntSet at the narrowest encoding.
func New() *IntSet {
	return &IntSet{width: Width16}
}

// Len returns the number of elements.
func (s *IntSet) Len() int {
	switch s.width {
	case Width16:
		return len(s.v16)
	case Width32:
		return len(s.v32)
	default:
		return len(s.v64)
	}
}

// Width reports the current encoding width.
func (s *IntSet) Width() Width { return s.width }

func widthFor(v int64) Width {
	switch {
	case v >= -1<<15 && v < 1<<15:
		return Width16
	case v >= -1<<31 && v < 1<<31:
		return Width32
	default:
		return Width64
	}
}

// Contains reports whether v is a member. Values out of range of the
// current encoding width are rejected without a conversion.
func (s *IntSet) Contains(v int64) bool {
	switch s.width {
	case Width16:
		if widthFor(v) != Width16 {
			return false
		}
		i := int16(v)
		idx := sort.Search(len(s.v16), func(i2 int) bool { return s.v16[i2] >= i })
		return idx < len(s.v16) && s.v16[idx] == i
	case Width32:
		if w := widthFor(v); w != Width16 && w != Width32 {
			return false
		}
		i := int32(v)
		idx := sort.Search(len(s.v32), func(i2 int) bool { return s.v32[i2] >= i })
		return idx < len(s.v32) && s.v32[idx] == i
	default:
		idx := sort.Search(len(s.v64), func(i2 int) bool { return s.v64[i2] >= v })
		return idx < len(s.v64) && s.v64[idx] == v
	}
}

// upgrade converts the backing slice to a wider encoding. Width never
// decreases afterwards.
func (s *IntSet) upgrade(to Width) {
	switch {
	case s.width == Width16 && to == Width32:
		s.v32 = make([]int32, len(s.v16))
		for i, v := range s.v16 {
			s.v32[i] = int32(v)
		}
		s.v16 = nil
		s.width = Width32
	case s.width == Width16 && to == Width64:
		s.v64 = make([]int64, len(s.v16))
		for i, v := range s.v16 {
			s.v64[i] = int64(v)
		}
		s.v16 = nil
		s.width = Width64
	case s.width == Width32 && to == Width64:
		s.v64 = make([]int64, len(s.v32))
		for i, v := range s.v32 {
			s.v64[i] = int64(v)
		}
		s.v32 = nil
		s.width = Width64
	}
}

// Insert adds v, widening the encoding first if v does not fit the current
// width. Returns true if v was newly inserted.
func (s *IntSet) Insert(v int64) bool {
	need := widthFor(v)
	if need > s.width {
		s.upgrade(need)
	}

	switch s.width {
	case Width16:
		i := int16(v)
		idx := sort.Search(len(s.v16), func(j int) bool { return s.v16[j] >= i })
		if idx < len(s.v16) && s.v16[idx] == i {
			return false
		}
		s.v16 = append(s.v16, 0)
		copy(s.v16[idx+1:], s.v16[idx:])
		s.v16[idx] = i
	case Width32:
		i := int32(v)
		idx := sort.Search(len(s.v32), func(j int) bool { return s.v32[j] >= i })
		if idx < len(s.v32) && s.v32[idx] == i {
			return false
		}
		s.v32 = append(s.v32, 0)
		copy(s.v32[idx+1:], s.v32[idx:])
		s.v32[idx] = i
	default:
		idx := sort.Search(len(s.v64), func(j int) bool { return s.v64[j] >= v })
		if idx < len(s.v64) && s.v64[idx] == v {
			return false
		}
		s.v64 = append(s.v64, 0)
		copy(s.v64[idx+1:], s.v64[idx:])
		s.v64[idx] = v
	}
	return true
}

// Remove deletes v, returning whether it was present. Removal never
// narrows the encoding width.
func (s *IntSet) Remove(v int64) bool {
	switch s.width {
	case Width16:
		if widthFor(v) != Width16 {
			return false
		}
		i := int16(v)
		idx := sort.Search(len(s.v16), func(j int) bool { return s.v16[j] >= i })
		if idx >= len(s.v16) || s.v16[idx] != i {
			return false
		}
		s.v16 = append(s.v16[:idx], s.v16[idx+1:]...)
		return true
	case Width32:
		if w := widthFor(v); w != Width16 && w != Width32 {
			return false
		}
		i := int32(v)
		idx := sort.Search(len(s.v32), func(j int) bool { return s.v32[j] >= i })
		if idx >= len(s.v32) || s.v32[idx] != i {
			return false
		}
		s.v32 = append(s.v32[:idx], s.v32[idx+1:]...)
		return true
	default:
		idx := sort.Search(len(s.v64), func(j int) bool { return s.v64[j] >= v })
		if idx >= len(s.v64) || s.v64[idx] != v {
			return false
		}
		s.v64 = append(s.v64[:idx], s.v64[idx+1:]...)
		return true
	}
}

// Iter calls fn for every element in ascending order.
func (s *IntSet) Iter(fn func(int64)) {
	switch s.width {
	case Width16:
		for _, v := range s.v16 {
			fn(int64(v))
		}
	case Width32:
		for _, v := range s.v32 {
			fn(int64(v))
		}
	default:
		for _, v := range s.v64 {
			fn(int64(v))
		}
	}
}

// IterRev calls fn for every element in descending order.
func (s *IntSet) IterRev(fn func(int64)) {
	switch s.width {
	case Width16:
		for i := len(s.v16) - 1; i >= 0; i-- {
			fn(int64(s.v16[i]))
		}
	case Width32:
		for i := len(s.v32) - 1; i >= 0; i-- {
			fn(int64(s.v32[i]))
		}
	default:
		for i := len(s.v64) - 1; i >= 0; i-- {
			fn(int64(s.v64[i]))
		}
	}
}

// IterRange calls fn for every element v with start <= v <= end, in
// ascending order, locating the starting point with binary search. Returns
// immediately (no callbacks) if start > end.
func (s *IntSet) IterRange(start, end int64, fn func(int64)) {
	if start > end {
		return
	}
	switch s.width {
	case Width16:
		lo := int16(clampTo(start, Width16))
		idx := sort.Search(len(s.v16), func(j int) bool { return s.v16[j] >= lo })
		for ; idx < len(s.v16) && int64(s.v16[idx]) <= end; idx++ {
			fn(int64(s.v16[idx]))
		}
	case Width32:
		lo := int32(clampTo(start, Width32))
		idx := sort.Search(len(s.v32), func(j int) bool { return s.v32[j] >= lo })
		for ; idx < len(s.v32) && int64(s.v32[idx]) <= end; idx++ {
			fn(int64(s.v32[idx]))
		}
	default:
		idx := sort.Search(len(s.v64), func(j int) bool { return s.v64[j] >= start })
		for ; idx < len(s.v64) && s.v64[idx] <= end; idx++ {
			fn(s.v64[idx])
		}
	}
}

// clampTo clamps v into the representable range of width w, so a binary
// search bound derived from a wider-range start/end never overflows the
// narrower slice's element type.
func clampTo(v int64, w Width) int64 {
	var lo, hi int64
	switch w {
	case Width16:
		lo, hi = -1<<15, 1<<15-1
	case Width32:
		lo, hi = -1<<31, 1<<31-1
	default:
		return v
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clone returns an independent deep copy.
func (s *IntSet) Clone() *IntSet {
	out := &IntSet{width: s.width}
	out.v16 = append([]int16(nil), s.v16...)
	out.v32 = append([]int32(nil), s.v32...)
	out.v64 = append([]int64(nil), s.v64...)
	return out
}
