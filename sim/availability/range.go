// Package availability provides the PE-range algebra and the availability
// profile used by the allocation policies.
//
// A RangeList is the canonical representation of a set of processing
// elements: sorted, disjoint, coalesced closed intervals. Every mutating
// operation re-normalises so the invariant holds at all times.
package availability

import "fmt"

// Range is a closed interval [Lo, Hi] of PE indices, 0 <= Lo <= Hi.
type Range struct {
	Lo int
	Hi int
}

// Count returns the number of PEs in the range.
func (r Range) Count() int { return r.Hi - r.Lo + 1 }

func (r Range) String() string { return fmt.Sprintf("[%d,%d]", r.Lo, r.Hi) }

// RangeList is a sorted, disjoint, coalesced sequence of ranges.
// The zero value is the empty set.
type RangeList []Range

// NewRangeList builds a single-range list covering [lo, hi].
func NewRangeList(lo, hi int) RangeList {
	if lo > hi {
		return nil
	}
	return RangeList{{Lo: lo, Hi: hi}}
}

// Count returns the total number of PEs across all ranges.
func (l RangeList) Count() int {
	n := 0
	for _, r := range l {
		n += r.Count()
	}
	return n
}

// Empty reports whether the list contains no PEs.
func (l RangeList) Empty() bool { return len(l) == 0 }

// Contains reports whether pe is a member of the list.
func (l RangeList) Contains(pe int) bool {
	for _, r := range l {
		if pe < r.Lo {
			return false
		}
		if pe <= r.Hi {
			return true
		}
	}
	return false
}

// Equal reports whether two lists denote the same PE set.
// Both operands are assumed normalised, so structural equality suffices.
func (l RangeList) Equal(other RangeList) bool {
	if len(l) != len(other) {
		return false
	}
	for i := range l {
		if l[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the list.
func (l RangeList) Clone() RangeList {
	if l == nil {
		return nil
	}
	out := make(RangeList, len(l))
	copy(out, l)
	return out
}

// Union returns the normalised union of the two lists.
func (l RangeList) Union(other RangeList) RangeList {
	merged := make(RangeList, 0, len(l)+len(other))
	merged = append(merged, l...)
	merged = append(merged, other...)
	return normalize(merged)
}

// Difference returns the PEs in l that are not in other.
func (l RangeList) Difference(other RangeList) RangeList {
	out := make(RangeList, 0, len(l))
	for _, r := range l {
		segs := RangeList{r}
		for _, cut := range other {
			var next RangeList
			for _, s := range segs {
				if cut.Hi < s.Lo || cut.Lo > s.Hi {
					next = append(next, s)
					continue
				}
				if cut.Lo > s.Lo {
					next = append(next, Range{Lo: s.Lo, Hi: cut.Lo - 1})
				}
				if cut.Hi < s.Hi {
					next = append(next, Range{Lo: cut.Hi + 1, Hi: s.Hi})
				}
			}
			segs = next
			if len(segs) == 0 {
				break
			}
		}
		out = append(out, segs...)
	}
	return normalize(out)
}

// Intersection returns the PEs common to both lists.
func (l RangeList) Intersection(other RangeList) RangeList {
	var out RangeList
	i, j := 0, 0
	for i < len(l) && j < len(other) {
		lo := max(l[i].Lo, other[j].Lo)
		hi := min(l[i].Hi, other[j].Hi)
		if lo <= hi {
			out = append(out, Range{Lo: lo, Hi: hi})
		}
		if l[i].Hi < other[j].Hi {
			i++
		} else {
			j++
		}
	}
	return normalize(out)
}

// First returns the k numerically smallest PEs as a range list.
// Returns nil if the list holds fewer than k PEs.
func (l RangeList) First(k int) RangeList {
	if k <= 0 || l.Count() < k {
		return nil
	}
	var out RangeList
	remaining := k
	for _, r := range l {
		if remaining <= 0 {
			break
		}
		take := min(remaining, r.Count())
		out = append(out, Range{Lo: r.Lo, Hi: r.Lo + take - 1})
		remaining -= take
	}
	return normalize(out)
}

// normalize sorts, merges overlapping and coalesces adjacent ranges so the
// RangeList invariant holds.
func normalize(l RangeList) RangeList {
	if len(l) == 0 {
		return nil
	}
	// insertion sort by Lo; lists are short
	for i := 1; i < len(l); i++ {
		for j := i; j > 0 && l[j].Lo < l[j-1].Lo; j-- {
			l[j], l[j-1] = l[j-1], l[j]
		}
	}
	out := l[:1]
	for _, r := range l[1:] {
		last := &out[len(out)-1]
		if r.Lo <= last.Hi+1 {
			if r.Hi > last.Hi {
				last.Hi = r.Hi
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

func (l RangeList) String() string {
	s := "{"
	for i, r := range l {
		if i > 0 {
			s += ","
		}
		s += r.String()
	}
	return s + "}"
}
