package availability

import "fmt"

// entry is one snapshot in the profile: from Time until the next entry's
// time, Free is the set of available PEs.
type entry struct {
	Time float64
	Free RangeList
}

// Profile tracks, over continuous virtual time, which PEs are free and at
// what moments that set changes. Invariants: entry times are strictly
// increasing, the first entry covers "now or earlier", adjacent entries with
// equal free sets are coalesced, and the profile is never empty.
type Profile struct {
	entries []entry
	totalPE int
}

// Handle is a compact descriptor of one allocation, enabling O(touched)
// rollback on cancellation.
type Handle struct {
	Start  float64
	Finish float64
	Ranges RangeList
}

// NewProfile creates a profile with all of [0, totalPE-1] free from time 0.
func NewProfile(totalPE int) *Profile {
	return &Profile{
		entries: []entry{{Time: 0, Free: NewRangeList(0, totalPE-1)}},
		totalPE: totalPE,
	}
}

// NewProfileFromRanges creates a profile whose universe is an arbitrary PE
// subset, free from time 0. Used for partitioned scheduling.
func NewProfileFromRanges(free RangeList) *Profile {
	return &Profile{
		entries: []entry{{Time: 0, Free: free.Clone()}},
		totalPE: free.Count(),
	}
}

// TotalPE returns the size of the PE universe this profile covers.
func (p *Profile) TotalPE() int { return p.totalPE }

// indexAt returns the index of the last entry whose time is <= t.
// Times before the first entry map to the first entry.
func (p *Profile) indexAt(t float64) int {
	idx := 0
	for i, e := range p.entries {
		if e.Time > t {
			break
		}
		idx = i
	}
	return idx
}

// AdvanceTo collapses all entries at or before now into a single entry at
// now. Past capacity changes can no longer influence any decision.
func (p *Profile) AdvanceTo(now float64) {
	idx := p.indexAt(now)
	if idx == 0 && p.entries[0].Time >= now {
		return
	}
	head := entry{Time: now, Free: p.entries[idx].Free}
	p.entries = append([]entry{head}, p.entries[idx+1:]...)
}

// FreeCountAt returns the number of free PEs at time t.
func (p *Profile) FreeCountAt(t float64) int {
	return p.entries[p.indexAt(t)].Free.Count()
}

// FreeAt returns the free set at time t.
func (p *Profile) FreeAt(t float64) RangeList {
	return p.entries[p.indexAt(t)].Free.Clone()
}

// CheckImmediate returns numPE PEs continuously free for duration starting
// at the profile head, or nil if no such set exists.
func (p *Profile) CheckImmediate(duration float64, numPE int) RangeList {
	return p.CheckAvailability(p.entries[0].Time, duration, numPE)
}

// CheckAvailability returns numPE PEs continuously free across
// [start, start+duration), or nil.
func (p *Profile) CheckAvailability(start, duration float64, numPE int) RangeList {
	inter := p.windowIntersection(start, start+duration)
	if inter.Count() < numPE {
		return nil
	}
	return inter.First(numPE)
}

// windowIntersection intersects the free sets of every entry overlapping
// [start, finish).
func (p *Profile) windowIntersection(start, finish float64) RangeList {
	idx := p.indexAt(start)
	inter := p.entries[idx].Free.Clone()
	for i := idx + 1; i < len(p.entries) && p.entries[i].Time < finish; i++ {
		inter = inter.Intersection(p.entries[i].Free)
		if inter.Empty() {
			break
		}
	}
	return inter
}

// FindStartTime locates the earliest start >= notEarlierThan at which numPE
// PEs are continuously free for duration. Ties resolve to the earliest start
// and, within it, the lowest PE indices. The boolean is false when the
// universe can never satisfy the demand.
func (p *Profile) FindStartTime(duration float64, numPE int, notEarlierThan float64) (float64, RangeList, bool) {
	if numPE > p.totalPE {
		return 0, nil, false
	}
	first := p.indexAt(notEarlierThan)
	for i := first; i < len(p.entries); i++ {
		start := p.entries[i].Time
		if start < notEarlierThan {
			start = notEarlierThan
		}
		inter := p.entries[i].Free.Clone()
		if inter.Count() < numPE {
			continue
		}
		finish := start + duration
		feasible := true
		for j := i + 1; j < len(p.entries) && p.entries[j].Time < finish; j++ {
			inter = inter.Intersection(p.entries[j].Free)
			if inter.Count() < numPE {
				feasible = false
				break
			}
		}
		if feasible {
			return start, inter.First(numPE), true
		}
	}
	return 0, nil, false
}

// ensureBoundary inserts an entry at exactly t (cloning the covering free
// set) unless one exists, and returns its index.
func (p *Profile) ensureBoundary(t float64) int {
	idx := p.indexAt(t)
	if p.entries[idx].Time == t {
		return idx
	}
	if t < p.entries[0].Time {
		// boundary before the head: the head already covers "now or
		// earlier", clamp to it
		return 0
	}
	e := entry{Time: t, Free: p.entries[idx].Free.Clone()}
	p.entries = append(p.entries, entry{})
	copy(p.entries[idx+2:], p.entries[idx+1:])
	p.entries[idx+1] = e
	return idx + 1
}

// Allocate subtracts ranges from every entry in [start, finish), inserting
// boundary entries as needed. The returned handle undoes the allocation via
// Rollback or Release.
func (p *Profile) Allocate(start, finish float64, ranges RangeList) Handle {
	lo := p.ensureBoundary(start)
	p.ensureBoundary(finish)
	for i := lo; i < len(p.entries) && p.entries[i].Time < finish; i++ {
		p.entries[i].Free = p.entries[i].Free.Difference(ranges)
	}
	p.coalesce()
	return Handle{Start: start, Finish: finish, Ranges: ranges.Clone()}
}

// Release unions ranges back into every entry in [start, finish).
func (p *Profile) Release(start, finish float64, ranges RangeList) {
	lo := p.ensureBoundary(start)
	p.ensureBoundary(finish)
	for i := lo; i < len(p.entries) && p.entries[i].Time < finish; i++ {
		p.entries[i].Free = p.entries[i].Free.Union(ranges)
	}
	p.coalesce()
}

// Rollback undoes a prior Allocate.
func (p *Profile) Rollback(h Handle) {
	p.Release(h.Start, h.Finish, h.Ranges)
}

// Slot is one homogeneous stretch of the profile.
type Slot struct {
	Start  float64
	End    float64
	Ranges RangeList
}

// TimeSlots enumerates the (start, end, free-set) stretches covering
// [from, to).
func (p *Profile) TimeSlots(from, to float64) []Slot {
	var slots []Slot
	idx := p.indexAt(from)
	for i := idx; i < len(p.entries) && p.entries[i].Time < to; i++ {
		start := p.entries[i].Time
		if start < from {
			start = from
		}
		end := to
		if i+1 < len(p.entries) && p.entries[i+1].Time < to {
			end = p.entries[i+1].Time
		}
		slots = append(slots, Slot{Start: start, End: end, Ranges: p.entries[i].Free.Clone()})
	}
	return slots
}

// coalesce removes entries whose free set equals their predecessor's.
func (p *Profile) coalesce() {
	out := p.entries[:1]
	for _, e := range p.entries[1:] {
		if e.Free.Equal(out[len(out)-1].Free) {
			continue
		}
		out = append(out, e)
	}
	p.entries = out
}

// check validates the profile invariants; used by tests.
func (p *Profile) check() error {
	if len(p.entries) == 0 {
		return fmt.Errorf("profile is empty")
	}
	for i := 1; i < len(p.entries); i++ {
		if p.entries[i].Time <= p.entries[i-1].Time {
			return fmt.Errorf("entry times not strictly increasing at %d", i)
		}
		if p.entries[i].Free.Equal(p.entries[i-1].Free) {
			return fmt.Errorf("uncoalesced equal entries at %d", i)
		}
	}
	for i, e := range p.entries {
		for j, r := range e.Free {
			if r.Lo > r.Hi {
				return fmt.Errorf("entry %d range %d inverted", i, j)
			}
			if j > 0 && r.Lo <= e.Free[j-1].Hi+1 {
				return fmt.Errorf("entry %d ranges overlap or uncoalesced at %d", i, j)
			}
		}
	}
	return nil
}
