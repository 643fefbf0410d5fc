// Package grid defines the commonly used data structures for tile grids.
package grid

import (
	"fmt"
	"sort"
)

// A CoreCoord is the logical coordinate of a worker core on the grid.
type CoreCoord struct {
	X, Y int
}

func (c CoreCoord) String() string {
	return fmt.Sprintf("(%d, %d)", c.X, c.Y)
}

// Less orders coordinates row-major, Y first.
func (c CoreCoord) Less(o CoreCoord) bool {
	if c.Y != o.Y {
		return c.Y < o.Y
	}
	return c.X < o.X
}

// A CoreRange is an inclusive rectangle of core coordinates.
type CoreRange struct {
	Start, End CoreCoord
}

// SingleCore returns the range that covers exactly one core.
func SingleCore(c CoreCoord) CoreRange {
	return CoreRange{Start: c, End: c}
}

func (r CoreRange) String() string {
	return fmt.Sprintf("[%s - %s]", r.Start, r.End)
}

// Contains reports whether the core lies inside the rectangle.
func (r CoreRange) Contains(c CoreCoord) bool {
	return c.X >= r.Start.X && c.X <= r.End.X &&
		c.Y >= r.Start.Y && c.Y <= r.End.Y
}

// NumCores returns the number of cores the rectangle covers.
func (r CoreRange) NumCores() int {
	return (r.End.X - r.Start.X + 1) * (r.End.Y - r.Start.Y + 1)
}

// ForEach visits every core in the rectangle in row-major order.
func (r CoreRange) ForEach(f func(CoreCoord)) {
	for y := r.Start.Y; y <= r.End.Y; y++ {
		for x := r.Start.X; x <= r.End.X; x++ {
			f(CoreCoord{X: x, Y: y})
		}
	}
}

// A CoreRangeSet is a set of core coordinates described by possibly
// overlapping rectangles.
type CoreRangeSet struct {
	ranges []CoreRange
}

// NewCoreRangeSet creates a set from the given rectangles.
func NewCoreRangeSet(ranges ...CoreRange) CoreRangeSet {
	s := CoreRangeSet{}
	s.ranges = append(s.ranges, ranges...)
	return s
}

// Ranges returns the rectangles that make up the set.
func (s CoreRangeSet) Ranges() []CoreRange {
	return s.ranges
}

// Empty reports whether the set covers no cores.
func (s CoreRangeSet) Empty() bool {
	return len(s.ranges) == 0
}

// Contains reports whether the core is covered by any rectangle.
func (s CoreRangeSet) Contains(c CoreCoord) bool {
	for _, r := range s.ranges {
		if r.Contains(c) {
			return true
		}
	}
	return false
}

// Intersects reports whether the set shares at least one core with the
// given rectangle.
func (s CoreRangeSet) Intersects(r CoreRange) bool {
	hit := false
	r.ForEach(func(c CoreCoord) {
		if s.Contains(c) {
			hit = true
		}
	})
	return hit
}

// Merge returns the union of the two sets.
func (s CoreRangeSet) Merge(o CoreRangeSet) CoreRangeSet {
	merged := CoreRangeSet{}
	merged.ranges = append(merged.ranges, s.ranges...)
	merged.ranges = append(merged.ranges, o.ranges...)
	return merged
}

// ForEach visits every covered core exactly once, in row-major order.
func (s CoreRangeSet) ForEach(f func(CoreCoord)) {
	for _, c := range s.Cores() {
		f(c)
	}
}

// Cores returns the covered cores, deduplicated and sorted row-major.
func (s CoreRangeSet) Cores() []CoreCoord {
	seen := make(map[CoreCoord]bool)
	var cores []CoreCoord
	for _, r := range s.ranges {
		r.ForEach(func(c CoreCoord) {
			if seen[c] {
				return
			}
			seen[c] = true
			cores = append(cores, c)
		})
	}
	sort.Slice(cores, func(i, j int) bool {
		return cores[i].Less(cores[j])
	})
	return cores
}

func (s CoreRangeSet) String() string {
	str := "{"
	for i, r := range s.ranges {
		if i > 0 {
			str += ", "
		}
		str += r.String()
	}
	return str + "}"
}
