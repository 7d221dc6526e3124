package chart

import "sort"

// UpperSequence and LowerSequence are the arches as charted on screen, left to right.
var (
	UpperSequence = [ArchWidth]int{18, 17, 16, 15, 14, 13, 12, 11, 21, 22, 23, 24, 25, 26, 27, 28}
	LowerSequence = [ArchWidth]int{48, 47, 46, 45, 44, 43, 42, 41, 31, 32, 33, 34, 35, 36, 37, 38}
)

// ArchWidth is the number of tooth slots per arch row.
const ArchWidth = 16

// WisdomTeeth are excluded from entry by default.
var WisdomTeeth = []int{18, 28, 38, 48}

// IsValidTooth reports whether n is an FDI permanent tooth number (11-18, 21-28, 31-38, 41-48).
func IsValidTooth(n int) bool {
	quadrant, pos := n/10, n%10
	return quadrant >= 1 && quadrant <= 4 && pos >= 1 && pos <= 8
}

// AllTeeth returns every tooth in display order, upper arch first.
func AllTeeth() []int {
	teeth := make([]int, 0, 2*ArchWidth)
	teeth = append(teeth, UpperSequence[:]...)
	teeth = append(teeth, LowerSequence[:]...)
	return teeth
}

// ToothSet is a set of tooth numbers.
type ToothSet map[int]struct{}

// NewToothSet builds a set from any number of tooth lists.
func NewToothSet(lists ...[]int) ToothSet {
	s := make(ToothSet)
	for _, l := range lists {
		for _, n := range l {
			s[n] = struct{}{}
		}
	}
	return s
}

func (s ToothSet) Has(n int) bool {
	_, ok := s[n]
	return ok
}

func (s ToothSet) Add(n int) { s[n] = struct{}{} }

// Sorted returns the members in ascending order.
func (s ToothSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Clone returns an independent copy.
func (s ToothSet) Clone() ToothSet {
	c := make(ToothSet, len(s))
	for n := range s {
		c[n] = struct{}{}
	}
	return c
}
