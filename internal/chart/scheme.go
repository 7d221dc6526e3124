package chart

import (
	"fmt"
	"strings"
)

// Scheme is the number and layout of probing points collected per tooth.
type Scheme string

const (
	SchemeSingle Scheme = "single"
	SchemeFour   Scheme = "four"
	SchemeSix    Scheme = "six"
)

// ParseScheme accepts the canonical names as well as the "1point"/"4point"/"6point" aliases.
func ParseScheme(s string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single", "1point", "1":
		return SchemeSingle, nil
	case "four", "4point", "4":
		return SchemeFour, nil
	case "six", "6point", "6":
		return SchemeSix, nil
	}
	return "", fmt.Errorf("unknown measurement scheme %q", s)
}

// Point is a probing site label on one tooth.
type Point string

const (
	PointDistoBuccal  Point = "db"
	PointBuccal       Point = "b"
	PointMesioBuccal  Point = "mb"
	PointDistoLingual Point = "dl"
	PointLingual      Point = "l"
	PointMesioLingual Point = "ml"
)

// ParsePoint accepts the short labels and the long clinical names.
func ParsePoint(s string) (Point, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "db", "distobuccal":
		return PointDistoBuccal, nil
	case "b", "buccal":
		return PointBuccal, nil
	case "mb", "mesiobuccal":
		return PointMesioBuccal, nil
	case "dl", "distolingual":
		return PointDistoLingual, nil
	case "l", "lingual":
		return PointLingual, nil
	case "ml", "mesiolingual":
		return PointMesioLingual, nil
	}
	return "", fmt.Errorf("unknown probing point %q", s)
}

// Arch is the maxillary or mandibular row of teeth.
type Arch int

const (
	Upper Arch = iota
	Lower
)

// Sequence returns the display order of the arch.
func (a Arch) Sequence() [ArchWidth]int {
	if a == Lower {
		return LowerSequence
	}
	return UpperSequence
}

// Side is the buccal or lingual surface row.
type Side int

const (
	Buccal Side = iota
	Lingual
)

// Labels indexes the three point slots of a side: distal, mid, mesial.
func (s Side) Labels() [3]Point {
	if s == Lingual {
		return [3]Point{PointDistoLingual, PointLingual, PointMesioLingual}
	}
	return [3]Point{PointDistoBuccal, PointBuccal, PointMesioBuccal}
}

// Pass is one row of the zig-zag traversal.
type Pass struct {
	Arch        Arch
	Side        Side
	LeftToRight bool
	// Slots are the point indices visited on each tooth, in visiting order.
	Slots []int
}

// FirstTooth is the tooth index where the pass begins.
func (p Pass) FirstTooth() int {
	if p.LeftToRight {
		return 0
	}
	return ArchWidth - 1
}

func (p Pass) step() int {
	if p.LeftToRight {
		return 1
	}
	return -1
}

func (p Pass) slotIndex(point int) int {
	for i, s := range p.Slots {
		if s == point {
			return i
		}
	}
	return -1
}

// HasSlot reports whether the pass collects the given point index.
func (p Pass) HasSlot(point int) bool { return p.slotIndex(point) >= 0 }

var (
	forward  = []int{0, 1, 2}
	backward = []int{2, 1, 0}
	midOnly  = []int{1}
)

// Passes returns the traversal rows in order.
func (s Scheme) Passes() []Pass {
	switch s {
	case SchemeSingle:
		return []Pass{
			{Arch: Upper, Side: Buccal, LeftToRight: true, Slots: midOnly},
			{Arch: Lower, Side: Buccal, LeftToRight: false, Slots: midOnly},
		}
	case SchemeFour:
		return []Pass{
			{Arch: Upper, Side: Buccal, LeftToRight: true, Slots: forward},
			{Arch: Upper, Side: Lingual, LeftToRight: false, Slots: midOnly},
			{Arch: Lower, Side: Lingual, LeftToRight: false, Slots: midOnly},
			{Arch: Lower, Side: Buccal, LeftToRight: true, Slots: forward},
		}
	default:
		return []Pass{
			{Arch: Upper, Side: Buccal, LeftToRight: true, Slots: forward},
			{Arch: Upper, Side: Lingual, LeftToRight: false, Slots: backward},
			{Arch: Lower, Side: Lingual, LeftToRight: false, Slots: backward},
			{Arch: Lower, Side: Buccal, LeftToRight: true, Slots: forward},
		}
	}
}

// PassCount is 2 for single and 4 otherwise.
func (s Scheme) PassCount() int { return len(s.Passes()) }

// BuccalPoints lists the buccal labels collected, distal to mesial.
func (s Scheme) BuccalPoints() []Point {
	if s == SchemeSingle {
		return []Point{PointBuccal}
	}
	return []Point{PointDistoBuccal, PointBuccal, PointMesioBuccal}
}

// LingualPoints lists the lingual labels collected, distal to mesial.
func (s Scheme) LingualPoints() []Point {
	switch s {
	case SchemeSingle:
		return nil
	case SchemeFour:
		return []Point{PointLingual}
	}
	return []Point{PointDistoLingual, PointLingual, PointMesioLingual}
}

// ToothPoints lists every label collected on one tooth.
func (s Scheme) ToothPoints() []Point {
	return append(s.BuccalPoints(), s.LingualPoints()...)
}

// HasPoint reports whether the scheme collects p.
func (s Scheme) HasPoint(p Point) bool {
	for _, q := range s.ToothPoints() {
		if q == p {
			return true
		}
	}
	return false
}
