package chart

import (
	"fmt"
	"strconv"
	"strings"
)

// SiteKey addresses one probing point on one tooth.
type SiteKey struct {
	Tooth int
	Point Point
}

func (k SiteKey) String() string { return fmt.Sprintf("%d_%s", k.Tooth, k.Point) }

// MarshalText renders the key as "18_db" so maps keyed by SiteKey encode as JSON objects.
func (k SiteKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *SiteKey) UnmarshalText(b []byte) error {
	tooth, rest, err := splitKey(string(b))
	if err != nil {
		return err
	}
	p, err := ParsePoint(rest)
	if err != nil {
		return err
	}
	*k = SiteKey{Tooth: tooth, Point: p}
	return nil
}

// Quadrant is one of the four crown facets used for plaque charting.
type Quadrant string

const (
	QuadrantTop    Quadrant = "top"
	QuadrantRight  Quadrant = "right"
	QuadrantBottom Quadrant = "bottom"
	QuadrantLeft   Quadrant = "left"
)

// Quadrants lists the facets in charting order.
var Quadrants = []Quadrant{QuadrantTop, QuadrantRight, QuadrantBottom, QuadrantLeft}

func ParseQuadrant(s string) (Quadrant, error) {
	q := Quadrant(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Quadrants {
		if q == known {
			return q, nil
		}
	}
	return "", fmt.Errorf("unknown plaque quadrant %q", s)
}

// PlaqueKey addresses one crown facet on one tooth.
type PlaqueKey struct {
	Tooth    int
	Quadrant Quadrant
}

func (k PlaqueKey) String() string { return fmt.Sprintf("%d_%s", k.Tooth, k.Quadrant) }

func (k PlaqueKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *PlaqueKey) UnmarshalText(b []byte) error {
	tooth, rest, err := splitKey(string(b))
	if err != nil {
		return err
	}
	q, err := ParseQuadrant(rest)
	if err != nil {
		return err
	}
	*k = PlaqueKey{Tooth: tooth, Quadrant: q}
	return nil
}

func splitKey(s string) (int, string, error) {
	toothPart, rest, ok := strings.Cut(s, "_")
	if !ok {
		return 0, "", fmt.Errorf("malformed key %q", s)
	}
	tooth, err := strconv.Atoi(toothPart)
	if err != nil || !IsValidTooth(tooth) {
		return 0, "", fmt.Errorf("malformed key %q: bad tooth number", s)
	}
	return tooth, rest, nil
}

// Phase is an examination checkpoint tag. The engine carries it without interpreting it.
type Phase string

const (
	PhaseNone  Phase = ""
	PhaseExam1 Phase = "P_EXAM_1"
	PhaseExam2 Phase = "P_EXAM_2"
	PhaseExam3 Phase = "P_EXAM_3"
	PhaseExam4 Phase = "P_EXAM_4"
	PhaseExam5 Phase = "P_EXAM_5"
	PhaseSPT   Phase = "SPT"
	PhaseOther Phase = "OTHER"
)

func ParsePhase(s string) (Phase, error) {
	p := Phase(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case PhaseNone, PhaseExam1, PhaseExam2, PhaseExam3, PhaseExam4, PhaseExam5, PhaseSPT, PhaseOther:
		return p, nil
	}
	return "", fmt.Errorf("unknown examination phase %q", s)
}

// ExamRecord is the committed, self-contained result of one charting session.
type ExamRecord struct {
	Scheme       Scheme             `json:"scheme"`
	Phase        Phase              `json:"phase,omitempty"`
	Depth        map[SiteKey]int    `json:"depth"`
	Bleeding     map[SiteKey]bool   `json:"bleeding"`
	Suppuration  map[SiteKey]bool   `json:"suppuration"`
	Plaque       map[PlaqueKey]bool `json:"plaque"`
	Mobility     map[int]int        `json:"mobility"`
	MissingTeeth []int              `json:"missingTeeth"`
}
