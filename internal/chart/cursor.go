package chart

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultRetryCeiling bounds how many raw steps AdvanceSkippingMissing takes before giving up.
const DefaultRetryCeiling = 100

// Position is the cursor: which traversal pass, which tooth slot of that arch, which point slot.
type Position struct {
	Pass  int `json:"pass" yaml:"pass"`
	Tooth int `json:"tooth" yaml:"tooth"`
	Point int `json:"point" yaml:"point"`
}

// Contains reports whether pos addresses a point the scheme collects.
func (s Scheme) Contains(pos Position) bool {
	passes := s.Passes()
	if pos.Pass < 0 || pos.Pass >= len(passes) || pos.Tooth < 0 || pos.Tooth >= ArchWidth {
		return false
	}
	return passes[pos.Pass].HasSlot(pos.Point)
}

// ToothAt returns the tooth number under pos. pos must be inside the grid.
func ToothAt(s Scheme, pos Position) int {
	return s.Passes()[pos.Pass].Arch.Sequence()[pos.Tooth]
}

// KeyAt returns the measurement key under pos. pos must be inside the grid.
func KeyAt(s Scheme, pos Position) SiteKey {
	p := s.Passes()[pos.Pass]
	return SiteKey{Tooth: p.Arch.Sequence()[pos.Tooth], Point: p.Side.Labels()[pos.Point]}
}

// Origin is the first cell of the traversal, whether or not its tooth is missing.
func Origin(s Scheme) Position {
	p := s.Passes()[0]
	return Position{Pass: 0, Tooth: p.FirstTooth(), Point: p.Slots[0]}
}

// Advance takes one step along the zig-zag. At the end of the last pass it returns pos unchanged.
func Advance(s Scheme, pos Position) Position {
	passes := s.Passes()
	if pos.Pass < 0 || pos.Pass >= len(passes) {
		return pos
	}
	p := passes[pos.Pass]

	if i := p.slotIndex(pos.Point); i >= 0 && i+1 < len(p.Slots) {
		return Position{Pass: pos.Pass, Tooth: pos.Tooth, Point: p.Slots[i+1]}
	}

	if next := pos.Tooth + p.step(); next >= 0 && next < ArchWidth {
		return Position{Pass: pos.Pass, Tooth: next, Point: p.Slots[0]}
	}

	if pos.Pass+1 >= len(passes) {
		return pos
	}
	np := passes[pos.Pass+1]
	return Position{Pass: pos.Pass + 1, Tooth: np.FirstTooth(), Point: np.Slots[0]}
}

// AdvanceSkippingMissing steps until the addressed tooth is not missing. If the traversal runs out
// first, pos is returned so the cursor stays on the last valid cell. After ceiling raw steps the
// last computed position is returned as is.
func AdvanceSkippingMissing(s Scheme, pos Position, missing ToothSet, ceiling int) Position {
	if ceiling <= 0 {
		ceiling = DefaultRetryCeiling
	}
	cur := pos
	for attempts := 0; attempts < ceiling; attempts++ {
		next := Advance(s, cur)
		if next == cur {
			return pos
		}
		if !missing.Has(ToothAt(s, next)) {
			return next
		}
		cur = next
	}
	return cur
}

// Start returns the first cell of the traversal whose tooth is not missing.
func Start(s Scheme, missing ToothSet, ceiling int) Position {
	pos := Origin(s)
	if !missing.Has(ToothAt(s, pos)) {
		return pos
	}
	return AdvanceSkippingMissing(s, pos, missing, ceiling)
}

// Direction is a manual cursor move.
type Direction string

const (
	Left  Direction = "left"
	Right Direction = "right"
	Up    Direction = "up"
	Down  Direction = "down"
)

func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case Left, Right, Up, Down:
		return d, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

// Navigate moves the cursor on screen without following the traversal. Left and right walk the
// row point by point, hopping over missing teeth; up and down change row. Edges clamp.
func Navigate(s Scheme, pos Position, dir Direction, missing ToothSet) Position {
	if !s.Contains(pos) {
		return pos
	}
	passes := s.Passes()

	switch dir {
	case Left, Right:
		step := 1
		if dir == Left {
			step = -1
		}
		cand := pos
		for {
			next, ok := stepCell(passes[pos.Pass], cand, step)
			if !ok {
				return pos
			}
			cand = next
			if !missing.Has(ToothAt(s, cand)) {
				return cand
			}
		}
	case Up, Down:
		row := pos.Pass - 1
		if dir == Down {
			row = pos.Pass + 1
		}
		if row < 0 || row >= len(passes) {
			return pos
		}
		cand := Position{Pass: row, Tooth: pos.Tooth, Point: nearestSlot(passes[row], pos.Point)}
		if missing.Has(ToothAt(s, cand)) {
			return pos
		}
		return cand
	}
	return pos
}

func screenSlots(p Pass) []int {
	slots := append([]int(nil), p.Slots...)
	sort.Ints(slots)
	return slots
}

func stepCell(p Pass, pos Position, step int) (Position, bool) {
	slots := screenSlots(p)
	i := sort.SearchInts(slots, pos.Point) + step
	if i >= 0 && i < len(slots) {
		return Position{Pass: pos.Pass, Tooth: pos.Tooth, Point: slots[i]}, true
	}
	tooth := pos.Tooth + step
	if tooth < 0 || tooth >= ArchWidth {
		return pos, false
	}
	if step > 0 {
		return Position{Pass: pos.Pass, Tooth: tooth, Point: slots[0]}, true
	}
	return Position{Pass: pos.Pass, Tooth: tooth, Point: slots[len(slots)-1]}, true
}

func nearestSlot(p Pass, point int) int {
	best := p.Slots[0]
	for _, s := range p.Slots {
		if abs(s-point) < abs(best-point) {
			best = s
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Cursor is the single authority for where the next value lands.
type Cursor struct {
	scheme  Scheme
	pos     Position
	ceiling int
}

// NewCursor places a cursor on the first valid cell.
func NewCursor(s Scheme, missing ToothSet, ceiling int) *Cursor {
	if ceiling <= 0 {
		ceiling = DefaultRetryCeiling
	}
	return &Cursor{scheme: s, pos: Start(s, missing, ceiling), ceiling: ceiling}
}

func (c *Cursor) Scheme() Scheme     { return c.scheme }
func (c *Cursor) Position() Position { return c.pos }
func (c *Cursor) Key() SiteKey       { return KeyAt(c.scheme, c.pos) }
func (c *Cursor) Tooth() int         { return ToothAt(c.scheme, c.pos) }

// MoveTo repositions the cursor absolutely.
func (c *Cursor) MoveTo(pos Position, missing ToothSet) error {
	if !c.scheme.Contains(pos) {
		return fmt.Errorf("%+v: %w", pos, ErrOutOfGrid)
	}
	if t := ToothAt(c.scheme, pos); missing.Has(t) {
		return fmt.Errorf("tooth %d: %w", t, ErrMissingTooth)
	}
	c.pos = pos
	return nil
}

func (c *Cursor) Navigate(dir Direction, missing ToothSet) Position {
	c.pos = Navigate(c.scheme, c.pos, dir, missing)
	return c.pos
}

// Advance moves to the next valid cell.
func (c *Cursor) Advance(missing ToothSet) Position {
	c.pos = AdvanceSkippingMissing(c.scheme, c.pos, missing, c.ceiling)
	return c.pos
}

// PlanValues computes the depth writes for a run of values starting at the current cursor, and
// the position the cursor ends on. Neither the cursor nor any store is touched.
func (c *Cursor) PlanValues(values []int, missing ToothSet) ([]Write, Position) {
	writes := make([]Write, 0, len(values))
	pos := c.pos
	for _, v := range values {
		if key := KeyAt(c.scheme, pos); !missing.Has(key.Tooth) {
			writes = append(writes, Write{Field: FieldDepth, Site: key, Value: v})
		}
		pos = AdvanceSkippingMissing(c.scheme, pos, missing, c.ceiling)
	}
	return writes, pos
}

// WriteValues applies a run of depth values as one batch and moves the cursor past them.
// It returns the number of keys written.
func (c *Cursor) WriteValues(store *Store, values []int) (int, error) {
	writes, end := c.PlanValues(values, store.missing)
	if err := store.Apply(writes); err != nil {
		return 0, err
	}
	c.pos = end
	return len(writes), nil
}

// WriteValue writes one depth at the cursor and advances.
func (c *Cursor) WriteValue(store *Store, v int) error {
	if store.IsMissing(c.Tooth()) {
		return fmt.Errorf("tooth %d: %w", c.Tooth(), ErrMissingTooth)
	}
	_, err := c.WriteValues(store, []int{v})
	return err
}
