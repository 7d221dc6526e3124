package chart

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allSchemes = []Scheme{SchemeSingle, SchemeFour, SchemeSix}

// walk collects every cell visited from the start until the cursor stops moving.
func walk(t *testing.T, s Scheme, missing ToothSet) []Position {
	t.Helper()
	pos := Start(s, missing, DefaultRetryCeiling)
	visited := []Position{pos}
	for i := 0; i < 500; i++ {
		next := AdvanceSkippingMissing(s, pos, missing, DefaultRetryCeiling)
		if next == pos {
			return visited
		}
		visited = append(visited, next)
		pos = next
	}
	t.Fatalf("traversal for %s did not terminate", s)
	return nil
}

func eligible(s Scheme, missing ToothSet) int {
	present := 0
	for _, tooth := range AllTeeth() {
		if !missing.Has(tooth) {
			present++
		}
	}
	return present * len(s.ToothPoints())
}

func TestAdvance_Terminal(t *testing.T) {
	tests := []struct {
		scheme   Scheme
		terminal Position
		cells    int
	}{
		{SchemeSix, Position{Pass: 3, Tooth: 15, Point: 2}, 192},
		{SchemeFour, Position{Pass: 3, Tooth: 15, Point: 2}, 128},
		{SchemeSingle, Position{Pass: 1, Tooth: 0, Point: 1}, 32},
	}

	for _, tt := range tests {
		t.Run(string(tt.scheme), func(t *testing.T) {
			cells := walk(t, tt.scheme, ToothSet{})
			require.Len(t, cells, tt.cells)
			assert.Equal(t, tt.terminal, cells[len(cells)-1])
			assert.Equal(t, tt.terminal, Advance(tt.scheme, tt.terminal))
		})
	}
}

func TestAdvance_PassTransitions(t *testing.T) {
	t.Run("six upper buccal to upper lingual", func(t *testing.T) {
		next := Advance(SchemeSix, Position{Pass: 0, Tooth: 15, Point: 2})
		assert.Equal(t, Position{Pass: 1, Tooth: 15, Point: 2}, next)
	})
	t.Run("six lingual runs mesial to distal", func(t *testing.T) {
		next := Advance(SchemeSix, Position{Pass: 1, Tooth: 15, Point: 2})
		assert.Equal(t, Position{Pass: 1, Tooth: 15, Point: 1}, next)
	})
	t.Run("six upper lingual to lower lingual", func(t *testing.T) {
		next := Advance(SchemeSix, Position{Pass: 1, Tooth: 0, Point: 0})
		assert.Equal(t, Position{Pass: 2, Tooth: 15, Point: 2}, next)
	})
	t.Run("six lower lingual to lower buccal", func(t *testing.T) {
		next := Advance(SchemeSix, Position{Pass: 2, Tooth: 0, Point: 0})
		assert.Equal(t, Position{Pass: 3, Tooth: 0, Point: 0}, next)
	})
	t.Run("four lingual collapses to mid point", func(t *testing.T) {
		next := Advance(SchemeFour, Position{Pass: 0, Tooth: 15, Point: 2})
		assert.Equal(t, Position{Pass: 1, Tooth: 15, Point: 1}, next)
		next = Advance(SchemeFour, next)
		assert.Equal(t, Position{Pass: 1, Tooth: 14, Point: 1}, next)
	})
	t.Run("four lower lingual is walked in full", func(t *testing.T) {
		next := Advance(SchemeFour, Position{Pass: 1, Tooth: 0, Point: 1})
		assert.Equal(t, Position{Pass: 2, Tooth: 15, Point: 1}, next)
	})
	t.Run("single turns onto the lower arch at the same edge", func(t *testing.T) {
		next := Advance(SchemeSingle, Position{Pass: 0, Tooth: 15, Point: 1})
		assert.Equal(t, Position{Pass: 1, Tooth: 15, Point: 1}, next)
		assert.Equal(t, 38, ToothAt(SchemeSingle, next))
	})
}

func TestAdvanceSkippingMissing_VisitsEveryEligibleKeyOnce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	teeth := AllTeeth()

	for _, s := range allSchemes {
		for trial := 0; trial < 50; trial++ {
			missing := NewToothSet(WisdomTeeth)
			for i := rng.Intn(8); i > 0; i-- {
				missing.Add(teeth[rng.Intn(len(teeth))])
			}

			cells := walk(t, s, missing)
			n := eligible(s, missing)
			require.Len(t, cells, n, "scheme %s missing %v", s, missing.Sorted())

			seen := make(map[SiteKey]bool, n)
			for _, pos := range cells {
				key := KeyAt(s, pos)
				assert.False(t, missing.Has(key.Tooth), "visited missing tooth %d", key.Tooth)
				assert.False(t, seen[key], "visited %s twice", key)
				assert.True(t, s.HasPoint(key.Point))
				seen[key] = true
			}

			// N calls from the start land on the terminal cell and stay there.
			pos := Start(s, missing, DefaultRetryCeiling)
			for i := 0; i < n; i++ {
				pos = AdvanceSkippingMissing(s, pos, missing, DefaultRetryCeiling)
			}
			terminal := cells[len(cells)-1]
			assert.Equal(t, terminal, pos)
			assert.Equal(t, terminal, AdvanceSkippingMissing(s, pos, missing, DefaultRetryCeiling))
		}
	}
}

func TestAdvanceSkippingMissing_TrailingMissingToothKeepsLastValidCell(t *testing.T) {
	missing := NewToothSet(WisdomTeeth)
	last := Position{Pass: 3, Tooth: 14, Point: 2}
	require.Equal(t, 37, ToothAt(SchemeSix, last))

	assert.Equal(t, last, AdvanceSkippingMissing(SchemeSix, last, missing, DefaultRetryCeiling))
}

func TestAdvanceSkippingMissing_CeilingStopsSilently(t *testing.T) {
	missing := NewToothSet(AllTeeth())
	start := Origin(SchemeSix)

	// Every tooth is missing, so the ceiling is reached on the way to the end.
	pos := AdvanceSkippingMissing(SchemeSix, start, missing, 5)
	assert.Equal(t, Position{Pass: 0, Tooth: 1, Point: 2}, pos)

	// With room to reach the end the cursor stays where it was.
	assert.Equal(t, start, AdvanceSkippingMissing(SchemeSix, start, missing, 1000))
}

func TestStart(t *testing.T) {
	assert.Equal(t, Position{Pass: 0, Tooth: 0, Point: 0}, Start(SchemeSix, ToothSet{}, 0))
	assert.Equal(t, Position{Pass: 0, Tooth: 1, Point: 0}, Start(SchemeSix, NewToothSet(WisdomTeeth), 0))
	assert.Equal(t, Position{Pass: 0, Tooth: 1, Point: 1}, Start(SchemeSingle, NewToothSet(WisdomTeeth), 0))
}

func TestKeyAt(t *testing.T) {
	assert.Equal(t, SiteKey{Tooth: 18, Point: PointDistoBuccal}, KeyAt(SchemeSix, Position{}))
	assert.Equal(t, SiteKey{Tooth: 28, Point: PointMesioLingual}, KeyAt(SchemeSix, Position{Pass: 1, Tooth: 15, Point: 2}))
	assert.Equal(t, SiteKey{Tooth: 38, Point: PointLingual}, KeyAt(SchemeFour, Position{Pass: 2, Tooth: 15, Point: 1}))
	assert.Equal(t, SiteKey{Tooth: 41, Point: PointBuccal}, KeyAt(SchemeSingle, Position{Pass: 1, Tooth: 7, Point: 1}))
}

func TestNavigate(t *testing.T) {
	none := ToothSet{}

	t.Run("right steps point then tooth", func(t *testing.T) {
		pos := Navigate(SchemeSix, Position{Pass: 0, Tooth: 3, Point: 2}, Right, none)
		assert.Equal(t, Position{Pass: 0, Tooth: 4, Point: 0}, pos)
	})
	t.Run("left clamps at the edge", func(t *testing.T) {
		start := Position{Pass: 0, Tooth: 0, Point: 0}
		assert.Equal(t, start, Navigate(SchemeSix, start, Left, none))
	})
	t.Run("right clamps at the edge", func(t *testing.T) {
		start := Position{Pass: 3, Tooth: 15, Point: 2}
		assert.Equal(t, start, Navigate(SchemeSix, start, Right, none))
	})
	t.Run("up clamps at the first row", func(t *testing.T) {
		start := Position{Pass: 0, Tooth: 5, Point: 1}
		assert.Equal(t, start, Navigate(SchemeSix, start, Up, none))
	})
	t.Run("down snaps to the lingual mid point in four", func(t *testing.T) {
		pos := Navigate(SchemeFour, Position{Pass: 0, Tooth: 5, Point: 0}, Down, none)
		assert.Equal(t, Position{Pass: 1, Tooth: 5, Point: 1}, pos)
	})
	t.Run("down clamps at the last row of single", func(t *testing.T) {
		start := Position{Pass: 1, Tooth: 5, Point: 1}
		assert.Equal(t, start, Navigate(SchemeSingle, start, Down, none))
	})
	t.Run("left hops over missing teeth", func(t *testing.T) {
		missing := NewToothSet([]int{16, 15})
		pos := Navigate(SchemeSix, Position{Pass: 0, Tooth: 4, Point: 0}, Left, missing)
		assert.Equal(t, Position{Pass: 0, Tooth: 1, Point: 2}, pos)
	})
	t.Run("left stays when only missing teeth remain", func(t *testing.T) {
		missing := NewToothSet([]int{18})
		start := Position{Pass: 0, Tooth: 1, Point: 0}
		assert.Equal(t, start, Navigate(SchemeSix, start, Left, missing))
	})
	t.Run("down refuses a missing tooth", func(t *testing.T) {
		missing := NewToothSet([]int{48})
		start := Position{Pass: 1, Tooth: 0, Point: 0}
		assert.Equal(t, start, Navigate(SchemeSix, start, Down, missing))
	})
}

func TestCursor_WriteValue(t *testing.T) {
	t.Run("first write lands on the first upper tooth distobuccal", func(t *testing.T) {
		store := NewStore(ToothSet{})
		c := NewCursor(SchemeSix, store.Missing(), 0)

		require.NoError(t, c.WriteValue(store, 5))

		rec := store.Snapshot(SchemeSix, PhaseNone)
		assert.Equal(t, map[SiteKey]int{{Tooth: 18, Point: PointDistoBuccal}: 5}, rec.Depth)
		assert.Equal(t, Position{Pass: 0, Tooth: 0, Point: 1}, c.Position())
	})

	t.Run("writes skip missing teeth", func(t *testing.T) {
		store := NewStore(NewToothSet([]int{17}))
		c := NewCursor(SchemeSingle, store.Missing(), 0)

		require.NoError(t, c.WriteValue(store, 2))
		assert.Equal(t, 16, c.Tooth())
	})

	t.Run("refuses to write on a missing tooth", func(t *testing.T) {
		store := NewStore(NewToothSet(AllTeeth()))
		c := NewCursor(SchemeSix, store.Missing(), 0)

		err := c.WriteValue(store, 3)
		assert.ErrorIs(t, err, ErrMissingTooth)
		assert.Zero(t, store.DepthCount())
	})
}

func TestCursor_WriteValuesAtTheEnd(t *testing.T) {
	store := NewStore(ToothSet{})
	c := NewCursor(SchemeSix, store.Missing(), 0)
	terminal := Position{Pass: 3, Tooth: 15, Point: 2}
	require.NoError(t, c.MoveTo(Position{Pass: 3, Tooth: 14, Point: 2}, store.Missing()))

	n, err := c.WriteValues(store, []int{3, 4, 3})
	require.NoError(t, err)

	assert.Equal(t, 3, n)
	assert.Equal(t, 3, store.DepthCount())
	assert.Equal(t, terminal, c.Position())
	v, ok := store.Depth(SiteKey{Tooth: 38, Point: PointBuccal})
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestCursor_MoveTo(t *testing.T) {
	missing := NewToothSet(WisdomTeeth)
	c := NewCursor(SchemeFour, missing, 0)

	assert.ErrorIs(t, c.MoveTo(Position{Pass: 1, Tooth: 3, Point: 0}, missing), ErrOutOfGrid)
	assert.ErrorIs(t, c.MoveTo(Position{Pass: 4, Tooth: 3, Point: 1}, missing), ErrOutOfGrid)
	assert.ErrorIs(t, c.MoveTo(Position{Pass: 0, Tooth: 15, Point: 1}, missing), ErrMissingTooth)
	require.NoError(t, c.MoveTo(Position{Pass: 1, Tooth: 3, Point: 1}, missing))
	assert.Equal(t, SiteKey{Tooth: 15, Point: PointLingual}, c.Key())
}
