package chart

import (
	"errors"
	"fmt"
)

var (
	ErrMissingTooth = errors.New("tooth is excluded from entry")
	ErrOutOfGrid    = errors.New("position is outside the chart")
)

// Field selects which map a Write lands in.
type Field int

const (
	FieldDepth Field = iota
	FieldMobility
)

func (f Field) String() string {
	if f == FieldMobility {
		return "mobility"
	}
	return "depth"
}

// Write is a single keyed integer upsert. Mobility writes use Site.Tooth only.
type Write struct {
	Field Field
	Site  SiteKey
	Value int
}

// Store holds the measurement maps of one exam and the set of teeth excluded from entry.
// Mutators upsert without checking the value domain; they only refuse keys on missing teeth.
// Keeping site keys inside the scheme is up to the callers: the cursor, grid clicks, bulk plans
// and the session controller's voice target.
type Store struct {
	depth       map[SiteKey]int
	bleeding    map[SiteKey]bool
	suppuration map[SiteKey]bool
	plaque      map[PlaqueKey]bool
	mobility    map[int]int
	missing     ToothSet
}

// NewStore returns an empty store excluding the given teeth.
func NewStore(missing ToothSet) *Store {
	if missing == nil {
		missing = make(ToothSet)
	}
	return &Store{
		depth:       make(map[SiteKey]int),
		bleeding:    make(map[SiteKey]bool),
		suppuration: make(map[SiteKey]bool),
		plaque:      make(map[PlaqueKey]bool),
		mobility:    make(map[int]int),
		missing:     missing.Clone(),
	}
}

// StoreFromRecord hydrates a store from a saved record, merging extra exclusions into its missing set.
func StoreFromRecord(rec ExamRecord, extraMissing ToothSet) *Store {
	missing := NewToothSet(rec.MissingTeeth)
	for n := range extraMissing {
		missing.Add(n)
	}
	s := NewStore(missing)
	for k, v := range rec.Depth {
		s.depth[k] = v
	}
	for k, v := range rec.Bleeding {
		if v {
			s.bleeding[k] = true
		}
	}
	for k, v := range rec.Suppuration {
		if v {
			s.suppuration[k] = true
		}
	}
	for k, v := range rec.Plaque {
		if v {
			s.plaque[k] = true
		}
	}
	for k, v := range rec.Mobility {
		s.mobility[k] = v
	}
	return s
}

func (s *Store) Depth(k SiteKey) (int, bool) {
	v, ok := s.depth[k]
	return v, ok
}

func (s *Store) Bleeding(k SiteKey) bool    { return s.bleeding[k] }
func (s *Store) Suppuration(k SiteKey) bool { return s.suppuration[k] }
func (s *Store) Plaque(k PlaqueKey) bool    { return s.plaque[k] }

func (s *Store) Mobility(tooth int) (int, bool) {
	v, ok := s.mobility[tooth]
	return v, ok
}

func (s *Store) IsMissing(tooth int) bool { return s.missing.Has(tooth) }

// Missing returns a copy of the excluded teeth.
func (s *Store) Missing() ToothSet { return s.missing.Clone() }

// DepthCount is the number of recorded pocket depths.
func (s *Store) DepthCount() int { return len(s.depth) }

func (s *Store) guard(tooth int) error {
	if s.missing.Has(tooth) {
		return fmt.Errorf("tooth %d: %w", tooth, ErrMissingTooth)
	}
	return nil
}

// SetDepth refuses only keys on missing teeth. Keys reach it from the cursor, which never leaves
// the scheme's grid.
func (s *Store) SetDepth(k SiteKey, v int) error {
	if err := s.guard(k.Tooth); err != nil {
		return err
	}
	s.depth[k] = v
	return nil
}

// ToggleBleeding flips the bleeding flag and returns the new value.
func (s *Store) ToggleBleeding(k SiteKey) (bool, error) {
	return toggle(s, s.bleeding, k)
}

// MarkBleeding sets the bleeding flag without toggling. Like every mutator it refuses only
// missing teeth; the session controller drops spoken sites its scheme does not collect.
func (s *Store) MarkBleeding(k SiteKey) error {
	if err := s.guard(k.Tooth); err != nil {
		return err
	}
	s.bleeding[k] = true
	return nil
}

func (s *Store) ToggleSuppuration(k SiteKey) (bool, error) {
	return toggle(s, s.suppuration, k)
}

func (s *Store) TogglePlaque(k PlaqueKey) (bool, error) {
	if err := s.guard(k.Tooth); err != nil {
		return false, err
	}
	if s.plaque[k] {
		delete(s.plaque, k)
		return false, nil
	}
	s.plaque[k] = true
	return true, nil
}

func (s *Store) SetMobility(tooth, v int) error {
	if err := s.guard(tooth); err != nil {
		return err
	}
	s.mobility[tooth] = v
	return nil
}

// Apply commits a batch of writes as one update: either every key is accepted or none is written.
func (s *Store) Apply(writes []Write) error {
	for _, w := range writes {
		if err := s.guard(w.Site.Tooth); err != nil {
			return err
		}
	}
	for _, w := range writes {
		switch w.Field {
		case FieldMobility:
			s.mobility[w.Site.Tooth] = w.Value
		default:
			s.depth[w.Site] = w.Value
		}
	}
	return nil
}

// Snapshot copies every map into an ExamRecord that shares nothing with the store.
func (s *Store) Snapshot(scheme Scheme, phase Phase) ExamRecord {
	rec := ExamRecord{
		Scheme:       scheme,
		Phase:        phase,
		Depth:        make(map[SiteKey]int, len(s.depth)),
		Bleeding:     make(map[SiteKey]bool, len(s.bleeding)),
		Suppuration:  make(map[SiteKey]bool, len(s.suppuration)),
		Plaque:       make(map[PlaqueKey]bool, len(s.plaque)),
		Mobility:     make(map[int]int, len(s.mobility)),
		MissingTeeth: s.missing.Sorted(),
	}
	for k, v := range s.depth {
		rec.Depth[k] = v
	}
	for k, v := range s.bleeding {
		rec.Bleeding[k] = v
	}
	for k, v := range s.suppuration {
		rec.Suppuration[k] = v
	}
	for k, v := range s.plaque {
		rec.Plaque[k] = v
	}
	for k, v := range s.mobility {
		rec.Mobility[k] = v
	}
	return rec
}

func toggle(s *Store, m map[SiteKey]bool, k SiteKey) (bool, error) {
	if err := s.guard(k.Tooth); err != nil {
		return false, err
	}
	if m[k] {
		delete(m, k)
		return false, nil
	}
	m[k] = true
	return true, nil
}
