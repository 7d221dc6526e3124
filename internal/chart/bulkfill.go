package chart

import (
	"fmt"
	"strings"
)

// BulkKind selects what a bulk fill sets.
type BulkKind string

const (
	BulkDepth    BulkKind = "depth"
	BulkMobility BulkKind = "mobility"
)

func ParseBulkKind(s string) (BulkKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "depth", "ppd":
		return BulkDepth, nil
	case "mobility":
		return BulkMobility, nil
	}
	return "", fmt.Errorf("unknown bulk fill kind %q", s)
}

// BulkPlan is the full set of writes a bulk fill would perform.
type BulkPlan struct {
	Kind   BulkKind `json:"kind"`
	Value  int      `json:"value"`
	Writes []Write  `json:"-"`
}

// Len is the number of keys the plan overwrites.
func (p BulkPlan) Len() int { return len(p.Writes) }

// PlanBulkFill enumerates every write needed to set kind to value on all present teeth.
// Depth covers every point the scheme collects; mobility covers one key per tooth.
func PlanBulkFill(kind BulkKind, value int, scheme Scheme, missing ToothSet) (BulkPlan, error) {
	plan := BulkPlan{Kind: kind, Value: value}
	switch kind {
	case BulkDepth:
		points := scheme.ToothPoints()
		for _, tooth := range AllTeeth() {
			if missing.Has(tooth) {
				continue
			}
			for _, p := range points {
				plan.Writes = append(plan.Writes, Write{Field: FieldDepth, Site: SiteKey{Tooth: tooth, Point: p}, Value: value})
			}
		}
	case BulkMobility:
		for _, tooth := range AllTeeth() {
			if missing.Has(tooth) {
				continue
			}
			plan.Writes = append(plan.Writes, Write{Field: FieldMobility, Site: SiteKey{Tooth: tooth}, Value: value})
		}
	default:
		return BulkPlan{}, fmt.Errorf("unknown bulk fill kind %q", kind)
	}
	return plan, nil
}

// ApplyBulkFill overwrites every key in the plan.
func ApplyBulkFill(store *Store, plan BulkPlan) error {
	return store.Apply(plan.Writes)
}
