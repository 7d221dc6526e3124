package metrics

import (
	"sort"

	"perio-go/internal/chart"
	"perio-go/internal/models"
)

// Metric keys stored with each exam.
const (
	KeyMeanPPD          = "mean_ppd"
	KeySitesPPD4Plus    = "sites_ppd_4_plus"
	KeySitesPPD6Plus    = "sites_ppd_6_plus"
	KeyBOPPercent       = "bop_percent"
	KeyPCRPercent       = "pcr_percent"
	KeySuppurationSites = "suppuration_sites"
	KeyTeethPresent     = "teeth_present"
)

const ScopeGlobal = "global"

var quadrantScopes = []string{"q1", "q2", "q3", "q4"}

// bucket holds the part of a record that falls in one scope.
type bucket struct {
	depths      []int
	bleeding    int
	suppuration int
	plaque      int
	teeth       int
}

// CalculateExamMetrics computes the summary indices for the whole mouth and for each FDI
// quadrant. Missing teeth are excluded from every denominator.
func CalculateExamMetrics(rec chart.ExamRecord) *CalculatedMetrics {
	scheme, err := chart.ParseScheme(string(rec.Scheme))
	if err != nil {
		scheme = chart.SchemeSix
	}
	missing := chart.NewToothSet(rec.MissingTeeth)

	global := &bucket{}
	quadrants := make(map[string]*bucket, len(quadrantScopes))
	for _, q := range quadrantScopes {
		quadrants[q] = &bucket{}
	}
	scopesOf := func(tooth int) []*bucket {
		return []*bucket{global, quadrants[quadrantScope(tooth)]}
	}

	for _, tooth := range chart.AllTeeth() {
		if missing.Has(tooth) {
			continue
		}
		for _, b := range scopesOf(tooth) {
			b.teeth++
		}
	}
	for k, v := range rec.Depth {
		if !chart.IsValidTooth(k.Tooth) || missing.Has(k.Tooth) {
			continue
		}
		for _, b := range scopesOf(k.Tooth) {
			b.depths = append(b.depths, v)
		}
	}
	countFlags := func(m map[chart.SiteKey]bool, inc func(*bucket)) {
		for k, v := range m {
			if !v || !chart.IsValidTooth(k.Tooth) || missing.Has(k.Tooth) {
				continue
			}
			for _, b := range scopesOf(k.Tooth) {
				inc(b)
			}
		}
	}
	countFlags(rec.Bleeding, func(b *bucket) { b.bleeding++ })
	countFlags(rec.Suppuration, func(b *bucket) { b.suppuration++ })
	for k, v := range rec.Plaque {
		if !v || !chart.IsValidTooth(k.Tooth) || missing.Has(k.Tooth) {
			continue
		}
		for _, b := range scopesOf(k.Tooth) {
			b.plaque++
		}
	}

	sitesPerTooth := len(scheme.ToothPoints())
	result := &CalculatedMetrics{
		GlobalMetrics: evaluate(ScopeGlobal, global, sitesPerTooth),
	}
	for _, q := range quadrantScopes {
		result.QuadrantMetrics = append(result.QuadrantMetrics, evaluate(q, quadrants[q], sitesPerTooth)...)
	}
	return result
}

func evaluate(scope string, b *bucket, sitesPerTooth int) []models.ExamMetric {
	results := map[string]MetricResult{
		KeyMeanPPD:          meanDepth(b.depths),
		KeySitesPPD4Plus:    sitesAtLeast(b.depths, 4),
		KeySitesPPD6Plus:    sitesAtLeast(b.depths, 6),
		KeyBOPPercent:       percent(b.bleeding, b.teeth*sitesPerTooth),
		KeyPCRPercent:       percent(b.plaque, b.teeth*len(chart.Quadrants)),
		KeySuppurationSites: {Value: float64(b.suppuration), Calculated: b.teeth > 0, SampleSize: b.teeth * sitesPerTooth},
		KeyTeethPresent:     {Value: float64(b.teeth), Calculated: true, SampleSize: b.teeth},
	}
	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return toRows(scope, results, keys)
}

func quadrantScope(tooth int) string {
	switch tooth / 10 {
	case 1:
		return "q1"
	case 2:
		return "q2"
	case 3:
		return "q3"
	}
	return "q4"
}

func meanDepth(depths []int) MetricResult {
	if len(depths) == 0 {
		return MetricResult{}
	}
	sum := 0
	for _, d := range depths {
		sum += d
	}
	return MetricResult{Value: float64(sum) / float64(len(depths)), Calculated: true, SampleSize: len(depths)}
}

func sitesAtLeast(depths []int, threshold int) MetricResult {
	if len(depths) == 0 {
		return MetricResult{}
	}
	n := 0
	for _, d := range depths {
		if d >= threshold {
			n++
		}
	}
	return MetricResult{Value: float64(n), Calculated: true, SampleSize: len(depths)}
}

func percent(hits, total int) MetricResult {
	if total == 0 {
		return MetricResult{}
	}
	return MetricResult{Value: float64(hits) * 100 / float64(total), Calculated: true, SampleSize: total}
}
