package metrics

import (
	"perio-go/internal/models"
)

type MetricResult struct {
	Value      float64 `json:"value"`
	Calculated bool    `json:"calculated"`
	SampleSize int     `json:"sampleSize,omitempty"`
}

// CalculatedMetrics splits exam metrics into whole-mouth and per-quadrant rows.
type CalculatedMetrics struct {
	GlobalMetrics   []models.ExamMetric
	QuadrantMetrics []models.ExamMetric
}

// All returns every row, global first.
func (c *CalculatedMetrics) All() []models.ExamMetric {
	out := make([]models.ExamMetric, 0, len(c.GlobalMetrics)+len(c.QuadrantMetrics))
	out = append(out, c.GlobalMetrics...)
	return append(out, c.QuadrantMetrics...)
}

// Lookup finds a metric by scope and key.
func Lookup(ms []models.ExamMetric, scope, key string) (models.ExamMetric, bool) {
	for _, m := range ms {
		if m.Scope == scope && m.MetricKey == key {
			return m, true
		}
	}
	return models.ExamMetric{}, false
}

func toRows(scope string, results map[string]MetricResult, keys []string) []models.ExamMetric {
	var rows []models.ExamMetric
	for _, k := range keys {
		r := results[k]
		if !r.Calculated {
			continue
		}
		rows = append(rows, models.ExamMetric{
			Scope:       scope,
			MetricKey:   k,
			MetricValue: r.Value,
			SampleSize:  r.SampleSize,
		})
	}
	return rows
}
