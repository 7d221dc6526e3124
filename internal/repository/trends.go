package repository

import (
	"context"
	"time"

	"perio-go/internal/database"
)

type TimelineDataPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

type CorrelationDataPoint struct {
	XValue float64 `json:"xValue"`
	YValue float64 `json:"yValue"`
}

// GetTimelineData returns one metric across a patient's exams in examination order.
func GetTimelineData(ctx context.Context, patientID, scope, metricKey string) ([]TimelineDataPoint, error) {
	var data []TimelineDataPoint

	query := `
		SELECT
			e.examined_at AS date,
			m.metric_value AS value
		FROM exam_metrics m
		JOIN periodontal_exams e ON m.exam_id = e.id
		WHERE e.patient_id = ? AND m.scope = ? AND m.metric_key = ?
		ORDER BY e.examined_at;
	`

	err := database.DB.WithContext(ctx).Raw(query, patientID, scope, metricKey).Scan(&data).Error
	return data, err
}

// GetCorrelationData pairs two metrics of the same scope exam by exam.
func GetCorrelationData(ctx context.Context, patientID, scope, xKey, yKey string) ([]CorrelationDataPoint, error) {
	var data []CorrelationDataPoint
	query := `
		SELECT
			x.metric_value AS x_value,
			y.metric_value AS y_value
		FROM exam_metrics x
		JOIN exam_metrics y ON x.exam_id = y.exam_id AND x.scope = y.scope
		JOIN periodontal_exams e ON x.exam_id = e.id
		WHERE e.patient_id = ? AND x.scope = ? AND x.metric_key = ? AND y.metric_key = ?
		ORDER BY e.examined_at;
	`

	err := database.DB.WithContext(ctx).Raw(query, patientID, scope, xKey, yKey).Scan(&data).Error
	return data, err
}
