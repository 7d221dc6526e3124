package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"perio-go/internal/database"
	"perio-go/internal/models"
)

var ErrExamNotFound = errors.New("exam not found")

// SaveExam inserts the exam together with its tooth rows and metrics in one transaction.
func SaveExam(ctx context.Context, exam *models.PeriodontalExam) error {
	return database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(exam).Error; err != nil {
			return fmt.Errorf("failed to save exam: %w", err)
		}
		return nil
	})
}

// GetExam loads one exam with its tooth rows in FDI order.
func GetExam(ctx context.Context, id uuid.UUID) (*models.PeriodontalExam, error) {
	var exam models.PeriodontalExam
	err := database.DB.WithContext(ctx).
		Preload("Teeth", func(db *gorm.DB) *gorm.DB { return db.Order("tooth_number") }).
		Preload("Metrics", func(db *gorm.DB) *gorm.DB { return db.Order("scope, metric_key") }).
		First(&exam, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, err
	}
	return &exam, nil
}

// ListExams returns a patient's exams, newest first, without tooth rows.
func ListExams(ctx context.Context, patientID string, limit int) ([]models.PeriodontalExam, error) {
	var exams []models.PeriodontalExam
	q := database.DB.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("examined_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Preload("Metrics", "scope = ?", "global").Find(&exams).Error
	return exams, err
}

// LatestMissingTeeth returns the missing teeth of the patient's most recent exam.
// A patient with no exams has none.
func LatestMissingTeeth(ctx context.Context, patientID string) ([]int, error) {
	var exam models.PeriodontalExam
	err := database.DB.WithContext(ctx).
		Select("id", "missing_teeth").
		Where("patient_id = ?", patientID).
		Order("examined_at DESC").
		First(&exam).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return exam.MissingTeethInts(), nil
}

// Exams exposes the package functions behind a value handlers can hold.
type Exams struct{}

func (Exams) SaveExam(ctx context.Context, exam *models.PeriodontalExam) error {
	return SaveExam(ctx, exam)
}

func (Exams) GetExam(ctx context.Context, id uuid.UUID) (*models.PeriodontalExam, error) {
	return GetExam(ctx, id)
}

func (Exams) ListExams(ctx context.Context, patientID string, limit int) ([]models.PeriodontalExam, error) {
	return ListExams(ctx, patientID, limit)
}

func (Exams) LatestMissingTeeth(ctx context.Context, patientID string) ([]int, error) {
	return LatestMissingTeeth(ctx, patientID)
}

func (Exams) GetTimelineData(ctx context.Context, patientID, scope, metricKey string) ([]TimelineDataPoint, error) {
	return GetTimelineData(ctx, patientID, scope, metricKey)
}

func (Exams) GetCorrelationData(ctx context.Context, patientID, scope, xKey, yKey string) ([]CorrelationDataPoint, error) {
	return GetCorrelationData(ctx, patientID, scope, xKey, yKey)
}
