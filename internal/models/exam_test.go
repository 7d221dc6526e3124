package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perio-go/internal/chart"
)

func sampleRecord() chart.ExamRecord {
	return chart.ExamRecord{
		Scheme: chart.SchemeSix,
		Phase:  chart.PhaseExam3,
		Depth: map[chart.SiteKey]int{
			{Tooth: 17, Point: chart.PointDistoBuccal}:  4,
			{Tooth: 17, Point: chart.PointMesioLingual}: 6,
			{Tooth: 31, Point: chart.PointBuccal}:       2,
		},
		Bleeding:    map[chart.SiteKey]bool{{Tooth: 17, Point: chart.PointDistoBuccal}: true},
		Suppuration: map[chart.SiteKey]bool{{Tooth: 31, Point: chart.PointBuccal}: true},
		Plaque: map[chart.PlaqueKey]bool{
			{Tooth: 17, Quadrant: chart.QuadrantTop}:  true,
			{Tooth: 46, Quadrant: chart.QuadrantLeft}: true,
		},
		Mobility:     map[int]int{17: 0, 46: 2},
		MissingTeeth: []int{18, 28, 38, 48},
	}
}

func TestFromRecordLayout(t *testing.T) {
	at := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	exam := FromRecord("P-7", sampleRecord(), at)

	assert.Equal(t, "P-7", exam.PatientID)
	assert.Equal(t, "six", exam.MeasurementType)
	require.NotNil(t, exam.ExaminationPhase)
	assert.Equal(t, "P_EXAM_3", *exam.ExaminationPhase)
	assert.Equal(t, []int{18, 28, 38, 48}, exam.MissingTeethInts())
	require.Len(t, exam.Teeth, 32)

	byTooth := map[int]ToothRecord{}
	for _, row := range exam.Teeth {
		byTooth[row.ToothNumber] = row
	}

	t17 := byTooth[17]
	require.NotNil(t, t17.PpdDb)
	assert.Equal(t, 4, *t17.PpdDb)
	require.NotNil(t, t17.PpdMl)
	assert.Equal(t, 6, *t17.PpdMl)
	assert.Nil(t, t17.PpdB)
	assert.True(t, t17.BopDb)
	assert.True(t, t17.PlaqueTop)
	require.NotNil(t, t17.Mobility)
	assert.Equal(t, 0, *t17.Mobility, "a zero mobility is still recorded")

	assert.True(t, byTooth[31].PusB)
	assert.True(t, byTooth[46].PlaqueLeft)
	assert.True(t, byTooth[48].IsMissing)
	assert.False(t, byTooth[47].IsMissing)
	assert.Nil(t, byTooth[47].Mobility)
}

func TestRecordSurvivesStorageLayout(t *testing.T) {
	rec := sampleRecord()
	back := FromRecord("P-7", rec, time.Now()).ToRecord()

	assert.Equal(t, rec.Scheme, back.Scheme)
	assert.Equal(t, rec.Phase, back.Phase)
	assert.Equal(t, rec.Depth, back.Depth)
	assert.Equal(t, rec.Bleeding, back.Bleeding)
	assert.Equal(t, rec.Suppuration, back.Suppuration)
	assert.Equal(t, rec.Plaque, back.Plaque)
	assert.Equal(t, rec.Mobility, back.Mobility)
	assert.Equal(t, rec.MissingTeeth, back.MissingTeeth)
}

func TestToRecordDefaultsUnknownScheme(t *testing.T) {
	exam := PeriodontalExam{MeasurementType: "legacy"}
	rec := exam.ToRecord()
	assert.Equal(t, chart.SchemeSix, rec.Scheme)
	assert.Equal(t, chart.PhaseNone, rec.Phase)
	assert.Empty(t, rec.MissingTeeth)
}
