package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"perio-go/internal/chart"
)

// PeriodontalExam is one committed charting session.
type PeriodontalExam struct {
	ID               uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	PatientID        string        `gorm:"index;not null" json:"patientId"`
	MeasurementType  string        `gorm:"not null" json:"measurementType"`
	ExaminationPhase *string       `json:"examinationPhase,omitempty"`
	ExaminedAt       time.Time     `gorm:"index" json:"examinedAt"`
	MissingTeeth     pq.Int64Array `gorm:"type:integer[]" json:"missingTeeth"`
	Teeth            []ToothRecord `gorm:"foreignKey:ExamID;constraint:OnDelete:CASCADE" json:"teeth,omitempty"`
	Metrics          []ExamMetric  `gorm:"foreignKey:ExamID;constraint:OnDelete:CASCADE" json:"metrics,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// BeforeCreate assigns an ID when the caller did not.
func (e *PeriodontalExam) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// ToothRecord is the per-tooth row: plaque facets, mobility and the six probing sites.
type ToothRecord struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	ExamID      uuid.UUID `gorm:"type:uuid;index;not null" json:"-"`
	ToothNumber int       `gorm:"not null" json:"toothNumber"`
	IsMissing   bool      `json:"isMissing"`
	Mobility    *int      `json:"mobility,omitempty"`

	PlaqueTop    bool `json:"plaqueTop"`
	PlaqueRight  bool `json:"plaqueRight"`
	PlaqueBottom bool `json:"plaqueBottom"`
	PlaqueLeft   bool `json:"plaqueLeft"`

	PpdMb *int `json:"ppdMb,omitempty"`
	PpdB  *int `json:"ppdB,omitempty"`
	PpdDb *int `json:"ppdDb,omitempty"`
	PpdMl *int `json:"ppdMl,omitempty"`
	PpdL  *int `json:"ppdL,omitempty"`
	PpdDl *int `json:"ppdDl,omitempty"`

	BopMb bool `json:"bopMb"`
	BopB  bool `json:"bopB"`
	BopDb bool `json:"bopDb"`
	BopMl bool `json:"bopMl"`
	BopL  bool `json:"bopL"`
	BopDl bool `json:"bopDl"`

	PusMb bool `json:"pusMb"`
	PusB  bool `json:"pusB"`
	PusDb bool `json:"pusDb"`
	PusMl bool `json:"pusMl"`
	PusL  bool `json:"pusL"`
	PusDl bool `json:"pusDl"`
}

func (ToothRecord) TableName() string { return "periodontal_tooth_data" }

// ExamMetric is one summary index computed at commit time.
type ExamMetric struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	ExamID      uuid.UUID `gorm:"type:uuid;index;not null" json:"-"`
	Scope       string    `gorm:"not null" json:"scope"`
	MetricKey   string    `gorm:"not null" json:"metricKey"`
	MetricValue float64   `json:"metricValue"`
	SampleSize  int       `json:"sampleSize"`
	CreatedAt   time.Time `json:"createdAt"`
}

var allPoints = []chart.Point{
	chart.PointMesioBuccal, chart.PointBuccal, chart.PointDistoBuccal,
	chart.PointMesioLingual, chart.PointLingual, chart.PointDistoLingual,
}

func (t *ToothRecord) depth(p chart.Point) **int {
	switch p {
	case chart.PointMesioBuccal:
		return &t.PpdMb
	case chart.PointBuccal:
		return &t.PpdB
	case chart.PointDistoBuccal:
		return &t.PpdDb
	case chart.PointMesioLingual:
		return &t.PpdMl
	case chart.PointLingual:
		return &t.PpdL
	case chart.PointDistoLingual:
		return &t.PpdDl
	}
	return nil
}

func (t *ToothRecord) bleeding(p chart.Point) *bool {
	switch p {
	case chart.PointMesioBuccal:
		return &t.BopMb
	case chart.PointBuccal:
		return &t.BopB
	case chart.PointDistoBuccal:
		return &t.BopDb
	case chart.PointMesioLingual:
		return &t.BopMl
	case chart.PointLingual:
		return &t.BopL
	case chart.PointDistoLingual:
		return &t.BopDl
	}
	return nil
}

func (t *ToothRecord) suppuration(p chart.Point) *bool {
	switch p {
	case chart.PointMesioBuccal:
		return &t.PusMb
	case chart.PointBuccal:
		return &t.PusB
	case chart.PointDistoBuccal:
		return &t.PusDb
	case chart.PointMesioLingual:
		return &t.PusMl
	case chart.PointLingual:
		return &t.PusL
	case chart.PointDistoLingual:
		return &t.PusDl
	}
	return nil
}

func (t *ToothRecord) plaque(q chart.Quadrant) *bool {
	switch q {
	case chart.QuadrantTop:
		return &t.PlaqueTop
	case chart.QuadrantRight:
		return &t.PlaqueRight
	case chart.QuadrantBottom:
		return &t.PlaqueBottom
	case chart.QuadrantLeft:
		return &t.PlaqueLeft
	}
	return nil
}

// FromRecord lays a committed record out as one row per tooth.
func FromRecord(patientID string, rec chart.ExamRecord, examinedAt time.Time) PeriodontalExam {
	exam := PeriodontalExam{
		PatientID:       patientID,
		MeasurementType: string(rec.Scheme),
		ExaminedAt:      examinedAt,
		MissingTeeth:    pq.Int64Array{},
	}
	if rec.Phase != chart.PhaseNone {
		phase := string(rec.Phase)
		exam.ExaminationPhase = &phase
	}

	missing := chart.NewToothSet(rec.MissingTeeth)
	for _, n := range missing.Sorted() {
		exam.MissingTeeth = append(exam.MissingTeeth, int64(n))
	}

	rows := make(map[int]*ToothRecord, 32)
	for _, n := range chart.AllTeeth() {
		rows[n] = &ToothRecord{ToothNumber: n, IsMissing: missing.Has(n)}
	}
	for k, v := range rec.Depth {
		if row, ok := rows[k.Tooth]; ok {
			if f := row.depth(k.Point); f != nil {
				val := v
				*f = &val
			}
		}
	}
	for k, v := range rec.Bleeding {
		if row, ok := rows[k.Tooth]; ok && v {
			if f := row.bleeding(k.Point); f != nil {
				*f = true
			}
		}
	}
	for k, v := range rec.Suppuration {
		if row, ok := rows[k.Tooth]; ok && v {
			if f := row.suppuration(k.Point); f != nil {
				*f = true
			}
		}
	}
	for k, v := range rec.Plaque {
		if row, ok := rows[k.Tooth]; ok && v {
			if f := row.plaque(k.Quadrant); f != nil {
				*f = true
			}
		}
	}
	for tooth, v := range rec.Mobility {
		if row, ok := rows[tooth]; ok {
			val := v
			row.Mobility = &val
		}
	}

	for _, n := range chart.AllTeeth() {
		exam.Teeth = append(exam.Teeth, *rows[n])
	}
	return exam
}

// ToRecord rebuilds the engine's record from stored rows, for edit flows.
func (e PeriodontalExam) ToRecord() chart.ExamRecord {
	scheme, err := chart.ParseScheme(e.MeasurementType)
	if err != nil {
		scheme = chart.SchemeSix
	}
	rec := chart.ExamRecord{
		Scheme:      scheme,
		Depth:       make(map[chart.SiteKey]int),
		Bleeding:    make(map[chart.SiteKey]bool),
		Suppuration: make(map[chart.SiteKey]bool),
		Plaque:      make(map[chart.PlaqueKey]bool),
		Mobility:    make(map[int]int),
	}
	if e.ExaminationPhase != nil {
		rec.Phase = chart.Phase(*e.ExaminationPhase)
	}

	missing := chart.NewToothSet()
	for _, n := range e.MissingTeeth {
		missing.Add(int(n))
	}
	for i := range e.Teeth {
		row := &e.Teeth[i]
		if row.IsMissing {
			missing.Add(row.ToothNumber)
		}
		for _, p := range allPoints {
			k := chart.SiteKey{Tooth: row.ToothNumber, Point: p}
			if v := *row.depth(p); v != nil {
				rec.Depth[k] = *v
			}
			if *row.bleeding(p) {
				rec.Bleeding[k] = true
			}
			if *row.suppuration(p) {
				rec.Suppuration[k] = true
			}
		}
		for _, q := range chart.Quadrants {
			if *row.plaque(q) {
				rec.Plaque[chart.PlaqueKey{Tooth: row.ToothNumber, Quadrant: q}] = true
			}
		}
		if row.Mobility != nil {
			rec.Mobility[row.ToothNumber] = *row.Mobility
		}
	}
	rec.MissingTeeth = missing.Sorted()
	return rec
}

// MissingTeethInts returns the stored missing teeth in ascending order.
func (e PeriodontalExam) MissingTeethInts() []int {
	out := make([]int, 0, len(e.MissingTeeth))
	for _, n := range e.MissingTeeth {
		out = append(out, int(n))
	}
	sort.Ints(out)
	return out
}
