package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"perio-go/internal/metrics"
	"perio-go/internal/utils"
)

const defaultListLimit = 20

type ResultsHandler struct {
	log   *zap.Logger
	store ExamStore
}

func NewResultsHandler(log *zap.Logger, store ExamStore) *ResultsHandler {
	return &ResultsHandler{log: log, store: store}
}

func (h *ResultsHandler) GetExam(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.log, fmt.Errorf("%w: invalid exam id", errBadRequest))
		return
	}
	exam, err := h.store.GetExam(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exam": exam, "record": exam.ToRecord()})
}

func (h *ResultsHandler) ListExams(c *gin.Context) {
	patientID := c.Param("patientId")
	if !utils.IsPatientID(patientID) {
		respondError(c, h.log, fmt.Errorf("%w: invalid patient id", errBadRequest))
		return
	}
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			respondError(c, h.log, fmt.Errorf("%w: limit must be 1-200", errBadRequest))
			return
		}
		limit = n
	}
	exams, err := h.store.ListExams(c.Request.Context(), patientID, limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exams": exams})
}

// Timeline returns one summary metric across the patient's exams. Scope defaults to the whole
// mouth.
func (h *ResultsHandler) Timeline(c *gin.Context) {
	patientID := c.Param("patientId")
	metricKey := c.DefaultQuery("metric", metrics.KeyMeanPPD)
	scope := c.DefaultQuery("scope", metrics.ScopeGlobal)
	if !utils.IsPatientID(patientID) {
		respondError(c, h.log, fmt.Errorf("%w: invalid patient id", errBadRequest))
		return
	}
	data, err := h.store.GetTimelineData(c.Request.Context(), patientID, scope, metricKey)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"metric": metricKey, "scope": scope, "points": data})
}

func (h *ResultsHandler) Correlation(c *gin.Context) {
	patientID := c.Param("patientId")
	xKey := c.DefaultQuery("x", metrics.KeyMeanPPD)
	yKey := c.DefaultQuery("y", metrics.KeyBOPPercent)
	scope := c.DefaultQuery("scope", metrics.ScopeGlobal)
	if !utils.IsPatientID(patientID) {
		respondError(c, h.log, fmt.Errorf("%w: invalid patient id", errBadRequest))
		return
	}
	data, err := h.store.GetCorrelationData(c.Request.Context(), patientID, scope, xKey, yKey)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"x": xKey, "y": yKey, "scope": scope, "points": data})
}
