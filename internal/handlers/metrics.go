package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"perio-go/internal/metrics"
	"perio-go/internal/session"
)

type MetricsHandler struct {
	log     *zap.Logger
	manager *session.Manager
}

func NewMetricsHandler(log *zap.Logger, manager *session.Manager) *MetricsHandler {
	return &MetricsHandler{log: log, manager: manager}
}

// LiveSummary computes the summary indices of the bound session as entered so far.
func (h *MetricsHandler) LiveSummary(c *gin.Context) {
	var calculated *metrics.CalculatedMetrics
	err := h.manager.Do(c.Request.Context(), sessionID(c), func(ctrl *session.Controller) error {
		calculated = metrics.CalculateExamMetrics(ctrl.Record())
		return nil
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"global":    calculated.GlobalMetrics,
		"quadrants": calculated.QuadrantMetrics,
	})
}
