package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"perio-go/internal/chart"
	"perio-go/internal/metrics"
	"perio-go/internal/models"
	"perio-go/internal/repository"
	"perio-go/internal/session"
	"perio-go/internal/utils"
	"perio-go/internal/voice"
)

const (
	// SessionCookieKey is where the browser's cookie session keeps its exam session ID.
	SessionCookieKey = "examSessionID"
	// ExamSessionContextKey is where the session loader puts the verified ID for handlers.
	ExamSessionContextKey = "exam_session_id"
)

// ExamStore is the persistence the exam API needs.
type ExamStore interface {
	SaveExam(ctx context.Context, exam *models.PeriodontalExam) error
	GetExam(ctx context.Context, id uuid.UUID) (*models.PeriodontalExam, error)
	ListExams(ctx context.Context, patientID string, limit int) ([]models.PeriodontalExam, error)
	LatestMissingTeeth(ctx context.Context, patientID string) ([]int, error)
	GetTimelineData(ctx context.Context, patientID, scope, metricKey string) ([]repository.TimelineDataPoint, error)
	GetCorrelationData(ctx context.Context, patientID, scope, xKey, yKey string) ([]repository.CorrelationDataPoint, error)
}

type ExamHandler struct {
	log     *zap.Logger
	manager *session.Manager
	store   ExamStore
	now     func() time.Time
}

func NewExamHandler(log *zap.Logger, manager *session.Manager, store ExamStore) *ExamHandler {
	return &ExamHandler{log: log, manager: manager, store: store, now: time.Now}
}

func sessionID(c *gin.Context) string {
	return c.GetString(ExamSessionContextKey)
}

// apply runs fn on the bound session and answers with its result and the session state, both
// taken inside the same queued job.
func (h *ExamHandler) apply(c *gin.Context, fn func(ctrl *session.Controller) (any, error)) {
	var (
		result any
		state  session.State
	)
	err := h.manager.Do(c.Request.Context(), sessionID(c), func(ctrl *session.Controller) error {
		var err error
		result, err = fn(ctrl)
		state = ctrl.State()
		return err
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result, "state": state})
}

func bind(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

type createRequest struct {
	PatientID string `json:"patientId" binding:"required"`
	Scheme    string `json:"scheme"`
	Phase     string `json:"phase"`
	// SeedMissing overrides the missing teeth; nil seeds from the patient's latest exam.
	SeedMissing *[]int `json:"seedMissing"`
	// ExamID opens a stored exam for correction. The commit saves a new exam.
	ExamID string `json:"examId"`
}

// Create opens an exam session and binds it to the caller's cookie session. A session the
// cookie already held is cancelled.
func (h *ExamHandler) Create(c *gin.Context) {
	var req createRequest
	if err := bind(c, &req); err != nil {
		respondError(c, h.log, err)
		return
	}
	if !utils.IsPatientID(req.PatientID) {
		respondError(c, h.log, fmt.Errorf("%w: invalid patient id", errBadRequest))
		return
	}
	ctx := c.Request.Context()

	cr := session.CreateRequest{Meta: session.Meta{PatientID: req.PatientID, ExamID: uuid.New()}}
	var err error
	if req.Scheme != "" {
		if cr.Scheme, err = chart.ParseScheme(req.Scheme); err != nil {
			respondError(c, h.log, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
	}
	if cr.Phase, err = chart.ParsePhase(req.Phase); err != nil {
		respondError(c, h.log, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	switch {
	case req.ExamID != "":
		id, err := uuid.Parse(req.ExamID)
		if err != nil {
			respondError(c, h.log, fmt.Errorf("%w: invalid exam id", errBadRequest))
			return
		}
		exam, err := h.store.GetExam(ctx, id)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		if exam.PatientID != req.PatientID {
			respondError(c, h.log, fmt.Errorf("%w: exam belongs to another patient", errBadRequest))
			return
		}
		rec := exam.ToRecord()
		if cr.Scheme != "" && cr.Scheme != rec.Scheme {
			respondError(c, h.log, fmt.Errorf("%w: exam was charted with the %s scheme", errBadRequest, rec.Scheme))
			return
		}
		cr.Initial = &rec
	case req.SeedMissing != nil:
		for _, n := range *req.SeedMissing {
			if !chart.IsValidTooth(n) {
				respondError(c, h.log, fmt.Errorf("%w: tooth %d", errBadRequest, n))
				return
			}
		}
		cr.SeedMissing = *req.SeedMissing
	default:
		missing, err := h.store.LatestMissingTeeth(ctx, req.PatientID)
		if err != nil {
			respondError(c, h.log, fmt.Errorf("load previous exam: %w", err))
			return
		}
		cr.SeedMissing = missing
	}
	if cr.Scheme == "" && cr.Initial == nil {
		cr.Scheme = chart.SchemeSix
	}

	id, err := h.manager.Create(cr)
	if err != nil {
		respondError(c, h.log, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	cookie := sessions.Default(c)
	if prev, ok := cookie.Get(SessionCookieKey).(string); ok && prev != "" {
		if err := h.manager.Cancel(ctx, prev); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			h.log.Warn("Failed to cancel replaced exam session", zap.String("session_id", prev), zap.Error(err))
		}
	}
	cookie.Set(SessionCookieKey, id)
	if err := cookie.Save(); err != nil {
		_ = h.manager.Cancel(ctx, id)
		respondError(c, h.log, fmt.Errorf("save cookie session: %w", err))
		return
	}

	h.log.Info("Exam session created", zap.String("session_id", id), zap.String("patient_id", req.PatientID),
		zap.String("scheme", string(cr.Scheme)))

	var state session.State
	if err := h.manager.Do(ctx, id, func(ctrl *session.Controller) error {
		state = ctrl.State()
		return nil
	}); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sessionId": id, "examId": cr.Meta.ExamID, "state": state})
}

func (h *ExamHandler) State(c *gin.Context) {
	h.apply(c, func(*session.Controller) (any, error) { return nil, nil })
}

type valueRequest struct {
	Value *int `json:"value" binding:"required"`
}

func (h *ExamHandler) Keypad(c *gin.Context) {
	var req valueRequest
	if err := bind(c, &req); err != nil {
		respondError(c, h.log, err)
		return
	}
	h.apply(c, func(ctrl *session.Controller) (any, error) {
		return ctrl.OnKeypadDigit(*req.Value)
	})
}

func (h *ExamHandler) Skip(c *gin.Context) {
	h.apply(c, func(ctrl *session.Controller) (any, error) { return ctrl.OnSkip() })
}

func (h *ExamHandler) Click(c *gin.Context) {
	var pos chart.Position
	if err := bind(c, &pos); err != nil {
		respondError(c, h.log, err)
		return
	}
	h.apply(c, func(ctrl *session.Controller) (any, error) { return ctrl.OnCellClick(pos) })
}

func (h *ExamHandler) Navigate(c *gin.Context) {
	var req struct {
		Direction string `json:"direction" binding:"required"`
	}
	if err := bind(c, &req); err != nil {
		respondError(c, h.log, err)
		return
	}
	dir, err := chart.ParseDirection(req.Direction)
	if err != nil {
		respondError(c, h.log, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	h.apply(c, func(ctrl *session.Controller) (any, error) { return ctrl.OnNavigate(dir) })
}

func (h *ExamHandler) Plaque(c *gin.Context) {
	var req struct {
		Tooth    int    `json:"tooth" binding:"required"`
		Quadrant string `json:"quadrant" binding:"required"`
	}
	if err := bind(c, &req); err != nil {
		respondError(c, h.log, err)
		return
	}
	q, err := chart.ParseQuadrant(req.Quadrant)
	if err != nil {
		respondError(c, h.log, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	h.apply(c, func(ctrl *session.Controller) (any, error) {
		on, err := ctrl.OnPlaqueToggle(req.Tooth, q)
		return gin.H{"marked": on}, err
	})
}

func (h *ExamHandler) Mobility(c *gin.Context) {
	var req struct {
		Tooth int  `json:"tooth" binding:"required"`
		Value *int `json:"value" binding:"required"`
	}
	if err := bind(c, &req); err != nil {
		respondError(c, h.log, err)
		return
	}
	h.apply(c, func(ctrl *session.Controller) (any, error) {
		return nil, ctrl.OnMobilityEntry(req.Tooth, *req.Value)
	})
}

func (h *ExamHandler) EntryMode(c *gin.Context) {
	var req struct {
		Mode string `json:"mode" binding:"required"`
	}
	if err := bind(c, &req); err != nil {
		respondError(c, h.log, err)
		return
	}
	mode, err := session.ParseEntryMode(req.Mode)
	if err != nil {
		respondError(c, h.log, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	h.apply(c, func(ctrl *session.Controller) (any, error) { return ctrl.ToggleEntryMode(mode) })
}

// Utterance applies a recognizer result produced outside a recording stream.
func (h *ExamHandler) Utterance(c *gin.Context) {
	var ev voice.Event
	if err := bind(c, &ev); err != nil {
		respondError(c, h.log, err)
		return
	}
	h.apply(c, func(ctrl *session.Controller) (any, error) { return ctrl.OnVoiceUtterance(ev) })
}

func (h *ExamHandler) VoiceMode(c *gin.Context) {
	var req struct {
		Mode string `json:"mode" binding:"required"`
	}
	if err := bind(c, &req); err != nil {
		respondError(c, h.log, err)
		return
	}
	mode, err := voice.ParseMode(req.Mode)
	if err != nil {
		respondError(c, h.log, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	h.apply(c, func(ctrl *session.Controller) (any, error) { return mode, ctrl.SetVoiceMode(mode) })
}

func (h *ExamHandler) StartRecording(c *gin.Context) {
	h.apply(c, func(ctrl *session.Controller) (any, error) {
		// The stream outlives this request.
		return nil, ctrl.StartRecording(context.Background())
	})
}

func (h *ExamHandler) StopRecording(c *gin.Context) {
	h.apply(c, func(ctrl *session.Controller) (any, error) { return nil, ctrl.StopRecording() })
}

type providerEventRequest struct {
	Kind       string  `json:"kind"`
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	IsFinal    bool    `json:"isFinal"`
	Code       string  `json:"code"`
}

// RecognitionEvent forwards one event from the browser's speech recognizer into the running
// stream. The event is handled before the response is written.
func (h *ExamHandler) RecognitionEvent(c *gin.Context) {
	var req providerEventRequest
	if err := bind(c, &req); err != nil {
		respondError(c, h.log, err)
		return
	}
	kind, err := voice.ParseProviderEventKind(req.Kind)
	if err != nil {
		respondError(c, h.log, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	ev := voice.ProviderEvent{
		Kind:   kind,
		Result: voice.Event{Transcript: req.Transcript, Confidence: req.Confidence, IsFinal: req.IsFinal},
		Code:   req.Code,
	}
	if err := h.manager.Feed(sessionID(c), ev); err != nil {
		respondError(c, h.log, err)
		return
	}
	h.State(c)
}

type bulkRequest struct {
	Kind    string `json:"kind" binding:"required"`
	Value   *int   `json:"value" binding:"required"`
	Confirm bool   `json:"confirm"`
}

type bulkPreview struct {
	Kind   chart.BulkKind `json:"kind"`
	Value  int            `json:"value"`
	Writes int            `json:"writes"`
}

// BulkFill previews a bulk overwrite and applies it only when the request confirms. An
// unconfirmed request answers 428 with the preview.
func (h *ExamHandler) BulkFill(c *gin.Context) {
	var req bulkRequest
	if err := bind(c, &req); err != nil {
		respondError(c, h.log, err)
		return
	}
	kind, err := chart.ParseBulkKind(req.Kind)
	if err != nil {
		respondError(c, h.log, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	value := *req.Value
	if kind == chart.BulkDepth && !utils.IsKeypadValue(value) || kind == chart.BulkMobility && !utils.IsMobilityEntry(value) {
		respondError(c, h.log, fmt.Errorf("bulk %s %d: %w", kind, value, session.ErrInvalidValue))
		return
	}

	var plan chart.BulkPlan
	var state session.State
	err = h.manager.Do(c.Request.Context(), sessionID(c), func(ctrl *session.Controller) error {
		var err error
		plan, err = ctrl.OnBulkFill(kind, value, func(chart.BulkPlan) bool { return req.Confirm })
		state = ctrl.State()
		return err
	})
	preview := bulkPreview{Kind: plan.Kind, Value: plan.Value, Writes: plan.Len()}
	if errors.Is(err, session.ErrConfirmationRequired) {
		c.JSON(http.StatusPreconditionRequired, gin.H{"error": err.Error(), "plan": preview})
		return
	}
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": preview, "state": state})
}

// Commit saves the session as a new exam with its summary metrics and releases it.
func (h *ExamHandler) Commit(c *gin.Context) {
	var saved models.PeriodontalExam
	save := func(ctx context.Context, meta session.Meta, rec chart.ExamRecord) error {
		exam := models.FromRecord(meta.PatientID, rec, h.now())
		exam.ID = meta.ExamID
		exam.Metrics = metrics.CalculateExamMetrics(rec).All()
		if err := h.store.SaveExam(ctx, &exam); err != nil {
			return err
		}
		saved = exam
		return nil
	}

	id := sessionID(c)
	rec, err := h.manager.Commit(c.Request.Context(), id, save)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.clearCookie(c)
	h.log.Info("Exam committed", zap.String("session_id", id), zap.String("exam_id", saved.ID.String()),
		zap.String("patient_id", saved.PatientID), zap.Int("depths", len(rec.Depth)))
	c.JSON(http.StatusOK, gin.H{"examId": saved.ID, "record": rec, "metrics": saved.Metrics})
}

func (h *ExamHandler) Cancel(c *gin.Context) {
	if err := h.manager.Cancel(c.Request.Context(), sessionID(c)); err != nil {
		respondError(c, h.log, err)
		return
	}
	h.clearCookie(c)
	c.Status(http.StatusNoContent)
}

func (h *ExamHandler) clearCookie(c *gin.Context) {
	cookie := sessions.Default(c)
	cookie.Delete(SessionCookieKey)
	if err := cookie.Save(); err != nil {
		h.log.Warn("Failed to clear exam session from cookie", zap.Error(err))
	}
}
