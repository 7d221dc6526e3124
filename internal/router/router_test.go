package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"perio-go/internal/chart"
	"perio-go/internal/config"
	"perio-go/internal/metrics"
	"perio-go/internal/models"
	"perio-go/internal/repository"
	"perio-go/internal/session"
)

type memoryStore struct {
	mu      sync.Mutex
	exams   []models.PeriodontalExam
	missing map[string][]int
	saveErr error
}

func (s *memoryStore) SaveExam(_ context.Context, exam *models.PeriodontalExam) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.exams = append(s.exams, *exam)
	return nil
}

func (s *memoryStore) GetExam(_ context.Context, id uuid.UUID) (*models.PeriodontalExam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.exams {
		if s.exams[i].ID == id {
			exam := s.exams[i]
			return &exam, nil
		}
	}
	return nil, repository.ErrExamNotFound
}

func (s *memoryStore) ListExams(_ context.Context, patientID string, limit int) ([]models.PeriodontalExam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PeriodontalExam
	for _, e := range s.exams {
		if e.PatientID == patientID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExaminedAt.After(out[j].ExaminedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) LatestMissingTeeth(_ context.Context, patientID string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.missing[patientID], nil
}

func (s *memoryStore) GetTimelineData(_ context.Context, patientID, scope, metricKey string) ([]repository.TimelineDataPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.TimelineDataPoint
	for _, e := range s.exams {
		if e.PatientID != patientID {
			continue
		}
		if m, ok := metrics.Lookup(e.Metrics, scope, metricKey); ok {
			out = append(out, repository.TimelineDataPoint{Date: e.ExaminedAt, Value: m.MetricValue})
		}
	}
	return out, nil
}

func (s *memoryStore) GetCorrelationData(context.Context, string, string, string, string) ([]repository.CorrelationDataPoint, error) {
	return nil, nil
}

type apiClient struct {
	t    *testing.T
	base string
	http *http.Client
	csrf string
}

func newAPIClient(t *testing.T, base string) *apiClient {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	a := &apiClient{t: t, base: base, http: &http.Client{Jar: jar}}

	var tok struct {
		CSRFToken string `json:"csrfToken"`
	}
	status := a.call(http.MethodGet, "/api/csrf", nil, &tok)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, tok.CSRFToken)
	a.csrf = tok.CSRFToken
	return a
}

func (a *apiClient) call(method, path string, body, out any) int {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.base+path, &buf)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if a.csrf != "" {
		req.Header.Set(csrfTokenHeaderKey, a.csrf)
	}
	resp, err := a.http.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type stateResponse struct {
	Result json.RawMessage `json:"result"`
	State  session.State   `json:"state"`
}

type testServer struct {
	url     string
	manager *session.Manager
	store   *memoryStore
}

func newTestServer(t *testing.T, server config.ServerConfig) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	manager := session.NewManager(session.Options{SeedWisdomTeeth: true}, zap.NewNop())
	store := &memoryStore{missing: map[string][]int{}}
	engine, err := Setup(zap.NewNop(), server, manager, store)
	require.NoError(t, err)
	srv := httptest.NewServer(engine)
	t.Cleanup(func() {
		srv.Close()
		manager.Shutdown(context.Background())
	})
	return &testServer{url: srv.URL, manager: manager, store: store}
}

func TestExamSessionLifecycle(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})
	api := newAPIClient(t, ts.url)

	var created struct {
		SessionID string        `json:"sessionId"`
		ExamID    uuid.UUID     `json:"examId"`
		State     session.State `json:"state"`
	}
	status := api.call(http.MethodPost, "/api/exam/sessions", gin.H{"patientId": "P-1", "scheme": "six", "phase": "P_EXAM_2"}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "17_db", created.State.CursorKey)
	assert.Equal(t, chart.PhaseExam2, created.State.Phase)

	var res stateResponse
	require.Equal(t, http.StatusOK, api.call(http.MethodPost, "/api/exam/session/keypad", gin.H{"value": 5}, &res))
	assert.Equal(t, 5, res.State.Record.Depth[chart.SiteKey{Tooth: 17, Point: chart.PointDistoBuccal}])
	assert.Equal(t, "17_b", res.State.CursorKey)

	require.Equal(t, http.StatusOK, api.call(http.MethodPost, "/api/exam/session/entry-mode", gin.H{"mode": "bleeding"}, &res))
	assert.Equal(t, session.MarkBleeding, res.State.EntryMode)
	require.Equal(t, http.StatusOK, api.call(http.MethodPost, "/api/exam/session/click", chart.Position{Pass: 0, Tooth: 1, Point: 0}, &res))
	assert.True(t, res.State.Record.Bleeding[chart.SiteKey{Tooth: 17, Point: chart.PointDistoBuccal}])
	assert.Equal(t, "17_b", res.State.CursorKey, "a mark click leaves the cursor")

	require.Equal(t, http.StatusOK, api.call(http.MethodPost, "/api/exam/session/plaque", gin.H{"tooth": 21, "quadrant": "top"}, &res))
	require.Equal(t, http.StatusOK, api.call(http.MethodPost, "/api/exam/session/mobility", gin.H{"tooth": 21, "value": 0}, &res))
	assert.Equal(t, map[int]int{21: 0}, res.State.Record.Mobility)

	var summary struct {
		Global []models.ExamMetric `json:"global"`
	}
	require.Equal(t, http.StatusOK, api.call(http.MethodGet, "/api/exam/session/summary", nil, &summary))
	mean, ok := metrics.Lookup(summary.Global, metrics.ScopeGlobal, metrics.KeyMeanPPD)
	require.True(t, ok)
	assert.InDelta(t, 5.0, mean.MetricValue, 1e-9)

	var committed struct {
		ExamID  uuid.UUID           `json:"examId"`
		Record  chart.ExamRecord    `json:"record"`
		Metrics []models.ExamMetric `json:"metrics"`
	}
	require.Equal(t, http.StatusOK, api.call(http.MethodPost, "/api/exam/session/commit", nil, &committed))
	assert.Equal(t, created.ExamID, committed.ExamID)
	assert.NotEmpty(t, committed.Metrics)
	assert.Equal(t, 0, ts.manager.Len())
	require.Len(t, ts.store.exams, 1)
	assert.Equal(t, "P-1", ts.store.exams[0].PatientID)
	assert.Len(t, ts.store.exams[0].Teeth, 32)

	assert.Equal(t, http.StatusNotFound, api.call(http.MethodGet, "/api/exam/session", nil, &gin.H{}))

	var fetched struct {
		Record chart.ExamRecord `json:"record"`
	}
	require.Equal(t, http.StatusOK, api.call(http.MethodGet, "/api/exams/"+committed.ExamID.String(), nil, &fetched))
	assert.Equal(t, committed.Record.Depth, fetched.Record.Depth)

	var listed struct {
		Exams []models.PeriodontalExam `json:"exams"`
	}
	require.Equal(t, http.StatusOK, api.call(http.MethodGet, "/api/patients/P-1/exams", nil, &listed))
	assert.Len(t, listed.Exams, 1)

	var timeline struct {
		Points []repository.TimelineDataPoint `json:"points"`
	}
	require.Equal(t, http.StatusOK, api.call(http.MethodGet, "/api/patients/P-1/timeline?metric=mean_ppd", nil, &timeline))
	require.Len(t, timeline.Points, 1)
	assert.InDelta(t, 5.0, timeline.Points[0].Value, 1e-9)
}

func TestBulkFillNeedsConfirmation(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})
	api := newAPIClient(t, ts.url)
	require.Equal(t, http.StatusCreated, api.call(http.MethodPost, "/api/exam/sessions", gin.H{"patientId": "P-1"}, &gin.H{}))

	var preview struct {
		Plan struct {
			Writes int `json:"writes"`
		} `json:"plan"`
	}
	status := api.call(http.MethodPost, "/api/exam/session/bulk", gin.H{"kind": "depth", "value": 3}, &preview)
	assert.Equal(t, http.StatusPreconditionRequired, status)
	assert.Equal(t, 28*6, preview.Plan.Writes)

	var res stateResponse
	require.Equal(t, http.StatusOK, api.call(http.MethodPost, "/api/exam/session/bulk", gin.H{"kind": "depth", "value": 3, "confirm": true}, &res))
	assert.Len(t, res.State.Record.Depth, 28*6)

	assert.Equal(t, http.StatusBadRequest, api.call(http.MethodPost, "/api/exam/session/bulk", gin.H{"kind": "depth", "value": 16, "confirm": true}, &gin.H{}))
}

func TestEditKeepsTheRecordedScheme(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})
	api := newAPIClient(t, ts.url)
	require.Equal(t, http.StatusCreated, api.call(http.MethodPost, "/api/exam/sessions", gin.H{"patientId": "P-1", "scheme": "six"}, &gin.H{}))
	require.Equal(t, http.StatusOK, api.call(http.MethodPost, "/api/exam/session/bulk", gin.H{"kind": "depth", "value": 3, "confirm": true}, &gin.H{}))

	var committed struct {
		ExamID uuid.UUID `json:"examId"`
	}
	require.Equal(t, http.StatusOK, api.call(http.MethodPost, "/api/exam/session/commit", nil, &committed))

	status := api.call(http.MethodPost, "/api/exam/sessions", gin.H{"patientId": "P-1", "scheme": "single", "examId": committed.ExamID}, &gin.H{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 0, ts.manager.Len())

	var edited struct {
		State session.State `json:"state"`
	}
	status = api.call(http.MethodPost, "/api/exam/sessions", gin.H{"patientId": "P-1", "scheme": "6point", "examId": committed.ExamID}, &edited)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, chart.SchemeSix, edited.State.Record.Scheme)
	assert.Len(t, edited.State.Record.Depth, 28*6)
}

func TestKeypadRejectsOutOfRange(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})
	api := newAPIClient(t, ts.url)
	require.Equal(t, http.StatusCreated, api.call(http.MethodPost, "/api/exam/sessions", gin.H{"patientId": "P-1"}, &gin.H{}))

	for _, v := range []int{0, 16} {
		assert.Equal(t, http.StatusBadRequest, api.call(http.MethodPost, "/api/exam/session/keypad", gin.H{"value": v}, &gin.H{}))
	}
	assert.Equal(t, http.StatusBadRequest, api.call(http.MethodPost, "/api/exam/session/keypad", gin.H{}, &gin.H{}))

	var res stateResponse
	require.Equal(t, http.StatusOK, api.call(http.MethodGet, "/api/exam/session", nil, &res))
	assert.Empty(t, res.State.Record.Depth)
}

func TestRecognitionEventsOverHTTP(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})
	api := newAPIClient(t, ts.url)
	require.Equal(t, http.StatusCreated, api.call(http.MethodPost, "/api/exam/sessions", gin.H{"patientId": "P-1"}, &gin.H{}))

	event := gin.H{"kind": "result", "transcript": "3 4 5", "confidence": 0.9, "isFinal": true}
	assert.Equal(t, http.StatusConflict, api.call(http.MethodPost, "/api/exam/session/voice/events", event, &gin.H{}))

	var res stateResponse
	require.Equal(t, http.StatusOK, api.call(http.MethodPost, "/api/exam/session/voice/start", nil, &res))
	assert.True(t, res.State.Recording)
	assert.Equal(t, http.StatusConflict, api.call(http.MethodPost, "/api/exam/session/voice/mode", gin.H{"mode": "bleeding"}, &gin.H{}))

	require.Equal(t, http.StatusOK, api.call(http.MethodPost, "/api/exam/session/voice/events", event, &res))
	assert.Len(t, res.State.Record.Depth, 3)

	require.Equal(t, http.StatusOK, api.call(http.MethodPost, "/api/exam/session/voice/stop", nil, &res))
	assert.False(t, res.State.Recording)
	require.Equal(t, http.StatusOK, api.call(http.MethodPost, "/api/exam/session/voice/mode", gin.H{"mode": "bleeding"}, &res))
	assert.Equal(t, "bleeding", string(res.State.VoiceMode))
}

func TestCreateSeedsMissingTeethFromPreviousExam(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})
	ts.store.missing["P-2"] = []int{11, 18}
	api := newAPIClient(t, ts.url)

	var created struct {
		State session.State `json:"state"`
	}
	require.Equal(t, http.StatusCreated, api.call(http.MethodPost, "/api/exam/sessions", gin.H{"patientId": "P-2"}, &created))
	assert.Equal(t, []int{11, 18, 28, 38, 48}, created.State.Record.MissingTeeth)

	require.Equal(t, http.StatusCreated, api.call(http.MethodPost, "/api/exam/sessions", gin.H{"patientId": "P-2", "seedMissing": []int{}}, &created))
	assert.Equal(t, []int{18, 28, 38, 48}, created.State.Record.MissingTeeth)
	assert.Equal(t, 1, ts.manager.Len(), "the replaced session is cancelled")
}

func TestCommitFailureKeepsSession(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})
	ts.store.saveErr = errors.New("disk full")
	api := newAPIClient(t, ts.url)
	require.Equal(t, http.StatusCreated, api.call(http.MethodPost, "/api/exam/sessions", gin.H{"patientId": "P-1"}, &gin.H{}))

	assert.Equal(t, http.StatusInternalServerError, api.call(http.MethodPost, "/api/exam/session/commit", nil, &gin.H{}))
	assert.Equal(t, http.StatusOK, api.call(http.MethodGet, "/api/exam/session", nil, &gin.H{}))

	assert.Equal(t, http.StatusNoContent, api.call(http.MethodPost, "/api/exam/session/cancel", nil, nil))
	assert.Equal(t, 0, ts.manager.Len())
}

func TestRequestGuards(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{RateLimitPerMinute: 2})
	api := newAPIClient(t, ts.url)

	assert.Equal(t, http.StatusNotFound, api.call(http.MethodGet, "/api/exam/session", nil, &gin.H{}))
	assert.Equal(t, http.StatusBadRequest, api.call(http.MethodPost, "/api/exam/sessions", gin.H{"patientId": "P 1"}, &gin.H{}))
	assert.Equal(t, http.StatusCreated, api.call(http.MethodPost, "/api/exam/sessions", gin.H{"patientId": "P-1"}, &gin.H{}))
	assert.Equal(t, http.StatusTooManyRequests, api.call(http.MethodPost, "/api/exam/sessions", gin.H{"patientId": "P-1"}, &gin.H{}))

	noToken := newAPIClient(t, ts.url)
	noToken.csrf = ""
	assert.Equal(t, http.StatusForbidden, noToken.call(http.MethodPost, "/api/exam/session/skip", nil, &gin.H{}))
	assert.Equal(t, http.StatusBadRequest, api.call(http.MethodGet, "/api/exams/not-a-uuid", nil, &gin.H{}))
	assert.Equal(t, http.StatusNotFound, api.call(http.MethodGet, "/api/exams/"+uuid.NewString(), nil, &gin.H{}))
}

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})
	resp, err := http.Get(ts.url + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	_, err = uuid.Parse(resp.Header.Get(requestIDHeaderKey))
	assert.NoError(t, err)
}

func TestSetupRejectsShortSecret(t *testing.T) {
	manager := session.NewManager(session.Options{}, zap.NewNop())
	_, err := Setup(zap.NewNop(), config.ServerConfig{SessionSecret: "short"}, manager, &memoryStore{})
	assert.Error(t, err)
}
