package telemetry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/divfolio/internal/common"
	"github.com/bobmcallan/divfolio/internal/models"
)

type stubProgress struct {
	last *models.ProgressEvent
}

func (s *stubProgress) ServeWS(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusTeapot)
}

func (s *stubProgress) Last() (models.ProgressEvent, bool) {
	if s.last == nil {
		return models.ProgressEvent{}, false
	}
	return *s.last, true
}

type stubRanking struct {
	run *models.AnalysisRun
}

func (s *stubRanking) LatestRun() (*models.AnalysisRun, bool) {
	return s.run, s.run != nil
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheLookup("short", true)
		m.SetCacheEntries("short", 3)
		m.ProviderCall("real-time", "ok", time.Millisecond)
		m.ProviderRetry("real-time")
		m.SetBreakerState("eodhd", 2)
		m.SymbolOutcome("ranked")
		m.RunFinished(time.Second)
		m.SetProgress(0.5)
		m.WorkerBusy(1)
	})
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ProviderCall("dividends", "ok", 20*time.Millisecond)
	m.ProviderCall("dividends", "transient", 20*time.Millisecond)
	m.ProviderRetry("dividends")
	m.SymbolOutcome("ranked")
	m.SymbolOutcome("ranked")
	m.WorkerBusy(1)
	m.WorkerBusy(1)
	m.WorkerBusy(-1)
	m.SetProgress(0.75)
	m.SetCacheEntries("long", 12)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCalls.WithLabelValues("dividends", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderRetries.WithLabelValues("dividends")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SymbolOutcomes.WithLabelValues("ranked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveWorkers))
	assert.Equal(t, 0.75, testutil.ToFloat64(m.RunProgress))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.CacheSize.WithLabelValues("long")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ProviderLatency))
}

func TestServer_Routes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.SymbolOutcome("ranked")

	progress := &stubProgress{}
	srv := NewServer("127.0.0.1:0", reg, progress, common.NewSilentLogger())
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "divfolio_symbol_outcomes_total"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/progress", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	progress.last = &models.ProgressEvent{RunID: "r1", Completed: 2, Total: 4, Ratio: 0.5}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/progress", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var event models.ProgressEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &event))
	assert.Equal(t, "r1", event.RunID)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/progress", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_Ranking(t *testing.T) {
	srv := NewServer("127.0.0.1:0", prometheus.NewRegistry(), nil, nil)
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ranking", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ranking := &stubRanking{}
	srv.SetRankingSource(ranking)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ranking", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ranking.run = &models.AnalysisRun{
		RunID:   "r2",
		Total:   1,
		Results: []models.MetricsResult{{Symbol: "TAEE11.SA", Score: 12.5}},
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ranking", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var run models.AnalysisRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "r2", run.RunID)
	require.Len(t, run.Results, 1)
	assert.Equal(t, "TAEE11.SA", run.Results[0].Symbol)

	// no progress hub wired
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/progress", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
