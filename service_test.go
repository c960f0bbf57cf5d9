package phonoglyph

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/clock"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/config"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/control"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/health"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/presets"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type testService struct {
	*Service
	clock  *clock.Manual
	sched  *clock.ManualScheduler
	router *gin.Engine
}

func newTestService(t *testing.T) *testService {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.NewManual(testEpoch)
	sched := clock.NewManualScheduler(clk)
	svc, err := NewService(context.Background(), config.Default(), zerolog.Nop(), clk, sched)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })

	return &testService{Service: svc, clock: clk, sched: sched, router: svc.Router()}
}

func (ts *testService) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

const brightnessCC = `{"source":"midi","midiMapping":{"channel":0,"controller":74,"scaling":1}}`

func TestHTTPAPI(t *testing.T) {
	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{"ControlsDriveValues", testControlsDriveValues},
		{"ControlValidation", testControlValidation},
		{"RemoveControl", testRemoveControl},
		{"SyncPointsAndAdjust", testSyncPointsAndAdjust},
		{"HealthAlertsLifecycle", testHealthAlertsLifecycle},
		{"Thresholds", testThresholds},
		{"AnalyticsExport", testAnalyticsExport},
		{"TransportFeedsController", testTransportFeedsController},
		{"PresetsCRUD", testPresetsCRUD},
		{"PresetApply", testPresetApply},
		{"PresetImportExport", testPresetImportExport},
		{"MetricsEndpoint", testMetricsEndpoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}

func testControlsDriveValues(t *testing.T) {
	ts := newTestService(t)

	rec := ts.do(t, http.MethodPut, "/api/controls/brightness", brightnessCC)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/ingest/midi", `{"activeNotes":[],"controllers":[{"channel":0,"controller":74,"value":127}],"currentTime":0,"tempo":120}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	ts.Start()
	ts.sched.Advance(ts.cfg.FrameInterval())

	var values map[string]float64
	decode(t, ts.do(t, http.MethodGet, "/api/controls/values", nil), &values)
	assert.Equal(t, map[string]float64{"brightness": 1}, values)

	var stats control.PerformanceStats
	decode(t, ts.do(t, http.MethodGet, "/api/controls/stats", nil), &stats)
	assert.Equal(t, int64(1), stats.UpdateCount)
	assert.Equal(t, 1, stats.ActiveSources)

	var sources []control.ParameterSource
	decode(t, ts.do(t, http.MethodGet, "/api/controls", nil), &sources)
	require.Len(t, sources, 1)
	assert.Equal(t, control.Brightness, sources[0].Parameter)
}

func testControlValidation(t *testing.T) {
	ts := newTestService(t)

	rec := ts.do(t, http.MethodPut, "/api/controls/brightness", `{"source":"midi"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/controls/brightness", `{"source":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/controls/brightness", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func testRemoveControl(t *testing.T) {
	ts := newTestService(t)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/api/controls/opacity", brightnessCC).Code)

	rec := ts.do(t, http.MethodGet, "/api/controls/opacity", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/api/controls/opacity", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/api/controls/opacity", nil).Code)
}

func testSyncPointsAndAdjust(t *testing.T) {
	ts := newTestService(t)

	rec := ts.do(t, http.MethodPost, "/api/sync/points", `{"domainATime":960,"domainBTime":1.0,"confidence":0.9}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/sync/points", `{"domainATime":960,"domainBTime":1.0,"confidence":0.05}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/sync/adjust", `{"deltaMs":20}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/sync/adjust", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var points []map[string]interface{}
	decode(t, ts.do(t, http.MethodGet, "/api/sync/points", nil), &points)
	assert.Len(t, points, 2, "manual adjustment anchors a sync point")

	rec = ts.do(t, http.MethodGet, "/api/sync/status", nil)
	assert.Contains(t, rec.Body.String(), `"syncPointCount":2`)
	var status SyncStatusData
	decode(t, rec, &status)
	assert.Equal(t, 2, status.Timing.SyncPointCount)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodPost, "/api/sync/reset", nil).Code)
	decode(t, ts.do(t, http.MethodGet, "/api/sync/points", nil), &points)
	assert.Empty(t, points)
}

func testHealthAlertsLifecycle(t *testing.T) {
	ts := newTestService(t)
	ts.clock.Advance(11 * time.Second)
	ts.monitor.Sample()

	var alerts []health.Alert
	decode(t, ts.do(t, http.MethodGet, "/api/health/alerts", nil), &alerts)
	require.Len(t, alerts, 1)
	assert.Equal(t, health.AlertDisconnect, alerts[0].Type)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodPost, "/api/health/alerts/"+alerts[0].ID+"/ack", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/health/alerts/nope/ack", nil).Code)

	decode(t, ts.do(t, http.MethodGet, "/api/health/alerts", nil), &alerts)
	assert.Empty(t, alerts)
	decode(t, ts.do(t, http.MethodGet, "/api/health/alerts?all=true", nil), &alerts)
	assert.Len(t, alerts, 1)

	var cleared map[string]int
	decode(t, ts.do(t, http.MethodDelete, "/api/health/alerts/acknowledged", nil), &cleared)
	assert.Equal(t, 1, cleared["cleared"])

	var metrics struct {
		Current health.SyncMetrics   `json:"current"`
		History []health.SyncMetrics `json:"history"`
	}
	decode(t, ts.do(t, http.MethodGet, "/api/health/metrics", nil), &metrics)
	assert.Len(t, metrics.History, 1)

	var assessment health.Assessment
	decode(t, ts.do(t, http.MethodGet, "/api/health/assessment", nil), &assessment)
	assert.NotEmpty(t, assessment.Issues)
}

func testThresholds(t *testing.T) {
	ts := newTestService(t)

	var th health.Thresholds
	rec := ts.do(t, http.MethodPatch, "/api/health/thresholds", `{"driftWarning":0.02}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &th)
	assert.Equal(t, 0.02, th.DriftWarning)
	assert.Equal(t, 0.05, th.DriftCritical)

	decode(t, ts.do(t, http.MethodGet, "/api/health/thresholds", nil), &th)
	assert.Equal(t, 0.02, th.DriftWarning)

	rec = ts.do(t, http.MethodPatch, "/api/health/thresholds", `{"disconnectTimeout":15000}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"disconnectTimeout":15000`)
	assert.Equal(t, 15*time.Second, ts.monitor.Thresholds().DisconnectTimeout)

	rec = ts.do(t, http.MethodPatch, "/api/health/thresholds", `{"driftCritical":0.001}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 0.05, ts.monitor.Thresholds().DriftCritical)
}

func testAnalyticsExport(t *testing.T) {
	ts := newTestService(t)
	ts.monitor.Sample()

	rec := ts.do(t, http.MethodGet, "/api/health/analytics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "sync-analytics.json")

	var analytics health.Analytics
	decode(t, rec, &analytics)
	assert.Len(t, analytics.MetricsHistory, 1)
}

func testTransportFeedsController(t *testing.T) {
	ts := newTestService(t)

	rec := ts.do(t, http.MethodPost, "/api/midi/transport", `{"action":"play","tempo":90}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	ts.clock.Advance(2 * time.Second)
	var snap control.MIDISnapshot
	decode(t, ts.do(t, http.MethodGet, "/api/midi/snapshot", nil), &snap)
	assert.InDelta(t, 3.0, snap.CurrentTime, 1e-9)
	assert.Equal(t, 90.0, snap.Tempo)
	assert.Equal(t, 90.0, ts.estimator.GetTimingStats().ReferenceTempo)

	rec = ts.do(t, http.MethodPost, "/api/midi/transport", `{"action":"seek"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/midi/transport", `{"action":"rewind"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/midi/transport", `{"action":"pause","tempo":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func testPresetsCRUD(t *testing.T) {
	ts := newTestService(t)

	var list []presets.Preset
	decode(t, ts.do(t, http.MethodGet, "/api/presets", nil), &list)
	require.Len(t, list, 3)

	body := map[string]interface{}{
		"name": "Stage",
		"configuration": map[string]interface{}{
			"type": "midi",
			"parameters": map[string]interface{}{
				"opacity": map[string]interface{}{
					"source":       "midi",
					"midiMapping": map[string]interface{}{"channel": 0, "controller": 7, "scaling": 1},
				},
			},
		},
	}
	rec := ts.do(t, http.MethodPost, "/api/presets", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created presets.Preset
	decode(t, rec, &created)

	rec = ts.do(t, http.MethodPatch, "/api/presets/"+created.ID, `{"description":"live set"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	decode(t, ts.do(t, http.MethodGet, "/api/presets?q=live", nil), &list)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	decode(t, ts.do(t, http.MethodGet, "/api/presets?type=midi", nil), &list)
	assert.Len(t, list, 2)

	rec = ts.do(t, http.MethodPost, "/api/presets/"+created.ID+"/duplicate", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var dup presets.Preset
	decode(t, rec, &dup)
	assert.Equal(t, "Stage (Copy)", dup.Name)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/api/presets/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/presets/"+created.ID, nil).Code)

	rec = ts.do(t, http.MethodPost, "/api/presets", `{"name":"Broken","configuration":{"type":"osc","parameters":{}}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var stats presets.Stats
	decode(t, ts.do(t, http.MethodGet, "/api/presets/stats", nil), &stats)
	assert.Equal(t, 4, stats.Total)
}

func testPresetApply(t *testing.T) {
	ts := newTestService(t)
	hybrid := ts.presets.ByType(control.SourceHybrid)[0]

	rec := ts.do(t, http.MethodPost, "/api/presets/"+hybrid.ID+"/apply", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	decode(t, rec, &resp)
	assert.Equal(t, float64(2), resp["applied"])

	_, ok := ts.controller.ControlSource(control.ColorIntensity)
	assert.True(t, ok)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/presets/missing/apply", nil).Code)
}

func testPresetImportExport(t *testing.T) {
	ts := newTestService(t)

	rec := ts.do(t, http.MethodGet, "/api/presets/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	exported := rec.Body.String()

	rec = ts.do(t, http.MethodPost, "/api/presets/import", exported)
	require.Equal(t, http.StatusOK, rec.Code)
	var result presets.ImportResult
	decode(t, rec, &result)
	assert.Equal(t, 3, result.Skipped)

	rec = ts.do(t, http.MethodPost, "/api/presets/import?overwrite=true", exported)
	decode(t, rec, &result)
	assert.Equal(t, 3, result.Imported)

	rec = ts.do(t, http.MethodPost, "/api/presets/import", "not json")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func testMetricsEndpoint(t *testing.T) {
	ts := newTestService(t)
	ts.monitor.Sample()

	rec := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "phonoglyph_sync_health_score")
}

func TestServiceScheduling(t *testing.T) {
	ts := newTestService(t)
	ts.Start()

	ts.sched.Advance(3 * time.Second)
	assert.Len(t, ts.monitor.MetricsHistory(), 3)
	assert.Equal(t, int64(180), ts.controller.GetPerformanceStats().UpdateCount)

	require.NoError(t, ts.Close(context.Background()))
	assert.Zero(t, ts.sched.Pending())
	assert.False(t, ts.controller.IsActive())
}
