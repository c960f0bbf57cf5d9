package phonoglyph

import (
	"errors"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/control"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/health"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/presets"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/timesync"
)

const maxImportBytes = 4 << 20

// Router builds the HTTP API.
func (s *Service) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/events", s.handleEvents)

	api := r.Group("/api")

	syncAPI := api.Group("/sync")
	syncAPI.GET("/status", s.handleSyncStatus)
	syncAPI.POST("/adjust", s.handleSyncAdjust)
	syncAPI.GET("/points", s.handleListSyncPoints)
	syncAPI.POST("/points", s.handleAddSyncPoint)
	syncAPI.POST("/reset", s.handleSyncReset)

	h := api.Group("/health")
	h.GET("/metrics", s.handleHealthMetrics)
	h.GET("/alerts", s.handleListAlerts)
	h.POST("/alerts/:id/ack", s.handleAcknowledgeAlert)
	h.DELETE("/alerts/acknowledged", s.handleClearAlerts)
	h.GET("/assessment", s.handleAssessment)
	h.GET("/analytics", s.handleAnalytics)
	h.GET("/thresholds", s.handleGetThresholds)
	h.PATCH("/thresholds", s.handleUpdateThresholds)

	controls := api.Group("/controls")
	controls.GET("", s.handleListControls)
	controls.GET("/values", s.handleControlValues)
	controls.GET("/stats", s.handleControlStats)
	controls.GET("/:parameter", s.handleGetControl)
	controls.PUT("/:parameter", s.handleSetControl)
	controls.DELETE("/:parameter", s.handleRemoveControl)

	ingest := api.Group("/ingest")
	ingest.POST("/midi", s.handleIngestMIDI)
	ingest.POST("/audio", s.handleIngestAudio)
	ingest.POST("/stems", s.handleIngestStems)

	midiGroup := api.Group("/midi")
	midiGroup.GET("/snapshot", s.handleMIDISnapshot)
	midiGroup.POST("/transport", s.handleMIDITransport)

	p := api.Group("/presets")
	p.GET("", s.handleListPresets)
	p.POST("", s.handleSavePreset)
	p.GET("/stats", s.handlePresetStats)
	p.GET("/export", s.handleExportPresets)
	p.POST("/import", s.handleImportPresets)
	p.GET("/:id", s.handleGetPreset)
	p.PATCH("/:id", s.handleUpdatePreset)
	p.DELETE("/:id", s.handleDeletePreset)
	p.POST("/:id/duplicate", s.handleDuplicatePreset)
	p.POST("/:id/apply", s.handleApplyPreset)

	return r
}

func (s *Service) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Trace().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

func abortWithError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func (s *Service) handleSyncStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.syncStatus())
}

type adjustRequest struct {
	DeltaMs *float64 `json:"deltaMs" binding:"required"`
}

func (s *Service) handleSyncAdjust(c *gin.Context) {
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	if err := s.controller.AdjustSyncOffset(*req.DeltaMs); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, s.estimator.GetSyncStatus())
}

func (s *Service) handleListSyncPoints(c *gin.Context) {
	c.JSON(http.StatusOK, s.estimator.SyncPoints())
}

func (s *Service) handleAddSyncPoint(c *gin.Context) {
	var point timesync.SyncPoint
	if err := c.ShouldBindJSON(&point); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	if !s.estimator.AddSyncPoint(point) {
		abortWithError(c, http.StatusUnprocessableEntity, timesync.ErrLowConfidence)
		return
	}
	c.JSON(http.StatusCreated, s.estimator.GetSyncStatus())
}

func (s *Service) handleSyncReset(c *gin.Context) {
	s.estimator.Reset()
	s.monitor.Reset()
	c.Status(http.StatusNoContent)
}

func (s *Service) handleHealthMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"current": s.monitor.CurrentMetrics(),
		"history": s.monitor.MetricsHistory(),
	})
}

func (s *Service) handleListAlerts(c *gin.Context) {
	if c.Query("all") == "true" {
		c.JSON(http.StatusOK, s.monitor.GetAllAlerts())
		return
	}
	c.JSON(http.StatusOK, s.monitor.GetActiveAlerts())
}

func (s *Service) handleAcknowledgeAlert(c *gin.Context) {
	if !s.monitor.AcknowledgeAlert(c.Param("id")) {
		abortWithError(c, http.StatusNotFound, errAlertNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Service) handleClearAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cleared": s.monitor.ClearAcknowledgedAlerts()})
}

func (s *Service) handleAssessment(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.GetSyncQualityAssessment())
}

func (s *Service) handleAnalytics(c *gin.Context) {
	data, err := s.monitor.ExportAnalytics()
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="sync-analytics.json"`)
	c.Data(http.StatusOK, "application/json", data)
}

func (s *Service) handleGetThresholds(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.Thresholds())
}

func (s *Service) handleUpdateThresholds(c *gin.Context) {
	var overrides health.ThresholdOverrides
	if err := c.ShouldBindJSON(&overrides); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	updated, err := s.monitor.UpdateThresholds(overrides)
	if err != nil {
		abortWithError(c, http.StatusUnprocessableEntity, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Service) handleListControls(c *gin.Context) {
	c.JSON(http.StatusOK, s.controller.ControlSources())
}

func (s *Service) handleControlValues(c *gin.Context) {
	c.JSON(http.StatusOK, s.values.Values())
}

func (s *Service) handleControlStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.controller.GetPerformanceStats())
}

func (s *Service) handleGetControl(c *gin.Context) {
	config, ok := s.controller.ControlSource(control.Parameter(c.Param("parameter")))
	if !ok {
		abortWithError(c, http.StatusNotFound, control.ErrParameterNotFound)
		return
	}
	c.JSON(http.StatusOK, config)
}

func (s *Service) handleSetControl(c *gin.Context) {
	var config control.ControlSourceConfig
	if err := c.ShouldBindJSON(&config); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	parameter := control.Parameter(c.Param("parameter"))
	if err := s.controller.SetControlSource(parameter, config); err != nil {
		abortWithError(c, http.StatusUnprocessableEntity, err)
		return
	}
	c.JSON(http.StatusOK, control.ParameterSource{Parameter: parameter, Config: config})
}

func (s *Service) handleRemoveControl(c *gin.Context) {
	if !s.controller.RemoveControlSource(control.Parameter(c.Param("parameter"))) {
		abortWithError(c, http.StatusNotFound, control.ErrParameterNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Service) handleIngestMIDI(c *gin.Context) {
	var snap control.MIDISnapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	s.controller.UpdateMIDIData(snap)
	c.Status(http.StatusAccepted)
}

func (s *Service) handleIngestAudio(c *gin.Context) {
	var snap control.AudioSnapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	s.controller.UpdateAudioData(snap)
	c.Status(http.StatusAccepted)
}

func (s *Service) handleIngestStems(c *gin.Context) {
	var stems []control.StemAnalysis
	if err := c.ShouldBindJSON(&stems); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	s.controller.UpdateStemAnalysis(stems)
	c.Status(http.StatusAccepted)
}

func (s *Service) handleMIDISnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.tracker.Snapshot())
}

type transportRequest struct {
	Action   string   `json:"action" binding:"required,oneof=play pause seek"`
	Position *float64 `json:"position"`
	Tempo    *float64 `json:"tempo"`
}

func (s *Service) handleMIDITransport(c *gin.Context) {
	var req transportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	if req.Tempo != nil {
		if err := s.tracker.SetTempo(*req.Tempo); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}
	}
	switch req.Action {
	case "play":
		s.tracker.Play()
	case "pause":
		s.tracker.Pause()
	case "seek":
		if req.Position == nil || math.IsNaN(*req.Position) || math.IsInf(*req.Position, 0) {
			abortWithError(c, http.StatusBadRequest, errMissingPosition)
			return
		}
		s.tracker.Seek(*req.Position)
	}
	snap := s.tracker.Snapshot()
	s.controller.UpdateMIDIData(snap)
	c.JSON(http.StatusOK, snap)
}

func presetStatus(err error) int {
	switch {
	case errors.Is(err, presets.ErrPresetNotFound):
		return http.StatusNotFound
	case errors.Is(err, presets.ErrInvalidPreset), errors.Is(err, presets.ErrInvalidExport):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Service) handleListPresets(c *gin.Context) {
	switch {
	case c.Query("q") != "":
		c.JSON(http.StatusOK, emptyIfNil(s.presets.Search(c.Query("q"))))
	case c.Query("type") != "":
		c.JSON(http.StatusOK, emptyIfNil(s.presets.ByType(control.Source(c.Query("type")))))
	default:
		c.JSON(http.StatusOK, s.presets.List())
	}
}

func emptyIfNil(list []presets.Preset) []presets.Preset {
	if list == nil {
		return []presets.Preset{}
	}
	return list
}

type savePresetRequest struct {
	Name          string                `json:"name" binding:"required"`
	Description   string                `json:"description"`
	Configuration presets.Configuration `json:"configuration"`
}

func (s *Service) handleSavePreset(c *gin.Context) {
	var req savePresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	p, err := s.presets.Save(c.Request.Context(), req.Name, req.Configuration, req.Description)
	if err != nil {
		abortWithError(c, presetStatus(err), err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Service) handlePresetStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.presets.Stats())
}

func (s *Service) handleExportPresets(c *gin.Context) {
	var ids []string
	if raw := c.Query("ids"); raw != "" {
		ids = strings.Split(raw, ",")
	}
	data, err := s.presets.Export(ids...)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="presets.json"`)
	c.Data(http.StatusOK, "application/json", data)
}

func (s *Service) handleImportPresets(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	result, err := s.presets.Import(c.Request.Context(), data, c.Query("overwrite") == "true")
	if err != nil {
		c.AbortWithStatusJSON(presetStatus(err), gin.H{"error": err.Error(), "result": result})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Service) handleGetPreset(c *gin.Context) {
	p, err := s.presets.Load(c.Param("id"))
	if err != nil {
		abortWithError(c, presetStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Service) handleUpdatePreset(c *gin.Context) {
	var update presets.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	p, err := s.presets.Update(c.Request.Context(), c.Param("id"), update)
	if err != nil {
		abortWithError(c, presetStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Service) handleDeletePreset(c *gin.Context) {
	if err := s.presets.Delete(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, presetStatus(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Service) handleDuplicatePreset(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}
	}
	p, err := s.presets.Duplicate(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		abortWithError(c, presetStatus(err), err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Service) handleApplyPreset(c *gin.Context) {
	applied, err := s.presets.Apply(c.Param("id"), s.controller)
	if err != nil && applied == 0 {
		abortWithError(c, presetStatus(err), err)
		return
	}
	resp := gin.H{"applied": applied}
	if err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}
