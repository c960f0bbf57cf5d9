package health

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/clock"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/logging"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/ringbuf"
	"github.com/rs/zerolog"
)

const (
	maxMetricsHistory   = 100
	maxAlerts           = 50
	alertDedupWindow    = 5 * time.Second
	stabilityWindow     = 5
	minStabilitySamples = 3
	stableQuality       = 0.7

	// DefaultInterval is the sampling period used when StartMonitoring gets a non-positive interval.
	DefaultInterval = time.Second

	exportTimeFormat = "2006-01-02T15:04:05.000Z07:00"
)

// Monitor samples a SyncSource on a fixed interval, keeps a bounded metrics
// history and raises deduplicated alerts when thresholds are crossed.
type Monitor struct {
	running int32 // atomic

	mu         sync.Mutex
	source     SyncSource
	clock      clock.Clock
	scheduler  clock.Scheduler
	stopTick   clock.StopFunc
	logger     zerolog.Logger
	log        *logging.ComponentLogger
	thresholds Thresholds

	metrics                SyncMetrics
	history                *ringbuf.Ring[SyncMetrics]
	alerts                 []Alert
	consecutivePoorSamples int

	handlers []AlertHandler
}

// NewMonitor creates a monitor for source. A nil scheduler runs ticks on real tickers.
func NewMonitor(source SyncSource, clk clock.Clock, scheduler clock.Scheduler, logger zerolog.Logger) *Monitor {
	if clk == nil {
		clk = clock.System()
	}
	if scheduler == nil {
		scheduler = clock.NewTickerScheduler()
	}
	log := logging.NewComponentLogger(logger, "sync-monitor")
	m := &Monitor{
		source:     source,
		clock:      clk,
		scheduler:  scheduler,
		logger:     log.GetLogger(),
		log:        log,
		thresholds: DefaultThresholds(),
		history:    ringbuf.New[SyncMetrics](maxMetricsHistory),
	}
	m.metrics = m.initialMetrics()
	return m
}

func (m *Monitor) initialMetrics() SyncMetrics {
	return SyncMetrics{
		QualityScore: 1.0,
		LastSyncTime: m.clock.Now(),
	}
}

// StartMonitoring begins periodic sampling. Calling it while running only logs a warning.
func (m *Monitor) StartMonitoring(interval time.Duration) {
	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		m.log.LogWarning("sync monitoring already running")
		return
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	stop := m.scheduler.Every(interval, m.tick)

	m.mu.Lock()
	m.stopTick = stop
	m.mu.Unlock()

	m.logger.Info().Dur("interval", interval).Msg("sync monitoring started")
}

// StopMonitoring halts sampling. Safe to call when not running.
func (m *Monitor) StopMonitoring() {
	wasRunning := atomic.SwapInt32(&m.running, 0) == 1

	m.mu.Lock()
	stop := m.stopTick
	m.stopTick = nil
	m.mu.Unlock()

	if stop != nil {
		stop()
	}
	if wasRunning {
		m.log.LogComponentStopped()
	}
}

// IsMonitoring reports whether periodic sampling is active
func (m *Monitor) IsMonitoring() bool {
	return atomic.LoadInt32(&m.running) == 1
}

func (m *Monitor) tick() {
	// a tick already queued when StopMonitoring ran must not sample
	if atomic.LoadInt32(&m.running) == 0 {
		return
	}
	m.Sample()
}

// Sample records one metrics snapshot and evaluates alert conditions.
func (m *Monitor) Sample() SyncMetrics {
	status := m.source.GetSyncStatus()
	stats := m.source.GetTimingStats()

	m.mu.Lock()
	metrics := m.buildMetricsLocked(status.Offset, status.AverageDrift, status.Quality, status.LastUpdate, stats.SyncPointCount)
	m.metrics = metrics
	m.history.Push(metrics)
	raised := m.checkForAlertsLocked()
	assessment := assess(metrics, m.thresholds, m.clock.Now())
	active := m.countActiveLocked()
	handlers := append([]AlertHandler(nil), m.handlers...)
	m.mu.Unlock()

	syncOffsetStdDevSeconds.Set(metrics.OffsetStdDev)
	syncDriftRateSeconds.Set(metrics.DriftRate)
	syncStable.Set(boolToFloat(metrics.IsStable))
	syncHealthScore.Set(assessment.Score)
	syncActiveAlerts.Set(float64(active))

	m.notify(handlers, raised)
	return metrics
}

// buildMetricsLocked derives a snapshot. Std-dev and stability use the history
// recorded before this snapshot.
func (m *Monitor) buildMetricsLocked(offset, drift, quality float64, lastUpdate time.Time, points int) SyncMetrics {
	return SyncMetrics{
		AverageOffset:  offset,
		OffsetStdDev:   m.offsetStdDevLocked(),
		DriftRate:      drift,
		SyncPointCount: points,
		QualityScore:   quality,
		LastSyncTime:   lastUpdate,
		IsStable:       m.assessStabilityLocked(),
	}
}

func (m *Monitor) offsetStdDevLocked() float64 {
	n := m.history.Len()
	if n < 2 {
		return 0
	}

	var sum float64
	m.history.Do(func(_ int, s SyncMetrics) { sum += s.AverageOffset })
	mean := sum / float64(n)

	var variance float64
	m.history.Do(func(_ int, s SyncMetrics) {
		d := s.AverageOffset - mean
		variance += d * d
	})
	return math.Sqrt(variance / float64(n))
}

func (m *Monitor) assessStabilityLocked() bool {
	recent := m.history.Last(stabilityWindow)
	if len(recent) < minStabilitySamples {
		return false
	}

	var quality, drift float64
	for _, s := range recent {
		quality += s.QualityScore
		drift += math.Abs(s.DriftRate)
	}
	n := float64(len(recent))
	return quality/n > stableQuality && drift/n < m.thresholds.DriftWarning
}

// CheckForAlerts evaluates alert conditions against the last recorded metrics.
func (m *Monitor) CheckForAlerts() []Alert {
	m.mu.Lock()
	raised := m.checkForAlertsLocked()
	active := m.countActiveLocked()
	handlers := append([]AlertHandler(nil), m.handlers...)
	m.mu.Unlock()

	syncActiveAlerts.Set(float64(active))
	m.notify(handlers, raised)
	return raised
}

func (m *Monitor) checkForAlertsLocked() []Alert {
	metrics := m.metrics
	now := m.clock.Now()
	var raised []Alert

	add := func(t AlertType, s Severity, msg string) {
		if alert, ok := m.addAlertLocked(t, s, msg, now); ok {
			raised = append(raised, alert)
		}
	}

	absDrift := math.Abs(metrics.DriftRate)
	switch {
	case absDrift > m.thresholds.DriftCritical:
		add(AlertDrift, SeverityHigh, fmt.Sprintf("Critical drift detected: %.1fms", absDrift*1000))
	case absDrift > m.thresholds.DriftWarning:
		add(AlertDrift, SeverityMedium, fmt.Sprintf("Drift warning: %.1fms", absDrift*1000))
	}

	switch {
	case metrics.QualityScore < m.thresholds.QualityCritical:
		add(AlertQuality, SeverityHigh, fmt.Sprintf("Critical sync quality: %.0f%%", metrics.QualityScore*100))
	case metrics.QualityScore < m.thresholds.QualityWarning:
		add(AlertQuality, SeverityMedium, fmt.Sprintf("Low sync quality: %.0f%%", metrics.QualityScore*100))
	}

	if since := now.Sub(metrics.LastSyncTime); since > m.thresholds.DisconnectTimeout {
		add(AlertDisconnect, SeverityHigh, fmt.Sprintf("No sync points for %ds", int(math.Round(since.Seconds()))))
	}

	if !metrics.IsStable {
		m.consecutivePoorSamples++
		if m.consecutivePoorSamples >= m.thresholds.InstabilityCount {
			add(AlertUnstable, SeverityMedium, fmt.Sprintf("Unstable sync for %d samples", m.consecutivePoorSamples))
		}
	} else {
		m.consecutivePoorSamples = 0
	}

	return raised
}

func (m *Monitor) addAlertLocked(alertType AlertType, severity Severity, message string, now time.Time) (Alert, bool) {
	for _, a := range m.alerts {
		if a.Type == alertType && !a.Acknowledged && now.Sub(a.Timestamp) < alertDedupWindow {
			return Alert{}, false
		}
	}

	alert := Alert{
		ID:        "alert_" + uuid.NewString(),
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		Timestamp: now,
	}
	m.alerts = append(m.alerts, alert)
	if len(m.alerts) > maxAlerts {
		m.alerts = append([]Alert(nil), m.alerts[len(m.alerts)-maxAlerts:]...)
	}

	syncAlertsTotal.WithLabelValues(string(alertType), string(severity)).Inc()
	m.logger.Warn().
		Str("alert_id", alert.ID).
		Str("type", string(alertType)).
		Str("severity", string(severity)).
		Msg(message)

	return alert, true
}

func (m *Monitor) notify(handlers []AlertHandler, alerts []Alert) {
	for _, alert := range alerts {
		for _, h := range handlers {
			m.callHandler(h, alert)
		}
	}
}

func (m *Monitor) callHandler(h AlertHandler, alert Alert) {
	defer func() {
		if r := recover(); r != nil {
			m.log.LogError(fmt.Errorf("panic: %v", r), "alert handler panicked on "+alert.ID)
		}
	}()
	h(alert)
}

// OnAlert registers a handler invoked for every newly raised alert.
func (m *Monitor) OnAlert(handler AlertHandler) {
	if handler == nil {
		return
	}
	m.mu.Lock()
	m.handlers = append(m.handlers, handler)
	m.mu.Unlock()
}

// AcknowledgeAlert marks the alert with id as acknowledged.
func (m *Monitor) AcknowledgeAlert(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.alerts {
		if m.alerts[i].ID == id {
			m.alerts[i].Acknowledged = true
			syncActiveAlerts.Set(float64(m.countActiveLocked()))
			m.logger.Info().Str("alert_id", id).Str("message", m.alerts[i].Message).Msg("alert acknowledged")
			return true
		}
	}
	return false
}

// ClearAcknowledgedAlerts drops acknowledged alerts and returns how many were removed.
func (m *Monitor) ClearAcknowledgedAlerts() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.alerts[:0]
	for _, a := range m.alerts {
		if !a.Acknowledged {
			kept = append(kept, a)
		}
	}
	cleared := len(m.alerts) - len(kept)
	m.alerts = kept

	if cleared > 0 {
		m.logger.Info().Int("cleared", cleared).Msg("cleared acknowledged alerts")
	}
	return cleared
}

// GetActiveAlerts returns unacknowledged alerts, oldest first
func (m *Monitor) GetActiveAlerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := make([]Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if !a.Acknowledged {
			active = append(active, a)
		}
	}
	return active
}

// GetAllAlerts returns a copy of every retained alert
func (m *Monitor) GetAllAlerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Alert(nil), m.alerts...)
}

func (m *Monitor) countActiveLocked() int {
	n := 0
	for _, a := range m.alerts {
		if !a.Acknowledged {
			n++
		}
	}
	return n
}

// CurrentMetrics computes a fresh snapshot without recording it in the history.
func (m *Monitor) CurrentMetrics() SyncMetrics {
	status := m.source.GetSyncStatus()
	stats := m.source.GetTimingStats()

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buildMetricsLocked(status.Offset, status.AverageDrift, status.Quality, status.LastUpdate, stats.SyncPointCount)
}

// MetricsHistory returns the recorded samples, oldest first
func (m *Monitor) MetricsHistory() []SyncMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.Slice()
}

// GetSyncQualityAssessment scores the live metrics against the current thresholds.
func (m *Monitor) GetSyncQualityAssessment() Assessment {
	metrics := m.CurrentMetrics()

	m.mu.Lock()
	thresholds := m.thresholds
	m.mu.Unlock()

	return assess(metrics, thresholds, m.clock.Now())
}

// ExportAnalytics renders the diagnostics document as indented JSON.
func (m *Monitor) ExportAnalytics() ([]byte, error) {
	current := m.CurrentMetrics()

	m.mu.Lock()
	thresholds := m.thresholds
	doc := Analytics{
		ExportedAt:     m.clock.Now().UTC().Format(exportTimeFormat),
		CurrentMetrics: current,
		MetricsHistory: m.history.Slice(),
		Alerts:         append([]Alert{}, m.alerts...),
		Thresholds:     thresholds,
	}
	m.mu.Unlock()

	doc.QualityAssessment = assess(current, thresholds, m.clock.Now())

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal sync analytics: %w", err)
	}
	return data, nil
}

// UpdateThresholds merges overrides into the active thresholds. An invalid
// merge leaves the thresholds unchanged and returns them with the error.
func (m *Monitor) UpdateThresholds(overrides ThresholdOverrides) (Thresholds, error) {
	m.mu.Lock()
	old := m.thresholds
	updated := overrides.Apply(old)
	if err := updated.Validate(); err != nil {
		m.mu.Unlock()
		return old, err
	}
	m.thresholds = updated
	m.mu.Unlock()

	m.log.LogConfigurationChange("thresholds", old, updated)
	return updated, nil
}

// SetThresholds replaces the active thresholds wholesale.
func (m *Monitor) SetThresholds(t Thresholds) {
	m.mu.Lock()
	old := m.thresholds
	m.thresholds = t
	m.mu.Unlock()

	m.log.LogConfigurationChange("thresholds", old, t)
}

// Thresholds returns the active thresholds
func (m *Monitor) Thresholds() Thresholds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.thresholds
}

// Reset clears metrics, history, alerts and the instability counter.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.metrics = m.initialMetrics()
	m.history.Reset()
	m.alerts = nil
	m.consecutivePoorSamples = 0
	m.mu.Unlock()

	syncActiveAlerts.Set(0)
	m.log.LogComponentReset()
}

// Dispose stops monitoring and resets all state
func (m *Monitor) Dispose() {
	m.StopMonitoring()
	m.Reset()
	m.log.LogComponentDisposed()
}
