package health

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rheome-dev/Phonoglyph-sub001/internal/timesync"
)

// SyncSource is the estimator surface the monitor samples.
type SyncSource interface {
	GetSyncStatus() timesync.Status
	GetTimingStats() timesync.TimingStats
}

// AlertType classifies a sync alert
type AlertType string

const (
	AlertDrift      AlertType = "drift"
	AlertQuality    AlertType = "quality"
	AlertDisconnect AlertType = "disconnect"
	AlertUnstable   AlertType = "unstable"
)

// Severity ranks an alert
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Alert is a deduplicated notification raised by a sampling tick.
type Alert struct {
	ID           string    `json:"id"`
	Type         AlertType `json:"type"`
	Severity     Severity  `json:"severity"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
}

// AlertHandler is notified for every newly raised alert.
type AlertHandler func(Alert)

// SyncMetrics is one sampled snapshot of synchronization health.
type SyncMetrics struct {
	AverageOffset  float64   `json:"averageOffset"`
	OffsetStdDev   float64   `json:"offsetStdDev"`
	DriftRate      float64   `json:"driftRate"`
	SyncPointCount int       `json:"syncPointCount"`
	QualityScore   float64   `json:"qualityScore"`
	LastSyncTime   time.Time `json:"lastSyncTime"`
	IsStable       bool      `json:"isStable"`
}

// ErrInvalidThresholds is returned for threshold sets that cannot alert sensibly.
var ErrInvalidThresholds = errors.New("invalid health thresholds")

// Thresholds controls when alerts fire and how the assessment is penalized.
// Drift values are in seconds. In JSON the disconnect timeout is milliseconds.
type Thresholds struct {
	DriftWarning      float64       `yaml:"drift_warning"`
	DriftCritical     float64       `yaml:"drift_critical"`
	QualityWarning    float64       `yaml:"quality_warning"`
	QualityCritical   float64       `yaml:"quality_critical"`
	DisconnectTimeout time.Duration `yaml:"disconnect_timeout"`
	InstabilityCount  int           `yaml:"instability_count"`
}

// DefaultThresholds returns the standard alerting thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		DriftWarning:      0.010,
		DriftCritical:     0.050,
		QualityWarning:    0.6,
		QualityCritical:   0.3,
		DisconnectTimeout: 10 * time.Second,
		InstabilityCount:  5,
	}
}

// Validate checks that warning levels precede critical ones and that the
// timeout and instability count are positive.
func (t Thresholds) Validate() error {
	switch {
	case !(t.DriftWarning > 0) || !(t.DriftCritical >= t.DriftWarning):
		return fmt.Errorf("%w: drift warning %v critical %v", ErrInvalidThresholds, t.DriftWarning, t.DriftCritical)
	case !(t.QualityCritical >= 0) || !(t.QualityWarning <= 1) || !(t.QualityCritical <= t.QualityWarning):
		return fmt.Errorf("%w: quality warning %v critical %v", ErrInvalidThresholds, t.QualityWarning, t.QualityCritical)
	case t.DisconnectTimeout <= 0:
		return fmt.Errorf("%w: disconnect timeout %s", ErrInvalidThresholds, t.DisconnectTimeout)
	case t.InstabilityCount < 1:
		return fmt.Errorf("%w: instability count %d", ErrInvalidThresholds, t.InstabilityCount)
	}
	return nil
}

type thresholdsJSON struct {
	DriftWarning      float64 `json:"driftWarning"`
	DriftCritical     float64 `json:"driftCritical"`
	QualityWarning    float64 `json:"qualityWarning"`
	QualityCritical   float64 `json:"qualityCritical"`
	DisconnectTimeout float64 `json:"disconnectTimeout"` // ms
	InstabilityCount  int     `json:"instabilityCount"`
}

func (t Thresholds) MarshalJSON() ([]byte, error) {
	return json.Marshal(thresholdsJSON{
		DriftWarning:      t.DriftWarning,
		DriftCritical:     t.DriftCritical,
		QualityWarning:    t.QualityWarning,
		QualityCritical:   t.QualityCritical,
		DisconnectTimeout: durationMs(t.DisconnectTimeout),
		InstabilityCount:  t.InstabilityCount,
	})
}

// UnmarshalJSON keeps the current value of any field missing from data.
func (t *Thresholds) UnmarshalJSON(data []byte) error {
	w := thresholdsJSON{
		DriftWarning:      t.DriftWarning,
		DriftCritical:     t.DriftCritical,
		QualityWarning:    t.QualityWarning,
		QualityCritical:   t.QualityCritical,
		DisconnectTimeout: durationMs(t.DisconnectTimeout),
		InstabilityCount:  t.InstabilityCount,
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*t = Thresholds{
		DriftWarning:      w.DriftWarning,
		DriftCritical:     w.DriftCritical,
		QualityWarning:    w.QualityWarning,
		QualityCritical:   w.QualityCritical,
		DisconnectTimeout: msDuration(w.DisconnectTimeout),
		InstabilityCount:  w.InstabilityCount,
	}
	return nil
}

// ThresholdOverrides holds a partial threshold update; nil fields are left unchanged.
type ThresholdOverrides struct {
	DriftWarning      *float64
	DriftCritical     *float64
	QualityWarning    *float64
	QualityCritical   *float64
	DisconnectTimeout *time.Duration
	InstabilityCount  *int
}

type thresholdOverridesJSON struct {
	DriftWarning      *float64 `json:"driftWarning,omitempty"`
	DriftCritical     *float64 `json:"driftCritical,omitempty"`
	QualityWarning    *float64 `json:"qualityWarning,omitempty"`
	QualityCritical   *float64 `json:"qualityCritical,omitempty"`
	DisconnectTimeout *float64 `json:"disconnectTimeout,omitempty"` // ms
	InstabilityCount  *int     `json:"instabilityCount,omitempty"`
}

func (o ThresholdOverrides) MarshalJSON() ([]byte, error) {
	w := thresholdOverridesJSON{
		DriftWarning:     o.DriftWarning,
		DriftCritical:    o.DriftCritical,
		QualityWarning:   o.QualityWarning,
		QualityCritical:  o.QualityCritical,
		InstabilityCount: o.InstabilityCount,
	}
	if o.DisconnectTimeout != nil {
		ms := durationMs(*o.DisconnectTimeout)
		w.DisconnectTimeout = &ms
	}
	return json.Marshal(w)
}

func (o *ThresholdOverrides) UnmarshalJSON(data []byte) error {
	var w thresholdOverridesJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*o = ThresholdOverrides{
		DriftWarning:     w.DriftWarning,
		DriftCritical:    w.DriftCritical,
		QualityWarning:   w.QualityWarning,
		QualityCritical:  w.QualityCritical,
		InstabilityCount: w.InstabilityCount,
	}
	if w.DisconnectTimeout != nil {
		d := msDuration(*w.DisconnectTimeout)
		o.DisconnectTimeout = &d
	}
	return nil
}

// Apply merges the overrides into t.
func (o ThresholdOverrides) Apply(t Thresholds) Thresholds {
	if o.DriftWarning != nil {
		t.DriftWarning = *o.DriftWarning
	}
	if o.DriftCritical != nil {
		t.DriftCritical = *o.DriftCritical
	}
	if o.QualityWarning != nil {
		t.QualityWarning = *o.QualityWarning
	}
	if o.QualityCritical != nil {
		t.QualityCritical = *o.QualityCritical
	}
	if o.DisconnectTimeout != nil {
		t.DisconnectTimeout = *o.DisconnectTimeout
	}
	if o.InstabilityCount != nil {
		t.InstabilityCount = *o.InstabilityCount
	}
	return t
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func msDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

// Rating is the ordinal outcome of a quality assessment
type Rating string

const (
	RatingExcellent Rating = "excellent"
	RatingGood      Rating = "good"
	RatingFair      Rating = "fair"
	RatingPoor      Rating = "poor"
	RatingCritical  Rating = "critical"
)

// Assessment is a composite judgement of sync quality.
type Assessment struct {
	Overall         Rating   `json:"overall"`
	Score           float64  `json:"score"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
}

// Analytics is the exported diagnostics document.
type Analytics struct {
	ExportedAt        string        `json:"exportedAt"`
	CurrentMetrics    SyncMetrics   `json:"currentMetrics"`
	MetricsHistory    []SyncMetrics `json:"metricsHistory"`
	Alerts            []Alert       `json:"alerts"`
	QualityAssessment Assessment    `json:"qualityAssessment"`
	Thresholds        Thresholds    `json:"thresholds"`
}
