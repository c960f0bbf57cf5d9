package health

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncOffsetStdDevSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "phonoglyph_sync_offset_stddev_seconds",
			Help: "Standard deviation of the sampled offset history in seconds",
		},
	)

	syncDriftRateSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "phonoglyph_sync_drift_rate_seconds",
			Help: "Average offset drift per estimator update in seconds",
		},
	)

	syncStable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "phonoglyph_sync_stable",
			Help: "Whether synchronization is currently stable (1=stable, 0=unstable)",
		},
	)

	syncHealthScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "phonoglyph_sync_health_score",
			Help: "Composite sync quality assessment score (0.0-1.0)",
		},
	)

	syncAlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phonoglyph_sync_alerts_total",
			Help: "Total number of sync alerts raised",
		},
		[]string{"type", "severity"},
	)

	syncActiveAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "phonoglyph_sync_active_alerts",
			Help: "Number of unacknowledged sync alerts",
		},
	)
)

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
