package control

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	controlDispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phonoglyph_control_dispatches_total",
			Help: "Parameter values dispatched to the sink",
		},
		[]string{"parameter"},
	)

	controlSuppressedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "phonoglyph_control_suppressed_total",
			Help: "Parameter values suppressed because they matched the cached value",
		},
	)

	controlRejectedConfigsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "phonoglyph_control_rejected_configs_total",
			Help: "Control source configurations rejected by validation",
		},
	)

	controlUpdateSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "phonoglyph_control_update_seconds",
			Help:    "Time spent evaluating and dispatching one visual update",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		},
	)

	controlActiveSources = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "phonoglyph_control_active_sources",
			Help: "Number of parameters with a configured control source",
		},
	)

	controlAutoSyncPointsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phonoglyph_control_auto_sync_points_total",
			Help: "Auto-detected sync points forwarded to the estimator, by origin",
		},
		[]string{"origin"},
	)
)
