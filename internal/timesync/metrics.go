package timesync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncPointsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phonoglyph_sync_points_total",
			Help: "Sync points offered to the estimator, by result",
		},
		[]string{"result"},
	)

	syncOffsetSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "phonoglyph_sync_offset_seconds",
			Help: "Smoothed offset between the symbolic and media clocks in seconds",
		},
	)

	syncQuality = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "phonoglyph_sync_quality",
			Help: "Estimator sync quality score (0.0-1.0)",
		},
	)
)
