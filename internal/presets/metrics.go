package presets

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	presetsStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "phonoglyph_presets_stored",
			Help: "Number of presets held by the manager",
		},
	)

	presetStoreErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "phonoglyph_preset_store_errors_total",
			Help: "Failed writes to the preset store",
		},
	)

	presetAppliesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "phonoglyph_preset_applies_total",
			Help: "Presets applied to the controller",
		},
	)
)
