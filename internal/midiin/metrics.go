package midiin

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	midiMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phonoglyph_midi_messages_total",
			Help: "MIDI messages received, by kind",
		},
		[]string{"kind"},
	)

	midiActiveNotes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "phonoglyph_midi_active_notes",
			Help: "Notes currently sounding on the tracked input",
		},
	)
)
