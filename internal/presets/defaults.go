package presets

import "github.com/rheome-dev/Phonoglyph-sub001/internal/control"

// Defaults returns the built-in presets. Each call returns fresh values.
func Defaults() []Preset {
	return []Preset{
		{
			Name:        "Audio Reactive",
			Description: "Pure audio-reactive visualization based on RMS and spectral features",
			Configuration: Configuration{
				Type:        control.SourceAudio,
				AudioWeight: 1,
				Parameters: map[control.Parameter]control.ControlSourceConfig{
					control.GlobalScale: {
						Source:       control.SourceAudio,
						AudioMapping: audioMapping(control.FeatureRMS, 2, 0.5, 3, 0.1),
					},
					control.ColorIntensity: {
						Source:       control.SourceAudio,
						AudioMapping: audioMapping(control.FeatureSpectralCentroid, 1.5, 0.5, 2, 0.2),
					},
				},
			},
		},
		{
			Name:        "MIDI Controlled",
			Description: "Manual MIDI control using modulation wheel and breath controller",
			Configuration: Configuration{
				Type:       control.SourceMIDI,
				MIDIWeight: 1,
				Parameters: map[control.Parameter]control.ControlSourceConfig{
					control.GlobalScale: {
						Source:      control.SourceMIDI,
						MIDIMapping: ccMapping(ccModWheel, 2, 0.1, 3),
					},
					control.RotationSpeed: {
						Source:      control.SourceMIDI,
						MIDIMapping: ccMapping(ccBreath, 1, -2, 2),
					},
				},
			},
		},
		{
			Name:        "Hybrid Performance",
			Description: "Balanced hybrid control mixing MIDI precision with audio responsiveness",
			Configuration: Configuration{
				Type:        control.SourceHybrid,
				MIDIWeight:  0.6,
				AudioWeight: 0.4,
				Parameters: map[control.Parameter]control.ControlSourceConfig{
					control.GlobalScale: {
						Source:       control.SourceHybrid,
						MIDIWeight:   0.7,
						AudioWeight:  0.3,
						MIDIMapping:  ccMapping(ccModWheel, 1.5, 0.5, 2.5),
						AudioMapping: audioMapping(control.FeatureRMS, 1, 0.8, 1.2, 0.15),
					},
					control.ColorIntensity: {
						Source:       control.SourceHybrid,
						MIDIWeight:   0.3,
						AudioWeight:  0.7,
						MIDIMapping:  ccMapping(3, 1, 0.5, 1.5),
						AudioMapping: audioMapping(control.FeatureSpectralCentroid, 1.2, 0.7, 1.8, 0.25),
					},
				},
			},
		},
	}
}

const (
	ccModWheel = 1
	ccBreath   = 2
)

func ccMapping(cc uint8, scaling, lo, hi float64) *control.MIDIMapping {
	return &control.MIDIMapping{
		Channel:    0,
		Controller: control.Uint8(cc),
		Scaling:    scaling,
		Range:      control.RangeOf(lo, hi),
	}
}

func audioMapping(feature control.Feature, scaling, lo, hi, smoothing float64) *control.AudioMapping {
	return &control.AudioMapping{
		Feature:   feature,
		Scaling:   scaling,
		Range:     control.RangeOf(lo, hi),
		Smoothing: smoothing,
	}
}
