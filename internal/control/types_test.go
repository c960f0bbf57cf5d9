package control

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestControlSourceConfigValidate(t *testing.T) {
	audio := &AudioMapping{Feature: FeatureRMS, Scaling: 1}
	midi := noteMapping(60, 1, nil)

	tests := []struct {
		name    string
		config  ControlSourceConfig
		wantErr error
	}{
		{"ValidMIDI", ControlSourceConfig{Source: SourceMIDI, MIDIMapping: midi}, nil},
		{"ValidAudio", ControlSourceConfig{Source: SourceAudio, AudioMapping: audio}, nil},
		{"ValidHybridOneSide", ControlSourceConfig{Source: SourceHybrid, AudioMapping: audio}, nil},
		{"UnknownSource", ControlSourceConfig{Source: "osc"}, ErrInvalidSource},
		{"NegativeWeight", ControlSourceConfig{Source: SourceMIDI, MIDIWeight: -1, MIDIMapping: midi}, ErrInvalidWeight},
		{"InfiniteWeight", ControlSourceConfig{Source: SourceHybrid, AudioWeight: math.Inf(1), AudioMapping: audio}, ErrInvalidWeight},
		{"MIDIWithoutMapping", ControlSourceConfig{Source: SourceMIDI}, ErrMissingMapping},
		{"AudioWithoutMapping", ControlSourceConfig{Source: SourceAudio, MIDIMapping: midi}, ErrMissingMapping},
		{"HybridWithoutMappings", ControlSourceConfig{Source: SourceHybrid}, ErrMissingMapping},
		{"MIDIChannelOutOfRange", ControlSourceConfig{Source: SourceMIDI, MIDIMapping: &MIDIMapping{Channel: 16, Note: Uint8(1)}}, ErrInvalidMIDIMapping},
		{"MIDINoTarget", ControlSourceConfig{Source: SourceMIDI, MIDIMapping: &MIDIMapping{Scaling: 1}}, ErrInvalidMIDIMapping},
		{"MIDINoteOutOfRange", ControlSourceConfig{Source: SourceMIDI, MIDIMapping: noteMapping(128, 1, nil)}, ErrInvalidMIDIMapping},
		{"MIDIScalingNaN", ControlSourceConfig{Source: SourceMIDI, MIDIMapping: noteMapping(60, math.NaN(), nil)}, ErrInvalidScaling},
		{"MIDIRangeInfinite", ControlSourceConfig{Source: SourceMIDI, MIDIMapping: noteMapping(60, 1, RangeOf(0, math.Inf(-1)))}, ErrInvalidRange},
		{"UnknownFeature", ControlSourceConfig{Source: SourceAudio, AudioMapping: &AudioMapping{Feature: "chroma"}}, ErrUnknownFeature},
		{"SmoothingAboveOne", ControlSourceConfig{Source: SourceAudio, AudioMapping: &AudioMapping{Feature: FeatureRMS, Smoothing: 1.5}}, nil},
		{"SmoothingNegative", ControlSourceConfig{Source: SourceAudio, AudioMapping: &AudioMapping{Feature: FeatureRMS, Smoothing: -0.1}}, ErrInvalidSmoothing},
		{"SmoothingInfinite", ControlSourceConfig{Source: SourceAudio, AudioMapping: &AudioMapping{Feature: FeatureRMS, Smoothing: math.Inf(1)}}, ErrInvalidSmoothing},
		{"BlankStem", ControlSourceConfig{Source: SourceAudio, AudioMapping: &AudioMapping{Stem: "  ", Feature: FeatureRMS}}, ErrInvalidAudioMapping},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStemFeatureAccessors(t *testing.T) {
	stem := StemAnalysis{
		StemType: "drums",
		Features: StemFeatures{
			RMS:              0.4,
			SpectralCentroid: 1200,
			MFCC:             []float64{3.5, 1, 2},
			Loudness:         Loudness{Total: 12, Specific: []float64{1, 2}},
		},
		Derived: StemDerived{Intensity: 0.9, TimbreProfile: nil},
	}

	tests := []struct {
		feature Feature
		value   float64
		ok      bool
	}{
		{FeatureRMS, 0.4, true},
		{FeatureSpectralCentroid, 1200, true},
		{FeatureMFCC, 3.5, true},
		{FeatureLoudness, 12, true},
		{FeatureIntensity, 0.9, true},
		{FeatureTimbreProfile, 0, true},
		{FeatureBass, 0, false},
		{Feature("chroma"), 0, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.feature), func(t *testing.T) {
			v, ok := stem.Feature(tt.feature)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.value, v)
		})
	}
}

func TestAudioSnapshotFeature(t *testing.T) {
	snap := AudioSnapshot{Volume: 0.7, Bass: 0.1, Mid: 0.2, Treble: 0.3}

	v, ok := snap.Feature(FeatureRMS)
	assert.True(t, ok)
	assert.Equal(t, 0.7, v)

	v, ok = snap.Feature(FeatureTreble)
	assert.True(t, ok)
	assert.Equal(t, 0.3, v)

	_, ok = snap.Feature(FeatureZCR)
	assert.False(t, ok)
}

func TestParseFeature(t *testing.T) {
	f, err := ParseFeature("spectralRolloff")
	require.NoError(t, err)
	assert.Equal(t, FeatureSpectralRolloff, f)

	_, err = ParseFeature("nope")
	assert.ErrorIs(t, err, ErrUnknownFeature)
}

func TestMIDISnapshotHelpers(t *testing.T) {
	snap := MIDISnapshot{
		ActiveNotes: []ActiveNote{{Note: 60, Velocity: 80}, {Note: 62, Velocity: 110, Channel: Uint8(3)}, {Note: 64, Velocity: 110}},
		Controllers: []ControllerValue{{Channel: 1, Controller: 7, Value: 99}},
	}

	strongest, ok := snap.StrongestNote()
	require.True(t, ok)
	assert.Equal(t, uint8(62), strongest.Note, "ties keep the earliest note")

	v, ok := snap.ControllerValue(1, 7)
	assert.True(t, ok)
	assert.Equal(t, uint8(99), v)
	_, ok = snap.ControllerValue(0, 7)
	assert.False(t, ok)

	vel, ok := snap.NoteVelocity(62)
	assert.True(t, ok)
	assert.Equal(t, uint8(110), vel)

	_, ok = MIDISnapshot{}.StrongestNote()
	assert.False(t, ok)
}

func TestControlSourceConfigEncoding(t *testing.T) {
	config := ControlSourceConfig{
		Source:       SourceHybrid,
		MIDIWeight:   0.25,
		AudioWeight:  0.75,
		MIDIMapping:  ccMapping(1, 74, 1, RangeOf(0.5, 2)),
		AudioMapping: &AudioMapping{Stem: "bass", Feature: FeatureIntensity, Smoothing: 0.3, Scaling: 1},
	}

	data, err := json.Marshal(config)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"range":[0.5,2]`)
	for _, key := range []string{`"midiWeight"`, `"audioWeight"`, `"midiMapping"`, `"audioMapping"`} {
		assert.Contains(t, string(data), key)
	}
	assert.NotContains(t, string(data), "_")

	var fromJSON ControlSourceConfig
	require.NoError(t, json.Unmarshal(data, &fromJSON))
	assert.Equal(t, config, fromJSON)

	out, err := yaml.Marshal(config)
	require.NoError(t, err)

	var fromYAML ControlSourceConfig
	require.NoError(t, yaml.Unmarshal(out, &fromYAML))
	assert.Equal(t, config, fromYAML)
}
