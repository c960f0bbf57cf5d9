package control

import (
	"fmt"
	"math"
	"strings"
)

// Source selects where a parameter's value comes from
type Source string

const (
	SourceMIDI   Source = "midi"
	SourceAudio  Source = "audio"
	SourceHybrid Source = "hybrid"
)

// IsValid reports whether s is a known source kind
func (s Source) IsValid() bool {
	switch s {
	case SourceMIDI, SourceAudio, SourceHybrid:
		return true
	}
	return false
}

// Parameter names a renderer output
type Parameter string

const (
	GlobalScale       Parameter = "globalScale"
	RotationSpeed     Parameter = "rotationSpeed"
	ColorIntensity    Parameter = "colorIntensity"
	EmissionIntensity Parameter = "emissionIntensity"
	PositionOffset    Parameter = "positionOffset"
	HeightScale       Parameter = "heightScale"
	HueRotation       Parameter = "hueRotation"
	Brightness        Parameter = "brightness"
	Complexity        Parameter = "complexity"
	ParticleSize      Parameter = "particleSize"
	Opacity           Parameter = "opacity"
	AnimationSpeed    Parameter = "animationSpeed"
	ParticleCount     Parameter = "particleCount"
)

// Parameters lists every output the sink understands, in table order.
func Parameters() []Parameter {
	return []Parameter{
		GlobalScale, RotationSpeed, ColorIntensity, EmissionIntensity,
		PositionOffset, HeightScale, HueRotation, Brightness, Complexity,
		ParticleSize, Opacity, AnimationSpeed, ParticleCount,
	}
}

// IsKnown reports whether p has an entry in the dispatch table
func (p Parameter) IsKnown() bool {
	_, ok := dispatchTable[p]
	return ok
}

// Range remaps a scaled value v to Min + v*(Max-Min).
type Range [2]float64

func (r Range) Min() float64 { return r[0] }
func (r Range) Max() float64 { return r[1] }

func (r Range) apply(v float64) float64 {
	return r[0] + v*(r[1]-r[0])
}

// MIDIMapping reads a controller value or a note velocity. Controller wins when both are set.
type MIDIMapping struct {
	Channel    uint8   `json:"channel" yaml:"channel"`
	Controller *uint8  `json:"controller,omitempty" yaml:"controller,omitempty"`
	Note       *uint8  `json:"note,omitempty" yaml:"note,omitempty"`
	Scaling    float64 `json:"scaling" yaml:"scaling"`
	Range      *Range  `json:"range,omitempty" yaml:"range,omitempty"`
}

// AudioMapping reads a feature from a stem or the general audio snapshot.
type AudioMapping struct {
	Stem      string  `json:"stem,omitempty" yaml:"stem,omitempty"`
	Feature   Feature `json:"feature" yaml:"feature"`
	Smoothing float64 `json:"smoothing,omitempty" yaml:"smoothing,omitempty"`
	Scaling   float64 `json:"scaling" yaml:"scaling"`
	Range     *Range  `json:"range,omitempty" yaml:"range,omitempty"`
}

// ControlSourceConfig is the per-parameter control configuration.
type ControlSourceConfig struct {
	Source       Source        `json:"source" yaml:"source"`
	MIDIWeight   float64       `json:"midiWeight,omitempty" yaml:"midi_weight,omitempty"`
	AudioWeight  float64       `json:"audioWeight,omitempty" yaml:"audio_weight,omitempty"`
	MIDIMapping  *MIDIMapping  `json:"midiMapping,omitempty" yaml:"midi_mapping,omitempty"`
	AudioMapping *AudioMapping `json:"audioMapping,omitempty" yaml:"audio_mapping,omitempty"`
}

// ParameterSource pairs a parameter with its configuration
type ParameterSource struct {
	Parameter Parameter           `json:"parameter" yaml:"parameter"`
	Config    ControlSourceConfig `json:"config" yaml:"config"`
}

const (
	maxMIDIChannel = 15
	maxMIDIValue   = 127
)

// Validate checks the config for the fields its source kind requires.
func (c ControlSourceConfig) Validate() error {
	if !c.Source.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidSource, c.Source)
	}
	if !isFiniteNonNegative(c.MIDIWeight) || !isFiniteNonNegative(c.AudioWeight) {
		return fmt.Errorf("%w: midi=%v audio=%v", ErrInvalidWeight, c.MIDIWeight, c.AudioWeight)
	}

	switch c.Source {
	case SourceMIDI:
		if c.MIDIMapping == nil {
			return fmt.Errorf("%w: midi source requires a midi mapping", ErrMissingMapping)
		}
	case SourceAudio:
		if c.AudioMapping == nil {
			return fmt.Errorf("%w: audio source requires an audio mapping", ErrMissingMapping)
		}
	case SourceHybrid:
		if c.MIDIMapping == nil && c.AudioMapping == nil {
			return fmt.Errorf("%w: hybrid source requires at least one mapping", ErrMissingMapping)
		}
	}

	if c.MIDIMapping != nil {
		if err := c.MIDIMapping.validate(); err != nil {
			return err
		}
	}
	if c.AudioMapping != nil {
		if err := c.AudioMapping.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (m *MIDIMapping) validate() error {
	if m.Channel > maxMIDIChannel {
		return fmt.Errorf("%w: channel %d", ErrInvalidMIDIMapping, m.Channel)
	}
	if m.Controller == nil && m.Note == nil {
		return fmt.Errorf("%w: controller or note required", ErrInvalidMIDIMapping)
	}
	if m.Controller != nil && *m.Controller > maxMIDIValue {
		return fmt.Errorf("%w: controller %d", ErrInvalidMIDIMapping, *m.Controller)
	}
	if m.Note != nil && *m.Note > maxMIDIValue {
		return fmt.Errorf("%w: note %d", ErrInvalidMIDIMapping, *m.Note)
	}
	if !isFinite(m.Scaling) {
		return fmt.Errorf("%w: scaling %v", ErrInvalidScaling, m.Scaling)
	}
	return validateRange(m.Range)
}

func (m *AudioMapping) validate() error {
	if !m.Feature.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownFeature, m.Feature)
	}
	if !isFiniteNonNegative(m.Smoothing) {
		return fmt.Errorf("%w: %v", ErrInvalidSmoothing, m.Smoothing)
	}
	if !isFinite(m.Scaling) {
		return fmt.Errorf("%w: scaling %v", ErrInvalidScaling, m.Scaling)
	}
	if m.Stem != "" && strings.TrimSpace(m.Stem) == "" {
		return fmt.Errorf("%w: blank stem", ErrInvalidAudioMapping)
	}
	return validateRange(m.Range)
}

func validateRange(r *Range) error {
	if r == nil {
		return nil
	}
	if !isFinite(r[0]) || !isFinite(r[1]) {
		return fmt.Errorf("%w: %v", ErrInvalidRange, *r)
	}
	return nil
}

// Clone returns a deep copy.
func (c ControlSourceConfig) Clone() ControlSourceConfig {
	out := c
	if c.MIDIMapping != nil {
		m := *c.MIDIMapping
		m.Controller = cloneUint8(m.Controller)
		m.Note = cloneUint8(m.Note)
		m.Range = cloneRange(m.Range)
		out.MIDIMapping = &m
	}
	if c.AudioMapping != nil {
		a := *c.AudioMapping
		a.Range = cloneRange(a.Range)
		out.AudioMapping = &a
	}
	return out
}

func cloneUint8(p *uint8) *uint8 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneRange(r *Range) *Range {
	if r == nil {
		return nil
	}
	v := *r
	return &v
}

// Uint8 returns a pointer to v, for building mappings.
func Uint8(v uint8) *uint8 { return &v }

// RangeOf returns a pointer to the range [min, max].
func RangeOf(lo, hi float64) *Range {
	r := Range{lo, hi}
	return &r
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func isFiniteNonNegative(v float64) bool {
	return isFinite(v) && v >= 0
}
