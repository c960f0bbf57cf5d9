package control

import "fmt"

// Feature is a closed set of audio feature keys a mapping can read.
type Feature string

// Spectral features reported per stem
const (
	FeatureRMS                 Feature = "rms"
	FeatureZCR                 Feature = "zcr"
	FeatureSpectralCentroid    Feature = "spectralCentroid"
	FeatureSpectralRolloff     Feature = "spectralRolloff"
	FeatureSpectralFlatness    Feature = "spectralFlatness"
	FeatureSpectralSpread      Feature = "spectralSpread"
	FeatureMFCC                Feature = "mfcc"
	FeatureLoudness            Feature = "loudness"
	FeaturePerceptualSpread    Feature = "perceptualSpread"
	FeaturePerceptualSharpness Feature = "perceptualSharpness"
)

// Derived stem features
const (
	FeatureIntensity        Feature = "intensity"
	FeatureRhythmicActivity Feature = "rhythmicActivity"
	FeatureTonalContent     Feature = "tonalContent"
	FeatureTimbreProfile    Feature = "timbreProfile"
)

// Band features of the general audio snapshot
const (
	FeatureVolume Feature = "volume"
	FeatureBass   Feature = "bass"
	FeatureMid    Feature = "mid"
	FeatureTreble Feature = "treble"
)

var knownFeatures = map[Feature]struct{}{
	FeatureRMS: {}, FeatureZCR: {}, FeatureSpectralCentroid: {}, FeatureSpectralRolloff: {},
	FeatureSpectralFlatness: {}, FeatureSpectralSpread: {}, FeatureMFCC: {}, FeatureLoudness: {},
	FeaturePerceptualSpread: {}, FeaturePerceptualSharpness: {},
	FeatureIntensity: {}, FeatureRhythmicActivity: {}, FeatureTonalContent: {}, FeatureTimbreProfile: {},
	FeatureVolume: {}, FeatureBass: {}, FeatureMid: {}, FeatureTreble: {},
}

// IsValid reports whether f is a known feature key
func (f Feature) IsValid() bool {
	_, ok := knownFeatures[f]
	return ok
}

// ParseFeature converts s into a Feature.
func ParseFeature(s string) (Feature, error) {
	f := Feature(s)
	if !f.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownFeature, s)
	}
	return f, nil
}

// Loudness carries total and per-band specific loudness
type Loudness struct {
	Total    float64   `json:"total"`
	Specific []float64 `json:"specific,omitempty"`
}

// StemFeatures are spectral features extracted from one stem.
type StemFeatures struct {
	RMS                 float64   `json:"rms"`
	ZCR                 float64   `json:"zcr"`
	SpectralCentroid    float64   `json:"spectralCentroid"`
	SpectralRolloff     float64   `json:"spectralRolloff"`
	SpectralFlatness    float64   `json:"spectralFlatness"`
	SpectralSpread      float64   `json:"spectralSpread"`
	MFCC                []float64 `json:"mfcc,omitempty"`
	Loudness            Loudness  `json:"loudness"`
	PerceptualSpread    float64   `json:"perceptualSpread"`
	PerceptualSharpness float64   `json:"perceptualSharpness"`
}

// StemDerived are higher level descriptors computed from StemFeatures.
type StemDerived struct {
	Intensity        float64   `json:"intensity"`
	RhythmicActivity float64   `json:"rhythmicActivity"`
	TonalContent     float64   `json:"tonalContent"`
	TimbreProfile    []float64 `json:"timbreProfile,omitempty"`
}

// StemAnalysis is one stem's feature frame. Timestamp is media time in seconds.
type StemAnalysis struct {
	StemType  string       `json:"stemType"`
	Timestamp float64      `json:"timestamp"`
	Features  StemFeatures `json:"features"`
	Derived   StemDerived  `json:"derived"`
}

// Feature returns the value of f for this stem. Array features yield their
// first element (0 when empty); loudness yields its total. Band features of
// the general snapshot are absent.
func (s StemAnalysis) Feature(f Feature) (float64, bool) {
	switch f {
	case FeatureRMS:
		return s.Features.RMS, true
	case FeatureZCR:
		return s.Features.ZCR, true
	case FeatureSpectralCentroid:
		return s.Features.SpectralCentroid, true
	case FeatureSpectralRolloff:
		return s.Features.SpectralRolloff, true
	case FeatureSpectralFlatness:
		return s.Features.SpectralFlatness, true
	case FeatureSpectralSpread:
		return s.Features.SpectralSpread, true
	case FeatureMFCC:
		return first(s.Features.MFCC), true
	case FeatureLoudness:
		return s.Features.Loudness.Total, true
	case FeaturePerceptualSpread:
		return s.Features.PerceptualSpread, true
	case FeaturePerceptualSharpness:
		return s.Features.PerceptualSharpness, true
	case FeatureIntensity:
		return s.Derived.Intensity, true
	case FeatureRhythmicActivity:
		return s.Derived.RhythmicActivity, true
	case FeatureTonalContent:
		return s.Derived.TonalContent, true
	case FeatureTimbreProfile:
		return first(s.Derived.TimbreProfile), true
	}
	return 0, false
}

// AudioSnapshot is the general (unseparated) audio analysis frame.
type AudioSnapshot struct {
	Volume      float64   `json:"volume"`
	Bass        float64   `json:"bass"`
	Mid         float64   `json:"mid"`
	Treble      float64   `json:"treble"`
	Frequencies []float64 `json:"frequencies,omitempty"`
	TimeData    []float64 `json:"timeData,omitempty"`
}

// Feature maps f onto the snapshot's bands. rms reads the overall volume.
func (a AudioSnapshot) Feature(f Feature) (float64, bool) {
	switch f {
	case FeatureRMS, FeatureVolume:
		return a.Volume, true
	case FeatureBass:
		return a.Bass, true
	case FeatureMid:
		return a.Mid, true
	case FeatureTreble:
		return a.Treble, true
	}
	return 0, false
}

func first(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[0]
}
