package timesync

import "time"

// TicksPerQuarter is the symbolic-clock resolution used for all tick conversions.
const TicksPerQuarter = 480

const (
	maxSyncPoints      = 10
	maxDriftHistory    = 50
	minConfidence      = 0.1
	smoothingFactor    = 0.1
	recencyDecay       = 0.8
	targetDrift        = 0.005 // seconds
	maxDriftRatio      = 2.0
	badDriftRatio      = 1.5
	qualityPenalty     = 0.9
	qualityReward      = 1.1
	maxBadSync         = 5
	syncedWindow       = 5 * time.Second
	autoDetectMinimum  = 0.5
	autoConfidenceGain = 0.8
	autoConfidenceCap  = 0.9
	manualConfidence   = 0.95

	// DefaultTempo is the reference tempo until a MIDI source reports one.
	DefaultTempo = 120.0
)

// SyncPoint pairs a symbolic-clock position with a media-clock position.
type SyncPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	DomainATime int64     `json:"domainATime"` // ticks
	DomainBTime float64   `json:"domainBTime"` // seconds
	Confidence  float64   `json:"confidence"`
}

// AdjustedTime expresses a wall-clock instant in both domains, in seconds.
type AdjustedTime struct {
	DomainBTime           float64 `json:"domainBTime"`
	DomainATimeEquivalent float64 `json:"domainATimeEquivalent"`
}

// Status summarizes synchronization health.
type Status struct {
	IsSynced     bool      `json:"isSynced"`
	Offset       float64   `json:"offset"`
	AverageDrift float64   `json:"averageDrift"`
	Quality      float64   `json:"quality"`
	LastUpdate   time.Time `json:"lastUpdate"`
}

// TimingStats exposes estimator internals for diagnostics.
type TimingStats struct {
	SyncPointCount int     `json:"syncPointCount"`
	AverageDrift   float64 `json:"averageDrift"`
	DriftStdDev    float64 `json:"driftStdDev"`
	Quality        float64 `json:"quality"`
	Offset         float64 `json:"offset"`
	ReferenceTempo float64 `json:"referenceTempo"`
}
