package timesync

import (
	"math"
	"sync"
	"time"

	"github.com/rheome-dev/Phonoglyph-sub001/internal/clock"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/logging"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/ringbuf"
	"github.com/rs/zerolog"
)

// Estimator reconciles the symbolic clock with the media clock from weighted,
// confidence-decayed sync points.
type Estimator struct {
	mu     sync.Mutex
	clock  clock.Clock
	logger zerolog.Logger
	log    *logging.ComponentLogger

	points *ringbuf.Ring[SyncPoint]
	drift  *ringbuf.Ring[float64]

	offset         float64
	quality        float64
	consecutiveBad int
	tempo          float64

	baseTimestamp time.Time
	lastUpdate    time.Time
}

// NewEstimator creates an estimator whose media clock starts at clk.Now().
func NewEstimator(clk clock.Clock, logger zerolog.Logger) *Estimator {
	if clk == nil {
		clk = clock.System()
	}
	now := clk.Now()

	log := logging.NewComponentLogger(logger, "sync-estimator")
	e := &Estimator{
		clock:         clk,
		logger:        log.GetLogger(),
		log:           log,
		points:        ringbuf.New[SyncPoint](maxSyncPoints),
		drift:         ringbuf.New[float64](maxDriftHistory),
		quality:       1.0,
		tempo:         DefaultTempo,
		baseTimestamp: now,
		lastUpdate:    now,
	}
	e.logger.Debug().Msg("sync estimator initialized")
	return e
}

// AddSyncPoint records an observation and refreshes the offset estimate.
// Points below the minimum confidence are dropped and false is returned.
func (e *Estimator) AddSyncPoint(point SyncPoint) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addSyncPointLocked(point)
}

func (e *Estimator) addSyncPointLocked(point SyncPoint) bool {
	if math.IsNaN(point.Confidence) || point.Confidence < minConfidence || math.IsNaN(point.DomainBTime) || math.IsInf(point.DomainBTime, 0) {
		e.log.LogValidationRejected(ErrLowConfidence, "sync_point", point.Confidence)
		syncPointsTotal.WithLabelValues("rejected").Inc()
		return false
	}
	if point.Confidence > 1 {
		point.Confidence = 1
	}
	if point.Timestamp.IsZero() {
		point.Timestamp = e.clock.Now()
	}

	e.points.Push(point)
	e.computeOffsetLocked()
	e.lastUpdate = e.clock.Now()
	syncPointsTotal.WithLabelValues("accepted").Inc()

	e.logger.Debug().
		Int64("domain_a_ticks", point.DomainATime).
		Float64("domain_b_seconds", point.DomainBTime).
		Float64("confidence", point.Confidence).
		Msg("sync point added")
	return true
}

// ComputeOffset recomputes the smoothed offset from the stored sync points.
// With fewer than two points the current estimate is returned unchanged.
func (e *Estimator) ComputeOffset() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.computeOffsetLocked()
}

func (e *Estimator) computeOffsetLocked() float64 {
	n := e.points.Len()
	if n < 2 {
		return e.offset
	}

	var totalWeight, weightedOffset float64
	e.points.Do(func(i int, p SyncPoint) {
		age := n - 1 - i
		weight := p.Confidence * math.Pow(recencyDecay, float64(age))
		raw := p.DomainBTime - ticksToSeconds(float64(p.DomainATime), e.tempo)
		weightedOffset += raw * weight
		totalWeight += weight
	})

	if totalWeight <= 0 {
		return e.offset
	}

	// drift is the raw target's distance from the smoothed offset before this update
	target := weightedOffset / totalWeight
	drift := math.Abs(target - e.offset)
	e.offset = e.offset*(1-smoothingFactor) + target*smoothingFactor

	e.drift.Push(drift)
	e.updateQualityLocked(drift)

	syncOffsetSeconds.Set(e.offset)
	syncQuality.Set(e.quality)
	return e.offset
}

func (e *Estimator) updateQualityLocked(drift float64) {
	ratio := math.Min(drift/targetDrift, maxDriftRatio)

	if ratio > badDriftRatio {
		e.consecutiveBad++
		e.quality *= qualityPenalty
	} else {
		e.consecutiveBad = 0
		e.quality = math.Min(e.quality*qualityReward, 1.0)
	}

	if e.consecutiveBad >= maxBadSync {
		e.log.LogThresholdWarning("consecutive_bad_sync", e.consecutiveBad, maxBadSync, "sync quality degraded")
	}
}

// GetAdjustedTime expresses ts in both domains relative to the base timestamp.
func (e *Estimator) GetAdjustedTime(ts time.Time) AdjustedTime {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.adjustedTimeLocked(ts)
}

func (e *Estimator) adjustedTimeLocked(ts time.Time) AdjustedTime {
	b := clock.Seconds(ts.Sub(e.baseTimestamp))
	return AdjustedTime{
		DomainBTime:           b,
		DomainATimeEquivalent: b - e.offset,
	}
}

// DomainATimeToDomainBTime converts a tick position to media seconds.
func (e *Estimator) DomainATimeToDomainBTime(tick int64, tempo float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ticksToSeconds(float64(tick), e.effectiveTempo(tempo)) + e.offset
}

// DomainBTimeToDomainATime converts media seconds to the nearest tick.
func (e *Estimator) DomainBTimeToDomainATime(seconds float64, tempo float64) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.secondsToTicksLocked(seconds, tempo)
}

func (e *Estimator) secondsToTicksLocked(seconds, tempo float64) int64 {
	tickSeconds := ticksToSeconds(1, e.effectiveTempo(tempo))
	return int64(math.Round((seconds - e.offset) / tickSeconds))
}

func (e *Estimator) effectiveTempo(tempo float64) float64 {
	if tempo > 0 && !math.IsInf(tempo, 0) {
		return tempo
	}
	return e.tempo
}

// AutoDetectSyncPoint adds a sync point from a strong musical event.
// Events weaker than 0.5 are ignored.
func (e *Estimator) AutoDetectSyncPoint(domainATime int64, domainBTime float64, eventStrength float64) bool {
	if math.IsNaN(eventStrength) || eventStrength < autoDetectMinimum {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addSyncPointLocked(SyncPoint{
		Timestamp:   e.clock.Now(),
		DomainATime: domainATime,
		DomainBTime: domainBTime,
		Confidence:  math.Min(eventStrength*autoConfidenceGain, autoConfidenceCap),
	})
}

// AdjustOffsetManually nudges the offset and anchors the correction with a
// high-confidence sync point at the current time.
func (e *Estimator) AdjustOffsetManually(deltaSeconds float64) {
	if math.IsNaN(deltaSeconds) || math.IsInf(deltaSeconds, 0) {
		e.log.LogValidationRejected(ErrInvalidAdjustment, "offset_adjustment", deltaSeconds)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.offset += deltaSeconds
	e.logger.Info().
		Float64("delta_seconds", deltaSeconds).
		Float64("offset", e.offset).
		Msg("manual sync adjustment")

	now := e.clock.Now()
	adjusted := e.adjustedTimeLocked(now)
	e.addSyncPointLocked(SyncPoint{
		Timestamp:   now,
		DomainATime: e.secondsToTicksLocked(adjusted.DomainBTime, 0),
		DomainBTime: adjusted.DomainBTime,
		Confidence:  manualConfidence,
	})
}

// SetReferenceTempo sets the tempo used to place stored tick positions in seconds.
func (e *Estimator) SetReferenceTempo(bpm float64) {
	if bpm <= 0 || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tempo != bpm {
		e.log.LogConfigurationChange("reference_tempo", e.tempo, bpm)
		e.tempo = bpm
	}
}

// GetSyncStatus reports whether the clocks are currently considered in sync.
func (e *Estimator) GetSyncStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	return Status{
		IsSynced:     e.points.Len() >= 2 && now.Sub(e.lastUpdate) < syncedWindow,
		Offset:       e.offset,
		AverageDrift: mean(e.drift.Slice()),
		Quality:      e.quality,
		LastUpdate:   e.lastUpdate,
	}
}

// GetTimingStats returns estimator statistics for debugging.
func (e *Estimator) GetTimingStats() TimingStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	history := e.drift.Slice()
	return TimingStats{
		SyncPointCount: e.points.Len(),
		AverageDrift:   mean(history),
		DriftStdDev:    stdDev(history),
		Quality:        e.quality,
		Offset:         e.offset,
		ReferenceTempo: e.tempo,
	}
}

// SyncPoints returns the stored points, oldest first.
func (e *Estimator) SyncPoints() []SyncPoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.points.Slice()
}

// Reset clears all observations and restarts the media clock at now.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	e.points.Reset()
	e.drift.Reset()
	e.offset = 0
	e.quality = 1.0
	e.consecutiveBad = 0
	e.baseTimestamp = now
	e.lastUpdate = now

	syncOffsetSeconds.Set(0)
	syncQuality.Set(1)
	e.log.LogComponentReset()
}

func ticksToSeconds(ticks, tempo float64) float64 {
	quarterSeconds := 60 / tempo
	return ticks * quarterSeconds / TicksPerQuarter
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	variance := 0.0
	for _, v := range values {
		variance += (v - m) * (v - m)
	}
	return math.Sqrt(variance / float64(len(values)))
}
