package control

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rheome-dev/Phonoglyph-sub001/internal/clock"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/events"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/logging"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/ringbuf"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/timesync"
	"github.com/rs/zerolog"
)

const (
	midiValueMax        = 127.0
	strongNoteVelocity  = 100
	strongStemIntensity = 0.8
	smoothingScale      = 10
	maxSmoothingWindow  = 1024

	// DefaultDiagnosticInterval is the number of updates between diagnostic summaries.
	DefaultDiagnosticInterval = 300
)

// Estimator is the sync estimator surface the controller drives.
type Estimator interface {
	AutoDetectSyncPoint(domainATime int64, domainBTime float64, eventStrength float64) bool
	AdjustOffsetManually(deltaSeconds float64)
	GetAdjustedTime(ts time.Time) timesync.AdjustedTime
	GetSyncStatus() timesync.Status
	GetTimingStats() timesync.TimingStats
	SetReferenceTempo(bpm float64)
}

// Options tunes the controller
type Options struct {
	// DiagnosticInterval is how many updates pass between diagnostic summaries. Zero disables them.
	DiagnosticInterval int64 `yaml:"diagnostic_interval" json:"diagnosticInterval"`
	// CacheEpsilon suppresses values within this distance of the cached one. Zero means exact equality.
	CacheEpsilon float64 `yaml:"cache_epsilon" json:"cacheEpsilon"`
}

// DefaultOptions returns the standard controller options
func DefaultOptions() Options {
	return Options{DiagnosticInterval: DefaultDiagnosticInterval}
}

// PerformanceStats summarizes controller throughput and estimator state.
type PerformanceStats struct {
	ControlLatency time.Duration        `json:"controlLatency"`
	AverageLatency time.Duration        `json:"averageLatency"`
	UpdateCount    int64                `json:"updateCount"`
	ActiveSources  int                  `json:"activeSources"`
	LastUpdate     time.Time            `json:"lastUpdate"`
	SyncStats      timesync.TimingStats `json:"syncStats"`
}

type pendingDispatch struct {
	parameter Parameter
	value     float64
}

// Controller evaluates per-parameter MIDI, audio and hybrid sources every
// frame and dispatches changed values to a Sink.
type Controller struct {
	mu        sync.Mutex
	sink      Sink
	estimator Estimator
	clock     clock.Clock
	bus       *events.Bus
	logger    zerolog.Logger
	log       *logging.ComponentLogger
	sinkLog   *logging.ComponentLogger
	opts      Options

	active    bool
	order     []Parameter
	sources   map[Parameter]ControlSourceConfig
	cache     map[Parameter]float64
	smoothing map[Parameter]*ringbuf.Ring[float64]

	midi  *MIDISnapshot
	audio *AudioSnapshot
	stems []StemAnalysis

	controlLatency time.Duration
	totalLatency   time.Duration
	updateCount    int64
	lastUpdate     time.Time
}

// NewController creates an inactive controller dispatching to sink.
func NewController(sink Sink, estimator Estimator, clk clock.Clock, logger zerolog.Logger, opts Options) *Controller {
	if clk == nil {
		clk = clock.System()
	}
	if sink == nil {
		sink = SinkFunc(func(Parameter, float64) {})
	}
	log := logging.NewComponentLogger(logger, "hybrid-controller")
	return &Controller{
		sink:      sink,
		estimator: estimator,
		clock:     clk,
		bus:       events.NewBus(log.WithSubComponent("event-bus").GetLogger()),
		logger:    log.GetLogger(),
		log:       log,
		sinkLog:   log.WithSubComponent("sink"),
		opts:      opts,
		sources:   make(map[Parameter]ControlSourceConfig),
		cache:     make(map[Parameter]float64),
		smoothing: make(map[Parameter]*ringbuf.Ring[float64]),
	}
}

// Start opens the update gate
func (c *Controller) Start() {
	c.mu.Lock()
	c.active = true
	c.lastUpdate = c.clock.Now()
	c.mu.Unlock()
	c.log.LogComponentStarted()
}

// Stop closes the update gate; UpdateVisuals becomes a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.active = false
	c.mu.Unlock()
	c.log.LogComponentStopped()
}

// IsActive reports whether UpdateVisuals evaluates sources
func (c *Controller) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// SetControlSource validates and upserts the configuration for parameter.
// An invalid configuration is logged and leaves existing state unchanged.
func (c *Controller) SetControlSource(parameter Parameter, config ControlSourceConfig) error {
	if parameter == "" {
		controlRejectedConfigsTotal.Inc()
		c.log.LogValidationRejected(ErrEmptyParameter, "control_source", parameter)
		return ErrEmptyParameter
	}
	if err := config.Validate(); err != nil {
		controlRejectedConfigsTotal.Inc()
		c.log.LogValidationRejected(err, "control_source", parameter)
		return fmt.Errorf("control source for %s: %w", parameter, err)
	}
	config = config.Clone()

	c.mu.Lock()
	previous, existed := c.sources[parameter]
	if !existed {
		c.order = append(c.order, parameter)
	}
	c.sources[parameter] = config
	delete(c.cache, parameter)
	delete(c.smoothing, parameter)
	count := len(c.sources)
	now := c.clock.Now()
	c.mu.Unlock()

	controlActiveSources.Set(float64(count))
	c.logger.Info().
		Str("parameter", string(parameter)).
		Str("source", string(config.Source)).
		Msg("control source set")

	c.bus.Publish(events.Event{
		Type:      events.ParameterChange,
		Parameter: string(parameter),
		Value:     config.Clone(),
		Source:    string(config.Source),
		Timestamp: now,
	})
	if existed && previous.Source != config.Source {
		c.bus.Publish(events.Event{
			Type:      events.SourceSwitch,
			Parameter: string(parameter),
			Value:     events.SourceSwitchData{From: string(previous.Source), To: string(config.Source)},
			Source:    string(config.Source),
			Timestamp: now,
		})
	}
	return nil
}

// RemoveControlSource drops the configuration for parameter.
func (c *Controller) RemoveControlSource(parameter Parameter) bool {
	c.mu.Lock()
	if _, ok := c.sources[parameter]; !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.sources, parameter)
	delete(c.cache, parameter)
	delete(c.smoothing, parameter)
	for i, p := range c.order {
		if p == parameter {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
	count := len(c.sources)
	c.mu.Unlock()

	controlActiveSources.Set(float64(count))
	c.logger.Info().Str("parameter", string(parameter)).Msg("control source removed")
	return true
}

// ControlSource returns the configuration for parameter
func (c *Controller) ControlSource(parameter Parameter) (ControlSourceConfig, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	config, ok := c.sources[parameter]
	if !ok {
		return ControlSourceConfig{}, false
	}
	return config.Clone(), true
}

// ControlSources returns every configuration in the order parameters were first configured.
func (c *Controller) ControlSources() []ParameterSource {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ParameterSource, 0, len(c.order))
	for _, p := range c.order {
		out = append(out, ParameterSource{Parameter: p, Config: c.sources[p].Clone()})
	}
	return out
}

// UpdateVisuals evaluates every configured parameter and dispatches values that
// changed since the last dispatch. It returns the number of values dispatched.
func (c *Controller) UpdateVisuals(ts time.Time) int {
	start := time.Now()

	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return 0
	}

	var pending []pendingDispatch
	suppressed := 0
	for _, parameter := range c.order {
		value, ok := c.evaluateLocked(parameter, c.sources[parameter])
		if !ok {
			continue
		}
		if !isFinite(value) {
			c.logger.Warn().Str("parameter", string(parameter)).Float64("value", value).Msg("dropping non-finite parameter value")
			continue
		}
		if cached, seen := c.cache[parameter]; seen && c.sameValue(cached, value) {
			suppressed++
			continue
		}
		c.cache[parameter] = value
		pending = append(pending, pendingDispatch{parameter: parameter, value: value})
	}
	sink := c.sink
	c.mu.Unlock()

	for _, d := range pending {
		c.dispatch(sink, d)
	}

	latency := time.Since(start)

	c.mu.Lock()
	c.controlLatency = latency
	c.totalLatency += latency
	c.updateCount++
	c.lastUpdate = ts
	updates := c.updateCount
	average := c.totalLatency / time.Duration(c.updateCount)
	sources := len(c.sources)
	c.mu.Unlock()

	controlUpdateSeconds.Observe(latency.Seconds())
	controlSuppressedTotal.Add(float64(suppressed))

	if c.opts.DiagnosticInterval > 0 && updates%c.opts.DiagnosticInterval == 0 {
		c.log.LogLatencyMetrics(latency, average, updates, sources)
	}
	return len(pending)
}

func (c *Controller) sameValue(cached, value float64) bool {
	if c.opts.CacheEpsilon > 0 {
		return math.Abs(cached-value) <= c.opts.CacheEpsilon
	}
	return cached == value
}

func (c *Controller) dispatch(sink Sink, d pendingDispatch) {
	set, ok := dispatchTable[d.parameter]
	if !ok {
		c.logger.Warn().Str("parameter", string(d.parameter)).Msg("unknown parameter")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.sinkLog.LogError(fmt.Errorf("panic: %v", r), "sink panicked dispatching "+string(d.parameter))
		}
	}()
	set(sink, d.value)
	controlDispatchesTotal.WithLabelValues(string(d.parameter)).Inc()
}

func (c *Controller) evaluateLocked(parameter Parameter, config ControlSourceConfig) (float64, bool) {
	switch config.Source {
	case SourceMIDI:
		return c.midiValueLocked(config.MIDIMapping)
	case SourceAudio:
		return c.audioValueLocked(parameter, config.AudioMapping)
	case SourceHybrid:
		midiValue, midiOK := c.midiValueLocked(config.MIDIMapping)
		audioValue, audioOK := c.audioValueLocked(parameter, config.AudioMapping)
		switch {
		case midiOK && audioOK:
			return Blend(midiValue, audioValue, config.MIDIWeight, config.AudioWeight), true
		case midiOK:
			return midiValue, true
		case audioOK:
			return audioValue, true
		}
	}
	return 0, false
}

func (c *Controller) midiValueLocked(mapping *MIDIMapping) (float64, bool) {
	if c.midi == nil || mapping == nil {
		return 0, false
	}

	var raw float64
	switch {
	case mapping.Controller != nil:
		// controllers not seen yet read as zero
		v, _ := c.midi.ControllerValue(mapping.Channel, *mapping.Controller)
		raw = float64(v) / midiValueMax
	case mapping.Note != nil:
		v, _ := c.midi.NoteVelocity(*mapping.Note)
		raw = float64(v) / midiValueMax
	}
	return applyScaling(raw, mapping.Scaling, mapping.Range), true
}

func (c *Controller) audioValueLocked(parameter Parameter, mapping *AudioMapping) (float64, bool) {
	if mapping == nil {
		return 0, false
	}
	raw, ok := c.audioFeatureLocked(mapping)
	if !ok {
		return 0, false
	}
	if mapping.Smoothing > 0 {
		raw = c.smoothLocked(parameter, raw, mapping.Smoothing)
	}
	return applyScaling(raw, mapping.Scaling, mapping.Range), true
}

func (c *Controller) audioFeatureLocked(mapping *AudioMapping) (float64, bool) {
	if mapping.Stem != "" {
		for _, stem := range c.stems {
			if stem.StemType == mapping.Stem {
				if v, ok := stem.Feature(mapping.Feature); ok {
					return v, true
				}
				break
			}
		}
	}
	if c.audio != nil {
		return c.audio.Feature(mapping.Feature)
	}
	return 0, false
}

func (c *Controller) smoothLocked(parameter Parameter, value, smoothing float64) float64 {
	size := maxSmoothingWindow
	if w := math.Floor(smoothing * smoothingScale); w < maxSmoothingWindow-1 {
		size = int(w) + 1
	}
	buf, ok := c.smoothing[parameter]
	if !ok || buf.Cap() != size {
		buf = ringbuf.New[float64](size)
		c.smoothing[parameter] = buf
	}
	buf.Push(value)

	var sum float64
	buf.Do(func(_ int, v float64) { sum += v })
	return sum / float64(buf.Len())
}

func applyScaling(value, scaling float64, r *Range) float64 {
	scaled := value * scaling
	if r != nil {
		scaled = r.apply(scaled)
	}
	return scaled
}

// Blend mixes a MIDI and an audio value by normalized weights. A zero total
// weight yields the MIDI value.
func Blend(midiValue, audioValue, midiWeight, audioWeight float64) float64 {
	total := midiWeight + audioWeight
	if total == 0 {
		return midiValue
	}
	wm := midiWeight / total
	return midiValue*wm + audioValue*(1-wm)
}

// UpdateMIDIData stores the latest MIDI snapshot. A note with velocity above
// 100 is forwarded to the estimator as an auto-detected sync point.
func (c *Controller) UpdateMIDIData(snapshot MIDISnapshot) {
	snap := snapshot.clone()
	now := c.clock.Now()

	c.mu.Lock()
	c.midi = &snap
	c.mu.Unlock()

	if c.estimator == nil {
		return
	}
	if snap.Tempo > 0 && isFinite(snap.Tempo) {
		c.estimator.SetReferenceTempo(snap.Tempo)
	}

	note, ok := snap.StrongestNote()
	if !ok || note.Velocity <= strongNoteVelocity || !isFinite(snap.CurrentTime) {
		return
	}
	mediaTime := c.estimator.GetAdjustedTime(now).DomainBTime
	if c.estimator.AutoDetectSyncPoint(beatsToTicks(snap.CurrentTime), mediaTime, float64(note.Velocity)/midiValueMax) {
		controlAutoSyncPointsTotal.WithLabelValues("midi").Inc()
	}
}

// UpdateAudioData stores the latest general audio snapshot
func (c *Controller) UpdateAudioData(snapshot AudioSnapshot) {
	snap := snapshot
	snap.Frequencies = append([]float64(nil), snapshot.Frequencies...)
	snap.TimeData = append([]float64(nil), snapshot.TimeData...)

	c.mu.Lock()
	c.audio = &snap
	c.mu.Unlock()
}

// UpdateStemAnalysis stores the latest stem frames. Stems with intensity above
// 0.8 become auto-detected sync points against the last known MIDI position;
// without one they are skipped.
func (c *Controller) UpdateStemAnalysis(stems []StemAnalysis) {
	list := make([]StemAnalysis, len(stems))
	copy(list, stems)

	c.mu.Lock()
	c.stems = list
	var ticks int64
	known := c.midi != nil && isFinite(c.midi.CurrentTime)
	if known {
		ticks = beatsToTicks(c.midi.CurrentTime)
	}
	c.mu.Unlock()

	if c.estimator == nil {
		return
	}
	for _, stem := range list {
		if stem.Derived.Intensity <= strongStemIntensity {
			continue
		}
		if !known {
			c.logger.Debug().Str("stem", stem.StemType).Msg("skipping stem sync point without a midi position")
			continue
		}
		if c.estimator.AutoDetectSyncPoint(ticks, stem.Timestamp, stem.Derived.Intensity) {
			controlAutoSyncPointsTotal.WithLabelValues("stem").Inc()
		}
	}
}

func beatsToTicks(beats float64) int64 {
	return int64(math.Round(beats * timesync.TicksPerQuarter))
}

// GetSyncStatus proxies the estimator status
func (c *Controller) GetSyncStatus() timesync.Status {
	if c.estimator == nil {
		return timesync.Status{}
	}
	return c.estimator.GetSyncStatus()
}

// AdjustSyncOffset nudges the estimator offset by deltaMs milliseconds and
// publishes a sync_update event.
func (c *Controller) AdjustSyncOffset(deltaMs float64) error {
	if !isFinite(deltaMs) {
		c.log.LogValidationRejected(timesync.ErrInvalidAdjustment, "sync_offset", deltaMs)
		return timesync.ErrInvalidAdjustment
	}
	if c.estimator == nil {
		return nil
	}
	c.estimator.AdjustOffsetManually(deltaMs / 1000)

	c.bus.Publish(events.Event{
		Type:      events.SyncUpdate,
		Value:     c.estimator.GetSyncStatus(),
		Timestamp: c.clock.Now(),
	})
	return nil
}

// AddEventListener registers handler for control events.
func (c *Controller) AddEventListener(handler events.Handler) events.ListenerID {
	if handler == nil {
		return 0
	}
	return c.bus.Subscribe(handler)
}

// RemoveEventListener unregisters a handler by id
func (c *Controller) RemoveEventListener(id events.ListenerID) bool {
	return c.bus.Unsubscribe(id)
}

// GetPerformanceStats reports update latency and counts.
func (c *Controller) GetPerformanceStats() PerformanceStats {
	c.mu.Lock()
	stats := PerformanceStats{
		ControlLatency: c.controlLatency,
		UpdateCount:    c.updateCount,
		ActiveSources:  len(c.sources),
		LastUpdate:     c.lastUpdate,
	}
	if c.updateCount > 0 {
		stats.AverageLatency = c.totalLatency / time.Duration(c.updateCount)
	}
	c.mu.Unlock()

	if c.estimator != nil {
		stats.SyncStats = c.estimator.GetTimingStats()
	}
	return stats
}

// Dispose stops the controller and clears all configuration, caches and listeners.
func (c *Controller) Dispose() {
	c.Stop()

	c.mu.Lock()
	c.order = nil
	c.sources = make(map[Parameter]ControlSourceConfig)
	c.cache = make(map[Parameter]float64)
	c.smoothing = make(map[Parameter]*ringbuf.Ring[float64])
	c.midi = nil
	c.audio = nil
	c.stems = nil
	c.mu.Unlock()

	c.bus.Clear()
	controlActiveSources.Set(0)
	c.log.LogComponentDisposed()
}
