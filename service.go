package phonoglyph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rheome-dev/Phonoglyph-sub001/internal/clock"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/config"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/control"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/events"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/health"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/midiin"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/presets"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/timesync"
	"github.com/rs/zerolog"
)

const statusBroadcastInterval = 2 * time.Second

// Service wires the estimator, health monitor, controller, presets and MIDI
// input together and drives them from one scheduler.
type Service struct {
	cfg       config.Config
	logger    zerolog.Logger
	clock     clock.Clock
	scheduler clock.Scheduler
	ticker    *clock.TickerScheduler // set when the service created its own scheduler

	estimator   *timesync.Estimator
	monitor     *health.Monitor
	broadcaster *events.Broadcaster
	controller  *control.Controller
	values      *valueSink
	presets     *presets.Manager
	tracker     *midiin.Tracker

	closeStore func() error
	stopFrames clock.StopFunc
	stopStatus clock.StopFunc

	closeOnce sync.Once
	closeErr  error
}

// NewService builds every component from cfg. A nil clock or scheduler
// falls back to wall time and tickers.
func NewService(ctx context.Context, cfg config.Config, logger zerolog.Logger, clk clock.Clock, scheduler clock.Scheduler) (*Service, error) {
	if clk == nil {
		clk = clock.System()
	}
	var owned *clock.TickerScheduler
	if scheduler == nil {
		owned = clock.NewTickerScheduler()
		scheduler = owned
	}

	s := &Service{
		cfg:       cfg,
		logger:    logger,
		clock:     clk,
		scheduler: scheduler,
		ticker:    owned,
	}

	s.estimator = timesync.NewEstimator(clk, logger)
	s.estimator.SetReferenceTempo(cfg.Sync.ReferenceTempo)

	s.monitor = health.NewMonitor(s.estimator, clk, scheduler, logger)
	s.monitor.SetThresholds(cfg.Health.Thresholds)

	s.broadcaster = events.NewBroadcaster(logger, cfg.HTTP.EventWriteTimeout)
	s.monitor.OnAlert(func(a health.Alert) {
		s.broadcaster.Broadcast(events.EnvelopeSyncAlert, a)
	})

	s.values = newValueSink(s.broadcaster)
	s.controller = control.NewController(s.values.Sink(), s.estimator, clk, logger, cfg.Controller)
	s.controller.AddEventListener(s.broadcaster.HandleEvent)

	store, closeStore, err := openPresetStore(ctx, cfg.Presets)
	if err != nil {
		if owned != nil {
			owned.Close()
		}
		return nil, err
	}
	s.closeStore = closeStore
	s.presets, err = presets.NewManager(ctx, store, clk, logger)
	if err != nil {
		if closeStore != nil {
			_ = closeStore()
		}
		if owned != nil {
			owned.Close()
		}
		return nil, fmt.Errorf("init presets: %w", err)
	}

	s.tracker = midiin.NewTracker(clk, logger)
	s.tracker.OnUpdate(s.controller.UpdateMIDIData)

	return s, nil
}

func openPresetStore(ctx context.Context, cfg config.PresetsConfig) (presets.Store, func() error, error) {
	switch {
	case cfg.RedisAddr != "":
		store, err := presets.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisKey)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case cfg.File != "":
		return presets.NewFileStore(cfg.File), nil, nil
	default:
		return presets.NewMemoryStore(), nil, nil
	}
}

// Start begins health monitoring, the frame loop, periodic status pushes and
// MIDI input when a port is configured.
func (s *Service) Start() {
	s.controller.Start()
	s.monitor.StartMonitoring(s.cfg.Health.MonitorInterval)

	s.stopFrames = s.scheduler.Every(s.cfg.FrameInterval(), func() {
		s.controller.UpdateVisuals(s.clock.Now())
	})
	s.stopStatus = s.scheduler.Every(statusBroadcastInterval, s.broadcastStatus)

	if s.cfg.MIDI.InputPort != "" {
		if err := s.tracker.ListenByName(s.cfg.MIDI.InputPort); err != nil {
			s.logger.Warn().Err(err).Str("port", s.cfg.MIDI.InputPort).Msg("midi input unavailable")
		} else {
			s.tracker.Play()
		}
	}

	s.logger.Info().
		Int("frame_rate", s.cfg.FrameRate).
		Dur("monitor_interval", s.cfg.Health.MonitorInterval).
		Msg("sync service started")
}

// broadcastStatus pushes sync status to subscribers, skipping the work when nobody listens.
func (s *Service) broadcastStatus() {
	if s.broadcaster.SubscriberCount() == 0 {
		return
	}
	s.broadcaster.Broadcast(events.EnvelopeSyncStatus, s.syncStatus())
}

// SyncStatusData is the payload of sync-status envelopes and GET /api/sync/status.
type SyncStatusData struct {
	Status     timesync.Status      `json:"status"`
	Timing     timesync.TimingStats `json:"timing"`
	Assessment health.Assessment    `json:"assessment"`
}

func (s *Service) syncStatus() SyncStatusData {
	return SyncStatusData{
		Status:     s.estimator.GetSyncStatus(),
		Timing:     s.estimator.GetTimingStats(),
		Assessment: s.monitor.GetSyncQualityAssessment(),
	}
}

// Close stops every loop, disposes the components and persists presets.
// Later calls return the first result.
func (s *Service) Close(ctx context.Context) error {
	s.closeOnce.Do(func() { s.closeErr = s.close(ctx) })
	return s.closeErr
}

func (s *Service) close(ctx context.Context) error {
	if s.stopFrames != nil {
		s.stopFrames()
	}
	if s.stopStatus != nil {
		s.stopStatus()
	}

	var errs []error
	if err := s.tracker.Close(); err != nil {
		errs = append(errs, err)
	}
	s.controller.Dispose()
	s.monitor.Dispose()
	if err := s.presets.Dispose(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.closeStore != nil {
		if err := s.closeStore(); err != nil {
			errs = append(errs, fmt.Errorf("close preset store: %w", err))
		}
	}
	if s.ticker != nil {
		s.ticker.Close()
	}

	s.logger.Info().Msg("sync service stopped")
	return errors.Join(errs...)
}
