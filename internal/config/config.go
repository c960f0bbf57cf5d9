package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rheome-dev/Phonoglyph-sub001/internal/control"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/events"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/health"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/timesync"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidFrameRate   = errors.New("frame rate must be between 1 and 240")
	ErrInvalidInterval    = errors.New("monitor interval must be positive")
	ErrInvalidThresholds  = health.ErrInvalidThresholds
	ErrInvalidTempo       = errors.New("reference tempo must be positive")
	ErrInvalidListenAddr  = errors.New("http listen address is required")
	ErrInvalidLogLevel    = errors.New("unknown log level")
	ErrInvalidController  = errors.New("invalid controller options")
	ErrConflictingPresets = errors.New("presets file and redis address are mutually exclusive")
)

const maxFrameRate = 240

type Config struct {
	LogLevel   string          `yaml:"log_level"`
	HTTP       HTTPConfig      `yaml:"http"`
	FrameRate  int             `yaml:"frame_rate"`
	Sync       SyncConfig      `yaml:"sync"`
	Health     HealthConfig    `yaml:"health"`
	Controller control.Options `yaml:"controller"`
	MIDI       MIDIConfig      `yaml:"midi"`
	Presets    PresetsConfig   `yaml:"presets"`
}

type HTTPConfig struct {
	ListenAddr        string        `yaml:"listen_addr"`
	EventWriteTimeout time.Duration `yaml:"event_write_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type SyncConfig struct {
	ReferenceTempo float64 `yaml:"reference_tempo"`
}

type HealthConfig struct {
	MonitorInterval time.Duration     `yaml:"monitor_interval"`
	Thresholds      health.Thresholds `yaml:"thresholds"`
}

type MIDIConfig struct {
	// InputPort is matched by gomidi's FindInPort. Empty disables MIDI input.
	InputPort string `yaml:"input_port"`
}

// PresetsConfig picks the preset store: Redis when RedisAddr is set, the
// YAML file when File is set, memory otherwise.
type PresetsConfig struct {
	File      string `yaml:"file"`
	RedisAddr string `yaml:"redis_addr"`
	RedisKey  string `yaml:"redis_key"`
}

// Default returns a configuration that runs without a config file.
func Default() Config {
	return Config{
		LogLevel: "info",
		HTTP: HTTPConfig{
			ListenAddr:        ":8090",
			EventWriteTimeout: events.DefaultWriteTimeout,
			ShutdownTimeout:   5 * time.Second,
		},
		FrameRate: 60,
		Sync: SyncConfig{
			ReferenceTempo: timesync.DefaultTempo,
		},
		Health: HealthConfig{
			MonitorInterval: health.DefaultInterval,
			Thresholds:      health.DefaultThresholds(),
		},
		Controller: control.DefaultOptions(),
	}
}

// Load reads a YAML file over Default. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every section and returns the first problem found.
func (c Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	if strings.TrimSpace(c.HTTP.ListenAddr) == "" {
		return ErrInvalidListenAddr
	}
	if c.FrameRate < 1 || c.FrameRate > maxFrameRate {
		return fmt.Errorf("%w: %d", ErrInvalidFrameRate, c.FrameRate)
	}
	if c.Health.MonitorInterval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, c.Health.MonitorInterval)
	}
	if err := c.Health.Thresholds.Validate(); err != nil {
		return err
	}
	if c.Sync.ReferenceTempo <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTempo, c.Sync.ReferenceTempo)
	}
	if c.Controller.DiagnosticInterval < 0 || c.Controller.CacheEpsilon < 0 {
		return fmt.Errorf("%w: %+v", ErrInvalidController, c.Controller)
	}
	if c.Presets.File != "" && c.Presets.RedisAddr != "" {
		return ErrConflictingPresets
	}
	return nil
}

// FrameInterval is the time between visual updates.
func (c Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.FrameRate)
}
