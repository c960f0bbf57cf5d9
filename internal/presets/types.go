package presets

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rheome-dev/Phonoglyph-sub001/internal/control"
)

var (
	ErrPresetNotFound = errors.New("preset not found")
	ErrInvalidPreset  = errors.New("invalid preset")
	ErrNotStored      = errors.New("no presets stored")
	ErrInvalidExport  = errors.New("invalid preset export")
)

// Configuration is a full control setup: a default source kind with its
// weights and one control source per parameter.
type Configuration struct {
	Type        control.Source                                    `json:"type" yaml:"type"`
	MIDIWeight  float64                                           `json:"midiWeight" yaml:"midi_weight"`
	AudioWeight float64                                           `json:"audioWeight" yaml:"audio_weight"`
	Parameters  map[control.Parameter]control.ControlSourceConfig `json:"parameters" yaml:"parameters"`
}

// Validate checks the source kind and every parameter entry.
func (c Configuration) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("%w: type %q", ErrInvalidPreset, c.Type)
	}
	if c.Parameters == nil {
		return fmt.Errorf("%w: no parameters", ErrInvalidPreset)
	}
	for p, cfg := range c.Parameters {
		if !p.IsKnown() {
			return fmt.Errorf("%w: unknown parameter %q", ErrInvalidPreset, p)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidPreset, p, err)
		}
	}
	return nil
}

// Clone deep-copies the configuration
func (c Configuration) Clone() Configuration {
	out := c
	if c.Parameters != nil {
		out.Parameters = make(map[control.Parameter]control.ControlSourceConfig, len(c.Parameters))
		for p, cfg := range c.Parameters {
			out.Parameters[p] = cfg.Clone()
		}
	}
	return out
}

type Preset struct {
	ID            string        `json:"id" yaml:"id"`
	Name          string        `json:"name" yaml:"name"`
	Description   string        `json:"description,omitempty" yaml:"description,omitempty"`
	Configuration Configuration `json:"configuration" yaml:"configuration"`
	CreatedAt     time.Time     `json:"createdAt" yaml:"created_at"`
	UpdatedAt     time.Time     `json:"updatedAt" yaml:"updated_at"`
}

func (p Preset) clone() Preset {
	p.Configuration = p.Configuration.Clone()
	return p
}

func (p Preset) matches(query string) bool {
	return strings.Contains(strings.ToLower(p.Name), query) ||
		strings.Contains(strings.ToLower(p.Description), query)
}

// Update carries the fields to change; nil fields are left alone.
type Update struct {
	Name          *string        `json:"name,omitempty"`
	Description   *string        `json:"description,omitempty"`
	Configuration *Configuration `json:"configuration,omitempty"`
}

type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Stats struct {
	Total        int                    `json:"total"`
	ByType       map[control.Source]int `json:"byType"`
	RecentlyUsed []Ref                  `json:"recentlyUsed"`
	Oldest       *Preset                `json:"oldest,omitempty"`
	Newest       *Preset                `json:"newest,omitempty"`
}

// Export is the interchange document written by Manager.Export.
type Export struct {
	Version    string   `json:"version"`
	ExportedAt string   `json:"exportedAt"`
	Presets    []Preset `json:"presets"`
}

const (
	exportVersion    = "1.0"
	exportTimeFormat = "2006-01-02T15:04:05.000Z07:00"
)
