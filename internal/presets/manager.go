package presets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/clock"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/control"
	"github.com/rs/zerolog"
)

const recentCount = 5

// Target receives the control sources of an applied preset.
type Target interface {
	SetControlSource(parameter control.Parameter, config control.ControlSourceConfig) error
}

// Manager owns the preset collection and writes it through to a Store after
// every change. A failed write is returned to the caller; the in-memory
// change stays.
type Manager struct {
	mu      sync.RWMutex
	store   Store
	clock   clock.Clock
	logger  zerolog.Logger
	presets map[string]Preset
}

// NewManager loads the collection from store, seeding the defaults when the
// store has never been written.
func NewManager(ctx context.Context, store Store, clk clock.Clock, logger zerolog.Logger) (*Manager, error) {
	if store == nil {
		store = NewMemoryStore()
	}
	if clk == nil {
		clk = clock.System()
	}
	m := &Manager{
		store:   store,
		clock:   clk,
		logger:  logger.With().Str("component", "presets").Logger(),
		presets: make(map[string]Preset),
	}

	loaded, err := store.LoadAll(ctx)
	switch {
	case errors.Is(err, ErrNotStored):
		if err := m.CreateDefaults(ctx); err != nil {
			return nil, err
		}
		return m, nil
	case err != nil:
		return nil, fmt.Errorf("load presets: %w", err)
	}

	for _, p := range loaded {
		if p.ID == "" {
			m.logger.Warn().Str("name", p.Name).Msg("skipping stored preset without id")
			continue
		}
		m.presets[p.ID] = p
	}
	presetsStored.Set(float64(len(m.presets)))
	m.logger.Info().Int("count", len(m.presets)).Msg("loaded presets")
	return m, nil
}

func (m *Manager) persistLocked(ctx context.Context) error {
	presetsStored.Set(float64(len(m.presets)))
	if err := m.store.SaveAll(ctx, m.sortedLocked()); err != nil {
		presetStoreErrorsTotal.Inc()
		m.logger.Error().Err(err).Msg("failed to persist presets")
		return fmt.Errorf("persist presets: %w", err)
	}
	return nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidPreset)
	}
	return nil
}

// Save stores a new preset under a fresh ID.
func (m *Manager) Save(ctx context.Context, name string, config Configuration, description string) (Preset, error) {
	if err := validateName(name); err != nil {
		return Preset{}, err
	}
	if err := config.Validate(); err != nil {
		return Preset{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.insertLocked(name, config, description)
	m.logger.Info().Str("id", p.ID).Str("name", name).Msg("saved preset")
	return p.clone(), m.persistLocked(ctx)
}

func (m *Manager) insertLocked(name string, config Configuration, description string) Preset {
	now := m.clock.Now()
	p := Preset{
		ID:            uuid.New().String(),
		Name:          name,
		Description:   description,
		Configuration: config.Clone(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.presets[p.ID] = p
	return p
}

// Load returns the preset with the given ID
func (m *Manager) Load(id string) (Preset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.presets[id]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %s", ErrPresetNotFound, id)
	}
	return p.clone(), nil
}

func (m *Manager) Update(ctx context.Context, id string, update Update) (Preset, error) {
	if update.Name != nil {
		if err := validateName(*update.Name); err != nil {
			return Preset{}, err
		}
	}
	if update.Configuration != nil {
		if err := update.Configuration.Validate(); err != nil {
			return Preset{}, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.presets[id]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %s", ErrPresetNotFound, id)
	}
	if update.Name != nil {
		p.Name = *update.Name
	}
	if update.Description != nil {
		p.Description = *update.Description
	}
	if update.Configuration != nil {
		p.Configuration = update.Configuration.Clone()
	}
	p.UpdatedAt = m.clock.Now()
	m.presets[id] = p

	m.logger.Info().Str("id", id).Str("name", p.Name).Msg("updated preset")
	return p.clone(), m.persistLocked(ctx)
}

func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.presets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPresetNotFound, id)
	}
	delete(m.presets, id)
	m.logger.Info().Str("id", id).Str("name", p.Name).Msg("deleted preset")
	return m.persistLocked(ctx)
}

// List returns every preset, most recently updated first.
func (m *Manager) List() []Preset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clonePresets(m.sortedLocked())
}

func (m *Manager) sortedLocked() []Preset {
	out := make([]Preset, 0, len(m.presets))
	for _, p := range m.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return out
}

// Search matches query case-insensitively against names and descriptions.
func (m *Manager) Search(query string) []Preset {
	q := strings.ToLower(query)
	var out []Preset
	for _, p := range m.List() {
		if p.matches(q) {
			out = append(out, p)
		}
	}
	return out
}

func (m *Manager) ByType(source control.Source) []Preset {
	var out []Preset
	for _, p := range m.List() {
		if p.Configuration.Type == source {
			out = append(out, p)
		}
	}
	return out
}

// Duplicate copies a preset under newName, or "<name> (Copy)" when newName is empty.
func (m *Manager) Duplicate(ctx context.Context, id, newName string) (Preset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orig, ok := m.presets[id]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %s", ErrPresetNotFound, id)
	}
	if strings.TrimSpace(newName) == "" {
		newName = orig.Name + " (Copy)"
	}
	p := m.insertLocked(newName, orig.Configuration, orig.Description)
	m.logger.Info().Str("id", p.ID).Str("from", id).Msg("duplicated preset")
	return p.clone(), m.persistLocked(ctx)
}

// Export writes the selected presets, or all of them when ids is empty, as
// an indented JSON document. Unknown ids are left out.
func (m *Manager) Export(ids ...string) ([]byte, error) {
	var selected []Preset
	if len(ids) == 0 {
		selected = m.List()
	} else {
		m.mu.RLock()
		for _, id := range ids {
			if p, ok := m.presets[id]; ok {
				selected = append(selected, p.clone())
			}
		}
		m.mu.RUnlock()
	}
	if selected == nil {
		selected = []Preset{}
	}

	doc := Export{
		Version:    exportVersion,
		ExportedAt: m.clock.Now().UTC().Format(exportTimeFormat),
		Presets:    selected,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal preset export: %w", err)
	}
	m.logger.Info().Int("count", len(selected)).Msg("exported presets")
	return data, nil
}

// Import adds presets from an Export document. A preset whose name already
// exists is skipped unless overwrite is set, in which case it keeps the
// existing ID. Invalid entries are reported in the result and do not stop
// the import.
func (m *Manager) Import(ctx context.Context, data []byte, overwrite bool) (ImportResult, error) {
	result := ImportResult{Errors: []string{}}

	var doc struct {
		Presets []json.RawMessage `json:"presets"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("JSON parse error: %v", err))
		return result, fmt.Errorf("%w: %w", ErrInvalidExport, err)
	}
	if doc.Presets == nil {
		result.Errors = append(result.Errors, "Invalid preset data format")
		return result, fmt.Errorf("%w: missing presets array", ErrInvalidExport)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	for _, raw := range doc.Presets {
		var in Preset
		if err := json.Unmarshal(raw, &in); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Error importing preset: %v", err))
			continue
		}
		if err := validateName(in.Name); err != nil {
			result.Errors = append(result.Errors, "Invalid preset: Unknown")
			continue
		}
		if err := in.Configuration.Validate(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Invalid preset: %s", in.Name))
			continue
		}

		existing, found := m.byNameLocked(in.Name)
		if found && !overwrite {
			result.Skipped++
			continue
		}

		id := uuid.New().String()
		if found {
			id = existing.ID
		}
		created := in.CreatedAt
		if created.IsZero() {
			created = now
		}
		m.presets[id] = Preset{
			ID:            id,
			Name:          in.Name,
			Description:   in.Description,
			Configuration: in.Configuration.Clone(),
			CreatedAt:     created,
			UpdatedAt:     now,
		}
		result.Imported++
	}

	m.logger.Info().
		Int("imported", result.Imported).
		Int("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Msg("import complete")

	if result.Imported > 0 {
		return result, m.persistLocked(ctx)
	}
	return result, nil
}

func (m *Manager) byNameLocked(name string) (Preset, bool) {
	for _, p := range m.sortedLocked() {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

// CreateDefaults adds the built-in audio, MIDI and hybrid presets.
func (m *Manager) CreateDefaults(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range Defaults() {
		m.insertLocked(d.Name, d.Configuration, d.Description)
	}
	m.logger.Info().Msg("created default presets")
	return m.persistLocked(ctx)
}

func (m *Manager) Stats() Stats {
	list := m.List()
	stats := Stats{
		Total: len(list),
		ByType: map[control.Source]int{
			control.SourceMIDI:   0,
			control.SourceAudio:  0,
			control.SourceHybrid: 0,
		},
		RecentlyUsed: []Ref{},
	}
	for i, p := range list {
		stats.ByType[p.Configuration.Type]++
		if i < recentCount {
			stats.RecentlyUsed = append(stats.RecentlyUsed, Ref{ID: p.ID, Name: p.Name})
		}
	}
	if len(list) > 0 {
		newest, oldest := list[0], list[len(list)-1]
		stats.Newest = &newest
		stats.Oldest = &oldest
	}
	return stats
}

// Apply sends every parameter of the preset to target in parameter table
// order and returns how many were accepted.
func (m *Manager) Apply(id string, target Target) (int, error) {
	p, err := m.Load(id)
	if err != nil {
		return 0, err
	}

	applied := 0
	var errs []error
	for _, param := range control.Parameters() {
		cfg, ok := p.Configuration.Parameters[param]
		if !ok {
			continue
		}
		if err := target.SetControlSource(param, cfg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", param, err))
			continue
		}
		applied++
	}
	presetAppliesTotal.Inc()
	m.logger.Info().Str("id", id).Str("name", p.Name).Int("applied", applied).Msg("applied preset")
	return applied, errors.Join(errs...)
}

// Dispose writes the collection one last time and empties the manager.
func (m *Manager) Dispose(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.persistLocked(ctx)
	m.presets = make(map[string]Preset)
	presetsStored.Set(0)
	return err
}
