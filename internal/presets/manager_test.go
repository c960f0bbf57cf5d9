package presets

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rheome-dev/Phonoglyph-sub001/internal/clock"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/control"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T) (*Manager, *clock.Manual, *MemoryStore) {
	t.Helper()
	clk := clock.NewManual(testEpoch)
	store := NewMemoryStore()
	m, err := NewManager(context.Background(), store, clk, zerolog.Nop())
	require.NoError(t, err)
	return m, clk, store
}

func midiConfig(cc uint8) Configuration {
	return Configuration{
		Type:       control.SourceMIDI,
		MIDIWeight: 1,
		Parameters: map[control.Parameter]control.ControlSourceConfig{
			control.Brightness: {Source: control.SourceMIDI, MIDIMapping: ccMapping(cc, 1, 0, 1)},
		},
	}
}

type recordingTarget struct {
	applied []control.Parameter
	reject  control.Parameter
}

func (r *recordingTarget) SetControlSource(p control.Parameter, _ control.ControlSourceConfig) error {
	if p == r.reject {
		return errors.New("rejected")
	}
	r.applied = append(r.applied, p)
	return nil
}

type failingStore struct {
	MemoryStore
	saveErr error
}

func (f *failingStore) SaveAll(ctx context.Context, presets []Preset) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryStore.SaveAll(ctx, presets)
}

func TestManager(t *testing.T) {
	tests := []struct {
		name     string
		testFunc func(t *testing.T)
	}{
		{"SeedsDefaultsOnEmptyStore", testSeedsDefaultsOnEmptyStore},
		{"LoadsExistingStore", testLoadsExistingStore},
		{"SaveValidates", testSaveValidates},
		{"SaveAndLoadReturnCopies", testSaveAndLoadReturnCopies},
		{"UpdateAndListOrder", testUpdateAndListOrder},
		{"DeleteMissing", testDeleteMissing},
		{"SearchAndByType", testSearchAndByType},
		{"Duplicate", testDuplicate},
		{"ExportImportRoundTrip", testExportImportRoundTrip},
		{"ImportSkipsAndOverwrites", testImportSkipsAndOverwrites},
		{"ImportReportsInvalidEntries", testImportReportsInvalidEntries},
		{"ImportRejectsBadDocument", testImportRejectsBadDocument},
		{"Stats", testStats},
		{"Apply", testApply},
		{"PersistFailureKeepsChange", testPersistFailureKeepsChange},
		{"Dispose", testDispose},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFunc)
	}
}

func testSeedsDefaultsOnEmptyStore(t *testing.T) {
	m, _, store := newTestManager(t)

	list := m.List()
	require.Len(t, list, 3)
	stored, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	for _, p := range list {
		assert.NoError(t, p.Configuration.Validate(), p.Name)
		assert.NotEmpty(t, p.ID)
	}
	hybrid := m.ByType(control.SourceHybrid)
	require.Len(t, hybrid, 1)
	assert.Equal(t, "Hybrid Performance", hybrid[0].Name)
	assert.Equal(t, 0.7, hybrid[0].Configuration.Parameters[control.GlobalScale].MIDIWeight)
}

func testLoadsExistingStore(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.SaveAll(context.Background(), []Preset{
		{ID: "a", Name: "Kept", Configuration: midiConfig(1), UpdatedAt: testEpoch},
		{Name: "No ID", Configuration: midiConfig(1)},
	}))

	m, err := NewManager(context.Background(), store, clock.NewManual(testEpoch), zerolog.Nop())
	require.NoError(t, err)
	list := m.List()
	require.Len(t, list, 1)
	assert.Equal(t, "Kept", list[0].Name)
}

func testSaveValidates(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Save(ctx, "  ", midiConfig(1), "")
	assert.ErrorIs(t, err, ErrInvalidPreset)

	_, err = m.Save(ctx, "Bad type", Configuration{Type: "osc", Parameters: map[control.Parameter]control.ControlSourceConfig{}}, "")
	assert.ErrorIs(t, err, ErrInvalidPreset)

	bad := midiConfig(1)
	bad.Parameters["wobble"] = bad.Parameters[control.Brightness]
	_, err = m.Save(ctx, "Unknown param", bad, "")
	assert.ErrorIs(t, err, ErrInvalidPreset)

	broken := Configuration{Type: control.SourceMIDI, Parameters: map[control.Parameter]control.ControlSourceConfig{
		control.Opacity: {Source: control.SourceMIDI},
	}}
	_, err = m.Save(ctx, "Missing mapping", broken, "")
	assert.ErrorIs(t, err, ErrInvalidPreset)
	assert.ErrorIs(t, err, control.ErrMissingMapping)

	assert.Len(t, m.List(), 3)
}

func testSaveAndLoadReturnCopies(t *testing.T) {
	m, _, _ := newTestManager(t)
	cfg := midiConfig(7)
	p, err := m.Save(context.Background(), "Mine", cfg, "desc")
	require.NoError(t, err)

	// caller mutations do not leak into the manager
	*cfg.Parameters[control.Brightness].MIDIMapping.Controller = 99
	*p.Configuration.Parameters[control.Brightness].MIDIMapping.Controller = 98

	loaded, err := m.Load(p.ID)
	require.NoError(t, err)
	assert.Equal(t, uint8(7), *loaded.Configuration.Parameters[control.Brightness].MIDIMapping.Controller)
	assert.Equal(t, testEpoch, loaded.CreatedAt)

	_, err = m.Load("missing")
	assert.ErrorIs(t, err, ErrPresetNotFound)
}

func testUpdateAndListOrder(t *testing.T) {
	m, clk, _ := newTestManager(t)
	ctx := context.Background()

	clk.Advance(time.Minute)
	first, err := m.Save(ctx, "First", midiConfig(1), "")
	require.NoError(t, err)
	clk.Advance(time.Minute)
	second, err := m.Save(ctx, "Second", midiConfig(2), "")
	require.NoError(t, err)
	assert.Equal(t, second.ID, m.List()[0].ID)

	clk.Advance(time.Minute)
	name := "First renamed"
	updated, err := m.Update(ctx, first.ID, Update{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, first.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(first.UpdatedAt))
	assert.Equal(t, first.ID, m.List()[0].ID)

	empty := ""
	_, err = m.Update(ctx, first.ID, Update{Name: &empty})
	assert.ErrorIs(t, err, ErrInvalidPreset)
	_, err = m.Update(ctx, "missing", Update{Name: &name})
	assert.ErrorIs(t, err, ErrPresetNotFound)
}

func testDeleteMissing(t *testing.T) {
	m, _, _ := newTestManager(t)
	p, err := m.Save(context.Background(), "Gone", midiConfig(1), "")
	require.NoError(t, err)

	require.NoError(t, m.Delete(context.Background(), p.ID))
	assert.ErrorIs(t, m.Delete(context.Background(), p.ID), ErrPresetNotFound)
}

func testSearchAndByType(t *testing.T) {
	m, _, _ := newTestManager(t)

	assert.Len(t, m.Search("AUDIO"), 2, "name and description matches")
	assert.Len(t, m.Search("breath"), 1)
	assert.Empty(t, m.Search("nothing like this"))
	assert.Len(t, m.ByType(control.SourceMIDI), 1)
}

func testDuplicate(t *testing.T) {
	m, clk, _ := newTestManager(t)
	orig := m.ByType(control.SourceAudio)[0]

	clk.Advance(time.Second)
	cp, err := m.Duplicate(context.Background(), orig.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Audio Reactive (Copy)", cp.Name)
	assert.NotEqual(t, orig.ID, cp.ID)
	assert.Equal(t, orig.Configuration, cp.Configuration)
	assert.Equal(t, orig.Description, cp.Description)

	named, err := m.Duplicate(context.Background(), orig.ID, "Loud")
	require.NoError(t, err)
	assert.Equal(t, "Loud", named.Name)

	_, err = m.Duplicate(context.Background(), "missing", "")
	assert.ErrorIs(t, err, ErrPresetNotFound)
}

func testExportImportRoundTrip(t *testing.T) {
	src, _, _ := newTestManager(t)
	data, err := src.Export()
	require.NoError(t, err)

	var doc Export
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "1.0", doc.Version)
	assert.Equal(t, "2024-06-01T12:00:00.000Z", doc.ExportedAt)
	assert.Len(t, doc.Presets, 3)

	dst, err := NewManager(context.Background(), NewMemoryStore(), clock.NewManual(testEpoch), zerolog.Nop())
	require.NoError(t, err)
	for _, p := range dst.List() {
		require.NoError(t, dst.Delete(context.Background(), p.ID))
	}

	result, err := dst.Import(context.Background(), data, false)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Imported)
	assert.Zero(t, result.Skipped)
	assert.Empty(t, result.Errors)

	for _, p := range dst.List() {
		orig := src.Search(p.Name)[0]
		assert.Equal(t, orig.Configuration, p.Configuration)
	}

	only, err := src.Export(doc.Presets[0].ID, "missing")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(only, &doc))
	assert.Len(t, doc.Presets, 1)
}

func testImportSkipsAndOverwrites(t *testing.T) {
	m, clk, _ := newTestManager(t)
	ctx := context.Background()
	audio := m.ByType(control.SourceAudio)[0]

	data, err := m.Export(audio.ID)
	require.NoError(t, err)

	result, err := m.Import(ctx, data, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Imported)

	clk.Advance(time.Hour)
	result, err = m.Import(ctx, data, true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)

	assert.Len(t, m.List(), 3)
	reloaded, err := m.Load(audio.ID)
	require.NoError(t, err)
	assert.Equal(t, testEpoch.Add(time.Hour), reloaded.UpdatedAt)
	assert.Equal(t, audio.CreatedAt.Unix(), reloaded.CreatedAt.Unix())
}

func testImportReportsInvalidEntries(t *testing.T) {
	m, _, _ := newTestManager(t)
	doc := `{"presets":[
		{"name":"Fine","configuration":{"type":"audio","parameters":{"opacity":{"source":"audio","audioMapping":{"feature":"rms","scaling":1}}}}},
		{"name":"Bad type","configuration":{"type":"osc","parameters":{}}},
		{"configuration":{"type":"midi","parameters":{}}},
		"not an object"
	]}`

	result, err := m.Import(context.Background(), []byte(doc), false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	require.Len(t, result.Errors, 3)
	assert.Equal(t, "Invalid preset: Bad type", result.Errors[0])
	assert.Equal(t, "Invalid preset: Unknown", result.Errors[1])
	assert.Len(t, m.List(), 4)
}

func testImportRejectsBadDocument(t *testing.T) {
	m, _, _ := newTestManager(t)

	result, err := m.Import(context.Background(), []byte("{"), false)
	assert.ErrorIs(t, err, ErrInvalidExport)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "JSON parse error")

	result, err = m.Import(context.Background(), []byte(`{"version":"1.0"}`), false)
	assert.ErrorIs(t, err, ErrInvalidExport)
	assert.Equal(t, []string{"Invalid preset data format"}, result.Errors)
}

func testStats(t *testing.T) {
	m, clk, _ := newTestManager(t)
	clk.Advance(time.Second)
	latest, err := m.Save(context.Background(), "Latest", midiConfig(4), "")
	require.NoError(t, err)

	stats := m.Stats()
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.ByType[control.SourceMIDI])
	assert.Equal(t, 1, stats.ByType[control.SourceAudio])
	assert.Equal(t, 1, stats.ByType[control.SourceHybrid])
	assert.Len(t, stats.RecentlyUsed, 4)
	require.NotNil(t, stats.Newest)
	assert.Equal(t, latest.ID, stats.Newest.ID)
	require.NotNil(t, stats.Oldest)
}

func testApply(t *testing.T) {
	m, _, _ := newTestManager(t)
	hybrid := m.ByType(control.SourceHybrid)[0]

	target := &recordingTarget{}
	applied, err := m.Apply(hybrid.ID, target)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	assert.Equal(t, []control.Parameter{control.GlobalScale, control.ColorIntensity}, target.applied)

	partial := &recordingTarget{reject: control.GlobalScale}
	applied, err = m.Apply(hybrid.ID, partial)
	assert.Error(t, err)
	assert.Equal(t, 1, applied)

	_, err = m.Apply("missing", target)
	assert.ErrorIs(t, err, ErrPresetNotFound)
}

func testPersistFailureKeepsChange(t *testing.T) {
	store := &failingStore{}
	m, err := NewManager(context.Background(), store, clock.NewManual(testEpoch), zerolog.Nop())
	require.NoError(t, err)

	store.saveErr = errors.New("disk full")
	p, err := m.Save(context.Background(), "Unsaved", midiConfig(1), "")
	assert.Error(t, err)
	_, loadErr := m.Load(p.ID)
	assert.NoError(t, loadErr)
}

func testDispose(t *testing.T) {
	m, _, store := newTestManager(t)
	require.NoError(t, m.Dispose(context.Background()))
	assert.Empty(t, m.List())

	stored, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "presets.yaml")
	store := NewFileStore(path)
	ctx := context.Background()

	_, err := store.LoadAll(ctx)
	assert.ErrorIs(t, err, ErrNotStored)

	m, err := NewManager(ctx, store, clock.NewManual(testEpoch), zerolog.Nop())
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)

	reopened, err := NewManager(ctx, NewFileStore(path), clock.NewManual(testEpoch), zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, reopened.List(), 3)
	for i, p := range reopened.List() {
		orig := m.List()[i]
		assert.Equal(t, orig.ID, p.ID)
		assert.Equal(t, orig.Configuration, p.Configuration)
		assert.True(t, orig.UpdatedAt.Equal(p.UpdatedAt))
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	require.NoError(t, os.WriteFile(path, []byte("presets: [:"), 0o644))
	_, err = NewManager(ctx, NewFileStore(path), nil, zerolog.Nop())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotStored)
}

func TestRedisStoreUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := NewRedisStore(ctx, "127.0.0.1:1", "")
	assert.Error(t, err)
}
