package midiin

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rheome-dev/Phonoglyph-sub001/internal/clock"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/control"
	"github.com/rs/zerolog"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

const (
	// DefaultTempo is used until SetTempo is called
	DefaultTempo = 120.0

	ccAllSoundOff = 120
	ccAllNotesOff = 123
)

var (
	ErrNoPort         = errors.New("no midi input port")
	ErrAlreadyRunning = errors.New("midi input already listening")
)

type noteKey struct {
	channel uint8
	note    uint8
}

type ccKey struct {
	channel    uint8
	controller uint8
}

// Tracker turns a live MIDI stream into control.MIDISnapshot values. Song
// position advances with the clock at the current tempo while playing.
type Tracker struct {
	mu     sync.Mutex
	clock  clock.Clock
	logger zerolog.Logger

	notes       map[noteKey]uint8
	noteOrder   []noteKey
	controllers map[ccKey]uint8

	tempo    float64
	position float64 // beats at anchor
	anchor   time.Time
	playing  bool

	port     drivers.In
	stopFn   func()
	onUpdate func(control.MIDISnapshot)

	messages uint64
}

// NewTracker creates a stopped tracker at position zero.
func NewTracker(clk clock.Clock, logger zerolog.Logger) *Tracker {
	if clk == nil {
		clk = clock.System()
	}
	return &Tracker{
		clock:       clk,
		logger:      logger.With().Str("component", "midi-input").Logger(),
		notes:       make(map[noteKey]uint8),
		controllers: make(map[ccKey]uint8),
		tempo:       DefaultTempo,
		anchor:      clk.Now(),
	}
}

// OnUpdate registers fn to receive a snapshot after every handled message.
func (t *Tracker) OnUpdate(fn func(control.MIDISnapshot)) {
	t.mu.Lock()
	t.onUpdate = fn
	t.mu.Unlock()
}

// HandleMessage applies one MIDI message and reports whether it was a note or
// controller message the tracker keeps.
func (t *Tracker) HandleMessage(msg midi.Message) bool {
	var ch, key, vel, cc, val uint8

	t.mu.Lock()
	kind := ""
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		kind = "note_on"
		k := noteKey{channel: ch, note: key}
		if _, sounding := t.notes[k]; !sounding {
			t.noteOrder = append(t.noteOrder, k)
		}
		t.notes[k] = vel
	case msg.GetNoteEnd(&ch, &key):
		kind = "note_off"
		t.releaseLocked(noteKey{channel: ch, note: key})
	case msg.GetControlChange(&ch, &cc, &val):
		kind = "control_change"
		t.controllers[ccKey{channel: ch, controller: cc}] = val
		if cc == ccAllNotesOff || cc == ccAllSoundOff {
			t.releaseChannelLocked(ch)
		}
	}
	if kind != "" {
		t.messages++
		midiActiveNotes.Set(float64(len(t.notes)))
	}
	hook := t.onUpdate
	t.mu.Unlock()

	if kind == "" {
		midiMessagesTotal.WithLabelValues("other").Inc()
		t.logger.Trace().Str("msg", msg.String()).Msg("unhandled midi message")
		return false
	}
	midiMessagesTotal.WithLabelValues(kind).Inc()
	if hook != nil {
		hook(t.Snapshot())
	}
	return true
}

func (t *Tracker) releaseLocked(k noteKey) {
	if _, ok := t.notes[k]; !ok {
		return
	}
	delete(t.notes, k)
	for i, o := range t.noteOrder {
		if o == k {
			t.noteOrder = append(t.noteOrder[:i:i], t.noteOrder[i+1:]...)
			break
		}
	}
}

func (t *Tracker) releaseChannelLocked(ch uint8) {
	kept := t.noteOrder[:0]
	for _, k := range t.noteOrder {
		if k.channel == ch {
			delete(t.notes, k)
			continue
		}
		kept = append(kept, k)
	}
	t.noteOrder = kept
}

// SetTempo changes the tempo without moving the current position.
func (t *Tracker) SetTempo(bpm float64) error {
	if bpm <= 0 || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return fmt.Errorf("invalid tempo %v", bpm)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reanchorLocked()
	t.tempo = bpm
	return nil
}

// Play starts advancing the song position
func (t *Tracker) Play() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.playing {
		return
	}
	t.anchor = t.clock.Now()
	t.playing = true
}

// Pause freezes the song position
func (t *Tracker) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reanchorLocked()
	t.playing = false
}

// Seek moves the song position to beats.
func (t *Tracker) Seek(beats float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.position = beats
	t.anchor = t.clock.Now()
}

func (t *Tracker) reanchorLocked() {
	now := t.clock.Now()
	t.position = t.positionAtLocked(now)
	t.anchor = now
}

func (t *Tracker) positionAtLocked(now time.Time) float64 {
	if !t.playing {
		return t.position
	}
	return t.position + clock.Seconds(now.Sub(t.anchor))*t.tempo/60
}

// Position returns the current song position in beats
func (t *Tracker) Position() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.positionAtLocked(t.clock.Now())
}

// Snapshot returns the current notes, controllers, position and tempo.
// Notes are listed in onset order; controllers by channel then number.
func (t *Tracker) Snapshot() control.MIDISnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := control.MIDISnapshot{
		ActiveNotes: make([]control.ActiveNote, 0, len(t.noteOrder)),
		Controllers: make([]control.ControllerValue, 0, len(t.controllers)),
		CurrentTime: t.positionAtLocked(t.clock.Now()),
		Tempo:       t.tempo,
	}
	for _, k := range t.noteOrder {
		snap.ActiveNotes = append(snap.ActiveNotes, control.ActiveNote{
			Note:     k.note,
			Velocity: t.notes[k],
			Channel:  control.Uint8(k.channel),
		})
	}
	for k, v := range t.controllers {
		snap.Controllers = append(snap.Controllers, control.ControllerValue{
			Channel:    k.channel,
			Controller: k.controller,
			Value:      v,
		})
	}
	sort.Slice(snap.Controllers, func(i, j int) bool {
		a, b := snap.Controllers[i], snap.Controllers[j]
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		return a.Controller < b.Controller
	})
	return snap
}

// Listen attaches the tracker to an input port, opening it when needed.
func (t *Tracker) Listen(in drivers.In) error {
	if in == nil {
		return ErrNoPort
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopFn != nil {
		return ErrAlreadyRunning
	}

	if !in.IsOpen() {
		if err := in.Open(); err != nil {
			return fmt.Errorf("open %q: %w", in.String(), err)
		}
	}

	name := in.String()
	stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		t.HandleMessage(msg)
	}, midi.HandleError(func(listenErr error) {
		t.logger.Warn().Err(listenErr).Str("device", name).Msg("midi listener error")
	}))
	if err != nil {
		_ = in.Close()
		return fmt.Errorf("listen %q: %w", name, err)
	}

	t.port = in
	t.stopFn = stop
	t.logger.Info().Str("device", name).Msg("midi input connected")
	return nil
}

// ListenByName finds an input port by name through the registered gomidi driver and listens to it.
func (t *Tracker) ListenByName(name string) error {
	in, err := midi.FindInPort(name)
	if err != nil {
		return fmt.Errorf("find midi input %q: %w", name, err)
	}
	return t.Listen(in)
}

// Close stops listening and closes the port
func (t *Tracker) Close() error {
	t.mu.Lock()
	stop := t.stopFn
	port := t.port
	t.stopFn = nil
	t.port = nil
	t.mu.Unlock()

	if stop != nil {
		stop()
	}
	if port != nil {
		if err := port.Close(); err != nil {
			return fmt.Errorf("close midi input: %w", err)
		}
		t.logger.Info().Str("device", port.String()).Msg("midi input closed")
	}
	return nil
}

// MessageCount returns how many messages changed tracker state
func (t *Tracker) MessageCount() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.messages
}
