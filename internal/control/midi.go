package control

// ActiveNote is a sounding note. Channel is nil when the producer does not track it.
type ActiveNote struct {
	Note     uint8  `json:"note"`
	Velocity uint8  `json:"velocity"`
	Channel  *uint8 `json:"channel,omitempty"`
}

// ControllerValue is the last value seen for a controller on a channel
type ControllerValue struct {
	Channel    uint8 `json:"channel"`
	Controller uint8 `json:"controller"`
	Value      uint8 `json:"value"`
}

// MIDISnapshot is the symbolic-domain input frame. CurrentTime is the song
// position in beats; Tempo is in BPM.
type MIDISnapshot struct {
	ActiveNotes []ActiveNote      `json:"activeNotes"`
	Controllers []ControllerValue `json:"controllers,omitempty"`
	CurrentTime float64           `json:"currentTime"`
	Tempo       float64           `json:"tempo"`
}

// ControllerValue returns the value of cc on channel, if one has been seen.
func (s MIDISnapshot) ControllerValue(channel, cc uint8) (uint8, bool) {
	for _, c := range s.Controllers {
		if c.Channel == channel && c.Controller == cc {
			return c.Value, true
		}
	}
	return 0, false
}

// NoteVelocity returns the velocity of the first active note matching note.
// The channel is not considered.
func (s MIDISnapshot) NoteVelocity(note uint8) (uint8, bool) {
	for _, n := range s.ActiveNotes {
		if n.Note == note {
			return n.Velocity, true
		}
	}
	return 0, false
}

// StrongestNote returns the active note with the highest velocity; ties keep the earliest.
func (s MIDISnapshot) StrongestNote() (ActiveNote, bool) {
	if len(s.ActiveNotes) == 0 {
		return ActiveNote{}, false
	}
	strongest := s.ActiveNotes[0]
	for _, n := range s.ActiveNotes[1:] {
		if n.Velocity > strongest.Velocity {
			strongest = n
		}
	}
	return strongest, true
}

func (s MIDISnapshot) clone() MIDISnapshot {
	out := s
	out.ActiveNotes = make([]ActiveNote, len(s.ActiveNotes))
	for i, n := range s.ActiveNotes {
		n.Channel = cloneUint8(n.Channel)
		out.ActiveNotes[i] = n
	}
	out.Controllers = append([]ControllerValue(nil), s.Controllers...)
	return out
}
