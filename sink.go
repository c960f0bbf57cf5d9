package phonoglyph

import (
	"sort"
	"sync"

	"github.com/rheome-dev/Phonoglyph-sub001/internal/control"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/events"
)

// valueSink is the renderer-facing end of the controller: it remembers the
// last value of every parameter and pushes each change to event subscribers.
type valueSink struct {
	mu          sync.RWMutex
	values      map[control.Parameter]float64
	broadcaster *events.Broadcaster
}

func newValueSink(broadcaster *events.Broadcaster) *valueSink {
	return &valueSink{
		values:      make(map[control.Parameter]float64),
		broadcaster: broadcaster,
	}
}

func (s *valueSink) set(p control.Parameter, v float64) {
	s.mu.Lock()
	s.values[p] = v
	s.mu.Unlock()

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(events.EnvelopeParameterValue, events.ParameterValueData{
			Parameter: string(p),
			Value:     v,
		})
	}
}

// Sink adapts the value sink to the controller's dispatch interface.
func (s *valueSink) Sink() control.Sink {
	return control.SinkFunc(s.set)
}

// Values returns the last dispatched value per parameter.
func (s *valueSink) Values() map[control.Parameter]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[control.Parameter]float64, len(s.values))
	for p, v := range s.values {
		out[p] = v
	}
	return out
}

// snapshot lists the values in parameter name order for initial state pushes.
func (s *valueSink) snapshot() []events.ParameterValueData {
	values := s.Values()
	out := make([]events.ParameterValueData, 0, len(values))
	for p, v := range values {
		out = append(out, events.ParameterValueData{Parameter: string(p), Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Parameter < out[j].Parameter })
	return out
}
