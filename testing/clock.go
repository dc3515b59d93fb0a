package testing

import (
	"sync"

	"github.com/arloliu/pulse/timesource"
)

// ScriptedSource is a timesource.Source that replays a fixed sequence of
// timestamps, enabling deterministic beat timing in tests without sleeps.
//
// Once the sequence is exhausted, the last timestamp repeats.
type ScriptedSource struct {
	mu    sync.Mutex
	times []int64
	next  int
}

var _ timesource.Source = (*ScriptedSource)(nil)

// NewScriptedSource creates a source replaying the given timestamps in order.
func NewScriptedSource(times ...int64) *ScriptedSource {
	return &ScriptedSource{times: times}
}

// Now returns the next scripted timestamp.
func (s *ScriptedSource) Now() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.times) == 0 {
		return 0, nil
	}
	if s.next >= len(s.times) {
		return s.times[len(s.times)-1], nil
	}

	now := s.times[s.next]
	s.next++

	return now, nil
}

// Append extends the scripted sequence.
func (s *ScriptedSource) Append(times ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.times = append(s.times, times...)
}
