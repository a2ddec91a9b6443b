package profiler

import "time"

// LineState holds the additive per-line counters: how many times execution
// reached the line, how long was spent on the line itself and how long was
// spent inside calls made from it.
type LineState struct {
	nCalls   uint64
	internal time.Duration
	external time.Duration
}

func (s *LineState) addCall()                      { s.nCalls++ }
func (s *LineState) addInternal(dur time.Duration) { s.internal += dur }
func (s *LineState) addExternal(dur time.Duration) { s.external += dur }

func (s *LineState) NCalls() uint64          { return s.nCalls }
func (s *LineState) Internal() time.Duration { return s.internal }
func (s *LineState) External() time.Duration { return s.external }

func (s *LineState) merge(rhs *LineState) {
	s.nCalls += rhs.nCalls
	s.internal += rhs.internal
	s.external += rhs.external
}

////////////////////////////////////////////////////////////////////////////////

// LineRecord is a LineState plus the immutable source text of the line.
// Function owns one LineRecord per body line for the engine's lifetime.
type LineRecord struct {
	LineState
	text string
}

func (r *LineRecord) Text() string { return r.text }
