package profiler

import "time"

// frameState is one live activation on the call stack. It accumulates
// per-line counters scoped to this single activation; on pop they are
// folded into the owning Function.
type frameState struct {
	code      CodeID
	fnIndex   int
	startLine int

	// curLine indexes lines and is meaningless until lineSeen is set by
	// the first line event observed for this activation.
	curLine  int
	lineSeen bool

	lines    []LineState
	internal time.Duration
}

func newFrameState(code CodeID, fnIndex int, fn *Function) *frameState {
	return &frameState{
		code:      code,
		fnIndex:   fnIndex,
		startLine: fn.startLine,
		lines:     make([]LineState, len(fn.lines)),
	}
}

// setCurrentLine moves the current-line pointer to the absolute source line
// number reported by the host. Returns false when the number falls outside
// the function body.
func (f *frameState) setCurrentLine(line int) (*LineState, bool) {
	idx := line - f.startLine
	if idx < 0 || idx >= len(f.lines) {
		return nil, false
	}
	f.curLine = idx
	f.lineSeen = true
	return &f.lines[idx], true
}

func (f *frameState) currentLine() *LineState {
	return &f.lines[f.curLine]
}

func (f *frameState) addInternal(dur time.Duration) {
	f.internal += dur
}

// totalTime is the frame's full cost as seen by its caller: the sum of
// internal and external time over all lines. The per-activation internal
// accumulator is deliberately excluded; it is entry/exit overhead charged
// to the function itself, not to any line.
func (f *frameState) totalTime() time.Duration {
	var total time.Duration
	for i := range f.lines {
		total += f.lines[i].internal
		total += f.lines[i].external
	}
	return total
}
