package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLineStateMerge(t *testing.T) {
	var dst, src LineState
	dst.addCall()
	dst.addInternal(100 * time.Nanosecond)
	dst.addExternal(50 * time.Nanosecond)

	src.addCall()
	src.addCall()
	src.addInternal(time.Microsecond)
	src.addExternal(2 * time.Microsecond)

	dst.merge(&src)
	require.Equal(t, uint64(3), dst.NCalls())
	require.Equal(t, 1100*time.Nanosecond, dst.Internal())
	require.Equal(t, 2050*time.Nanosecond, dst.External())
}

func TestNewFunctionSizesLines(t *testing.T) {
	fn := newFunction(7, FunctionSource{
		Name:      "f",
		StartLine: 42,
		Lines:     []string{"x = 1", "return x"},
	})

	require.Equal(t, CodeID(7), fn.Code())
	require.Equal(t, 42, fn.StartLine())
	require.Equal(t, 2, fn.NLines())
	require.Equal(t, "x = 1", fn.Lines()[0].Text())
	require.Equal(t, "return x", fn.Lines()[1].Text())
}

func TestFrameStateLineMapping(t *testing.T) {
	fn := newFunction(1, FunctionSource{
		Name:      "f",
		StartLine: 10,
		Lines:     []string{"l10", "l11", "l12"},
	})
	frame := newFrameState(1, 0, fn)

	for _, tc := range []struct {
		line int
		idx  int
		ok   bool
	}{
		{line: 10, idx: 0, ok: true},
		{line: 12, idx: 2, ok: true},
		{line: 9, ok: false},
		{line: 13, ok: false},
	} {
		state, ok := frame.setCurrentLine(tc.line)
		require.Equal(t, tc.ok, ok, "line %d", tc.line)
		if ok {
			require.Same(t, &frame.lines[tc.idx], state)
			require.Equal(t, tc.idx, frame.curLine)
		}
	}
}

func TestFrameStateTotalTime(t *testing.T) {
	fn := newFunction(1, FunctionSource{Name: "f", StartLine: 1, Lines: []string{"a", "b"}})
	frame := newFrameState(1, 0, fn)

	frame.lines[0].addInternal(time.Millisecond)
	frame.lines[0].addExternal(2 * time.Millisecond)
	frame.lines[1].addInternal(3 * time.Millisecond)

	// Entry/exit overhead is not part of the time a caller waits for.
	frame.addInternal(time.Second)

	require.Equal(t, 6*time.Millisecond, frame.totalTime())
}
