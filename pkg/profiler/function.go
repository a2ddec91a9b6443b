package profiler

import "time"

// BaseFunction is the record kept for native callables: a display name,
// a call count and cumulative internal time. No line granularity exists
// for native code.
type BaseFunction struct {
	name     string
	nCalls   uint64
	internal time.Duration
}

func newBaseFunction(name string) *BaseFunction {
	return &BaseFunction{name: name}
}

func (f *BaseFunction) Name() string            { return f.name }
func (f *BaseFunction) NCalls() uint64          { return f.nCalls }
func (f *BaseFunction) Internal() time.Duration { return f.internal }

func (f *BaseFunction) addCall()                      { f.nCalls++ }
func (f *BaseFunction) addInternal(dur time.Duration) { f.internal += dur }

////////////////////////////////////////////////////////////////////////////////

// FunctionSource is what the SourceLocator returns for a compiled-code
// identity: the display name, the 1-based line number of the first body
// line, and the body lines in order. A line number L reported by the host
// maps to index L-StartLine of Lines.
type FunctionSource struct {
	Name      string
	StartLine int
	Lines     []string
}

// Function is a scripted function tracked at line granularity. Created once
// per CodeID on the first observed call; the line array is sized from the
// located source and never resized afterwards.
type Function struct {
	BaseFunction
	code      CodeID
	startLine int
	lines     []LineRecord
}

func newFunction(code CodeID, src FunctionSource) *Function {
	fn := &Function{
		BaseFunction: BaseFunction{name: src.Name},
		code:         code,
		startLine:    src.StartLine,
		lines:        make([]LineRecord, len(src.Lines)),
	}
	for i, text := range src.Lines {
		fn.lines[i].text = text
	}
	return fn
}

func (f *Function) Code() CodeID   { return f.code }
func (f *Function) StartLine() int { return f.startLine }
func (f *Function) NLines() int    { return len(f.lines) }

func (f *Function) Lines() []LineRecord { return f.lines }
