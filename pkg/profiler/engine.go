package profiler

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/yandex/lineprof/pkg/xlog"
)

// ErrInvalidState is returned once the engine has observed an event sequence
// that violates the host contract (e.g. a return with no tracked frame, or a
// line number outside the registered function body). The fault is terminal:
// every subsequent ProcessEvent call fails with this error.
var ErrInvalidState = errors.New("profiler: engine is in an invalid state")

////////////////////////////////////////////////////////////////////////////////

// Engine converts the host's serialized execution-event stream into
// per-function and per-line time attribution.
//
// Single-writer contract: the host delivers events one at a time and never
// re-enters ProcessEvent; the engine performs no locking on the event path.
// Snapshot and Dump must not overlap event delivery — stop delivery first.
type Engine struct {
	source   EventSource
	locator  SourceLocator
	resolver NameResolver

	log     xlog.Logger
	metrics *engineMetrics
	fs      afero.Fs
	now     func() time.Time

	sessionID uuid.UUID

	// Functions are arena-allocated: each first-seen CodeID is assigned a
	// dense index, and all later lookups go through that index rather than
	// the opaque host handle.
	codeIndex map[CodeID]int
	functions []*Function
	natives   map[string]*BaseFunction

	frames []*frameState

	lastKind      EventKind
	intervalStart time.Time
	intervalEnd   time.Time

	// Name of the most recently entered native callable. A single slot:
	// reentrant native calls before the matching return may be misattributed.
	pendingNative string

	eventCount uint64
	started    bool
	failed     bool
}

type Option func(*Engine)

// WithClock overrides the monotonic timestamp source. Used by trace replay
// and tests to make attribution deterministic.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(log xlog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func WithMetrics(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.metrics = newEngineMetrics(reg) }
}

func WithNameResolver(resolver NameResolver) Option {
	return func(e *Engine) { e.resolver = resolver }
}

// WithFilesystem overrides the filesystem Dump writes through.
func WithFilesystem(fs afero.Fs) Option {
	return func(e *Engine) { e.fs = fs }
}

func New(source EventSource, locator SourceLocator, opts ...Option) (*Engine, error) {
	if locator == nil {
		return nil, errors.New("profiler: source locator is required")
	}

	sessionID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("profiler: failed to generate session id: %w", err)
	}

	e := &Engine{
		source:    source,
		locator:   locator,
		resolver:  QualifiedNameResolver(),
		log:       xlog.NewNop(),
		fs:        afero.NewOsFs(),
		now:       time.Now,
		sessionID: sessionID,
		codeIndex: make(map[CodeID]int),
		natives:   make(map[string]*BaseFunction),
		lastKind:  KindInvalid,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = newEngineMetrics(nil)
	}
	e.log = e.log.WithName("engine").With(zap.Stringer("session", e.sessionID))
	return e, nil
}

func (e *Engine) SessionID() uuid.UUID { return e.sessionID }

////////////////////////////////////////////////////////////////////////////////

// Start attaches the engine to its event source and arms the timing state
// machine with the synthetic origin event. Idempotent.
func (e *Engine) Start() error {
	if e.started {
		return nil
	}
	if e.failed {
		return ErrInvalidState
	}

	e.lastKind = KindOrigin
	now := e.now()
	e.intervalStart = now
	e.intervalEnd = now

	if e.source != nil {
		if err := e.source.Attach(e); err != nil {
			return fmt.Errorf("profiler: failed to attach event source: %w", err)
		}
	}
	e.started = true
	e.log.Info("Profiling started")
	return nil
}

// Stop detaches the engine from its event source. Idempotent. Accumulated
// totals are kept; profiling may be resumed with Start.
func (e *Engine) Stop() error {
	if !e.started {
		return nil
	}
	if e.source != nil {
		if err := e.source.Detach(); err != nil {
			return fmt.Errorf("profiler: failed to detach event source: %w", err)
		}
	}
	e.started = false
	e.log.Info("Profiling stopped", zap.Uint64("events", e.eventCount))
	return nil
}

////////////////////////////////////////////////////////////////////////////////

// ProcessEvent advances the timing state machine by one host event.
//
// Timestamps mark event boundaries, not durations: the elapsed time since
// the previous event is attributed according to what was happening before
// this event, then the new event updates registries and the frame stack,
// and only then is the interval start re-armed so that the engine's own
// bookkeeping stays out of profiled time.
func (e *Engine) ProcessEvent(ev Event) error {
	if e.failed {
		return ErrInvalidState
	}
	e.intervalEnd = e.now()
	e.eventCount++
	e.metrics.events.WithLabelValues(ev.Kind.String()).Inc()

	if err := e.closeInterval(); err != nil {
		e.fail(err)
		return err
	}
	if err := e.openEvent(ev); err != nil {
		return err
	}

	e.intervalStart = e.now()
	return nil
}

func (e *Engine) elapsed() time.Duration {
	return e.intervalEnd.Sub(e.intervalStart)
}

// closeInterval attributes the window bounded by the previous event and the
// one being processed, dispatching on the previous event's kind.
func (e *Engine) closeInterval() error {
	elapsed := e.elapsed()

	switch e.lastKind {
	case KindOrigin:
		// No prior window to attribute.

	case KindLine:
		if top := e.top(); top != nil && top.lineSeen {
			top.currentLine().addInternal(elapsed)
		}

	case KindCall:
		// Entry overhead is charged to the callee, which is on top of the
		// stack since the call event pushed it.
		top := e.top()
		if top == nil {
			return fmt.Errorf("%w: call window closed with empty frame stack", ErrInvalidState)
		}
		e.functions[top.fnIndex].addInternal(elapsed)

	case KindReturn:
		// The frame outlives its return event by exactly one interval so
		// that the trailing time between leaving the function and resuming
		// the caller lands on the completed frame.
		top := e.top()
		if top == nil {
			return fmt.Errorf("%w: return event with empty frame stack", ErrInvalidState)
		}
		top.addInternal(elapsed)
		e.popFrame()

	case KindNativeCall:
		if native := e.natives[e.pendingNative]; native != nil {
			native.addInternal(elapsed)
		}
		if top := e.top(); top != nil && top.lineSeen {
			top.currentLine().addExternal(elapsed)
		}

	case KindNativeReturn:
		top := e.top()
		if top == nil {
			return fmt.Errorf("%w: native return event with empty frame stack", ErrInvalidState)
		}
		top.addInternal(elapsed)

	case KindException, KindNativeException:
		// Explicitly unattributed; the time merges into the next window.

	case KindInvalid:
		// Event delivered before Start. Nothing to attribute.

	default:
		return fmt.Errorf("%w: unknown previous event kind %d", ErrInvalidState, e.lastKind)
	}
	return nil
}

// openEvent updates registries and the frame stack for the new event and
// records its kind for the next interval close.
func (e *Engine) openEvent(ev Event) error {
	switch ev.Kind {
	case KindLine:
		e.lastKind = KindLine
		top := e.top()
		if top == nil {
			// Profiling was enabled mid-call or the event precedes any
			// tracked frame.
			e.metrics.ignoredEvents.Inc()
			return nil
		}
		line, ok := top.setCurrentLine(ev.Line)
		if !ok {
			err := fmt.Errorf("%w: line %d outside body of function %#x",
				ErrInvalidState, ev.Line, uint64(top.code))
			e.fail(err)
			return err
		}
		line.addCall()

	case KindCall:
		fn, idx, err := e.addFunction(ev.Code)
		if err != nil {
			// Fatal for this registration only. The window that follows is
			// left unattributed and the session continues.
			e.lastKind = KindOrigin
			return fmt.Errorf("profiler: failed to register function %#x: %w", uint64(ev.Code), err)
		}
		fn.addCall()
		e.frames = append(e.frames, newFrameState(ev.Code, idx, fn))
		e.metrics.stackDepth.Set(float64(len(e.frames)))
		e.lastKind = KindCall

	case KindReturn:
		// The pop is deferred to the next interval close.
		e.lastKind = KindReturn

	case KindNativeCall:
		name, err := e.resolver.ResolveName(ev.Native)
		if err != nil {
			e.lastKind = KindOrigin
			return fmt.Errorf("profiler: failed to resolve native callable: %w", err)
		}
		e.addNative(name).addCall()
		e.pendingNative = name
		e.lastKind = KindNativeCall

	case KindNativeReturn:
		e.lastKind = KindNativeReturn

	case KindException:
		e.lastKind = KindException

	case KindNativeException:
		e.lastKind = KindNativeException

	case KindOrigin:
		e.lastKind = KindOrigin

	default:
		err := fmt.Errorf("%w: unknown event kind %d", ErrInvalidState, ev.Kind)
		e.fail(err)
		return err
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////

func (e *Engine) top() *frameState {
	if len(e.frames) == 0 {
		return nil
	}
	return e.frames[len(e.frames)-1]
}

// popFrame folds the finished activation into its Function and charges its
// total line time as external time to the caller's current line. This is
// how nested call cost propagates upward without re-walking the stack.
func (e *Engine) popFrame() {
	top := e.frames[len(e.frames)-1]
	fn := e.functions[top.fnIndex]

	// A function's internal time is its lines' self time plus the entry/exit
	// overhead windows accumulated on the activation itself.
	fn.addInternal(top.internal)
	for i := range top.lines {
		fn.lines[i].LineState.merge(&top.lines[i])
		fn.addInternal(top.lines[i].internal)
	}
	total := top.totalTime()

	e.frames = e.frames[:len(e.frames)-1]
	e.metrics.stackDepth.Set(float64(len(e.frames)))

	if caller := e.top(); caller != nil && caller.lineSeen {
		caller.currentLine().addExternal(total)
	}
}

func (e *Engine) addFunction(code CodeID) (*Function, int, error) {
	if idx, ok := e.codeIndex[code]; ok {
		return e.functions[idx], idx, nil
	}
	src, err := e.locator.Locate(code)
	if err != nil {
		return nil, 0, err
	}
	fn := newFunction(code, src)
	idx := len(e.functions)
	e.functions = append(e.functions, fn)
	e.codeIndex[code] = idx
	e.metrics.functions.Inc()
	e.log.Debug("Registered function",
		zap.String("name", src.Name),
		zap.Uint64("code", uint64(code)),
		zap.Int("lines", len(src.Lines)))
	return fn, idx, nil
}

func (e *Engine) addNative(name string) *BaseFunction {
	if native, ok := e.natives[name]; ok {
		return native
	}
	native := newBaseFunction(name)
	e.natives[name] = native
	e.metrics.nativeFunctions.Inc()
	e.log.Debug("Registered native callable", zap.String("name", name))
	return native
}

func (e *Engine) fail(err error) {
	e.failed = true
	e.log.Error("Engine entered invalid state", zap.Error(err))
}
