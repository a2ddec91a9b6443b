package profiler

// CodeID is the host-supplied, process-stable handle identifying one
// distinct compiled function body. Two activations of the same body share
// the same CodeID; the host must never reuse a CodeID for a different body
// within the engine's lifetime.
type CodeID uint64

// NativeRef describes a native callable the host cannot instrument at line
// granularity. It is resolved to a display name by the NameResolver.
type NativeRef struct {
	Module string
	Name   string
}

////////////////////////////////////////////////////////////////////////////////

type EventKind uint8

const (
	KindOrigin EventKind = iota
	KindLine
	KindCall
	KindReturn
	KindException
	KindNativeCall
	KindNativeReturn
	KindNativeException
	KindInvalid
)

var eventKindNames = [...]string{
	KindOrigin:          "origin",
	KindLine:            "line",
	KindCall:            "call",
	KindReturn:          "return",
	KindException:       "exception",
	KindNativeCall:      "c_call",
	KindNativeReturn:    "c_return",
	KindNativeException: "c_exception",
	KindInvalid:         "invalid",
}

func (k EventKind) String() string {
	if int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "invalid"
}

// ParseEventKind is the inverse of EventKind.String.
func ParseEventKind(s string) (EventKind, bool) {
	for k, name := range eventKindNames {
		if name == s {
			return EventKind(k), true
		}
	}
	return KindInvalid, false
}

////////////////////////////////////////////////////////////////////////////////

// Event is one record of the host's execution-event stream.
// Code identifies the function body the host is currently executing.
// Line is set for KindLine events only and is an absolute 1-based source
// line number. Native is set for KindNativeCall events only.
type Event struct {
	Kind   EventKind
	Code   CodeID
	Line   int
	Native NativeRef
}
