package tracefmt

import (
	"errors"
	"fmt"

	"github.com/yandex/lineprof/pkg/profiler"
)

// Trace files are JSON Lines streams of two record types. A "func" record
// declares a compiled-code identity before any event references it, either
// embedding the source lines or pointing at a source file. An "event"
// record is one host execution event with a monotonic nanosecond timestamp;
// replaying the stream reproduces the recorded attribution exactly.
const (
	RecordFunc  = "func"
	RecordEvent = "event"
)

type Record struct {
	Type string `json:"type"`

	// Compiled-code identity, shared by both record types.
	Code uint64 `json:"code,omitempty"`

	// Func record fields. Either Lines is embedded, or File/NLines
	// reference an external source file starting at StartLine.
	Name      string   `json:"name,omitempty"`
	StartLine int      `json:"start_line,omitempty"`
	Lines     []string `json:"lines,omitempty"`
	File      string   `json:"file,omitempty"`
	NLines    int      `json:"n_lines,omitempty"`

	// Event record fields.
	TimeNS int64  `json:"ts_ns,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Line   int    `json:"line,omitempty"`
	Module string `json:"module,omitempty"`
	Func   string `json:"func,omitempty"`
}

var (
	ErrBadRecord = errors.New("tracefmt: malformed record")
)

func (r *Record) validate() error {
	switch r.Type {
	case RecordFunc:
		if r.Code == 0 {
			return fmt.Errorf("%w: func record without code", ErrBadRecord)
		}
		if len(r.Lines) == 0 && r.File == "" {
			return fmt.Errorf("%w: func record %q has neither lines nor file", ErrBadRecord, r.Name)
		}
		if r.File != "" && r.NLines <= 0 {
			return fmt.Errorf("%w: func record %q references %s without n_lines", ErrBadRecord, r.Name, r.File)
		}
	case RecordEvent:
		if _, ok := profiler.ParseEventKind(r.Kind); !ok {
			return fmt.Errorf("%w: unknown event kind %q", ErrBadRecord, r.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown record type %q", ErrBadRecord, r.Type)
	}
	return nil
}

// Event converts an event record into the engine's event form.
func (r *Record) Event() (profiler.Event, error) {
	kind, ok := profiler.ParseEventKind(r.Kind)
	if !ok {
		return profiler.Event{}, fmt.Errorf("%w: unknown event kind %q", ErrBadRecord, r.Kind)
	}
	return profiler.Event{
		Kind: kind,
		Code: profiler.CodeID(r.Code),
		Line: r.Line,
		Native: profiler.NativeRef{
			Module: r.Module,
			Name:   r.Func,
		},
	}, nil
}
