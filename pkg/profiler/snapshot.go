package profiler

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// LineStats is the exported view of one source line.
type LineStats struct {
	LineStr    string `json:"line_str"`
	NCalls     uint64 `json:"n_calls"`
	InternalNS int64  `json:"internal_ns"`
	ExternalNS int64  `json:"external_ns"`
}

// CallableStats is the exported view of a native callable.
type CallableStats struct {
	Name       string `json:"name"`
	NCalls     uint64 `json:"n_calls"`
	InternalNS int64  `json:"internal_ns"`
}

// FunctionStats is the exported view of a scripted function.
type FunctionStats struct {
	Name       string      `json:"name"`
	NCalls     uint64      `json:"n_calls"`
	InternalNS int64       `json:"internal_ns"`
	StartLine  int         `json:"start_line"`
	Lines      []LineStats `json:"lines"`
}

// Snapshot is an immutable point-in-time view of the registries. Functions
// are keyed by the opaque compiled-code identity re-exposed as a numeric
// key, so callers can cross-reference against the source locator. Taking a
// snapshot clears nothing; profiling may continue afterwards.
type Snapshot struct {
	SessionID  string                    `json:"session_id"`
	Events     uint64                    `json:"n_events"`
	Functions  map[CodeID]*FunctionStats `json:"functions"`
	CFunctions map[string]*CallableStats `json:"c_functions"`
}

////////////////////////////////////////////////////////////////////////////////

// Snapshot captures the current totals. Must not overlap event delivery;
// stop delivery first (see the Engine concurrency contract).
func (e *Engine) Snapshot() *Snapshot {
	snap := &Snapshot{
		SessionID:  e.sessionID.String(),
		Events:     e.eventCount,
		Functions:  make(map[CodeID]*FunctionStats, len(e.functions)),
		CFunctions: make(map[string]*CallableStats, len(e.natives)),
	}

	for code, idx := range e.codeIndex {
		fn := e.functions[idx]
		stats := &FunctionStats{
			Name:       fn.name,
			NCalls:     fn.nCalls,
			InternalNS: fn.internal.Nanoseconds(),
			StartLine:  fn.startLine,
			Lines:      make([]LineStats, len(fn.lines)),
		}
		for i := range fn.lines {
			line := &fn.lines[i]
			stats.Lines[i] = LineStats{
				LineStr:    line.text,
				NCalls:     line.nCalls,
				InternalNS: line.internal.Nanoseconds(),
				ExternalNS: line.external.Nanoseconds(),
			}
		}
		snap.Functions[code] = stats
	}

	for name, native := range e.natives {
		snap.CFunctions[name] = &CallableStats{
			Name:       native.name,
			NCalls:     native.nCalls,
			InternalNS: native.internal.Nanoseconds(),
		}
	}
	return snap
}

// Dump returns a snapshot and, when dest is non-empty, also writes its JSON
// form there. The destination is compatibility surface; the returned
// snapshot is the authoritative output either way.
func (e *Engine) Dump(dest string) (*Snapshot, error) {
	snap := e.Snapshot()
	if dest == "" {
		return snap, nil
	}
	if err := snap.WriteFile(e.fs, dest); err != nil {
		return snap, err
	}
	e.log.Info("Dumped snapshot", zap.String("path", dest))
	return snap, nil
}

// WriteFile writes the snapshot as indented JSON. Destinations ending in
// .zst are compressed with zstd.
func (s *Snapshot) WriteFile(fs afero.Fs, path string) error {
	file, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("profiler: failed to create snapshot file: %w", err)
	}

	var w io.Writer = file
	var enc *zstd.Encoder
	if strings.HasSuffix(path, ".zst") {
		enc, err = zstd.NewWriter(file)
		if err != nil {
			file.Close()
			return fmt.Errorf("profiler: failed to create zstd writer: %w", err)
		}
		w = enc
	}

	if err := s.Encode(w); err != nil {
		file.Close()
		return err
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			file.Close()
			return fmt.Errorf("profiler: failed to flush zstd stream: %w", err)
		}
	}
	return file.Close()
}

// Encode writes the snapshot as indented JSON to w.
func (s *Snapshot) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("profiler: failed to encode snapshot: %w", err)
	}
	return nil
}
