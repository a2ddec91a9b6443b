package pprofexport

import (
	"fmt"
	"io"
	"sort"

	"github.com/google/pprof/profile"

	"github.com/yandex/lineprof/pkg/profiler"
)

// Build converts a snapshot into a pprof profile with two sample types,
// internal and external nanoseconds. Each non-empty source line becomes one
// sample with a single location; native callables become line-less
// functions. Keys are emitted in sorted order so output is reproducible.
func Build(snap *profiler.Snapshot) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "internal", Unit: "nanoseconds"},
			{Type: "external", Unit: "nanoseconds"},
		},
		DefaultSampleType: "internal",
		Comments: []string{
			fmt.Sprintf("lineprof session %s", snap.SessionID),
		},
	}

	var nextFunctionID, nextLocationID uint64

	addFunction := func(name string, startLine int64) *profile.Function {
		nextFunctionID++
		fn := &profile.Function{
			ID:        nextFunctionID,
			Name:      name,
			StartLine: startLine,
		}
		p.Function = append(p.Function, fn)
		return fn
	}

	addSample := func(fn *profile.Function, line, internal, external int64) {
		nextLocationID++
		loc := &profile.Location{
			ID:   nextLocationID,
			Line: []profile.Line{{Function: fn, Line: line}},
		}
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{internal, external},
		})
	}

	codes := make([]profiler.CodeID, 0, len(snap.Functions))
	for code := range snap.Functions {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	for _, code := range codes {
		stats := snap.Functions[code]
		fn := addFunction(stats.Name, int64(stats.StartLine))

		var lineInternal int64
		for i, line := range stats.Lines {
			lineInternal += line.InternalNS
			if line.NCalls == 0 && line.InternalNS == 0 && line.ExternalNS == 0 {
				continue
			}
			addSample(fn, int64(stats.StartLine+i), line.InternalNS, line.ExternalNS)
		}

		// Entry/exit overhead lives in the function total but on no line;
		// report it against the function's first line.
		if overhead := stats.InternalNS - lineInternal; overhead > 0 {
			addSample(fn, int64(stats.StartLine), overhead, 0)
		}
	}

	names := make([]string, 0, len(snap.CFunctions))
	for name := range snap.CFunctions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		stats := snap.CFunctions[name]
		fn := addFunction(stats.Name, 0)
		addSample(fn, 0, stats.InternalNS, 0)
	}

	return p
}

// Write builds the profile and writes it in the compressed pprof wire
// format.
func Write(w io.Writer, snap *profiler.Snapshot) error {
	p := Build(snap)
	if err := p.CheckValid(); err != nil {
		return fmt.Errorf("pprofexport: built invalid profile: %w", err)
	}
	if err := p.Write(w); err != nil {
		return fmt.Errorf("pprofexport: failed to write profile: %w", err)
	}
	return nil
}
