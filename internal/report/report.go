package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/yandex/lineprof/pkg/profiler"
)

type rankedFunction struct {
	code  profiler.CodeID
	stats *profiler.FunctionStats
}

// Write renders a text report of the snapshot: a function summary ordered
// by internal time, then a per-line breakdown for the topLines hottest
// functions. topLines <= 0 disables the line breakdown.
func Write(w io.Writer, snap *profiler.Snapshot, topLines int) {
	ranked := make([]rankedFunction, 0, len(snap.Functions))
	for code, stats := range snap.Functions {
		ranked = append(ranked, rankedFunction{code: code, stats: stats})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].stats.InternalNS != ranked[j].stats.InternalNS {
			return ranked[i].stats.InternalNS > ranked[j].stats.InternalNS
		}
		return ranked[i].code < ranked[j].code
	})

	fmt.Fprintf(w, "Functions (%s events, session %s)\n",
		humanize.Comma(int64(snap.Events)), snap.SessionID)

	summary := tablewriter.NewWriter(w)
	summary.Header("Function", "Calls", "Internal", "External")
	for _, fn := range ranked {
		var external int64
		for _, line := range fn.stats.Lines {
			external += line.ExternalNS
		}
		summary.Append([]string{
			fn.stats.Name,
			humanize.Comma(int64(fn.stats.NCalls)),
			formatNS(fn.stats.InternalNS),
			formatNS(external),
		})
	}
	summary.Render()

	if len(snap.CFunctions) > 0 {
		fmt.Fprintln(w, "\nNative callables")
		writeNatives(w, snap)
	}

	for i, fn := range ranked {
		if topLines <= 0 || i >= topLines {
			break
		}
		fmt.Fprintf(w, "\n%s (starts at line %d)\n", fn.stats.Name, fn.stats.StartLine)
		writeLines(w, fn.stats)
	}
}

func writeNatives(w io.Writer, snap *profiler.Snapshot) {
	names := make([]string, 0, len(snap.CFunctions))
	for name := range snap.CFunctions {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		lhs, rhs := snap.CFunctions[names[i]], snap.CFunctions[names[j]]
		if lhs.InternalNS != rhs.InternalNS {
			return lhs.InternalNS > rhs.InternalNS
		}
		return names[i] < names[j]
	})

	table := tablewriter.NewWriter(w)
	table.Header("Name", "Calls", "Internal")
	for _, name := range names {
		stats := snap.CFunctions[name]
		table.Append([]string{
			stats.Name,
			humanize.Comma(int64(stats.NCalls)),
			formatNS(stats.InternalNS),
		})
	}
	table.Render()
}

func writeLines(w io.Writer, stats *profiler.FunctionStats) {
	table := tablewriter.NewWriter(w)
	table.Header("Line", "Source", "Hits", "Internal", "External")
	for i, line := range stats.Lines {
		table.Append([]string{
			fmt.Sprintf("%d", stats.StartLine+i),
			line.LineStr,
			humanize.Comma(int64(line.NCalls)),
			formatNS(line.InternalNS),
			formatNS(line.ExternalNS),
		})
	}
	table.Render()
}

func formatNS(ns int64) string {
	return time.Duration(ns).Round(time.Microsecond).String()
}
