package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yandex/lineprof/pkg/profiler"
)

func TestWrite(t *testing.T) {
	snap := &profiler.Snapshot{
		SessionID: "s",
		Events:    10,
		Functions: map[profiler.CodeID]*profiler.FunctionStats{
			1: {
				Name:       "hot",
				NCalls:     3,
				InternalNS: 9_000_000,
				StartLine:  5,
				Lines: []profiler.LineStats{
					{LineStr: "x = compute()", NCalls: 3, InternalNS: 8_000_000, ExternalNS: 500_000},
				},
			},
			2: {
				Name:       "cold",
				NCalls:     1,
				InternalNS: 1_000,
				StartLine:  20,
				Lines:      []profiler.LineStats{{LineStr: "pass", NCalls: 1, InternalNS: 1_000}},
			},
		},
		CFunctions: map[string]*profiler.CallableStats{
			"time.sleep": {Name: "time.sleep", NCalls: 2, InternalNS: 2_000_000},
		},
	}

	var buf bytes.Buffer
	Write(&buf, snap, 1)

	out := buf.String()
	require.Contains(t, out, "hot")
	require.Contains(t, out, "cold")
	require.Contains(t, out, "time.sleep")
	require.Contains(t, out, "x = compute()")

	// The hottest function comes first in the summary.
	require.Less(t, bytes.Index(buf.Bytes(), []byte("hot")), bytes.Index(buf.Bytes(), []byte("cold")))

	// Only the top function gets a line table.
	require.NotContains(t, out, "starts at line 20")
	require.Contains(t, out, "starts at line 5")
}
