package replay

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/yandex/lineprof/pkg/profiler"
	"github.com/yandex/lineprof/pkg/sourceloc"
	"github.com/yandex/lineprof/pkg/tracefmt"
)

func buildTrace(t *testing.T, build func(w *tracefmt.Writer)) *tracefmt.Reader {
	var buf bytes.Buffer
	w := tracefmt.NewWriter(&buf)
	build(w)
	require.NoError(t, w.Close())
	return tracefmt.NewReader(&buf)
}

func us(n int64) int64 { return n * int64(time.Microsecond) }

func TestProfileFromTrace(t *testing.T) {
	reader := buildTrace(t, func(w *tracefmt.Writer) {
		require.NoError(t, w.WriteFunc(1, profiler.FunctionSource{
			Name:      "f",
			StartLine: 10,
			Lines:     []string{"a = 1", "return g(a)"},
		}))
		require.NoError(t, w.WriteEvent(us(0), profiler.Event{Kind: profiler.KindCall, Code: 1}))
		require.NoError(t, w.WriteEvent(us(10), profiler.Event{Kind: profiler.KindLine, Code: 1, Line: 10}))
		require.NoError(t, w.WriteEvent(us(30), profiler.Event{Kind: profiler.KindLine, Code: 1, Line: 11}))
		require.NoError(t, w.WriteEvent(us(40), profiler.Event{
			Kind:   profiler.KindNativeCall,
			Native: profiler.NativeRef{Module: "builtins", Name: "g"},
		}))
		require.NoError(t, w.WriteEvent(us(5040), profiler.Event{Kind: profiler.KindNativeReturn}))
		require.NoError(t, w.WriteEvent(us(5050), profiler.Event{Kind: profiler.KindReturn, Code: 1}))
		require.NoError(t, w.WriteEvent(us(5060), profiler.Event{Kind: profiler.KindOrigin}))
	})

	rep := New(reader)
	snap, err := rep.Profile(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(7), rep.Delivered())

	f := snap.Functions[1]
	require.NotNil(t, f)
	require.Equal(t, uint64(1), f.NCalls)

	// Replayed attribution equals the recorded gaps exactly.
	require.Equal(t, us(20), f.Lines[0].InternalNS)
	require.Equal(t, us(10), f.Lines[1].InternalNS)
	require.Equal(t, us(5000), f.Lines[1].ExternalNS)
	require.Equal(t, us(5000), snap.CFunctions["builtins.g"].InternalNS)

	// 10us entry + 30us line time + 20us of post-native and return windows.
	require.Equal(t, us(60), f.InternalNS)
}

func TestProfileDeterministic(t *testing.T) {
	build := func(w *tracefmt.Writer) {
		require.NoError(t, w.WriteFunc(1, profiler.FunctionSource{
			Name: "f", StartLine: 1, Lines: []string{"pass"},
		}))
		require.NoError(t, w.WriteEvent(us(0), profiler.Event{Kind: profiler.KindCall, Code: 1}))
		require.NoError(t, w.WriteEvent(us(5), profiler.Event{Kind: profiler.KindLine, Code: 1, Line: 1}))
		require.NoError(t, w.WriteEvent(us(25), profiler.Event{Kind: profiler.KindReturn, Code: 1}))
		require.NoError(t, w.WriteEvent(us(30), profiler.Event{Kind: profiler.KindOrigin}))
	}

	first, err := New(buildTrace(t, build)).Profile(context.Background())
	require.NoError(t, err)
	second, err := New(buildTrace(t, build)).Profile(context.Background())
	require.NoError(t, err)

	require.Equal(t, first.Functions, second.Functions)
	require.Equal(t, first.CFunctions, second.CFunctions)
}

func TestFileBackedFunctions(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/app.py",
		[]byte("def f():\n    x = 1\n    return x\n"), 0o644))
	files, err := sourceloc.NewFiles(fs, 8)
	require.NoError(t, err)

	reader := buildTrace(t, func(w *tracefmt.Writer) {
		require.NoError(t, w.WriteRecord(&tracefmt.Record{
			Type:      tracefmt.RecordFunc,
			Code:      1,
			Name:      "f",
			File:      "/src/app.py",
			StartLine: 2,
			NLines:    2,
		}))
		require.NoError(t, w.WriteEvent(us(0), profiler.Event{Kind: profiler.KindCall, Code: 1}))
		require.NoError(t, w.WriteEvent(us(10), profiler.Event{Kind: profiler.KindLine, Code: 1, Line: 2}))
		require.NoError(t, w.WriteEvent(us(20), profiler.Event{Kind: profiler.KindReturn, Code: 1}))
		require.NoError(t, w.WriteEvent(us(30), profiler.Event{Kind: profiler.KindOrigin}))
	})

	snap, err := New(reader, WithSourceFiles(files)).Profile(context.Background())
	require.NoError(t, err)
	require.Equal(t, "    x = 1", snap.Functions[1].Lines[0].LineStr)
}

func TestRunRespectsContext(t *testing.T) {
	reader := buildTrace(t, func(w *tracefmt.Writer) {
		require.NoError(t, w.WriteEvent(us(0), profiler.Event{Kind: profiler.KindOrigin}))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(reader).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestUnknownFunctionIsSkipped(t *testing.T) {
	reader := buildTrace(t, func(w *tracefmt.Writer) {
		require.NoError(t, w.WriteFunc(1, profiler.FunctionSource{
			Name: "f", StartLine: 1, Lines: []string{"pass"},
		}))
		// Code 2 was never declared; its call is skipped, f still profiles.
		require.NoError(t, w.WriteEvent(us(0), profiler.Event{Kind: profiler.KindCall, Code: 2}))
		require.NoError(t, w.WriteEvent(us(5), profiler.Event{Kind: profiler.KindCall, Code: 1}))
		require.NoError(t, w.WriteEvent(us(10), profiler.Event{Kind: profiler.KindLine, Code: 1, Line: 1}))
		require.NoError(t, w.WriteEvent(us(20), profiler.Event{Kind: profiler.KindReturn, Code: 1}))
		require.NoError(t, w.WriteEvent(us(25), profiler.Event{Kind: profiler.KindOrigin}))
	})

	rep := New(reader)
	snap, err := rep.Profile(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1), rep.Skipped())
	require.Len(t, snap.Functions, 1)
}
