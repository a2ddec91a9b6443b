package profiler

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func snapshotHarness(t *testing.T) (*harness, afero.Fs) {
	fs := afero.NewMemMapFs()
	clock := newFakeClock()
	eng, err := New(nil, testSources, WithClock(clock.Now), WithFilesystem(fs))
	require.NoError(t, err)
	require.NoError(t, eng.Start())
	return &harness{t: t, clock: clock, eng: eng}, fs
}

func TestSnapshotExportShape(t *testing.T) {
	h, _ := snapshotHarness(t)
	runNativeScenario(h)

	var buf bytes.Buffer
	require.NoError(t, h.eng.Snapshot().Encode(&buf))

	var decoded struct {
		Functions map[string]struct {
			Name       string `json:"name"`
			NCalls     uint64 `json:"n_calls"`
			InternalNS int64  `json:"internal_ns"`
			Lines      []struct {
				LineStr    string `json:"line_str"`
				NCalls     uint64 `json:"n_calls"`
				InternalNS int64  `json:"internal_ns"`
				ExternalNS int64  `json:"external_ns"`
			} `json:"lines"`
		} `json:"functions"`
		CFunctions map[string]struct {
			Name       string `json:"name"`
			NCalls     uint64 `json:"n_calls"`
			InternalNS int64  `json:"internal_ns"`
		} `json:"c_functions"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	// The compiled-code identity is re-exposed as a stable numeric key.
	f, ok := decoded.Functions["1"]
	require.True(t, ok)
	require.Equal(t, "f", f.Name)
	require.Len(t, f.Lines, 3)
	require.Equal(t, "b = g()", f.Lines[1].LineStr)
	require.Equal(t, int64(10*time.Millisecond), f.Lines[1].ExternalNS)

	g, ok := decoded.CFunctions["builtins.g"]
	require.True(t, ok)
	require.Equal(t, uint64(1), g.NCalls)
}

func TestDumpWritesDestination(t *testing.T) {
	h, fs := snapshotHarness(t)
	runNativeScenario(h)

	snap, err := h.eng.Dump("/tmp/out.json")
	require.NoError(t, err)
	require.NotNil(t, snap)

	data, err := afero.ReadFile(fs, "/tmp/out.json")
	require.NoError(t, err)

	var roundtrip Snapshot
	require.NoError(t, json.Unmarshal(data, &roundtrip))
	require.Equal(t, snap.Functions[1].InternalNS, roundtrip.Functions[1].InternalNS)
	require.Equal(t, snap.SessionID, roundtrip.SessionID)
}

func TestDumpCompressesZstDestination(t *testing.T) {
	h, fs := snapshotHarness(t)
	runNativeScenario(h)

	snap, err := h.eng.Dump("/tmp/out.json.zst")
	require.NoError(t, err)

	file, err := fs.Open("/tmp/out.json.zst")
	require.NoError(t, err)
	defer file.Close()

	dec, err := zstd.NewReader(file)
	require.NoError(t, err)
	defer dec.Close()

	data, err := io.ReadAll(dec)
	require.NoError(t, err)

	var roundtrip Snapshot
	require.NoError(t, json.Unmarshal(data, &roundtrip))
	require.Equal(t, snap.Events, roundtrip.Events)
	require.Len(t, roundtrip.Functions, 1)
}
