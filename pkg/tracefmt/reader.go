package tracefmt

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
)

type Reader struct {
	dec     *json.Decoder
	zstdDec *zstd.Decoder
	closer  io.Closer
	n       int
}

// Open opens a trace file for reading. Paths ending in .zst are
// decompressed transparently.
func Open(fs afero.Fs, path string) (*Reader, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tracefmt: failed to open trace: %w", err)
	}

	r := &Reader{closer: file}
	var src io.Reader = file
	if strings.HasSuffix(path, ".zst") {
		r.zstdDec, err = zstd.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("tracefmt: failed to open zstd stream: %w", err)
		}
		src = r.zstdDec
	}
	r.dec = json.NewDecoder(src)
	return r, nil
}

func NewReader(src io.Reader) *Reader {
	return &Reader{dec: json.NewDecoder(src)}
}

// Next returns the next record, or io.EOF at end of stream.
func (r *Reader) Next() (*Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("tracefmt: failed to decode record %d: %w", r.n+1, err)
	}
	r.n++
	if err := rec.validate(); err != nil {
		return nil, fmt.Errorf("record %d: %w", r.n, err)
	}
	return &rec, nil
}

func (r *Reader) Close() error {
	if r.zstdDec != nil {
		r.zstdDec.Close()
	}
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
