package tracefmt

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"

	"github.com/yandex/lineprof/pkg/profiler"
)

type Writer struct {
	enc     *json.Encoder
	buf     *bufio.Writer
	zstdEnc *zstd.Encoder
	closer  io.Closer
}

// Create opens a trace file for writing, compressing when the path ends in
// .zst.
func Create(fs afero.Fs, path string) (*Writer, error) {
	file, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("tracefmt: failed to create trace: %w", err)
	}

	w := &Writer{closer: file}
	var dst io.Writer = file
	if strings.HasSuffix(path, ".zst") {
		w.zstdEnc, err = zstd.NewWriter(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("tracefmt: failed to create zstd stream: %w", err)
		}
		dst = w.zstdEnc
	}
	w.buf = bufio.NewWriter(dst)
	w.enc = json.NewEncoder(w.buf)
	return w, nil
}

func NewWriter(dst io.Writer) *Writer {
	buf := bufio.NewWriter(dst)
	return &Writer{buf: buf, enc: json.NewEncoder(buf)}
}

func (w *Writer) WriteRecord(rec *Record) error {
	if err := rec.validate(); err != nil {
		return err
	}
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("tracefmt: failed to encode record: %w", err)
	}
	return nil
}

// WriteFunc declares a function with embedded source lines.
func (w *Writer) WriteFunc(code profiler.CodeID, src profiler.FunctionSource) error {
	return w.WriteRecord(&Record{
		Type:      RecordFunc,
		Code:      uint64(code),
		Name:      src.Name,
		StartLine: src.StartLine,
		Lines:     src.Lines,
	})
}

// WriteEvent appends one timestamped execution event.
func (w *Writer) WriteEvent(tsNS int64, ev profiler.Event) error {
	return w.WriteRecord(&Record{
		Type:   RecordEvent,
		TimeNS: tsNS,
		Kind:   ev.Kind.String(),
		Code:   uint64(ev.Code),
		Line:   ev.Line,
		Module: ev.Native.Module,
		Func:   ev.Native.Name,
	})
}

func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("tracefmt: failed to flush trace: %w", err)
	}
	if w.zstdEnc != nil {
		if err := w.zstdEnc.Close(); err != nil {
			return fmt.Errorf("tracefmt: failed to flush zstd stream: %w", err)
		}
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}
