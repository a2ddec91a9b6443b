package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/yandex/lineprof/pkg/profiler"
	"github.com/yandex/lineprof/pkg/sourceloc"
	"github.com/yandex/lineprof/pkg/tracefmt"
	"github.com/yandex/lineprof/pkg/xlog"
)

// Replayer delivers a recorded trace to an engine as if the host were
// emitting the events live. The engine clock is driven by record
// timestamps, so attributed durations equal the recorded inter-event gaps
// and a replay is fully deterministic.
type Replayer struct {
	reader *tracefmt.Reader
	table  *sourceloc.Table
	log    xlog.Logger
	reg    prometheus.Registerer

	sink  profiler.EventSink
	nowNS int64

	delivered uint64
	skipped   uint64
}

type Option func(*Replayer)

func WithLogger(log xlog.Logger) Option {
	return func(r *Replayer) { r.log = log }
}

// WithSourceFiles lets file-referencing func records resolve their lines.
func WithSourceFiles(files *sourceloc.Files) Option {
	return func(r *Replayer) { r.table = sourceloc.NewTable(files) }
}

func WithMetrics(reg prometheus.Registerer) Option {
	return func(r *Replayer) { r.reg = reg }
}

func New(reader *tracefmt.Reader, opts ...Option) *Replayer {
	r := &Replayer{
		reader: reader,
		table:  sourceloc.NewTable(nil),
		log:    xlog.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithName("replay")
	return r
}

var _ profiler.EventSource = (*Replayer)(nil)

func (r *Replayer) Attach(sink profiler.EventSink) error {
	if r.sink != nil {
		return errors.New("replay: a sink is already attached")
	}
	r.sink = sink
	return nil
}

func (r *Replayer) Detach() error {
	r.sink = nil
	return nil
}

// Table exposes the function registrations collected from func records;
// it is the SourceLocator the replayed engine should use.
func (r *Replayer) Table() *sourceloc.Table {
	return r.table
}

// Clock is the timestamp source for the replayed engine: it stands still at
// the current record's timestamp, so the engine's own processing costs
// nothing in replayed time.
func (r *Replayer) Clock() func() time.Time {
	return func() time.Time {
		return time.Unix(0, r.nowNS)
	}
}

func (r *Replayer) Delivered() uint64 { return r.delivered }
func (r *Replayer) Skipped() uint64   { return r.skipped }

// Run streams the trace to the attached sink until EOF, an engine fault,
// or context cancellation. Registration failures for individual functions
// are logged and skipped; they do not stop the replay.
func (r *Replayer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := r.reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		switch rec.Type {
		case tracefmt.RecordFunc:
			if rec.File != "" {
				r.table.AddFile(profiler.CodeID(rec.Code), rec.Name, rec.File, rec.StartLine, rec.NLines)
			} else {
				r.table.AddEmbedded(profiler.CodeID(rec.Code), rec.Name, rec.StartLine, rec.Lines)
			}

		case tracefmt.RecordEvent:
			r.nowNS = rec.TimeNS
			if r.sink == nil {
				r.skipped++
				continue
			}
			ev, err := rec.Event()
			if err != nil {
				return err
			}
			if err := r.sink.ProcessEvent(ev); err != nil {
				if errors.Is(err, profiler.ErrInvalidState) {
					return fmt.Errorf("replay: trace is inconsistent: %w", err)
				}
				r.skipped++
				r.log.Warn("Skipping event", zap.Error(err))
				continue
			}
			r.delivered++
		}
	}

	r.log.Info("Replay finished",
		zap.Uint64("delivered", r.delivered),
		zap.Uint64("skipped", r.skipped))
	return nil
}

// Profile replays the whole trace through a fresh engine and returns its
// snapshot.
func (r *Replayer) Profile(ctx context.Context) (*profiler.Snapshot, error) {
	opts := []profiler.Option{
		profiler.WithClock(r.Clock()),
		profiler.WithLogger(r.log),
	}
	if r.reg != nil {
		opts = append(opts, profiler.WithMetrics(r.reg))
	}

	eng, err := profiler.New(r, r.table, opts...)
	if err != nil {
		return nil, err
	}
	if err := eng.Start(); err != nil {
		return nil, err
	}
	if err := r.Run(ctx); err != nil {
		return nil, err
	}
	if err := eng.Stop(); err != nil {
		return nil, err
	}
	return eng.Snapshot(), nil
}
