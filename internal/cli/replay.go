package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yandex/lineprof/internal/report"
	"github.com/yandex/lineprof/pkg/pprofexport"
	"github.com/yandex/lineprof/pkg/profiler"
	"github.com/yandex/lineprof/pkg/replay"
	"github.com/yandex/lineprof/pkg/sourceloc"
	"github.com/yandex/lineprof/pkg/tracefmt"
	"github.com/yandex/lineprof/pkg/xlog"
)

var (
	replayCmd = &cobra.Command{
		Use:   "replay",
		Short: "Replay a recorded trace and dump the profile",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runReplay(ctx)
		},
	}

	tracePath    string
	sourceDir    string
	outputPath   string
	outputFormat string
	topFunctions int
)

func init() {
	replayCmd.Flags().StringVarP(&tracePath, "input", "i", "", "path to the recorded trace")
	replayCmd.Flags().StringVar(&sourceDir, "source-dir", "", "directory to resolve source files against")
	replayCmd.Flags().StringVarP(&outputPath, "output", "o", "", "snapshot destination (stdout table report when empty)")
	replayCmd.Flags().StringVar(&outputFormat, "format", "", "output format (`json`, `pprof` or `table`; inferred from --output by default)")
	replayCmd.Flags().IntVar(&topFunctions, "top", 0, "number of hottest functions to expand in table reports")

	cobra.CheckErr(replayCmd.MarkFlagFilename("input"))
	cobra.CheckErr(replayCmd.MarkFlagDirname("source-dir"))

	rootCmd.AddCommand(replayCmd)
}

func loadConfig(l xlog.Logger) (*Config, error) {
	conf := defaultConfig()
	if err := parseYaml(l, configPath, conf); err != nil {
		return nil, err
	}
	if tracePath != "" {
		conf.Trace = tracePath
	}
	if sourceDir != "" {
		conf.SourceDir = sourceDir
	}
	if outputPath != "" {
		conf.Output = outputPath
	}
	if outputFormat != "" {
		conf.Format = outputFormat
	}
	if topFunctions > 0 {
		conf.TopFunctions = topFunctions
	}
	if conf.Trace == "" {
		return nil, fmt.Errorf("no trace specified: pass --input or set `trace` in the config")
	}
	return conf, nil
}

func replayTrace(ctx context.Context, l xlog.Logger, conf *Config, reg prometheus.Registerer) (*profiler.Snapshot, error) {
	fs := afero.NewOsFs()

	reader, err := tracefmt.Open(fs, conf.Trace)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	opts := []replay.Option{
		replay.WithLogger(l),
		replay.WithMetrics(reg),
	}
	if conf.SourceDir != "" {
		files, err := sourceloc.NewFiles(afero.NewBasePathFs(fs, conf.SourceDir), conf.SourceCacheSize)
		if err != nil {
			return nil, err
		}
		opts = append(opts, replay.WithSourceFiles(files))
	}

	rep := replay.New(reader, opts...)
	snap, err := rep.Profile(ctx)
	if err != nil {
		return nil, err
	}
	l.Info("Replayed trace",
		zap.String("path", conf.Trace),
		zap.Uint64("events", rep.Delivered()),
		zap.Uint64("skipped", rep.Skipped()),
		zap.Int("functions", len(snap.Functions)))
	return snap, nil
}

func runReplay(ctx context.Context) error {
	l, err := newLogger()
	if err != nil {
		return err
	}
	conf, err := loadConfig(l)
	if err != nil {
		return err
	}

	snap, err := replayTrace(ctx, l, conf, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	return writeSnapshot(snap, conf)
}

func writeSnapshot(snap *profiler.Snapshot, conf *Config) error {
	switch inferFormat(conf) {
	case "json":
		if conf.Output == "" {
			return snap.Encode(os.Stdout)
		}
		return snap.WriteFile(afero.NewOsFs(), conf.Output)

	case "pprof":
		if conf.Output == "" {
			return fmt.Errorf("pprof output requires --output")
		}
		file, err := os.Create(conf.Output)
		if err != nil {
			return err
		}
		if err := pprofexport.Write(file, snap); err != nil {
			file.Close()
			return err
		}
		return file.Close()

	case "table":
		report.Write(os.Stdout, snap, conf.TopFunctions)
		return nil

	default:
		return fmt.Errorf("unknown output format %q", conf.Format)
	}
}

func inferFormat(conf *Config) string {
	if conf.Format != "" {
		return conf.Format
	}
	switch {
	case conf.Output == "":
		return "table"
	case strings.HasSuffix(conf.Output, ".pb.gz") || strings.HasSuffix(conf.Output, ".pprof"):
		return "pprof"
	default:
		return "json"
	}
}
