package cli

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/yandex/lineprof/pkg/xlog"
)

var (
	rootCmd = &cobra.Command{
		Use:           "lineprof",
		Short:         "Line-granularity tracing profiler",
		Long:          "Reconstruct per-function and per-line internal/external time from recorded execution-event traces",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	configPath string
	logLevel   string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to yaml config")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (`debug`, `info`, `warn`, `error`)")

	cobra.CheckErr(rootCmd.MarkPersistentFlagFilename("config"))
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}

func newLogger() (xlog.Logger, error) {
	level, err := zapcore.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("bad log level %q: %w", logLevel, err)
	}
	return xlog.NewConsole(level, isatty.IsTerminal(os.Stderr.Fd()))
}
