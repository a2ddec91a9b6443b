package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yandex/lineprof/pkg/profiler"
	"github.com/yandex/lineprof/pkg/xlog"
)

var (
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Replay a trace and serve the profile over HTTP",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx)
		},
	}

	listenAddr string
)

func init() {
	serveCmd.Flags().StringVarP(&tracePath, "input", "i", "", "path to the recorded trace")
	serveCmd.Flags().StringVar(&sourceDir, "source-dir", "", "directory to resolve source files against")
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "address to listen on")

	cobra.CheckErr(serveCmd.MarkFlagFilename("input"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	l, err := newLogger()
	if err != nil {
		return err
	}
	conf, err := loadConfig(l)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		conf.Listen = listenAddr
	}

	registry := prometheus.NewRegistry()
	snap, err := replayTrace(ctx, l, conf, registry)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:    conf.Listen,
		Handler: newRouter(l, snap, registry),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l.Info("Serving profile", zap.String("addr", conf.Listen))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newRouter(l xlog.Logger, snap *profiler.Snapshot, registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/snapshot", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := snap.Encode(w); err != nil {
			l.Warn("Failed to serve snapshot", zap.Error(err))
		}
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return r
}
