// Command arcstress hammers shared handles from many goroutines and verifies that every value
// is destroyed and every block freed exactly once.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/arc/memutils"
	"golang.org/x/exp/slog"
)

type flags struct {
	config      StressConfig
	logLevel    string
	json        bool
	metricsAddr string
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}

	return slog.LevelInfo, errors.Newf("unknown log level %q", level)
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "arcstress",
		Short: "stress shared handles across goroutines",
		Long: "arcstress seeds shared values, runs worker tasks that clone, downgrade, upgrade, mutate and drop " +
			"handles to them concurrently, and exits with a non-zero status if any value is read after it was " +
			"destroyed or any block is left unreleased",
		Example: `# Run 64 tasks of 100000 operations each against 8 shared values:
arcstress --workers 64 --handles 8 --ops 100000`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f)
		},
	}

	cmd.Flags().IntVar(&f.config.Workers, "workers", 16, "number of concurrent tasks")
	cmd.Flags().IntVar(&f.config.Handles, "handles", 4, "number of shared values")
	cmd.Flags().IntVar(&f.config.Ops, "ops", 10000, "random operations performed by each task")
	cmd.Flags().Int64Var(&f.config.Seed, "seed", time.Now().UnixNano(), "seed for the tasks' random operations")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "one of debug, info, warn, error")
	cmd.Flags().BoolVar(&f.json, "json", false, "print the report as JSON instead of logging it")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "address to serve prometheus metrics on while running")

	return cmd
}

func run(ctx context.Context, f *flags) error {
	level, err := parseLevel(f.logLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.HandlerOptions{Level: level}.NewTextHandler(os.Stderr))

	tracker := memutils.NewTracker(logger, memutils.TrackerOptions{})

	if f.metricsAddr != "" {
		shutdown := serveMetrics(logger, tracker, f.metricsAddr)
		defer shutdown()
	}

	report, err := RunStress(ctx, logger, tracker, f.config)
	if report == nil {
		return err
	}
	if err != nil {
		logger.Error("stress run interrupted", slog.Any("error", err))
	}

	rss, rssErr := residentBytes(ctx)
	if rssErr != nil {
		logger.Warn("unable to read resident memory", slog.Any("error", rssErr))
	}

	if f.json {
		fmt.Println(report.ReportString(rss))
	} else {
		report.LogReport(logger, rss)
	}

	if report.Failed() {
		return errors.Newf("stress run with seed %d failed", f.config.Seed)
	}
	return err
}

func serveMetrics(logger *slog.Logger, tracker *memutils.Tracker, addr string) func() {
	registry := prometheus.NewRegistry()
	registry.MustRegister(tracker, collectors.NewGoCollector())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.String("addr", addr), slog.Any("error", err))
		}
	}()
	logger.Info("serving metrics", slog.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("metrics server did not shut down cleanly", slog.Any("error", err))
		}
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
