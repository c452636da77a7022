package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"crossfilter/internal/adapters/dashboards"
	"crossfilter/internal/blob"
	"crossfilter/internal/core"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, addr string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	slogger, err := opts.newLogger(os.Stderr)
	if err != nil {
		return err
	}
	logger := core.NewSlogLogger(slogger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMetrics, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return err
	}

	state, err := core.OpenStateStore(ctx)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	source, blobs, err := datasetSource(ctx)
	if err != nil {
		_ = state.Close()
		return err
	}
	if blobs == nil {
		if blobs, err = blob.Open(ctx); err != nil {
			_ = state.Close()
			return fmt.Errorf("open blob store: %w", err)
		}
	}

	svc, err := buildService(ctx, cfg, source,
		core.WithLogger(logger),
		core.WithAuditRecorder(core.LogAuditRecorder{Logger: logger}),
		core.WithMetricsRecorder(core.MultiMetricsRecorder{promMetrics, core.NewExpvarMetricsRecorder("crossfilter")}),
		core.WithStateStore(state),
	)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	worker := dashboards.NewWorker(svc, blobs, nil).WithLogger(logger)
	worker.Start()

	handler := dashboards.NewHandler(svc)
	handler.Exports = worker
	handler.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("dashboard listening", "addr", addr, "blob_driver", string(blobs.Driver()))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		_ = worker.Stop(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return worker.Stop(shutdownCtx)
}
