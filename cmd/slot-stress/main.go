package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/plus3/slotmap/internal/logging"
	"github.com/plus3/slotmap/ref"
	"github.com/plus3/slotmap/slot"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "slot-stress:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := LoadConfig(".env")
	if err != nil {
		return err
	}
	cfg.BindFlags(flag.CommandLine)
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Format = cfg.LogFormat
	logCfg.Level = cfg.LogLevel
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// Rejected handles are logged at error level; the stress workers
	// provoke them on purpose.
	storeLog, err := logging.NewStoreLogger(logCfg)
	if err != nil {
		return err
	}
	storeLog = storeLog.Sample(&zerolog.BurstSampler{Burst: 5, Period: time.Second})

	registry := prometheus.NewRegistry()
	metrics := slot.NewMetrics("slotstress")
	registry.MustRegister(metrics, collectors.NewGoCollector())
	ref.SetLogger(storeLog)
	ref.SetMetrics(metrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, registry, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("Starting slot store stress test...",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Int("slots", cfg.InitialSlots))

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()
	report, err := Run(runCtx, cfg, logger, slot.WithLogger(storeLog), slot.WithMetrics(metrics))
	if err != nil {
		return err
	}
	logger.Info("Simulation finished.")

	fmt.Println("\n\n--- Stress Test Report ---")
	if err := report.Generate(os.Stdout); err != nil {
		return fmt.Errorf("generate report: %w", err)
	}
	fmt.Println("--- End of Report ---")

	if report.Mismatches > 0 {
		return fmt.Errorf("%d value mismatches", report.Mismatches)
	}
	return nil
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Starting metrics server", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start metrics server", zap.Error(err))
		}
	}()
	return srv
}
