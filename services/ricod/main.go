package ricod

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"rico/config"
	"rico/observability/logging"
	telemetry "rico/observability/otel"
	"rico/storage"
)

// Main initialises and runs the sale daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/ricod/config.yaml", "path to ricod configuration")
	flag.Parse()

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = strings.TrimSpace(os.Getenv("RICO_ENV"))
	}
	logger, logCloser := logging.SetupWithOptions("ricod", env, logging.Options{
		Level:      logging.ParseLevel(cfg.Log.Level),
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	defer logCloser.Close()

	endpoint := strings.TrimSpace(cfg.OTel.Endpoint)
	if endpoint == "" {
		endpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	}
	headers := cfg.OTel.Headers
	if headers == "" {
		headers = os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "ricod",
		Environment: env,
		Endpoint:    endpoint,
		Insecure:    cfg.OTel.Insecure,
		Headers:     telemetry.ParseHeaders(headers),
		Metrics:     cfg.OTel.Metrics,
		Traces:      cfg.OTel.Traces,
		SampleRatio: cfg.OTel.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	saleCfg, err := config.Load(cfg.SaleConfig)
	if err != nil {
		return fmt.Errorf("load sale definition: %w", err)
	}

	db, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	ticks := NewIntervalTicks(cfg.Ticks.Anchor, cfg.Ticks.Base, cfg.Ticks.Interval.Duration)
	server, err := Assemble(cfg, saleCfg, db, ticks, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout.Duration,
		WriteTimeout: cfg.HTTP.WriteTimeout.Duration,
		IdleTimeout:  cfg.HTTP.IdleTimeout.Duration,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("ricod listening", "addr", cfg.ListenAddress, "tick", ticks.CurrentTick())
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout.Duration)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
