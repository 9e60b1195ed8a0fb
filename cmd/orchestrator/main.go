// Command orchestrator is the C3 process entrypoint: the exchange-calendar
// control loop that starts and stops simulator pods.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"simcore/internal/containerapi"
	"simcore/internal/logging"
	"simcore/internal/orchestrator"
	"simcore/internal/telemetry"
	"simcore/pkg/config"
	"simcore/pkg/dbgateway"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel}).With().Str("component", "c3").Logger()

	db, err := dbgateway.Open(cfg.DBPath, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())

	if manifest := os.Getenv("EXCHANGE_CALENDAR_MANIFEST"); manifest != "" {
		if err := orchestrator.LoadManifest(ctx, db, manifest); err != nil {
			log.Fatal().Err(err).Str("path", manifest).Msg("load exchange calendar manifest")
		}
	}

	tracer := telemetry.NewTracer("c3", cfg.EnableTracing)
	metrics := telemetry.NewMetrics("c3", cfg.EnableMetrics)
	pods := containerapi.NewInMemory()

	controller := orchestrator.NewController(
		orchestrator.Config{PollInterval: cfg.PollInterval},
		db.MarketData(),
		pods,
		tracer, metrics, log,
	)

	go func() {
		if err := controller.Run(ctx); err != nil {
			log.Error().Err(err).Msg("control loop stopped")
		}
	}()

	log.Info().Dur("poll_interval", cfg.PollInterval).Msg("orchestrator running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down")
	cancel()
}
