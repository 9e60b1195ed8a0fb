// Command distributor is the C5 process entrypoint: the canonical
// minute-bar generator fanning out to every registered simulator pod.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"simcore/internal/distributor"
	"simcore/internal/logging"
	"simcore/internal/telemetry"
	"simcore/pkg/config"
	"simcore/pkg/dbgateway"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel}).With().Str("component", "c5").Logger()

	db, err := dbgateway.Open(cfg.DBPath, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	tracer := telemetry.NewTracer("c5", cfg.EnableTracing)
	metrics := telemetry.NewMetrics("c5", cfg.EnableMetrics)

	dist := distributor.New(distributor.Config{Symbols: cfg.Symbols}, db, tracer, metrics, log)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := dist.Run(ctx); err != nil {
			log.Error().Err(err).Msg("generator loop stopped")
		}
	}()

	httpServer := &http.Server{Addr: ":" + cfg.DistributorPort, Handler: dist.Router()}
	go func() {
		log.Info().Str("port", cfg.DistributorPort).Int("symbols", len(cfg.Symbols)).Msg("distributor listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server stopped")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	cancel()
}
