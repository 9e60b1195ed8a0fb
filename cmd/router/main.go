// Command router is the C4 process entrypoint: the stateless REST front
// door for orders, convictions, funds, books and feedback.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"simcore/internal/authsvc"
	"simcore/internal/logging"
	"simcore/internal/router"
	"simcore/internal/telemetry"
	"simcore/pkg/config"
	"simcore/pkg/dbgateway"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel}).With().Str("component", "c4").Logger()

	db, err := dbgateway.Open(cfg.DBPath, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	tracer := telemetry.NewTracer("c4", cfg.EnableTracing)
	metrics := telemetry.NewMetrics("c4", cfg.EnableMetrics)
	auth := authsvc.NewJWTValidator(cfg.JWTSecret)

	srv := router.NewServer(router.Config{
		JWTSecret:          cfg.JWTSecret,
		AccessTokenExpiry:  cfg.AccessTokenExpiry,
		RefreshTokenExpiry: cfg.RefreshTokenExpiry,
	}, db, auth, nil, tracer, metrics, log)

	httpServer := &http.Server{Addr: ":" + cfg.RestPort, Handler: srv.Engine}

	go func() {
		log.Info().Str("port", cfg.RestPort).Msg("router listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server stopped")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
}
