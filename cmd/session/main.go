// Command session is the C2 process entrypoint: the stateful WebSocket
// gateway that owns one Session coordinator per logged-in user.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"simcore/internal/authsvc"
	"simcore/internal/containerapi"
	"simcore/internal/logging"
	"simcore/internal/session"
	"simcore/internal/telemetry"
	"simcore/pkg/config"
	"simcore/pkg/dbgateway"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel}).With().Str("component", "c2").Logger()

	db, err := dbgateway.Open(cfg.DBPath, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	tracer := telemetry.NewTracer("c2", cfg.EnableTracing)
	metrics := telemetry.NewMetrics("c2", cfg.EnableMetrics)
	auth := authsvc.NewJWTValidator(cfg.JWTSecret)

	pods := containerapi.NewInMemory()
	provisioner := session.NewContainerProvisioner(pods, "simcore/simulator:latest")

	sessionCfg := session.Config{
		SessionTTL:       time.Duration(cfg.SessionTTLSeconds) * time.Second,
		ReconnectTimeout: cfg.ReconnectTimeout,
		StartupTimeout:   30 * time.Second,
	}

	registry := session.NewRegistry(sessionCfg, db, auth, provisioner, session.DialInsecure, tracer, metrics, log)
	srv := session.NewServer(registry, log)

	ctx, cancel := context.WithCancel(context.Background())
	go registry.Reap(ctx, 10*time.Second)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.ServeWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	httpServer := &http.Server{Addr: ":" + cfg.SessionPort, Handler: mux}

	go func() {
		log.Info().Str("port", cfg.SessionPort).Msg("session gateway listening")
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
