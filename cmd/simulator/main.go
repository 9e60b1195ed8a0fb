// Command simulator is the C1 process entrypoint: one exchange-simulator
// instance dedicated to a single (user_id, session_id), started through the
// container API with its identity passed in via environment (C2's container
// provisioner sets SESSION_ID, USER_ID and SYMBOLS).
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"simcore/internal/logging"
	"simcore/internal/rpc"
	"simcore/internal/simulator"
	"simcore/internal/telemetry"
	"simcore/pkg/config"
	"simcore/pkg/dbgateway"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel}).With().Str("component", "c1").Logger()

	db, err := dbgateway.Open(cfg.DBPath, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	tracer := telemetry.NewTracer("c1", cfg.EnableTracing)
	metrics := telemetry.NewMetrics("c1", cfg.EnableMetrics)

	symbols := splitAndTrim(os.Getenv("SYMBOLS"))
	if len(symbols) == 0 {
		symbols = cfg.Symbols
	}

	engineCfg := simulator.EngineConfig{
		SimulatorID:  os.Getenv("SIMULATOR_ID"),
		SessionID:    os.Getenv("SESSION_ID"),
		UserID:       os.Getenv("USER_ID"),
		Symbols:      symbols,
		SessionTTL:   time.Duration(cfg.SessionTTLSeconds) * time.Second,
		GapTolerance: time.Duration(cfg.GapToleranceSeconds) * time.Second,
	}

	bar := simulator.NewDBBarSource(db)
	engine := simulator.NewEngine(engineCfg, db, bar, tracer, metrics, log)

	ctx, cancel := context.WithCancel(context.Background())
	go engine.Run(ctx)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.GRPCPort).Msg("listen grpc")
	}

	grpcServer := grpc.NewServer()
	rpc.RegisterExchangeSimulatorServer(grpcServer, simulator.NewServer(engine))

	go func() {
		log.Info().Str("port", cfg.GRPCPort).Str("simulator_id", engineCfg.SimulatorID).Msg("simulator listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("grpc server stopped")
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/market-data", simulator.MarketDataHandler(engine, log))
	httpServer := &http.Server{Addr: ":" + cfg.MarketDataPort, Handler: mux}

	go func() {
		log.Info().Str("port", cfg.MarketDataPort).Msg("market data ingest listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("market data ingest server stopped")
		}
	}()

	if err := registerWithDistributor(cfg); err != nil {
		log.Error().Err(err).Msg("register with distributor failed")
	} else {
		log.Info().Str("host", cfg.PodHost).Str("port", cfg.MarketDataPort).Msg("registered with distributor")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down")
	_ = unregisterFromDistributor(cfg)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
	cancel()
}

// registerWithDistributor tells C5 where to push bars for this pod (§4.5:
// the distributor health-probes host:port before accepting the registration,
// so this must run after the ingest server above is already listening).
func registerWithDistributor(cfg *config.Config) error {
	port, err := strconv.Atoi(cfg.MarketDataPort)
	if err != nil {
		return fmt.Errorf("parse market data port: %w", err)
	}
	body, err := json.Marshal(map[string]any{"host": cfg.PodHost, "port": port})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://%s:%s/register", cfg.DistributorHost, cfg.DistributorPort)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("distributor responded %d", resp.StatusCode)
	}
	return nil
}

// unregisterFromDistributor best-effort removes this pod from C5's fan-out
// set on shutdown so it stops receiving pushes for a pod that is gone.
func unregisterFromDistributor(cfg *config.Config) error {
	port, err := strconv.Atoi(cfg.MarketDataPort)
	if err != nil {
		return err
	}
	body, err := json.Marshal(map[string]any{"host": cfg.PodHost, "port": port})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://%s:%s/unregister", cfg.DistributorHost, cfg.DistributorPort)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

func splitAndTrim(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
