package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the platform's Prometheus gauges/counters/histograms,
// gated by ENABLE_METRICS. When disabled, every recording method is a no-op.
type Metrics struct {
	enabled bool

	registry         *prometheus.Registry
	ordersSubmitted  *prometheus.CounterVec
	ticksProcessed   prometheus.Counter
	rpcLatency       *prometheus.HistogramVec
	activeSessions   prometheus.Gauge
	activeSimulators prometheus.Gauge
}

// NewMetrics registers the platform's metric families against a private
// registry (so multiple components in one test binary don't collide).
func NewMetrics(component string, enabled bool) *Metrics {
	if !enabled {
		return &Metrics{enabled: false}
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	m := &Metrics{
		enabled: true,
		ordersSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simcore", Subsystem: component, Name: "orders_submitted_total",
		}, []string{"status"}),
		ticksProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "simcore", Subsystem: component, Name: "ticks_processed_total",
		}),
		rpcLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "simcore", Subsystem: component, Name: "rpc_latency_seconds",
		}, []string{"rpc"}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "simcore", Subsystem: component, Name: "active_sessions",
		}),
		activeSimulators: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "simcore", Subsystem: component, Name: "active_simulators",
		}),
	}
	m.registry = reg
	return m
}

func (m *Metrics) IncOrders(status string) {
	if !m.enabled {
		return
	}
	m.ordersSubmitted.WithLabelValues(status).Inc()
}

func (m *Metrics) IncTicks() {
	if !m.enabled {
		return
	}
	m.ticksProcessed.Inc()
}

func (m *Metrics) ObserveRPC(rpc string, d time.Duration) {
	if !m.enabled {
		return
	}
	m.rpcLatency.WithLabelValues(rpc).Observe(d.Seconds())
}

func (m *Metrics) SetActiveSessions(n int) {
	if !m.enabled {
		return
	}
	m.activeSessions.Set(float64(n))
}

func (m *Metrics) SetActiveSimulators(n int) {
	if !m.enabled {
		return
	}
	m.activeSimulators.Set(float64(n))
}

// Serve starts the /metrics exposition endpoint on the given port until ctx is
// canceled. A no-op when metrics are disabled.
func (m *Metrics) Serve(ctx context.Context, port string) {
	if !m.enabled || m.registry == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: ":" + port, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	_ = srv.ListenAndServe()
}
