package distributor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"simcore/internal/telemetry"
	"simcore/pkg/cache"
	"simcore/pkg/dbgateway"
)

// Distributor is C5: generates the canonical minute-bar stream and fans it
// out to every registered simulator pod.
type Distributor struct {
	cfg    Config
	db     dbgateway.DatabaseGateway
	reg    *registry
	gen    *generator
	prices *cache.ShardedPriceCache
	http   *http.Client
	tracer *telemetry.Tracer
	metrics *telemetry.Metrics
	log    zerolog.Logger
}

// New wires a Distributor. db is typically DatabaseGateway.MarketData()'s
// owner, used to persist every generated bar.
func New(cfg Config, db dbgateway.DatabaseGateway, tracer *telemetry.Tracer, metrics *telemetry.Metrics, log zerolog.Logger) *Distributor {
	cfg = cfg.withDefaults()
	return &Distributor{
		cfg:     cfg,
		db:      db,
		reg:     newRegistry(3 * time.Second),
		gen:     newGenerator(cfg),
		prices:  cache.NewShardedPriceCache(),
		http:    &http.Client{Timeout: cfg.PushTimeout},
		tracer:  tracer,
		metrics: metrics,
		log:     log.With().Str("component", "c5").Logger(),
	}
}

// Register probes and adds a downstream simulator endpoint.
func (d *Distributor) Register(host string, port int) error {
	return d.reg.register(host, port)
}

// Unregister removes a downstream simulator endpoint.
func (d *Distributor) Unregister(host string, port int) bool {
	return d.reg.unregister(host, port)
}

// RegisteredCount reports how many downstreams are currently registered.
func (d *Distributor) RegisteredCount() int {
	return d.reg.count()
}

// Run blocks, generating and pushing one MinuteBar set per tracked symbol on
// each wall-clock minute boundary (§4.5), until ctx is done.
func (d *Distributor) Run(ctx context.Context) error {
	t := newMinuteTicker()
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			d.tick(ctx, now)
		}
	}
}

func (d *Distributor) tick(ctx context.Context, now time.Time) {
	ctx, span := d.tracer.Start(ctx, "distributor.tick")
	defer span.End()

	bars := d.gen.tick(now.UnixMilli())

	for _, b := range bars {
		bar := dbgateway.MinuteBar{
			Symbol: b.Symbol, TimestampUTC: now.UTC(),
			Open: b.Open, High: b.High, Low: b.Low, Close: b.Close,
			Volume: b.Volume, VWAP: b.VWAP,
		}
		if err := d.db.MarketData().InsertBar(ctx, bar); err != nil {
			span.RecordError(err)
			d.log.Error().Err(err).Str("symbol", b.Symbol).Msg("persist minute bar failed")
		}
		d.prices.Set(b.Symbol, b.Close)
	}

	d.pushAll(ctx, bars)
}

// Prices exposes the latest generated close per symbol. Written once per
// tick from the generator loop and read concurrently by the HTTP handlers
// in server.go, hence the sharded cache rather than a plain map.
func (d *Distributor) Prices() map[string]float64 {
	return d.prices.GetAll()
}

// pushAll fans bars out concurrently; a failed client is logged and left
// registered, matching §4.5's "failed clients are not removed automatically".
func (d *Distributor) pushAll(ctx context.Context, bars []PushedBar) {
	clients := d.reg.snapshot()
	if len(clients) == 0 {
		return
	}

	body, err := json.Marshal(bars)
	if err != nil {
		d.log.Error().Err(err).Msg("marshal bar batch failed")
		return
	}

	done := make(chan struct{}, len(clients))
	for _, c := range clients {
		go func(c client) {
			defer func() { done <- struct{}{} }()
			if err := d.pushOne(ctx, c, body); err != nil {
				d.log.Warn().Err(err).Str("client", c.addr()).Msg("push minute bar failed")
			}
		}(c)
	}
	for range clients {
		<-done
	}
}

func (d *Distributor) pushOne(ctx context.Context, c client, body []byte) error {
	url := fmt.Sprintf("http://%s/market-data", c.addr())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("client responded %d", resp.StatusCode)
	}
	return nil
}
