package orchestrator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"simcore/internal/containerapi"
	"simcore/internal/telemetry"
	"simcore/pkg/dbgateway"
)

// podEntry is C3's in-memory running-set: the control loop's own view of
// "is_running", compared against the calendar on every poll (§4.3 step 3).
type podEntry struct {
	ref     containerapi.PodRef
	wasOpen bool
}

// Config bounds the control loop's cadence and retry behavior.
type Config struct {
	PollInterval   time.Duration
	OrphanSweepPct float64 // probability per cycle, default 0.2 (§4.3 step 6)
	StartAttempts  int     // default 5 (§4.3 failure semantics)
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.OrphanSweepPct <= 0 {
		c.OrphanSweepPct = 0.2
	}
	if c.StartAttempts <= 0 {
		c.StartAttempts = 5
	}
	return c
}

// Controller is C3: the exchange-calendar-driven pod lifecycle loop.
type Controller struct {
	cfg      Config
	calendar CalendarSource
	pods     containerapi.API
	cron     *cron.Cron
	rng      *rand.Rand
	tracer   *telemetry.Tracer
	metrics  *telemetry.Metrics
	log      zerolog.Logger

	sod SODHook
	eod EODHook

	mu      sync.Mutex
	running map[string]podEntry // exch_id -> pod
}

// NewController wires a Controller against its container-API dependency and
// the calendar it polls (ordinarily DatabaseGateway.MarketData()).
func NewController(cfg Config, calendar CalendarSource, pods containerapi.API, tracer *telemetry.Tracer, metrics *telemetry.Metrics, log zerolog.Logger) *Controller {
	return &Controller{
		cfg:      cfg.withDefaults(),
		calendar: calendar,
		pods:     pods,
		cron:     cron.New(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		tracer:   tracer,
		metrics:  metrics,
		log:      log.With().Str("component", "c3").Logger(),
		sod:      noopSOD,
		eod:      noopEOD,
		running:  make(map[string]podEntry),
	}
}

// WithHooks overrides the default no-op SOD/EOD hooks.
func (c *Controller) WithHooks(sod SODHook, eod EODHook) *Controller {
	if sod != nil {
		c.sod = sod
	}
	if eod != nil {
		c.eod = eod
	}
	return c
}

// Run starts the cron-scheduled control loop and blocks until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", c.cfg.PollInterval)
	entryID, err := c.cron.AddFunc(spec, func() { c.tick(ctx) })
	if err != nil {
		return fmt.Errorf("schedule poll: %w", err)
	}
	c.cron.Start()
	defer func() {
		c.cron.Remove(entryID)
		stopCtx := c.cron.Stop()
		<-stopCtx.Done()
	}()

	<-ctx.Done()
	return nil
}

// tick is one control-loop iteration: §4.3 steps 1-6.
func (c *Controller) tick(ctx context.Context) {
	ctx, span := c.tracer.Start(ctx, "orchestrator.tick")
	defer span.End()

	exchanges, err := c.calendar.Exchanges(ctx)
	if err != nil {
		span.RecordError(err)
		c.log.Warn().Err(err).Msg("read exchange calendar failed")
		return
	}

	now := time.Now()
	seen := make(map[string]bool, len(exchanges))
	for _, ex := range exchanges {
		seen[ex.ExchID] = true
		c.reconcileOne(ctx, ex, now)
	}

	// A running exchange that has left the calendar is no longer scheduled,
	// so its pod is stopped the same way as a closed exchange's.
	c.mu.Lock()
	gone := make(map[string]containerapi.PodRef)
	for exchID, entry := range c.running {
		if !seen[exchID] {
			gone[exchID] = entry.ref
		}
	}
	c.mu.Unlock()
	for exchID, ref := range gone {
		c.stopExchange(ctx, exchID, ref)
	}

	if c.rng.Float64() < c.cfg.OrphanSweepPct {
		c.orphanSweep(ctx, seen)
	}
}

// reconcileOne applies steps 2-5 of §4.3 for a single exchange.
func (c *Controller) reconcileOne(ctx context.Context, ex dbgateway.Exchange, now time.Time) {
	should, err := shouldBeRunning(ex, now)
	if err != nil {
		c.log.Warn().Err(err).Str("exch_id", ex.ExchID).Msg("evaluate exchange calendar failed")
		return
	}

	c.mu.Lock()
	entry, isRunning := c.running[ex.ExchID]
	c.mu.Unlock()

	switch {
	case should && !isRunning:
		c.startExchange(ctx, ex)
	case !should && isRunning:
		c.stopExchange(ctx, ex.ExchID, entry.ref)
	}
}

// startExchange invokes the container API's start verb with exponential
// backoff, up to StartAttempts (§4.3 failure semantics).
func (c *Controller) startExchange(ctx context.Context, ex dbgateway.Exchange) {
	b := &backoff.Backoff{Min: 500 * time.Millisecond, Max: 30 * time.Second, Factor: 2, Jitter: true}
	spec := containerapi.Spec{
		Labels: map[string]string{"exch_id": ex.ExchID},
		Image:  "simulator:latest",
		Env:    map[string]string{"EXCH_ID": ex.ExchID, "SYMBOLS": joinSymbols(ex.Symbols)},
	}

	var ref containerapi.PodRef
	var err error
	for attempt := 1; attempt <= c.cfg.StartAttempts; attempt++ {
		ref, err = c.pods.Start(ctx, spec)
		if err == nil {
			break
		}
		c.log.Warn().Err(err).Str("exch_id", ex.ExchID).Int("attempt", attempt).Msg("start pod failed, retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(b.Duration()):
		}
	}
	if err != nil {
		c.log.Error().Err(err).Str("exch_id", ex.ExchID).Msg("start pod exhausted retries")
		return
	}

	c.mu.Lock()
	c.running[ex.ExchID] = podEntry{ref: ref, wasOpen: true}
	c.mu.Unlock()
	c.metrics.SetActiveSimulators(len(c.running))
	c.log.Info().Str("exch_id", ex.ExchID).Str("pod", ref.Name).Msg("exchange pod started")
	c.sod(ctx, ex.ExchID)
}

// stopExchange invokes stop; failures are logged and reattempted next tick
// rather than retried inline (§4.3 failure semantics).
func (c *Controller) stopExchange(ctx context.Context, exchID string, ref containerapi.PodRef) {
	if err := c.pods.Stop(ctx, ref); err != nil {
		c.log.Warn().Err(err).Str("exch_id", exchID).Msg("stop pod failed, will retry next poll")
		return
	}
	c.mu.Lock()
	delete(c.running, exchID)
	c.mu.Unlock()
	c.metrics.SetActiveSimulators(len(c.running))
	c.log.Info().Str("exch_id", exchID).Msg("exchange pod stopped")
	c.eod(ctx, exchID)
}

// orphanSweep deletes any live pod whose exch_id is absent from the calendar
// (§4.3 step 6), independent of the per-exchange running-set above (catches
// pods this process lost track of, e.g. after a restart).
func (c *Controller) orphanSweep(ctx context.Context, seen map[string]bool) {
	pods, err := c.pods.List(ctx, nil)
	if err != nil {
		c.log.Warn().Err(err).Msg("orphan sweep list failed")
		return
	}
	for _, ref := range pods {
		status, err := c.pods.Read(ctx, ref)
		if err != nil {
			continue
		}
		exchID := labelExchID(status)
		if exchID != "" && !seen[exchID] {
			c.log.Info().Str("pod", ref.Name).Str("exch_id", exchID).Msg("orphan pod found, stopping")
			_ = c.pods.Stop(ctx, ref)
			c.mu.Lock()
			delete(c.running, exchID)
			c.mu.Unlock()
		}
	}
}

// labelExchID recovers the exch_id label from a pod's reported status
// (containerapi.InMemory fills PodStatus.ExchID from the pod's exch_id label
// at Start). Callers treat an empty result as "can't tell, leave it alone".
func labelExchID(status containerapi.PodStatus) string {
	return status.ExchID
}

func joinSymbols(symbols []string) string {
	out := ""
	for i, s := range symbols {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

// RunningCount reports the current size of the in-memory running-set, for
// diagnostics and tests.
func (c *Controller) RunningCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.running)
}
