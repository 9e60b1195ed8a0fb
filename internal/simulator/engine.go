package simulator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"simcore/internal/rpc"
	"simcore/internal/telemetry"
	"simcore/pkg/apierr"
	"simcore/pkg/dbgateway"
	"simcore/pkg/money"
)

// BarSource lets the engine backfill bars during replay (§4.1 step 1)
// without coupling to C5's transport; the default implementation reads
// straight from the shared database C5 persists to.
type BarSource interface {
	BarsBetween(ctx context.Context, symbol string, from, to time.Time) ([]dbgateway.MinuteBar, error)
}

// EngineConfig parameterises one simulator instance (§4.1, §6).
type EngineConfig struct {
	SimulatorID  string
	SessionID    string
	UserID       string
	Symbols      []string
	SessionTTL   time.Duration
	GapTolerance time.Duration
	ImpactDecay  float64
	FeeRate      float64
	Pipeline     PipelineConfig
}

// Engine is C1: the authoritative Portfolio/Accounts/Orders/Impacts/
// Convictions owner for one (user_id, session_id), single-threaded via its
// coordinator goroutine (§5).
type Engine struct {
	cfg EngineConfig
	db  dbgateway.DatabaseGateway
	bar BarSource

	tracer  *telemetry.Tracer
	metrics *telemetry.Metrics
	log     zerolog.Logger

	market    *MarketBook
	impacts   *ImpactBook
	portfolio *Portfolio
	ledger    *Ledger
	orders    *OrderBook

	calls chan call

	lastHeartbeat time.Time
	lastTick      time.Time
	updateSeq     int64
	status        dbgateway.SimulatorStatus

	replaying    bool
	replayQueue  []dbgateway.MinuteBar

	subMu    sync.Mutex
	sub      chan *rpc.ExchangeDataUpdate

	terminated chan struct{}
	termReason string
	termOnce   sync.Once
}

// call is one unit of work executed on the coordinator goroutine, the
// mechanism that keeps every mutation to session state single-threaded (§5).
type call struct {
	fn   func()
	done chan struct{}
}

// NewEngine constructs a simulator for one session. Run must be started in
// its own goroutine before any RPC is served.
func NewEngine(cfg EngineConfig, db dbgateway.DatabaseGateway, bar BarSource, tracer *telemetry.Tracer, metrics *telemetry.Metrics, log zerolog.Logger) *Engine {
	if cfg.GapTolerance <= 0 {
		cfg.GapTolerance = 30 * time.Second
	}
	if cfg.ImpactDecay <= 0 {
		cfg.ImpactDecay = 0.1
	}
	e := &Engine{
		cfg:           cfg,
		db:            db,
		bar:           bar,
		tracer:        tracer,
		metrics:       metrics,
		log:           log.With().Str("simulator_id", cfg.SimulatorID).Str("session_id", cfg.SessionID).Logger(),
		market:        NewMarketBook(),
		impacts:       NewImpactBook(cfg.ImpactDecay),
		portfolio:     NewPortfolio(),
		ledger:        NewLedger(cfg.UserID),
		orders:        NewOrderBook(0.25),
		calls:         make(chan call),
		lastHeartbeat: time.Now(),
		status:        dbgateway.SimRunning,
		terminated:    make(chan struct{}),
	}
	return e
}

// do executes fn on the coordinator goroutine and blocks until it completes.
func (e *Engine) do(fn func()) {
	c := call{fn: fn, done: make(chan struct{})}
	select {
	case e.calls <- c:
		<-c.done
	case <-e.terminated:
	}
}

// Run is the coordinator loop: it is the only goroutine that ever touches
// session state, servicing RPC calls, minute-bar ticks and the TTL watchdog
// from one select (§5).
func (e *Engine) Run(ctx context.Context) {
	watchdog := time.NewTicker(5 * time.Second)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-e.calls:
			c.fn()
			close(c.done)
		case <-watchdog.C:
			if time.Since(e.lastHeartbeat) > e.cfg.SessionTTL {
				e.terminateLocked(ctx, "session TTL exceeded")
				return
			}
		}
	}
}

func (e *Engine) terminateLocked(ctx context.Context, reason string) {
	e.termOnce.Do(func() {
		e.status = dbgateway.SimStopped
		e.termReason = reason
		if e.db != nil {
			_ = e.db.Simulators().UpdateStatus(ctx, e.cfg.SimulatorID, dbgateway.SimStopped, reason)
		}
		e.log.Warn().Str("reason", reason).Msg("simulator self-terminating")
		close(e.terminated)
	})
}

// Terminated is closed when the engine stops accepting RPCs (§4.1 TTL/Failure semantics).
func (e *Engine) Terminated() <-chan struct{} { return e.terminated }

// TerminationReason reports why the engine stopped, valid only after Terminated() is closed.
func (e *Engine) TerminationReason() string { return e.termReason }

// Heartbeat resets the TTL timer (§4.1).
func (e *Engine) Heartbeat(clientTS int64) (bool, int64) {
	var serverTS int64
	e.do(func() {
		e.lastHeartbeat = time.Now()
		serverTS = e.lastHeartbeat.UnixMilli()
	})
	return true, serverTS
}

// Subscribe registers the single ExchangeDataUpdate consumer (§4.1:
// "single-subscriber stream"). A second concurrent subscriber is rejected.
func (e *Engine) Subscribe() (<-chan *rpc.ExchangeDataUpdate, func(), error) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	if e.sub != nil {
		return nil, nil, apierr.New(apierr.Conflict, "stream already has a subscriber")
	}
	ch := make(chan *rpc.ExchangeDataUpdate, 16)
	e.sub = ch
	unsub := func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		if e.sub == ch {
			e.sub = nil
		}
	}
	return ch, unsub, nil
}

func (e *Engine) push(update *rpc.ExchangeDataUpdate) {
	e.subMu.Lock()
	ch := e.sub
	e.subMu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- update:
	default:
		e.log.Warn().Msg("stream consumer backpressure, dropping frame")
	}
}

// SubmitOrder validates, records and synchronously executes an order
// against the latest in-memory market (§4.1).
func (e *Engine) SubmitOrder(ctx context.Context, in SubmitOrderInput) SubmitOrderResult {
	var result SubmitOrderResult
	e.do(func() {
		result = e.submitOrder(in)
	})
	return result
}

func (e *Engine) submitOrder(in SubmitOrderInput) SubmitOrderResult {
	in.UserID = e.cfg.UserID
	in.SessionID = e.cfg.SessionID
	rec, err := e.orders.Submit(in)
	if err != nil {
		return SubmitOrderResult{Success: false, Error: err.Error()}
	}

	fills := e.orders.Evaluate(e.market, e.impacts)
	e.applyFills(fills)
	return SubmitOrderResult{Success: true, OrderID: rec.OrderID}
}

// CancelOrder is idempotent: canceling an already-terminal order succeeds
// without effect (§4.1).
func (e *Engine) CancelOrder(ctx context.Context, orderID string) (bool, string) {
	var ok bool
	var errMsg string
	e.do(func() {
		_, err := e.orders.Cancel(orderID)
		if err != nil {
			ok = false
			errMsg = err.Error()
			return
		}
		ok = true
	})
	return ok, errMsg
}

// SubmitConviction runs the decision pipeline and routes generated orders
// through the same code path as SubmitOrder (§4.1).
func (e *Engine) SubmitConviction(ctx context.Context, convictions []ConvictionInput) ([]ConvictionResult, []DecisionLogEntry) {
	var results []ConvictionResult
	var log []DecisionLogEntry
	e.do(func() {
		generated, decisionLog := RunPipeline(e.cfg.Pipeline, e.portfolio, convictions)
		log = decisionLog

		bySymbol := make(map[string]*ConvictionResult)
		for _, c := range convictions {
			bySymbol[c.Symbol] = &ConvictionResult{Symbol: c.Symbol, Success: true}
		}
		for _, g := range generated {
			g.Input.RequestID = fmt.Sprintf("conv-%s", uuid.NewString())
			res := e.submitOrder(g.Input)
			cr, ok := bySymbol[g.Input.Symbol]
			if !ok {
				cr = &ConvictionResult{Symbol: g.Input.Symbol, Success: true}
				bySymbol[g.Input.Symbol] = cr
			}
			if !res.Success {
				cr.Success = false
				cr.Error = res.Error
				continue
			}
			cr.OrderIDs = append(cr.OrderIDs, res.OrderID)
		}
		for _, c := range convictions {
			results = append(results, *bySymbol[c.Symbol])
		}
	})
	return results, log
}

// applyFills updates Portfolio/Ledger/ImpactBook for a batch of fills and
// emits the resulting CashFlow records (§4.1 step 5).
func (e *Engine) applyFills(fills []Fill) {
	for _, f := range fills {
		e.portfolio.ApplyFill(f.Symbol, string(f.Side), f.Qty, f.Price)

		basePrice, _ := e.market.Last(f.Symbol)
		e.impacts.ApplyFill(f.Symbol, basePrice, f.Price, f.Qty)

		flows := e.ledger.RecordFill(f.Side, f.Symbol, f.Qty, f.Price, e.cfg.FeeRate)
		if e.db != nil {
			for _, cf := range flows {
				_ = e.db.Ledger().RecordCashFlow(context.Background(), cf)
			}
		}
		if e.metrics != nil {
			e.metrics.IncOrders("filled")
		}
	}
	e.portfolio.Revalue(e.market)
}

// IngestBar feeds one MinuteBar into the engine's tick algorithm (§4.1). It
// must be called once per symbol per wall-clock minute by the caller wiring
// the simulator to C5.
func (e *Engine) IngestBar(ctx context.Context, bar dbgateway.MinuteBar) {
	e.do(func() {
		e.handleBar(ctx, bar)
	})
}

func (e *Engine) handleBar(ctx context.Context, bar dbgateway.MinuteBar) {
	spanCtx, span := e.tracer.Start(ctx, "simulator.tick")
	defer span.End()

	if e.replaying {
		e.replayQueue = append(e.replayQueue, bar)
		return
	}

	if !e.lastTick.IsZero() {
		gap := bar.TimestampUTC.Sub(e.lastTick)
		drift := gap - 60*time.Second
		if drift < 0 {
			drift = -drift
		}
		if drift > e.cfg.GapTolerance {
			if gap <= 2*time.Hour {
				span.SetAttribute("gap_replay", true)
				e.enterReplay(spanCtx, bar)
				return
			}
			span.SetAttribute("gap_skip", true)
		}
	}

	e.processTick(bar)
}

// enterReplay backfills (last_tick, T) from the shared bar source, replays
// each bar in order, then drains whatever arrived live while replaying
// (§4.1 step 1).
func (e *Engine) enterReplay(ctx context.Context, triggering dbgateway.MinuteBar) {
	e.replaying = true
	defer func() { e.replaying = false }()

	if e.bar != nil {
		backfill, err := e.bar.BarsBetween(ctx, triggering.Symbol, e.lastTick, triggering.TimestampUTC)
		if err != nil {
			e.log.Warn().Err(err).Msg("backfill request failed, continuing live")
		}
		for _, b := range backfill {
			e.processTick(b)
		}
	}
	e.processTick(triggering)

	queue := e.replayQueue
	e.replayQueue = nil
	for _, b := range queue {
		e.processTick(b)
	}
}

// processTick is the non-suspending critical section of §4.1 steps 2-6:
// revalue positions, decay impact, evaluate orders, emit cash flows, push
// exactly one frame.
func (e *Engine) processTick(bar dbgateway.MinuteBar) {
	e.market.Update(bar)
	e.lastTick = bar.TimestampUTC

	e.portfolio.Revalue(e.market)
	e.impacts.Decay()

	fills := e.orders.Evaluate(e.market, e.impacts)
	e.applyFills(fills)

	e.updateSeq++
	e.push(e.buildFrame())

	if e.db != nil {
		_ = e.db.Simulators().Touch(context.Background(), e.cfg.SimulatorID)
	}
	if e.metrics != nil {
		e.metrics.IncTicks()
	}
}

func (e *Engine) buildFrame() *rpc.ExchangeDataUpdate {
	frame := &rpc.ExchangeDataUpdate{
		UpdateID:    e.updateSeq,
		TimestampMs: time.Now().UnixMilli(),
	}
	for _, sym := range e.market.Symbols() {
		last, _ := e.market.Last(sym)
		frame.MarketData = append(frame.MarketData, rpc.MarketDataEntry{Symbol: sym, Close: last})
	}
	for _, o := range e.orders.Snapshot() {
		frame.OrdersData = append(frame.OrdersData, rpc.OrderDataEntry{
			OrderID: o.OrderID, Symbol: o.Symbol, Side: string(o.Side), Type: string(o.Type),
			Status: string(o.Status), Quantity: o.Quantity, FilledQty: o.FilledQuantity,
			AvgPrice: o.AvgPrice, ErrorMessage: o.ErrorMessage,
		})
	}
	positions := e.portfolio.Snapshot()
	snap := rpc.PortfolioSnapshot{CashByAcc: e.ledger.Snapshot()}
	for _, p := range positions {
		snap.Positions = append(snap.Positions, rpc.PositionEntry{
			Symbol: p.Symbol, Quantity: p.Quantity, AverageCost: p.AverageCost, MarketValue: p.MarketValue,
		})
	}
	frame.Portfolio = snap
	return frame
}

// Fund credits the engine's CASH account at start-up (test/bootstrap helper).
func (e *Engine) Fund(amount float64) {
	e.do(func() {
		cf := e.ledger.Fund(money.FromFloat(amount))
		if e.db != nil {
			_ = e.db.Ledger().RecordCashFlow(context.Background(), cf)
		}
	})
}
