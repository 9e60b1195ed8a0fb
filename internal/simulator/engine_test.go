package simulator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"simcore/internal/telemetry"
	"simcore/pkg/dbgateway"
)

func testEngine(t *testing.T, cfg EngineConfig, bar BarSource) (*Engine, context.CancelFunc) {
	t.Helper()
	db, err := dbgateway.Open(":memory:", 1, 1)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if cfg.SimulatorID == "" {
		cfg.SimulatorID = "sim-1"
	}
	if cfg.SessionID == "" {
		cfg.SessionID = "sess-1"
	}
	if cfg.UserID == "" {
		cfg.UserID = "user-1"
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = time.Hour
	}
	if err := db.Simulators().Create(context.Background(), dbgateway.Simulator{
		SimulatorID: cfg.SimulatorID, SessionID: cfg.SessionID, UserID: cfg.UserID, Status: dbgateway.SimRunning,
	}); err != nil {
		t.Fatalf("seed simulator: %v", err)
	}

	tracer := telemetry.NewTracer("test", false)
	metrics := telemetry.NewMetrics("test", false)
	e := NewEngine(cfg, db, bar, tracer, metrics, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go e.Run(ctx)
	t.Cleanup(cancel)
	return e, cancel
}

func bar(symbol string, ts time.Time, open, high, low, close, volume float64) dbgateway.MinuteBar {
	return dbgateway.MinuteBar{Symbol: symbol, TimestampUTC: ts, Open: open, High: high, Low: low, Close: close, Volume: volume}
}

func TestSubmitOrder_IdempotentReplay(t *testing.T) {
	e, _ := testEngine(t, EngineConfig{Symbols: []string{"AAPL"}}, nil)

	in := SubmitOrderInput{Symbol: "AAPL", Side: dbgateway.SideBuy, Type: dbgateway.TypeLimit, Quantity: 10, Price: 100, RequestID: "req-1"}
	r1 := e.SubmitOrder(context.Background(), in)
	if !r1.Success {
		t.Fatalf("first submit failed: %s", r1.Error)
	}
	r2 := e.SubmitOrder(context.Background(), in)
	if !r2.Success {
		t.Fatalf("replayed submit failed: %s", r2.Error)
	}
	if r1.OrderID != r2.OrderID {
		t.Errorf("expected replay to return the same order id, got %q and %q", r1.OrderID, r2.OrderID)
	}

	count := 0
	e.do(func() { count = len(e.orders.Snapshot()) })
	if count != 1 {
		t.Errorf("expected exactly one order recorded, got %d", count)
	}
}

func TestCancelOrder_IdempotentOnTerminal(t *testing.T) {
	e, _ := testEngine(t, EngineConfig{Symbols: []string{"AAPL"}}, nil)

	r := e.SubmitOrder(context.Background(), SubmitOrderInput{
		Symbol: "AAPL", Side: dbgateway.SideBuy, Type: dbgateway.TypeLimit, Quantity: 10, Price: 100, RequestID: "req-1",
	})
	if !r.Success {
		t.Fatalf("submit failed: %s", r.Error)
	}

	ok1, errMsg1 := e.CancelOrder(context.Background(), r.OrderID)
	if !ok1 {
		t.Fatalf("first cancel failed: %s", errMsg1)
	}
	ok2, errMsg2 := e.CancelOrder(context.Background(), r.OrderID)
	if !ok2 {
		t.Fatalf("second cancel (idempotent) failed: %s", errMsg2)
	}

	var status dbgateway.OrderStatus
	e.do(func() {
		rec, _ := e.orders.Get(r.OrderID)
		status = rec.Status
	})
	if status != dbgateway.OrderCanceled {
		t.Errorf("expected CANCELED, got %s", status)
	}
}

func TestCancelOrder_UnknownIsNotFound(t *testing.T) {
	e, _ := testEngine(t, EngineConfig{Symbols: []string{"AAPL"}}, nil)
	ok, errMsg := e.CancelOrder(context.Background(), "does-not-exist")
	if ok {
		t.Fatalf("expected failure for unknown order")
	}
	if errMsg == "" {
		t.Errorf("expected a non-empty error message")
	}
}

// fakeBarSource records whether it was asked to backfill, for asserting the
// gap-detection boundary in §4.1 step 1.
type fakeBarSource struct {
	mu      sync.Mutex
	calls   int
	bars    []dbgateway.MinuteBar
}

func (f *fakeBarSource) BarsBetween(ctx context.Context, symbol string, from, to time.Time) ([]dbgateway.MinuteBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	var out []dbgateway.MinuteBar
	for _, b := range f.bars {
		if !b.TimestampUTC.Before(from) && !b.TimestampUTC.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBarSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestIngestBar_NoGapWithinTolerance(t *testing.T) {
	src := &fakeBarSource{}
	e, _ := testEngine(t, EngineConfig{Symbols: []string{"AAPL"}, GapTolerance: 30 * time.Second}, src)

	base := time.Date(2026, 1, 2, 14, 30, 0, 0, time.UTC)
	e.IngestBar(context.Background(), bar("AAPL", base, 100, 101, 99, 100, 1000))
	// exactly 60s later: drift is zero, well within tolerance.
	e.IngestBar(context.Background(), bar("AAPL", base.Add(60*time.Second), 100, 101, 99, 100.5, 1000))

	if got := src.callCount(); got != 0 {
		t.Errorf("expected no backfill request for an in-tolerance gap, got %d calls", got)
	}
}

func TestIngestBar_GapTriggersReplay(t *testing.T) {
	src := &fakeBarSource{}
	e, _ := testEngine(t, EngineConfig{Symbols: []string{"AAPL"}, GapTolerance: 30 * time.Second}, src)

	base := time.Date(2026, 1, 2, 14, 30, 0, 0, time.UTC)
	e.IngestBar(context.Background(), bar("AAPL", base, 100, 101, 99, 100, 1000))
	// 91s later: |91-60| = 31s > 30s tolerance, and 91s <= 2h, so this must replay.
	e.IngestBar(context.Background(), bar("AAPL", base.Add(91*time.Second), 100, 101, 99, 100.5, 1000))

	if got := src.callCount(); got != 1 {
		t.Errorf("expected exactly one backfill request for a replay-eligible gap, got %d", got)
	}
}

func TestIngestBar_LargeGapSkipsReplay(t *testing.T) {
	src := &fakeBarSource{}
	e, _ := testEngine(t, EngineConfig{Symbols: []string{"AAPL"}, GapTolerance: 30 * time.Second}, src)

	base := time.Date(2026, 1, 2, 14, 30, 0, 0, time.UTC)
	e.IngestBar(context.Background(), bar("AAPL", base, 100, 101, 99, 100, 1000))
	// More than 2h later: skip replay and process the tick directly.
	e.IngestBar(context.Background(), bar("AAPL", base.Add(3*time.Hour), 100, 101, 99, 100.5, 1000))

	if got := src.callCount(); got != 0 {
		t.Errorf("expected no backfill request once the gap exceeds the 2h ceiling, got %d", got)
	}

	var last float64
	e.do(func() { last, _ = e.market.Last("AAPL") })
	if last != 100.5 {
		t.Errorf("expected the triggering bar to still be applied, got last=%v", last)
	}
}

func TestMarketOrderFillsAgainstIngestedBar(t *testing.T) {
	e, _ := testEngine(t, EngineConfig{Symbols: []string{"AAPL"}, FeeRate: 0.001}, nil)

	e.IngestBar(context.Background(), bar("AAPL", time.Now(), 100, 102, 98, 100, 100000))

	r := e.SubmitOrder(context.Background(), SubmitOrderInput{
		Symbol: "AAPL", Side: dbgateway.SideBuy, Type: dbgateway.TypeMarket, Quantity: 10, RequestID: "req-mkt-1",
	})
	if !r.Success {
		t.Fatalf("submit failed: %s", r.Error)
	}

	var rec OrderRecord
	var pos Position
	e.do(func() {
		got, _ := e.orders.Get(r.OrderID)
		rec = *got
		pos = *e.portfolio.Position("AAPL")
	})

	if rec.Status != dbgateway.OrderFilled {
		t.Errorf("expected MARKET order to fill immediately, got status %s (filled %v/%v)", rec.Status, rec.FilledQuantity, rec.Quantity)
	}
	if pos.Quantity != 10 {
		t.Errorf("expected position quantity 10, got %v", pos.Quantity)
	}
	if rec.AvgPrice <= 100 {
		t.Errorf("expected a BUY to cross above last price 100, got avg price %v", rec.AvgPrice)
	}

	var cashBal string
	e.do(func() { cashBal = e.ledger.Balance(accountCash, baseCurrency).StringFixed(8) })
	if cashBal[0] != '-' {
		t.Errorf("expected a debited (negative) cash balance after an unfunded buy, got %s", cashBal)
	}
}

func TestPartialFillCappedByParticipation(t *testing.T) {
	e, _ := testEngine(t, EngineConfig{Symbols: []string{"AAPL"}}, nil)

	// volume 100 with default 0.25 max participation caps a single tick's fill at 25 shares.
	e.IngestBar(context.Background(), bar("AAPL", time.Now(), 100, 101, 99, 100, 100))

	r := e.SubmitOrder(context.Background(), SubmitOrderInput{
		Symbol: "AAPL", Side: dbgateway.SideBuy, Type: dbgateway.TypeMarket, Quantity: 100, RequestID: "req-partial-1",
	})
	if !r.Success {
		t.Fatalf("submit failed: %s", r.Error)
	}

	var rec OrderRecord
	e.do(func() {
		got, _ := e.orders.Get(r.OrderID)
		rec = *got
	})
	if rec.Status != dbgateway.OrderPartiallyFilled {
		t.Fatalf("expected PARTIALLY_FILLED, got %s", rec.Status)
	}
	if rec.FilledQuantity != 25 {
		t.Errorf("expected fill capped at 25 (25%% of volume 100), got %v", rec.FilledQuantity)
	}

	// feeding another bar lets the remainder fill against the new tick's volume:
	// volume 400 caps this tick at 100 shares, enough for the remaining 75.
	e.IngestBar(context.Background(), bar("AAPL", time.Now().Add(time.Minute), 100, 101, 99, 100, 400))
	e.do(func() {
		got, _ := e.orders.Get(r.OrderID)
		rec = *got
	})
	if rec.Status != dbgateway.OrderFilled {
		t.Errorf("expected remaining quantity to fill on the next tick, got %s (filled %v)", rec.Status, rec.FilledQuantity)
	}
}

func TestSubmitConvictionGeneratesAndAppliesOrders(t *testing.T) {
	cfg := EngineConfig{Symbols: []string{"AAPL"}, Pipeline: DefaultPipelineConfig(100000)}
	e, _ := testEngine(t, cfg, nil)

	e.IngestBar(context.Background(), bar("AAPL", time.Now(), 100, 101, 99, 100, 100000))

	results, log := e.SubmitConviction(context.Background(), []ConvictionInput{
		{Symbol: "AAPL", TargetWeight: 0.1, Urgency: UrgencyMedium, RequestID: "conv-1"},
	})

	if len(results) != 1 || !results[0].Success {
		t.Fatalf("expected one successful conviction result, got %+v", results)
	}
	if len(results[0].OrderIDs) != 1 {
		t.Fatalf("expected one generated order, got %d", len(results[0].OrderIDs))
	}
	if len(log) == 0 {
		t.Errorf("expected a non-empty decision log")
	}

	var pos Position
	e.do(func() { pos = *e.portfolio.Position("AAPL") })
	if pos.Quantity <= 0 {
		t.Errorf("expected the generated BUY to move the position off zero, got %v", pos.Quantity)
	}
}

func TestSubmitConvictionRejectsOutOfBoundsWeight(t *testing.T) {
	cfg := EngineConfig{Symbols: []string{"AAPL"}, Pipeline: DefaultPipelineConfig(100000)}
	e, _ := testEngine(t, cfg, nil)

	results, log := e.SubmitConviction(context.Background(), []ConvictionInput{
		{Symbol: "AAPL", TargetWeight: 1.5, Urgency: UrgencyLow, RequestID: "conv-bad"},
	})

	if len(results[0].OrderIDs) != 0 {
		t.Errorf("expected no orders generated for an out-of-bounds weight, got %+v", results)
	}
	found := false
	for _, l := range log {
		if l.Stage == "alpha_processor" && l.Symbol == "AAPL" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected alpha_processor to log the rejection")
	}
}

func TestHeartbeatResetsTTL(t *testing.T) {
	e, _ := testEngine(t, EngineConfig{Symbols: []string{"AAPL"}, SessionTTL: time.Hour}, nil)
	ok, serverTS := e.Heartbeat(time.Now().UnixMilli())
	if !ok {
		t.Fatalf("expected heartbeat to succeed")
	}
	if serverTS <= 0 {
		t.Errorf("expected a positive server timestamp, got %d", serverTS)
	}
}

func TestEngineSelfTerminatesOnTTLExpiry(t *testing.T) {
	e, cancel := testEngine(t, EngineConfig{Symbols: []string{"AAPL"}, SessionTTL: 10 * time.Millisecond}, nil)
	defer cancel()

	select {
	case <-e.Terminated():
	case <-time.After(10 * time.Second):
		t.Fatal("expected the engine to self-terminate once the TTL watchdog fires")
	}
	if e.TerminationReason() == "" {
		t.Errorf("expected a non-empty termination reason")
	}
}

func TestDoubleSubscribeIsConflict(t *testing.T) {
	e, _ := testEngine(t, EngineConfig{Symbols: []string{"AAPL"}}, nil)

	_, unsub, err := e.Subscribe()
	if err != nil {
		t.Fatalf("first subscribe failed: %v", err)
	}
	defer unsub()

	if _, _, err := e.Subscribe(); err == nil {
		t.Errorf("expected a second concurrent subscriber to be rejected")
	}
}

func TestFundCreditsCashAccount(t *testing.T) {
	e, _ := testEngine(t, EngineConfig{Symbols: []string{"AAPL"}}, nil)
	e.Fund(1000)

	var bal string
	e.do(func() { bal = e.ledger.Balance(accountCash, baseCurrency).StringFixed(2) })
	if bal != "1000.00" {
		t.Errorf("expected cash balance 1000.00, got %s", bal)
	}
}
