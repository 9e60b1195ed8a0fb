package distributor

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"simcore/internal/telemetry"
	"simcore/pkg/dbgateway"
)

func testDistributor(t *testing.T, symbols []string) *Distributor {
	t.Helper()
	db, err := dbgateway.Open(":memory:", 1, 1)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return New(Config{Symbols: symbols}, db, telemetry.NewTracer("test", false), telemetry.NewMetrics("test", false), zerolog.Nop())
}

func TestRegisterRejectsUnreachableHost(t *testing.T) {
	d := testDistributor(t, []string{"AAPL"})
	if err := d.Register("127.0.0.1", 1); err == nil {
		t.Fatal("expected register to fail against an unreachable port")
	}
	if d.RegisteredCount() != 0 {
		t.Errorf("expected no registration to survive a failed probe, got %d", d.RegisteredCount())
	}
}

func TestRegisterAcceptsReachableHost(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	d := testDistributor(t, []string{"AAPL"})
	if err := d.Register(host, port); err != nil {
		t.Fatalf("expected register to succeed: %v", err)
	}
	if d.RegisteredCount() != 1 {
		t.Fatalf("expected one registered client, got %d", d.RegisteredCount())
	}

	if !d.Unregister(host, port) {
		t.Fatal("expected unregister to find the client")
	}
	if d.RegisteredCount() != 0 {
		t.Errorf("expected zero clients after unregister, got %d", d.RegisteredCount())
	}
}

func TestGeneratorProducesOneBarPerSymbol(t *testing.T) {
	g := newGenerator(Config{Symbols: []string{"AAPL", "MSFT", "TSLA"}})
	bars := g.tick(time.Now().UnixMilli())
	if len(bars) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(bars))
	}
	for _, b := range bars {
		if b.Close <= 0 {
			t.Errorf("symbol %s: expected a positive close price, got %v", b.Symbol, b.Close)
		}
		if b.VWAP <= 0 {
			t.Errorf("symbol %s: expected a positive vwap, got %v", b.Symbol, b.VWAP)
		}
	}
}

func TestGeneratorPriceNeverGoesBelowFloor(t *testing.T) {
	g := newGenerator(Config{Symbols: []string{"AAPL"}, BaseVol: 5.0})
	for i := 0; i < 500; i++ {
		bars := g.tick(int64(i))
		if bars[0].Close < 1.00 {
			t.Fatalf("price fell below the 1.00 floor at tick %d: %v", i, bars[0].Close)
		}
	}
}

func TestPushAllDoesNotRemoveFailedClients(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	host, portStr, _ := net.SplitHostPort(srv.Listener.Addr().String())
	port, _ := strconv.Atoi(portStr)

	d := testDistributor(t, []string{"AAPL"})
	if err := d.Register(host, port); err != nil {
		t.Fatalf("register: %v", err)
	}

	d.pushAll(context.Background(), []PushedBar{{Symbol: "AAPL", Close: 100}})

	if hits != 1 {
		t.Fatalf("expected exactly one push attempt, got %d", hits)
	}
	if d.RegisteredCount() != 1 {
		t.Errorf("expected the failed client to remain registered, got count %d", d.RegisteredCount())
	}
}

func TestRegisterHandlerRequiresHost(t *testing.T) {
	d := testDistributor(t, []string{"AAPL"})
	router := d.Router()

	body, _ := json.Marshal(RegisterRequest{})
	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing host, got %d", w.Code)
	}
}

func TestTickPopulatesPriceCache(t *testing.T) {
	d := testDistributor(t, []string{"AAPL", "MSFT"})
	d.tick(context.Background(), time.Now())

	prices := d.Prices()
	if len(prices) != 2 {
		t.Fatalf("expected 2 cached prices, got %d", len(prices))
	}
	for _, sym := range []string{"AAPL", "MSFT"} {
		if p, ok := prices[sym]; !ok || p <= 0 {
			t.Errorf("symbol %s: expected a cached positive price, got %v (ok=%v)", sym, p, ok)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	d := testDistributor(t, []string{"AAPL"})
	router := d.Router()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", w.Code)
	}
}
