package simulator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestMarketDataHandlerFeedsEngine(t *testing.T) {
	e, _ := testEngine(t, EngineConfig{Symbols: []string{"AAPL"}}, nil)
	handler := MarketDataHandler(e, zerolog.Nop())

	body, _ := json.Marshal([]incomingBar{
		{Symbol: "AAPL", Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 1000, VWAP: 100.2, Timestamp: time.Now().UnixMilli()},
	})
	req := httptest.NewRequest(http.MethodPost, "/market-data", bytes.NewReader(body))
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}

	if price, ok := e.market.Last("AAPL"); !ok || price != 100.5 {
		t.Fatalf("expected market book to learn AAPL=100.5, got %v (ok=%v)", price, ok)
	}
}

func TestMarketDataHandlerRejectsBadBody(t *testing.T) {
	e, _ := testEngine(t, EngineConfig{Symbols: []string{"AAPL"}}, nil)
	handler := MarketDataHandler(e, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/market-data", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestMarketDataHandlerRejectsNonPost(t *testing.T) {
	e, _ := testEngine(t, EngineConfig{Symbols: []string{"AAPL"}}, nil)
	handler := MarketDataHandler(e, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/market-data", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}
