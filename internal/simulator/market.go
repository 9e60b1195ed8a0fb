package simulator

import (
	"simcore/pkg/dbgateway"
)

// symbolQuote is the engine's in-memory view of a symbol's latest price and
// a synthetic half-spread used for MARKET fill crossing (§4.1 step 4).
type symbolQuote struct {
	Last        float64
	HalfSpread  float64
	LastVolume  float64
}

// MarketBook tracks the latest price per symbol, mutated only on the
// engine's coordinator goroutine.
type MarketBook struct {
	quotes map[string]*symbolQuote
}

// NewMarketBook creates an empty book.
func NewMarketBook() *MarketBook {
	return &MarketBook{quotes: make(map[string]*symbolQuote)}
}

// Update applies one MinuteBar, deriving a half-spread from the bar's
// high-low range so MARKET orders cross a realistic distance from close.
func (m *MarketBook) Update(bar dbgateway.MinuteBar) {
	q, ok := m.quotes[bar.Symbol]
	if !ok {
		q = &symbolQuote{}
		m.quotes[bar.Symbol] = q
	}
	q.Last = bar.Close
	q.LastVolume = bar.Volume
	halfSpread := (bar.High - bar.Low) / 2
	if halfSpread <= 0 {
		halfSpread = bar.Close * 0.0005
	}
	q.HalfSpread = halfSpread
}

// Last returns the last traded price for symbol and whether it is known.
func (m *MarketBook) Last(symbol string) (float64, bool) {
	q, ok := m.quotes[symbol]
	if !ok {
		return 0, false
	}
	return q.Last, true
}

// CrossPrice returns the price a MARKET order of the given side fills at:
// buyers cross the ask (last + half-spread), sellers cross the bid
// (last - half-spread), optionally nudged by per-symbol impact (§4.1 step 4/5).
func (m *MarketBook) CrossPrice(symbol string, side dbgateway.OrderSide, impact float64) (float64, bool) {
	q, ok := m.quotes[symbol]
	if !ok {
		return 0, false
	}
	price := q.Last
	if side == dbgateway.SideBuy {
		price += q.HalfSpread
	} else {
		price -= q.HalfSpread
	}
	price += price * impact
	if price < 0 {
		price = 0
	}
	return price, true
}

// Volume returns the last bar's traded volume for symbol, used to cap
// partial fills proportional to trade_volume (§4.1 step 4).
func (m *MarketBook) Volume(symbol string) float64 {
	q, ok := m.quotes[symbol]
	if !ok {
		return 0
	}
	return q.LastVolume
}

// Symbols lists every symbol the book has ever seen a bar for.
func (m *MarketBook) Symbols() []string {
	out := make([]string, 0, len(m.quotes))
	for s := range m.quotes {
		out = append(out, s)
	}
	return out
}
