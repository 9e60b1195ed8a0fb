package distributor

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// symbolState is the generator's running view of one tracked symbol: last
// price and its current per-minute volatility.
type symbolState struct {
	price float64
	vol   float64
}

// generator produces one MinuteBar per tracked symbol per wall-clock minute
// using a GBM-style update, matching the shape (not the RNG) of the
// reference market-data generator's update_prices/get_market_data split.
type generator struct {
	cfg    Config
	rng    *rand.Rand
	states map[string]*symbolState
}

func newGenerator(cfg Config) *generator {
	cfg = cfg.withDefaults()
	g := &generator{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(1)),
		states: make(map[string]*symbolState, len(cfg.Symbols)),
	}
	for _, sym := range cfg.Symbols {
		g.states[sym] = &symbolState{price: initialPrice(sym), vol: cfg.BaseVol}
	}
	return g
}

// initialPrice seeds an unknown symbol with a deterministic pseudo-random
// starting price in [5, 500], the same range the reference generator uses
// for symbols it has no hardcoded base price for.
func initialPrice(symbol string) float64 {
	h := 0
	for _, c := range symbol {
		h += int(c)
	}
	return 5.0 + float64(h%4951)/10.0
}

// tick advances every tracked symbol by one minute bar.
func (g *generator) tick(nowMs int64) []PushedBar {
	bars := make([]PushedBar, 0, len(g.states))
	for _, sym := range g.cfg.Symbols {
		st := g.states[sym]
		if g.rng.Float64() < g.cfg.VolRedrawPct {
			st.vol = g.cfg.BaseVol * (0.5 + g.rng.Float64())
		}

		shock := distuv.Normal{Mu: 0.0001, Sigma: st.vol}.Rand()
		newPrice := st.price * (1 + shock)
		st.price = math.Max(1.00, roundTo(newPrice, 2))

		open := roundTo(st.price*(1-g.rng.Float64()*0.005), 2)
		high := roundTo(st.price*(1+g.rng.Float64()*0.005), 2)
		low := roundTo(st.price*(1-g.rng.Float64()*0.005), 2)
		close := st.price
		volume := 1000 + g.rng.Float64()*99000

		bars = append(bars, PushedBar{
			Symbol: sym, Open: open, High: high, Low: low, Close: close,
			Volume: volume, VWAP: roundTo((open+high+low+close)/4, 2), Timestamp: nowMs,
		})
	}
	return bars
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
