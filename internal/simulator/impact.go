package simulator

import "time"

// ImpactBook tracks per-symbol ImpactState (§3), decaying every tick.
type ImpactBook struct {
	states    map[string]*ImpactState
	decayRate float64
}

// NewImpactBook creates a book with the given per-tick decay rate.
func NewImpactBook(decayRate float64) *ImpactBook {
	return &ImpactBook{states: make(map[string]*ImpactState), decayRate: decayRate}
}

// Decay applies `current_impact *= (1 - decay_rate)` with a zero floor to
// every tracked symbol (§4.1 step 3).
func (b *ImpactBook) Decay() {
	for _, s := range b.states {
		s.PreviousImpact = s.CurrentImpact
		s.CurrentImpact *= (1 - b.decayRate)
		if s.CurrentImpact < 0 {
			s.CurrentImpact = 0
		}
	}
}

// Current returns the current impact fraction for symbol (0 if untracked).
func (b *ImpactBook) Current(symbol string) float64 {
	s, ok := b.states[symbol]
	if !ok {
		return 0
	}
	return s.CurrentImpact
}

// ApplyFill bumps a symbol's impact by the fill price's relative deviation
// from its basis price, (impactedPrice - basePrice) / basePrice, as a crude
// market-impact model (§4.1 step 5). The traded volume only accumulates in
// CumulativeVolume.
func (b *ImpactBook) ApplyFill(symbol string, basePrice, impactedPrice, volume float64) {
	s, ok := b.states[symbol]
	if !ok {
		s = &ImpactState{Symbol: symbol, BasePrice: basePrice, StartTS: time.Now()}
		b.states[symbol] = s
	}
	s.PreviousImpact = s.CurrentImpact
	if basePrice > 0 {
		s.CurrentImpact += (impactedPrice - basePrice) / basePrice
	}
	s.ImpactedPrice = impactedPrice
	s.CumulativeVolume += volume
	s.EndTS = time.Now()
}

// Snapshot returns a copy of every tracked ImpactState.
func (b *ImpactBook) Snapshot() []ImpactState {
	out := make([]ImpactState, 0, len(b.states))
	for _, s := range b.states {
		out = append(out, *s)
	}
	return out
}
