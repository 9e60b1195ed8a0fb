package simulator

import (
	"fmt"
	"math"

	"simcore/pkg/dbgateway"
)

// UrgencyProfile carries the participation_rate/max_duration_hours tagged
// onto generated orders, keyed by Conviction.urgency (§4.1).
type UrgencyProfile struct {
	ParticipationRate float64
	MaxDurationHours  float64
}

// PipelineConfig parameterises the five conviction pipeline stages (§4.1).
type PipelineConfig struct {
	AUM                   float64
	MaxPositionSize       float64 // constraint_manager: |w| <= MaxPositionSize
	ADVParticipationCap   bool
	MaxADVParticipation   float64
	ADVUSD                map[string]float64
	SinglePositionHardCap float64 // risk_manager hard cap, may be tighter than MaxPositionSize
	AllowedRiskModelTypes []string
	RiskModelType         string
	TargetLeverage        float64 // solver: scale gross leverage down to this cap when above it
	MinPositionSize       float64 // solver: drop positions below this weight
	MinTradeSize          float64 // order_generator: skip orders below this weight delta
	Urgency               map[Urgency]UrgencyProfile
}

// DefaultPipelineConfig returns permissive defaults suitable for a freshly
// created simulator with no per-user risk config loaded yet.
func DefaultPipelineConfig(aum float64) PipelineConfig {
	return PipelineConfig{
		AUM:                   aum,
		MaxPositionSize:       0.25,
		ADVParticipationCap:   false,
		MaxADVParticipation:   0.1,
		ADVUSD:                map[string]float64{},
		SinglePositionHardCap: 0.30,
		AllowedRiskModelTypes: []string{"standard"},
		RiskModelType:         "standard",
		TargetLeverage:        1.0,
		MinPositionSize:       0.005,
		MinTradeSize:          0.002,
		Urgency: map[Urgency]UrgencyProfile{
			UrgencyLow:    {ParticipationRate: 0.05, MaxDurationHours: 24},
			UrgencyMedium: {ParticipationRate: 0.15, MaxDurationHours: 6},
			UrgencyHigh:   {ParticipationRate: 0.40, MaxDurationHours: 1},
		},
	}
}

// GeneratedOrder is order_generator's output: a SubmitOrderInput plus the
// urgency tags and the decision log entries leading to it.
type GeneratedOrder struct {
	Input             SubmitOrderInput
	ParticipationRate float64
	MaxDurationHours  float64
}

// RunPipeline executes alpha_processor -> constraint_manager -> risk_manager
// -> solver -> order_generator for one batch of convictions (§4.1),
// returning the orders to submit and the append-only decision log.
func RunPipeline(cfg PipelineConfig, portfolio *Portfolio, convictions []ConvictionInput) ([]GeneratedOrder, []DecisionLogEntry) {
	var log []DecisionLogEntry
	weights := make(map[string]float64, len(convictions))

	// alpha_processor: validate weight bounds and urgency enum.
	for _, c := range convictions {
		target := resolveTargetWeight(cfg.AUM, c)
		if math.IsNaN(target) || math.Abs(target) > 1 {
			log = append(log, DecisionLogEntry{Stage: "alpha_processor", Symbol: c.Symbol, Message: "rejected: target weight out of [-1,1]"})
			continue
		}
		switch c.Urgency {
		case UrgencyLow, UrgencyMedium, UrgencyHigh:
		default:
			log = append(log, DecisionLogEntry{Stage: "alpha_processor", Symbol: c.Symbol, Message: fmt.Sprintf("rejected: unknown urgency %q", c.Urgency)})
			continue
		}
		weights[c.Symbol] = target
		log = append(log, DecisionLogEntry{Stage: "alpha_processor", Symbol: c.Symbol, Message: fmt.Sprintf("accepted target_weight=%.6f", target)})
	}

	// constraint_manager: clip to position limit and optional ADV cap.
	for sym, w := range weights {
		clipped := clip(w, cfg.MaxPositionSize)
		if cfg.ADVParticipationCap && cfg.AUM > 0 {
			if adv, ok := cfg.ADVUSD[sym]; ok {
				advCap := (adv * cfg.MaxADVParticipation) / cfg.AUM
				clipped = clip(clipped, advCap)
			}
		}
		if clipped != w {
			log = append(log, DecisionLogEntry{Stage: "constraint_manager", Symbol: sym, Message: fmt.Sprintf("clipped %.6f -> %.6f", w, clipped)})
		}
		weights[sym] = clipped
	}

	// risk_manager: single-position hard cap and risk-model-type gate.
	allowed := allowedModel(cfg)
	for sym, w := range weights {
		if !allowed {
			log = append(log, DecisionLogEntry{Stage: "risk_manager", Symbol: sym, Message: fmt.Sprintf("rejected: risk model %q not permitted", cfg.RiskModelType)})
			delete(weights, sym)
			continue
		}
		clipped := clip(w, cfg.SinglePositionHardCap)
		if clipped != w {
			log = append(log, DecisionLogEntry{Stage: "risk_manager", Symbol: sym, Message: fmt.Sprintf("hard-capped %.6f -> %.6f", w, clipped)})
		}
		weights[sym] = clipped
	}

	// solver: scale gross exposure down to target leverage when it exceeds it
	// (a smaller book is left as is), drop dust positions.
	var gross float64
	for _, w := range weights {
		gross += math.Abs(w)
	}
	if gross > cfg.TargetLeverage && gross > 0 {
		scale := cfg.TargetLeverage / gross
		for sym, w := range weights {
			weights[sym] = w * scale
		}
		log = append(log, DecisionLogEntry{Stage: "solver", Message: fmt.Sprintf("scaled gross exposure %.6f -> %.6f (factor %.6f)", gross, cfg.TargetLeverage, scale)})
	}
	for sym, w := range weights {
		if math.Abs(w) < cfg.MinPositionSize {
			log = append(log, DecisionLogEntry{Stage: "solver", Symbol: sym, Message: fmt.Sprintf("dropped: |%.6f| below min_position_size", w)})
			delete(weights, sym)
		}
	}

	// order_generator: one order per symbol whose delta-weight clears the
	// min_trade_size threshold, tagged with the urgency profile.
	urgencyBySymbol := make(map[string]Urgency, len(convictions))
	for _, c := range convictions {
		urgencyBySymbol[c.Symbol] = c.Urgency
	}

	var orders []GeneratedOrder
	for sym, targetWeight := range weights {
		heldWeight := currentWeight(cfg.AUM, portfolio.Position(sym))
		delta := targetWeight - heldWeight
		if math.Abs(delta) < cfg.MinTradeSize {
			log = append(log, DecisionLogEntry{Stage: "order_generator", Symbol: sym, Message: fmt.Sprintf("skipped: delta_weight %.6f below min_trade_size", delta)})
			continue
		}

		side := dbgateway.SideBuy
		if delta < 0 {
			side = dbgateway.SideSell
		}
		qty := math.Abs(delta) * cfg.AUM
		profile := cfg.Urgency[urgencyBySymbol[sym]]
		orders = append(orders, GeneratedOrder{
			Input: SubmitOrderInput{
				Symbol:   sym,
				Side:     side,
				Type:     dbgateway.TypeMarket,
				Quantity: qty,
			},
			ParticipationRate: profile.ParticipationRate,
			MaxDurationHours:  profile.MaxDurationHours,
		})
		log = append(log, DecisionLogEntry{Stage: "order_generator", Symbol: sym, Message: fmt.Sprintf("generated %s qty=%.6f participation=%.2f", side, qty, profile.ParticipationRate)})
	}

	return orders, log
}

func resolveTargetWeight(aum float64, c ConvictionInput) float64 {
	if c.TargetWeight != 0 {
		return c.TargetWeight
	}
	if aum > 0 && c.TargetNotional != 0 {
		return c.TargetNotional / aum
	}
	return c.Score
}

func clip(w, bound float64) float64 {
	if bound <= 0 {
		return w
	}
	if w > bound {
		return bound
	}
	if w < -bound {
		return -bound
	}
	return w
}

func allowedModel(cfg PipelineConfig) bool {
	for _, m := range cfg.AllowedRiskModelTypes {
		if m == cfg.RiskModelType {
			return true
		}
	}
	return false
}

func currentWeight(aum float64, pos *Position) float64 {
	if aum <= 0 {
		return 0
	}
	return pos.MarketValue / aum
}
