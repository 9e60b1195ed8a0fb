// Package simulator implements C1, the exchange-simulator engine: one
// process per (user_id, session_id) owning the authoritative portfolio,
// accounts, orders, impacts and convictions for that user, exposed over the
// gRPC contract in internal/rpc.
package simulator

import (
	"time"

	"simcore/pkg/dbgateway"
)

// Position mirrors spec §3: quantity is never negative, the core engine
// does not model shorting.
type Position struct {
	Symbol       string
	Quantity     float64
	AverageCost  float64
	MarketValue  float64
}

// ImpactState models post-trade price drift per symbol (§3).
type ImpactState struct {
	Symbol           string
	CurrentImpact    float64
	PreviousImpact   float64
	BasePrice        float64
	ImpactedPrice    float64
	CumulativeVolume float64
	StartTS          time.Time
	EndTS            time.Time
}

// OrderRecord is the engine's live, mutable view of an Order (§3). It shares
// dbgateway's enums so persistence requires no translation layer.
type OrderRecord struct {
	OrderID        string
	UserID         string
	SessionID      string
	Symbol         string
	Side           dbgateway.OrderSide
	Type           dbgateway.OrderType
	Quantity       float64
	Price          float64
	Status         dbgateway.OrderStatus
	FilledQuantity float64
	AvgPrice       float64
	RequestID      string
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Terminal reports whether the order has reached an absorbing status (§3).
func (o *OrderRecord) Terminal() bool {
	switch o.Status {
	case dbgateway.OrderFilled, dbgateway.OrderCanceled, dbgateway.OrderRejected:
		return true
	default:
		return false
	}
}

// Urgency enumerates Conviction.urgency (§3).
type Urgency string

const (
	UrgencyLow    Urgency = "LOW"
	UrgencyMedium Urgency = "MEDIUM"
	UrgencyHigh   Urgency = "HIGH"
)

// ConvictionInput is one entry of a SubmitConviction batch (§4.1).
type ConvictionInput struct {
	Symbol         string
	TargetWeight   float64
	TargetNotional float64
	Score          float64
	Urgency        Urgency
	RequestID      string
}

// DecisionLogEntry is one append-only step of the conviction pipeline (§4.1).
type DecisionLogEntry struct {
	Stage   string
	Symbol  string
	Message string
}

// ConvictionResult is the per-conviction outcome of SubmitConviction.
type ConvictionResult struct {
	Symbol  string
	OrderIDs []string
	Success bool
	Error   string
}

// SubmitOrderInput is the validated request shape for SubmitOrder (§4.1).
type SubmitOrderInput struct {
	UserID    string
	SessionID string
	Symbol    string
	Side      dbgateway.OrderSide
	Type      dbgateway.OrderType
	Quantity  float64
	Price     float64
	RequestID string
}

// SubmitOrderResult is SubmitOrder's response shape.
type SubmitOrderResult struct {
	Success bool
	OrderID string
	Error   string
}
