// Package rpc is the C1<->C2/C4 gRPC contract: Heartbeat, StreamExchangeData,
// SubmitOrder, CancelOrder, SubmitConviction. This exercise does not run
// protoc, so the message types below are plain Go structs carried over gRPC
// with a JSON codec (see codec.go) instead of generated protobuf marshaling —
// transport, streaming, deadlines and status codes are still the real
// google.golang.org/grpc library.
package rpc

// HeartbeatRequest resets a session's TTL timer.
type HeartbeatRequest struct {
	SessionID string `json:"session_id"`
	ClientTS  int64  `json:"client_ts"`
}

type HeartbeatResponse struct {
	OK       bool  `json:"ok"`
	ServerTS int64 `json:"server_ts"`
}

// StreamExchangeDataRequest opens the single-subscriber market/order/portfolio stream.
type StreamExchangeDataRequest struct {
	Symbols []string `json:"symbols"`
}

type MarketDataEntry struct {
	Symbol string  `json:"symbol"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
	VWAP   float64 `json:"vwap"`
}

type OrderDataEntry struct {
	OrderID       string  `json:"order_id"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Type          string  `json:"type"`
	Status        string  `json:"status"`
	Quantity      float64 `json:"quantity"`
	FilledQty     float64 `json:"filled_quantity"`
	AvgPrice      float64 `json:"avg_price"`
	ErrorMessage  string  `json:"error_message,omitempty"`
}

type PositionEntry struct {
	Symbol       string  `json:"symbol"`
	Quantity     float64 `json:"quantity"`
	AverageCost  float64 `json:"average_cost"`
	MarketValue  float64 `json:"market_value"`
}

type PortfolioSnapshot struct {
	Positions []PositionEntry `json:"positions"`
	CashByAcc map[string]string `json:"cash_by_account"` // decimal-as-string
}

// ExchangeDataUpdate is pushed once per minute-bar tick. At-least-once
// delivery; UpdateID is monotonic per simulator.
type ExchangeDataUpdate struct {
	UpdateID    int64             `json:"update_id"`
	TimestampMs int64             `json:"timestamp_ms"`
	MarketData  []MarketDataEntry `json:"market_data"`
	OrdersData  []OrderDataEntry  `json:"orders_data"`
	Portfolio   PortfolioSnapshot `json:"portfolio"`
}

// SubmitOrderRequest is idempotent on (user_id, request_id); user_id travels
// out of band (gRPC metadata / session binding), not as a message field.
type SubmitOrderRequest struct {
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Type      string  `json:"type"`
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price,omitempty"`
	RequestID string  `json:"request_id"`
}

type SubmitOrderResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

type CancelOrderRequest struct {
	OrderID string `json:"order_id"`
}

type CancelOrderResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ConvictionInput is the wire shape of one Conviction (§3 GLOSSARY).
type ConvictionInput struct {
	Symbol         string  `json:"symbol"`
	TargetWeight   float64 `json:"target_weight,omitempty"`
	TargetNotional float64 `json:"target_notional,omitempty"`
	Score          float64 `json:"score,omitempty"`
	Urgency        string  `json:"urgency"`
	RequestID      string  `json:"request_id"`
}

type SubmitConvictionRequest struct {
	Convictions []ConvictionInput `json:"convictions"`
}

type ConvictionResult struct {
	Symbol    string   `json:"symbol"`
	OrderIDs  []string `json:"order_ids"`
	Success   bool     `json:"success"`
	Error     string   `json:"error,omitempty"`
}

type SubmitConvictionResponse struct {
	Results    []ConvictionResult `json:"results"`
	DecisionLog []string          `json:"decision_log"`
}
