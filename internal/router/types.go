// Package router is C4: the stateless REST front door. It authenticates,
// validates, resolves (user_id) -> the user's simulator pod, and forwards
// order/conviction requests over the same gRPC contract C2 uses to talk to
// C1 (§4.4: "resolve (user_id) -> C2 pod, forward").
package router

import "time"

// Config bounds token lifetimes and batch/lock limits.
type Config struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	BatchCap           int // default 100, §4.4/§8
	LockTTL            time.Duration
	IdempotencyTTL     time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchCap <= 0 {
		c.BatchCap = 100
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	if c.IdempotencyTTL <= 0 {
		c.IdempotencyTTL = 24 * time.Hour
	}
	if c.AccessTokenExpiry <= 0 {
		c.AccessTokenExpiry = time.Hour
	}
	if c.RefreshTokenExpiry <= 0 {
		c.RefreshTokenExpiry = 30 * 24 * time.Hour
	}
	return c
}

// OrderRequest is one item of a /api/orders/submit batch.
type OrderRequest struct {
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Type      string  `json:"type"`
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price,omitempty"`
	RequestID string  `json:"request_id,omitempty"`
}

// ItemResult is one item of any batch response (§4.4: "aggregate response
// preserves input order").
type ItemResult struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

type SubmitOrdersRequest struct {
	Orders []OrderRequest `json:"orders"`
}

type BatchResponse struct {
	Results []ItemResult `json:"results"`
}

type CancelOrdersRequest struct {
	OrderIDs []string `json:"orderIds"`
}

// ConvictionRequest is one item of a /api/convictions/submit batch (§3 GLOSSARY).
type ConvictionRequest struct {
	Symbol         string  `json:"symbol"`
	TargetWeight   float64 `json:"target_weight,omitempty"`
	TargetNotional float64 `json:"target_notional,omitempty"`
	Score          float64 `json:"score,omitempty"`
	Urgency        string  `json:"urgency"`
	RequestID      string  `json:"request_id,omitempty"`
}

type SubmitConvictionsRequest struct {
	Convictions []ConvictionRequest `json:"convictions"`
}

type ConvictionItemResult struct {
	Symbol   string   `json:"symbol"`
	OrderIDs []string `json:"order_ids,omitempty"`
	Success  bool     `json:"success"`
	Error    string   `json:"error,omitempty"`
}

type ConvictionBatchResponse struct {
	Results     []ConvictionItemResult `json:"results"`
	DecisionLog []string               `json:"decision_log,omitempty"`
}

type CancelConvictionsRequest struct {
	ConvictionIDs []string `json:"convictionIds"`
}

type FundRequest struct {
	Name string `json:"name"`
}

type BookRequest struct {
	FundID string `json:"fundId"`
	Name   string `json:"name"`
}

type FeedbackRequest struct {
	Message string `json:"message"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	UserID      string `json:"userId"`
}
