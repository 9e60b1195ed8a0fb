// Package distributor is C5: the single source of truth for minute bars,
// fanning each tick out to every simulator pod registered against it.
package distributor

import "time"

// Config bounds the generator's cadence and per-symbol volatility model.
type Config struct {
	Symbols       []string
	BaseVol       float64 // baseline per-minute volatility, default 0.002
	VolRedrawPct  float64 // probability per symbol per tick of a fresh vol draw, default 0.05
	PushTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseVol <= 0 {
		c.BaseVol = 0.002
	}
	if c.VolRedrawPct <= 0 {
		c.VolRedrawPct = 0.05
	}
	if c.PushTimeout <= 0 {
		c.PushTimeout = 5 * time.Second
	}
	return c
}

// RegisterRequest is the body of POST /register and POST /unregister.
type RegisterRequest struct {
	Host string `json:"host"`
	Port int    `json:"port,omitempty"`
}

// RegisterResponse mirrors the {success, message} shape the original
// registration endpoint returns.
type RegisterResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// PushedBar is the wire shape pushed to each registered client on every tick.
type PushedBar struct {
	Symbol    string  `json:"symbol"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	VWAP      float64 `json:"vwap"`
	Timestamp int64   `json:"timestamp_ms"`
}
