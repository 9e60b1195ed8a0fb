// Package money provides exact-decimal helpers for account balances and cash
// flows, since float64 cannot satisfy the platform's balance invariant
// (sum of flows into an account minus flows out equals its balance).
package money

import "github.com/shopspring/decimal"

// Amount is a re-export of decimal.Decimal so callers in this module don't
// need to import shopspring/decimal directly.
type Amount = decimal.Decimal

// Zero is the additive identity.
var Zero = decimal.Zero

// FromFloat converts a float64 (e.g. a parsed JSON request field) to Amount.
func FromFloat(f float64) Amount {
	return decimal.NewFromFloat(f)
}

// Convert applies an FX rate to move an amount from one currency's terms to
// another's, rounding to 8 decimal places (matches the precision CashFlow
// persists at).
func Convert(amount Amount, fxRate Amount) Amount {
	return amount.Mul(fxRate).Round(8)
}
