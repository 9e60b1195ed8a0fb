package simulator

import (
	"time"

	"github.com/shopspring/decimal"

	"simcore/pkg/dbgateway"
	"simcore/pkg/money"
)

const (
	accountCash      = "CASH"
	accountPortfolio = "PORTFOLIO"
	baseCurrency     = "USD"
)

// Ledger owns every Account balance for one user and emits an immutable
// CashFlow for each mutation (§3). Balances are exact decimals: the
// invariant `balance == sum(flows in) - sum(flows out)` must hold bit for
// bit, which float64 cannot guarantee.
type Ledger struct {
	userID   string
	balances map[string]money.Amount
}

// NewLedger creates a ledger with a zero CASH balance. CASH is credited only
// through Fund; orders submitted without funding drive it negative.
func NewLedger(userID string) *Ledger {
	return &Ledger{userID: userID, balances: make(map[string]money.Amount)}
}

func acctKey(label, currency string) string { return label + "|" + currency }

// Balance returns the current balance of (label, currency).
func (l *Ledger) Balance(label, currency string) money.Amount {
	if b, ok := l.balances[acctKey(label, currency)]; ok {
		return b
	}
	return money.Zero
}

func (l *Ledger) adjust(label, currency string, delta money.Amount) {
	k := acctKey(label, currency)
	l.balances[k] = l.balances[k].Add(delta)
}

// Fund credits the CASH account, emitting an EXTERNAL cash flow. It is
// reached through Engine.Fund; cmd/simulator does not fund the account at
// start-up.
func (l *Ledger) Fund(amount money.Amount) dbgateway.CashFlow {
	l.adjust(accountCash, baseCurrency, amount)
	return dbgateway.CashFlow{
		Timestamp:   time.Now(),
		UserID:      l.userID,
		Type:        dbgateway.FlowExternal,
		ToAccount:   accountCash,
		ToCurrency:  baseCurrency,
		ToFX:        "1",
		ToAmount:    amount.String(),
		Description: "initial funding",
	}
}

// RecordFill debits/credits CASH and PORTFOLIO for one order fill (§4.1
// step 5) and returns the CashFlow records to persist: one portfolio
// transfer, plus an account fee flow when feeRate > 0.
func (l *Ledger) RecordFill(side dbgateway.OrderSide, symbol string, qty, price, feeRate float64) []dbgateway.CashFlow {
	notional := money.FromFloat(qty).Mul(money.FromFloat(price)).Round(8)
	fee := notional.Mul(decimal.NewFromFloat(feeRate)).Round(8)
	now := time.Now()

	var flows []dbgateway.CashFlow
	switch side {
	case dbgateway.SideBuy:
		l.adjust(accountCash, baseCurrency, notional.Neg())
		l.adjust(accountPortfolio, baseCurrency, notional)
		flows = append(flows, dbgateway.CashFlow{
			Timestamp: now, UserID: l.userID, Type: dbgateway.FlowPortfolioTransfer,
			FromAccount: accountCash, FromCurrency: baseCurrency, FromFX: "1", FromAmount: notional.String(),
			ToAccount: accountPortfolio, ToCurrency: baseCurrency, ToFX: "1", ToAmount: notional.String(),
			Instrument: symbol,
		})
	case dbgateway.SideSell:
		l.adjust(accountPortfolio, baseCurrency, notional.Neg())
		l.adjust(accountCash, baseCurrency, notional)
		flows = append(flows, dbgateway.CashFlow{
			Timestamp: now, UserID: l.userID, Type: dbgateway.FlowPortfolioTransfer,
			FromAccount: accountPortfolio, FromCurrency: baseCurrency, FromFX: "1", FromAmount: notional.String(),
			ToAccount: accountCash, ToCurrency: baseCurrency, ToFX: "1", ToAmount: notional.String(),
			Instrument: symbol,
		})
	}

	if fee.IsPositive() {
		l.adjust(accountCash, baseCurrency, fee.Neg())
		flows = append(flows, dbgateway.CashFlow{
			Timestamp: now, UserID: l.userID, Type: dbgateway.FlowAccountFee,
			FromAccount: accountCash, FromCurrency: baseCurrency, FromFX: "1", FromAmount: fee.String(),
			Instrument: symbol, Description: "execution fee",
		})
	}
	return flows
}

// Snapshot returns every account balance the ledger has touched (zero
// balances included) as a decimal string, keyed by "label|currency".
func (l *Ledger) Snapshot() map[string]string {
	out := make(map[string]string, len(l.balances))
	for k, v := range l.balances {
		out[k] = v.String()
	}
	return out
}
