package dbgateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// LedgerQueries covers exch_us_equity.cash_flow_data and the account balance
// table backing it. Amounts round-trip as decimal strings (see pkg/money),
// and each row additionally carries a msgpack-encoded blob (see codec.go) so
// the §8 byte-identical encode/decode invariant holds across process restarts.
type LedgerQueries struct {
	db *sql.DB
}

// RecordCashFlow persists cf both in its relational columns (queryable by
// the rest of the gateway) and as an `encoded` msgpack blob, so a read back
// through CashFlowsByUser rehydrates from the exact bytes a second encode
// reproduces byte-for-byte (§8).
func (q *LedgerQueries) RecordCashFlow(ctx context.Context, cf CashFlow) error {
	encoded, err := EncodeCashFlow(cf)
	if err != nil {
		return fmt.Errorf("encode cash flow: %w", err)
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO exch_us_equity_cash_flow_data
			(ts_utc, user_id, type, from_account, from_currency, from_fx, from_amount,
			 to_account, to_currency, to_fx, to_amount, instrument, trade_id, description, encoded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, cf.Timestamp, cf.UserID, cf.Type, cf.FromAccount, cf.FromCurrency, cf.FromFX, cf.FromAmount,
		cf.ToAccount, cf.ToCurrency, cf.ToFX, cf.ToAmount, cf.Instrument, cf.TradeID, cf.Description, encoded)
	return err
}

func (q *LedgerQueries) CashFlowsByUser(ctx context.Context, userID string, limit int) ([]CashFlow, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT encoded
		FROM exch_us_equity_cash_flow_data WHERE user_id = ? ORDER BY ts_utc DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query cash flows: %w", err)
	}
	defer rows.Close()

	var out []CashFlow
	for rows.Next() {
		var encoded []byte
		if err := rows.Scan(&encoded); err != nil {
			return nil, fmt.Errorf("scan cash flow: %w", err)
		}
		cf, err := DecodeCashFlow(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode cash flow: %w", err)
		}
		out = append(out, cf)
	}
	return out, rows.Err()
}

func (q *LedgerQueries) Account(ctx context.Context, userID, label, currency string) (Account, error) {
	var a Account
	err := q.db.QueryRowContext(ctx, `
		SELECT user_id, label, currency, balance, updated_at
		FROM ledger_accounts WHERE user_id = ? AND label = ? AND currency = ?
	`, userID, label, currency).Scan(&a.UserID, &a.Label, &a.Currency, &a.Balance, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{UserID: userID, Label: label, Currency: currency, Balance: "0"}, nil
	}
	if err != nil {
		return Account{}, fmt.Errorf("query account: %w", err)
	}
	return a, nil
}

func (q *LedgerQueries) SetBalance(ctx context.Context, a Account) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO ledger_accounts (user_id, label, currency, balance, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id, label, currency) DO UPDATE SET
			balance = excluded.balance, updated_at = CURRENT_TIMESTAMP
	`, a.UserID, a.Label, a.Currency, a.Balance)
	return err
}

func (q *LedgerQueries) AccountsByUser(ctx context.Context, userID string) ([]Account, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT user_id, label, currency, balance, updated_at FROM ledger_accounts WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.UserID, &a.Label, &a.Currency, &a.Balance, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
