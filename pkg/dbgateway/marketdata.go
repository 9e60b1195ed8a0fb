package dbgateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// MarketDataQueries covers exch_us_equity.equity_data (minute bars) and the
// orchestrator_exchanges calendar C3 reads to drive its control loop.
type MarketDataQueries struct {
	db *sql.DB
}

func (q *MarketDataQueries) InsertBar(ctx context.Context, b MinuteBar) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO exch_us_equity_equity_data (symbol, ts_utc, open, high, low, close, volume, vwap)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, ts_utc) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume, vwap = excluded.vwap
	`, b.Symbol, b.TimestampUTC, b.Open, b.High, b.Low, b.Close, b.Volume, b.VWAP)
	return err
}

func (q *MarketDataQueries) BarsSince(ctx context.Context, symbol string, since string) ([]MinuteBar, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT symbol, ts_utc, open, high, low, close, volume, vwap
		FROM exch_us_equity_equity_data WHERE symbol = ? AND ts_utc >= ?
		ORDER BY ts_utc ASC
	`, symbol, since)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var out []MinuteBar
	for rows.Next() {
		var b MinuteBar
		if err := rows.Scan(&b.Symbol, &b.TimestampUTC, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.VWAP); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (q *MarketDataQueries) LatestBar(ctx context.Context, symbol string) (MinuteBar, error) {
	var b MinuteBar
	err := q.db.QueryRowContext(ctx, `
		SELECT symbol, ts_utc, open, high, low, close, volume, vwap
		FROM exch_us_equity_equity_data WHERE symbol = ?
		ORDER BY ts_utc DESC LIMIT 1
	`, symbol).Scan(&b.Symbol, &b.TimestampUTC, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.VWAP)
	if errors.Is(err, sql.ErrNoRows) {
		return MinuteBar{}, ErrNotFound
	}
	if err != nil {
		return MinuteBar{}, fmt.Errorf("query latest bar: %w", err)
	}
	return b, nil
}

func (q *MarketDataQueries) Exchanges(ctx context.Context) ([]Exchange, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT exch_id, timezone, pre_open, open, close, post_close, symbols FROM orchestrator_exchanges
	`)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var e Exchange
		var symbols string
		if err := rows.Scan(&e.ExchID, &e.Timezone, &e.PreOpen, &e.Open, &e.Close, &e.PostClose, &symbols); err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		if symbols != "" {
			e.Symbols = strings.Split(symbols, ",")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (q *MarketDataQueries) UpsertExchange(ctx context.Context, e Exchange) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO orchestrator_exchanges (exch_id, timezone, pre_open, open, close, post_close, symbols)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(exch_id) DO UPDATE SET
			timezone = excluded.timezone, pre_open = excluded.pre_open, open = excluded.open,
			close = excluded.close, post_close = excluded.post_close, symbols = excluded.symbols
	`, e.ExchID, e.Timezone, e.PreOpen, e.Open, e.Close, e.PostClose, strings.Join(e.Symbols, ","))
	return err
}
