package dbgateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// OrderQueries covers trading.orders, the "orders" method group from spec §9.
type OrderQueries struct {
	db *sql.DB
}

func (q *OrderQueries) Create(ctx context.Context, o Order) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO trading_orders (order_id, user_id, session_id, symbol, side, type, quantity, price, status,
			filled_quantity, avg_price, request_id, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, o.OrderID, o.UserID, o.SessionID, o.Symbol, o.Side, o.Type, o.Quantity, o.Price, o.Status,
		o.FilledQuantity, o.AvgPrice, o.RequestID, o.ErrorMessage)
	return err
}

func (q *OrderQueries) ByID(ctx context.Context, orderID string) (Order, error) {
	var o Order
	err := q.db.QueryRowContext(ctx, `
		SELECT order_id, user_id, session_id, symbol, side, type, quantity, price, status,
		       filled_quantity, avg_price, request_id, error_message, created_at, updated_at
		FROM trading_orders WHERE order_id = ?
	`, orderID).Scan(&o.OrderID, &o.UserID, &o.SessionID, &o.Symbol, &o.Side, &o.Type, &o.Quantity, &o.Price, &o.Status,
		&o.FilledQuantity, &o.AvgPrice, &o.RequestID, &o.ErrorMessage, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("query order: %w", err)
	}
	return o, nil
}

func (q *OrderQueries) ByUser(ctx context.Context, userID string, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT order_id, user_id, session_id, symbol, side, type, quantity, price, status,
		       filled_quantity, avg_price, request_id, error_message, created_at, updated_at
		FROM trading_orders WHERE user_id = ? ORDER BY created_at DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders by user: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.OrderID, &o.UserID, &o.SessionID, &o.Symbol, &o.Side, &o.Type, &o.Quantity, &o.Price, &o.Status,
			&o.FilledQuantity, &o.AvgPrice, &o.RequestID, &o.ErrorMessage, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (q *OrderQueries) UpdateFill(ctx context.Context, orderID string, status OrderStatus, filledQty, avgPrice float64, errMsg string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE trading_orders SET status = ?, filled_quantity = ?, avg_price = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE order_id = ?
	`, status, filledQty, avgPrice, errMsg, orderID)
	return err
}

func (q *OrderQueries) Cancel(ctx context.Context, orderID string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE trading_orders SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE order_id = ? AND status IN ('NEW', 'PARTIALLY_FILLED')
	`, OrderCanceled, orderID)
	return err
}

// ByRequestID backs the per-order idempotency lookup (distinct from the
// batch-level trading_request_idempotency store, see DESIGN.md).
func (q *OrderQueries) ByRequestID(ctx context.Context, userID, requestID string) (Order, error) {
	var o Order
	err := q.db.QueryRowContext(ctx, `
		SELECT order_id, user_id, session_id, symbol, side, type, quantity, price, status,
		       filled_quantity, avg_price, request_id, error_message, created_at, updated_at
		FROM trading_orders WHERE user_id = ? AND request_id = ?
	`, userID, requestID).Scan(&o.OrderID, &o.UserID, &o.SessionID, &o.Symbol, &o.Side, &o.Type, &o.Quantity, &o.Price, &o.Status,
		&o.FilledQuantity, &o.AvgPrice, &o.RequestID, &o.ErrorMessage, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("query order by request id: %w", err)
	}
	return o, nil
}
