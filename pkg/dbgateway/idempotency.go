package dbgateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// IdempotencyQueries covers trading.request_idempotency: a batch-level
// (user_id, request_id) response cache. C4's router keeps its own in-memory
// cache and does not read or write this table.
// Kept as one table with a domain discriminator, but orders and convictions
// never share a key space (see DESIGN.md's Open Question decision).
type IdempotencyQueries struct {
	db *sql.DB
}

const idempotencyTTL = 24 * time.Hour

func (q *IdempotencyQueries) Lookup(ctx context.Context, userID, requestID, domain string) (IdempotencyRecord, error) {
	var r IdempotencyRecord
	err := q.db.QueryRowContext(ctx, `
		SELECT user_id, request_id, domain, response_json, created_at
		FROM trading_request_idempotency
		WHERE user_id = ? AND request_id = ? AND domain = ?
	`, userID, requestID, domain).Scan(&r.UserID, &r.RequestID, &r.Domain, &r.ResponseJSON, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return IdempotencyRecord{}, ErrNotFound
	}
	if err != nil {
		return IdempotencyRecord{}, fmt.Errorf("query idempotency record: %w", err)
	}
	if time.Since(r.CreatedAt) > idempotencyTTL {
		return IdempotencyRecord{}, ErrNotFound
	}
	return r, nil
}

func (q *IdempotencyQueries) Store(ctx context.Context, r IdempotencyRecord) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO trading_request_idempotency (user_id, request_id, domain, response_json, created_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id, request_id, domain) DO NOTHING
	`, r.UserID, r.RequestID, r.Domain, r.ResponseJSON)
	return err
}

// Prune deletes records older than the TTL. No component in this module
// calls it.
func (q *IdempotencyQueries) Prune(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		DELETE FROM trading_request_idempotency WHERE created_at < ?
	`, time.Now().Add(-idempotencyTTL))
	if err != nil {
		return 0, fmt.Errorf("prune idempotency records: %w", err)
	}
	return res.RowsAffected()
}
