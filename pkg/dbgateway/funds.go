package dbgateway

import (
	"context"
	"database/sql"
	"fmt"
)

// FundQueries backs the out-of-scope REST /api/funds and /api/books CRUD
// named in spec §6; C4 forwards to these, nothing downstream consults them.
type FundQueries struct {
	db *sql.DB
}

func (q *FundQueries) CreateFund(ctx context.Context, f Fund) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO gateway_funds (id, user_id, name, created_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`, f.ID, f.UserID, f.Name)
	return err
}

func (q *FundQueries) FundsByUser(ctx context.Context, userID string) ([]Fund, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, name, created_at FROM gateway_funds WHERE user_id = ? ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query funds: %w", err)
	}
	defer rows.Close()

	var out []Fund
	for rows.Next() {
		var f Fund
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fund: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (q *FundQueries) CreateBook(ctx context.Context, b Book) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO gateway_books (id, fund_id, name, created_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`, b.ID, b.FundID, b.Name)
	return err
}

func (q *FundQueries) BooksByFund(ctx context.Context, fundID string) ([]Book, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, fund_id, name, created_at FROM gateway_books WHERE fund_id = ? ORDER BY created_at DESC
	`, fundID)
	if err != nil {
		return nil, fmt.Errorf("query books: %w", err)
	}
	defer rows.Close()

	var out []Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.ID, &b.FundID, &b.Name, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
