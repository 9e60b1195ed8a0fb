package dbgateway

import (
	"context"
	"database/sql"
	"fmt"
)

// FeedbackQueries backs the REST /api/feedback CRUD named in spec §6,
// the "feedback" method group from §9.
type FeedbackQueries struct {
	db *sql.DB
}

func (q *FeedbackQueries) Create(ctx context.Context, f Feedback) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO gateway_feedback (id, user_id, message, created_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`, f.ID, f.UserID, f.Message)
	return err
}

func (q *FeedbackQueries) ByUser(ctx context.Context, userID string) ([]Feedback, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, message, created_at FROM gateway_feedback WHERE user_id = ? ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}
	defer rows.Close()

	var out []Feedback
	for rows.Next() {
		var f Feedback
		if err := rows.Scan(&f.ID, &f.UserID, &f.Message, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
