package dbgateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SimulatorQueries covers simulator.instances, the "simulator" method group
// from spec §9, keyed by the C3-issued pod lifecycle.
type SimulatorQueries struct {
	db *sql.DB
}

func (q *SimulatorQueries) Create(ctx context.Context, s Simulator) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO simulator_instances (simulator_id, session_id, user_id, endpoint, pod_name, status, created_at, last_active)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, s.SimulatorID, s.SessionID, s.UserID, s.Endpoint, s.PodName, s.Status)
	return err
}

func (q *SimulatorQueries) ByID(ctx context.Context, simulatorID string) (Simulator, error) {
	var s Simulator
	err := q.db.QueryRowContext(ctx, `
		SELECT simulator_id, session_id, user_id, endpoint, pod_name, status, termination_reason, created_at, last_active
		FROM simulator_instances WHERE simulator_id = ?
	`, simulatorID).Scan(&s.SimulatorID, &s.SessionID, &s.UserID, &s.Endpoint, &s.PodName, &s.Status, &s.TerminationReason, &s.CreatedAt, &s.LastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return Simulator{}, ErrNotFound
	}
	if err != nil {
		return Simulator{}, fmt.Errorf("query simulator: %w", err)
	}
	return s, nil
}

func (q *SimulatorQueries) BySession(ctx context.Context, sessionID string) (Simulator, error) {
	var s Simulator
	err := q.db.QueryRowContext(ctx, `
		SELECT simulator_id, session_id, user_id, endpoint, pod_name, status, termination_reason, created_at, last_active
		FROM simulator_instances WHERE session_id = ?
		ORDER BY created_at DESC LIMIT 1
	`, sessionID).Scan(&s.SimulatorID, &s.SessionID, &s.UserID, &s.Endpoint, &s.PodName, &s.Status, &s.TerminationReason, &s.CreatedAt, &s.LastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return Simulator{}, ErrNotFound
	}
	if err != nil {
		return Simulator{}, fmt.Errorf("query simulator by session: %w", err)
	}
	return s, nil
}

func (q *SimulatorQueries) UpdateStatus(ctx context.Context, simulatorID string, status SimulatorStatus, reason string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE simulator_instances SET status = ?, termination_reason = ?, last_active = CURRENT_TIMESTAMP WHERE simulator_id = ?
	`, status, reason, simulatorID)
	return err
}

func (q *SimulatorQueries) Touch(ctx context.Context, simulatorID string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE simulator_instances SET last_active = CURRENT_TIMESTAMP WHERE simulator_id = ?
	`, simulatorID)
	return err
}

// Running lists every simulator not yet STOPPED/ERROR. C3's reconciliation
// sweep works from the container API instead and does not call it.
func (q *SimulatorQueries) Running(ctx context.Context) ([]Simulator, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT simulator_id, session_id, user_id, endpoint, pod_name, status, termination_reason, created_at, last_active
		FROM simulator_instances WHERE status NOT IN ('STOPPED', 'ERROR')
	`)
	if err != nil {
		return nil, fmt.Errorf("query running simulators: %w", err)
	}
	defer rows.Close()

	var out []Simulator
	for rows.Next() {
		var s Simulator
		if err := rows.Scan(&s.SimulatorID, &s.SessionID, &s.UserID, &s.Endpoint, &s.PodName, &s.Status, &s.TerminationReason, &s.CreatedAt, &s.LastActive); err != nil {
			return nil, fmt.Errorf("scan simulator: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (q *SimulatorQueries) Delete(ctx context.Context, simulatorID string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM simulator_instances WHERE simulator_id = ?`, simulatorID)
	return err
}
