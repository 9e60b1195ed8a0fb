package dbgateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SessionQueries covers session.active_sessions and session.session_metadata (§3/§6).
type SessionQueries struct {
	db *sql.DB
}

func (q *SessionQueries) Create(ctx context.Context, s Session) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO session_active_sessions (session_id, user_id, device_id, pod_name, status, created_at, last_active, expires_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, ?)
	`, s.SessionID, s.UserID, s.DeviceID, s.PodName, s.Status, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO session_session_metadata (session_id, device_id) VALUES (?, ?)
	`, s.SessionID, s.DeviceID)
	return err
}

func (q *SessionQueries) ByID(ctx context.Context, sessionID string) (Session, error) {
	var s Session
	err := q.db.QueryRowContext(ctx, `
		SELECT session_id, user_id, device_id, pod_name, status, created_at, last_active, expires_at
		FROM session_active_sessions WHERE session_id = ?
	`, sessionID).Scan(&s.SessionID, &s.UserID, &s.DeviceID, &s.PodName, &s.Status, &s.CreatedAt, &s.LastActive, &s.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("query session: %w", err)
	}
	return s, nil
}

// ByUser returns the user's current session, if any. §4.2 guarantees at most
// one active session per user.
func (q *SessionQueries) ByUser(ctx context.Context, userID string) (Session, error) {
	var s Session
	err := q.db.QueryRowContext(ctx, `
		SELECT session_id, user_id, device_id, pod_name, status, created_at, last_active, expires_at
		FROM session_active_sessions WHERE user_id = ?
		ORDER BY created_at DESC LIMIT 1
	`, userID).Scan(&s.SessionID, &s.UserID, &s.DeviceID, &s.PodName, &s.Status, &s.CreatedAt, &s.LastActive, &s.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("query session by user: %w", err)
	}
	return s, nil
}

func (q *SessionQueries) UpdateStatus(ctx context.Context, sessionID string, status SessionStatus) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE session_active_sessions SET status = ?, last_active = CURRENT_TIMESTAMP WHERE session_id = ?
	`, status, sessionID)
	return err
}

func (q *SessionQueries) Touch(ctx context.Context, sessionID string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE session_active_sessions SET last_active = CURRENT_TIMESTAMP WHERE session_id = ?
	`, sessionID)
	return err
}

func (q *SessionQueries) BindDevice(ctx context.Context, sessionID, deviceID string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE session_active_sessions SET device_id = ? WHERE session_id = ?
	`, deviceID, sessionID)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		UPDATE session_session_metadata SET device_id = ?, reconnect_count = reconnect_count + 1 WHERE session_id = ?
	`, deviceID, sessionID)
	return err
}

func (q *SessionQueries) Delete(ctx context.Context, sessionID string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM session_session_metadata WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	_, err := q.db.ExecContext(ctx, `DELETE FROM session_active_sessions WHERE session_id = ?`, sessionID)
	return err
}

// ExpiredBefore lists sessions whose TTL has lapsed and that are not yet
// EXPIRED. No component in this module calls it.
func (q *SessionQueries) ExpiredBefore(ctx context.Context, cutoff string) ([]Session, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT session_id, user_id, device_id, pod_name, status, created_at, last_active, expires_at
		FROM session_active_sessions WHERE expires_at < ? AND status != 'EXPIRED'
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query expired sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.SessionID, &s.UserID, &s.DeviceID, &s.PodName, &s.Status, &s.CreatedAt, &s.LastActive, &s.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (q *SessionQueries) Metadata(ctx context.Context, sessionID string) (SessionMetadata, error) {
	var m SessionMetadata
	err := q.db.QueryRowContext(ctx, `
		SELECT session_id, device_id, simulator_id, simulator_status, simulator_endpoint,
		       ip_address, connection_quality, heartbeat_latency_ms, missed_heartbeats,
		       reconnect_count, termination_reason
		FROM session_session_metadata WHERE session_id = ?
	`, sessionID).Scan(&m.SessionID, &m.DeviceID, &m.SimulatorID, &m.SimulatorStatus, &m.SimulatorEndpoint,
		&m.IPAddress, &m.ConnectionQuality, &m.HeartbeatLatencyMs, &m.MissedHeartbeats,
		&m.ReconnectCount, &m.TerminationReason)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionMetadata{}, ErrNotFound
	}
	if err != nil {
		return SessionMetadata{}, fmt.Errorf("query session metadata: %w", err)
	}
	return m, nil
}

func (q *SessionQueries) UpdateMetadata(ctx context.Context, m SessionMetadata) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE session_session_metadata SET
			simulator_id = ?, simulator_status = ?, simulator_endpoint = ?,
			ip_address = ?, connection_quality = ?, heartbeat_latency_ms = ?,
			missed_heartbeats = ?, termination_reason = ?
		WHERE session_id = ?
	`, m.SimulatorID, m.SimulatorStatus, m.SimulatorEndpoint, m.IPAddress, m.ConnectionQuality,
		m.HeartbeatLatencyMs, m.MissedHeartbeats, m.TerminationReason, m.SessionID)
	return err
}
