package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dotcommander/recall/internal/models"
)

// SaveSessionMetrics persists the computed metrics row for a completed
// session (§4.7). The engine's metrics collector is the only producer;
// storage here is a plain upsert since metrics are only ever computed once,
// at finalize time.
func SaveSessionMetrics(ctx context.Context, db *sql.DB, m models.SessionMetrics) (*models.SessionMetrics, error) {
	err := Transact(ctx, db, func(tx *sql.Tx) error {
		if m.ID == "" {
			m.ID = NewID("metrics")
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		encoded, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to encode session metrics: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO session_metrics (id, session_id, metrics_json, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(session_id) DO UPDATE SET metrics_json = excluded.metrics_json
		`, m.ID, m.SessionID, string(encoded), m.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert session metrics: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetSessionMetrics retrieves the metrics row for a session, if computed.
func GetSessionMetrics(ctx context.Context, db *sql.DB, sessionID string) (*models.SessionMetrics, error) {
	var metricsJSON string
	err := RetryWithBackoff(ctx, func() error {
		return db.QueryRowContext(ctx, `SELECT metrics_json FROM session_metrics WHERE session_id = ?`, sessionID).Scan(&metricsJSON)
	})
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "session_metrics", ID: sessionID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session metrics: %w", err)
	}

	var m models.SessionMetrics
	if err := json.Unmarshal([]byte(metricsJSON), &m); err != nil {
		return nil, fmt.Errorf("failed to decode session metrics: %w", err)
	}
	return &m, nil
}
