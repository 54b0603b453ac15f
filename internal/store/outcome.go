package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dotcommander/recall/internal/models"
)

// RecordRecallOutcomeTx inserts the audit row for a point's pending ->
// recalled transition inside an existing transaction. A unique index on
// (session_id, recall_point_id) enforces that a point transitions at most
// once per session (§3 invariant): a second insert fails with a unique
// constraint violation, which callers should treat as already-recalled.
func RecordRecallOutcomeTx(ctx context.Context, tx *sql.Tx, outcome models.RecallOutcome) (*models.RecallOutcome, error) {
	id := NewID("outcome")
	now := time.Now().UTC()

	_, err := tx.ExecContext(ctx, `
		INSERT INTO recall_outcomes (
			id, session_id, recall_point_id, success, confidence, rating, reasoning,
			range_start, range_end, time_spent_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, outcome.SessionID, outcome.RecallPointID, outcome.Success, outcome.Confidence,
		string(outcome.Rating), outcome.Reasoning,
		outcome.MessageIndexRange.Start, outcome.MessageIndexRange.End,
		outcome.TimeSpentMS, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert recall outcome: %w", err)
	}

	outcome.ID = id
	outcome.CreatedAt = now
	return &outcome, nil
}

// ListRecallOutcomes returns every outcome recorded for a session, ordered
// by creation time.
func ListRecallOutcomes(ctx context.Context, db *sql.DB, sessionID string) ([]models.RecallOutcome, error) {
	var outcomes []models.RecallOutcome
	err := RetryWithBackoff(ctx, func() error {
		rows, err := db.QueryContext(ctx, `
			SELECT id, session_id, recall_point_id, success, confidence, rating, reasoning,
				range_start, range_end, time_spent_ms, created_at
			FROM recall_outcomes
			WHERE session_id = ?
			ORDER BY created_at ASC
		`, sessionID)
		if err != nil {
			return fmt.Errorf("failed to query recall outcomes: %w", err)
		}
		defer func() { _ = rows.Close() }()

		outcomes = make([]models.RecallOutcome, 0)
		for rows.Next() {
			var o models.RecallOutcome
			var rating string
			if err := rows.Scan(&o.ID, &o.SessionID, &o.RecallPointID, &o.Success, &o.Confidence, &rating, &o.Reasoning,
				&o.MessageIndexRange.Start, &o.MessageIndexRange.End, &o.TimeSpentMS, &o.CreatedAt); err != nil {
				return fmt.Errorf("failed to scan recall outcome: %w", err)
			}
			o.Rating = models.FSRSRating(rating)
			outcomes = append(outcomes, o)
		}
		return rows.Err()
	})
	return outcomes, err
}
