package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dotcommander/recall/internal/models"
)

// EnsureRecallPoint inserts a recall point if (recall_set_id, content) does
// not already exist, then returns the (possibly pre-existing) row. This is
// the seed loader's idempotent entry point (§4.11): re-running a seed file
// never duplicates a fact.
func EnsureRecallPoint(ctx context.Context, db *sql.DB, recallSetID, content, pointContext string, initial models.FSRSState) (*models.RecallPoint, bool, error) {
	var point *models.RecallPoint
	var created bool

	err := Transact(ctx, db, func(tx *sql.Tx) error {
		id := NewID("point")
		now := time.Now().UTC()

		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO recall_points (
				id, recall_set_id, content, context,
				fsrs_difficulty, fsrs_stability, fsrs_due, fsrs_last_review,
				fsrs_reps, fsrs_lapses, fsrs_state,
				history_json, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?, '[]', ?, ?)
		`, id, recallSetID, content, pointContext,
			initial.Difficulty, initial.Stability, initial.Due,
			initial.Reps, initial.Lapses, string(initial.State),
			now, now)
		if err != nil {
			return fmt.Errorf("failed to insert recall point: %w", err)
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = ra > 0

		p, err := scanRecallPointTx(ctx, tx, "recall_set_id = ? AND content = ?", recallSetID, content)
		if err != nil {
			return err
		}
		point = p
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return point, created, nil
}

// GetRecallPoint retrieves a recall point by ID.
func GetRecallPoint(ctx context.Context, db *sql.DB, id string) (*models.RecallPoint, error) {
	var point *models.RecallPoint
	err := RetryWithBackoff(ctx, func() error {
		p, err := scanRecallPoint(ctx, db, "id = ?", id)
		if err != nil {
			return err
		}
		point = p
		return nil
	})
	return point, err
}

// GetRecallPoints retrieves multiple recall points by ID, preserving the
// order the IDs were requested in (the engine relies on this for building
// the probe sequence).
func GetRecallPoints(ctx context.Context, db *sql.DB, ids []string) ([]models.RecallPoint, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	byID := make(map[string]models.RecallPoint, len(ids))

	err := RetryWithBackoff(ctx, func() error {
		placeholders := make([]any, len(ids))
		query := "id IN ("
		for i, id := range ids {
			if i > 0 {
				query += ","
			}
			query += "?"
			placeholders[i] = id
		}
		query += ")"

		rows, err := db.QueryContext(ctx, recallPointSelect+" WHERE "+query, placeholders...)
		if err != nil {
			return fmt.Errorf("failed to query recall points: %w", err)
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			p, err := scanRecallPointRow(rows)
			if err != nil {
				return err
			}
			byID[p.ID] = *p
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.RecallPoint, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// ListRecallPointsByRecallSet returns every recall point belonging to a set,
// oldest-created first. Used by reporting surfaces (`recall stats`) that need
// the full population rather than just what's currently due.
func ListRecallPointsByRecallSet(ctx context.Context, db *sql.DB, recallSetID string) ([]models.RecallPoint, error) {
	var points []models.RecallPoint

	err := RetryWithBackoff(ctx, func() error {
		rows, err := db.QueryContext(ctx, recallPointSelect+`
			WHERE recall_set_id = ?
			ORDER BY created_at ASC
		`, recallSetID)
		if err != nil {
			return fmt.Errorf("failed to query recall points by set: %w", err)
		}
		defer func() { _ = rows.Close() }()

		points = make([]models.RecallPoint, 0)
		for rows.Next() {
			p, err := scanRecallPointRow(rows)
			if err != nil {
				return err
			}
			points = append(points, *p)
		}
		return rows.Err()
	})
	return points, err
}

// DueRecallPoints returns up to limit points in the set whose FSRS due date
// has passed as of now, ordered oldest-due first.
func DueRecallPoints(ctx context.Context, db *sql.DB, recallSetID string, now time.Time, limit int) ([]models.RecallPoint, error) {
	var points []models.RecallPoint

	err := RetryWithBackoff(ctx, func() error {
		rows, err := db.QueryContext(ctx, recallPointSelect+`
			WHERE recall_set_id = ? AND fsrs_due <= ?
			ORDER BY fsrs_due ASC
			LIMIT ?
		`, recallSetID, now, limit)
		if err != nil {
			return fmt.Errorf("failed to query due recall points: %w", err)
		}
		defer func() { _ = rows.Close() }()

		points = make([]models.RecallPoint, 0, limit)
		for rows.Next() {
			p, err := scanRecallPointRow(rows)
			if err != nil {
				return err
			}
			points = append(points, *p)
		}
		return rows.Err()
	})
	return points, err
}

// CommitRecallOutcomeTx persists a new FSRS state and appends a recall
// attempt to the point's history, inside an existing transaction. The
// engine's scheduler adapter is the only caller.
func CommitRecallOutcomeTx(ctx context.Context, tx *sql.Tx, pointID string, next models.FSRSState, attempt models.RecallAttempt) error {
	var historyJSON string
	if err := tx.QueryRowContext(ctx, `SELECT history_json FROM recall_points WHERE id = ?`, pointID).Scan(&historyJSON); err != nil {
		return fmt.Errorf("failed to load recall point history: %w", err)
	}

	var history []models.RecallAttempt
	if err := json.Unmarshal([]byte(historyJSON), &history); err != nil {
		return fmt.Errorf("failed to decode recall point history: %w", err)
	}
	history = append(history, attempt)

	encoded, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to encode recall point history: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE recall_points SET
			fsrs_difficulty = ?, fsrs_stability = ?, fsrs_due = ?, fsrs_last_review = ?,
			fsrs_reps = ?, fsrs_lapses = ?, fsrs_state = ?,
			history_json = ?, updated_at = ?
		WHERE id = ?
	`, next.Difficulty, next.Stability, next.Due, next.LastReview,
		next.Reps, next.Lapses, string(next.State),
		string(encoded), time.Now().UTC(), pointID)
	if err != nil {
		return fmt.Errorf("failed to update recall point: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if ra == 0 {
		return &NotFoundError{Entity: "recall_point", ID: pointID}
	}
	return nil
}

const recallPointSelect = `
	SELECT id, recall_set_id, content, context,
		fsrs_difficulty, fsrs_stability, fsrs_due, fsrs_last_review,
		fsrs_reps, fsrs_lapses, fsrs_state,
		history_json, created_at, updated_at
	FROM recall_points`

func scanRecallPoint(ctx context.Context, db *sql.DB, where string, args ...any) (*models.RecallPoint, error) {
	row := db.QueryRowContext(ctx, recallPointSelect+" WHERE "+where, args...)
	return scanRecallPointRowScanner(row)
}

func scanRecallPointTx(ctx context.Context, tx *sql.Tx, where string, args ...any) (*models.RecallPoint, error) {
	row := tx.QueryRowContext(ctx, recallPointSelect+" WHERE "+where, args...)
	return scanRecallPointRowScanner(row)
}

// rowScanner abstracts *sql.Row and *sql.Rows for the shared scan logic.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecallPointRowScanner(row rowScanner) (*models.RecallPoint, error) {
	var p models.RecallPoint
	var state string
	var lastReview sql.NullTime
	var historyJSON string

	if err := row.Scan(
		&p.ID, &p.RecallSetID, &p.Content, &p.Context,
		&p.FSRS.Difficulty, &p.FSRS.Stability, &p.FSRS.Due, &lastReview,
		&p.FSRS.Reps, &p.FSRS.Lapses, &state,
		&historyJSON, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, &NotFoundError{Entity: "recall_point", ID: ""}
		}
		return nil, fmt.Errorf("failed to scan recall point: %w", err)
	}
	p.FSRS.State = models.FSRSCardState(state)
	if lastReview.Valid {
		t := lastReview.Time
		p.FSRS.LastReview = &t
	}
	if err := json.Unmarshal([]byte(historyJSON), &p.History); err != nil {
		return nil, fmt.Errorf("failed to decode recall point history: %w", err)
	}
	return &p, nil
}

func scanRecallPointRow(rows *sql.Rows) (*models.RecallPoint, error) {
	return scanRecallPointRowScanner(rows)
}
