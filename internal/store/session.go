package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dotcommander/recall/internal/models"
)

// CreateSession inserts a new in-progress session over the given target
// recall points.
func CreateSession(ctx context.Context, db *sql.DB, recallSetID string, targetRecallPointIDs []string) (*models.Session, error) {
	var session *models.Session

	err := Transact(ctx, db, func(tx *sql.Tx) error {
		s, err := CreateSessionTx(ctx, tx, recallSetID, targetRecallPointIDs)
		if err != nil {
			return err
		}
		session = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// CreateSessionTx inserts and returns a session inside an existing transaction.
func CreateSessionTx(ctx context.Context, tx *sql.Tx, recallSetID string, targetRecallPointIDs []string) (*models.Session, error) {
	id := NewID("sess")
	now := time.Now().UTC()

	targetsJSON, err := json.Marshal(targetRecallPointIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode target recall point ids: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, recall_set_id, status, target_recall_point_ids_json, recalled_point_ids_json, started_at)
		VALUES (?, ?, ?, ?, '[]', ?)
	`, id, recallSetID, string(models.SessionStatusInProgress), string(targetsJSON), now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}

	return &models.Session{
		ID:                   id,
		RecallSetID:          recallSetID,
		Status:               models.SessionStatusInProgress,
		TargetRecallPointIDs: targetRecallPointIDs,
		RecalledPointIDs:     []string{},
		StartedAt:            now,
	}, nil
}

// GetSession retrieves a session by ID.
func GetSession(ctx context.Context, db *sql.DB, id string) (*models.Session, error) {
	var session *models.Session
	err := RetryWithBackoff(ctx, func() error {
		s, err := scanSession(db.QueryRowContext(ctx, sessionSelect+" WHERE id = ?", id))
		if err != nil {
			return err
		}
		session = s
		return nil
	})
	return session, err
}

// ResumableSession returns the most recently started in_progress or paused
// session for a recall set, if one exists. The engine's start() operation
// uses this to decide whether to resume instead of creating a new session.
func ResumableSession(ctx context.Context, db *sql.DB, recallSetID string) (*models.Session, error) {
	var session *models.Session
	err := RetryWithBackoff(ctx, func() error {
		row := db.QueryRowContext(ctx, sessionSelect+`
			WHERE recall_set_id = ? AND status IN (?, ?)
			ORDER BY started_at DESC
			LIMIT 1
		`, recallSetID, string(models.SessionStatusInProgress), string(models.SessionStatusPaused))
		s, err := scanSession(row)
		if err != nil {
			if _, ok := err.(*NotFoundError); ok {
				return nil
			}
			return err
		}
		session = s
		return nil
	})
	return session, err
}

// ListSessionsByRecallSet lists all sessions for a recall set, newest first.
func ListSessionsByRecallSet(ctx context.Context, db *sql.DB, recallSetID string) ([]*models.Session, error) {
	var sessions []*models.Session
	err := RetryWithBackoff(ctx, func() error {
		rows, err := db.QueryContext(ctx, sessionSelect+` WHERE recall_set_id = ? ORDER BY started_at DESC`, recallSetID)
		if err != nil {
			return fmt.Errorf("failed to query sessions: %w", err)
		}
		defer func() { _ = rows.Close() }()

		sessions = make([]*models.Session, 0)
		for rows.Next() {
			s, err := scanSession(rows)
			if err != nil {
				return err
			}
			sessions = append(sessions, s)
		}
		return rows.Err()
	})
	return sessions, err
}

// SetSessionStatusTx transitions a session's status inside an existing
// transaction, stamping resumed_at/ended_at as appropriate. The caller is
// responsible for validating the transition against the state machine
// before calling this.
func SetSessionStatusTx(ctx context.Context, tx *sql.Tx, id string, status models.SessionStatus) error {
	now := time.Now().UTC()
	var res sql.Result
	var err error

	switch status {
	case models.SessionStatusInProgress:
		res, err = tx.ExecContext(ctx, `UPDATE sessions SET status = ?, resumed_at = ? WHERE id = ?`, string(status), now, id)
	case models.SessionStatusCompleted, models.SessionStatusAbandoned:
		res, err = tx.ExecContext(ctx, `UPDATE sessions SET status = ?, ended_at = ? WHERE id = ?`, string(status), now, id)
	default:
		res, err = tx.ExecContext(ctx, `UPDATE sessions SET status = ? WHERE id = ?`, string(status), id)
	}
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if ra == 0 {
		return &NotFoundError{Entity: "session", ID: id}
	}
	return nil
}

// AppendRecalledPointTx marks a recall point as recalled within a session.
// Idempotent: re-adding an already-recalled point id is a no-op.
func AppendRecalledPointTx(ctx context.Context, tx *sql.Tx, sessionID, pointID string) error {
	var recalledJSON string
	if err := tx.QueryRowContext(ctx, `SELECT recalled_point_ids_json FROM sessions WHERE id = ?`, sessionID).Scan(&recalledJSON); err != nil {
		if err == sql.ErrNoRows {
			return &NotFoundError{Entity: "session", ID: sessionID}
		}
		return fmt.Errorf("failed to load session recalled points: %w", err)
	}

	var recalled []string
	if err := json.Unmarshal([]byte(recalledJSON), &recalled); err != nil {
		return fmt.Errorf("failed to decode session recalled points: %w", err)
	}
	for _, id := range recalled {
		if id == pointID {
			return nil
		}
	}
	recalled = append(recalled, pointID)

	encoded, err := json.Marshal(recalled)
	if err != nil {
		return fmt.Errorf("failed to encode session recalled points: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET recalled_point_ids_json = ? WHERE id = ?`, string(encoded), sessionID); err != nil {
		return fmt.Errorf("failed to update session recalled points: %w", err)
	}
	return nil
}

const sessionSelect = `
	SELECT id, recall_set_id, status, target_recall_point_ids_json, recalled_point_ids_json, started_at, resumed_at, ended_at
	FROM sessions`

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	var status string
	var targetsJSON, recalledJSON string
	var resumedAt, endedAt sql.NullTime

	if err := row.Scan(&s.ID, &s.RecallSetID, &status, &targetsJSON, &recalledJSON, &s.StartedAt, &resumedAt, &endedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, &NotFoundError{Entity: "session", ID: ""}
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	s.Status = models.SessionStatus(status)
	if err := json.Unmarshal([]byte(targetsJSON), &s.TargetRecallPointIDs); err != nil {
		return nil, fmt.Errorf("failed to decode session targets: %w", err)
	}
	if err := json.Unmarshal([]byte(recalledJSON), &s.RecalledPointIDs); err != nil {
		return nil, fmt.Errorf("failed to decode session recalled points: %w", err)
	}
	if resumedAt.Valid {
		t := resumedAt.Time
		s.ResumedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	return &s, nil
}
