package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dotcommander/recall/internal/models"
)

// CreateRecallSet inserts a new recall set and returns the created record.
func CreateRecallSet(ctx context.Context, db *sql.DB, name, description, discussionPrompt string) (*models.RecallSet, error) {
	var set *models.RecallSet

	err := Transact(ctx, db, func(tx *sql.Tx) error {
		created, err := CreateRecallSetTx(ctx, tx, name, description, discussionPrompt)
		if err != nil {
			return err
		}
		set = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// CreateRecallSetTx inserts and returns a recall set inside an existing transaction.
func CreateRecallSetTx(ctx context.Context, tx *sql.Tx, name, description, discussionPrompt string) (*models.RecallSet, error) {
	id := NewID("set")
	now := time.Now().UTC()

	_, err := tx.ExecContext(ctx, `
		INSERT INTO recall_sets (id, name, description, status, discussion_prompt, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, name, description, string(models.RecallSetStatusActive), discussionPrompt, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert recall set: %w", err)
	}

	return &models.RecallSet{
		ID:               id,
		Name:             name,
		Description:      description,
		Status:           models.RecallSetStatusActive,
		DiscussionPrompt: discussionPrompt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// GetRecallSet retrieves a recall set by ID.
func GetRecallSet(ctx context.Context, db *sql.DB, id string) (*models.RecallSet, error) {
	var set models.RecallSet
	var status string

	err := RetryWithBackoff(ctx, func() error {
		return db.QueryRowContext(ctx, `
			SELECT id, name, description, status, discussion_prompt, created_at, updated_at
			FROM recall_sets WHERE id = ?
		`, id).Scan(&set.ID, &set.Name, &set.Description, &status, &set.DiscussionPrompt, &set.CreatedAt, &set.UpdatedAt)
	})
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "recall_set", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query recall set: %w", err)
	}
	set.Status = models.RecallSetStatus(status)
	return &set, nil
}

// ListRecallSets retrieves all recall sets ordered by creation time (newest first).
func ListRecallSets(ctx context.Context, db *sql.DB) ([]*models.RecallSet, error) {
	var sets []*models.RecallSet

	err := RetryWithBackoff(ctx, func() error {
		rows, err := db.QueryContext(ctx, `
			SELECT id, name, description, status, discussion_prompt, created_at, updated_at
			FROM recall_sets
			ORDER BY created_at DESC
		`)
		if err != nil {
			return fmt.Errorf("failed to query recall sets: %w", err)
		}
		defer func() { _ = rows.Close() }()

		sets = make([]*models.RecallSet, 0)
		for rows.Next() {
			var s models.RecallSet
			var status string
			if err := rows.Scan(&s.ID, &s.Name, &s.Description, &status, &s.DiscussionPrompt, &s.CreatedAt, &s.UpdatedAt); err != nil {
				return fmt.Errorf("failed to scan recall set row: %w", err)
			}
			s.Status = models.RecallSetStatus(status)
			sets = append(sets, &s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return sets, nil
}

// SetRecallSetStatus updates a recall set's lifecycle status.
func SetRecallSetStatus(ctx context.Context, db *sql.DB, id string, status models.RecallSetStatus) error {
	return Transact(ctx, db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE recall_sets SET status = ?, updated_at = ? WHERE id = ?
		`, string(status), time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("failed to update recall set status: %w", err)
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if ra == 0 {
			return &NotFoundError{Entity: "recall_set", ID: id}
		}
		return nil
	})
}
