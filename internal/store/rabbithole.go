package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dotcommander/recall/internal/models"
)

// CreateRabbitholeEventTx opens a new active rabbit hole inside an existing
// transaction. A unique partial index on (session_id) WHERE status='active'
// enforces the single-active-tangent invariant (§3) — a second concurrent
// insert fails with a unique constraint violation, which the caller should
// treat as "a rabbit hole is already active".
func CreateRabbitholeEventTx(ctx context.Context, tx *sql.Tx, sessionID, topic string, triggerMessageIndex, depth int, relatedPointIDs []string, userInitiated bool) (*models.RabbitholeEvent, error) {
	id := NewID("hole")

	relatedJSON, err := json.Marshal(relatedPointIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode related point ids: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rabbithole_events (
			id, session_id, topic, trigger_message_index, depth,
			related_point_ids_json, user_initiated, status, conversation_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, '[]')
	`, id, sessionID, topic, triggerMessageIndex, depth, string(relatedJSON), userInitiated, string(models.RabbitholeStatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to insert rabbithole event: %w", err)
	}

	return &models.RabbitholeEvent{
		ID:                  id,
		SessionID:           sessionID,
		Topic:               topic,
		TriggerMessageIndex: triggerMessageIndex,
		Depth:               depth,
		RelatedPointIDs:     relatedPointIDs,
		UserInitiated:       userInitiated,
		Status:              models.RabbitholeStatusActive,
	}, nil
}

// ActiveRabbitholeEvent returns the session's active tangent, if any.
func ActiveRabbitholeEvent(ctx context.Context, db *sql.DB, sessionID string) (*models.RabbitholeEvent, error) {
	var event *models.RabbitholeEvent
	err := RetryWithBackoff(ctx, func() error {
		row := db.QueryRowContext(ctx, rabbitholeSelect+` WHERE session_id = ? AND status = ?`, sessionID, string(models.RabbitholeStatusActive))
		e, err := scanRabbithole(row)
		if err != nil {
			if _, ok := err.(*NotFoundError); ok {
				return nil
			}
			return err
		}
		event = e
		return nil
	})
	return event, err
}

// KnownTopics returns the normalized topics of every rabbit hole opened so
// far in a session, used to avoid reopening a tangent already declined or
// explored (§4.5).
func KnownTopics(ctx context.Context, db *sql.DB, sessionID string) ([]string, error) {
	var topics []string
	err := RetryWithBackoff(ctx, func() error {
		return queryTopics(ctx, db, sessionID, &topics)
	})
	return topics, err
}

func queryTopics(ctx context.Context, db *sql.DB, sessionID string, out *[]string) error {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT topic FROM rabbithole_events WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to query rabbithole topics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	*out = make([]string, 0)
	for rows.Next() {
		var topic string
		if err := rows.Scan(&topic); err != nil {
			return fmt.Errorf("failed to scan rabbithole topic: %w", err)
		}
		*out = append(*out, models.NormalizedTopic(topic))
	}
	return rows.Err()
}

// AppendRabbitholeTurnTx appends one turn to a tangent's isolated
// conversation, inside an existing transaction.
func AppendRabbitholeTurnTx(ctx context.Context, tx *sql.Tx, eventID string, turn models.RabbitholeTurn) error {
	var conversationJSON string
	if err := tx.QueryRowContext(ctx, `SELECT conversation_json FROM rabbithole_events WHERE id = ?`, eventID).Scan(&conversationJSON); err != nil {
		if err == sql.ErrNoRows {
			return &NotFoundError{Entity: "rabbithole_event", ID: eventID}
		}
		return fmt.Errorf("failed to load rabbithole conversation: %w", err)
	}

	var turns []models.RabbitholeTurn
	if err := json.Unmarshal([]byte(conversationJSON), &turns); err != nil {
		return fmt.Errorf("failed to decode rabbithole conversation: %w", err)
	}
	turns = append(turns, turn)

	encoded, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("failed to encode rabbithole conversation: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE rabbithole_events SET conversation_json = ? WHERE id = ?`, string(encoded), eventID); err != nil {
		return fmt.Errorf("failed to update rabbithole conversation: %w", err)
	}
	return nil
}

// CloseRabbitholeEventTx transitions a tangent to returned or abandoned,
// recording the main-dialog message index at which the learner returned
// (nil for abandoned).
func CloseRabbitholeEventTx(ctx context.Context, tx *sql.Tx, eventID string, status models.RabbitholeStatus, returnMessageIndex *int) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE rabbithole_events SET status = ?, return_message_index = ? WHERE id = ?
	`, string(status), returnMessageIndex, eventID)
	if err != nil {
		return fmt.Errorf("failed to close rabbithole event: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if ra == 0 {
		return &NotFoundError{Entity: "rabbithole_event", ID: eventID}
	}
	return nil
}

// ListRabbitholeEvents returns every tangent recorded for a session,
// ordered by trigger position.
func ListRabbitholeEvents(ctx context.Context, db *sql.DB, sessionID string) ([]models.RabbitholeEvent, error) {
	var events []models.RabbitholeEvent
	err := RetryWithBackoff(ctx, func() error {
		rows, err := db.QueryContext(ctx, rabbitholeSelect+` WHERE session_id = ? ORDER BY trigger_message_index ASC`, sessionID)
		if err != nil {
			return fmt.Errorf("failed to query rabbithole events: %w", err)
		}
		defer func() { _ = rows.Close() }()

		events = make([]models.RabbitholeEvent, 0)
		for rows.Next() {
			e, err := scanRabbithole(rows)
			if err != nil {
				return err
			}
			events = append(events, *e)
		}
		return rows.Err()
	})
	return events, err
}

const rabbitholeSelect = `
	SELECT id, session_id, topic, trigger_message_index, return_message_index, depth,
		related_point_ids_json, user_initiated, status, conversation_json
	FROM rabbithole_events`

func scanRabbithole(row rowScanner) (*models.RabbitholeEvent, error) {
	var e models.RabbitholeEvent
	var status string
	var relatedJSON, conversationJSON string
	var returnIdx sql.NullInt64
	var userInitiated int

	if err := row.Scan(&e.ID, &e.SessionID, &e.Topic, &e.TriggerMessageIndex, &returnIdx, &e.Depth,
		&relatedJSON, &userInitiated, &status, &conversationJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, &NotFoundError{Entity: "rabbithole_event", ID: ""}
		}
		return nil, fmt.Errorf("failed to scan rabbithole event: %w", err)
	}
	e.Status = models.RabbitholeStatus(status)
	e.UserInitiated = userInitiated != 0
	if returnIdx.Valid {
		v := int(returnIdx.Int64)
		e.ReturnMessageIndex = &v
	}
	if err := json.Unmarshal([]byte(relatedJSON), &e.RelatedPointIDs); err != nil {
		return nil, fmt.Errorf("failed to decode related point ids: %w", err)
	}
	if err := json.Unmarshal([]byte(conversationJSON), &e.Conversation); err != nil {
		return nil, fmt.Errorf("failed to decode rabbithole conversation: %w", err)
	}
	return &e, nil
}
