package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dotcommander/recall/internal/models"
)

// AppendSessionMessageTx appends one message to a session's main dialog
// inside an existing transaction. Messages are immutable and ordered by
// timestamp (§3).
func AppendSessionMessageTx(ctx context.Context, tx *sql.Tx, sessionID string, role models.MessageRole, content string, tokenCount *int) (*models.SessionMessage, error) {
	id := NewID("msg")
	now := time.Now().UTC()

	_, err := tx.ExecContext(ctx, `
		INSERT INTO session_messages (id, session_id, role, content, timestamp, token_count)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, sessionID, string(role), content, now, tokenCount)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session message: %w", err)
	}

	return &models.SessionMessage{
		ID:         id,
		SessionID:  sessionID,
		Role:       role,
		Content:    content,
		Timestamp:  now,
		TokenCount: tokenCount,
	}, nil
}

// ListSessionMessages returns a session's full main dialog ordered by
// timestamp ascending.
func ListSessionMessages(ctx context.Context, db *sql.DB, sessionID string) ([]models.SessionMessage, error) {
	var messages []models.SessionMessage

	err := RetryWithBackoff(ctx, func() error {
		rows, err := db.QueryContext(ctx, `
			SELECT id, session_id, role, content, timestamp, token_count
			FROM session_messages
			WHERE session_id = ?
			ORDER BY timestamp ASC
		`, sessionID)
		if err != nil {
			return fmt.Errorf("failed to query session messages: %w", err)
		}
		defer func() { _ = rows.Close() }()

		messages = make([]models.SessionMessage, 0)
		for rows.Next() {
			var m models.SessionMessage
			var role string
			var tokenCount sql.NullInt64
			if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.Timestamp, &tokenCount); err != nil {
				return fmt.Errorf("failed to scan session message: %w", err)
			}
			m.Role = models.MessageRole(role)
			if tokenCount.Valid {
				v := int(tokenCount.Int64)
				m.TokenCount = &v
			}
			messages = append(messages, m)
		}
		return rows.Err()
	})
	return messages, err
}

// RecentSessionMessages returns the last n messages of a session's main
// dialog, ordered oldest-to-newest — the sliding window fed to the rabbit
// hole detector (§4.5).
func RecentSessionMessages(ctx context.Context, db *sql.DB, sessionID string, n int) ([]models.SessionMessage, error) {
	all, err := ListSessionMessages(ctx, db, sessionID)
	if err != nil {
		return nil, err
	}
	if len(all) <= n {
		return all, nil
	}
	return all[len(all)-n:], nil
}
