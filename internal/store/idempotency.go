package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sqlite "modernc.org/sqlite"
)

// ErrIdempotencyInProgress is returned when a request is still being processed
// by another caller (a begin+work+complete cycle left the row unfinished).
var ErrIdempotencyInProgress = errors.New("idempotency in progress")

// beginIdempotencyTx attempts to claim (actor, request_id). If it already
// exists, it returns the previously stored result_json for replay.
//
// This function is intentionally unexported. All callers must use
// RunIdempotent, which enforces the begin+side-effects+complete-in-one-tx
// invariant. Direct usage risks leaving empty result_json rows on partial
// commits.
func beginIdempotencyTx(ctx context.Context, tx *sql.Tx, actor, requestID, command string) (existingResultJSON string, alreadyDone bool, err error) {
	if actor == "" {
		return "", false, errors.New("actor is required")
	}
	if requestID == "" {
		return "", false, errors.New("request id is required")
	}
	if command == "" {
		return "", false, errors.New("idempotency command is required")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO idempotency (actor, request_id, command, result_json)
		VALUES (?, ?, ?, '')
	`, actor, requestID, command)
	if err == nil {
		return "", false, nil
	}
	if !IsUniqueConstraintErr(err) {
		return "", false, fmt.Errorf("failed to insert idempotency row: %w", err)
	}

	var existingCommand string
	var resultJSON string
	if err := tx.QueryRowContext(ctx, `
		SELECT command, result_json
		FROM idempotency
		WHERE actor = ? AND request_id = ?
	`, actor, requestID).Scan(&existingCommand, &resultJSON); err != nil {
		return "", false, fmt.Errorf("failed to load idempotency row: %w", err)
	}
	if existingCommand != command {
		return "", false, fmt.Errorf("idempotency key collision: request_id %q already used for command %q (new: %q)", requestID, existingCommand, command)
	}
	if strings.TrimSpace(resultJSON) == "" {
		// Should never happen if callers keep begin+work+complete in one tx,
		// but back off so concurrent callers retry rather than race.
		return "", false, &IdempotencyInProgressError{
			Actor:     actor,
			RequestID: requestID,
			Command:   command,
		}
	}
	return resultJSON, true, nil
}

func completeIdempotencyTx(ctx context.Context, tx *sql.Tx, actor, requestID, resultJSON string) error {
	if resultJSON == "" {
		return errors.New("idempotency result json must be non-empty")
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE idempotency
		SET result_json = ?
		WHERE actor = ? AND request_id = ?
	`, resultJSON, actor, requestID)
	if err != nil {
		return fmt.Errorf("failed to update idempotency row: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check idempotency rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("idempotency row not found for actor=%q request_id=%q", actor, requestID)
	}
	return nil
}

// RunIdempotent claims (actor, requestID, command) inside a transaction, runs
// fn to produce a JSON result, records it, and commits atomically — so a
// crash between claim and completion never leaves a stuck row. If the key was
// already completed, fn is skipped and the stored result is replayed.
func RunIdempotent(ctx context.Context, db *sql.DB, actor, requestID, command string, fn func(tx *sql.Tx) (string, error)) (resultJSON string, replayed bool, err error) {
	err = Transact(ctx, db, func(tx *sql.Tx) error {
		existing, done, beginErr := beginIdempotencyTx(ctx, tx, actor, requestID, command)
		if beginErr != nil {
			return beginErr
		}
		if done {
			resultJSON = existing
			replayed = true
			return nil
		}

		out, fnErr := fn(tx)
		if fnErr != nil {
			return fnErr
		}
		if completeErr := completeIdempotencyTx(ctx, tx, actor, requestID, out); completeErr != nil {
			return completeErr
		}
		resultJSON = out
		return nil
	})
	return resultJSON, replayed, err
}

// IsUniqueConstraintErr checks for SQLite duplicate-key violations.
//
// Covers both UNIQUE constraints (2067) and PRIMARY KEY constraints (1555),
// since both signal the same semantic: a row with that key already exists.
// Uses typed sqlite.Error code matching first, falling back to string
// matching for wrapped errors that lose the concrete type.
func IsUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == 2067 || code == 1555
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY constraint failed")
}
