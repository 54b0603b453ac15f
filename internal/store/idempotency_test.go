package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdempotency_BeginCompleteReplay(t *testing.T) {
	db, err := InitDBWithPath(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	actor := "tutor"
	requestID := "req_1"
	command := "unit.test"
	result := `{"ok":true}`

	tx, err := db.Begin()
	require.NoError(t, err)
	_, done, err := beginIdempotencyTx(ctx, tx, actor, requestID, command)
	require.NoError(t, err)
	require.False(t, done)
	require.NoError(t, completeIdempotencyTx(ctx, tx, actor, requestID, result))
	require.NoError(t, tx.Commit())

	tx2, err := db.Begin()
	require.NoError(t, err)
	existing, done, err := beginIdempotencyTx(ctx, tx2, actor, requestID, command)
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, result, existing)
	require.NoError(t, tx2.Rollback())
}

func TestIdempotency_InProgressIsRetryable(t *testing.T) {
	db, err := InitDBWithPath(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	actor := "tutor"
	requestID := "req_inflight"
	command := "unit.inflight"

	// Simulate a begin that was never completed (claim left unfinished).
	_, err = db.Exec(`INSERT INTO idempotency (actor, request_id, command, result_json) VALUES (?, ?, ?, '')`, actor, requestID, command)
	require.NoError(t, err)

	tx, err := db.Begin()
	require.NoError(t, err)
	_, done, err := beginIdempotencyTx(ctx, tx, actor, requestID, command)
	require.Error(t, err)
	require.False(t, done)
	require.ErrorIs(t, err, ErrIdempotencyInProgress)
	require.NoError(t, tx.Rollback())

	require.True(t, isRetryableError(err))
}

func TestIdempotency_CollidingCommandFails(t *testing.T) {
	db, err := InitDBWithPath(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	actor := "tutor"
	requestID := "req_collide"

	tx, err := db.Begin()
	require.NoError(t, err)
	_, done, err := beginIdempotencyTx(ctx, tx, actor, requestID, "session.start")
	require.NoError(t, err)
	require.False(t, done)
	require.NoError(t, completeIdempotencyTx(ctx, tx, actor, requestID, `{"session_id":"sess_1"}`))
	require.NoError(t, tx.Commit())

	tx2, err := db.Begin()
	require.NoError(t, err)
	_, _, err = beginIdempotencyTx(ctx, tx2, actor, requestID, "session.pause")
	require.Error(t, err)
	require.NoError(t, tx2.Rollback())
}

func TestRunIdempotent_ReplaySkipsOperation(t *testing.T) {
	db, err := InitDBWithPath(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	actor := "tutor"
	requestID := "req_run_idem"
	command := "unit.run_idempotent"

	type seedResult struct {
		RecallSetID string `json:"recall_set_id"`
	}

	encode := func(r seedResult) (string, error) {
		b, err := json.Marshal(r)
		return string(b), err
	}

	first, replayed, err := RunIdempotent(ctx, db, actor, requestID, command, func(tx *sql.Tx) (string, error) {
		set, setErr := CreateRecallSetTx(ctx, tx, "Go Basics", "fundamentals refresher", "Walk me through what you remember about Go basics.")
		if setErr != nil {
			return "", setErr
		}
		return encode(seedResult{RecallSetID: set.ID})
	})
	require.NoError(t, err)
	require.False(t, replayed)

	var firstResult seedResult
	require.NoError(t, json.Unmarshal([]byte(first), &firstResult))
	require.NotEmpty(t, firstResult.RecallSetID)

	second, replayed, err := RunIdempotent(ctx, db, actor, requestID, command, func(tx *sql.Tx) (string, error) {
		t.Fatalf("operation should not run on replay")
		return "", nil
	})
	require.NoError(t, err)
	require.True(t, replayed)

	var secondResult seedResult
	require.NoError(t, json.Unmarshal([]byte(second), &secondResult))
	require.Equal(t, firstResult.RecallSetID, secondResult.RecallSetID)

	var setCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM recall_sets`).Scan(&setCount))
	require.Equal(t, 1, setCount)
}
