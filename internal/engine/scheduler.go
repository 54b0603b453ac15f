package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/dotcommander/recall/internal/fsrs"
	"github.com/dotcommander/recall/internal/models"
	"github.com/dotcommander/recall/internal/store"
)

// confidence thresholds used by the rating table below (§4.4). The
// evaluator's recalled/near-miss classification uses its own thresholds in
// evaluator.go.
const (
	confidenceEasyThreshold = 0.9
	confidenceGoodThreshold = 0.7
)

// deriveRating maps an evaluation outcome to a deterministic FSRS rating
// (§4.4). A valid secondary suggestedRating from the evaluator overrides the
// table-derived value; an invalid or empty one is ignored.
func deriveRating(success bool, confidence float64, suggested models.FSRSRating) models.FSRSRating {
	if suggested.IsValid() {
		return suggested
	}

	switch {
	case success && confidence >= confidenceEasyThreshold:
		return models.RatingEasy
	case success && confidence >= confidenceGoodThreshold:
		return models.RatingGood
	case success:
		return models.RatingHard
	case !success && confidence >= confidenceGoodThreshold:
		return models.RatingForgot
	default:
		return models.RatingHard
	}
}

// commitRecallOutcome runs the schedule -> update_fsrs -> append_recall_attempt
// -> create_recall_outcome sequence atomically (§4.4). A failure at any step
// surfaces as a single PersistenceFailure; nothing is partially applied.
func commitRecallOutcome(ctx context.Context, db *sql.DB, sessionID string, point models.RecallPoint, outcome models.RecallOutcome, now time.Time) (models.FSRSState, *models.RecallOutcome, error) {
	next := fsrs.Schedule(point.FSRS, fsrs.FromModelRating(outcome.Rating), now)

	attempt := models.RecallAttempt{
		Timestamp: now,
		Success:   outcome.Success,
		LatencyMS: outcome.TimeSpentMS,
	}

	var recorded *models.RecallOutcome
	err := store.Transact(ctx, db, func(tx *sql.Tx) error {
		if err := store.CommitRecallOutcomeTx(ctx, tx, point.ID, next, attempt); err != nil {
			return err
		}
		if err := store.AppendRecalledPointTx(ctx, tx, sessionID, point.ID); err != nil {
			return err
		}
		rec, err := store.RecordRecallOutcomeTx(ctx, tx, outcome)
		if err != nil {
			return err
		}
		recorded = rec
		return nil
	})
	if err != nil {
		return models.FSRSState{}, nil, newErr(KindPersistenceFailure, "commit_recall_outcome", sessionID, err)
	}
	return next, recorded, nil
}
