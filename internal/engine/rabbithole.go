package engine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/dotcommander/recall/internal/llm"
	"github.com/dotcommander/recall/internal/models"
	"github.com/dotcommander/recall/internal/store"
	"github.com/dotcommander/recall/pkg/memory"
)

// Sliding-window sizes fed to the detector/return-detector prompts (§4.5).
const (
	rabbitholeDetectWindow = 10
	rabbitholeReturnWindow = 6
)

// topicsCacheScope/topicsCacheKey address the single cached entry per
// session holding its known-topics list, newline-joined.
const (
	topicsCacheScope = "rabbithole_known_topics"
	topicsCacheKey   = "list"
)

// cachedKnownTopics returns the session's known rabbit-hole topics, serving
// from cache when possible instead of re-querying on every recall-mode turn.
func cachedKnownTopics(ctx context.Context, db *sql.DB, cache memory.Store, sessionID string) ([]string, error) {
	if cache != nil {
		if entry, ok := cache.Get(topicsCacheScope, sessionID, topicsCacheKey); ok {
			if entry.Value == "" {
				return nil, nil
			}
			return strings.Split(entry.Value, "\n"), nil
		}
	}

	known, err := store.KnownTopics(ctx, db, sessionID)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		_ = cache.Set(topicsCacheScope, sessionID, topicsCacheKey, strings.Join(known, "\n"))
	}
	return known, nil
}

// detectRabbithole asks the detector whether the learner's latest message
// opened a topical tangent (§4.5). It returns (nil, nil) when no tangent is
// detected, the confidence gate fails, or the topic is already known for
// this session.
func detectRabbithole(ctx context.Context, db *sql.DB, cache memory.Store, client llm.Client, sessionID string, probe *models.RecallPoint, targets []models.RecallPoint, threshold float64, triggerIndex int) (*models.RabbitholeEvent, error) {
	known, err := cachedKnownTopics(ctx, db, cache, sessionID)
	if err != nil {
		return nil, newErr(KindPersistenceFailure, "known_topics", sessionID, err)
	}
	recent, err := store.RecentSessionMessages(ctx, db, sessionID, rabbitholeDetectWindow)
	if err != nil {
		return nil, newErr(KindPersistenceFailure, "recent_messages", sessionID, err)
	}

	prompt := llm.BuildRabbitholeDetectorPrompt(probe, targets, known, recent)
	res, err := client.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}}, llm.CompletionParams{Temperature: 0, MaxTokens: 256})
	if err != nil {
		return nil, newErr(KindLLMFailure, "detect_rabbithole", sessionID, err)
	}

	detection := llm.ParseDetectionResult(res.Text)
	if !detection.IsRabbithole || detection.Confidence < threshold {
		return nil, nil
	}
	normalized := models.NormalizedTopic(detection.Topic)
	for _, t := range known {
		if t == normalized {
			return nil, nil
		}
	}

	var event *models.RabbitholeEvent
	err = store.Transact(ctx, db, func(tx *sql.Tx) error {
		e, err := store.CreateRabbitholeEventTx(ctx, tx, sessionID, detection.Topic, triggerIndex, detection.Depth, detection.RelatedRecallPointIDs, false)
		if err != nil {
			return err
		}
		event = e
		return nil
	})
	if err != nil {
		if store.IsUniqueConstraintErr(err) {
			// Another tangent claimed the single-active slot concurrently;
			// treat this as "no detection" rather than failing the turn.
			return nil, nil
		}
		return nil, newErr(KindPersistenceFailure, "create_rabbithole_event", sessionID, err)
	}
	if cache != nil {
		cache.Delete(topicsCacheScope, sessionID, topicsCacheKey)
	}
	return event, nil
}

// detectReturns asks whether the session's active tangent (if any) has
// concluded, and closes it if so (§4.5, §4.2 step 9). This runs every
// recall-mode turn regardless of whether the learner ever opted into the
// tangent via enter_rabbithole — a detected-but-declined tangent still
// needs to be closed out once the conversation has clearly moved on.
func detectReturns(ctx context.Context, db *sql.DB, client llm.Client, sessionID string, probe *models.RecallPoint, currentMessageIndex int) error {
	active, err := store.ActiveRabbitholeEvent(ctx, db, sessionID)
	if err != nil {
		return newErr(KindPersistenceFailure, "active_rabbithole", sessionID, err)
	}
	if active == nil {
		return nil
	}

	recent, err := store.RecentSessionMessages(ctx, db, sessionID, rabbitholeReturnWindow)
	if err != nil {
		return newErr(KindPersistenceFailure, "recent_messages", sessionID, err)
	}

	prompt := llm.BuildRabbitholeReturnPrompt(active.Topic, probe, recent)
	res, err := client.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}}, llm.CompletionParams{Temperature: 0, MaxTokens: 128})
	if err != nil {
		return newErr(KindLLMFailure, "detect_return", sessionID, err)
	}

	result := llm.ParseReturnResult(res.Text)
	if !result.HasReturned {
		return nil
	}

	idx := currentMessageIndex
	if err := store.Transact(ctx, db, func(tx *sql.Tx) error {
		return store.CloseRabbitholeEventTx(ctx, tx, active.ID, models.RabbitholeStatusReturned, &idx)
	}); err != nil {
		return newErr(KindPersistenceFailure, "close_rabbithole_event", sessionID, err)
	}
	return nil
}
