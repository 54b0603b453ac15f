package engine

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/dotcommander/recall/internal/models"
	"github.com/dotcommander/recall/internal/store"
)

// perMillion holds a model's approximate USD cost per million input/output
// tokens, used to estimate session spend (§4.7). These are rough published
// list prices, not billing-accurate figures.
type perMillion struct {
	Input, Output float64
}

var modelPricing = map[string]perMillion{
	"claude-3-5-sonnet-20241022": {Input: 3.00, Output: 15.00},
	"claude-3-5-haiku-20241022":  {Input: 0.80, Output: 4.00},
	"gpt-4o":                     {Input: 2.50, Output: 10.00},
	"gpt-4o-mini":                {Input: 0.15, Output: 0.60},
}

const (
	defaultInputPerM  = 3.00
	defaultOutputPerM = 15.00

	// rabbitholeMinutesPerExchange approximates tangent time when only
	// message-index spans are available (no per-turn timestamps are kept
	// for rabbit-hole conversations, since they're stored as a JSON blob
	// rather than timestamped rows).
	rabbitholeMinutesPerExchange = 1
)

// computeMetrics builds and persists a session's SessionMetrics at finalize
// time (§4.7), deriving every figure from what was actually persisted:
// messages, recall outcomes, and rabbit-hole events.
func computeMetrics(ctx context.Context, db *sql.DB, session *models.Session, modelName string, pauseThreshold time.Duration) (*models.SessionMetrics, error) {
	messages, err := store.ListSessionMessages(ctx, db, session.ID)
	if err != nil {
		return nil, newErr(KindPersistenceFailure, "list_messages", session.ID, err)
	}
	outcomes, err := store.ListRecallOutcomes(ctx, db, session.ID)
	if err != nil {
		return nil, newErr(KindPersistenceFailure, "list_outcomes", session.ID, err)
	}
	holes, err := store.ListRabbitholeEvents(ctx, db, session.ID)
	if err != nil {
		return nil, newErr(KindPersistenceFailure, "list_rabbitholes", session.ID, err)
	}

	endedAt := time.Now().UTC()
	if session.EndedAt != nil {
		endedAt = *session.EndedAt
	}
	totalDuration := endedAt.Sub(session.StartedAt)

	activeTime, avgUserMS, avgAssistantMS := messageTiming(messages, pauseThreshold)
	recall := recallStats(outcomes)
	userCount, assistantCount := countRoles(messages)

	m := models.SessionMetrics{
		SessionID:              session.ID,
		TotalDurationMS:        totalDuration.Milliseconds(),
		ActiveTimeMS:           activeTime.Milliseconds(),
		AvgUserResponseMS:      avgUserMS,
		AvgAssistantResponseMS: avgAssistantMS,
		Recall:                 recall,
		UserMessageCount:       userCount,
		AssistantMessageCount:  assistantCount,
		Rabbithole:             rabbitholeStats(holes),
		Tokens:                 tokenStats(messages, modelName),
	}
	m.EngagementScore = engagementScore(messages, recall)

	saved, err := store.SaveSessionMetrics(ctx, db, m)
	if err != nil {
		return nil, newErr(KindPersistenceFailure, "save_metrics", session.ID, err)
	}
	return saved, nil
}

func messageTiming(messages []models.SessionMessage, pauseThreshold time.Duration) (activeTime time.Duration, avgUserMS, avgAssistantMS int64) {
	var userGaps, assistantGaps []time.Duration
	for i := 1; i < len(messages); i++ {
		gap := messages[i].Timestamp.Sub(messages[i-1].Timestamp)
		if gap < 0 {
			gap = 0
		}
		if gap <= pauseThreshold {
			activeTime += gap
		}
		switch messages[i].Role {
		case models.RoleUser:
			userGaps = append(userGaps, gap)
		case models.RoleAssistant:
			assistantGaps = append(assistantGaps, gap)
		}
	}
	return activeTime, avgMillis(userGaps), avgMillis(assistantGaps)
}

func avgMillis(gaps []time.Duration) int64 {
	if len(gaps) == 0 {
		return 0
	}
	var total time.Duration
	for _, g := range gaps {
		total += g
	}
	return (total / time.Duration(len(gaps))).Milliseconds()
}

func recallStats(outcomes []models.RecallOutcome) models.RecallStats {
	stats := models.RecallStats{Attempted: len(outcomes)}
	var confidenceTotal float64
	for _, o := range outcomes {
		confidenceTotal += o.Confidence
		if o.Success {
			stats.Successful++
		} else {
			stats.Failed++
		}
	}
	if stats.Attempted > 0 {
		stats.Rate = float64(stats.Successful) / float64(stats.Attempted)
		stats.AvgConfidence = confidenceTotal / float64(stats.Attempted)
	}
	return stats
}

func countRoles(messages []models.SessionMessage) (userCount, assistantCount int) {
	for _, m := range messages {
		switch m.Role {
		case models.RoleUser:
			userCount++
		case models.RoleAssistant:
			assistantCount++
		}
	}
	return userCount, assistantCount
}

func rabbitholeStats(holes []models.RabbitholeEvent) models.RabbitholeStats {
	stats := models.RabbitholeStats{Count: len(holes)}
	if len(holes) == 0 {
		return stats
	}
	var depthTotal int
	for _, h := range holes {
		depthTotal += h.Depth
		if h.ReturnMessageIndex != nil {
			exchanges := *h.ReturnMessageIndex - h.TriggerMessageIndex
			if exchanges > 0 {
				stats.TotalTimeMS += int64(exchanges) * rabbitholeMinutesPerExchange * int64(time.Minute/time.Millisecond)
			}
		}
	}
	stats.AvgDepth = float64(depthTotal) / float64(len(holes))
	return stats
}

func tokenStats(messages []models.SessionMessage, modelName string) models.TokenStats {
	pricing, ok := modelPricing[modelName]
	if !ok {
		pricing = perMillion{Input: defaultInputPerM, Output: defaultOutputPerM}
	}

	var stats models.TokenStats
	for _, m := range messages {
		if m.TokenCount == nil {
			continue
		}
		switch m.Role {
		case models.RoleUser:
			stats.InputTokens += int64(*m.TokenCount)
		case models.RoleAssistant:
			stats.OutputTokens += int64(*m.TokenCount)
		}
	}
	stats.EstimatedCostUSD = float64(stats.InputTokens)/1_000_000*pricing.Input +
		float64(stats.OutputTokens)/1_000_000*pricing.Output
	return stats
}

// engagementScore blends recall rate, response-time regularity, and the
// average user-message length (full credit at 200 characters) into a single
// 0-100 figure (§4.7). How much message lengths vary is not measured. This is
// a deliberately simple heuristic, not a validated psychometric instrument.
func engagementScore(messages []models.SessionMessage, recall models.RecallStats) float64 {
	if len(messages) == 0 {
		return 0
	}
	score := 0.4*recall.Rate*100 + 0.3*responseRegularity(messages) + 0.3*lengthVarietyScore(messages)
	return clampScore(score)
}

func responseRegularity(messages []models.SessionMessage) float64 {
	var gaps []float64
	for i := 1; i < len(messages); i++ {
		if messages[i].Role != models.RoleUser {
			continue
		}
		gap := messages[i].Timestamp.Sub(messages[i-1].Timestamp).Seconds()
		if gap < 0 {
			gap = 0
		}
		gaps = append(gaps, gap)
	}
	if len(gaps) < 2 {
		return 50
	}

	var mean float64
	for _, g := range gaps {
		mean += g
	}
	mean /= float64(len(gaps))
	if mean == 0 {
		return 50
	}

	var variance float64
	for _, g := range gaps {
		variance += (g - mean) * (g - mean)
	}
	variance /= float64(len(gaps))
	coefficientOfVariation := math.Sqrt(variance) / mean
	return clampScore(100 - coefficientOfVariation*50)
}

func lengthVarietyScore(messages []models.SessionMessage) float64 {
	var total, count float64
	for _, m := range messages {
		if m.Role == models.RoleUser {
			total += float64(len(m.Content))
			count++
		}
	}
	if count == 0 {
		return 0
	}
	const fullCreditLength = 200 // chars; longer average replies read as deeper engagement
	return clampScore((total / count / fullCreditLength) * 100)
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
