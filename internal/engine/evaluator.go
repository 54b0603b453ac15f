package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dotcommander/recall/internal/llm"
	"github.com/dotcommander/recall/internal/models"
)

// Confidence bands the continuous evaluator classifies a point's evaluation
// into (§4.3): recalled, near-miss, or silent.
const (
	recalledThreshold = 0.6
	nearMissThreshold  = 0.3
)

// pointEvaluation is one unchecked point's continuous-evaluation verdict.
type pointEvaluation struct {
	Point      models.RecallPoint
	Confidence float64
	Recalled   bool
	NearMiss   bool
	Reasoning  string
	Suggested  models.FSRSRating
}

// evaluateUnchecked fans an evaluator call out across every unchecked point
// concurrently using errgroup, then reassembles results in target-sequence
// order (§4.3, §5). A per-point LLM failure does not abort the others; it is
// recorded as a silent (zero-confidence) verdict so one flaky call can't
// sink an entire turn.
func evaluateUnchecked(ctx context.Context, client llm.Client, points []models.RecallPoint, recent []models.SessionMessage, latestMessage string) ([]pointEvaluation, error) {
	results := make([]pointEvaluation, len(points))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range points {
		i, p := i, p
		g.Go(func() error {
			results[i] = evaluatePoint(gctx, client, p, recent, latestMessage)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, newErr(KindLLMFailure, "evaluate_unchecked", "", err)
	}
	return results, nil
}

func evaluatePoint(ctx context.Context, client llm.Client, point models.RecallPoint, recent []models.SessionMessage, latestMessage string) pointEvaluation {
	prompt := llm.BuildEvaluatorPrompt(point, recent, latestMessage)

	res, err := client.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}}, llm.CompletionParams{Temperature: 0, MaxTokens: 256})
	if err != nil {
		return pointEvaluation{Point: point, Reasoning: "evaluation call failed: " + err.Error()}
	}

	parsed := llm.ParseEvaluationResult(res.Text)
	return classify(point, parsed)
}

func classify(point models.RecallPoint, parsed llm.EvaluationResult) pointEvaluation {
	ev := pointEvaluation{
		Point:      point,
		Confidence: parsed.Confidence,
		Reasoning:  parsed.Reasoning,
		Suggested:  parsed.SuggestedRating,
	}
	switch {
	case parsed.Recalled && parsed.Confidence >= recalledThreshold:
		ev.Recalled = true
	case parsed.Confidence >= nearMissThreshold:
		ev.NearMiss = true
	}
	return ev
}
