package engine

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/recall/internal/app"
	"github.com/dotcommander/recall/internal/fsrs"
	"github.com/dotcommander/recall/internal/llm"
	"github.com/dotcommander/recall/internal/models"
	"github.com/dotcommander/recall/internal/store"
)

// fakeClient is a scripted llm.Client for driving the engine deterministically
// in tests, with no network calls. It dispatches on recognizable markers in
// the built prompts rather than call order, since the continuous evaluator
// fans calls out concurrently across unchecked points.
type fakeClient struct {
	mu            sync.Mutex
	systemPrompt  *string
	evalResponses map[string]string // keyed by a substring of the point content
	detectResp    string
	returnResp    string
	replies       []string
	replyIdx      int
}

func (f *fakeClient) SetSystemPrompt(prompt *string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.systemPrompt = prompt
}

func (f *fakeClient) Complete(_ context.Context, messages []llm.Message, _ llm.CompletionParams) (llm.CompletionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(messages) == 1 {
		content := messages[0].Content
		switch {
		case strings.Contains(content, "Recall fact to check:"):
			for key, resp := range f.evalResponses {
				if strings.Contains(content, key) {
					return llm.CompletionResult{Text: resp, Usage: llm.Usage{OutputTokens: 12}}, nil
				}
			}
			return llm.CompletionResult{Text: `{"recalled":false,"confidence":0}`, Usage: llm.Usage{OutputTokens: 12}}, nil
		case strings.Contains(content, "off-topic tangents"):
			resp := f.detectResp
			if resp == "" {
				resp = `{"is_rabbithole":false,"confidence":0}`
			}
			return llm.CompletionResult{Text: resp, Usage: llm.Usage{OutputTokens: 12}}, nil
		case strings.Contains(content, "entered a tangent on topic"):
			resp := f.returnResp
			if resp == "" {
				resp = `{"has_returned":false,"confidence":0}`
			}
			return llm.CompletionResult{Text: resp, Usage: llm.Usage{OutputTokens: 12}}, nil
		}
	}

	reply := "Tell me what you remember."
	if f.replyIdx < len(f.replies) {
		reply = f.replies[f.replyIdx]
		f.replyIdx++
	}
	return llm.CompletionResult{Text: reply, Usage: llm.Usage{OutputTokens: 8}}, nil
}

// harness wires a temp SQLite DB, a seeded recall set with three points, and
// an Engine backed by a scripted fakeClient.
type harness struct {
	t      *testing.T
	db     *sql.DB
	engine *Engine
	set    *models.RecallSet
	points []models.RecallPoint
	client *fakeClient
	events []SessionEvent
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "recall.db")
	db, err := store.InitDBWithPath(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	set, err := store.CreateRecallSet(ctx, db, "Roman History", "key facts about Rome", "")
	require.NoError(t, err)

	now := time.Now().UTC().Add(-time.Hour)
	initial := fsrs.CreateInitialState(now)
	initial.Due = now // force due immediately

	var points []models.RecallPoint
	for _, content := range []string{"Rome was founded in 753 BC", "Julius Caesar crossed the Rubicon", "The Senate met in the Curia"} {
		p, _, err := store.EnsureRecallPoint(ctx, db, set.ID, content, "", initial)
		require.NoError(t, err)
		points = append(points, *p)
	}

	client := &fakeClient{evalResponses: map[string]string{}}
	settings := app.EngineSettings{
		LLMProvider:               "anthropic",
		AnthropicModel:            "claude-3-5-sonnet-20241022",
		TutorTemperature:          0.7,
		TutorMaxTokens:            256,
		PauseThresholdMinutes:     5,
		RabbitholeDetectThreshold: 0.6,
	}

	h := &harness{t: t, db: db, set: set, points: points, client: client}
	factory := func() (llm.Client, error) { return client, nil }
	h.engine = New(db, factory, settings, func() time.Time { return time.Now().UTC() })
	h.engine.SetListener(func(ev SessionEvent) { h.events = append(h.events, ev) })
	return h
}

func (h *harness) eventsOfType(typ EventType) []SessionEvent {
	var out []SessionEvent
	for _, ev := range h.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func evalJSON(success bool, confidence float64) string {
	return fmt.Sprintf(`{"recalled":%t,"confidence":%f,"reasoning":"test"}`, success, confidence)
}

// Scenario 1 (spec §8): perfect first turn recalls all three points, emits
// point_recalled for each in order, and fires the completion overlay.
func TestPerfectFirstTurn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session, err := h.engine.Start(ctx, h.set.ID)
	require.NoError(t, err)

	_, err = h.engine.OpeningMessage(ctx, session.ID)
	require.NoError(t, err)

	h.client.evalResponses["753 BC"] = evalJSON(true, 0.92)
	h.client.evalResponses["Rubicon"] = evalJSON(true, 0.92)
	h.client.evalResponses["Curia"] = evalJSON(true, 0.92)

	result, err := h.engine.ProcessUserMessage(ctx, session.ID, "Rome was founded in 753 BC, Caesar crossed the Rubicon, and the Senate met in the Curia.")
	require.NoError(t, err)
	require.False(t, result.Completed)
	require.Equal(t, 3, result.RecalledCount)
	require.Equal(t, 3, result.PointsRecalledThisTurn)

	recalled := h.eventsOfType(EventPointRecalled)
	require.Len(t, recalled, 3)
	var order []string
	for _, ev := range recalled {
		order = append(order, ev.Data.(EventPointCompletedData).RecallPointID)
	}
	require.Equal(t, []string{h.points[0].ID, h.points[1].ID, h.points[2].ID}, order)

	require.Len(t, h.eventsOfType(EventSessionCompleteCard), 1)

	outcomes, err := store.ListRecallOutcomes(ctx, h.db, session.ID)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		require.Equal(t, models.RatingEasy, o.Rating)
		require.True(t, o.Success)
	}

	metrics, err := h.engine.LeaveSession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, 3, metrics.Recall.Successful)
	require.Len(t, h.eventsOfType(EventSessionCompleted), 1)
}

// Scenario 2 (spec §8): a partial turn with one near miss recalls only P1,
// derives a "good" rating, and fires no completion overlay.
func TestPartialTurnWithNearMiss(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session, err := h.engine.Start(ctx, h.set.ID)
	require.NoError(t, err)
	_, err = h.engine.OpeningMessage(ctx, session.ID)
	require.NoError(t, err)

	h.client.evalResponses["753 BC"] = evalJSON(true, 0.81)
	h.client.evalResponses["Rubicon"] = evalJSON(false, 0.42)
	h.client.evalResponses["Curia"] = evalJSON(false, 0.12)
	h.client.replies = []string{"What else happened that year?"}

	result, err := h.engine.ProcessUserMessage(ctx, session.ID, "Rome was founded in 753 BC, something about a river...")
	require.NoError(t, err)
	require.Equal(t, 1, result.PointsRecalledThisTurn)
	require.Empty(t, h.eventsOfType(EventSessionCompleteCard))

	outcomes, err := store.ListRecallOutcomes(ctx, h.db, session.ID)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, models.RatingGood, outcomes[0].Rating)
}

// Scenario 5 (spec §8): pause after a partial recall, then start() resumes
// the same session with the checklist intact and the probe index advanced.
func TestPauseAndResumeRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session, err := h.engine.Start(ctx, h.set.ID)
	require.NoError(t, err)
	_, err = h.engine.OpeningMessage(ctx, session.ID)
	require.NoError(t, err)

	h.client.evalResponses["753 BC"] = evalJSON(true, 0.95)
	_, err = h.engine.ProcessUserMessage(ctx, session.ID, "Rome was founded in 753 BC.")
	require.NoError(t, err)

	require.NoError(t, h.engine.Pause(ctx, session.ID))

	paused, err := store.GetSession(ctx, h.db, session.ID)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusPaused, paused.Status)
	require.Equal(t, []string{h.points[0].ID}, paused.RecalledPointIDs)

	resumed, err := h.engine.Start(ctx, h.set.ID)
	require.NoError(t, err)
	require.Equal(t, session.ID, resumed.ID)
	require.Equal(t, models.SessionStatusInProgress, resumed.Status)

	snap, err := h.engine.Snapshot(resumed.ID)
	require.NoError(t, err)
	require.Equal(t, 1, snap.RecalledCount)
	require.Equal(t, 3, snap.TotalPoints)
	require.NotNil(t, snap.NextProbePoint)
	require.NotEqual(t, h.points[0].ID, snap.NextProbePoint.ID)
}

// Scenario 6 (spec §8): abandoning a session with an active rabbit hole
// closes that event as abandoned rather than returned, and never emits
// session_completed.
func TestAbandonWithActiveRabbithole(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session, err := h.engine.Start(ctx, h.set.ID)
	require.NoError(t, err)
	_, err = h.engine.OpeningMessage(ctx, session.ID)
	require.NoError(t, err)

	h.client.detectResp = `{"is_rabbithole":true,"topic":"etymology","confidence":0.78,"depth":1}`
	_, err = h.engine.ProcessUserMessage(ctx, session.ID, "Actually, where does the word 'Rubicon' come from?")
	require.NoError(t, err)

	detected := h.eventsOfType(EventRabbitholeDetected)
	require.Len(t, detected, 1)

	active, err := store.ActiveRabbitholeEvent(ctx, h.db, session.ID)
	require.NoError(t, err)
	require.NotNil(t, active)

	rs, err := h.engine.state(session.ID)
	require.NoError(t, err)
	rs.mu.Lock()
	rs.mode = models.SessionModeRabbithole
	rs.activeRabbitholeEventID = active.ID
	rs.mu.Unlock()

	require.NoError(t, h.engine.Abandon(ctx, session.ID))

	closed, err := store.ActiveRabbitholeEvent(ctx, h.db, session.ID)
	require.NoError(t, err)
	require.Nil(t, closed)

	events, err := store.ListRabbitholeEvents(ctx, h.db, session.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, models.RabbitholeStatusAbandoned, events[0].Status)

	final, err := store.GetSession(ctx, h.db, session.ID)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusAbandoned, final.Status)
	require.Empty(t, h.eventsOfType(EventSessionCompleted))
}

// Scenario 4 (spec §8): entering a detected rabbit hole, recalling the
// remaining points while inside the tangent, and exiting defers the
// completion overlay until exit_rabbithole() rather than firing it mid-tangent.
func TestRabbitholeEnteredRecallDuringTangentDefersOverlay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session, err := h.engine.Start(ctx, h.set.ID)
	require.NoError(t, err)
	_, err = h.engine.OpeningMessage(ctx, session.ID)
	require.NoError(t, err)

	h.client.evalResponses["753 BC"] = evalJSON(true, 0.9)
	_, err = h.engine.ProcessUserMessage(ctx, session.ID, "Rome was founded in 753 BC.")
	require.NoError(t, err)
	require.Empty(t, h.eventsOfType(EventSessionCompleteCard))

	h.client.detectResp = `{"is_rabbithole":true,"topic":"etymology","confidence":0.85,"depth":1}`
	_, err = h.engine.ProcessUserMessage(ctx, session.ID, "Actually, where does the word 'Rubicon' come from?")
	require.NoError(t, err)

	detected := h.eventsOfType(EventRabbitholeDetected)
	require.Len(t, detected, 1)
	detectedData := detected[0].Data.(EventRabbitholeData)
	require.Equal(t, "etymology", detectedData.Topic)
	require.NotEmpty(t, detectedData.EventID)

	snap, err := h.engine.Snapshot(session.ID)
	require.NoError(t, err)
	require.Equal(t, detectedData.EventID, snap.PendingRabbitholeID)
	require.Equal(t, "etymology", snap.PendingRabbitholeName)

	h.client.replies = []string{"Rubicon comes from the Latin for 'red', after the river's color."}
	opening, err := h.engine.EnterRabbithole(ctx, session.ID, snap.PendingRabbitholeName, snap.PendingRabbitholeID)
	require.NoError(t, err)
	require.NotEmpty(t, opening)
	require.Len(t, h.eventsOfType(EventRabbitholeEntered), 1, "rabbithole_entered must fire before the opening message is generated")

	snap, err = h.engine.Snapshot(session.ID)
	require.NoError(t, err)
	require.Equal(t, models.SessionModeRabbithole, snap.Mode)
	require.Empty(t, snap.PendingRabbitholeID, "entering clears the pending tangent")

	h.client.evalResponses["Rubicon"] = evalJSON(true, 0.9)
	h.client.evalResponses["Curia"] = evalJSON(true, 0.9)
	result, err := h.engine.ProcessUserMessage(ctx, session.ID, "Caesar crossed the Rubicon, and the Senate met in the Curia.")
	require.NoError(t, err)
	require.Equal(t, 2, result.PointsRecalledThisTurn)
	require.Empty(t, h.eventsOfType(EventSessionCompleteCard), "the overlay must not fire while still inside the tangent")

	require.NoError(t, h.engine.ExitRabbithole(ctx, session.ID))

	exited := h.eventsOfType(EventRabbitholeExited)
	require.Len(t, exited, 1)
	exitedData := exited[0].Data.(map[string]any)
	require.Equal(t, 2, exitedData["points_recalled_during"])
	require.Equal(t, true, exitedData["completion_pending"])

	overlay := h.eventsOfType(EventSessionCompleteCard)
	require.Len(t, overlay, 1, "the deferred overlay fires immediately on exit")

	var exitedIdx, overlayIdx int
	for i, ev := range h.events {
		if ev.Type == EventRabbitholeExited {
			exitedIdx = i
		}
		if ev.Type == EventSessionCompleteCard {
			overlayIdx = i
		}
	}
	require.Less(t, exitedIdx, overlayIdx, "rabbithole_exited must precede the deferred session_complete_overlay")

	snap, err = h.engine.Snapshot(session.ID)
	require.NoError(t, err)
	require.Equal(t, models.SessionModeRecall, snap.Mode)
	require.Equal(t, 3, snap.RecalledCount)
}

// Decline cooldown (spec §8 invariant 7): after decline_rabbithole(), the
// next three user messages suppress detection regardless of detector output.
func TestDeclineRabbitholeCooldown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session, err := h.engine.Start(ctx, h.set.ID)
	require.NoError(t, err)
	_, err = h.engine.OpeningMessage(ctx, session.ID)
	require.NoError(t, err)

	h.client.detectResp = `{"is_rabbithole":true,"topic":"etymology","confidence":0.9,"depth":1}`
	require.NoError(t, h.engine.DeclineRabbithole(ctx, session.ID))

	for i := 0; i < declineCooldownTurns; i++ {
		_, err := h.engine.ProcessUserMessage(ctx, session.ID, fmt.Sprintf("still thinking, message %d", i))
		require.NoError(t, err)
	}
	require.Empty(t, h.eventsOfType(EventRabbitholeDetected), "cooldown should suppress detection")

	_, err = h.engine.ProcessUserMessage(ctx, session.ID, "one more message after cooldown")
	require.NoError(t, err)
	require.Len(t, h.eventsOfType(EventRabbitholeDetected), 1, "detection should resume after cooldown expires")
}

func TestDeriveRating(t *testing.T) {
	require.Equal(t, models.RatingEasy, deriveRating(true, 0.95, ""))
	require.Equal(t, models.RatingGood, deriveRating(true, 0.8, ""))
	require.Equal(t, models.RatingHard, deriveRating(true, 0.5, ""))
	require.Equal(t, models.RatingForgot, deriveRating(false, 0.75, ""))
	require.Equal(t, models.RatingHard, deriveRating(false, 0.2, ""))
	require.Equal(t, models.RatingEasy, deriveRating(false, 0.1, models.RatingEasy), "a valid suggested rating overrides the table")
	require.Equal(t, models.RatingHard, deriveRating(true, 0.95, "not_a_rating"), "an invalid suggested rating falls back to the table")
}

func TestChecklistNextProbePointCircularScan(t *testing.T) {
	points := []models.RecallPoint{{ID: "p1"}, {ID: "p2"}, {ID: "p3"}}

	p := nextProbePoint(points, nil, 1)
	require.Equal(t, "p2", p.ID)

	p = nextProbePoint(points, []string{"p2"}, 1)
	require.Equal(t, "p3", p.ID, "circular scan skips recalled points")

	p = nextProbePoint(points, []string{"p1", "p2", "p3"}, 0)
	require.Nil(t, p, "nil once every point is recalled")
}

func TestChecklistUncheckedPointsPreservesOrder(t *testing.T) {
	points := []models.RecallPoint{{ID: "p1"}, {ID: "p2"}, {ID: "p3"}}
	unchecked := uncheckedPoints([]string{"p2"}, points)
	require.Len(t, unchecked, 2)
	require.Equal(t, "p1", unchecked[0].ID)
	require.Equal(t, "p3", unchecked[1].ID)
}
