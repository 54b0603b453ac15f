// Package engine implements the spaced-repetition recall session
// orchestrator: the state machine, continuous evaluator, FSRS scheduler
// adapter, and rabbit-hole sub-dialog that together drive one study session
// over a recall set.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dotcommander/recall/internal/app"
	"github.com/dotcommander/recall/internal/llm"
	"github.com/dotcommander/recall/internal/models"
	"github.com/dotcommander/recall/internal/store"
	"github.com/dotcommander/recall/pkg/memory"
)

// topicsCacheCapacity is the per-scope entry limit of the topics cache. Each
// session caches under its own scope ID, so the limit applies per session:
// one session's entry never evicts another's, and entries of ended sessions
// stay in the cache until the process exits.
const topicsCacheCapacity = 256

// defaultSessionPointLimit bounds how many due points a single session
// targets; the spec leaves this unspecified, so it is treated as an engine
// policy rather than a domain invariant.
const defaultSessionPointLimit = 10

// declineCooldownTurns is how many subsequent user messages suppress
// rabbit-hole detection after decline_rabbithole() (§4.5).
const declineCooldownTurns = 3

// ClientFactory constructs a fresh LLM client for a session or rabbit-hole
// agent. The engine calls it once per session and once per rabbit-hole
// entry so each conversation gets its own system prompt and state.
type ClientFactory func() (llm.Client, error)

// ProcessResult is the response to process_user_message (§4.1).
type ProcessResult struct {
	ResponseText           string
	Completed              bool
	RecalledCount          int
	TotalPoints            int
	PointsRecalledThisTurn int
}

// Snapshot is an immutable view of a session's current runtime state for UI
// consumers (§4.1).
type Snapshot struct {
	SessionID             string
	Mode                  models.SessionMode
	RecalledCount         int
	TotalPoints           int
	ProbeIndex            int
	NextProbePoint        *models.RecallPoint
	PendingRabbitholeID   string
	PendingRabbitholeName string
}

// runtimeState is the in-memory, per-session state the engine serializes
// access to under its own lock (§5: single-threaded cooperative per
// session). It is never persisted directly; every field here is either
// derived from, or shadowed by, a corresponding store row.
type runtimeState struct {
	mu sync.Mutex

	recallSet models.RecallSet
	targets   []models.RecallPoint
	messages  []models.SessionMessage

	recalledIDs []string
	probeIndex  int
	mode        models.SessionMode

	tutorClient llm.Client
	modelName   string
	resumed     bool

	declineCooldown int

	pendingRabbitholeEventID         string
	pendingRabbitholeTopic           string
	activeRabbitholeEventID          string
	rabbitholeAgent                  llm.Client
	rabbitholeTopic                  string
	rabbitholePointsRecalled         int
	tangentExchanges                 int
	tangentTurns                     []models.RabbitholeTurn
	completionPending                bool
	completionPendingAfterRabbithole bool
}

// Engine owns the LLM client factory, settings, and database handle shared
// by every session it drives, plus the map of currently-active runtime
// states. Repository handles are shared and connection-pooled; sessions are
// distinguished purely by the engine's own in-memory lock per session id.
type Engine struct {
	db            *sql.DB
	clientFactory ClientFactory
	settings      app.EngineSettings
	bus           *eventBus
	clock         func() time.Time
	topicsCache   memory.Store

	mu       sync.Mutex
	sessions map[string]*runtimeState
}

// New constructs an Engine. clock defaults to time.Now if nil.
func New(db *sql.DB, clientFactory ClientFactory, settings app.EngineSettings, clock func() time.Time) *Engine {
	return &Engine{
		db:            db,
		clientFactory: clientFactory,
		settings:      settings,
		bus:           newEventBus(clock),
		clock:         clock,
		topicsCache:   memory.NewLRU(topicsCacheCapacity),
		sessions:      make(map[string]*runtimeState),
	}
}

// SetListener installs or clears (via nil) the engine's single event
// listener slot (§4.1).
func (e *Engine) SetListener(l Listener) {
	e.bus.SetListener(l)
}

func (e *Engine) now() time.Time {
	if e.clock != nil {
		return e.clock()
	}
	return time.Now()
}

func (e *Engine) state(sessionID string) (*runtimeState, error) {
	e.mu.Lock()
	rs, ok := e.sessions[sessionID]
	e.mu.Unlock()
	if !ok {
		return nil, newErr(KindNoActiveSession, "", sessionID, fmt.Errorf("no active session %q", sessionID))
	}
	return rs, nil
}

func (e *Engine) drop(sessionID string) {
	e.mu.Lock()
	delete(e.sessions, sessionID)
	e.mu.Unlock()
}

func wrapStoreErr(err error, op, sessionID string) error {
	if err == nil {
		return nil
	}
	return newErr(KindPersistenceFailure, op, sessionID, err)
}

func modelNameFromSettings(s app.EngineSettings) string {
	if s.LLMProvider == string(llm.ProviderOpenAI) {
		return s.OpenAIModel
	}
	return s.AnthropicModel
}

// Start resumes an existing active/paused session for recallSetID if one
// exists; otherwise it computes the due set, fails NoDuePoints if empty, and
// creates a fresh session (§4.1).
func (e *Engine) Start(ctx context.Context, recallSetID string) (*models.Session, error) {
	set, err := store.GetRecallSet(ctx, e.db, recallSetID)
	if err != nil {
		return nil, wrapStoreErr(err, "get_recall_set", "")
	}

	existing, err := store.ResumableSession(ctx, e.db, recallSetID)
	if err != nil {
		return nil, wrapStoreErr(err, "resumable_session", "")
	}
	if existing != nil {
		return e.Resume(ctx, existing.ID)
	}

	now := e.now()
	due, err := store.DueRecallPoints(ctx, e.db, recallSetID, now, defaultSessionPointLimit)
	if err != nil {
		return nil, wrapStoreErr(err, "due_recall_points", "")
	}
	if len(due) == 0 {
		return nil, newErr(KindNoDuePoints, "start", "", fmt.Errorf("recall set %q has no due points", recallSetID))
	}

	ids := make([]string, len(due))
	for i, p := range due {
		ids[i] = p.ID
	}
	session, err := store.CreateSession(ctx, e.db, recallSetID, ids)
	if err != nil {
		return nil, wrapStoreErr(err, "create_session", "")
	}

	client, err := e.clientFactory()
	if err != nil {
		return nil, newErr(KindLLMFailure, "new_tutor_client", session.ID, err)
	}

	rs := &runtimeState{
		recallSet:   *set,
		targets:     due,
		mode:        models.SessionModeRecall,
		tutorClient: client,
		modelName:   modelNameFromSettings(e.settings),
	}
	e.installTutorPrompt(rs)

	e.mu.Lock()
	e.sessions[session.ID] = rs
	e.mu.Unlock()

	e.bus.emit(session.ID, EventSessionStarted, map[string]any{"resumed": false})
	return session, nil
}

// Resume rehydrates a paused or in-progress session's runtime state from
// storage and transitions paused -> in_progress if necessary (§4.1).
func (e *Engine) Resume(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := store.GetSession(ctx, e.db, sessionID)
	if err != nil {
		return nil, wrapStoreErr(err, "get_session", sessionID)
	}
	if !session.IsResumable() {
		return nil, newErr(KindInvariantViolation, "resume", sessionID, fmt.Errorf("session status %q is not resumable", session.Status))
	}

	set, err := store.GetRecallSet(ctx, e.db, session.RecallSetID)
	if err != nil {
		return nil, wrapStoreErr(err, "get_recall_set", sessionID)
	}
	targets, err := store.GetRecallPoints(ctx, e.db, session.TargetRecallPointIDs)
	if err != nil {
		return nil, wrapStoreErr(err, "get_recall_points", sessionID)
	}
	messages, err := store.ListSessionMessages(ctx, e.db, sessionID)
	if err != nil {
		return nil, wrapStoreErr(err, "list_messages", sessionID)
	}

	client, err := e.clientFactory()
	if err != nil {
		return nil, newErr(KindLLMFailure, "new_tutor_client", sessionID, err)
	}

	rs := &runtimeState{
		recallSet:   *set,
		targets:     targets,
		messages:    messages,
		recalledIDs: append([]string(nil), session.RecalledPointIDs...),
		mode:        models.SessionModeRecall,
		tutorClient: client,
		modelName:   modelNameFromSettings(e.settings),
		resumed:     true,
	}
	rs.probeIndex = firstPendingIndex(rs.recalledIDs, targets)
	e.installTutorPrompt(rs)

	if session.Status == models.SessionStatusPaused {
		if err := store.Transact(ctx, e.db, func(tx *sql.Tx) error {
			return store.SetSessionStatusTx(ctx, tx, sessionID, models.SessionStatusInProgress)
		}); err != nil {
			return nil, wrapStoreErr(err, "set_session_status", sessionID)
		}
		resumedAt := e.now()
		session.Status = models.SessionStatusInProgress
		session.ResumedAt = &resumedAt
	}

	e.mu.Lock()
	e.sessions[sessionID] = rs
	e.mu.Unlock()

	e.bus.emit(sessionID, EventSessionStarted, map[string]any{"resumed": true})
	return session, nil
}

func firstPendingIndex(recalledIDs []string, targets []models.RecallPoint) int {
	recalled := make(map[string]bool, len(recalledIDs))
	for _, id := range recalledIDs {
		recalled[id] = true
	}
	for i, p := range targets {
		if !recalled[p.ID] {
			return i
		}
	}
	return 0
}

func (e *Engine) installTutorPrompt(rs *runtimeState) {
	unchecked := uncheckedPoints(rs.recalledIDs, rs.targets)
	probe := nextProbePoint(rs.targets, rs.recalledIDs, rs.probeIndex)
	prompt := llm.BuildSocraticTutorPrompt(rs.recallSet, rs.targets, unchecked, probe)
	rs.tutorClient.SetSystemPrompt(&prompt)
}

// resumeDigest summarizes progress made before a session was paused, for
// injection as an ephemeral internal observation ahead of the opening
// message (§4.1, §4.4). It returns "" for a fresh session or one resumed
// with nothing recalled yet, so a first-ever opening message is unaffected.
func resumeDigest(rs *runtimeState) string {
	if !rs.resumed || len(rs.recalledIDs) == 0 {
		return ""
	}
	recalledSet := make(map[string]bool, len(rs.recalledIDs))
	for _, id := range rs.recalledIDs {
		recalledSet[id] = true
	}
	var done []string
	for _, p := range rs.targets {
		if recalledSet[p.ID] {
			done = append(done, p.TruncatedContent(40))
		}
	}
	return fmt.Sprintf("The learner is resuming this session. They already recalled %d/%d facts last time (%s). Welcome them back briefly and move straight to the next outstanding fact.",
		len(done), len(rs.targets), strings.Join(done, "; "))
}

// OpeningMessage requests the first tutor reply for a freshly started or
// resumed session and persists it (§4.1). A resumed session with prior
// progress gets a resumeDigest prepended as an ephemeral, never-persisted
// turn so the tutor can acknowledge returning progress without the digest
// itself ever reaching the transcript.
func (e *Engine) OpeningMessage(ctx context.Context, sessionID string) (string, error) {
	rs, err := e.state(sessionID)
	if err != nil {
		return "", err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if probe := nextProbePoint(rs.targets, rs.recalledIDs, rs.probeIndex); probe != nil {
		e.bus.emit(sessionID, EventPointStarted, EventPointStartedData{RecallPointID: probe.ID, ProbeIndex: rs.probeIndex})
	}

	var openingMsgs []llm.Message
	if digest := resumeDigest(rs); digest != "" {
		openingMsgs = append(openingMsgs, llm.Message{
			Role:    string(models.RoleAssistant),
			Content: "[Internal observation — do not reference or quote directly to the user]: " + digest,
		})
	}

	res, err := rs.tutorClient.Complete(ctx, openingMsgs, llm.CompletionParams{
		Temperature: e.settings.TutorTemperature,
		MaxTokens:   e.settings.TutorMaxTokens,
	})
	if err != nil {
		return "", newErr(KindLLMFailure, "opening_message", sessionID, err)
	}

	tokenCount := int(res.Usage.OutputTokens)
	msg, err := e.persistMessage(ctx, sessionID, rs, models.RoleAssistant, res.Text, &tokenCount)
	if err != nil {
		return "", err
	}
	e.bus.emit(sessionID, EventAssistantMessage, msg)
	return res.Text, nil
}

func (e *Engine) persistMessage(ctx context.Context, sessionID string, rs *runtimeState, role models.MessageRole, content string, tokenCount *int) (*models.SessionMessage, error) {
	var msg *models.SessionMessage
	err := store.Transact(ctx, e.db, func(tx *sql.Tx) error {
		m, err := store.AppendSessionMessageTx(ctx, tx, sessionID, role, content, tokenCount)
		if err != nil {
			return err
		}
		msg = m
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr(err, "append_session_message", sessionID)
	}
	rs.messages = append(rs.messages, *msg)
	return msg, nil
}

// ProcessUserMessage runs the hot path (§4.2 in recall mode, §4.6 in
// rabbit-hole mode) and returns the tutor's (or tangent agent's) reply.
func (e *Engine) ProcessUserMessage(ctx context.Context, sessionID, content string) (*ProcessResult, error) {
	rs, err := e.state(sessionID)
	if err != nil {
		return nil, err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.mode == models.SessionModeRabbithole {
		return e.processRabbitholeMessage(ctx, sessionID, rs, content)
	}
	return e.processRecallMessage(ctx, sessionID, rs, content)
}

func (e *Engine) processRecallMessage(ctx context.Context, sessionID string, rs *runtimeState, content string) (*ProcessResult, error) {
	userMsg, err := e.persistMessage(ctx, sessionID, rs, models.RoleUser, content, nil)
	if err != nil {
		return nil, err
	}
	e.bus.emit(sessionID, EventUserMessage, userMsg)

	probe := nextProbePoint(rs.targets, rs.recalledIDs, rs.probeIndex)

	if rs.declineCooldown > 0 {
		rs.declineCooldown--
	} else if rs.activeRabbitholeEventID == "" {
		event, err := detectRabbithole(ctx, e.db, e.topicsCache, rs.tutorClient, sessionID, probe, rs.targets, e.settings.RabbitholeDetectThreshold, len(rs.messages)-1)
		if err != nil {
			return nil, err
		}
		if event != nil {
			rs.pendingRabbitholeEventID = event.ID
			rs.pendingRabbitholeTopic = event.Topic
			e.bus.emit(sessionID, EventRabbitholeDetected, EventRabbitholeData{Topic: event.Topic, EventID: event.ID, Depth: event.Depth})
		}
	}

	unchecked := uncheckedPoints(rs.recalledIDs, rs.targets)
	evals, err := evaluateUnchecked(ctx, rs.tutorClient, unchecked, rs.messages, content)
	if err != nil {
		return nil, err
	}

	now := e.now()
	recalledThisTurn := 0
	for _, ev := range evals {
		if !ev.Recalled {
			continue
		}
		if err := e.commitPointRecalled(ctx, sessionID, rs, ev, now); err != nil {
			return nil, err
		}
		recalledThisTurn++
	}

	feedback := buildFeedbackText(evals)

	allRecalled := len(uncheckedPoints(rs.recalledIDs, rs.targets)) == 0
	switch {
	case allRecalled:
		e.bus.emit(sessionID, EventSessionCompleteCard, map[string]any{
			"session_id":     sessionID,
			"recalled_count": len(rs.recalledIDs),
			"total_points":   len(rs.targets),
		})
	case recalledThisTurn > 0:
		e.installTutorPrompt(rs)
	}

	res, err := e.generateTutorReply(ctx, rs, feedback)
	if err != nil {
		return nil, newErr(KindLLMFailure, "generate_tutor_reply", sessionID, err)
	}

	tokenCount := int(res.Usage.OutputTokens)
	assistantMsg, err := e.persistMessage(ctx, sessionID, rs, models.RoleAssistant, res.Text, &tokenCount)
	if err != nil {
		return nil, err
	}
	e.bus.emit(sessionID, EventAssistantMessage, assistantMsg)

	if err := detectReturns(ctx, e.db, rs.tutorClient, sessionID, probe, len(rs.messages)-1); err != nil {
		return nil, err
	}

	return &ProcessResult{
		ResponseText:           res.Text,
		Completed:              false,
		RecalledCount:          len(rs.recalledIDs),
		TotalPoints:            len(rs.targets),
		PointsRecalledThisTurn: recalledThisTurn,
	}, nil
}

func (e *Engine) processRabbitholeMessage(ctx context.Context, sessionID string, rs *runtimeState, content string) (*ProcessResult, error) {
	userTurn := models.RabbitholeTurn{Role: models.RoleUser, Content: content}
	if err := store.Transact(ctx, e.db, func(tx *sql.Tx) error {
		return store.AppendRabbitholeTurnTx(ctx, tx, rs.activeRabbitholeEventID, userTurn)
	}); err != nil {
		return nil, wrapStoreErr(err, "append_rabbithole_turn", sessionID)
	}
	rs.tangentTurns = append(rs.tangentTurns, userTurn)
	rs.tangentExchanges++

	unchecked := uncheckedPoints(rs.recalledIDs, rs.targets)
	evals, err := evaluateUnchecked(ctx, rs.tutorClient, unchecked, rs.messages, content)
	if err != nil {
		return nil, err
	}

	now := e.now()
	recalledThisTurn := 0
	for _, ev := range evals {
		if !ev.Recalled {
			continue
		}
		if err := e.commitPointRecalled(ctx, sessionID, rs, ev, now); err != nil {
			return nil, err
		}
		recalledThisTurn++
	}

	if len(uncheckedPoints(rs.recalledIDs, rs.targets)) == 0 {
		rs.completionPendingAfterRabbithole = true
		rs.completionPending = true
	}

	agentMessages := make([]llm.Message, 0, len(rs.tangentTurns))
	for _, t := range rs.tangentTurns {
		agentMessages = append(agentMessages, llm.Message{Role: string(t.Role), Content: t.Content})
	}
	res, err := rs.rabbitholeAgent.Complete(ctx, agentMessages, llm.CompletionParams{
		Temperature: e.settings.TutorTemperature,
		MaxTokens:   e.settings.TutorMaxTokens,
	})
	if err != nil {
		return nil, newErr(KindLLMFailure, "rabbithole_agent_reply", sessionID, err)
	}

	agentTurn := models.RabbitholeTurn{Role: models.RoleAssistant, Content: res.Text}
	if err := store.Transact(ctx, e.db, func(tx *sql.Tx) error {
		return store.AppendRabbitholeTurnTx(ctx, tx, rs.activeRabbitholeEventID, agentTurn)
	}); err != nil {
		return nil, wrapStoreErr(err, "append_rabbithole_turn", sessionID)
	}
	rs.tangentTurns = append(rs.tangentTurns, agentTurn)

	return &ProcessResult{
		ResponseText:           res.Text,
		Completed:              false,
		RecalledCount:          len(rs.recalledIDs),
		TotalPoints:            len(rs.targets),
		PointsRecalledThisTurn: recalledThisTurn,
	}, nil
}

// commitPointRecalled marks a point recalled in the in-memory checklist,
// emits point_recalled, then runs the FSRS commit sequence and emits
// point_evaluated/point_completed (§4.2 step 5, §4.3).
func (e *Engine) commitPointRecalled(ctx context.Context, sessionID string, rs *runtimeState, ev pointEvaluation, now time.Time) error {
	rs.recalledIDs = append(rs.recalledIDs, ev.Point.ID)
	if p := nextProbePoint(rs.targets, rs.recalledIDs, rs.probeIndex); p != nil {
		for i, t := range rs.targets {
			if t.ID == p.ID {
				rs.probeIndex = i
				break
			}
		}
	}
	e.bus.emit(sessionID, EventPointRecalled, EventPointCompletedData{RecallPointID: ev.Point.ID})

	rating := deriveRating(true, ev.Confidence, ev.Suggested)
	lastIdx := len(rs.messages) - 1
	outcome := models.RecallOutcome{
		SessionID:     sessionID,
		RecallPointID: ev.Point.ID,
		Success:       true,
		Confidence:    ev.Confidence,
		Rating:        rating,
		Reasoning:     ev.Reasoning,
		MessageIndexRange: models.MessageIndexRange{
			Start: lastIdx,
			End:   lastIdx,
		},
	}

	next, _, err := commitRecallOutcome(ctx, e.db, sessionID, ev.Point, outcome, now)
	if err != nil {
		return err
	}

	e.bus.emit(sessionID, EventPointEvaluated, EventPointEvaluatedData{RecallPointID: ev.Point.ID, Confidence: ev.Confidence, Recalled: true})
	e.bus.emit(sessionID, EventPointCompleted, EventPointCompletedData{RecallPointID: ev.Point.ID, Rating: string(rating), NextDue: next.Due})

	if rs.mode == models.SessionModeRabbithole {
		rs.rabbitholePointsRecalled++
	}
	return nil
}

func buildFeedbackText(evals []pointEvaluation) string {
	var sentences []string
	for _, ev := range evals {
		if ev.Recalled || !ev.NearMiss {
			continue
		}
		sentences = append(sentences, nearMissSentence(ev.Point))
	}
	return strings.Join(sentences, " ")
}

func nearMissSentence(p models.RecallPoint) string {
	return fmt.Sprintf("The learner seems close on %q but hasn't fully confirmed it.", p.TruncatedContent(60))
}

// generateTutorReply builds the conversation history from the persisted
// main dialog, prepending an ephemeral (never-persisted) assistant
// observation turn when there is near-miss feedback to convey (§4.4).
func (e *Engine) generateTutorReply(ctx context.Context, rs *runtimeState, feedback string) (llm.CompletionResult, error) {
	var msgs []llm.Message
	if feedback != "" {
		msgs = append(msgs, llm.Message{
			Role:    string(models.RoleAssistant),
			Content: "[Internal observation — do not reference or quote directly to the user]: " + feedback,
		})
	}
	for _, m := range rs.messages {
		if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
			continue
		}
		msgs = append(msgs, llm.Message{Role: string(m.Role), Content: m.Content})
	}

	return rs.tutorClient.Complete(ctx, msgs, llm.CompletionParams{
		Temperature: e.settings.TutorTemperature,
		MaxTokens:   e.settings.TutorMaxTokens,
	})
}

// EnterRabbithole switches a session into rabbit-hole mode and produces the
// dedicated agent's opening message (§4.6).
func (e *Engine) EnterRabbithole(ctx context.Context, sessionID, topic, eventID string) (string, error) {
	rs, err := e.state(sessionID)
	if err != nil {
		return "", err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.mode == models.SessionModeRabbithole {
		return "", newErr(KindNestedRabbithole, "enter_rabbithole", sessionID, fmt.Errorf("rabbit hole %q already active", rs.activeRabbitholeEventID))
	}

	client, err := e.clientFactory()
	if err != nil {
		return "", newErr(KindLLMFailure, "new_rabbithole_client", sessionID, err)
	}
	prompt := llm.BuildRabbitholeAgentPrompt(topic, rs.recallSet.Name, rs.recallSet.Description)
	client.SetSystemPrompt(&prompt)

	rs.mode = models.SessionModeRabbithole
	rs.activeRabbitholeEventID = eventID
	rs.pendingRabbitholeEventID = ""
	rs.pendingRabbitholeTopic = ""
	rs.rabbitholeAgent = client
	rs.rabbitholeTopic = topic
	rs.rabbitholePointsRecalled = 0
	rs.tangentExchanges = 0
	rs.tangentTurns = nil

	e.bus.emit(sessionID, EventRabbitholeEntered, EventRabbitholeData{Topic: topic})

	res, err := client.Complete(ctx, nil, llm.CompletionParams{
		Temperature: e.settings.TutorTemperature,
		MaxTokens:   e.settings.TutorMaxTokens,
	})
	if err != nil {
		return "", newErr(KindLLMFailure, "rabbithole_opening", sessionID, err)
	}

	turn := models.RabbitholeTurn{Role: models.RoleAssistant, Content: res.Text}
	if err := store.Transact(ctx, e.db, func(tx *sql.Tx) error {
		return store.AppendRabbitholeTurnTx(ctx, tx, eventID, turn)
	}); err != nil {
		return "", wrapStoreErr(err, "append_rabbithole_turn", sessionID)
	}
	rs.tangentTurns = append(rs.tangentTurns, turn)
	return res.Text, nil
}

// ExitRabbithole closes the active tangent, restores recall mode, and fires
// the deferred completion overlay if the checklist completed during the
// tangent (§4.6).
func (e *Engine) ExitRabbithole(ctx context.Context, sessionID string) error {
	rs, err := e.state(sessionID)
	if err != nil {
		return err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.mode != models.SessionModeRabbithole {
		return newErr(KindNotInRabbithole, "exit_rabbithole", sessionID, fmt.Errorf("session is not in a rabbit hole"))
	}

	returnIdx := len(rs.messages) - 1
	if err := store.Transact(ctx, e.db, func(tx *sql.Tx) error {
		return store.CloseRabbitholeEventTx(ctx, tx, rs.activeRabbitholeEventID, models.RabbitholeStatusReturned, &returnIdx)
	}); err != nil {
		return wrapStoreErr(err, "close_rabbithole_event", sessionID)
	}

	pointsRecalled := rs.rabbitholePointsRecalled
	topic := rs.rabbitholeTopic
	completionPending := rs.completionPendingAfterRabbithole

	rs.mode = models.SessionModeRecall
	rs.activeRabbitholeEventID = ""
	rs.rabbitholeAgent = nil
	rs.rabbitholeTopic = ""
	rs.tangentTurns = nil

	e.bus.emit(sessionID, EventRabbitholeExited, map[string]any{
		"label":                  topic,
		"points_recalled_during": pointsRecalled,
		"completion_pending":     completionPending,
	})

	if completionPending {
		rs.completionPendingAfterRabbithole = false
		e.bus.emit(sessionID, EventSessionCompleteCard, map[string]any{
			"session_id":     sessionID,
			"recalled_count": len(rs.recalledIDs),
			"total_points":   len(rs.targets),
		})
	}
	return nil
}

// DeclineRabbithole starts the decline cooldown, suppressing further
// detection for the next declineCooldownTurns user messages (§4.5).
func (e *Engine) DeclineRabbithole(ctx context.Context, sessionID string) error {
	rs, err := e.state(sessionID)
	if err != nil {
		return err
	}
	rs.mu.Lock()
	rs.declineCooldown = declineCooldownTurns
	rs.pendingRabbitholeEventID = ""
	rs.pendingRabbitholeTopic = ""
	rs.mu.Unlock()
	return nil
}

// Pause persists the checklist and transitions the session to paused,
// dropping its runtime state (§4.1).
func (e *Engine) Pause(ctx context.Context, sessionID string) error {
	rs, err := e.state(sessionID)
	if err != nil {
		return err
	}
	rs.mu.Lock()
	recalledIDs := append([]string(nil), rs.recalledIDs...)
	rs.mu.Unlock()

	if err := store.Transact(ctx, e.db, func(tx *sql.Tx) error {
		for _, id := range recalledIDs {
			if err := store.AppendRecalledPointTx(ctx, tx, sessionID, id); err != nil {
				return err
			}
		}
		return store.SetSessionStatusTx(ctx, tx, sessionID, models.SessionStatusPaused)
	}); err != nil {
		return wrapStoreErr(err, "pause_session", sessionID)
	}

	e.bus.emit(sessionID, EventSessionPaused, nil)
	e.drop(sessionID)
	return nil
}

// Abandon marks any still-active rabbit hole abandoned at the current
// message index and transitions the session to abandoned (§4.1, §4.5).
func (e *Engine) Abandon(ctx context.Context, sessionID string) error {
	rs, err := e.state(sessionID)
	if err != nil {
		return err
	}
	rs.mu.Lock()
	activeEventID := rs.activeRabbitholeEventID
	finalIdx := len(rs.messages) - 1
	rs.mu.Unlock()

	if activeEventID == "" {
		active, err := store.ActiveRabbitholeEvent(ctx, e.db, sessionID)
		if err != nil {
			return wrapStoreErr(err, "active_rabbithole", sessionID)
		}
		if active != nil {
			activeEventID = active.ID
		}
	}

	if err := store.Transact(ctx, e.db, func(tx *sql.Tx) error {
		if activeEventID != "" {
			idx := finalIdx
			if err := store.CloseRabbitholeEventTx(ctx, tx, activeEventID, models.RabbitholeStatusAbandoned, &idx); err != nil {
				return err
			}
		}
		return store.SetSessionStatusTx(ctx, tx, sessionID, models.SessionStatusAbandoned)
	}); err != nil {
		return wrapStoreErr(err, "abandon_session", sessionID)
	}

	e.drop(sessionID)
	return nil
}

// Finalize transitions the session to completed, computes and persists its
// metrics, emits session_completed, and drops runtime state (§4.1, §4.7).
func (e *Engine) Finalize(ctx context.Context, sessionID string) (*models.SessionMetrics, error) {
	rs, err := e.state(sessionID)
	if err != nil {
		return nil, err
	}
	rs.mu.Lock()
	modelName := rs.modelName
	rs.mu.Unlock()

	if err := store.Transact(ctx, e.db, func(tx *sql.Tx) error {
		return store.SetSessionStatusTx(ctx, tx, sessionID, models.SessionStatusCompleted)
	}); err != nil {
		return nil, wrapStoreErr(err, "finalize_session", sessionID)
	}

	session, err := store.GetSession(ctx, e.db, sessionID)
	if err != nil {
		return nil, wrapStoreErr(err, "get_session", sessionID)
	}

	pauseThreshold := time.Duration(e.settings.PauseThresholdMinutes) * time.Minute
	metrics, err := computeMetrics(ctx, e.db, session, modelName, pauseThreshold)
	if err != nil {
		return nil, err
	}

	e.bus.emit(sessionID, EventSessionCompleted, map[string]any{"session_id": sessionID})
	e.drop(sessionID)
	return metrics, nil
}

// LeaveSession is the caller-facing wrapper used after a completion overlay
// fires; equivalent to Finalize (§4.1).
func (e *Engine) LeaveSession(ctx context.Context, sessionID string) (*models.SessionMetrics, error) {
	return e.Finalize(ctx, sessionID)
}

// Snapshot returns an immutable view of a session's current runtime state
// (§4.1).
func (e *Engine) Snapshot(sessionID string) (*Snapshot, error) {
	rs, err := e.state(sessionID)
	if err != nil {
		return nil, err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()

	return &Snapshot{
		SessionID:             sessionID,
		Mode:                  rs.mode,
		RecalledCount:         len(rs.recalledIDs),
		TotalPoints:           len(rs.targets),
		ProbeIndex:            rs.probeIndex,
		NextProbePoint:        nextProbePoint(rs.targets, rs.recalledIDs, rs.probeIndex),
		PendingRabbitholeID:   rs.pendingRabbitholeEventID,
		PendingRabbitholeName: rs.pendingRabbitholeTopic,
	}, nil
}
