package llm

import (
	"fmt"
	"strings"

	"github.com/dotcommander/recall/internal/models"
)

// tutorSystemPromptTemplate establishes the agent as a recall-session
// facilitator per spec §4.4: forbids praise/exclamation/meta-commentary,
// requires 1-3 sentence replies, and handles evaluator observations
// invisibly.
const tutorSystemPromptTemplate = `You are facilitating a spaced-repetition recall session for "%s".

The learner is being asked to retrieve facts from memory, not taught them
fresh. Rules:
- Never praise, use exclamation points, or comment on how the session is
  going. No meta-commentary about the process itself.
- Keep every reply to 1-3 sentences.
- If you receive an internal observation about the learner's prior answer,
  use it to shape your next question or hint, but never quote or reference
  it directly — the learner must not see it.
- Probe for the facts below one at a time; once a fact is confirmed
  recalled it will drop out of your list automatically.

Facts already recalled this session (do not re-probe):
%s

Facts still outstanding:
%s
`

// BuildSocraticTutorPrompt builds the tutor system prompt from the current
// recall set, target points, unchecked points, and next probe point (§4.4).
// If the recall set carries a discussion-prompt fragment, it is appended
// verbatim.
func BuildSocraticTutorPrompt(set models.RecallSet, targetPoints, uncheckedPoints []models.RecallPoint, probePoint *models.RecallPoint) string {
	recalledLines := "  (none yet)"
	uncheckedSet := make(map[string]bool, len(uncheckedPoints))
	for _, p := range uncheckedPoints {
		uncheckedSet[p.ID] = true
	}

	var recalled []string
	var outstanding []string
	for _, p := range targetPoints {
		if uncheckedSet[p.ID] {
			line := "  - " + p.Content
			if probePoint != nil && probePoint.ID == p.ID {
				line += " (probe next)"
			}
			outstanding = append(outstanding, line)
		} else {
			recalled = append(recalled, "  - "+p.Content)
		}
	}
	if len(recalled) > 0 {
		recalledLines = strings.Join(recalled, "\n")
	}
	outstandingLines := "  (all recalled)"
	if len(outstanding) > 0 {
		outstandingLines = strings.Join(outstanding, "\n")
	}

	prompt := fmt.Sprintf(tutorSystemPromptTemplate, set.Name, recalledLines, outstandingLines)
	if strings.TrimSpace(set.DiscussionPrompt) != "" {
		prompt += "\nAdditional guidelines for this set:\n" + set.DiscussionPrompt + "\n"
	}
	return prompt
}

const rabbitholeDetectorPromptTemplate = `You monitor a recall session for off-topic tangents.

Current probe point: %s
Target facts for this session:
%s
Known tangent topics already recorded this session: %s

Recent conversation (most recent last):
%s

Decide whether the user's latest message has drifted into a topical
tangent unrelated to retrieving the facts above. Respond with a single
JSON object, no prose, no markdown fencing:
{"is_rabbithole": bool, "topic": string, "depth": 1|2|3, "related_to_current_point": bool, "related_recall_point_ids": [string], "confidence": 0..1, "reasoning": string}
`

// BuildRabbitholeDetectorPrompt builds the detector prompt from a sliding
// window of recent messages, the current probe point, all target points, and
// already-recorded topics (§4.5).
func BuildRabbitholeDetectorPrompt(probePoint *models.RecallPoint, targetPoints []models.RecallPoint, knownTopics []string, recentMessages []models.SessionMessage) string {
	probeText := "(none — all facts recalled)"
	if probePoint != nil {
		probeText = probePoint.Content
	}
	var facts []string
	for _, p := range targetPoints {
		facts = append(facts, "  - "+p.Content)
	}
	var convo []string
	for _, m := range recentMessages {
		convo = append(convo, string(m.Role)+": "+m.Content)
	}
	return fmt.Sprintf(rabbitholeDetectorPromptTemplate,
		probeText,
		strings.Join(facts, "\n"),
		strings.Join(knownTopics, ", "),
		strings.Join(convo, "\n"),
	)
}

const rabbitholeReturnPromptTemplate = `A recall session entered a tangent on topic "%s".

Current probe point: %s

Recent conversation since entering the tangent (most recent last):
%s

Decide whether the user's latest message indicates they have returned to
the recall task. Respond with a single JSON object, no prose, no markdown
fencing:
{"has_returned": bool, "confidence": 0..1, "reasoning": string}
`

// BuildRabbitholeReturnPrompt builds the return-detection prompt (§4.5).
func BuildRabbitholeReturnPrompt(topic string, probePoint *models.RecallPoint, recentMessages []models.SessionMessage) string {
	probeText := "(none — all facts recalled)"
	if probePoint != nil {
		probeText = probePoint.Content
	}
	var convo []string
	for _, m := range recentMessages {
		convo = append(convo, string(m.Role)+": "+m.Content)
	}
	return fmt.Sprintf(rabbitholeReturnPromptTemplate, topic, probeText, strings.Join(convo, "\n"))
}

const rabbitholeAgentPromptTemplate = `You are a knowledgeable, conversational guide following a tangent the
learner raised about "%s" during a recall session on "%s".

%s

Engage with the tangent naturally and helpfully. You are not responsible
for drilling the learner on recall facts right now — that continues to
happen in the background. Keep replies conversational, a few sentences at
most. If the learner seems ready to return to the main session, you may
gently note that, but do not force it.
`

// BuildRabbitholeAgentPrompt builds the dedicated rabbit-hole agent's system
// prompt from {topic, recall_set_name, recall_set_description} (§4.6).
func BuildRabbitholeAgentPrompt(topic, recallSetName, recallSetDescription string) string {
	return fmt.Sprintf(rabbitholeAgentPromptTemplate, topic, recallSetName, recallSetDescription)
}

const evaluatorPromptTemplate = `Recall fact to check: %s

Conversation so far (most recent last):
%s

Learner's latest message:
%s

Judge whether the learner's latest message demonstrates they recalled the
fact above from memory, rather than having it repeated back to them or
supplied by the tutor. Respond with a single JSON object, no prose, no
markdown fencing:
{"recalled": bool, "confidence": 0..1, "reasoning": string, "suggested_rating": "forgot"|"hard"|"good"|"easy"|""}
`

// BuildEvaluatorPrompt builds the continuous-evaluator prompt for a single
// unchecked recall point (§4.3). One prompt is built per unchecked point;
// the engine fans these calls out concurrently.
func BuildEvaluatorPrompt(point models.RecallPoint, recentMessages []models.SessionMessage, latestMessage string) string {
	var convo []string
	for _, m := range recentMessages {
		convo = append(convo, string(m.Role)+": "+m.Content)
	}
	return fmt.Sprintf(evaluatorPromptTemplate, point.Content, strings.Join(convo, "\n"), latestMessage)
}
